package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var estimateFlags struct {
	calls      int
	jsonOutput bool
}

var estimateCmd = &cobra.Command{
	Use:   "estimate FILE",
	Short: "Price a poll over FILE without calling the inference API",
	Args:  cobra.ExactArgs(1),
	RunE:  runEstimate,
}

func init() {
	f := estimateCmd.Flags()
	f.IntVarP(&estimateFlags.calls, "calls", "n", 10, "Number of persona calls")
	f.BoolVar(&estimateFlags.jsonOutput, "json", false, "Print the estimate as JSON")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if estimateFlags.calls < 1 || estimateFlags.calls > cfg.MaxCalls {
		return fmt.Errorf("--calls must be between 1 and %d", cfg.MaxCalls)
	}
	artifact, err := readArtifact(args[0], cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	est := costModel(cfg).EstimateArtifact(artifact, estimateFlags.calls)

	out := cmd.OutOrStdout()
	if estimateFlags.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	}
	fmt.Fprintf(out, "Content:       %s\n", artifact.Kind)
	fmt.Fprintf(out, "Input tokens:  %d\n", est.InputTokens)
	fmt.Fprintf(out, "Calls:         %d\n", est.NumCalls)
	fmt.Fprintf(out, "Cost per call: $%.6f\n", est.CostPerCall)
	fmt.Fprintf(out, "Total cost:    %s\n", est.DisplayCost)
	return nil
}
