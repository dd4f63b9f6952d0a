package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var personasFlags struct {
	file  string
	limit int
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the persona population polls sample from",
	Args:  cobra.NoArgs,
	RunE:  runPersonas,
}

func init() {
	f := personasCmd.Flags()
	f.StringVar(&personasFlags.file, "file", "", "Population YAML (default: $PNEUMA_PERSONAS_FILE, then the built-in set)")
	f.IntVar(&personasFlags.limit, "limit", 0, "Show at most this many personas (0 = all)")
}

func runPersonas(cmd *cobra.Command, _ []string) error {
	file := personasFlags.file
	if file == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		file = cfg.PersonasFile
	}
	pop, err := loadPopulation(file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	shown := pop
	if personasFlags.limit > 0 && personasFlags.limit < len(pop) {
		shown = pop[:personasFlags.limit]
	}
	for i, p := range shown {
		fmt.Fprintf(out, "%4d  %s\n", i+1, p)
	}
	fmt.Fprintf(out, "%d of %d personas\n", len(shown), len(pop))
	return nil
}
