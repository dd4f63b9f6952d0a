package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pneumactl",
	Short: "Operate a pneuma persona poll from the command line",
	Long: "pneumactl prices uploads, lists the persona population, runs polls\n" +
		"locally against the configured inference API, and inspects or adjusts\n" +
		"prepaid balances in the configured ledger.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(func() { _ = godotenv.Load() })

	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(creditCmd)
	rootCmd.Version = version
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
