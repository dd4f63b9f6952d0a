package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/pneuma/internal/storage"
)

var ledgerFlags struct {
	databaseURL string
}

var balanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Show a user's prepaid balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func init() {
	for _, c := range []*cobra.Command{balanceCmd, creditCmd} {
		c.Flags().StringVar(&ledgerFlags.databaseURL, "database-url", "", "Ledger URL (default: $DATABASE_URL); sqlite://path for a local file")
	}
}

func runBalance(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	ctx := cmd.Context()
	ledger, err := openLedger(ctx, ledgerFlags.databaseURL, cliLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer ledger.Close(ctx)

	out := cmd.OutOrStdout()
	bal, err := ledger.GetBalance(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(out, "%s  $%.4f (no record)\n", userID, 0.0)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  $%.4f  updated %s\n", userID, bal.Amount, bal.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
