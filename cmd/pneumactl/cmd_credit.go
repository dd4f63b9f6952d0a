package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var creditCmd = &cobra.Command{
	Use:   "credit USER_ID AMOUNT",
	Short: "Add AMOUNT dollars to a user's balance",
	Long: `Credit a user's balance directly, bypassing checkout. Useful for
refunds and support grants. The record is created if it does not exist.`,
	Args: cobra.ExactArgs(2),
	RunE: runCredit,
}

func runCredit(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive number of dollars, got %q", args[1])
	}
	ctx := cmd.Context()
	ledger, err := openLedger(ctx, ledgerFlags.databaseURL, cliLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer ledger.Close(ctx)

	bal, err := ledger.Credit(ctx, userID, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  +$%.4f  balance $%.4f\n", userID, amount, bal.Amount)
	return nil
}
