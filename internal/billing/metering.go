package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/storage"
)

// Gate charges a batch before it starts. The full estimated cost is deducted
// atomically; a balance that does not cover it is left untouched and
// ErrInsufficientBalance is returned. A user with no ledger record gets
// ErrBalanceNotFound, even for a zero-cost estimate.
//
// With no ledger configured every batch is allowed and the zero Balance is
// returned.
func (s *Service) Gate(ctx context.Context, userID uuid.UUID, estimate model.CostEstimate) (model.Balance, error) {
	if s.ledger == nil {
		return model.Balance{UserID: userID}, nil
	}

	bal, err := s.ledger.Deduct(ctx, userID, estimate.TotalCost)
	switch {
	case errors.Is(err, storage.ErrInsufficientBalance):
		return model.Balance{}, fmt.Errorf("%w: batch costs %s", ErrInsufficientBalance, estimate.DisplayCost)
	case errors.Is(err, storage.ErrNotFound):
		return model.Balance{}, ErrBalanceNotFound
	case err != nil:
		return model.Balance{}, fmt.Errorf("billing: deduct: %w", err)
	}

	s.logger.Info("billing: batch charged",
		"user_id", userID,
		"num_calls", estimate.NumCalls,
		"total_cost", estimate.TotalCost,
		"balance", bal.Amount,
	)
	return bal, nil
}

// Balance returns the user's balance, reporting zero for users who have
// never bought credit.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	if s.ledger == nil {
		return 0, nil
	}
	bal, err := s.ledger.GetBalance(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("billing: get balance: %w", err)
	}
	return bal.Amount, nil
}

// GateEnabled reports whether batches are charged against a ledger.
func (s *Service) GateEnabled() bool { return s.ledger != nil }

// Refund returns a charge taken by Gate for a batch that never started.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, estimate model.CostEstimate) error {
	if s.ledger == nil || estimate.TotalCost <= 0 {
		return nil
	}
	if _, err := s.ledger.Credit(ctx, userID, estimate.TotalCost); err != nil {
		return fmt.Errorf("billing: refund: %w", err)
	}
	s.logger.Info("billing: batch refunded", "user_id", userID, "total_cost", estimate.TotalCost)
	return nil
}
