package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/pneuma/internal/model"
)

// GetBalance returns a user's balance.
func (db *DB) GetBalance(ctx context.Context, userID uuid.UUID) (model.Balance, error) {
	b := model.Balance{UserID: userID}
	err := db.pool.QueryRow(ctx,
		`SELECT balance::float8, updated_at FROM balances WHERE user_id = $1`, userID,
	).Scan(&b.Amount, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Balance{}, fmt.Errorf("storage: get balance %s: %w", userID, ErrNotFound)
		}
		return model.Balance{}, fmt.Errorf("storage: get balance: %w", err)
	}
	return b, nil
}

// Deduct atomically subtracts amount when the balance covers it. The check
// and the write are a single conditional UPDATE, so concurrent batches for
// the same user cannot overdraw.
func (db *DB) Deduct(ctx context.Context, userID uuid.UUID, amount float64) (model.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return model.Balance{}, err
	}
	if amount == 0 {
		return db.GetBalance(ctx, userID)
	}

	b := model.Balance{UserID: userID}
	err = WithRetry(ctx, ledgerRetries, ledgerRetryDelay, func() error {
		return db.pool.QueryRow(ctx,
			`UPDATE balances SET balance = balance - $2, updated_at = now()
			 WHERE user_id = $1 AND balance >= $2
			 RETURNING balance::float8, updated_at`,
			userID, amount,
		).Scan(&b.Amount, &b.UpdatedAt)
	})
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Balance{}, fmt.Errorf("storage: deduct: %w", err)
	}

	// No row updated: either the user is unknown or the balance is short.
	if _, getErr := db.GetBalance(ctx, userID); getErr != nil {
		return model.Balance{}, getErr
	}
	return model.Balance{}, fmt.Errorf("storage: deduct %.4f from %s: %w", amount, userID, ErrInsufficientBalance)
}

const creditSQL = `INSERT INTO balances (user_id, balance) VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE
	SET balance = balances.balance + EXCLUDED.balance, updated_at = now()
	RETURNING balance::float8, updated_at`

// Credit adds amount to a user's balance, creating the record if needed.
func (db *DB) Credit(ctx context.Context, userID uuid.UUID, amount float64) (model.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return model.Balance{}, err
	}

	b := model.Balance{UserID: userID}
	err = WithRetry(ctx, ledgerRetries, ledgerRetryDelay, func() error {
		return db.pool.QueryRow(ctx, creditSQL, userID, amount).Scan(&b.Amount, &b.UpdatedAt)
	})
	if err != nil {
		return model.Balance{}, fmt.Errorf("storage: credit: %w", err)
	}
	return b, nil
}

// CreditOnce records eventID and credits the balance in one transaction.
// A previously recorded eventID leaves everything unchanged.
func (db *DB) CreditOnce(ctx context.Context, eventID string, userID uuid.UUID, amount float64) (model.Balance, bool, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return model.Balance{}, false, err
	}

	var (
		b       = model.Balance{UserID: userID}
		applied bool
	)
	err = WithRetry(ctx, ledgerRetries, ledgerRetryDelay, func() error {
		applied = false
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx,
			`INSERT INTO credit_events (event_id, user_id, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (event_id) DO NOTHING`,
			eventID, userID, amount,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := tx.QueryRow(ctx, creditSQL, userID, amount).Scan(&b.Amount, &b.UpdatedAt); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return model.Balance{}, false, fmt.Errorf("storage: credit once: %w", err)
	}
	if !applied {
		cur, err := db.GetBalance(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return model.Balance{}, false, err
		}
		return cur, false, nil
	}
	return b, true, nil
}
