package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/migrations"
)

// Ledger holds prepaid balances. Amounts are US dollars and are stored with
// four decimal places. Implementations must make Deduct atomic: concurrent
// deductions never drive a balance below zero.
type Ledger interface {
	// GetBalance returns ErrNotFound when the user has no record.
	GetBalance(ctx context.Context, userID uuid.UUID) (model.Balance, error)

	// Deduct subtracts amount if the balance covers it. It returns
	// ErrInsufficientBalance when it does not and ErrNotFound when the user
	// has no record.
	Deduct(ctx context.Context, userID uuid.UUID, amount float64) (model.Balance, error)

	// Credit adds amount, creating the record if needed.
	Credit(ctx context.Context, userID uuid.UUID, amount float64) (model.Balance, error)

	// CreditOnce is Credit keyed by an external event ID. A repeated eventID
	// leaves the balance unchanged and reports applied=false.
	CreditOnce(ctx context.Context, eventID string, userID uuid.UUID, amount float64) (bal model.Balance, applied bool, err error)

	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// OpenLedger connects to the ledger named by url. "sqlite://path" (or
// "sqlite:path") opens a local SQLite file; anything else is treated as a
// Postgres DSN and has its migrations applied.
func OpenLedger(ctx context.Context, url string, logger *slog.Logger) (Ledger, error) {
	if path, ok := sqlitePath(url); ok {
		return OpenSQLite(ctx, path, logger)
	}
	db, err := New(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

func sqlitePath(url string) (string, bool) {
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix), true
		}
	}
	return "", false
}

// roundAmount rounds to the ledger's four decimal places.
func roundAmount(v float64) float64 {
	return math.Round(v*10_000) / 10_000
}

func checkAmount(v float64) (float64, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
	}
	return roundAmount(v), nil
}
