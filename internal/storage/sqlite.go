package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ashita-ai/pneuma/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS balances (
	user_id    TEXT PRIMARY KEY,
	balance    REAL NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS credit_events (
	event_id   TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	amount     REAL NOT NULL,
	created_at TEXT NOT NULL
);`

// SQLiteLedger is a single-file ledger for local development and the CLI.
// Writes are serialized through one connection.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Ledger = (*SQLiteLedger)(nil)

// OpenSQLite opens or creates the ledger file at path, creating parent
// directories as needed.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create ledger dir: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create sqlite schema: %w", err)
	}
	return &SQLiteLedger{db: db, logger: logger}, nil
}

func nowText() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func scanBalance(row *sql.Row, userID uuid.UUID) (model.Balance, error) {
	var (
		amount  float64
		updated string
	)
	if err := row.Scan(&amount, &updated); err != nil {
		return model.Balance{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return model.Balance{}, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return model.Balance{UserID: userID, Amount: roundAmount(amount), UpdatedAt: ts}, nil
}

// GetBalance returns a user's balance.
func (l *SQLiteLedger) GetBalance(ctx context.Context, userID uuid.UUID) (model.Balance, error) {
	b, err := scanBalance(l.db.QueryRowContext(ctx,
		`SELECT balance, updated_at FROM balances WHERE user_id = ?`, userID.String(),
	), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Balance{}, fmt.Errorf("storage: get balance %s: %w", userID, ErrNotFound)
		}
		return model.Balance{}, fmt.Errorf("storage: get balance: %w", err)
	}
	return b, nil
}

// Deduct atomically subtracts amount when the balance covers it.
func (l *SQLiteLedger) Deduct(ctx context.Context, userID uuid.UUID, amount float64) (model.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return model.Balance{}, err
	}
	if amount == 0 {
		return l.GetBalance(ctx, userID)
	}

	b, err := scanBalance(l.db.QueryRowContext(ctx,
		`UPDATE balances SET balance = ROUND(balance - ?, 4), updated_at = ?
		 WHERE user_id = ? AND balance >= ?
		 RETURNING balance, updated_at`,
		amount, nowText(), userID.String(), amount,
	), userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Balance{}, fmt.Errorf("storage: deduct: %w", err)
	}
	if _, getErr := l.GetBalance(ctx, userID); getErr != nil {
		return model.Balance{}, getErr
	}
	return model.Balance{}, fmt.Errorf("storage: deduct %.4f from %s: %w", amount, userID, ErrInsufficientBalance)
}

const sqliteCreditSQL = `INSERT INTO balances (user_id, balance, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE
	SET balance = ROUND(balances.balance + excluded.balance, 4), updated_at = excluded.updated_at
	RETURNING balance, updated_at`

// Credit adds amount to a user's balance, creating the record if needed.
func (l *SQLiteLedger) Credit(ctx context.Context, userID uuid.UUID, amount float64) (model.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return model.Balance{}, err
	}
	b, err := scanBalance(l.db.QueryRowContext(ctx, sqliteCreditSQL, userID.String(), amount, nowText()), userID)
	if err != nil {
		return model.Balance{}, fmt.Errorf("storage: credit: %w", err)
	}
	return b, nil
}

// CreditOnce records eventID and credits the balance in one transaction.
func (l *SQLiteLedger) CreditOnce(ctx context.Context, eventID string, userID uuid.UUID, amount float64) (model.Balance, bool, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return model.Balance{}, false, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Balance{}, false, fmt.Errorf("storage: credit once: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO credit_events (event_id, user_id, amount, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, userID.String(), amount, nowText(),
	)
	if err != nil {
		return model.Balance{}, false, fmt.Errorf("storage: credit once: record event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		cur, err := l.GetBalance(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return model.Balance{}, false, err
		}
		return cur, false, nil
	}

	b, err := scanBalance(tx.QueryRowContext(ctx, sqliteCreditSQL, userID.String(), amount, nowText()), userID)
	if err != nil {
		return model.Balance{}, false, fmt.Errorf("storage: credit once: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Balance{}, false, fmt.Errorf("storage: credit once: commit: %w", err)
	}
	return b, true, nil
}

// Ping checks the database file is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close releases the database handle.
func (l *SQLiteLedger) Close(_ context.Context) {
	if err := l.db.Close(); err != nil {
		l.logger.Warn("storage: close sqlite", "error", err)
	}
}
