package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashita-ai/pneuma/internal/config"
	"github.com/ashita-ai/pneuma/internal/cost"
	"github.com/ashita-ai/pneuma/internal/ingest"
	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/persona"
	"github.com/ashita-ai/pneuma/internal/storage"
)

// loadConfig reads the same environment the server does.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func costModel(cfg config.Config) cost.Model {
	return cost.Model{
		InputRatePerMillion:  cfg.InputCostPerMillion,
		OutputRatePerMillion: cfg.OutputCostPerMillion,
		AssumedOutputTokens:  cfg.AssumedOutputTokens,
		PromptOverheadTokens: cfg.PromptOverheadTokens,
	}
}

// readArtifact ingests a local file the way an upload would be.
func readArtifact(path string, maxBytes int64) (model.ContentArtifact, error) {
	proc := ingest.Processor{MaxBytes: maxBytes}
	f, err := os.Open(path) //nolint:gosec // user-supplied CLI argument
	if err != nil {
		return model.ContentArtifact{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, proc.Limit()+1))
	if err != nil {
		return model.ContentArtifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	ct := ingest.ResolveContentType("", filepath.Base(path), data)
	if err := proc.Validate(ct, int64(len(data))); err != nil {
		return model.ContentArtifact{}, fmt.Errorf("%s: %w", path, err)
	}
	return proc.Process(ct, data)
}

func loadPopulation(file string) (persona.Population, error) {
	if file == "" {
		return persona.Default(), nil
	}
	return persona.LoadFile(file)
}

// openLedger connects to url, falling back to DATABASE_URL.
func openLedger(ctx context.Context, url string, logger *slog.Logger) (storage.Ledger, error) {
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		url = cfg.DatabaseURL
	}
	if url == "" {
		return nil, fmt.Errorf("no ledger configured: set DATABASE_URL or pass --database-url")
	}
	return storage.OpenLedger(ctx, url, logger)
}

// cliLogger writes warnings and errors to stderr so stdout stays parseable.
func cliLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
