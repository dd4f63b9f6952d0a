// Package pneuma is the embeddable persona polling service. An App ingests
// an uploaded artifact, asks a sampled population of simulated respondents
// a yes/no question about it, and streams their answers as they resolve.
//
// Basic usage:
//
//	app, err := pneuma.New(pneuma.WithVersion("1.0.0"))
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
package pneuma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/pneuma/api"
	"github.com/ashita-ai/pneuma/internal/billing"
	"github.com/ashita-ai/pneuma/internal/config"
	"github.com/ashita-ai/pneuma/internal/cost"
	"github.com/ashita-ai/pneuma/internal/inference"
	"github.com/ashita-ai/pneuma/internal/ingest"
	"github.com/ashita-ai/pneuma/internal/persona"
	"github.com/ashita-ai/pneuma/internal/server"
	"github.com/ashita-ai/pneuma/internal/service/analysis"
	"github.com/ashita-ai/pneuma/internal/storage"
	"github.com/ashita-ai/pneuma/internal/telemetry"
)

// App is a fully wired pneuma server. Create with New, start with Run.
type App struct {
	cfg          config.Config
	ledger       storage.Ledger
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New builds an App from environment configuration, applying opts on top.
// Resources opened here (the ledger and telemetry exporters) are released by
// Shutdown, or immediately when New fails.
func New(opts ...Option) (app *App, err error) {
	o := &resolvedOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if !o.skipDotEnv {
		_ = godotenv.Load()
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("pneuma: load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.concurrencySet {
		cfg.MaxConcurrency = o.maxConcurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pneuma: %w", err)
	}

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("pneuma: telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = otelShutdown(context.Background())
		}
	}()

	population, err := loadPopulation(o, cfg)
	if err != nil {
		return nil, fmt.Errorf("pneuma: %w", err)
	}

	var ledger storage.Ledger
	if cfg.DatabaseURL != "" {
		ledger, err = storage.OpenLedger(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("pneuma: ledger: %w", err)
		}
		defer func() {
			if err != nil {
				ledger.Close(context.Background())
			}
		}()
	} else {
		logger.Warn("DATABASE_URL not set; balance gate disabled, every batch runs free")
	}

	billingSvc, err := billing.New(ledger, billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("pneuma: %w", err)
	}

	var client inference.Client
	inferenceConfigured := true
	if o.inference != nil {
		client = inferenceAdapter{o.inference}
	} else {
		inferenceConfigured = cfg.OpenAIAPIKey != ""
		if !inferenceConfigured {
			logger.Warn("OPENAI_API_KEY not set; every persona call will fail")
		}
		client = inference.NewOpenAIClient(inference.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
	}

	execCfg := analysis.DefaultExecutorConfig()
	execCfg.GenerationModel = cfg.GenerationModel
	execCfg.ClassifierModel = cfg.ClassifierModel
	execCfg.CallTimeout = cfg.CallTimeout
	executor := analysis.NewExecutor(client, execCfg, logger)

	costModel := cost.Model{
		InputRatePerMillion:  cfg.InputCostPerMillion,
		OutputRatePerMillion: cfg.OutputCostPerMillion,
		AssumedOutputTokens:  cfg.AssumedOutputTokens,
		PromptOverheadTokens: cfg.PromptOverheadTokens,
	}
	analysisSvc := analysis.New(executor, persona.NewSampler(nil), population, costModel, analysis.Config{
		MaxCalls:       cfg.MaxCalls,
		MaxConcurrency: cfg.MaxConcurrency,
	}, logger)

	middlewares := make([]func(http.Handler) http.Handler, len(o.middlewares))
	for i, mw := range o.middlewares {
		middlewares[i] = mw
	}

	srv := server.New(server.ServerConfig{
		Analysis:            analysisSvc,
		Logger:              logger,
		Billing:             billingSvc,
		Ledger:              ledger,
		Ingest:              ingest.Processor{MaxBytes: cfg.MaxUploadBytes},
		Inference:           client,
		ChatModel:           cfg.GenerationModel,
		InferenceConfigured: inferenceConfigured,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		FrontendOrigin:      cfg.FrontendOrigin,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		OpenAPISpec:         api.OpenAPISpec,
		Middlewares:         middlewares,
	})

	logger.Info("pneuma configured",
		"version", version,
		"port", cfg.Port,
		"personas", len(population),
		"ledger", ledger != nil,
		"billing", billingSvc.Enabled(),
		"max_calls", cfg.MaxCalls,
		"max_concurrency", cfg.MaxConcurrency,
	)

	return &App{
		cfg:          cfg,
		ledger:       ledger,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

func loadPopulation(o *resolvedOptions, cfg config.Config) (persona.Population, error) {
	switch {
	case o.personas != nil:
		return persona.FromStrings(o.personas)
	case cfg.PersonasFile != "":
		return persona.LoadFile(cfg.PersonasFile)
	default:
		return persona.Default(), nil
	}
}

// Handler returns the root HTTP handler, for mounting in another server or
// for tests. Run need not be called.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. Either way the App is shut down before Run returns.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("pneuma listening", "port", a.cfg.Port, "version", a.version)
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("pneuma: server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, cancels open analysis streams, and
// releases the ledger and telemetry exporters.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pneuma: http shutdown: %w", err))
	}
	if a.ledger != nil {
		a.ledger.Close(ctx)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pneuma: telemetry shutdown: %w", err))
		}
	}
	a.logger.Info("pneuma stopped")
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.ShutdownTimeout > 0 {
		return a.cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

// inferenceAdapter exposes a public InferenceClient as the internal client.
type inferenceAdapter struct {
	c InferenceClient
}

func (a inferenceAdapter) Complete(ctx context.Context, req inference.Request) (string, error) {
	msgs := make([]ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ChatMessage{Role: m.Role, Content: m.Content}
		for _, p := range m.Parts {
			msgs[i].Parts = append(msgs[i].Parts, ChatPart{Text: p.Text, ImageURL: p.ImageURL})
		}
	}
	return a.c.Complete(ctx, ChatRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
}
