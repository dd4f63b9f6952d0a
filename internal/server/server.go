// Package server implements the pneuma HTTP API: upload ingestion, cost
// estimates, the analysis event stream, and the credit purchase endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/pneuma/internal/billing"
	"github.com/ashita-ai/pneuma/internal/inference"
	"github.com/ashita-ai/pneuma/internal/ingest"
	"github.com/ashita-ai/pneuma/internal/service/analysis"
	"github.com/ashita-ai/pneuma/internal/storage"
)

// Server is the pneuma HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Billing, Ledger, Inference, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Analysis *analysis.Service
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Billing *billing.Service
	Ledger  storage.Ledger

	Ingest              ingest.Processor
	Inference           inference.Client
	ChatModel           string
	InferenceConfigured bool

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	FrontendOrigin      string
	CORSAllowedOrigins  []string

	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// Middlewares wrap the whole chain; the first is outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Analysis:            cfg.Analysis,
		Billing:             cfg.Billing,
		Ledger:              cfg.Ledger,
		Ingest:              cfg.Ingest,
		Inference:           cfg.Inference,
		ChatModel:           cfg.ChatModel,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		FrontendOrigin:      cfg.FrontendOrigin,
		InferenceConfigured: cfg.InferenceConfigured,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Event streams are cancelled as soon as shutdown begins; Shutdown
	// would otherwise wait on them until its deadline.
	streamsCtx, cancelStreams := context.WithCancel(context.Background())
	h.streams = streamsCtx

	mux := http.NewServeMux()

	// Analysis.
	mux.HandleFunc("POST /analyze/estimate", h.HandleEstimate)
	mux.HandleFunc("POST /analyze/stream", h.HandleStream)
	mux.HandleFunc("POST /chat", h.HandleChat)

	// Credits. The webhook is authenticated by its Stripe signature.
	mux.HandleFunc("POST /create-checkout", h.HandleCreateCheckout)
	mux.HandleFunc("POST /webhook/stripe", h.HandleStripeWebhook)
	mux.HandleFunc("GET /balance/{user_id}", h.HandleBalance)

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /{$}", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	httpServer.RegisterOnShutdown(cancelStreams)

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		handlers:   h,
		logger:     cfg.Logger,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. Open event streams are
// cancelled along with their batches.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
