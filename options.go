package pneuma

import (
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port           int
	databaseURL    string
	logger         *slog.Logger
	version        string
	inference      InferenceClient
	personas       []string
	middlewares    []Middleware
	skipDotEnv     bool
	maxConcurrency int
	concurrencySet bool
}

// WithPort overrides the TCP port from config (PNEUMA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the ledger connection string from config
// (DATABASE_URL env var). Use "sqlite://path" for a local file.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithInferenceClient replaces the OpenAI chat-completions client. Both the
// generation and the classification stage go through it, concurrently.
func WithInferenceClient(c InferenceClient) Option {
	return func(o *resolvedOptions) { o.inference = c }
}

// WithPersonas replaces the built-in persona population. Entries must be
// non-blank. Takes precedence over PNEUMA_PERSONAS_FILE.
func WithPersonas(personas []string) Option {
	return func(o *resolvedOptions) { o.personas = personas }
}

// WithMaxConcurrency caps in-flight persona calls per batch, overriding
// PNEUMA_MAX_CONCURRENCY. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *resolvedOptions) {
		o.maxConcurrency = n
		o.concurrencySet = true
	}
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithoutDotEnv stops New from reading a .env file in the working directory.
func WithoutDotEnv() Option {
	return func(o *resolvedOptions) { o.skipDotEnv = true }
}
