// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Ledger settings. Postgres DSN, or sqlite://path for a local file.
	// Empty disables the balance gate.
	DatabaseURL string

	// Inference settings.
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GenerationModel string
	ClassifierModel string
	CallTimeout     time.Duration
	MaxConcurrency  int // 0 = one goroutine per call.
	MaxCalls        int

	// Cost model.
	InputCostPerMillion  float64
	OutputCostPerMillion float64
	AssumedOutputTokens  int
	PromptOverheadTokens int

	// Ingest settings.
	MaxUploadBytes int64
	PersonasFile   string // Empty selects the built-in population.

	// Stripe billing settings.
	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendOrigin      string // Checkout success/cancel redirect base.

	// CORS: comma-separated origins; "*" allows any.
	CORSAllowedOrigins []string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		DatabaseURL:         envStr("DATABASE_URL", ""),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       envStr("PNEUMA_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GenerationModel:     envStr("PNEUMA_GENERATION_MODEL", "gpt-4o"),
		ClassifierModel:     envStr("PNEUMA_CLASSIFIER_MODEL", "gpt-4o-mini"),
		PersonasFile:        envStr("PNEUMA_PERSONAS_FILE", ""),
		StripeSecretKey:     envStr("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: envStr("STRIPE_WEBHOOK_SECRET", ""),
		FrontendOrigin:      envStr("FRONTEND_ORIGIN", "http://localhost:5174"),
		CORSAllowedOrigins:  envList("PNEUMA_CORS_ALLOWED_ORIGINS", []string{"*"}),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "pneuma"),
		LogLevel:            envStr("PNEUMA_LOG_LEVEL", "info"),
	}

	// BACKEND_PORT is the older name for the listen port.
	port, err := envInt("BACKEND_PORT", 8000)
	collect(err)
	cfg.Port, err = envInt("PNEUMA_PORT", port)
	collect(err)

	cfg.ReadTimeout, err = envDuration("PNEUMA_READ_TIMEOUT", 30*time.Second)
	collect(err)
	// Streams disable their own write deadline; this bounds the JSON endpoints.
	cfg.WriteTimeout, err = envDuration("PNEUMA_WRITE_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = envDuration("PNEUMA_SHUTDOWN_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.CallTimeout, err = envDuration("PNEUMA_CALL_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.MaxConcurrency, err = envInt("PNEUMA_MAX_CONCURRENCY", 0)
	collect(err)
	cfg.MaxCalls, err = envInt("PNEUMA_MAX_CALLS", 1000)
	collect(err)
	cfg.InputCostPerMillion, err = envFloat("PNEUMA_INPUT_COST_PER_MILLION", 2.50)
	collect(err)
	cfg.OutputCostPerMillion, err = envFloat("PNEUMA_OUTPUT_COST_PER_MILLION", 10.00)
	collect(err)
	cfg.AssumedOutputTokens, err = envInt("PNEUMA_ASSUMED_OUTPUT_TOKENS", 200)
	collect(err)
	cfg.PromptOverheadTokens, err = envInt("PNEUMA_PROMPT_OVERHEAD_TOKENS", 200)
	collect(err)
	maxUpload, err := envInt("PNEUMA_MAX_UPLOAD_BYTES", 20<<20)
	collect(err)
	cfg.MaxUploadBytes = int64(maxUpload)
	cfg.OTELInsecure, err = envBool("PNEUMA_OTEL_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PNEUMA_PORT must be between 1 and 65535 (got %d)", c.Port))
	}
	if c.MaxCalls <= 0 {
		errs = append(errs, fmt.Errorf("PNEUMA_MAX_CALLS must be positive"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("PNEUMA_MAX_CONCURRENCY must not be negative"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PNEUMA_CALL_TIMEOUT must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("PNEUMA_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.InputCostPerMillion < 0 || c.OutputCostPerMillion < 0 {
		errs = append(errs, fmt.Errorf("cost rates must not be negative"))
	}
	if c.AssumedOutputTokens < 0 || c.PromptOverheadTokens < 0 {
		errs = append(errs, fmt.Errorf("token allowances must not be negative"))
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
