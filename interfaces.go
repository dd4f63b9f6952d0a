package pneuma

import (
	"context"
	"net/http"
)

// InferenceClient sends one chat completion and returns the text of the
// first choice. When provided via WithInferenceClient, replaces the OpenAI
// client. Implementations must be safe for concurrent use: a batch of N
// personas issues up to 2N overlapping calls.
type InferenceClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
type Middleware func(http.Handler) http.Handler
