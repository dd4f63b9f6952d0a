package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/pneuma/internal/billing"
	"github.com/ashita-ai/pneuma/internal/inference"
	"github.com/ashita-ai/pneuma/internal/ingest"
	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/service/analysis"
	"github.com/ashita-ai/pneuma/internal/storage"
)

// multipartMemory is how much of a multipart form is held in memory before
// the rest spills to temporary files.
const multipartMemory = 8 << 20

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	analysis            *analysis.Service
	billing             *billing.Service
	ledger              storage.Ledger
	ingest              ingest.Processor
	inference           inference.Client
	chatModel           string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	frontendOrigin      string
	inferenceConfigured bool
	maxRequestBodyBytes int64
	openapiSpec         []byte

	// streams is cancelled when the server starts shutting down.
	streams context.Context
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Ledger, Inference, OpenAPISpec.
type HandlersDeps struct {
	Analysis            *analysis.Service
	Billing             *billing.Service
	Ledger              storage.Ledger
	Ingest              ingest.Processor
	Inference           inference.Client
	ChatModel           string
	Logger              *slog.Logger
	Version             string
	FrontendOrigin      string
	InferenceConfigured bool
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		analysis:            d.Analysis,
		billing:             d.Billing,
		ledger:              d.Ledger,
		ingest:              d.Ingest,
		inference:           d.Inference,
		chatModel:           d.ChatModel,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		frontendOrigin:      d.FrontendOrigin,
		inferenceConfigured: d.InferenceConfigured,
		maxRequestBodyBytes: maxBody,
		openapiSpec:         d.OpenAPISpec,
		streams:             context.Background(),
	}
}

// HandleHealth handles GET /health and GET /.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	ledgerStatus := "disabled"
	if h.ledger != nil {
		ledgerStatus = "connected"
		if err := h.ledger.Ping(r.Context()); err != nil {
			ledgerStatus = "disconnected"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	billingStatus := "disabled"
	if h.billing != nil && h.billing.Enabled() {
		billingStatus = "enabled"
	}

	inferenceStatus := "unconfigured"
	if h.inferenceConfigured {
		inferenceStatus = "configured"
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:    status,
		Service:   "pneuma-api",
		Version:   h.version,
		Ledger:    ledgerStatus,
		Billing:   billingStatus,
		Inference: inferenceStatus,
		Personas:  len(h.analysis.Population()),
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeInternalError logs err and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeRequestError maps the validation and billing errors that can reject a
// request before streaming to a 400, and anything else to a 500.
func (h *Handlers) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var ingestErr *ingest.ValidationError
	var analysisErr *analysis.ValidationError
	var maxBytesErr *http.MaxBytesError
	var inputErr *inputError

	switch {
	case errors.As(err, &ingestErr):
		code := model.ErrCodeInvalidInput
		switch ingestErr.Reason {
		case ingest.ReasonUnsupportedType:
			code = model.ErrCodeUnsupportedMediaType
		case ingest.ReasonTooLarge:
			code = model.ErrCodePayloadTooLarge
		}
		writeError(w, r, http.StatusBadRequest, code, ingestErr.Message)
	case errors.As(err, &maxBytesErr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodePayloadTooLarge, "request body too large")
	case errors.As(err, &analysisErr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, analysisErr.Field+": "+analysisErr.Message)
	case errors.As(err, &inputErr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, inputErr.msg)
	case errors.Is(err, billing.ErrInsufficientBalance):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInsufficientBalance, "Insufficient balance")
	case errors.Is(err, billing.ErrBalanceNotFound):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeNotFound, "User balance not found")
	default:
		h.writeInternalError(w, r, "request failed", err)
	}
}

// inputError is a malformed request field detected by a handler.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func badInput(msg string) error { return &inputError{msg: msg} }
