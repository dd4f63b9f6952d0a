package model

import "time"

// APIResponse is the standard response envelope for JSON API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Ledger    string `json:"ledger"`
	Billing   string `json:"billing"`
	Personas  int    `json:"personas"`
	Uptime    int64  `json:"uptime_seconds"`
	Inference string `json:"inference"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// CheckoutRequest is the request body for POST /create-checkout.
type CheckoutRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"` // cents; 0 means the default amount.
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// BalanceResponse is returned by GET /balance/{user_id}.
type BalanceResponse struct {
	Balance float64 `json:"balance"`
}
