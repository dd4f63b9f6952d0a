// Package model defines the value types shared across pneuma's packages:
// ingested content, cost estimates, per-persona call results, stream events,
// ledger balances, and the HTTP API envelope.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentKind distinguishes image artifacts from text artifacts.
type ContentKind string

const (
	ContentImage ContentKind = "image"
	ContentText  ContentKind = "text"
)

// ContentArtifact is the normalized result of ingesting one uploaded file.
// It is produced once per request and is read-only for the lifetime of the
// analysis; every concurrent call reads the same value.
type ContentArtifact struct {
	Kind ContentKind `json:"type"`

	// Data is a data URI for images and the extracted text for text kinds.
	Data     string `json:"-"`
	MimeType string `json:"mime_type,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	Pages  int `json:"pages,omitempty"`

	EstimatedTokens int `json:"estimated_tokens"`
}

// Validate checks the artifact invariants the engine relies on.
func (a ContentArtifact) Validate() error {
	if a.EstimatedTokens < 1 {
		return fmt.Errorf("estimated_tokens must be at least 1 (got %d)", a.EstimatedTokens)
	}
	switch a.Kind {
	case ContentImage:
		if !strings.HasPrefix(a.Data, "data:") && !strings.HasPrefix(a.Data, "https://") {
			return fmt.Errorf("image artifact requires a data URI or https URL")
		}
		if a.Width <= 0 || a.Height <= 0 {
			return fmt.Errorf("image artifact requires positive dimensions (got %dx%d)", a.Width, a.Height)
		}
	case ContentText:
	default:
		return fmt.Errorf("unsupported content kind %q", a.Kind)
	}
	return nil
}

// CostEstimate is the derived, stateless price of a batch.
type CostEstimate struct {
	InputTokens int     `json:"input_tokens"`
	NumCalls    int     `json:"num_calls"`
	CostPerCall float64 `json:"cost_per_call"`
	TotalCost   float64 `json:"total_cost"`
	DisplayCost string  `json:"display_cost"`
}

// Answer is the normalized two-valued answer, or "error".
type Answer string

const (
	AnswerYes   Answer = "yes"
	AnswerNo    Answer = "no"
	AnswerError Answer = "error"
)

// CallStatus reports whether a persona call completed.
type CallStatus string

const (
	StatusSuccess CallStatus = "success"
	StatusError   CallStatus = "error"
)

// CallResult is one persona's outcome. Index is the 0-based submission order.
type CallResult struct {
	Index       int        `json:"index"`
	Persona     string     `json:"persona"`
	Answer      Answer     `json:"answer"`
	Explanation string     `json:"explanation"`
	Status      CallStatus `json:"status"`
}

// EventType names a stream event.
type EventType string

const (
	EventStart    EventType = "start"
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
)

// Event is one element of an analysis stream. Data is a StartPayload,
// CallResult, or CompletePayload depending on Type.
type Event struct {
	Type EventType
	Data any
}

// StartPayload opens a stream.
type StartPayload struct {
	Total int `json:"total"`
}

// CompletePayload closes a stream.
type CompletePayload struct {
	Status string `json:"status"`
}

// StartEvent builds the start event for a batch of total calls.
func StartEvent(total int) Event {
	return Event{Type: EventStart, Data: StartPayload{Total: total}}
}

// ResultEvent wraps a call result.
func ResultEvent(r CallResult) Event {
	return Event{Type: EventResult, Data: r}
}

// CompleteEvent is the terminal event of a fully resolved batch.
func CompleteEvent() Event {
	return Event{Type: EventComplete, Data: CompletePayload{Status: "done"}}
}

// Balance is a user's prepaid credit in dollars.
type Balance struct {
	UserID    uuid.UUID `json:"user_id"`
	Amount    float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
