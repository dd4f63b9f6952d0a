package pneuma

import (
	"encoding/json"

	"github.com/google/uuid"
)

// File is an upload. ContentType may be empty, in which case the server
// infers it from Name and the content.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// StreamRequest describes one poll.
type StreamRequest struct {
	File     File
	Prompt   string
	NumCalls int

	// UserID is charged for the batch. Required when the server has a ledger.
	UserID uuid.UUID
}

// CostEstimate is the server's price for a batch.
type CostEstimate struct {
	InputTokens int     `json:"input_tokens"`
	NumCalls    int     `json:"num_calls"`
	CostPerCall float64 `json:"cost_per_call"`
	TotalCost   float64 `json:"total_cost"`
	DisplayCost string  `json:"display_cost"`
}

// Event types sent on an analysis stream.
const (
	EventStart    = "start"
	EventResult   = "result"
	EventComplete = "complete"
)

// Event is one frame of an analysis stream. Exactly one of Total (start),
// Result (result) and Status (complete) is meaningful, according to Type.
type Event struct {
	Type   string
	Total  int
	Result *Result
	Status string
}

// Result is one persona's answer.
type Result struct {
	Index       int    `json:"index"`
	Persona     string `json:"persona"`
	Answer      string `json:"answer"` // "yes", "no" or "error"
	Explanation string `json:"explanation"`
	Status      string `json:"status"` // "success" or "error"
}

// Succeeded reports whether the persona produced a classified answer.
func (r Result) Succeeded() bool { return r.Status == "success" }

// Health is the server's health report.
type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Ledger    string `json:"ledger"`
	Billing   string `json:"billing"`
	Inference string `json:"inference"`
	Personas  int    `json:"personas"`
	Uptime    int64  `json:"uptime_seconds"`
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
