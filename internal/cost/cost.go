// Package cost prices an analysis batch before any inference call is made.
package cost

import (
	"fmt"
	"strconv"

	"github.com/ashita-ai/pneuma/internal/model"
)

// Default pricing, in US dollars per million tokens.
const (
	DefaultInputRatePerMillion  = 2.50
	DefaultOutputRatePerMillion = 10.00
	DefaultAssumedOutputTokens  = 200
	DefaultPromptOverheadTokens = 200
)

// Model holds the rates and constants used to price a batch. The zero value
// prices everything at $0; use DefaultModel for production rates.
type Model struct {
	InputRatePerMillion  float64
	OutputRatePerMillion float64

	// AssumedOutputTokens is charged per call regardless of the real output
	// size, since the estimate precedes the call.
	AssumedOutputTokens int

	// PromptOverheadTokens covers the persona and instruction text wrapped
	// around the artifact.
	PromptOverheadTokens int
}

// DefaultModel returns the standard pricing.
func DefaultModel() Model {
	return Model{
		InputRatePerMillion:  DefaultInputRatePerMillion,
		OutputRatePerMillion: DefaultOutputRatePerMillion,
		AssumedOutputTokens:  DefaultAssumedOutputTokens,
		PromptOverheadTokens: DefaultPromptOverheadTokens,
	}
}

// Estimate prices numCalls calls of inputTokens input tokens each. The
// display string is formatted from the unrounded total.
func (m Model) Estimate(inputTokens, numCalls int) model.CostEstimate {
	perCall := float64(inputTokens)*(m.InputRatePerMillion/1_000_000) +
		float64(m.AssumedOutputTokens)*(m.OutputRatePerMillion/1_000_000)
	total := perCall * float64(numCalls)
	return model.CostEstimate{
		InputTokens: inputTokens,
		NumCalls:    numCalls,
		CostPerCall: round(perCall, 6),
		TotalCost:   round(total, 4),
		DisplayCost: FormatCost(total),
	}
}

// EstimateArtifact prices a batch over an ingested artifact, adding the fixed
// prompt overhead to the artifact's own token estimate. Both the pre-flight
// estimate and the billing gate go through here so they always agree.
func (m Model) EstimateArtifact(a model.ContentArtifact, numCalls int) model.CostEstimate {
	return m.Estimate(a.EstimatedTokens+m.PromptOverheadTokens, numCalls)
}

// FormatCost renders a dollar amount. Amounts under one cent keep four
// decimals so they never display as $0.00.
func FormatCost(c float64) string {
	if c < 0.01 {
		return fmt.Sprintf("$%.4f", c)
	}
	return fmt.Sprintf("$%.2f", c)
}

// round rounds the exact binary value of v to places decimals, so 0.0020025
// (stored just below the midpoint) rounds down.
func round(v float64, places int) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return r
}
