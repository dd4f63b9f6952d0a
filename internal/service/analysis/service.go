// Package analysis fans one question out to many simulated respondents and
// streams their answers back as each call completes.
//
// A batch is sampled from the persona population, then every persona call runs
// concurrently through a two-stage Executor (generate, then classify). Results
// are delivered in completion order, framed by exactly one start event and,
// unless the batch is cancelled, exactly one complete event.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/pneuma/internal/cost"
	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/persona"
	"github.com/ashita-ai/pneuma/internal/telemetry"
)

// DefaultMaxCalls caps the size of a single batch.
const DefaultMaxCalls = 1000

// Caller runs one persona call to a terminal result. *Executor is the
// production implementation.
type Caller interface {
	Execute(ctx context.Context, index int, p persona.Persona, prompt string, artifact model.ContentArtifact) model.CallResult
}

// ValidationError reports a request rejected before any event is produced.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("analysis: invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Config bounds batch size and parallelism.
type Config struct {
	// MaxCalls is the largest accepted batch. Zero means DefaultMaxCalls.
	MaxCalls int

	// MaxConcurrency caps in-flight persona calls per batch. Zero means every
	// call is launched at once.
	MaxConcurrency int
}

// contentKindKey labels the artifact kind in both batch metrics and logs.
const contentKindKey = "content_kind"

// Service is the fan-out coordinator.
type Service struct {
	caller         Caller
	sampler        *persona.Sampler
	population     persona.Population
	costModel      cost.Model
	maxCalls       int
	maxConcurrency int
	logger         *slog.Logger

	callCounter  metric.Int64Counter
	callDuration metric.Float64Histogram
	batchCounter metric.Int64Counter
}

// New creates a coordinator. population may be empty, in which case every
// request fails validation.
func New(caller Caller, sampler *persona.Sampler, population persona.Population, costModel cost.Model, cfg Config, logger *slog.Logger) *Service {
	if sampler == nil {
		sampler = persona.NewSampler(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxCalls := cfg.MaxCalls
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}

	meter := telemetry.Meter("pneuma/analysis")
	calls, _ := meter.Int64Counter("pneuma.analysis.calls",
		metric.WithDescription("Persona calls completed, by status"),
	)
	callDur, _ := meter.Float64Histogram("pneuma.analysis.call.duration",
		metric.WithDescription("Time for one persona call, both stages (ms)"),
		metric.WithUnit("ms"),
	)
	batches, _ := meter.Int64Counter("pneuma.analysis.batches",
		metric.WithDescription("Analysis batches started"),
	)

	return &Service{
		caller:         caller,
		sampler:        sampler,
		population:     population,
		costModel:      costModel,
		maxCalls:       maxCalls,
		maxConcurrency: max(cfg.MaxConcurrency, 0),
		logger:         logger,
		callCounter:    calls,
		callDuration:   callDur,
		batchCounter:   batches,
	}
}

// Population returns the personas batches are sampled from.
func (s *Service) Population() persona.Population { return s.population }

// MaxCalls returns the largest accepted batch size.
func (s *Service) MaxCalls() int { return s.maxCalls }

// Estimate prices a batch without making any inference call.
func (s *Service) Estimate(artifact model.ContentArtifact, numCalls int) (model.CostEstimate, error) {
	if err := s.validateCount(numCalls); err != nil {
		return model.CostEstimate{}, err
	}
	if err := artifact.Validate(); err != nil {
		return model.CostEstimate{}, &ValidationError{Field: "file", Message: err.Error()}
	}
	return s.costModel.EstimateArtifact(artifact, numCalls), nil
}

// Stream validates the request and, if it is acceptable, starts the batch and
// returns its event channel. Validation failures are returned synchronously
// and no events are produced.
//
// The channel is closed when the batch finishes or ctx is cancelled. The
// caller must either drain it or cancel ctx.
func (s *Service) Stream(ctx context.Context, prompt string, artifact model.ContentArtifact, numCalls int) (<-chan model.Event, error) {
	personas, err := s.prepare(prompt, artifact, numCalls)
	if err != nil {
		return nil, err
	}

	events := make(chan model.Event)
	go func() {
		defer close(events)
		_ = s.run(ctx, prompt, artifact, personas, func(ev model.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return events, nil
}

// Run is the callback form of Stream. emit is called from a single goroutine
// in event order; an emit error is treated as a lost transport and cancels
// the batch. Run returns nil only after the complete event was emitted.
func (s *Service) Run(ctx context.Context, prompt string, artifact model.ContentArtifact, numCalls int, emit func(model.Event) error) error {
	personas, err := s.prepare(prompt, artifact, numCalls)
	if err != nil {
		return err
	}
	return s.run(ctx, prompt, artifact, personas, emit)
}

func (s *Service) validateCount(numCalls int) error {
	if numCalls <= 0 {
		return &ValidationError{Field: "num_calls", Message: "must be a positive integer"}
	}
	if numCalls > s.maxCalls {
		return &ValidationError{Field: "num_calls", Message: fmt.Sprintf("must not exceed %d", s.maxCalls)}
	}
	return nil
}

// Validate runs the synchronous request checks of Stream and Run without
// starting anything. Callers that charge for a batch validate first.
func (s *Service) Validate(prompt string, artifact model.ContentArtifact, numCalls int) error {
	if err := s.validateCount(numCalls); err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return &ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	if err := artifact.Validate(); err != nil {
		return &ValidationError{Field: "file", Message: err.Error()}
	}
	if len(s.population) == 0 {
		return &ValidationError{Field: "personas", Message: "population is empty"}
	}
	return nil
}

func (s *Service) prepare(prompt string, artifact model.ContentArtifact, numCalls int) ([]persona.Persona, error) {
	if err := s.Validate(prompt, artifact, numCalls); err != nil {
		return nil, err
	}
	personas, err := s.sampler.Sample(s.population, numCalls)
	if err != nil {
		return nil, fmt.Errorf("analysis: sample personas: %w", err)
	}
	return personas, nil
}

func (s *Service) run(ctx context.Context, prompt string, artifact model.ContentArtifact, personas []persona.Persona, emit func(model.Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(personas)
	start := time.Now()
	s.batchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(contentKindKey, string(artifact.Kind))))
	s.logger.Info("analysis: batch started", "total", total, contentKindKey, string(artifact.Kind))

	if err := emit(model.StartEvent(total)); err != nil {
		return err
	}

	results := make(chan model.CallResult)
	go s.dispatch(ctx, prompt, artifact, personas, results)

	var counts [2]int // success, error
	delivered := 0
	for r := range results {
		if ctx.Err() != nil {
			break
		}
		if err := emit(model.ResultEvent(r)); err != nil {
			cancel()
			drain(results)
			s.logger.Info("analysis: batch aborted", "delivered", delivered, "total", total, "error", err)
			return err
		}
		delivered++
		if r.Status == model.StatusSuccess {
			counts[0]++
		} else {
			counts[1]++
		}
	}
	if err := ctx.Err(); err != nil {
		drain(results)
		s.logger.Info("analysis: batch cancelled", "delivered", delivered, "total", total)
		return err
	}

	if err := emit(model.CompleteEvent()); err != nil {
		return err
	}
	s.logger.Info("analysis: batch complete",
		"total", total,
		"succeeded", counts[0],
		"failed", counts[1],
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// dispatch launches one goroutine per persona and closes results once every
// call has resolved. Results produced after ctx is done are discarded.
func (s *Service) dispatch(ctx context.Context, prompt string, artifact model.ContentArtifact, personas []persona.Persona, results chan<- model.CallResult) {
	defer close(results)

	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, p := range personas {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			callStart := time.Now()
			r := s.caller.Execute(ctx, i, p, prompt, artifact)
			s.callDuration.Record(ctx, float64(time.Since(callStart).Milliseconds()))
			s.callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(r.Status))))

			select {
			case results <- r:
			case <-ctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()
}

func drain(results <-chan model.CallResult) {
	for range results {
	}
}
