package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashita-ai/pneuma/internal/inference"
	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/persona"
)

// Executor defaults.
const (
	DefaultGenerationModel       = "gpt-4o"
	DefaultClassifierModel       = "gpt-4o-mini"
	DefaultGenerationMaxTokens   = 3
	DefaultGenerationTemperature = 1.0
	DefaultClassifierMaxTokens   = 3
	DefaultCallTimeout           = 30 * time.Second
)

const reminder = "Remember: you MUST answer 'Yes' or 'No' only. No other answer is acceptable."

const classifierPrompt = "You are a classifier. Given a response, determine if it means 'yes' or 'no'. " +
	"Reply with ONLY the word 'yes' or 'no'."

// ExecutorConfig tunes the two remote calls made per persona.
type ExecutorConfig struct {
	GenerationModel       string
	ClassifierModel       string
	GenerationMaxTokens   int
	GenerationTemperature float64
	ClassifierMaxTokens   int

	// CallTimeout bounds each stage separately. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultExecutorConfig returns the production settings.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		GenerationModel:       DefaultGenerationModel,
		ClassifierModel:       DefaultClassifierModel,
		GenerationMaxTokens:   DefaultGenerationMaxTokens,
		GenerationTemperature: DefaultGenerationTemperature,
		ClassifierMaxTokens:   DefaultClassifierMaxTokens,
		CallTimeout:           DefaultCallTimeout,
	}
}

// withDefaults fills unset string and token fields. Temperature and timeout
// are taken as given since zero is meaningful for both.
func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.GenerationModel == "" {
		c.GenerationModel = DefaultGenerationModel
	}
	if c.ClassifierModel == "" {
		c.ClassifierModel = DefaultClassifierModel
	}
	if c.GenerationMaxTokens <= 0 {
		c.GenerationMaxTokens = DefaultGenerationMaxTokens
	}
	if c.ClassifierMaxTokens <= 0 {
		c.ClassifierMaxTokens = DefaultClassifierMaxTokens
	}
	return c
}

// stage is the position of one persona call in its lifecycle.
type stage int

const (
	stageGenerating stage = iota
	stageClassifying
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageGenerating:
		return "generation"
	case stageClassifying:
		return "classification"
	default:
		return "done"
	}
}

// call carries one invocation through its stages. It is owned by a single
// goroutine.
type call struct {
	index   int
	persona persona.Persona
	stage   stage
	raw     string
	answer  model.Answer
}

// Executor runs the generate-then-classify sequence for one persona.
// It is stateless between calls and safe for concurrent use.
type Executor struct {
	client inference.Client
	cfg    ExecutorConfig
	logger *slog.Logger
}

// NewExecutor creates an Executor. client must be safe for concurrent use.
func NewExecutor(client inference.Client, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// Execute answers prompt as p and always returns a terminal result. Failures
// in either stage produce a result with StatusError; nothing is retried.
func (e *Executor) Execute(ctx context.Context, index int, p persona.Persona, prompt string, artifact model.ContentArtifact) model.CallResult {
	c := &call{index: index, persona: p, stage: stageGenerating}

	for c.stage != stageDone {
		failed := c.stage
		if err := e.step(ctx, c, prompt, artifact); err != nil {
			e.logger.Warn("analysis: call failed",
				"index", index,
				"persona", p.Headline(),
				"stage", failed.String(),
				"error", err,
			)
			return model.CallResult{
				Index:       index,
				Persona:     string(p),
				Answer:      model.AnswerError,
				Explanation: fmt.Sprintf("%s: %v", failed, err),
				Status:      model.StatusError,
			}
		}
	}

	e.logger.Info("analysis: call complete",
		"index", index,
		"persona", p.Headline(),
		"raw", c.raw,
		"answer", string(c.answer),
	)
	return model.CallResult{
		Index:       index,
		Persona:     string(p),
		Answer:      c.answer,
		Explanation: c.raw,
		Status:      model.StatusSuccess,
	}
}

// step advances c by one stage.
func (e *Executor) step(ctx context.Context, c *call, prompt string, artifact model.ContentArtifact) error {
	stageCtx, cancel := e.stageContext(ctx)
	defer cancel()

	switch c.stage {
	case stageGenerating:
		raw, err := e.generate(stageCtx, c.persona, prompt, artifact)
		if err != nil {
			return err
		}
		c.raw = raw
		c.stage = stageClassifying
	case stageClassifying:
		answer, err := e.classify(stageCtx, c.raw)
		if err != nil {
			return err
		}
		c.answer = answer
		c.stage = stageDone
	}
	return nil
}

func (e *Executor) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

var errEmptyResponse = errors.New("empty response")

func (e *Executor) generate(ctx context.Context, p persona.Persona, prompt string, artifact model.ContentArtifact) (string, error) {
	raw, err := e.client.Complete(ctx, inference.Request{
		Model:       e.cfg.GenerationModel,
		Messages:    BuildMessages(p, prompt, artifact),
		MaxTokens:   e.cfg.GenerationMaxTokens,
		Temperature: e.cfg.GenerationTemperature,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", errEmptyResponse
	}
	return raw, nil
}

func (e *Executor) classify(ctx context.Context, raw string) (model.Answer, error) {
	out, err := e.client.Complete(ctx, inference.Request{
		Model: e.cfg.ClassifierModel,
		Messages: []inference.Message{
			{Role: inference.RoleSystem, Content: classifierPrompt},
			{Role: inference.RoleUser, Content: raw},
		},
		MaxTokens:   e.cfg.ClassifierMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return NormalizeAnswer(out), nil
}

// NormalizeAnswer reduces classifier output to yes or no. Anything that does
// not start with "yes" is no; there is no third outcome.
func NormalizeAnswer(s string) model.Answer {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "yes") {
		return model.AnswerYes
	}
	return model.AnswerNo
}

// BuildMessages returns the generation-stage conversation for p. Images are
// sent as an image part followed by the question; text artifacts are inlined
// ahead of the question.
func BuildMessages(p persona.Persona, prompt string, artifact model.ContentArtifact) []inference.Message {
	system := "You are simulating the perspective of the following person:\n\n" +
		string(p) + "\n\n" +
		"Answer the following yes/no question based on how this person would likely respond " +
		"given their background, values, and worldview. " +
		"You MUST answer with ONLY 'Yes' or 'No'. Nothing else. " +
		"No explanation, no reasoning, no extra words. Just 'Yes' or 'No'."

	msgs := []inference.Message{{Role: inference.RoleSystem, Content: system}}

	if artifact.Kind == model.ContentImage {
		return append(msgs, inference.Message{
			Role: inference.RoleUser,
			Parts: []inference.ContentPart{
				inference.ImagePart(artifact.Data),
				inference.TextPart(prompt + "\n\n" + reminder),
			},
		})
	}
	return append(msgs, inference.Message{
		Role:    inference.RoleUser,
		Content: "Context from uploaded file:\n\n" + artifact.Data + "\n\nQuestion: " + prompt + "\n\n" + reminder,
	})
}
