package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultBaseURL is the OpenAI REST API root.
const DefaultBaseURL = "https://api.openai.com/v1"

var tracer = otel.Tracer("pneuma/inference")

// OpenAIClient calls the OpenAI chat completions API, or any server that
// speaks the same wire format.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // defaults to DefaultBaseURL

	// HTTPTimeout bounds a single HTTP round trip. Callers normally impose a
	// tighter per-call deadline through the context.
	HTTPTimeout time.Duration

	// MaxConnsPerHost caps open connections to the API host. 0 means no cap.
	MaxConnsPerHost int
}

// NewOpenAIClient creates a client with its own pooled transport. Large
// batches keep many requests in flight to the same host, so idle connections
// per host are raised well above the net/http default of 2.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 256
	transport.MaxIdleConnsPerHost = 256
	transport.MaxConnsPerHost = cfg.MaxConnsPerHost

	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// chatMessage.Content is either a string or a []chatPart.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toWire(msgs []Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		if len(m.Parts) == 0 {
			out[i] = chatMessage{Role: m.Role, Content: m.Content}
			continue
		}
		parts := make([]chatPart, len(m.Parts))
		for j, p := range m.Parts {
			switch p.Type {
			case PartImageURL:
				parts[j] = chatPart{Type: PartImageURL, ImageURL: &chatImageURL{URL: p.ImageURL}}
			default:
				parts[j] = chatPart{Type: PartText, Text: p.Text}
			}
		}
		out[i] = chatMessage{Role: m.Role, Content: parts}
	}
	return out
}

// Complete sends one chat completion and returns the first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "inference.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("inference.model", req.Model),
		attribute.Int("inference.max_tokens", req.MaxTokens),
	)

	text, err := c.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

func (c *OpenAIClient) complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    toWire(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai: %s: %s", result.Error.Type, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}
