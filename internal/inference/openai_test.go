package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
}

func writeChoice(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

func TestComplete_TextMessages(t *testing.T) {
	var got map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeChoice(w, "Yes")
	})

	text, err := client.Complete(context.Background(), Request{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "be terse"},
			{Role: RoleUser, Content: "ok?"},
		},
		MaxTokens:   3,
		Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "Yes", text)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 3, got["max_tokens"])
	assert.EqualValues(t, 0, got["temperature"], "zero temperature must be sent explicitly")
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": "be terse"}, msgs[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "ok?"}, msgs[1])
}

func TestComplete_MultimodalParts(t *testing.T) {
	var got struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeChoice(w, "No")
	})

	_, err := client.Complete(context.Background(), Request{
		Model: "gpt-4o",
		Messages: []Message{{
			Role:  RoleUser,
			Parts: []ContentPart{ImagePart("data:image/png;base64,AAAA"), TextPart("is it red?")},
		}},
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 1)
	assert.JSONEq(t, `[
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}},
		{"type":"text","text":"is it red?"}
	]`, string(got.Messages[0].Content))
}

func TestComplete_Non200IncludesBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}` + strings.Repeat("x", 4096)))
	})

	_, err := client.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "slow down")
	assert.Less(t, len(err.Error()), 1200, "body should be truncated")
}

func TestComplete_ErrorObject(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	})

	_, err := client.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request_error")
	assert.Contains(t, err.Error(), "bad model")
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Complete(context.Background(), Request{Model: "m"})
	assert.ErrorContains(t, err, "no choices")
}

func TestComplete_MalformedJSON(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":`))
	})

	_, err := client.Complete(context.Background(), Request{Model: "m"})
	assert.ErrorContains(t, err, "decode response")
}

func TestComplete_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, Request{Model: "m"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComplete_Concurrent(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Millisecond)
		writeChoice(w, "Yes")
	})

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := client.Complete(context.Background(), Request{Model: "m"})
			assert.NoError(t, err)
			assert.Equal(t, "Yes", text)
		}()
	}
	wg.Wait()
}

func TestNewOpenAIClient_DefaultBaseURL(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
