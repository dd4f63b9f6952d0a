package pneuma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the pneuma server (e.g. "http://localhost:8000").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a client with no
	// overall timeout is used, since a stream lasts as long as its batch.
	HTTPClient *http.Client

	// Timeout applies to non-streaming requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the pneuma API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pneuma: BaseURL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
		timeout: timeout,
	}, nil
}

// Health fetches the server's health report. An unhealthy server answers
// 503, which is returned as an *Error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Estimate prices a poll of numCalls personas over file. Nothing is charged.
func (c *Client) Estimate(ctx context.Context, file File, numCalls int) (*CostEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := multipartBody(file, map[string]string{
		"num_calls": strconv.Itoa(numCalls),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/estimate", body)
	if err != nil {
		return nil, fmt.Errorf("pneuma: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var resp CostEstimate
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream runs a poll and calls fn for every event in arrival order, ending
// with the complete event. A non-nil error from fn stops reading and closes
// the connection, which cancels the remaining calls on the server. Request
// errors, including an insufficient balance, are returned before fn is called.
// A stream that ends before its complete event returns io.ErrUnexpectedEOF.
func (c *Client) Stream(ctx context.Context, sr StreamRequest, fn func(Event) error) error {
	fields := map[string]string{
		"prompt":    sr.Prompt,
		"num_calls": strconv.Itoa(sr.NumCalls),
	}
	if sr.UserID != uuid.Nil {
		fields["user_id"] = sr.UserID.String()
	}
	body, contentType, err := multipartBody(sr.File, fields)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/stream", body)
	if err != nil {
		return fmt.Errorf("pneuma: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pneuma: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	return readStream(resp.Body, fn)
}

// Balance returns a user's prepaid balance in dollars.
func (c *Client) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var resp struct {
		Balance float64 `json:"balance"`
	}
	if err := c.get(ctx, "/balance/"+userID.String(), &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// CreateCheckout starts a hosted checkout for amountCents and returns the URL
// to send the user to. Zero selects the server's default amount.
func (c *Client) CreateCheckout(ctx context.Context, userID uuid.UUID, amountCents int64) (string, error) {
	body := map[string]any{"user_id": userID.String()}
	if amountCents != 0 {
		body["amount"] = amountCents
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/create-checkout", body, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func multipartBody(file File, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := file.Name
	if name == "" {
		name = "upload"
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if file.ContentType != "" {
		hdr.Set("Content-Type", file.ContentType)
	} else {
		hdr.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, "", fmt.Errorf("pneuma: build upload: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("pneuma: build upload: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("pneuma: build upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("pneuma: build upload: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("pneuma: create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("pneuma: marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("pneuma: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pneuma: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("pneuma: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("pneuma: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
