package pneuma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": msg},
		"meta":  map[string]any{"request_id": "req-1"},
	})
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty BaseURL")
	}
}

func TestEstimate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze/estimate", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		if got := r.FormValue("num_calls"); got != "10" {
			t.Errorf("num_calls = %q, want 10", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "hello" || hdr.Filename != "q.txt" {
			t.Errorf("upload = %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("part content type = %q", ct)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": CostEstimate{
			InputTokens: 202, NumCalls: 10, CostPerCall: 0.0025, TotalCost: 0.0251, DisplayCost: "$0.03",
		}})
	})
	c := newTestClient(t, mux)

	est, err := c.Estimate(context.Background(), File{Name: "q.txt", ContentType: "text/plain", Data: []byte("hello")}, 10)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.InputTokens != 202 || est.NumCalls != 10 || est.DisplayCost != "$0.03" {
		t.Errorf("unexpected estimate: %+v", est)
	}
}

func TestStreamDeliversEventsInOrder(t *testing.T) {
	user := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze/stream", func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("user_id"); got != user.String() {
			t.Errorf("user_id = %q", got)
		}
		if got := r.FormValue("prompt"); got != "Buy?" {
			t.Errorf("prompt = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: start\ndata: {\"total\":2}\n\n")
		fmt.Fprint(w, ":keepalive\n\n")
		fmt.Fprint(w, "event: result\ndata: {\"index\":1,\"persona\":\"Bo\",\"answer\":\"no\",\"explanation\":\"No\",\"status\":\"success\"}\n\n")
		fmt.Fprint(w, "event: result\ndata: {\"index\":0,\"persona\":\"Ann\",\"answer\":\"error\",\"explanation\":\"timeout\",\"status\":\"error\"}\n\n")
		fmt.Fprint(w, "event: complete\ndata: {\"status\":\"done\"}\n\n")
	})
	c := newTestClient(t, mux)

	var got []Event
	err := c.Stream(context.Background(), StreamRequest{
		File:     File{Name: "q.txt", Data: []byte("hi")},
		Prompt:   "Buy?",
		NumCalls: 2,
		UserID:   user,
	}, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d events, want 4", len(got))
	}
	if got[0].Type != EventStart || got[0].Total != 2 {
		t.Errorf("start = %+v", got[0])
	}
	if r := got[1].Result; r == nil || r.Index != 1 || r.Answer != "no" || !r.Succeeded() {
		t.Errorf("first result = %+v", got[1].Result)
	}
	if r := got[2].Result; r == nil || r.Succeeded() || r.Answer != "error" {
		t.Errorf("second result = %+v", got[2].Result)
	}
	if got[3].Type != EventComplete || got[3].Status != "done" {
		t.Errorf("complete = %+v", got[3])
	}
}

func TestStreamInsufficientBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze/stream", func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "Insufficient balance")
	})
	c := newTestClient(t, mux)

	called := false
	err := c.Stream(context.Background(), StreamRequest{File: File{Data: []byte("x")}, Prompt: "q", NumCalls: 1},
		func(Event) error { called = true; return nil })
	if !IsInsufficientBalance(err) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !IsInvalidInput(err) {
		t.Error("expected a 400")
	}
	if called {
		t.Error("callback must not run for a rejected request")
	}
}

func TestStreamCallbackErrorStops(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze/stream", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "event: start\ndata: {\"total\":1}\n\n")
		fmt.Fprint(w, "event: result\ndata: {\"index\":0,\"answer\":\"yes\",\"status\":\"success\"}\n\n")
	})
	c := newTestClient(t, mux)

	stop := errors.New("stop")
	var n int
	err := c.Stream(context.Background(), StreamRequest{File: File{Data: []byte("x")}, Prompt: "q", NumCalls: 1},
		func(Event) error { n++; return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if n != 1 {
		t.Errorf("callback ran %d times, want 1", n)
	}
}

func TestStreamTruncated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze/stream", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "event: start\ndata: {\"total\":3}\n\n")
	})
	c := newTestClient(t, mux)

	err := c.Stream(context.Background(), StreamRequest{File: File{Data: []byte("x")}, Prompt: "q", NumCalls: 3},
		func(Event) error { return nil })
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadStreamUnknownEvent(t *testing.T) {
	err := readStream(strings.NewReader("event: bogus\ndata: {}\n\n"), func(Event) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "unknown stream event") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBalance(t *testing.T) {
	user := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /balance/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != user.String() {
			t.Errorf("path id = %q", r.PathValue("id"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"balance": 4.955}})
	})
	c := newTestClient(t, mux)

	bal, err := c.Balance(context.Background(), user)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 4.955 {
		t.Errorf("balance = %v", bal)
	}
}

func TestCreateCheckout(t *testing.T) {
	user := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create-checkout", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["user_id"] != user.String() || body["amount"] != float64(1000) {
			t.Errorf("body = %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"url": "https://checkout.example/s/1"}})
	})
	c := newTestClient(t, mux)

	url, err := c.CreateCheckout(context.Background(), user, 1000)
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if url != "https://checkout.example/s/1" {
		t.Errorf("url = %q", url)
	}
}

func TestCreateCheckoutUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create-checkout", func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "billing not configured")
	})
	c := newTestClient(t, mux)

	_, err := c.CreateCheckout(context.Background(), uuid.New(), 0)
	if !IsUnavailable(err) {
		t.Fatalf("expected 503, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "billing not configured" {
		t.Errorf("unexpected error detail: %v", err)
	}
}

func TestNonEnvelopeError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.Health(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Code != "Bad Gateway" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
