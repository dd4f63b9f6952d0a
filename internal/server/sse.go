package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ashita-ai/pneuma/internal/model"
)

// keepaliveInterval spaces comment frames on a quiet stream so proxies do
// not close it while slow inference calls are still running.
const keepaliveInterval = 15 * time.Second

// formatSSE formats one event as a Server-Sent Events frame.
func formatSSE(eventType, data string) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}

// encodeEvent renders an analysis event as an SSE frame with a JSON payload.
func encodeEvent(ev model.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("server: encode %s event: %w", ev.Type, err)
	}
	return formatSSE(string(ev.Type), string(data)), nil
}

// eventStream writes analysis events to a live response.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// startEventStream commits the response as text/event-stream. It returns
// false if the writer cannot stream, in which case nothing has been written.
func startEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A batch can outlive the server's WriteTimeout; the stream has no
	// write deadline of its own.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	return &eventStream{w: w, flusher: flusher}, true
}

func (s *eventStream) send(ev model.Event) error {
	frame, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) keepalive() error {
	if _, err := s.w.Write([]byte(":keepalive\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
