package pneuma

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxFrameBytes bounds one SSE data line. Explanations are short, but
// persona descriptions ride along in every result.
const maxFrameBytes = 1 << 20

// readStream parses SSE frames from r and hands each decoded event to fn.
// Comment lines (keepalives) are skipped.
func readStream(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var eventType string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if eventType == "" && data.Len() == 0 {
				continue
			}
			ev, err := decodeEvent(eventType, data.String())
			if err != nil {
				return err
			}
			eventType = ""
			data.Reset()
			if err := fn(ev); err != nil {
				return err
			}
			if ev.Type == EventComplete {
				return nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("pneuma: read stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}

func decodeEvent(eventType, data string) (Event, error) {
	ev := Event{Type: eventType}
	var err error
	switch eventType {
	case EventStart:
		var p struct {
			Total int `json:"total"`
		}
		err = json.Unmarshal([]byte(data), &p)
		ev.Total = p.Total
	case EventResult:
		var r Result
		err = json.Unmarshal([]byte(data), &r)
		ev.Result = &r
	case EventComplete:
		var p struct {
			Status string `json:"status"`
		}
		err = json.Unmarshal([]byte(data), &p)
		ev.Status = p.Status
	default:
		return ev, fmt.Errorf("pneuma: unknown stream event %q", eventType)
	}
	if err != nil {
		return ev, fmt.Errorf("pneuma: decode %s event: %w", eventType, err)
	}
	return ev, nil
}
