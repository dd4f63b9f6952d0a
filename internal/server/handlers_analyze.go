package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/pneuma/internal/ingest"
	"github.com/ashita-ai/pneuma/internal/model"
)

// HandleEstimate handles POST /analyze/estimate.
// Prices a batch for the uploaded file without calling the inference API.
func (h *Handlers) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.readUpload(w, r)
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	numCalls, err := parseNumCalls(r.FormValue("num_calls"))
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}

	est, err := h.analysis.Estimate(artifact, numCalls)
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, est)
}

// HandleStream handles POST /analyze/stream.
//
// Everything that can reject the request (upload, form fields, balance) is
// checked before the response is committed, so those failures are ordinary
// JSON errors. Once the first byte of the event stream is written the batch
// runs to completion or until the client goes away.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.readUpload(w, r)
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	numCalls, err := parseNumCalls(r.FormValue("num_calls"))
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	prompt := r.FormValue("prompt")
	if err := h.analysis.Validate(prompt, artifact, numCalls); err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	est, err := h.analysis.Estimate(artifact, numCalls)
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}

	var userID uuid.UUID
	if raw := strings.TrimSpace(r.FormValue("user_id")); raw != "" {
		userID, err = uuid.Parse(raw)
		if err != nil {
			h.writeRequestError(w, r, badInput("user_id must be a UUID"))
			return
		}
	}

	charged := false
	if h.billing != nil && h.billing.GateEnabled() {
		if userID == uuid.Nil {
			h.writeRequestError(w, r, badInput("user_id is required"))
			return
		}
		if _, err := h.billing.Gate(r.Context(), userID, est); err != nil {
			h.writeRequestError(w, r, err)
			return
		}
		charged = true
	}
	refund := func() {
		if !charged {
			return
		}
		if err := h.billing.Refund(context.WithoutCancel(r.Context()), userID, est); err != nil {
			h.logger.Error("analysis: refund failed", "error", err, "user_id", userID, "total_cost", est.TotalCost)
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.streams, cancel)
	defer stop()

	events, err := h.analysis.Stream(ctx, prompt, artifact, numCalls)
	if err != nil {
		refund()
		h.writeRequestError(w, r, err)
		return
	}

	stream, ok := startEventStream(w)
	if !ok {
		cancel()
		refund()
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	h.logger.Info("analysis: stream started",
		"request_id", RequestIDFromContext(r.Context()),
		"num_calls", numCalls,
		"content_type", artifact.MimeType,
		"estimated_cost", est.TotalCost,
	)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("analysis: stream cancelled", "request_id", RequestIDFromContext(r.Context()))
			return
		case <-keepalive.C:
			if err := stream.keepalive(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := stream.send(ev); err != nil {
				h.logger.Info("analysis: stream write failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
				return
			}
		}
	}
}

// readUpload parses the multipart form and ingests its "file" part.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (model.ContentArtifact, error) {
	limit := h.ingest.Limit()
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return model.ContentArtifact{}, err
		}
		return model.ContentArtifact{}, badInput("expected a multipart/form-data body")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return model.ContentArtifact{}, badInput("file is required")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return model.ContentArtifact{}, badInput("failed to read file")
	}

	contentType := ingest.ResolveContentType(header.Header.Get("Content-Type"), header.Filename, data)
	return h.ingest.Process(contentType, data)
}

func parseNumCalls(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, badInput("num_calls is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badInput("num_calls must be an integer")
	}
	return n, nil
}
