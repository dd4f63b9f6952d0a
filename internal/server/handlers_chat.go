package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ashita-ai/pneuma/internal/inference"
	"github.com/ashita-ai/pneuma/internal/model"
)

const (
	chatMaxTokens    = 500
	chatMaxBodyBytes = 64 << 10
)

// HandleChat handles POST /chat.
// Sends the form field "message" as a single user turn and returns the reply.
// Nothing is charged; the endpoint is a connectivity check for the
// generation model.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	if h.inference == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeServiceUnavailable, "inference not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, chatMaxBodyBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(chatMaxBodyBytes); err != nil {
			h.writeRequestError(w, r, formError(err))
			return
		}
	} else if err := r.ParseForm(); err != nil {
		h.writeRequestError(w, r, formError(err))
		return
	}

	message := r.FormValue("message")
	if strings.TrimSpace(message) == "" {
		h.writeRequestError(w, r, badInput("message is required"))
		return
	}

	text, err := h.inference.Complete(r.Context(), inference.Request{
		Model:       h.chatModel,
		Messages:    []inference.Message{{Role: inference.RoleUser, Content: message}},
		MaxTokens:   chatMaxTokens,
		Temperature: 1,
	})
	if err != nil {
		h.logger.Error("chat: completion failed",
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
			"model", h.chatModel,
		)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "completion failed")
		return
	}
	writeJSON(w, r, http.StatusOK, model.ChatResponse{Response: text})
}

// formError keeps body-size errors intact so they map to PAYLOAD_TOO_LARGE.
func formError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return badInput("expected a form body")
}
