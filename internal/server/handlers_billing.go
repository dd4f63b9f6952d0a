package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/pneuma/internal/billing"
	"github.com/ashita-ai/pneuma/internal/model"
)

// HandleCreateCheckout handles POST /create-checkout.
// Creates a Stripe Checkout session that tops up the user's balance.
func (h *Handlers) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil || !h.billing.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeServiceUnavailable, "billing not configured")
		return
	}

	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "user_id must be a UUID")
		return
	}

	origin := strings.TrimRight(h.frontendOrigin, "/")
	url, err := h.billing.CreateCheckoutSession(r.Context(), userID, req.Amount,
		origin+"?payment=success", origin+"?payment=cancel")
	if errors.Is(err, billing.ErrInvalidAmount) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("billing checkout: create session", "error", err, "user_id", userID)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeInternalError, "failed to create checkout session")
		return
	}

	writeJSON(w, r, http.StatusOK, model.CheckoutResponse{URL: url})
}

// HandleStripeWebhook handles POST /webhook/stripe.
// Stripe signs the payload with the webhook secret; the billing service
// verifies the signature before crediting anything.
func (h *Handlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil || !h.billing.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeServiceUnavailable, "billing not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxRequestBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "failed to read body")
		return
	}

	status, whErr := h.billing.HandleWebhook(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if whErr != nil {
		h.logger.Error("billing webhook failed", "error", whErr, "status", status)
		code := model.ErrCodeInternalError
		msg := "failed to update balance"
		if status == http.StatusBadRequest {
			code = model.ErrCodeInvalidInput
			msg = "invalid webhook payload or signature"
		}
		writeError(w, r, status, code, msg)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleBalance handles GET /balance/{user_id}.
// Users who have never bought credit have a balance of zero.
func (h *Handlers) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "user_id must be a UUID")
		return
	}

	var balance float64
	if h.billing != nil {
		balance, err = h.billing.Balance(r.Context(), userID)
		if err != nil {
			h.writeInternalError(w, r, "failed to read balance", err)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, model.BalanceResponse{Balance: balance})
}
