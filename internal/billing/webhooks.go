package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v84"
)

// HandleWebhook processes a Stripe webhook event. Returns the HTTP status code
// to respond with and any error. Verifies the webhook signature, then dispatches
// on event type; types other than checkout.session.completed are acknowledged
// and ignored.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, sigHeader string) (int, error) {
	if !s.enabled {
		return http.StatusServiceUnavailable, ErrBillingDisabled
	}

	event, err := stripe.ConstructEvent(body, sigHeader, s.webhookSecret)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("billing: invalid webhook signature: %w", err)
	}
	s.logger.Info("billing: webhook received", "event_id", event.ID, "type", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	default:
		return http.StatusOK, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (int, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return http.StatusBadRequest, fmt.Errorf("billing: unmarshal checkout session: %w", err)
	}

	userIDStr := sess.Metadata["user_id"]
	if userIDStr == "" {
		// Sessions created outside this service carry no user; nothing to credit.
		s.logger.Warn("billing: checkout completed without user_id", "event_id", event.ID)
		return http.StatusOK, nil
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("billing: invalid user_id: %w", err)
	}
	if s.ledger == nil {
		return http.StatusInternalServerError, fmt.Errorf("billing: no ledger configured")
	}

	credit := centsToDollars(sess.AmountTotal)
	bal, applied, err := s.ledger.CreditOnce(ctx, event.ID, userID, credit)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("billing: credit balance: %w", err)
	}
	if !applied {
		s.logger.Info("billing: duplicate checkout event ignored", "event_id", event.ID, "user_id", userID)
		return http.StatusOK, nil
	}

	s.logger.Info("billing: checkout completed, balance credited",
		"user_id", userID,
		"credit", credit,
		"balance", bal.Amount,
	)
	return http.StatusOK, nil
}

func centsToDollars(cents int64) float64 {
	return math.Round(float64(cents)/100*10_000) / 10_000
}
