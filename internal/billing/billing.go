// Package billing sells prepaid analysis credit through Stripe Checkout and
// gates each batch on the user's ledger balance. If Stripe is not configured
// (no secret key), checkout and webhook endpoints return 503 while the
// balance gate keeps working against the ledger.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/ashita-ai/pneuma/internal/storage"
)

// Checkout amount bounds, in cents.
const (
	DefaultAmountCents int64 = 500
	MinAmountCents     int64 = 100
	MaxAmountCents     int64 = 100_000
)

// ProductName is the line item shown on the hosted checkout page.
const ProductName = "Pneuma Analysis Credits"

// Sentinel errors.
var (
	ErrBillingDisabled     = errors.New("billing not configured")
	ErrInvalidAmount       = errors.New("invalid checkout amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceNotFound     = errors.New("user balance not found")
)

// Service wraps Stripe API calls and the balance ledger.
type Service struct {
	client        *stripe.Client
	ledger        storage.Ledger
	logger        *slog.Logger
	webhookSecret string
	enabled       bool
}

// Config holds Stripe configuration.
type Config struct {
	SecretKey     string
	WebhookSecret string
}

// New creates a billing service. If cfg.SecretKey is empty, the service
// operates in disabled mode. Returns an error if billing is enabled without
// a webhook secret, since credits could then never be applied.
func New(ledger storage.Ledger, cfg Config, logger *slog.Logger) (*Service, error) {
	enabled := cfg.SecretKey != ""
	if enabled && cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("billing: STRIPE_WEBHOOK_SECRET is required when billing is enabled")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var client *stripe.Client
	if enabled {
		client = stripe.NewClient(cfg.SecretKey)
	}

	return &Service{
		client:        client,
		ledger:        ledger,
		logger:        logger,
		webhookSecret: cfg.WebhookSecret,
		enabled:       enabled,
	}, nil
}

// Enabled returns true if Stripe is configured.
func (s *Service) Enabled() bool { return s.enabled }

// CheckAmount applies the default and validates the purchase bounds.
func CheckAmount(cents int64) (int64, error) {
	if cents == 0 {
		return DefaultAmountCents, nil
	}
	if cents < MinAmountCents || cents > MaxAmountCents {
		return 0, fmt.Errorf("%w: %d cents (allowed %d-%d)", ErrInvalidAmount, cents, MinAmountCents, MaxAmountCents)
	}
	return cents, nil
}

// CreateCheckoutSession creates a one-time Stripe Checkout payment that
// credits the user's balance once the webhook confirms it. amountCents of 0
// selects DefaultAmountCents.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, amountCents int64, successURL, cancelURL string) (string, error) {
	if !s.enabled {
		return "", ErrBillingDisabled
	}
	amount, err := CheckAmount(amountCents)
	if err != nil {
		return "", fmt.Errorf("billing: %w", err)
	}

	sess, err := s.client.V1CheckoutSessions.Create(ctx, &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(ProductName),
					},
					UnitAmount: stripe.Int64(amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	s.logger.Info("billing: checkout session created", "user_id", userID, "amount_cents", amount)
	return sess.URL, nil
}
