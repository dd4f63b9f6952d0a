package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v84"

	"github.com/ashita-ai/pneuma/internal/cost"
	"github.com/ashita-ai/pneuma/internal/storage"
)

const testWebhookSecret = "whsec_test_secret"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newLedger(t *testing.T) storage.Ledger {
	t.Helper()
	ctx := context.Background()
	l, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "billing.db"), testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(ctx) })
	return l
}

func newEnabled(t *testing.T, ledger storage.Ledger) *Service {
	t.Helper()
	svc, err := New(ledger, Config{SecretKey: "sk_test_xxx", WebhookSecret: testWebhookSecret}, testLogger)
	require.NoError(t, err)
	return svc
}

// signedHeader builds a Stripe-Signature header the way Stripe does:
// HMAC-SHA256 over "<timestamp>.<payload>".
func signedHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(eventID, userID string, amountTotal int64) []byte {
	return fmt.Appendf(nil, `{
  "id": %q,
  "object": "event",
  "api_version": %q,
  "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_test_1", "object": "checkout.session", "amount_total": %d, "metadata": {"user_id": %q}}}
}`, eventID, stripe.APIVersion, amountTotal, userID)
}

func TestNewService_Enabled(t *testing.T) {
	svc := newEnabled(t, nil)
	assert.True(t, svc.Enabled())
}

func TestNewService_Disabled(t *testing.T) {
	svc, err := New(nil, Config{}, nil)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
}

func TestNewService_MissingWebhookSecret(t *testing.T) {
	_, err := New(nil, Config{SecretKey: "sk_test_xxx"}, testLogger)
	assert.Error(t, err)
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      int64
		want    int64
		wantErr bool
	}{
		{"default", 0, 500, false},
		{"minimum", 100, 100, false},
		{"maximum", 100_000, 100_000, false},
		{"below minimum", 99, 0, true},
		{"above maximum", 100_001, 0, true},
		{"negative", -500, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateCheckoutSession_Disabled(t *testing.T) {
	svc, err := New(nil, Config{}, testLogger)
	require.NoError(t, err)

	_, err = svc.CreateCheckoutSession(context.Background(), uuid.New(), 500, "https://ok", "https://cancel")
	assert.ErrorIs(t, err, ErrBillingDisabled)
}

func TestCreateCheckoutSession_InvalidAmount(t *testing.T) {
	svc := newEnabled(t, nil)

	_, err := svc.CreateCheckoutSession(context.Background(), uuid.New(), 5, "https://ok", "https://cancel")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestHandleWebhook_Disabled(t *testing.T) {
	svc, err := New(nil, Config{}, testLogger)
	require.NoError(t, err)

	status, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.ErrorIs(t, err, ErrBillingDisabled)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	svc := newEnabled(t, newLedger(t))
	body := checkoutEvent("evt_1", uuid.NewString(), 500)

	status, err := svc.HandleWebhook(context.Background(), body, signedHeader(body, "whsec_wrong", time.Now()))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Error(t, err)

	status, err = svc.HandleWebhook(context.Background(), body, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Error(t, err)
}

func TestHandleWebhook_CheckoutCompletedCreditsOnce(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	svc := newEnabled(t, ledger)
	user := uuid.New()
	body := checkoutEvent("evt_credit", user.String(), 1234)
	sig := signedHeader(body, testWebhookSecret, time.Now())

	status, err := svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	bal, err := ledger.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 12.34, bal.Amount, 1e-9)

	// Stripe retries deliveries; a second copy must not double the credit.
	status, err = svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	bal, err = ledger.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 12.34, bal.Amount, 1e-9)
}

func TestHandleWebhook_MissingUserAcknowledged(t *testing.T) {
	svc := newEnabled(t, newLedger(t))
	body := checkoutEvent("evt_nouser", "", 500)

	status, err := svc.HandleWebhook(context.Background(), body, signedHeader(body, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestHandleWebhook_InvalidUser(t *testing.T) {
	svc := newEnabled(t, newLedger(t))
	body := checkoutEvent("evt_baduser", "not-a-uuid", 500)

	status, err := svc.HandleWebhook(context.Background(), body, signedHeader(body, testWebhookSecret, time.Now()))
	assert.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandleWebhook_OtherEventsIgnored(t *testing.T) {
	svc := newEnabled(t, newLedger(t))
	body := fmt.Appendf(nil, `{"id":"evt_other","object":"event","api_version":%q,"type":"invoice.paid","data":{"object":{}}}`, stripe.APIVersion)

	status, err := svc.HandleWebhook(context.Background(), body, signedHeader(body, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	svc, err := New(ledger, Config{}, testLogger)
	require.NoError(t, err)

	user := uuid.New()
	_, err = ledger.Credit(ctx, user, 1)
	require.NoError(t, err)

	est := cost.DefaultModel().Estimate(1000, 10) // $0.045
	bal, err := svc.Gate(ctx, user, est)
	require.NoError(t, err)
	assert.InDelta(t, 0.955, bal.Amount, 1e-9)

	_, err = svc.Gate(ctx, user, cost.DefaultModel().Estimate(1_000_000, 1))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	got, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 0.955, got, 1e-9, "rejected batch must not be charged")
}

func TestGate_UnknownUser(t *testing.T) {
	svc, err := New(newLedger(t), Config{}, testLogger)
	require.NoError(t, err)

	_, err = svc.Gate(context.Background(), uuid.New(), cost.DefaultModel().Estimate(0, 0))
	assert.ErrorIs(t, err, ErrBalanceNotFound)
}

func TestGate_NoLedger(t *testing.T) {
	svc, err := New(nil, Config{}, testLogger)
	require.NoError(t, err)

	_, err = svc.Gate(context.Background(), uuid.New(), cost.DefaultModel().Estimate(1000, 10))
	assert.NoError(t, err)
}

func TestBalance_UnknownUserIsZero(t *testing.T) {
	svc, err := New(newLedger(t), Config{}, testLogger)
	require.NoError(t, err)

	got, err := svc.Balance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestCentsToDollars(t *testing.T) {
	assert.InDelta(t, 5.0, centsToDollars(500), 1e-12)
	assert.InDelta(t, 0.01, centsToDollars(1), 1e-12)
	assert.Zero(t, centsToDollars(0))
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	svc, err := New(ledger, Config{}, testLogger)
	require.NoError(t, err)
	assert.True(t, svc.GateEnabled())

	user := uuid.New()
	_, err = ledger.Credit(ctx, user, 1)
	require.NoError(t, err)

	est := cost.DefaultModel().Estimate(1000, 10)
	_, err = svc.Gate(ctx, user, est)
	require.NoError(t, err)
	require.NoError(t, svc.Refund(ctx, user, est))

	got, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)
}
