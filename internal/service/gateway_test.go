package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/food-order/internal/model"
)

func fixedClock() time.Time { return time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC) }

func charge(g *GatewaySimulator, method model.PaymentMethod, card *CardInput) *model.Payment {
	return g.Charge(context.Background(), ChargeRequest{
		OrderID: "o1",
		UserID:  "u1",
		Amount:  decimal.RequireFromString("25.00"),
		Method:  method,
		UPI:     &UPIInput{ID: "alice@okaxis", App: "phonepe"},
		Card:    card,
	})
}

func TestGateway_COD(t *testing.T) {
	g := NewGatewaySimulator(time.Hour, time.Second, WithOutcome(AlwaysFail))
	p := charge(g, model.PaymentMethodCOD, nil)

	assert.Equal(t, model.TransactionPending, p.Status)
	assert.Equal(t, model.GatewayCOD, p.Gateway)
	assert.True(t, strings.HasPrefix(p.GatewayTransactionID, "COD_"))
	assert.Empty(t, p.FailureReason)
}

func TestGateway_UPIOutcome(t *testing.T) {
	ok := NewGatewaySimulator(0, time.Second, WithSleeper(noSleep), WithOutcome(AlwaysSucceed))
	p := charge(ok, model.PaymentMethodUPI, nil)
	assert.Equal(t, model.TransactionCompleted, p.Status)
	assert.Equal(t, model.GatewayDummyUPI, p.Gateway)
	assert.Equal(t, "alice@okaxis", p.UPI.ID)
	assert.True(t, strings.HasPrefix(p.GatewayTransactionID, "UPI_"))
	require.NotNil(t, p.ProcessedAt)

	bad := NewGatewaySimulator(0, time.Second, WithSleeper(noSleep), WithOutcome(AlwaysFail))
	p = charge(bad, model.PaymentMethodUPI, nil)
	assert.Equal(t, model.TransactionFailed, p.Status)
	assert.Equal(t, ReasonUPIDeclined, p.FailureReason)
}

func TestGateway_Timeout(t *testing.T) {
	g := NewGatewaySimulator(time.Hour, 20*time.Millisecond, WithOutcome(AlwaysSucceed))
	start := time.Now()
	p := charge(g, model.PaymentMethodUPI, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, model.TransactionFailed, p.Status)
	assert.Equal(t, ReasonGatewayTimeout, p.FailureReason)
}

func TestGateway_CallerCancelled(t *testing.T) {
	g := NewGatewaySimulator(time.Hour, time.Hour, WithOutcome(AlwaysSucceed))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := g.Charge(ctx, ChargeRequest{OrderID: "o1", UserID: "u1", Amount: decimal.NewFromInt(1), Method: model.PaymentMethodUPI})

	assert.Equal(t, model.TransactionCancelled, p.Status)
	assert.Equal(t, ReasonRequestCancelled, p.FailureReason)
}

func TestGateway_CardChecksAreDeterministic(t *testing.T) {
	called := false
	outcome := func(model.PaymentMethod) bool { called = true; return true }
	g := NewGatewaySimulator(0, time.Second, WithSleeper(noSleep), WithOutcome(outcome), WithClock(fixedClock))

	cases := []struct {
		name   string
		card   CardInput
		reason string
	}{
		{"short number", CardInput{Number: "4111 1111", ExpiryMonth: 12, ExpiryYear: 30, CVV: "123"}, ReasonCardNumber},
		{"letters", CardInput{Number: "4111 1111 1111 111x", ExpiryMonth: 12, ExpiryYear: 30, CVV: "123"}, ReasonCardNumber},
		{"expired year", CardInput{Number: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 25, CVV: "123"}, ReasonCardExpired},
		{"expired month", CardInput{Number: "4111111111111111", ExpiryMonth: 5, ExpiryYear: 26, CVV: "123"}, ReasonCardExpired},
		{"short cvv", CardInput{Number: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 30, CVV: "12"}, ReasonCardCVV},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card := tc.card
			p := charge(g, model.PaymentMethodCard, &card)
			assert.Equal(t, model.TransactionFailed, p.Status)
			assert.Equal(t, tc.reason, p.FailureReason)
		})
	}
	assert.False(t, called, "failed checks must not reach the outcome decision")
}

func TestGateway_CardSuccessStoresLast4Only(t *testing.T) {
	g := NewGatewaySimulator(0, time.Second, WithSleeper(noSleep), WithOutcome(AlwaysSucceed), WithClock(fixedClock))
	card := &CardInput{Number: "5500 0000 0000 0004", ExpiryMonth: 6, ExpiryYear: 26, CVV: "1234", Type: "Debit"}
	p := charge(g, model.PaymentMethodCard, card)

	assert.Equal(t, model.TransactionCompleted, p.Status)
	assert.Equal(t, "0004", p.Card.Last4)
	assert.Equal(t, "Mastercard", p.Card.Brand)
	assert.Equal(t, "debit", p.Card.Type)
	assert.True(t, strings.HasPrefix(p.GatewayTransactionID, "CARD_"))
	assert.NotContains(t, string(p.GatewayResponse), "5500000000000004")
}

func TestCardBrand(t *testing.T) {
	assert.Equal(t, "Visa", CardBrand("4111111111111111"))
	assert.Equal(t, "Mastercard", CardBrand("5500000000000004"))
	assert.Equal(t, "Mastercard", CardBrand("2221000000000009"))
	assert.Equal(t, "Amex", CardBrand("378282246310005"))
	assert.Equal(t, "Discover", CardBrand("6011111111111117"))
	assert.Equal(t, "Unknown", CardBrand("9999999999999"))
	assert.Equal(t, "Unknown", CardBrand(""))
}

func TestRandomOutcome_Extremes(t *testing.T) {
	never := RandomOutcome(0, 0)
	always := RandomOutcome(1, 1)
	for i := 0; i < 50; i++ {
		assert.False(t, never(model.PaymentMethodUPI))
		assert.False(t, never(model.PaymentMethodCard))
		assert.True(t, always(model.PaymentMethodUPI))
		assert.True(t, always(model.PaymentMethodCard))
	}
}
