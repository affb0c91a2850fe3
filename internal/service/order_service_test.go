package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/food-order/internal/model"
)

func TestPlaceOrder_CODScenario(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "Masala Dosa", "5.00", 10)
	b := f.product(t, "Thali", "10.00", 4)

	res, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{
		Items: []LineRequest{
			{ProductID: a.ID, Quantity: 3},
			{ProductID: b.ID, Quantity: 1, Notes: "extra pickle"},
		},
		PaymentMethod:   model.PaymentMethodCOD,
		DeliveryAddress: "42 MG Road",
	})
	require.NoError(t, err)

	o := res.Order
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("25.00")), o.TotalAmount.String())
	assert.Equal(t, model.OrderStatusConfirmed, o.OrderStatus)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)
	require.NotNil(t, o.PaymentID)
	assert.Equal(t, res.Payment.ID, *o.PaymentID)
	assert.Equal(t, res.Payment.GatewayTransactionID, o.TransactionID)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "extra pickle", o.Items[1].Notes)
	assert.NotNil(t, o.EstimatedDeliveryTime)
	assert.Equal(t, alice.Email, o.ContactEmail)

	assert.Equal(t, model.TransactionPending, res.Payment.Status)
	assert.Equal(t, model.GatewayCOD, res.Payment.Gateway)

	stockA, ordersA := f.stock(t, a.ID)
	stockB, _ := f.stock(t, b.ID)
	assert.Equal(t, 7, stockA)
	assert.Equal(t, 3, stockB)
	assert.Equal(t, 1, ordersA)

	assert.Contains(t, f.activity.actions(), "order_placed")
	assert.Contains(t, f.activity.actions(), "order_confirmed")
}

func TestPlaceOrder_UPISuccessMarksPaid(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Biryani", "12.50", 5)

	res := f.placeUPI(t, alice, p.ID, 2)

	assert.Equal(t, model.TransactionCompleted, res.Payment.Status)
	assert.Equal(t, model.PaymentStatusPaid, res.Order.PaymentStatus)
	assert.Equal(t, model.OrderStatusConfirmed, res.Order.OrderStatus)
	assert.True(t, res.Order.TotalAmount.Equal(decimal.RequireFromString("25.00")))

	var events []model.Outbox
	require.NoError(t, f.repo.DB.Order("created_at").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventOrderCreated, events[0].EventType)
	assert.Equal(t, model.EventOrderPaid, events[1].EventType)
}

func TestPlaceOrder_ExpiredCardLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Idli", "4.00", 5)

	res, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:   model.PaymentMethodCard,
		DeliveryAddress: "42 MG Road",
		Card:            &CardInput{Number: "4111111111111111", ExpiryMonth: 1, ExpiryYear: 20, CVV: "123"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.TransactionFailed, res.Payment.Status)
	assert.Equal(t, ReasonCardExpired, res.Payment.FailureReason)
	assert.Equal(t, model.PaymentStatusPending, res.Order.PaymentStatus)
	assert.Equal(t, model.OrderStatusPending, res.Order.OrderStatus)
	assert.Nil(t, res.Order.PaymentID)

	stored, err := f.repo.Payments.GetByTransactionID(context.Background(), res.Payment.GatewayTransactionID)
	require.NoError(t, err)
	require.NotNil(t, stored, "failed attempts are persisted")
	assert.Equal(t, model.TransactionFailed, stored.Status)
	assert.Contains(t, f.activity.actions(), "payment_failed")
}

func TestPlaceOrder_RetryAfterFailureViaPaymentRoute(t *testing.T) {
	declined := true
	outcome := func(model.PaymentMethod) bool { return !declined }
	f := newFixture(t, WithOutcome(outcome))
	p := f.product(t, "Vada", "3.00", 5)

	res := f.placeUPI(t, alice, p.ID, 1)
	require.Equal(t, model.TransactionFailed, res.Payment.Status)

	declined = false
	pay, err := f.payments.Pay(as(alice), PayInput{OrderID: res.Order.ID, Method: model.PaymentMethodUPI, UPI: &UPIInput{ID: "alice@okaxis", App: "gpay"}})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, pay.Status)

	_, err = f.payments.Pay(as(alice), PayInput{OrderID: res.Order.ID, Method: model.PaymentMethodUPI, UPI: &UPIInput{ID: "alice@okaxis", App: "gpay"}})
	assert.ErrorIs(t, err, ErrInvalidState, "confirmed order no longer accepts payments")

	list, total, err := f.payments.ListMine(as(alice), PageQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}

func TestPay_RejectsWrongMethodAndStranger(t *testing.T) {
	f := newFixture(t, WithOutcome(AlwaysFail))
	p := f.product(t, "Vada", "3.00", 5)
	res := f.placeUPI(t, alice, p.ID, 1)

	_, err := f.payments.Pay(as(alice), PayInput{OrderID: res.Order.ID, Method: model.PaymentMethodCard, Card: validCard()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.payments.Pay(as(bob), PayInput{OrderID: res.Order.ID, Method: model.PaymentMethodUPI})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.payments.Pay(as(alice), PayInput{OrderID: "missing", Method: model.PaymentMethodUPI})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.payments.Get(as(bob), res.Payment.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	got, err := f.payments.Get(as(admin), res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Payment.ID, got.ID)
}

func TestPlaceOrder_CatalogGuardErrorsRollBack(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "Samosa", "2.00", 10)
	low := f.product(t, "Lassi", "3.00", 1)
	off := f.product(t, "Kulfi", "3.00", 10)
	require.NoError(t, f.repo.DB.Model(off).Update("is_available", false).Error)

	place := func(lines ...LineRequest) error {
		_, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{Items: lines, PaymentMethod: model.PaymentMethodCOD, DeliveryAddress: "x"})
		return err
	}

	assert.ErrorIs(t, place(LineRequest{ProductID: a.ID, Quantity: 2}, LineRequest{ProductID: low.ID, Quantity: 2}), ErrInsufficientStock)
	assert.ErrorIs(t, place(LineRequest{ProductID: a.ID, Quantity: 2}, LineRequest{ProductID: off.ID, Quantity: 1}), ErrUnavailable)
	assert.ErrorIs(t, place(LineRequest{ProductID: a.ID, Quantity: 2}, LineRequest{ProductID: "ghost", Quantity: 1}), ErrNotFound)
	assert.ErrorIs(t, place(LineRequest{ProductID: a.ID, Quantity: 0}), ErrValidation)
	assert.ErrorIs(t, place(), ErrValidation)

	stock, orders := f.stock(t, a.ID)
	assert.Equal(t, 10, stock, "earlier lines are rolled back with the failing one")
	assert.Equal(t, 0, orders)

	var count int64
	require.NoError(t, f.repo.DB.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Samosa", "2.00", 10)
	lines := []LineRequest{{ProductID: p.ID, Quantity: 1}}

	_, err := f.orders.PlaceOrder(context.Background(), PlaceOrderInput{Items: lines, PaymentMethod: model.PaymentMethodCOD, DeliveryAddress: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.orders.PlaceOrder(as(alice), PlaceOrderInput{Items: lines, PaymentMethod: "bitcoin", DeliveryAddress: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.PlaceOrder(as(alice), PlaceOrderInput{Items: lines, PaymentMethod: model.PaymentMethodCOD})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.PlaceOrder(as(alice), PlaceOrderInput{Items: lines, PaymentMethod: model.PaymentMethodCard, DeliveryAddress: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPlaceOrder_ConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Limited Special", "9.00", 5)

	const buyers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		soldOut   int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{
				Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
				PaymentMethod:   model.PaymentMethodCOD,
				DeliveryAddress: "x",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, soldOut)
	stock, _ := f.stock(t, p.ID)
	assert.Equal(t, 0, stock)
}

func TestPlaceOrder_TotalIsPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Paneer", "8.00", 5)
	res := f.placeUPI(t, alice, p.ID, 2)

	require.NoError(t, f.repo.DB.Model(p).Update("price", decimal.RequireFromString("20.00")).Error)

	got, err := f.orders.Get(as(alice), res.Order.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("16.00")))
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("8.00")))
}

func TestPlaceOrder_ReconciliationWhenPaymentCannotBeStored(t *testing.T) {
	var f *fixture
	outcome := func(model.PaymentMethod) bool {
		require.NoError(t, f.repo.DB.Migrator().DropTable(&model.PaymentRefund{}, &model.Payment{}))
		return true
	}
	f = newFixture(t, WithOutcome(outcome))
	p := f.product(t, "Chaat", "6.00", 5)

	res, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:   model.PaymentMethodUPI,
		DeliveryAddress: "x",
		UPI:             &UPIInput{ID: "alice@okaxis", App: "gpay"},
	})
	require.ErrorIs(t, err, ErrReconciliation)
	require.NotNil(t, res)
	assert.Contains(t, err.Error(), res.Order.ID)

	stock, _ := f.stock(t, p.ID)
	assert.Equal(t, 4, stock, "committed order keeps its reservation")
}

type idemEntry struct {
	fingerprint, orderID string
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]idemEntry
}

func (m *memIdempotency) Begin(_ context.Context, key, fingerprint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		m.keys[key] = idemEntry{fingerprint: fingerprint}
		return "", nil
	}
	if v.fingerprint != fingerprint || v.orderID == "" {
		return "", ErrConflict
	}
	return v.orderID, nil
}

func (m *memIdempotency) Complete(_ context.Context, key, fingerprint, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = idemEntry{fingerprint, orderID}
	return nil
}

func (m *memIdempotency) Abort(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func TestPlaceOrder_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	idem := &memIdempotency{keys: map[string]idemEntry{}}
	f.orders = NewOrderService(f.repo, f.payments, f.activity, idem)
	p := f.product(t, "Naan", "2.00", 5)
	in := PlaceOrderInput{
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 2}},
		PaymentMethod:   model.PaymentMethodCOD,
		DeliveryAddress: "x",
		IdempotencyKey:  "checkout-1",
	}

	first, err := f.orders.PlaceOrder(as(alice), in)
	require.NoError(t, err)
	second, err := f.orders.PlaceOrder(as(alice), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	require.NotNil(t, second.Payment)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	stock, _ := f.stock(t, p.ID)
	assert.Equal(t, 3, stock, "replay must not reserve again")

	changed := in
	changed.Items = []LineRequest{{ProductID: p.ID, Quantity: 1}}
	_, err = f.orders.PlaceOrder(as(alice), changed)
	assert.ErrorIs(t, err, ErrConflict, "same key with a different body")
	stock, _ = f.stock(t, p.ID)
	assert.Equal(t, 3, stock)

	in.Items = []LineRequest{{ProductID: p.ID, Quantity: 99}}
	in.IdempotencyKey = "checkout-2"
	_, err = f.orders.PlaceOrder(as(alice), in)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, exists := idem.keys[alice.UserID+":checkout-2"]
	assert.False(t, exists, "failed checkout releases its key")
}

func TestPlaceOrderInput_Fingerprint(t *testing.T) {
	base := PlaceOrderInput{
		Items:           []LineRequest{{ProductID: "p1", Quantity: 2}},
		PaymentMethod:   model.PaymentMethodCard,
		DeliveryAddress: "221B Baker Street",
		Card:            &CardInput{Number: "4111 1111 1111 1111", ExpiryMonth: 12, ExpiryYear: 30, CVV: "123"},
		IdempotencyKey:  "k1",
	}
	same := base
	same.IdempotencyKey = "k2"
	same.Card = &CardInput{Number: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 30, CVV: "999"}
	assert.Equal(t, base.Fingerprint(), same.Fingerprint(), "key and CVV are not part of the request identity")

	more := base
	more.Items = []LineRequest{{ProductID: "p1", Quantity: 3}}
	assert.NotEqual(t, base.Fingerprint(), more.Fingerprint())

	elsewhere := base
	elsewhere.DeliveryAddress = "742 Evergreen Terrace"
	assert.NotEqual(t, base.Fingerprint(), elsewhere.Fingerprint())
}

func TestCancel_RestocksOnceAndRejectsRepeat(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Pav Bhaji", "7.00", 5)
	res := f.placeUPI(t, alice, p.ID, 3)

	cancelled, err := f.orders.Cancel(as(alice), res.Order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.OrderStatus)
	assert.Equal(t, "changed my mind", cancelled.CancellationReason)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, model.RefundStatusNone, cancelled.Refund.Status, "cancel never opens a refund")

	stock, orders := f.stock(t, p.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 1, orders, "total_orders is not reversed")

	_, err = f.orders.Cancel(as(alice), res.Order.ID, "again")
	assert.ErrorIs(t, err, ErrConflict)
	stock, _ = f.stock(t, p.ID)
	assert.Equal(t, 5, stock, "repeat cancel has no side effect")
}

func TestCancel_DeliveredAndForeign(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Pav Bhaji", "7.00", 5)
	res := f.placeUPI(t, alice, p.ID, 1)

	_, err := f.orders.Cancel(as(bob), res.Order.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	f.setStatus(t, res.Order.ID, model.OrderStatusDelivered)
	_, err = f.orders.Cancel(as(alice), res.Order.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	stock, _ := f.stock(t, p.ID)
	assert.Equal(t, 4, stock)
}

func TestUpdateStatus_ForwardOnly(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Dal", "5.00", 5)
	res := f.placeUPI(t, alice, p.ID, 1)
	id := res.Order.ID

	_, err := f.orders.UpdateStatus(as(alice), id, model.OrderStatusPreparing)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.orders.UpdateStatus(as(admin), id, "teleported")
	assert.ErrorIs(t, err, ErrValidation)

	o, err := f.orders.UpdateStatus(as(admin), id, model.OrderStatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPreparing, o.OrderStatus)

	_, err = f.orders.UpdateStatus(as(admin), id, model.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidState)

	o, err = f.orders.UpdateStatus(as(admin), id, model.OrderStatusDelivered)
	require.NoError(t, err)
	assert.NotNil(t, o.ActualDeliveryTime)

	_, err = f.orders.UpdateStatus(as(admin), id, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateStatus_UnpaidOrderStaysPending(t *testing.T) {
	f := newFixture(t, WithOutcome(AlwaysFail))
	p := f.product(t, "Dal", "5.00", 5)
	res := f.placeUPI(t, alice, p.ID, 1)
	require.Equal(t, model.TransactionFailed, res.Payment.Status)
	require.Equal(t, model.OrderStatusPending, res.Order.OrderStatus)

	for _, next := range []model.OrderStatus{model.OrderStatusConfirmed, model.OrderStatusDelivered} {
		_, err := f.orders.UpdateStatus(as(admin), res.Order.ID, next)
		assert.ErrorIs(t, err, ErrInvalidState, "to %s", next)
	}
	o, err := f.orders.Get(as(admin), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, o.OrderStatus)

	o, err = f.orders.UpdateStatus(as(admin), res.Order.ID, model.OrderStatusCancelled)
	require.NoError(t, err, "unpaid orders can still be cancelled")
	assert.Equal(t, model.OrderStatusCancelled, o.OrderStatus)
}

func TestUpdateStatus_CancelledByAdminRestocks(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Dal", "5.00", 5)
	res := f.placeUPI(t, alice, p.ID, 2)

	o, err := f.orders.UpdateStatus(as(admin), res.Order.ID, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, o.OrderStatus)
	assert.Equal(t, "cancelled by admin", o.CancellationReason)
	stock, _ := f.stock(t, p.ID)
	assert.Equal(t, 5, stock)
}

func TestReview_OnceAfterDelivery(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Kheer", "4.00", 5)
	res := f.placeUPI(t, alice, p.ID, 1)
	id := res.Order.ID

	_, err := f.orders.Review(as(alice), id, 5, "lovely")
	assert.ErrorIs(t, err, ErrInvalidState)

	f.setStatus(t, id, model.OrderStatusDelivered)

	_, err = f.orders.Review(as(alice), id, 6, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.orders.Review(as(bob), id, 4, "")
	assert.ErrorIs(t, err, ErrForbidden)

	o, err := f.orders.Review(as(alice), id, 5, "lovely")
	require.NoError(t, err)
	assert.Equal(t, 5, o.Review.Rating)
	assert.Equal(t, "lovely", o.Review.Comment)

	_, err = f.orders.Review(as(alice), id, 3, "changed")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := f.orders.Get(as(alice), id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Review.Rating)
}

func TestGetAndListMine(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Tea", "1.00", 50)
	for i := 0; i < 3; i++ {
		f.placeUPI(t, alice, p.ID, 1)
	}
	other := f.placeUPI(t, bob, p.ID, 1)

	list, total, err := f.orders.ListMine(as(alice), PageQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 2)

	_, err = f.orders.Get(as(alice), other.Order.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.Get(as(admin), other.Order.ID)
	assert.NoError(t, err)
	_, err = f.orders.Get(as(alice), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPageQuery_Normalize(t *testing.T) {
	q := PageQuery{Page: 0, PageSize: 1000}.Normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 100, q.PageSize)
	assert.Equal(t, 0, q.offset())
	assert.Equal(t, 40, PageQuery{Page: 3, PageSize: 20}.offset())
}
