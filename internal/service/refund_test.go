package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/food-order/internal/model"
)

func deliveredPaidOrder(t *testing.T, f *fixture) *CheckoutResult {
	t.Helper()
	p := f.product(t, "Gulab Jamun", "6.25", 10)
	res := f.placeUPI(t, alice, p.ID, 4)
	require.Equal(t, model.PaymentStatusPaid, res.Order.PaymentStatus)
	f.setStatus(t, res.Order.ID, model.OrderStatusDelivered)
	return res
}

func TestRefund_ApproveScenario(t *testing.T) {
	f := newFixture(t)
	res := deliveredPaidOrder(t, f)
	key := RefundKey{OrderID: res.Order.ID}

	o, err := f.refunds.Request(as(alice), key, "missing items")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusRequested, o.Refund.Status)
	assert.True(t, o.Refund.Amount.Equal(o.TotalAmount))
	assert.NotNil(t, o.Refund.RequestedAt)

	pay, err := f.repo.Payments.GetByID(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefundRequested, pay.RefundStatus)

	o, err = f.refunds.Decide(as(admin), key, RefundApprove, "sorry about that")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusApproved, o.Refund.Status)
	assert.Equal(t, "sorry about that", o.Refund.AdminResponse)
	assert.NotNil(t, o.Refund.StatusChangedAt)
	assert.Equal(t, model.PaymentStatusRefunded, o.PaymentStatus)
	assert.Equal(t, model.OrderStatusDelivered, o.OrderStatus, "approval does not move order status")

	pay, err = f.repo.Payments.GetByID(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefundCompleted, pay.RefundStatus)
	assert.Equal(t, model.TransactionRefunded, pay.Status)
	assert.True(t, pay.RefundAmount.Equal(o.TotalAmount))
	require.Len(t, pay.Refunds, 1)
	assert.True(t, pay.Refunds[0].Amount.Equal(o.TotalAmount))

	_, err = f.refunds.Decide(as(admin), key, RefundApprove, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.refunds.Request(as(alice), key, "again")
	assert.ErrorIs(t, err, ErrConflict, "approved is terminal")
}

func TestRefund_SingleActiveCycle(t *testing.T) {
	f := newFixture(t)
	res := deliveredPaidOrder(t, f)
	key := RefundKey{OrderID: res.Order.ID}

	_, err := f.refunds.Request(as(alice), key, "cold")
	require.NoError(t, err)
	_, err = f.refunds.Request(as(alice), key, "still cold")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRefund_DenyThenRequestAgain(t *testing.T) {
	f := newFixture(t)
	res := deliveredPaidOrder(t, f)
	key := RefundKey{OrderID: res.Order.ID}

	_, err := f.refunds.Request(as(alice), key, "late")
	require.NoError(t, err)

	o, err := f.refunds.Decide(as(admin), key, RefundDeny, "delivered on time")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusDenied, o.Refund.Status)
	assert.Equal(t, "delivered on time", o.Refund.AdminResponse)
	assert.Equal(t, model.PaymentStatusPaid, o.PaymentStatus)

	pay, err := f.repo.Payments.GetByID(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, pay.Status, "denial leaves the payment untouched")
	assert.True(t, pay.RefundAmount.IsZero())
	assert.Empty(t, pay.Refunds)

	_, err = f.refunds.Decide(as(admin), key, RefundDeny, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	o, err = f.refunds.Request(as(alice), key, "really late")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusRequested, o.Refund.Status)
	assert.Equal(t, "really late", o.Refund.Reason)
	assert.Empty(t, o.Refund.AdminResponse)
}

func TestRefund_TransactionKeyResolvesSameAggregate(t *testing.T) {
	f := newFixture(t)
	res := deliveredPaidOrder(t, f)
	key := RefundKey{TransactionID: res.Payment.GatewayTransactionID}

	o, err := f.refunds.Request(as(alice), key, "wrong dish")
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, o.ID)

	o, err = f.refunds.Decide(as(admin), key, RefundApprove, "")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusApproved, o.Refund.Status)

	_, err = f.refunds.Decide(as(admin), RefundKey{OrderID: res.Order.ID}, RefundApprove, "")
	assert.ErrorIs(t, err, ErrInvalidState, "both keys reach the same refund cycle")

	_, err = f.refunds.Request(as(alice), RefundKey{TransactionID: "UPI_unknown"}, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.refunds.Request(as(alice), RefundKey{}, "x")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRefund_AccessRules(t *testing.T) {
	f := newFixture(t)
	res := deliveredPaidOrder(t, f)
	key := RefundKey{OrderID: res.Order.ID}

	_, err := f.refunds.Request(as(bob), key, "not mine")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.refunds.Request(as(alice), key, "mine")
	require.NoError(t, err)

	_, err = f.refunds.Decide(as(alice), key, RefundApprove, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.refunds.Decide(as(admin), key, "maybe", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = f.refunds.ListRequests(as(alice), "", PageQuery{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRefund_RequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Chai", "1.00", 5)
	res, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:   model.PaymentMethodCOD,
		DeliveryAddress: "x",
	})
	require.NoError(t, err)

	_, err = f.refunds.Request(as(alice), RefundKey{OrderID: res.Order.ID}, "cod")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefund_ListRequestsByStatus(t *testing.T) {
	f := newFixture(t)
	first := deliveredPaidOrder(t, f)
	second := deliveredPaidOrder(t, f)

	_, err := f.refunds.Request(as(alice), RefundKey{OrderID: first.Order.ID}, "a")
	require.NoError(t, err)
	_, err = f.refunds.Request(as(alice), RefundKey{OrderID: second.Order.ID}, "b")
	require.NoError(t, err)
	_, err = f.refunds.Decide(as(admin), RefundKey{OrderID: second.Order.ID}, RefundDeny, "")
	require.NoError(t, err)

	pending, total, err := f.refunds.ListRequests(as(admin), "", PageQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, first.Order.ID, pending[0].ID)

	denied, total, err := f.refunds.ListRequests(as(admin), model.RefundStatusDenied, PageQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, second.Order.ID, denied[0].ID)

	_, _, err = f.refunds.ListRequests(as(admin), "bogus", PageQuery{})
	assert.ErrorIs(t, err, ErrValidation)
}
