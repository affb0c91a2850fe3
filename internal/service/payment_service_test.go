package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/food-order/internal/model"
)

// cancellingFixture 在网关延迟期间由顾客取消自己唯一的 pending 订单
func cancellingFixture(t *testing.T) *fixture {
	t.Helper()
	var f *fixture
	cancelPending := func(context.Context, time.Duration) error {
		var o model.Order
		require.NoError(t, f.repo.DB.Where("user_id = ? AND order_status = ?", alice.UserID, model.OrderStatusPending).First(&o).Error)
		_, err := f.orders.Cancel(as(alice), o.ID, "changed my mind")
		require.NoError(t, err)
		return nil
	}
	f = newFixture(t, WithSleeper(cancelPending))
	return f
}

func capturedAfterCancel(t *testing.T, f *fixture) (*model.Order, *model.Payment, error) {
	t.Helper()
	p := f.product(t, "Thali", "12.00", 5)
	res, err := f.orders.PlaceOrder(as(alice), PlaceOrderInput{
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:   model.PaymentMethodUPI,
		DeliveryAddress: "221B Baker Street",
		UPI:             &UPIInput{ID: "alice@okaxis", App: "gpay"},
	})
	require.NotNil(t, res)

	var captured model.Payment
	require.NoError(t, f.repo.DB.Where("order_id = ?", res.Order.ID).First(&captured).Error)
	order, gerr := f.repo.Orders.GetByID(context.Background(), res.Order.ID)
	require.NoError(t, gerr)
	return order, &captured, err
}

func TestCharge_OrderCancelledMidCharge_QueuesRefund(t *testing.T) {
	f := cancellingFixture(t)
	order, captured, err := capturedAfterCancel(t, f)

	require.ErrorIs(t, err, ErrReconciliation)
	assert.Contains(t, err.Error(), captured.GatewayTransactionID)

	assert.Equal(t, model.OrderStatusCancelled, order.OrderStatus)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Nil(t, order.PaymentID)
	assert.Equal(t, model.TransactionCompleted, captured.Status)
	assert.Equal(t, model.PaymentRefundRequested, captured.RefundStatus)

	var ev model.Outbox
	require.NoError(t, f.repo.DB.Where("order_id = ? AND event_type = ?", order.ID, model.EventRefundRequested).First(&ev).Error)
	var payload OrderEventPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, captured.GatewayTransactionID, payload.TransactionID)
	assert.Contains(t, f.activity.actions(), "payment_orphaned")

	key := RefundKey{TransactionID: captured.GatewayTransactionID}
	_, err = f.refunds.Request(as(alice), key, "charged for a cancelled order")
	assert.ErrorIs(t, err, ErrConflict, "refund is already queued")

	o, err := f.refunds.Decide(as(admin), key, RefundApprove, "returned to source")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusNone, o.Refund.Status, "order refund cycle untouched")

	pay, err := f.repo.Payments.GetByID(context.Background(), captured.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionRefunded, pay.Status)
	assert.Equal(t, model.PaymentRefundCompleted, pay.RefundStatus)
	assert.True(t, pay.RefundAmount.Equal(captured.Amount))
	require.Len(t, pay.Refunds, 1)

	_, err = f.refunds.Decide(as(admin), key, RefundApprove, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	stock, _ := f.stock(t, order.Items[0].ProductID)
	assert.Equal(t, 5, stock, "cancel restored the reservation")
}

func TestCharge_OrphanRefundDeniedThenRequestedAgain(t *testing.T) {
	f := cancellingFixture(t)
	_, captured, err := capturedAfterCancel(t, f)
	require.ErrorIs(t, err, ErrReconciliation)
	key := RefundKey{TransactionID: captured.GatewayTransactionID}

	_, err = f.refunds.Decide(as(alice), key, RefundDeny, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.refunds.Decide(as(admin), key, RefundDeny, "collected in store")
	require.NoError(t, err)
	pay, err := f.repo.Payments.GetByID(context.Background(), captured.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefundDenied, pay.RefundStatus)
	assert.Equal(t, model.TransactionCompleted, pay.Status, "deny keeps the capture")

	_, err = f.refunds.Request(as(bob), key, "not mine")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.refunds.Request(as(alice), key, "still not received")
	require.NoError(t, err)
	pay, err = f.repo.Payments.GetByID(context.Background(), captured.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefundRequested, pay.RefundStatus)
}
