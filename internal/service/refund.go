package service

import (
	"context"
	"fmt"
	"time"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
)

// RefundKey 退款定位键：订单 ID 或支付流水号，二选一
type RefundKey struct {
	OrderID       string
	TransactionID string
}

type RefundDecision string

const (
	RefundApprove RefundDecision = "approved"
	RefundDeny    RefundDecision = "denied"
)

// RefundCoordinator 统一维护订单退款子记录与关联支付的退款字段
type RefundCoordinator struct {
	repo     *repository.Repository
	activity ActivitySink
	mailer   Mailer
	now      func() time.Time
}

func NewRefundCoordinator(repo *repository.Repository, activity ActivitySink, mailer Mailer) *RefundCoordinator {
	if activity == nil {
		activity = nopActivity{}
	}
	return &RefundCoordinator{repo: repo, activity: activity, mailer: mailer, now: time.Now}
}

// resolve 将任一键解析为订单及其关联的支付（可能为空）。
// 按流水号定位到未关联订单、但已扣款的支付时返回该支付，orphan 为 true。
func (c *RefundCoordinator) resolve(ctx context.Context, key RefundKey) (order *model.Order, payment *model.Payment, orphan bool, err error) {
	orderID := key.OrderID
	var byTxn *model.Payment
	if orderID == "" {
		if key.TransactionID == "" {
			return nil, nil, false, fmt.Errorf("%w: order id or transaction id is required", ErrValidation)
		}
		byTxn, err = c.repo.Payments.GetByTransactionID(ctx, key.TransactionID)
		if err != nil {
			return nil, nil, false, err
		}
		if byTxn == nil {
			return nil, nil, false, fmt.Errorf("%w: transaction %s", ErrNotFound, key.TransactionID)
		}
		orderID = byTxn.OrderID
	}

	order, err = c.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, false, err
	}
	if order == nil {
		return nil, nil, false, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if byTxn != nil && (order.PaymentID == nil || *order.PaymentID != byTxn.ID) &&
		(byTxn.Status == model.TransactionCompleted || byTxn.RefundStatus != model.PaymentRefundNone) {
		return order, byTxn, true, nil
	}
	if order.PaymentID == nil {
		return order, nil, false, nil
	}
	payment, err = c.repo.Payments.GetByID(ctx, *order.PaymentID)
	if err != nil {
		return nil, nil, false, err
	}
	return order, payment, false, nil
}

// Request 订单所有者发起退款；已有未被拒绝的退款周期时返回 ErrConflict
func (c *RefundCoordinator) Request(ctx context.Context, key RefundKey, reason string) (*model.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, payment, orphan, err := c.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if order.UserID != id.UserID {
		return nil, ErrForbidden
	}
	if orphan {
		return c.requestOrphan(ctx, order, payment, reason)
	}
	if order.Refund.Active() {
		return nil, fmt.Errorf("%w: refund already %s", ErrConflict, order.Refund.Status)
	}
	if order.PaymentStatus != model.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, order.PaymentStatus)
	}

	now := c.now()
	refund := model.RefundDetails{
		Status:          model.RefundStatusRequested,
		Amount:          order.TotalAmount,
		Reason:          reason,
		RequestedAt:     &now,
		StatusChangedAt: &now,
	}
	err = c.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Orders.UpdateRefund(ctx, order.ID,
			[]model.RefundStatus{model.RefundStatusNone, model.RefundStatusDenied}, refund, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: refund already requested", ErrConflict)
		}
		if payment != nil {
			if err := tx.Payments.SetRefundStatus(ctx, payment.ID, model.PaymentRefundRequested); err != nil {
				return err
			}
		}
		requested := *order
		requested.Refund = refund
		return appendOrderEvent(ctx, tx, model.EventRefundRequested, &requested, reason, now)
	})
	if err != nil {
		return nil, err
	}

	c.activity.Record(id.UserID, "refund_requested", map[string]any{"order_id": order.ID, "reason": reason})
	return c.reload(ctx, order.ID)
}

// Decide 管理员批准或拒绝处于 requested 的退款。
// 批准时对已完成的关联支付做全额退款；拒绝不修改支付记录。
func (c *RefundCoordinator) Decide(ctx context.Context, key RefundKey, decision RefundDecision, adminResponse string) (*model.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if decision != RefundApprove && decision != RefundDeny {
		return nil, fmt.Errorf("%w: unknown refund decision %q", ErrValidation, decision)
	}
	order, payment, orphan, err := c.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if orphan {
		return c.decideOrphan(ctx, order, payment, decision, adminResponse)
	}
	if order.Refund.Status != model.RefundStatusRequested {
		return nil, fmt.Errorf("%w: refund is %q, expected requested", ErrInvalidState, order.Refund.Status)
	}

	now := c.now()
	refund := order.Refund
	refund.Status = model.RefundStatus(decision)
	refund.StatusChangedAt = &now
	refund.AdminResponse = adminResponse

	refundPayment := decision == RefundApprove && payment != nil && payment.Refundable()
	extra := map[string]any{}
	if refundPayment {
		extra["payment_status"] = model.PaymentStatusRefunded
	}

	err = c.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Orders.UpdateRefund(ctx, order.ID, []model.RefundStatus{model.RefundStatusRequested}, refund, extra)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: refund was decided concurrently", ErrInvalidState)
		}
		if refundPayment {
			ok, err := tx.Payments.ApplyRefund(ctx, payment.ID, order.TotalAmount, refund.Reason, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: payment %s is not refundable", ErrInvalidState, payment.GatewayTransactionID)
			}
		}
		decided := *order
		decided.Refund = refund
		evType := model.EventRefundDenied
		if decision == RefundApprove {
			evType = model.EventRefundApproved
			if refundPayment {
				decided.PaymentStatus = model.PaymentStatusRefunded
			}
		}
		return appendOrderEvent(ctx, tx, evType, &decided, adminResponse, now)
	})
	if err != nil {
		return nil, err
	}

	c.activity.Record(order.UserID, "refund_"+string(decision), map[string]any{
		"order_id": order.ID, "amount": order.TotalAmount.StringFixed(2),
	})
	if order.ContactEmail != "" {
		body := fmt.Sprintf("Your refund of %s for order %s was %s.", order.TotalAmount.StringFixed(2), order.ID, decision)
		if adminResponse != "" {
			body += " " + adminResponse
		}
		sendMail(c.mailer, order.ContactEmail, fmt.Sprintf("Refund %s", decision), body)
	}
	return c.reload(ctx, order.ID)
}

// requestOrphan 对未关联订单的已扣款支付重新发起退款（例如此前被拒绝）
func (c *RefundCoordinator) requestOrphan(ctx context.Context, order *model.Order, payment *model.Payment, reason string) (*model.Order, error) {
	switch payment.RefundStatus {
	case model.PaymentRefundRequested, model.PaymentRefundApproved, model.PaymentRefundCompleted:
		return nil, fmt.Errorf("%w: refund already %s", ErrConflict, payment.RefundStatus)
	}
	if !payment.Refundable() {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
	}
	now := c.now()
	err := c.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Payments.TransitionRefundStatus(ctx, payment.ID,
			[]model.PaymentRefundStatus{model.PaymentRefundNone, model.PaymentRefundDenied}, model.PaymentRefundRequested)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: refund already requested", ErrConflict)
		}
		ev := *order
		ev.TransactionID = payment.GatewayTransactionID
		return appendOrderEvent(ctx, tx, model.EventRefundRequested, &ev, reason, now)
	})
	if err != nil {
		return nil, err
	}
	c.activity.Record(order.UserID, "refund_requested", map[string]any{
		"order_id": order.ID, "transaction_id": payment.GatewayTransactionID, "reason": reason,
	})
	return c.reload(ctx, order.ID)
}

// decideOrphan 审批未关联订单的支付退款；订单的退款子记录保持不变
func (c *RefundCoordinator) decideOrphan(ctx context.Context, order *model.Order, payment *model.Payment, decision RefundDecision, adminResponse string) (*model.Order, error) {
	if payment.RefundStatus != model.PaymentRefundRequested {
		return nil, fmt.Errorf("%w: refund is %q, expected requested", ErrInvalidState, payment.RefundStatus)
	}
	now := c.now()
	reason := adminResponse
	if reason == "" {
		reason = "payment captured after order left pending"
	}
	err := c.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Payments.TransitionRefundStatus(ctx, payment.ID,
			[]model.PaymentRefundStatus{model.PaymentRefundRequested}, model.PaymentRefundStatus(decision))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: refund was decided concurrently", ErrInvalidState)
		}
		evType := model.EventRefundDenied
		if decision == RefundApprove {
			evType = model.EventRefundApproved
			ok, err := tx.Payments.ApplyRefund(ctx, payment.ID, payment.Amount, reason, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: payment %s is not refundable", ErrInvalidState, payment.GatewayTransactionID)
			}
		}
		ev := *order
		ev.TransactionID = payment.GatewayTransactionID
		return appendOrderEvent(ctx, tx, evType, &ev, adminResponse, now)
	})
	if err != nil {
		return nil, err
	}

	c.activity.Record(order.UserID, "refund_"+string(decision), map[string]any{
		"order_id": order.ID, "transaction_id": payment.GatewayTransactionID, "amount": payment.Amount.StringFixed(2),
	})
	if order.ContactEmail != "" {
		body := fmt.Sprintf("Your refund of %s for transaction %s was %s.", payment.Amount.StringFixed(2), payment.GatewayTransactionID, decision)
		sendMail(c.mailer, order.ContactEmail, fmt.Sprintf("Refund %s", decision), body)
	}
	return c.reload(ctx, order.ID)
}

// ListRequests 管理员按退款状态分页查看，默认 requested
func (c *RefundCoordinator) ListRequests(ctx context.Context, status model.RefundStatus, q PageQuery) ([]model.Order, int64, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, 0, err
	}
	if status == model.RefundStatusNone {
		status = model.RefundStatusRequested
	}
	switch status {
	case model.RefundStatusRequested, model.RefundStatusApproved, model.RefundStatusDenied:
	default:
		return nil, 0, fmt.Errorf("%w: unknown refund status %q", ErrValidation, status)
	}
	q = q.Normalize()
	return c.repo.Orders.List(ctx, repository.OrderListFilter{
		RefundStatus: status,
		Limit:        q.PageSize,
		Offset:       q.offset(),
	})
}

func (c *RefundCoordinator) reload(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := c.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}
