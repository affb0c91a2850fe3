package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
	"github.com/d60-Lab/food-order/pkg/logger"
)

// PageQuery 分页参数，page 从 1 开始
type PageQuery struct {
	Page     int
	PageSize int
}

func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	return q
}

func (q PageQuery) offset() int { return (q.Page - 1) * q.PageSize }

// PayInput 对已有 pending 订单发起支付
type PayInput struct {
	OrderID string
	Method  model.PaymentMethod
	UPI     *UPIInput
	Card    *CardInput
}

// PaymentService 支付尝试的执行、落库与订单关联
type PaymentService struct {
	repo     *repository.Repository
	gateway  *GatewaySimulator
	activity ActivitySink
	mailer   Mailer
	now      func() time.Time
}

func NewPaymentService(repo *repository.Repository, gateway *GatewaySimulator, activity ActivitySink, mailer Mailer) *PaymentService {
	if activity == nil {
		activity = nopActivity{}
	}
	return &PaymentService{repo: repo, gateway: gateway, activity: activity, mailer: mailer, now: time.Now}
}

// Pay 为 pending 订单再次发起支付；支付方式必须与下单时一致
func (s *PaymentService) Pay(ctx context.Context, in PayInput) (*model.Payment, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.Orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, in.OrderID)
	}
	if order.UserID != id.UserID {
		return nil, ErrForbidden
	}
	if order.PaymentMethod != in.Method {
		return nil, fmt.Errorf("%w: order was placed with %s", ErrValidation, order.PaymentMethod)
	}
	if order.OrderStatus != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, order.OrderStatus)
	}
	if order.PaymentStatus != model.PaymentStatusPending {
		return nil, fmt.Errorf("%w: order payment is %s", ErrConflict, order.PaymentStatus)
	}
	return s.charge(ctx, order, in.UPI, in.Card)
}

// charge 执行网关调用并落库。网关失败返回 status=failed 的 Payment 且 err 为 nil。
func (s *PaymentService) charge(ctx context.Context, order *model.Order, upi *UPIInput, card *CardInput) (*model.Payment, error) {
	p := s.gateway.Charge(ctx, ChargeRequest{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  order.TotalAmount,
		Method:  order.PaymentMethod,
		UPI:     upi,
		Card:    card,
	})

	// 网关调用可能已耗尽请求 ctx，落库使用独立的超时
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.Payments.Create(dbCtx, p); err != nil {
		logger.Error("persist payment failed",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", p.GatewayTransactionID),
			zap.String("status", string(p.Status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: order %s: %v", ErrReconciliation, order.ID, err)
	}

	confirmed := p.Status == model.TransactionCompleted ||
		(p.Method == model.PaymentMethodCOD && p.Status == model.TransactionPending)
	if !confirmed {
		s.activity.Record(order.UserID, "payment_failed", map[string]any{
			"order_id": order.ID, "transaction_id": p.GatewayTransactionID, "reason": p.FailureReason,
		})
		return p, nil
	}

	fields := map[string]any{
		"order_status":   model.OrderStatusConfirmed,
		"payment_id":     p.ID,
		"transaction_id": p.GatewayTransactionID,
	}
	if p.Status == model.TransactionCompleted {
		fields["payment_status"] = model.PaymentStatusPaid
	}
	now := s.now()
	err := s.repo.WithTx(dbCtx, func(tx *repository.Repository) error {
		ok, err := tx.Orders.LinkPayment(dbCtx, order.ID, fields)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %s is no longer awaiting payment", ErrConflict, order.ID)
		}
		linked := *order
		linked.OrderStatus = model.OrderStatusConfirmed
		linked.TransactionID = p.GatewayTransactionID
		evType := model.EventOrderStatusChanged
		if p.Status == model.TransactionCompleted {
			linked.PaymentStatus = model.PaymentStatusPaid
			evType = model.EventOrderPaid
		}
		return appendOrderEvent(dbCtx, tx, evType, &linked, "", now)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, s.orphaned(dbCtx, order, p, now)
		}
		logger.Error("link payment to order failed",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", p.GatewayTransactionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: order %s: %v", ErrReconciliation, order.ID, err)
	}

	s.activity.Record(order.UserID, "order_confirmed", map[string]any{
		"order_id": order.ID, "transaction_id": p.GatewayTransactionID, "method": p.Method,
	})
	if order.ContactEmail != "" {
		sendMail(s.mailer, order.ContactEmail,
			fmt.Sprintf("Order %s confirmed", order.ID),
			fmt.Sprintf("Your order of %s is confirmed. Transaction: %s.", order.TotalAmount.StringFixed(2), p.GatewayTransactionID),
		)
	}
	return p, nil
}

// orphaned 网关调用期间订单已离开 pending（取消、管理员改状态或并发支付先行关联）。
// 未扣款的尝试作废并返回 ErrConflict；已扣款的支付转入退款待审，并在同一事务写入 refund.requested 事件，
// 之后可按流水号走退款审批。
func (s *PaymentService) orphaned(ctx context.Context, order *model.Order, p *model.Payment, now time.Time) error {
	if p.Status != model.TransactionCompleted {
		if err := s.repo.Payments.SetStatus(ctx, p.ID, model.TransactionCancelled); err != nil {
			logger.Warn("discard payment attempt failed", zap.String("transaction_id", p.GatewayTransactionID), zap.Error(err))
		}
		logger.Warn("payment attempt discarded, order not awaiting payment",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", p.GatewayTransactionID),
		)
		return fmt.Errorf("%w: order %s is no longer awaiting payment", ErrConflict, order.ID)
	}

	const reason = "payment captured after order left pending"
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Payments.TransitionRefundStatus(ctx, p.ID,
			[]model.PaymentRefundStatus{model.PaymentRefundNone}, model.PaymentRefundRequested)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payment %s refund already in progress", p.GatewayTransactionID)
		}
		current, err := tx.Orders.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current == nil {
			current = order
		}
		ev := *current
		ev.TransactionID = p.GatewayTransactionID
		return appendOrderEvent(ctx, tx, model.EventRefundRequested, &ev, reason, now)
	})
	logger.Error("payment captured for order not awaiting payment",
		zap.String("order_id", order.ID),
		zap.String("transaction_id", p.GatewayTransactionID),
		zap.String("amount", p.Amount.StringFixed(2)),
		zap.Bool("refund_queued", err == nil),
		zap.Error(err),
	)
	s.activity.Record(order.UserID, "payment_orphaned", map[string]any{
		"order_id": order.ID, "transaction_id": p.GatewayTransactionID, "refund_queued": err == nil,
	})
	return fmt.Errorf("%w: order %s: transaction %s captured after order left pending",
		ErrReconciliation, order.ID, p.GatewayTransactionID)
}

// Get 所有者或管理员可见
func (s *PaymentService) Get(ctx context.Context, paymentID string) (*model.Payment, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if !id.CanAccess(p.UserID) {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *PaymentService) ListMine(ctx context.Context, q PageQuery) ([]model.Payment, int64, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	q = q.Normalize()
	return s.repo.Payments.ListByUser(ctx, id.UserID, q.PageSize, q.offset())
}

// sendMail 后台尽力投递，失败只记录日志
func sendMail(m Mailer, to, subject, body string) {
	if m == nil || to == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Send(ctx, to, subject, body); err != nil {
			logger.Warn("send mail failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		}
	}()
}
