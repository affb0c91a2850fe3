package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
	"github.com/d60-Lab/food-order/pkg/logger"
)

const estimatedDeliveryWindow = 45 * time.Minute

// IdempotencyStore 下单幂等键存储
type IdempotencyStore interface {
	// Begin 占用幂等键；返回已完成的订单 ID，或空串表示首次请求。
	// 处理中，或键已绑定到不同 fingerprint 的请求时返回 ErrConflict。
	Begin(ctx context.Context, key, fingerprint string) (string, error)
	Complete(ctx context.Context, key, fingerprint, orderID string) error
	Abort(ctx context.Context, key string) error
}

// PlaceOrderInput 下单参数
type PlaceOrderInput struct {
	Items               []LineRequest
	PaymentMethod       model.PaymentMethod
	DeliveryAddress     string
	SpecialInstructions string
	UPI                 *UPIInput
	Card                *CardInput
	IdempotencyKey      string
}

// CheckoutResult 下单结果；网关失败时 Payment.Status 为 failed，订单保持 pending
type CheckoutResult struct {
	Order    *model.Order   `json:"order"`
	Payment  *model.Payment `json:"payment"`
	Replayed bool           `json:"replayed"`
}

type OrderService struct {
	repo     *repository.Repository
	payments *PaymentService
	activity ActivitySink
	idem     IdempotencyStore
	now      func() time.Time
}

func NewOrderService(repo *repository.Repository, payments *PaymentService, activity ActivitySink, idem IdempotencyStore) *OrderService {
	if activity == nil {
		activity = nopActivity{}
	}
	return &OrderService{repo: repo, payments: payments, activity: activity, idem: idem, now: time.Now}
}

// PlaceOrder 在一个事务内完成库存扣减、订单与 outbox 写入，随后在事务外调用支付网关
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*CheckoutResult, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if err := validatePlaceOrder(in); err != nil {
		return nil, err
	}

	idemKey, fingerprint := "", ""
	if s.idem != nil && in.IdempotencyKey != "" {
		idemKey = id.UserID + ":" + in.IdempotencyKey
		fingerprint = in.Fingerprint()
		orderID, err := s.idem.Begin(ctx, idemKey, fingerprint)
		if err != nil {
			return nil, err
		}
		if orderID != "" {
			return s.replay(ctx, orderID)
		}
	}

	res, err := s.checkout(ctx, id, in)
	if idemKey != "" {
		if err != nil && res == nil {
			if aerr := s.idem.Abort(ctx, idemKey); aerr != nil {
				logger.Warn("release idempotency key failed", zap.String("key", idemKey), zap.Error(aerr))
			}
		} else if res != nil {
			if cerr := s.idem.Complete(ctx, idemKey, fingerprint, res.Order.ID); cerr != nil {
				logger.Warn("store idempotency key failed", zap.String("key", idemKey), zap.Error(cerr))
			}
		}
	}
	return res, err
}

// Fingerprint 请求摘要，用于识别复用同一幂等键的不同请求；卡号只取后四位，不含 CVV
func (in PlaceOrderInput) Fingerprint() string {
	type line struct {
		ProductID string `json:"p"`
		Quantity  int    `json:"q"`
		Notes     string `json:"n,omitempty"`
	}
	body := struct {
		Items        []line              `json:"items"`
		Method       model.PaymentMethod `json:"method"`
		Address      string              `json:"address"`
		Instructions string              `json:"instructions,omitempty"`
		UPI          string              `json:"upi,omitempty"`
		Card         string              `json:"card,omitempty"`
	}{
		Method:       in.PaymentMethod,
		Address:      strings.TrimSpace(in.DeliveryAddress),
		Instructions: in.SpecialInstructions,
	}
	for _, it := range in.Items {
		body.Items = append(body.Items, line{it.ProductID, it.Quantity, it.Notes})
	}
	if in.UPI != nil {
		body.UPI = in.UPI.ID + "/" + in.UPI.App
	}
	if in.Card != nil {
		number := strings.ReplaceAll(in.Card.Number, " ", "")
		body.Card = fmt.Sprintf("%s/%02d/%d", lastN(number, 4), in.Card.ExpiryMonth, in.Card.ExpiryYear)
	}
	b, _ := json.Marshal(body)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validatePlaceOrder(in PlaceOrderInput) error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return fmt.Errorf("%w: delivery address is required", ErrValidation)
	}
	switch in.PaymentMethod {
	case model.PaymentMethodUPI:
		if in.UPI == nil {
			return fmt.Errorf("%w: upi details are required", ErrValidation)
		}
	case model.PaymentMethodCard:
		if in.Card == nil {
			return fmt.Errorf("%w: card details are required", ErrValidation)
		}
	}
	return nil
}

// checkout 订单已提交但支付无法落库时，返回非空结果与 ErrReconciliation
func (s *OrderService) checkout(ctx context.Context, id Identity, in PlaceOrderInput) (*CheckoutResult, error) {
	now := s.now()
	eta := now.Add(estimatedDeliveryWindow)
	var order *model.Order

	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		items, err := reserveLines(ctx, tx.Products, in.Items)
		if err != nil {
			return err
		}
		order = &model.Order{
			UserID:                id.UserID,
			ContactEmail:          id.Email,
			Items:                 items,
			TotalAmount:           model.SumItems(items),
			PaymentMethod:         in.PaymentMethod,
			PaymentStatus:         model.PaymentStatusPending,
			OrderStatus:           model.OrderStatusPending,
			DeliveryAddress:       in.DeliveryAddress,
			SpecialInstructions:   in.SpecialInstructions,
			EstimatedDeliveryTime: &eta,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}
		return appendOrderEvent(ctx, tx, model.EventOrderCreated, order, "", now)
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(id.UserID, "order_placed", map[string]any{
		"order_id": order.ID, "total": order.TotalAmount.StringFixed(2), "items": len(order.Items),
	})

	payment, payErr := s.payments.charge(ctx, order, in.UPI, in.Card)
	if payErr != nil {
		return &CheckoutResult{Order: order}, payErr
	}

	fresh, err := s.repo.Orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		order = fresh
	}
	return &CheckoutResult{Order: order, Payment: payment}, nil
}

func (s *OrderService) replay(ctx context.Context, orderID string) (*CheckoutResult, error) {
	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	res := &CheckoutResult{Order: order, Replayed: true}
	if order.PaymentID != nil {
		p, err := s.repo.Payments.GetByID(ctx, *order.PaymentID)
		if err != nil {
			return nil, err
		}
		res.Payment = p
	}
	return res, nil
}

// Get 所有者或管理员可见
func (s *OrderService) Get(ctx context.Context, orderID string) (*model.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !id.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListMine(ctx context.Context, q PageQuery) ([]model.Order, int64, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	q = q.Normalize()
	return s.repo.Orders.List(ctx, repository.OrderListFilter{
		UserID: id.UserID,
		Limit:  q.PageSize,
		Offset: q.offset(),
	})
}

func (s *OrderService) load(ctx context.Context, repo *repository.Repository, orderID string) (*model.Order, error) {
	order, err := repo.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

// Cancel 取消订单并归还库存；不会自动发起退款
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string) (*model.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !id.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	return s.cancel(ctx, id, order, reason)
}

func (s *OrderService) cancel(ctx context.Context, id Identity, order *model.Order, reason string) (*model.Order, error) {
	switch order.OrderStatus {
	case model.OrderStatusCancelled:
		return nil, fmt.Errorf("%w: order already cancelled", ErrConflict)
	case model.OrderStatusDelivered:
		return nil, fmt.Errorf("%w: delivered orders cannot be cancelled", ErrInvalidState)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by customer"
		if id.IsAdmin() && id.UserID != order.UserID {
			reason = "cancelled by admin"
		}
	}

	now := s.now()
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Orders.TransitionStatus(ctx, order.ID, order.OrderStatus, model.OrderStatusCancelled, map[string]any{
			"cancellation_reason": reason,
			"cancelled_at":        now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %s changed concurrently", ErrConflict, order.ID)
		}
		if err := restockOnCancel(ctx, tx.Products, order.Items); err != nil {
			return err
		}
		cancelled := *order
		cancelled.OrderStatus = model.OrderStatusCancelled
		return appendOrderEvent(ctx, tx, model.EventOrderCancelled, &cancelled, reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(order.UserID, "order_cancelled", map[string]any{"order_id": order.ID, "reason": reason})
	return s.load(ctx, s.repo, order.ID)
}

// UpdateStatus 管理员推进订单状态；只允许向前迁移，cancelled 走取消流程
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next model.OrderStatus) (*model.Order, error) {
	id, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, next)
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if next == model.OrderStatusCancelled {
		return s.cancel(ctx, id, order, "")
	}
	if !order.OrderStatus.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, order.OrderStatus, next)
	}
	if !order.PaymentSettled() {
		return nil, fmt.Errorf("%w: order payment is %s", ErrInvalidState, order.PaymentStatus)
	}

	now := s.now()
	extra := map[string]any{}
	if next == model.OrderStatusDelivered {
		extra["actual_delivery_time"] = now
	}
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Orders.TransitionStatus(ctx, order.ID, order.OrderStatus, next, extra)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %s changed concurrently", ErrConflict, order.ID)
		}
		moved := *order
		moved.OrderStatus = next
		return appendOrderEvent(ctx, tx, model.EventOrderStatusChanged, &moved, "", now)
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(order.UserID, "order_status_changed", map[string]any{
		"order_id": order.ID, "from": order.OrderStatus, "to": next,
	})
	return s.load(ctx, s.repo, order.ID)
}

// Review 订单送达后可评价一次
func (s *OrderService) Review(ctx context.Context, orderID string, rating int, comment string) (*model.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != id.UserID {
		return nil, ErrForbidden
	}
	if order.OrderStatus != model.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: only delivered orders can be reviewed", ErrInvalidState)
	}
	if order.Review.Exists() {
		return nil, fmt.Errorf("%w: order already reviewed", ErrConflict)
	}

	now := s.now()
	ok, err := s.repo.Orders.SetReview(ctx, order.ID, model.OrderReview{Rating: rating, Comment: comment, ReviewedAt: &now})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order already reviewed", ErrConflict)
	}

	s.activity.Record(id.UserID, "order_reviewed", map[string]any{"order_id": order.ID, "rating": rating})
	return s.load(ctx, s.repo, order.ID)
}
