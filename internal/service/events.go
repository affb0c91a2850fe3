package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
)

// EventMessage 发往消息总线的一条事件
type EventMessage struct {
	Key   string
	Type  string
	Value []byte
}

// EventPublisher 事件总线（Kafka 等）
type EventPublisher interface {
	Publish(ctx context.Context, msgs ...EventMessage) error
}

// Mailer 邮件投递，由外部协作方实现
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ActivitySink 用户动态写入，fire-and-forget
type ActivitySink interface {
	Record(userID, action string, details map[string]any)
}

type nopActivity struct{}

func (nopActivity) Record(string, string, map[string]any) {}

// OrderEventPayload outbox 中订单事件的负载
type OrderEventPayload struct {
	OrderID       string              `json:"order_id"`
	UserID        string              `json:"user_id"`
	OrderStatus   model.OrderStatus   `json:"order_status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	TransactionID string              `json:"transaction_id,omitempty"`
	RefundStatus  model.RefundStatus  `json:"refund_status,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// appendOrderEvent 在调用方事务内写入 outbox
func appendOrderEvent(ctx context.Context, tx *repository.Repository, eventType string, o *model.Order, reason string, at time.Time) error {
	b, err := json.Marshal(OrderEventPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		OrderStatus:   o.OrderStatus,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount,
		TransactionID: o.TransactionID,
		RefundStatus:  o.Refund.Status,
		Reason:        reason,
		OccurredAt:    at,
	})
	if err != nil {
		return err
	}
	return tx.Outbox.Append(ctx, &model.Outbox{
		OrderID:   o.ID,
		UserID:    o.UserID,
		EventType: eventType,
		Payload:   datatypes.JSON(b),
		CreatedAt: at,
	})
}
