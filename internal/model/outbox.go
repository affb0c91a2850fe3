package model

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox 状态
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
)

// 订单领域事件类型
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
	EventRefundRequested    = "refund.requested"
	EventRefundApproved     = "refund.approved"
	EventRefundDenied       = "refund.denied"
)

// Outbox 事件外发盒，与业务写入处于同一事务
type Outbox struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string         `json:"order_id" gorm:"type:varchar(36);index:idx_outbox_order"`
	UserID      string         `json:"user_id" gorm:"type:varchar(36)"`
	EventType   string         `json:"event_type" gorm:"type:varchar(32);not null"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index"`
	Status      string         `json:"status" gorm:"type:varchar(16);index;default:'pending'"`
	Attempts    int            `json:"attempts" gorm:"not null;default:0"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty" gorm:"index"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

func (Outbox) TableName() string { return "outbox" }
