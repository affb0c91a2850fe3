package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单履约状态
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// orderFlow is the forward-only happy path; cancelled sits outside it.
var orderFlow = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	return s == OrderStatusCancelled || s.rank() >= 0
}

func (s OrderStatus) rank() int {
	for i, st := range orderFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo 判断状态迁移是否合法
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == OrderStatusDelivered || s == OrderStatusCancelled {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

// Cancellable 已送达或已取消的订单不可取消
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

// PaymentStatus 订单侧支付状态
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "cod"
	PaymentMethodUPI  PaymentMethod = "upi"
	PaymentMethodCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodUPI, PaymentMethodCard:
		return true
	}
	return false
}

// RefundStatus 订单退款周期状态；空串表示从未申请
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = ""
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusApproved  RefundStatus = "approved"
	RefundStatusDenied    RefundStatus = "denied"
)

// Order 订单聚合根
type Order struct {
	ID                    string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID                string          `json:"user_id" gorm:"type:varchar(36);index:idx_orders_user_created;not null"`
	ContactEmail          string          `json:"contact_email,omitempty" gorm:"type:varchar(255)"`
	Items                 []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount           decimal.Decimal `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	PaymentMethod         PaymentMethod   `json:"payment_method" gorm:"type:varchar(8);not null"`
	PaymentStatus         PaymentStatus   `json:"payment_status" gorm:"type:varchar(16);not null;default:'pending';index"`
	OrderStatus           OrderStatus     `json:"order_status" gorm:"type:varchar(20);not null;default:'pending';index"`
	PaymentID             *string         `json:"payment_id" gorm:"type:varchar(36)"`
	TransactionID         string          `json:"transaction_id,omitempty" gorm:"type:varchar(64)"`
	DeliveryAddress       string          `json:"delivery_address" gorm:"type:text"`
	SpecialInstructions   string          `json:"special_instructions,omitempty" gorm:"type:text"`
	EstimatedDeliveryTime *time.Time      `json:"estimated_delivery_time,omitempty"`
	ActualDeliveryTime    *time.Time      `json:"actual_delivery_time,omitempty"`
	CancellationReason    string          `json:"cancellation_reason,omitempty" gorm:"type:text"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	Refund                RefundDetails   `json:"refund_details" gorm:"embedded;embeddedPrefix:refund_"`
	Review                OrderReview     `json:"order_review" gorm:"embedded;embeddedPrefix:review_"`
	CreatedAt             time.Time       `json:"created_at" gorm:"index:idx_orders_user_created;not null"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// PaymentSettled 已付款或货到付款时订单才可离开 pending 向前推进
func (o *Order) PaymentSettled() bool {
	if o.OrderStatus != OrderStatusPending {
		return true
	}
	return o.PaymentStatus == PaymentStatusPaid || o.PaymentMethod == PaymentMethodCOD
}

// OrderItem 订单行，单价为下单时快照
type OrderItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"-" gorm:"type:varchar(36);index;not null"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36);not null"`
	ProductName string          `json:"product_name" gorm:"type:varchar(255)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(10,2);not null"`
	Notes       string          `json:"notes,omitempty" gorm:"type:text"`
	Position    int             `json:"-" gorm:"not null;default:0"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems 计算订单行总额
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// RefundDetails 退款子记录，内部统一为 {status, statusChangedAt, reason}
type RefundDetails struct {
	Status          RefundStatus    `gorm:"type:varchar(16);not null;default:'';index"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Reason          string          `gorm:"type:text"`
	AdminResponse   string          `gorm:"type:text"`
	RequestedAt     *time.Time
	StatusChangedAt *time.Time
}

// Active 存在未被拒绝的退款周期
func (r RefundDetails) Active() bool {
	return r.Status == RefundStatusRequested || r.Status == RefundStatusApproved
}

type refundJSON struct {
	Status        RefundStatus    `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	AdminResponse string          `json:"admin_response,omitempty"`
	RequestedAt   *time.Time      `json:"requested_at,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	RejectedAt    *time.Time      `json:"rejected_at,omitempty"`
}

// MarshalJSON 对外保留 approved_at / rejected_at 字段；未申请时输出 null
func (r RefundDetails) MarshalJSON() ([]byte, error) {
	if r.Status == RefundStatusNone {
		return []byte("null"), nil
	}
	out := refundJSON{
		Status:        r.Status,
		Amount:        r.Amount,
		Reason:        r.Reason,
		AdminResponse: r.AdminResponse,
		RequestedAt:   r.RequestedAt,
	}
	switch r.Status {
	case RefundStatusApproved:
		out.ApprovedAt = r.StatusChangedAt
	case RefundStatusDenied:
		out.RejectedAt = r.StatusChangedAt
	}
	return json.Marshal(out)
}

// OrderReview 订单评价，仅可写入一次
type OrderReview struct {
	Rating     int    `gorm:"not null;default:0"`
	Comment    string `gorm:"type:text"`
	ReviewedAt *time.Time
}

func (r OrderReview) Exists() bool { return r.Rating > 0 }

func (r OrderReview) MarshalJSON() ([]byte, error) {
	if !r.Exists() {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Rating     int        `json:"rating"`
		Comment    string     `json:"comment,omitempty"`
		ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	}{r.Rating, r.Comment, r.ReviewedAt})
}
