package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionStatus 单次支付尝试的状态
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionRefunded   TransactionStatus = "refunded"
)

type Gateway string

const (
	GatewayDummyUPI  Gateway = "dummy_upi"
	GatewayDummyCard Gateway = "dummy_card"
	GatewayCOD       Gateway = "cod"
)

// PaymentRefundStatus 支付侧退款镜像状态
type PaymentRefundStatus string

const (
	PaymentRefundNone      PaymentRefundStatus = ""
	PaymentRefundRequested PaymentRefundStatus = "requested"
	PaymentRefundCompleted PaymentRefundStatus = "completed"
	PaymentRefundApproved  PaymentRefundStatus = "approved"
	PaymentRefundDenied    PaymentRefundStatus = "denied"
)

// Payment 一次支付尝试；失败的尝试同样落库
type Payment struct {
	ID                   string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID              string              `json:"order_id" gorm:"type:varchar(36);index;not null"`
	UserID               string              `json:"user_id" gorm:"type:varchar(36);index:idx_payments_user_created;not null"`
	Amount               decimal.Decimal     `json:"amount" gorm:"type:decimal(10,2);not null"`
	Method               PaymentMethod       `json:"method" gorm:"type:varchar(8);not null"`
	Status               TransactionStatus   `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	Gateway              Gateway             `json:"gateway" gorm:"type:varchar(16);not null"`
	GatewayTransactionID string              `json:"gateway_transaction_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	GatewayResponse      datatypes.JSON      `json:"gateway_response,omitempty"`
	UPI                  UPIDetails          `json:"upi_details" gorm:"embedded;embeddedPrefix:upi_"`
	Card                 CardDetails         `json:"card_details" gorm:"embedded;embeddedPrefix:card_"`
	FailureReason        string              `json:"failure_reason,omitempty" gorm:"type:text"`
	ProcessedAt          *time.Time          `json:"processed_at,omitempty"`
	RefundStatus         PaymentRefundStatus `json:"refund_status,omitempty" gorm:"type:varchar(16);not null;default:''"`
	RefundAmount         decimal.Decimal     `json:"refund_amount" gorm:"type:decimal(10,2);not null;default:0"`
	Refunds              []PaymentRefund     `json:"refunds" gorm:"foreignKey:PaymentID"`
	CreatedAt            time.Time           `json:"created_at" gorm:"index:idx_payments_user_created;not null"`
	UpdatedAt            time.Time           `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// BeforeCreate 缺省时生成带方式前缀的网关流水号
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	if p.GatewayTransactionID == "" {
		p.GatewayTransactionID = NewTransactionID(p.Method)
	}
	return nil
}

// Refundable 仅已完成的支付可退款
func (p *Payment) Refundable() bool { return p.Status == TransactionCompleted }

type UPIDetails struct {
	ID  string `json:"upi_id,omitempty" gorm:"column:id;type:varchar(255)"`
	App string `json:"upi_app,omitempty" gorm:"column:app;type:varchar(32)"`
}

type CardDetails struct {
	Last4 string `json:"last4,omitempty" gorm:"column:last4;type:varchar(4)"`
	Brand string `json:"brand,omitempty" gorm:"column:brand;type:varchar(16)"`
	Type  string `json:"type,omitempty" gorm:"column:type;type:varchar(16)"`
}

// PaymentRefund 退款流水，只追加
type PaymentRefund struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PaymentID  string          `json:"-" gorm:"type:varchar(36);index;not null"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Reason     string          `json:"reason" gorm:"type:text"`
	RefundedAt time.Time       `json:"refunded_at" gorm:"not null"`
}

func (PaymentRefund) TableName() string { return "payment_refunds" }

// TransactionPrefix 网关流水号前缀，对账依赖该格式，不可变更
func TransactionPrefix(m PaymentMethod) string {
	return strings.ToUpper(string(m))
}

// NewTransactionID 生成 {METHOD}_{uuid} 形式的流水号
func NewTransactionID(m PaymentMethod) string {
	return TransactionPrefix(m) + "_" + uuid.New().String()
}
