package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/d60-Lab/food-order/internal/model"
)

// PaymentRepository 支付记录仓储
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	GetByTransactionID(ctx context.Context, txnID string) (*model.Payment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Payment, int64, error)
	// SetRefundStatus 更新退款镜像状态
	SetRefundStatus(ctx context.Context, id string, status model.PaymentRefundStatus) error
	// TransitionRefundStatus CAS 更新退款镜像状态，当前状态不在 from 中时返回 false
	TransitionRefundStatus(ctx context.Context, id string, from []model.PaymentRefundStatus, to model.PaymentRefundStatus) (bool, error)
	SetStatus(ctx context.Context, id string, status model.TransactionStatus) error
	// ApplyRefund 仅对 completed 支付生效：标记退款并追加一条退款流水
	ApplyRefund(ctx context.Context, id string, amount decimal.Decimal, reason string, at time.Time) (bool, error)
}

type paymentRepository struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepository{db: db} }

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, txnID string) (*model.Payment, error) {
	return r.first(ctx, "gateway_transaction_id = ?", txnID)
}

func (r *paymentRepository) first(ctx context.Context, query string, arg any) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Preload("Refunds", func(db *gorm.DB) *gorm.DB { return db.Order("refunded_at") }).
		Where(query, arg).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Payment{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var list []model.Payment
	err := q.Preload("Refunds").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *paymentRepository) SetRefundStatus(ctx context.Context, id string, status model.PaymentRefundStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Update("refund_status", status).Error
}

func (r *paymentRepository) TransitionRefundStatus(ctx context.Context, id string, from []model.PaymentRefundStatus, to model.PaymentRefundStatus) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND refund_status IN ?", id, from).
		Update("refund_status", to)
	return tx.RowsAffected > 0, tx.Error
}

func (r *paymentRepository) SetStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *paymentRepository) ApplyRefund(ctx context.Context, id string, amount decimal.Decimal, reason string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status = ? AND amount >= ?", id, model.TransactionCompleted, amount).
		Updates(map[string]any{
			"status":        model.TransactionRefunded,
			"refund_status": model.PaymentRefundCompleted,
			"refund_amount": amount,
		})
	if tx.Error != nil || tx.RowsAffected == 0 {
		return false, tx.Error
	}
	entry := &model.PaymentRefund{PaymentID: id, Amount: amount, Reason: reason, RefundedAt: at}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return false, err
	}
	return true, nil
}
