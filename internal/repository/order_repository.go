package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/food-order/internal/model"
)

// OrderListFilter 订单列表过滤条件，零值字段不参与过滤
type OrderListFilter struct {
	UserID       string
	RefundStatus model.RefundStatus
	Limit        int
	Offset       int
}

// OrderRepository 订单仓储接口
//
// 所有状态写入都是条件更新，返回 false 表示观察到的状态已被并发修改。
type OrderRepository interface {
	// Create 创建订单及其订单行
	Create(ctx context.Context, order *model.Order) error

	// GetByID 查询订单（含订单行），不存在返回 nil, nil
	GetByID(ctx context.Context, id string) (*model.Order, error)

	// List 分页查询，按创建时间倒序
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)

	// TransitionStatus order_status 由 from 迁移到 to，并写入附加字段
	TransitionStatus(ctx context.Context, id string, from, to model.OrderStatus, extra map[string]any) (bool, error)

	// LinkPayment 仅对待支付的 pending 订单写入支付关联
	LinkPayment(ctx context.Context, id string, fields map[string]any) (bool, error)

	// UpdateRefund 仅当当前退款状态属于 from 时写入退款子记录
	UpdateRefund(ctx context.Context, id string, from []model.RefundStatus, refund model.RefundDetails, extra map[string]any) (bool, error)

	// SetReview 仅在已送达且未评价时写入评价
	SetReview(ctx context.Context, id string, review model.OrderReview) (bool, error)
}

type orderRepository struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepository{db: db} }

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	for i := range order.Items {
		order.Items[i].Position = i
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.RefundStatus != model.RefundStatusNone {
		q = q.Where("refund_status = ?", f.RefundStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []model.Order
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id string, from, to model.OrderStatus, extra map[string]any) (bool, error) {
	fields := map[string]any{"order_status": to}
	for k, v := range extra {
		fields[k] = v
	}
	tx := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND order_status = ?", id, from).
		Updates(fields)
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepository) LinkPayment(ctx context.Context, id string, fields map[string]any) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND payment_status = ? AND order_status = ?", id, model.PaymentStatusPending, model.OrderStatusPending).
		Updates(fields)
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepository) UpdateRefund(ctx context.Context, id string, from []model.RefundStatus, refund model.RefundDetails, extra map[string]any) (bool, error) {
	fields := map[string]any{
		"refund_status":            refund.Status,
		"refund_amount":            refund.Amount,
		"refund_reason":            refund.Reason,
		"refund_admin_response":    refund.AdminResponse,
		"refund_requested_at":      refund.RequestedAt,
		"refund_status_changed_at": refund.StatusChangedAt,
	}
	for k, v := range extra {
		fields[k] = v
	}
	tx := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND refund_status IN ?", id, from).
		Updates(fields)
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepository) SetReview(ctx context.Context, id string, review model.OrderReview) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND order_status = ? AND review_rating = 0", id, model.OrderStatusDelivered).
		Updates(map[string]any{
			"review_rating":      review.Rating,
			"review_comment":     review.Comment,
			"review_reviewed_at": review.ReviewedAt,
		})
	return tx.RowsAffected > 0, tx.Error
}
