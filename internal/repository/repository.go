package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 聚合全部仓储，便于在同一事务中组合使用
type Repository struct {
	DB         *gorm.DB
	Products   ProductRepository
	Orders     OrderRepository
	Payments   PaymentRepository
	Activities ActivityRepository
	Outbox     OutboxRepository
}

func New(db *gorm.DB) *Repository {
	return &Repository{
		DB:         db,
		Products:   NewProductRepository(db),
		Orders:     NewOrderRepository(db),
		Payments:   NewPaymentRepository(db),
		Activities: NewActivityRepository(db),
		Outbox:     NewOutboxRepository(db),
	}
}

// WithTx 在单个数据库事务中执行 fn；fn 内只能使用 tx 上的仓储
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
