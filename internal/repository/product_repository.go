package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/food-order/internal/model"
)

// ProductRepository 商品库存仓储
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	GetByID(ctx context.Context, id string) (*model.Product, error)
	// Reserve 原子扣减：stock >= qty 且可售时 stock -= qty, total_orders += 1
	Reserve(ctx context.Context, id string, qty int) (bool, error)
	// Restock 归还库存，不回退 total_orders
	Restock(ctx context.Context, id string, qty int) error
}

type productRepository struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepository{db: db} }

func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) Reserve(ctx context.Context, id string, qty int) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND is_available = ? AND stock >= ?", id, true, qty).
		Updates(map[string]any{
			"stock":        gorm.Expr("stock - ?", qty),
			"total_orders": gorm.Expr("total_orders + ?", 1),
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepository) Restock(ctx context.Context, id string, qty int) error {
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", qty)).Error
}
