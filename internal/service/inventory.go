package service

import (
	"context"
	"fmt"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
)

// LineRequest 下单行
type LineRequest struct {
	ProductID string
	Quantity  int
	Notes     string
}

// reserveLines 校验并原子扣减每一行的库存，返回带价格快照的订单行。
// 必须在结账事务内调用，任一行失败时由事务整体回滚。
func reserveLines(ctx context.Context, products repository.ProductRepository, lines []LineRequest) ([]model.OrderItem, error) {
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
		}
		p, err := products.GetByID(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, l.ProductID)
		}
		if !p.IsAvailable {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, p.Name)
		}
		if p.Stock < l.Quantity {
			return nil, fmt.Errorf("%w: %s has %d left", ErrInsufficientStock, p.Name, p.Stock)
		}
		ok, err := products.Reserve(ctx, p.ID, l.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			// 并发下单抢先扣减
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, p.Name)
		}
		items = append(items, model.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			Notes:       l.Notes,
		})
	}
	return items, nil
}

// restockOnCancel 取消订单时的库存归还策略：只归还 stock，不回退 total_orders。
// 非幂等，调用方需保证每个订单至多执行一次。
func restockOnCancel(ctx context.Context, products repository.ProductRepository, items []model.OrderItem) error {
	for _, it := range items {
		if err := products.Restock(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restock %s: %w", it.ProductID, err)
		}
	}
	return nil
}
