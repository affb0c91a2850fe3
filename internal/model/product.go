package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品目录中与下单相关的字段
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	IsAvailable bool            `json:"is_available" gorm:"not null;default:true"`
	TotalOrders int             `json:"total_orders" gorm:"not null;default:0"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
