package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func (o *Order) BeforeCreate(*gorm.DB) error         { ensureID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(*gorm.DB) error     { ensureID(&i.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error       { ensureID(&p.ID); return nil }
func (a *Activity) BeforeCreate(*gorm.DB) error      { ensureID(&a.ID); return nil }
func (o *Outbox) BeforeCreate(*gorm.DB) error        { ensureID(&o.ID); return nil }
func (r *PaymentRefund) BeforeCreate(*gorm.DB) error { ensureID(&r.ID); return nil }

// All 返回需要迁移的全部模型
func All() []any {
	return []any{
		&Product{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&PaymentRefund{},
		&Activity{},
		&Outbox{},
	}
}
