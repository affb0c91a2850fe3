package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/food-order/internal/model"
)

type ActivityRepository interface {
	Create(ctx context.Context, a *model.Activity) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Activity, error)
}

type activityRepository struct{ db *gorm.DB }

func NewActivityRepository(db *gorm.DB) ActivityRepository { return &activityRepository{db: db} }

func (r *activityRepository) Create(ctx context.Context, a *model.Activity) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *activityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	var res []model.Activity
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}
