package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/food-order/internal/model"
)

// OutboxRepository 事务外发盒
type OutboxRepository interface {
	Append(ctx context.Context, ev *model.Outbox) error
	// Claim 领取一批 pending 事件，以及领取时间早于 staleBefore 的 processing 事件，
	// 标记为 processing 并记录领取时间
	Claim(ctx context.Context, limit int, staleBefore time.Time) ([]model.Outbox, error)
	MarkDone(ctx context.Context, ids []string) error
	// Requeue 投递失败的事件退回 pending，attempts + 1
	Requeue(ctx context.Context, id string) error
}

type outboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Append(ctx context.Context, ev *model.Outbox) error {
	if ev.Status == "" {
		ev.Status = model.OutboxPending
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *outboxRepository) Claim(ctx context.Context, limit int, staleBefore time.Time) ([]model.Outbox, error) {
	var batch []model.Outbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? OR (status = ? AND claimed_at < ?)", model.OutboxPending, model.OutboxProcessing, staleBefore).
			Order("created_at").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		now := time.Now()
		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
			batch[i].Status = model.OutboxProcessing
			batch[i].ClaimedAt = &now
		}
		return tx.Model(&model.Outbox{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Outbox{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": time.Now()}).Error
}

func (r *outboxRepository) Requeue(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.OutboxPending,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"claimed_at": nil,
		}).Error
}
