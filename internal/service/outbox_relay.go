package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
	"github.com/d60-Lab/food-order/pkg/logger"
)

// OutboxRelay 轮询 outbox 并投递到事件总线；publisher 为空时只记录日志并标记完成。
// 领取后超过 lease 仍未完成的事件会被下一轮重新领取，投递语义为至少一次。
type OutboxRelay struct {
	outbox       repository.OutboxRepository
	publisher    EventPublisher
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration
	now          func() time.Time
}

func NewOutboxRelay(outbox repository.OutboxRepository, publisher EventPublisher, batchSize int, pollInterval, lease time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if lease <= 0 {
		lease = time.Minute
	}
	return &OutboxRelay{
		outbox:       outbox,
		publisher:    publisher,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		lease:        lease,
		now:          time.Now,
	}
}

// Start 启动轮询，返回停止函数
func (r *OutboxRelay) Start() func(context.Context) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.loop(stop)
	}()
	return func(ctx context.Context) error {
		close(stop)
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *OutboxRelay) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := r.ProcessOnce(context.Background()); err != nil {
				logger.Warn("outbox relay round failed", zap.Error(err))
			}
		}
	}
}

type eventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProcessOnce 领取一批事件并投递，返回成功投递的条数
func (r *OutboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.Claim(ctx, r.batchSize, r.now().Add(-r.lease))
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	done := make([]string, 0, len(batch))
	for _, ev := range batch {
		if err := r.deliver(ctx, ev); err != nil {
			logger.Warn("publish order event failed, requeue",
				zap.String("event_id", ev.ID),
				zap.String("type", ev.EventType),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(err),
			)
			// 退回失败时事件停留在 processing，租约到期后重新领取
			if err := r.outbox.Requeue(ctx, ev.ID); err != nil {
				logger.Warn("requeue order event failed", zap.String("event_id", ev.ID), zap.Error(err))
			}
			continue
		}
		done = append(done, ev.ID)
	}
	if err := r.outbox.MarkDone(ctx, done); err != nil {
		return 0, err
	}
	return len(done), nil
}

func (r *OutboxRelay) deliver(ctx context.Context, ev model.Outbox) error {
	if r.publisher == nil {
		logger.Debug("order event", zap.String("type", ev.EventType), zap.String("order_id", ev.OrderID))
		return nil
	}
	payload := json.RawMessage(ev.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	b, err := json.Marshal(eventEnvelope{
		ID:        ev.ID,
		Type:      ev.EventType,
		OrderID:   ev.OrderID,
		UserID:    ev.UserID,
		Payload:   payload,
		CreatedAt: ev.CreatedAt,
	})
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, EventMessage{Key: ev.OrderID, Type: ev.EventType, Value: b})
}
