package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
	"github.com/d60-Lab/food-order/pkg/logger"
)

type activityJob struct {
	userID  string
	action  string
	details map[string]any
	enqAt   time.Time
}

// ActivityDispatcher 本地异步写入用户动态；队列满时丢弃并告警，不影响主流程
type ActivityDispatcher struct {
	repo repository.ActivityRepository
	ch   chan activityJob
	wg   sync.WaitGroup
}

func NewActivityDispatcher(repo repository.ActivityRepository, queueSize int) *ActivityDispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &ActivityDispatcher{repo: repo, ch: make(chan activityJob, queueSize)}
}

// Start 启动 worker，返回停止函数；停止时在 ctx 允许的时间内排空队列
func (d *ActivityDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case job := <-d.ch:
					d.write(job)
				case <-stopCh:
					for {
						select {
						case job := <-d.ch:
							d.write(job)
						default:
							return
						}
					}
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		done := make(chan struct{})
		go func() { d.wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *ActivityDispatcher) write(job activityJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	details, _ := json.Marshal(job.details)
	a := &model.Activity{
		UserID:    job.userID,
		Action:    job.action,
		Details:   datatypes.JSON(details),
		CreatedAt: job.enqAt,
	}
	if err := d.repo.Create(ctx, a); err != nil {
		logger.Warn("write activity failed",
			zap.String("user", job.userID),
			zap.String("action", job.action),
			zap.Error(err),
		)
	}
}

// Record 入队，队列满时丢弃
func (d *ActivityDispatcher) Record(userID, action string, details map[string]any) {
	select {
	case d.ch <- activityJob{userID: userID, action: action, details: details, enqAt: time.Now()}:
	default:
		logger.Warn("activity queue full, drop", zap.String("user", userID), zap.String("action", action))
	}
}

// QueueLen 返回当前队列长度（采样值）
func (d *ActivityDispatcher) QueueLen() int { return len(d.ch) }
