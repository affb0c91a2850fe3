package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/food-order/internal/service"
)

// 键值格式为 "{fingerprint}|{orderID}"，处理中时 orderID 为空
const sep = "|"

// IdempotencyStore 基于 Redis 的下单幂等键存储。
// 首次请求以 SETNX 占位，完成后写入订单 ID；占位与结果共享同一 TTL。
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	hits   atomic.Int64
	misses atomic.Int64
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl, prefix: "idem:checkout:"}
}

func (s *IdempotencyStore) key(k string) string { return s.prefix + k }

func (s *IdempotencyStore) Begin(ctx context.Context, k, fingerprint string) (string, error) {
	ok, err := s.client.SetNX(ctx, s.key(k), fingerprint+sep, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		s.misses.Add(1)
		return "", nil
	}

	val, err := s.client.Get(ctx, s.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		// 占位刚过期，按首次请求处理
		return s.Begin(ctx, k, fingerprint)
	}
	if err != nil {
		return "", fmt.Errorf("read idempotency key: %w", err)
	}
	stored, orderID, _ := strings.Cut(val, sep)
	if stored != fingerprint {
		return "", fmt.Errorf("%w: idempotency key was used for a different request", service.ErrConflict)
	}
	if orderID == "" {
		return "", fmt.Errorf("%w: request with this idempotency key is still in progress", service.ErrConflict)
	}
	s.hits.Add(1)
	return orderID, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, k, fingerprint, orderID string) error {
	return s.client.Set(ctx, s.key(k), fingerprint+sep+orderID, s.ttl).Err()
}

func (s *IdempotencyStore) Abort(ctx context.Context, k string) error {
	return s.client.Del(ctx, s.key(k)).Err()
}

// Stats 返回重放命中数与首次请求数
func (s *IdempotencyStore) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// NewClient 按配置创建 Redis 客户端并探活
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
