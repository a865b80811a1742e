package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusCompleted = "COMPLETED"
	CompletedExpiry = 24 * time.Hour
)

// ReceiptStore remembers orders whose payment confirmation already
// completed, so repeat deliveries can be answered without touching the
// order store.
type ReceiptStore interface {
	CheckCompleted(ctx context.Context, gateway, orderID string) (bool, error)
	SetCompleted(ctx context.Context, gateway, orderID string) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &RedisStore{client: rdb}
}

func ConfirmationKey(gateway, orderID string) string {
	return fmt.Sprintf("confirmation:%s:%s", gateway, orderID)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis PING error: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// SetCompleted marks the order's confirmation as COMPLETED with a long expiry.
func (r *RedisStore) SetCompleted(ctx context.Context, gateway, orderID string) error {
	if err := r.client.Set(ctx, ConfirmationKey(gateway, orderID), StatusCompleted, CompletedExpiry).Err(); err != nil {
		return fmt.Errorf("redis SET error: %w", err)
	}
	return nil
}

func (r *RedisStore) CheckCompleted(ctx context.Context, gateway, orderID string) (bool, error) {
	status, err := r.client.Get(ctx, ConfirmationKey(gateway, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis GET error: %w", err)
	}
	return status == StatusCompleted, nil
}
