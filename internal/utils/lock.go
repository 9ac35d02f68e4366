package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained - не удалось захватить блокировку за отведенные попытки
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker сериализует изменения одной записи между процессами
type Locker interface {
	// Acquire возвращает функцию освобождения блокировки
	Acquire(ctx context.Context, key string) (func(), error)
}

// RedisLocker - распределенная блокировка на redislock
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения блокировки %s: %w", key, err)
	}
	return func() {
		// контекст запроса мог уже завершиться, поэтому отпускаем с фоновым
		_ = lock.Release(context.Background())
	}, nil
}

// NoopLocker используется без Redis: достаточно compare-and-swap в репозитории
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}
