package utils

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss - ключа нет в кэше
var ErrCacheMiss = errors.New("cache miss")

// Cache - минимальный JSON-кэш, которым пользуются репозитории
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisClient обертка над Redis клиентом для удобной работы
type RedisClient struct {
	client redis.UniversalClient
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(client redis.UniversalClient) *RedisClient {
	return &RedisClient{client: client}
}

// Set сохраняет значение с TTL; не-строки сериализуются в JSON
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var data string
	switch v := value.(type) {
	case string:
		data = v
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return err
		}
		data = string(jsonData)
	}

	return r.client.Set(ctx, key, data, ttl).Err()
}

// Get получает значение
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	data, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return data, err
}

// GetJSON получает и парсит JSON значение
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete удаляет ключи
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
