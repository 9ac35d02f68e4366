package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ConnectRedis подключается к Redis (с поддержкой Sentinel).
// Если указаны sentinelAddrs и masterName, используется Sentinel,
// иначе прямое подключение через redisURL.
func ConnectRedis(redisURL string, sentinelAddrs []string, masterName string) (redis.UniversalClient, error) {
	if len(sentinelAddrs) > 0 && masterName != "" {
		return ConnectRedisWithSentinel(sentinelAddrs, masterName, "")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.PoolSize = 100
	opt.MinIdleConns = 10
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("✅ Redis connected successfully (direct connection)")
	return client, nil
}

// ConnectRedisWithSentinel подключается к Redis через Sentinel
func ConnectRedisWithSentinel(sentinelAddrs []string, masterName, password string) (redis.UniversalClient, error) {
	if len(sentinelAddrs) == 0 {
		return nil, fmt.Errorf("no Sentinel addresses provided")
	}

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: sentinelAddrs,
		Password:      password,
		PoolSize:      100,
		MinIdleConns:  10,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis Sentinel: %w", err)
	}

	log.Info().Str("master", masterName).Strs("sentinels", sentinelAddrs).Msg("✅ Redis Sentinel connected successfully")
	return client, nil
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client redis.UniversalClient) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
