package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hutkeeper/internal/config"
	"hutkeeper/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

func (r *RedisSessionRepository) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) SetSession(ctx context.Context, session *models.Session) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := r.ttl
	if until := time.Until(session.ExpiresAt); until > 0 && until < ttl {
		ttl = until
	}
	if err := r.client.Set(ctx, sessionKey(session.TokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, sessionKey(tokenHash)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rlKey := fmt.Sprintf("rate_limit:%s", key)
	count, err := r.client.Incr(ctx, rlKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rlKey, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
