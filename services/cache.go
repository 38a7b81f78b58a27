package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenguojun06-star/fz66666-sub008/config"
	"github.com/chenguojun06-star/fz66666-sub008/logger"
)

const StatsRunChannel = "intelligence:stats-runs"

// statsCache is the part of CacheService the snapshot paths use.
type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// CacheService fronts Redis. A nil client turns every call into a miss or a no-op
// so serving keeps working without Redis.
type CacheService struct {
	client *redis.Client
	log    *logger.Logger
}

func NewCacheService(cfg config.RedisConfig, baseLog *logger.Logger) (*CacheService, error) {
	log := baseLog.With("service", "CacheService")
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client, log: log}, nil
		}
		log.Warn("redis ping failed", "attempt", i+1, "error", lastErr)
		time.Sleep(time.Second)
	}

	_ = client.Close()
	return &CacheService{client: nil, log: log}, fmt.Errorf("redis ping failed after 5 attempts: %w", lastErr)
}

// NewCacheServiceWithClient wraps an existing client; nil disables caching.
func NewCacheServiceWithClient(client *redis.Client, baseLog *logger.Logger) *CacheService {
	return &CacheService{client: client, log: baseLog.With("service", "CacheService")}
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// Get decodes the cached value into dest and reports whether it was found.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// SetNX stores value only when key is absent and reports whether it did.
func (s *CacheService) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, key, data, ttl).Result()
}

func (s *CacheService) Delete(ctx context.Context, key string) error {
	if !s.Available() {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when caching is disabled.
func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if !s.Available() {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}

func statsCacheKey(tenantID int64, stageName, scanType string) string {
	return fmt.Sprintf("intelligence:stats:%d:%s:%s", tenantID, scanType, stageName)
}
