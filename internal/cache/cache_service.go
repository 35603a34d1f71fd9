// Package cache provides Redis-based caching with graceful degradation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds Redis connection settings
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// CacheService provides Redis-based caching. When Redis becomes unavailable
// the service trips a circuit breaker and callers fall back to in-memory
// caches; all Get operations then report a miss instead of an error.
type CacheService struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// Key prefixes for the different cache domains
const (
	PrefixAnomaly   = "anomaly:"
	PrefixRegime    = "regime:"
	PrefixSentiment = "sentiment:"
)

// NewCacheService creates a CacheService and verifies connectivity.
func NewCacheService(cfg Config, logger zerolog.Logger) (*CacheService, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:        client,
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	cs.healthy = true
	cs.logger.Info().Str("addr", cfg.Address).Msg("Connected to Redis")

	return cs, nil
}

// Get returns the cached value for key and whether it was present.
// An unhealthy backend reports a miss so callers degrade to recompute.
func (cs *CacheService) Get(ctx context.Context, key string) (string, bool) {
	if !cs.isHealthy() {
		return "", false
	}

	val, err := cs.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		cs.recordFailure(err)
		return "", false
	}
	cs.recordSuccess()
	return val, true
}

// Set stores value under key with the given TTL.
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !cs.isHealthy() {
		return fmt.Errorf("redis circuit breaker open")
	}

	if err := cs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		cs.recordFailure(err)
		return fmt.Errorf("redis set failed: %w", err)
	}
	cs.recordSuccess()
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	if !cs.isHealthy() {
		return fmt.Errorf("redis circuit breaker open")
	}
	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure(err)
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Healthy reports whether the Redis backend is currently usable.
func (cs *CacheService) Healthy() bool {
	return cs.isHealthy()
}

// Ping checks connectivity and resets the circuit breaker on success.
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure(err)
		return err
	}
	cs.mu.Lock()
	cs.healthy = true
	cs.failureCount = 0
	cs.mu.Unlock()
	return nil
}

// Close closes the Redis client.
func (cs *CacheService) Close() error {
	return cs.client.Close()
}

func (cs *CacheService) isHealthy() bool {
	cs.mu.RLock()
	healthy := cs.healthy
	lastCheck := cs.lastCheck
	cs.mu.RUnlock()

	if healthy {
		return true
	}

	// Probe at most once per check interval while tripped
	if time.Since(lastCheck) >= cs.checkInterval {
		cs.mu.Lock()
		cs.lastCheck = time.Now()
		cs.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cs.client.Ping(ctx).Err(); err == nil {
			cs.mu.Lock()
			cs.healthy = true
			cs.failureCount = 0
			cs.mu.Unlock()
			cs.logger.Info().Msg("Redis connection recovered")
			return true
		}
	}
	return false
}

func (cs *CacheService) recordFailure(err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.healthy && cs.failureCount >= cs.maxFailures {
		cs.healthy = false
		cs.lastCheck = time.Now()
		cs.logger.Warn().Err(err).Int("failures", cs.failureCount).
			Msg("Redis circuit breaker tripped, degrading to in-memory caching")
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.failureCount > 0 {
		cs.failureCount = 0
	}
}
