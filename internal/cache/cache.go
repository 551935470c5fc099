// Package cache is a Redis read-through cache for professor and course
// detail reads. All Redis calls go through a circuit breaker so a failing
// Redis degrades to cache misses instead of slowing every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/proflens/internal/domain"
)

const keyPrefix = "proflens"

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed in the half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once reached, after MinRequests calls.
	FailureRatio float64
	MinRequests  uint32
}

// Config holds the cache settings.
type Config struct {
	TTL     time.Duration
	Breaker BreakerConfig
}

// DefaultConfig returns a five minute TTL and the breaker defaults.
func DefaultConfig() Config {
	return Config{
		TTL: 5 * time.Minute,
		Breaker: BreakerConfig{
			MaxRequests:  1,
			Interval:     60 * time.Second,
			Timeout:      30 * time.Second,
			FailureRatio: 0.5,
			MinRequests:  5,
		},
	}
}

// EntityCache stores JSON-encoded entity details keyed by kind and id.
type EntityCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// New creates a cache on client.
func New(client redis.Cmdable, cfg Config, logger *slog.Logger) *EntityCache {
	const name = "redis-cache"
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Breaker.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.Breaker.FailureRatio
		},
		// A miss is a healthy answer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	breakerState.WithLabelValues(name).Set(0)

	return &EntityCache{
		client:  client,
		ttl:     cfg.TTL,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

// Key returns the Redis key of an entity, e.g. "proflens:course:<id>".
func Key(kind domain.EntityKind, id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, id)
}

// Get decodes the cached entity into dst. It reports false on a miss.
func (c *EntityCache) Get(ctx context.Context, kind domain.EntityKind, id string, dst any) (bool, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.client.Get(ctx, Key(kind, id)).Bytes()
	})
	switch {
	case errors.Is(err, redis.Nil):
		requestsTotal.WithLabelValues(kind.String(), "miss").Inc()
		return false, nil
	case err != nil:
		requestsTotal.WithLabelValues(kind.String(), "error").Inc()
		return false, fmt.Errorf("cache get %s: %w", Key(kind, id), err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		requestsTotal.WithLabelValues(kind.String(), "error").Inc()
		return false, fmt.Errorf("decode cached %s: %w", Key(kind, id), err)
	}
	requestsTotal.WithLabelValues(kind.String(), "hit").Inc()
	return true, nil
}

// Set stores v under the entity's key with the configured TTL.
func (c *EntityCache) Set(ctx context.Context, kind domain.EntityKind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s for cache: %w", Key(kind, id), err)
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, Key(kind, id), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", Key(kind, id), err)
	}
	return nil
}

// Invalidate removes the cached entries of the given entities.
func (c *EntityCache) Invalidate(ctx context.Context, kind domain.EntityKind, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, Key(kind, id))
	}
	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity, bypassing the breaker.
func (c *EntityCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// State returns the current state of the circuit breaker.
func (c *EntityCache) State() gobreaker.State {
	return c.breaker.State()
}
