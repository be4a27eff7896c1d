package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/pkg/logger"
)

const catalogCacheKey = "fraud:patterns:catalog"

// RedisCache is a read-through cache in front of a catalog source. Redis
// outages trip a circuit breaker and reads fall straight through to the
// upstream source, so the catalog never depends on cache availability.
type RedisCache struct {
	client   *redis.Client
	upstream Source
	ttl      time.Duration
	breaker  *gobreaker.CircuitBreaker
	log      *logger.Logger
}

var _ Source = (*RedisCache)(nil)

// NewRedisCache creates a read-through catalog cache.
func NewRedisCache(client *redis.Client, upstream Source, ttl time.Duration, log *logger.Logger) *RedisCache {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pattern-cache-redis",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
	})

	return &RedisCache{
		client:   client,
		upstream: upstream,
		ttl:      ttl,
		breaker:  breaker,
		log:      log.Named("pattern_cache"),
	}
}

// FetchAll returns the cached catalog when present, refilling from the
// upstream source on a miss.
func (c *RedisCache) FetchAll(ctx context.Context) ([]domain.FraudPattern, error) {
	if entries, ok := c.readCache(ctx); ok {
		return entries, nil
	}

	entries, err := c.upstream.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	c.writeCache(ctx, entries)
	return entries, nil
}

func (c *RedisCache) readCache(ctx context.Context) ([]domain.FraudPattern, bool) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, catalogCacheKey).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("pattern cache read failed", logger.ErrorField(err))
		}
		return nil, false
	}

	var entries []domain.FraudPattern
	if err := json.Unmarshal(raw.([]byte), &entries); err != nil {
		c.log.Warn("pattern cache payload corrupt, falling through", logger.ErrorField(err))
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) writeCache(ctx context.Context, entries []domain.FraudPattern) {
	payload, err := json.Marshal(entries)
	if err != nil {
		c.log.Warn("pattern cache encode failed", logger.ErrorField(err))
		return
	}

	if _, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, catalogCacheKey, payload, c.ttl).Err()
	}); err != nil {
		c.log.Debug("pattern cache write failed", logger.ErrorField(err))
	}
}
