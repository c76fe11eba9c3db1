package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const noMatch = "none"

// CachedResolver memoizes tier resolution in Redis. The cache never gets in
// the way of a resolution: any Redis failure falls through to the inner
// resolver. A nil tier match is cached too, as the sentinel "none".
type CachedResolver struct {
	inner  *Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(inner *Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{inner: inner, client: client, ttl: ttl, logger: logger}
}

func rateKey(entityType EntityType, entityID int64, amount float64) string {
	return fmt.Sprintf("veris:rate:%s:%d:%s", entityType, entityID, strconv.FormatFloat(amount, 'f', 2, 64))
}

// Resolve returns the cached rate when present, consulting the tier
// repository otherwise.
func (c *CachedResolver) Resolve(ctx context.Context, entityType EntityType, entityID int64, amount float64) (*float64, error) {
	key := rateKey(entityType, entityID, amount)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == noMatch {
			return nil, nil
		}
		if rate, perr := strconv.ParseFloat(cached, 64); perr == nil {
			return &rate, nil
		}
		// Unparseable entry, drop it and resolve fresh.
		_ = c.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		c.warn("rate cache get", err)
	}

	rate, err := c.inner.Resolve(ctx, entityType, entityID, amount)
	if err != nil {
		return nil, err
	}

	value := noMatch
	if rate != nil {
		value = strconv.FormatFloat(*rate, 'f', -1, 64)
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.warn("rate cache set", err)
	}
	return rate, nil
}

// Invalidate drops every cached resolution for the entity. Called after tier
// writes so stale rates never outlive a tier change by more than one request.
func (c *CachedResolver) Invalidate(ctx context.Context, entityType EntityType, entityID int64) error {
	pattern := fmt.Sprintf("veris:rate:%s:%d:*", entityType, entityID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *CachedResolver) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}
