package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"libreg/internal/geo"
	"libreg/internal/geo/models"
)

const cacheKeyPrefix = "libreg:place:"

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	RecordPlaceCache(result string)
}

// CachedResolver is a read-through Redis cache in front of another Resolver.
// Cache failures degrade to the wrapped resolver; they never fail a lookup.
type CachedResolver struct {
	next     geo.Resolver
	client   redis.UniversalClient
	ttl      time.Duration
	logger   *slog.Logger
	observer CacheObserver
}

// CacheOption configures a CachedResolver.
type CacheOption func(*CachedResolver)

// WithCacheLogger sets the logger used for degraded-cache warnings.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedResolver) {
		c.logger = logger
	}
}

// WithCacheObserver sets a hit/miss observer, typically Prometheus metrics.
func WithCacheObserver(o CacheObserver) CacheOption {
	return func(c *CachedResolver) {
		c.observer = o
	}
}

// NewCachedResolver wraps next with a Redis cache.
func NewCachedResolver(next geo.Resolver, client redis.UniversalClient, ttl time.Duration, opts ...CacheOption) *CachedResolver {
	c := &CachedResolver{next: next, client: client, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cachedResolution struct {
	Outcome geo.Outcome   `json:"outcome"`
	Place   *models.Place `json:"place,omitempty"`
}

func (c *CachedResolver) Resolve(ctx context.Context, name string, scope *models.Place) (geo.Resolution, error) {
	key := resolveKey(name, scope)
	if cached, ok := c.get(ctx, key); ok {
		return geo.Resolution{Outcome: cached.Outcome, Place: cached.Place}, nil
	}
	res, err := c.next.Resolve(ctx, name, scope)
	if err != nil {
		return geo.Resolution{}, err
	}
	c.set(ctx, key, cachedResolution{Outcome: res.Outcome, Place: res.Place})
	return res, nil
}

func (c *CachedResolver) Everywhere(ctx context.Context) (*models.Place, error) {
	key := cacheKeyPrefix + "everywhere"
	if cached, ok := c.get(ctx, key); ok && cached.Place != nil {
		return cached.Place, nil
	}
	p, err := c.next.Everywhere(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, cachedResolution{Outcome: geo.Found, Place: p})
	return p, nil
}

func (c *CachedResolver) get(ctx context.Context, key string) (cachedResolution, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(ctx, "place cache read failed", key, err)
		}
		c.observe("miss")
		return cachedResolution{}, false
	}
	var cached cachedResolution
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.warn(ctx, "place cache entry corrupt", key, err)
		c.observe("miss")
		return cachedResolution{}, false
	}
	c.observe("hit")
	return cached, true
}

func (c *CachedResolver) set(ctx context.Context, key string, value cachedResolution) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.warn(ctx, "place cache encode failed", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn(ctx, "place cache write failed", key, err)
	}
}

func (c *CachedResolver) warn(ctx context.Context, msg, key string, err error) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, "key", key, "error", err)
	}
}

func (c *CachedResolver) observe(result string) {
	if c.observer != nil {
		c.observer.RecordPlaceCache(result)
	}
}

func resolveKey(name string, scope *models.Place) string {
	scopeID := "nation"
	if scope != nil && !scope.IsEverywhere() {
		scopeID = strconv.FormatInt(scope.ID, 10)
	}
	return fmt.Sprintf("%s%s:%s", cacheKeyPrefix, scopeID, name)
}
