package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/logging"
)

const (
	defaultKeyPrefix = "giis:catalog:"
	defaultCacheTTL  = time.Hour
)

// CacheClient is the subset of *redis.Client the cache uses.
type CacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cached is a read-through cache in front of another catalog. Redis
// failures fall through to the underlying catalog; lookup errors are never
// cached.
type Cached struct {
	next   core.Catalog
	client CacheClient
	ttl    time.Duration
	prefix string
}

var _ core.Catalog = (*Cached)(nil)

// CachedOption configures a Cached catalog.
type CachedOption func(*Cached)

// WithTTL sets how long an answer stays cached.
func WithTTL(ttl time.Duration) CachedOption {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the cache keys.
func WithKeyPrefix(prefix string) CachedOption {
	return func(c *Cached) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// NewCached wraps next with a cache stored in client.
func NewCached(next core.Catalog, client CacheClient, opts ...CachedOption) *Cached {
	c := &Cached{
		next:   next,
		client: client,
		ttl:    defaultCacheTTL,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Cached) CountryExists(ctx context.Context, code string) (bool, error) {
	return c.exists(ctx, "country", code, c.next.CountryExists)
}

func (c *Cached) RegionExists(ctx context.Context, code string) (bool, error) {
	return c.exists(ctx, "region", code, c.next.RegionExists)
}

func (c *Cached) PersonnelTypeExists(ctx context.Context, code string) (bool, error) {
	return c.exists(ctx, "personnel", code, c.next.PersonnelTypeExists)
}

func (c *Cached) AffiliationExists(ctx context.Context, code string) (bool, error) {
	return c.exists(ctx, "affiliation", code, c.next.AffiliationExists)
}

// Establishment caches found and operational as a two character flag.
func (c *Cached) Establishment(ctx context.Context, clues string) (core.EstablishmentInfo, error) {
	key := c.prefix + "establishment:" + normalizeCLUES(clues)

	if v, ok := c.get(ctx, key); ok && len(v) == 2 {
		return core.EstablishmentInfo{Found: v[0] == '1', Operational: v[1] == '1'}, nil
	}

	info, err := c.next.Establishment(ctx, clues)
	if err != nil {
		return core.EstablishmentInfo{}, err
	}
	c.set(ctx, key, flag(info.Found)+flag(info.Operational))
	return info, nil
}

func (c *Cached) exists(ctx context.Context, kind, code string, lookup func(context.Context, string) (bool, error)) (bool, error) {
	key := c.prefix + kind + ":" + normalizeCode(code)

	if v, ok := c.get(ctx, key); ok {
		return v == "1", nil
	}

	found, err := lookup(ctx, code)
	if err != nil {
		return false, err
	}
	c.set(ctx, key, flag(found))
	return found, nil
}

func (c *Cached) get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		logging.FromContext(ctx).Warn("catalog cache read failed", "key", key, "error", err)
		return "", false
	}
	return v, true
}

func (c *Cached) set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("catalog cache write failed", "key", key, "error", err)
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
