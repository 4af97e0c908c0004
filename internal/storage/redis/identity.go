// Package redis caches identity lookups in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

const keyPrefix = "identity:"

// Client is the subset of the go-redis API used by the cache.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

var _ product.IdentityResolver = (*IdentityCache)(nil)

// IdentityCache is a read-through cache in front of an IdentityResolver.
// Only found identities are cached. Redis failures are logged and the
// lookup falls through to the backing resolver.
type IdentityCache struct {
	next   product.IdentityResolver
	client Client
	ttl    time.Duration
}

// NewIdentityCache wraps next with a Redis cache whose entries expire after ttl.
func NewIdentityCache(next product.IdentityResolver, client Client, ttl time.Duration) *IdentityCache {
	return &IdentityCache{next: next, client: client, ttl: ttl}
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

func identityKey(id string) string { return keyPrefix + id }

// Resolve returns the cached identity of id, or asks the backing resolver.
func (c *IdentityCache) Resolve(ctx context.Context, id string) (*product.Identity, error) {
	typ, err := c.client.Get(ctx, identityKey(id)).Result()
	switch {
	case err == nil:
		if t := product.Type(typ); t.Valid() {
			return &product.Identity{ID: id, Type: t}, nil
		}
	case errors.Is(err, goredis.Nil):
	default:
		zctx.From(ctx).Warn("Identity cache read failed", zap.String("id", id), zap.Error(err))
	}

	ident, err := c.next.Resolve(ctx, id)
	if err != nil || ident == nil {
		return ident, err
	}
	c.store(ctx, *ident)
	return ident, nil
}

// ResolveMany is not cached: identifier lookups are keyed by arbitrary
// document fields.
func (c *IdentityCache) ResolveMany(ctx context.Context, fieldName string, values []string, typ product.Type) ([]product.Identity, error) {
	return c.next.ResolveMany(ctx, fieldName, values, typ)
}

// ResolveIDs returns cached identities and resolves the rest with one call to
// the backing resolver.
func (c *IdentityCache) ResolveIDs(ctx context.Context, ids []string) ([]product.Identity, error) {
	if len(ids) == 0 {
		return c.next.ResolveIDs(ctx, ids)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = identityKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		zctx.From(ctx).Warn("Identity cache read failed", zap.Int("ids", len(ids)), zap.Error(err))
		vals = nil
	}

	var (
		out    []product.Identity
		misses []string
	)
	for i, id := range ids {
		if i < len(vals) {
			if s, ok := vals[i].(string); ok && product.Type(s).Valid() {
				out = append(out, product.Identity{ID: id, Type: product.Type(s)})
				continue
			}
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	resolved, err := c.next.ResolveIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, ident := range resolved {
		c.store(ctx, ident)
	}
	return append(out, resolved...), nil
}

func (c *IdentityCache) store(ctx context.Context, ident product.Identity) {
	if err := c.client.Set(ctx, identityKey(ident.ID), string(ident.Type), c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Identity cache write failed", zap.String("id", ident.ID), zap.Error(err))
	}
}
