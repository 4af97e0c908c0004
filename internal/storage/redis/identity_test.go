package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

type fakeClient struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeClient) MGet(_ context.Context, keys ...string) *goredis.SliceCmd {
	if f.err != nil {
		return goredis.NewSliceResult(nil, f.err)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			out[i] = v
		}
	}
	return goredis.NewSliceResult(out, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

type fakeResolver struct {
	identities map[string]product.Type
	calls      int
	idsCalls   [][]string
}

func (r *fakeResolver) Resolve(_ context.Context, id string) (*product.Identity, error) {
	r.calls++
	typ, ok := r.identities[id]
	if !ok {
		return nil, nil
	}
	return &product.Identity{ID: id, Type: typ}, nil
}

func (r *fakeResolver) ResolveMany(_ context.Context, _ string, values []string, _ product.Type) ([]product.Identity, error) {
	r.calls++
	var out []product.Identity
	for _, v := range values {
		if typ, ok := r.identities[v]; ok {
			out = append(out, product.Identity{ID: v, Type: typ})
		}
	}
	return out, nil
}

func (r *fakeResolver) ResolveIDs(_ context.Context, ids []string) ([]product.Identity, error) {
	r.idsCalls = append(r.idsCalls, ids)
	var out []product.Identity
	for _, id := range ids {
		if typ, ok := r.identities[id]; ok {
			out = append(out, product.Identity{ID: id, Type: typ})
		}
	}
	return out, nil
}

func TestIdentityCache_Resolve(t *testing.T) {
	ctx := context.Background()
	backing := &fakeResolver{identities: map[string]product.Type{"b1": product.TypeBook}}
	client := newFakeClient()
	cache := NewIdentityCache(backing, client, time.Minute)

	ident, err := cache.Resolve(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, product.TypeBook, ident.Type)
	assert.Equal(t, "book", client.data["identity:b1"])
	assert.Equal(t, time.Minute, client.ttls["identity:b1"])

	ident, err = cache.Resolve(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, 1, backing.calls, "second lookup must be served from cache")
}

func TestIdentityCache_MissNotCached(t *testing.T) {
	ctx := context.Background()
	backing := &fakeResolver{identities: map[string]product.Type{}}
	client := newFakeClient()
	cache := NewIdentityCache(backing, client, time.Minute)

	ident, err := cache.Resolve(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, ident)
	assert.Empty(t, client.data)

	backing.identities["nope"] = product.TypeChapter
	ident, err = cache.Resolve(ctx, "nope")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, product.TypeChapter, ident.Type)
}

func TestIdentityCache_RedisDown(t *testing.T) {
	ctx := context.Background()
	backing := &fakeResolver{identities: map[string]product.Type{"j1": product.TypeJournal}}
	client := newFakeClient()
	client.err = errors.New("connection refused")
	cache := NewIdentityCache(backing, client, time.Minute)

	ident, err := cache.Resolve(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, product.TypeJournal, ident.Type)

	ids, err := cache.ResolveIDs(ctx, []string{"j1", "x"})
	require.NoError(t, err)
	assert.Equal(t, []product.Identity{{ID: "j1", Type: product.TypeJournal}}, ids)
}

func TestIdentityCache_ResolveIDs(t *testing.T) {
	ctx := context.Background()
	backing := &fakeResolver{identities: map[string]product.Type{
		"b1": product.TypeBook,
		"c1": product.TypeChapter,
	}}
	client := newFakeClient()
	client.data["identity:b1"] = "book"
	cache := NewIdentityCache(backing, client, time.Minute)

	ids, err := cache.ResolveIDs(ctx, []string{"b1", "c1", "zz"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []product.Identity{
		{ID: "b1", Type: product.TypeBook},
		{ID: "c1", Type: product.TypeChapter},
	}, ids)
	require.Len(t, backing.idsCalls, 1)
	assert.Equal(t, []string{"c1", "zz"}, backing.idsCalls[0])
	assert.Equal(t, "chapter", client.data["identity:c1"])
	assert.NotContains(t, client.data, "identity:zz")
}

func TestIdentityCache_ResolveManyPassesThrough(t *testing.T) {
	backing := &fakeResolver{identities: map[string]product.Type{"978": product.TypeBook}}
	client := newFakeClient()
	cache := NewIdentityCache(backing, client, time.Minute)

	ids, err := cache.ResolveMany(context.Background(), "isbn", []string{"978"}, "")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Empty(t, client.data)
}
