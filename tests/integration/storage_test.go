//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
	"github.com/xenking/catalog-aggregator/internal/domain/variant"
	"github.com/xenking/catalog-aggregator/internal/storage/postgres"
)

func ids(docs []product.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewIdentityRepository(pool)

	ident, err := repo.Resolve(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, product.Identity{ID: "b1", Type: product.TypeBook}, *ident)

	ident, err = repo.Resolve(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, ident)

	many, err := repo.ResolveMany(ctx, "isbn", []string{"978-2", "978-1", "nope"}, "")
	require.NoError(t, err)
	assert.Equal(t, []product.Identity{
		{ID: "b1", Type: product.TypeBook},
		{ID: "b2", Type: product.TypeBook},
	}, many)

	many, err = repo.ResolveMany(ctx, "isbn", []string{"978-1"}, product.TypeChapter)
	require.NoError(t, err)
	assert.Empty(t, many)

	_, err = repo.ResolveMany(ctx, "isbn'; --", []string{"978-1"}, "")
	assert.True(t, errors.Is(err, product.ErrInvalidInput))

	byID, err := repo.ResolveIDs(ctx, []string{"j2", "a1", "zz"})
	require.NoError(t, err)
	assert.Equal(t, []product.Identity{
		{ID: "a1", Type: product.TypeScholarlyArticle},
		{ID: "j2", Type: product.TypeJournal},
	}, byID)
}

func TestProductRepository_Projection(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewProductRepository(pool)

	doc, err := repo.FetchOne(ctx, product.TypeBook, "b1", []product.Field{product.FieldTitle}, product.Filter{})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "b1", doc.ID)
	assert.Equal(t, product.TypeBook, doc.Type)
	assert.Equal(t, []product.Field{product.FieldTitle}, doc.Keys())

	doc, err = repo.FetchOne(ctx, product.TypeBook, "b1", []product.Field{product.FieldID, product.FieldTitle}, product.Filter{})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []product.Field{product.FieldID, product.FieldTitle}, doc.Keys())

	doc, err = repo.FetchOne(ctx, product.TypeBook, "b1", nil, product.Filter{})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, doc.Has(product.FieldID))
	assert.True(t, doc.Has(product.FieldType))
	assert.True(t, doc.Has(product.FieldAvailability))
	assert.True(t, doc.Has(product.FieldPrices))

	doc, err = repo.FetchOne(ctx, product.TypeChapter, "b1", nil, product.Filter{})
	require.NoError(t, err)
	assert.Nil(t, doc, "type mismatch yields no document")
}

func TestProductRepository_Filters(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewProductRepository(pool)
	books := []string{"b3", "b2", "b1"}

	tests := []struct {
		name   string
		filter product.Filter
		want   []string
	}{
		{name: "none", filter: product.Filter{}, want: []string{"b1", "b2", "b3"}},
		{name: "channel", filter: product.Filter{ChannelName: "web"}, want: []string{"b1", "b2"}},
		{name: "channel status", filter: product.Filter{ChannelName: "store", ChannelStatuses: []string{"retired", "live"}}, want: []string{"b1"}},
		{name: "channel status miss", filter: product.Filter{ChannelName: "store", ChannelStatuses: []string{"live"}}, want: []string{}},
		{name: "variant", filter: product.Filter{Variant: "EBK"}, want: []string{"b1", "b3"}},
		{name: "variant and channel", filter: product.Filter{Variant: "EBK", ChannelName: "web"}, want: []string{"b1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := repo.FetchMany(ctx, product.TypeBook, books, []product.Field{product.FieldTitle}, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestProductRepository_Region(t *testing.T) {
	repo := postgres.NewProductRepository(pool)

	doc, err := repo.FetchOne(context.Background(), product.TypeBook, "b1",
		[]product.Field{product.FieldPrices}, product.Filter{Region: "US"})
	require.NoError(t, err)
	require.NotNil(t, doc)

	prices, err := doc.Prices()
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "US", prices[0].Region)
	assert.Empty(t, prices[1].Region)
}

func TestProductRepository_ActiveAndVariants(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewProductRepository(pool)

	active, err := repo.FetchActiveIDs(ctx, product.TypeJournal, []string{"j1", "j2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"j2"}, active)

	records, err := repo.FetchVariants(ctx, product.TypeBook, []string{"b3", "b1", "b2"})
	require.NoError(t, err)
	assert.Equal(t, []variant.Record{
		{ID: "b1", FormatCode: "EBK", Status: "Available"},
		{ID: "b2", FormatCode: "HBK", Status: "Available"},
		{ID: "b3", FormatCode: "EBK", Status: "Out of Print"},
	}, records)
}

func TestMediaRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewMediaRepository(pool, nil)

	media, err := repo.FetchByParent(ctx, "b1", false)
	require.NoError(t, err)
	require.Len(t, media, 2)
	assert.Equal(t, "s3://covers/b1.jpg", media[0].Location, "cover locations are public")
	assert.Empty(t, media[1].Location)
	assert.Equal(t, product.TypeBook, media[1].ParentType)

	media, err = repo.FetchByParent(ctx, "b1", true)
	require.NoError(t, err)
	assert.Equal(t, "s3://files/b1.pdf", media[1].Location)

	media, err = repo.FetchByParents(ctx, []string{"a1", "b2"}, false)
	require.NoError(t, err)
	require.Len(t, media, 2)
	assert.Equal(t, "a1", media[0].ParentID)
}

func TestIngester_Reupsert(t *testing.T) {
	ctx := context.Background()
	ing := postgres.NewIngester(pool)

	since, err := ing.Now(ctx)
	require.NoError(t, err)

	written, err := ing.WrittenSince(ctx, "b2", since)
	require.NoError(t, err)
	assert.False(t, written)

	require.NoError(t, ing.Upsert(ctx, postgres.IngestRecord{
		ID: "tmp1", Type: product.TypeChapter, Active: true,
		Doc:   []byte(`{"title":"Scratch"}`),
		Media: []product.MediaRef{{ID: "tmp1-m", Type: "image", Location: "x"}},
	}))
	written, err = ing.WrittenSince(ctx, "tmp1", since)
	require.NoError(t, err)
	assert.True(t, written)

	require.NoError(t, ing.Upsert(ctx, postgres.IngestRecord{
		ID: "tmp1", Type: product.TypeChapter, Active: true,
		Doc: []byte(`{"title":"Scratch v2"}`),
	}))
	media, err := postgres.NewMediaRepository(pool, nil).FetchByParent(ctx, "tmp1", true)
	require.NoError(t, err)
	assert.Empty(t, media, "re-ingest replaces media")
}
