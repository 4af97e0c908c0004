package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

// $1 parent ids, $2 include every location, $3 media types whose location is
// always returned.
const fetchMediaSQL = `SELECT id, parent_id, parent_type, version_type, type,
		CASE WHEN $2::bool OR type = ANY($3::text[]) THEN location ELSE '' END,
		size
	FROM media
	WHERE parent_id = ANY($1::text[])
	ORDER BY parent_id, id`

// DefaultPublicMediaTypes are media types whose location is never withheld.
var DefaultPublicMediaTypes = []string{"cover", "image"}

var _ product.MediaStore = (*MediaRepository)(nil)

// MediaRepository reads media references from PostgreSQL.
type MediaRepository struct {
	pool        *pgxpool.Pool
	publicTypes []string
}

// NewMediaRepository returns a MediaRepository. A nil publicTypes selects
// DefaultPublicMediaTypes.
func NewMediaRepository(pool *pgxpool.Pool, publicTypes []string) *MediaRepository {
	if publicTypes == nil {
		publicTypes = DefaultPublicMediaTypes
	}
	return &MediaRepository{pool: pool, publicTypes: publicTypes}
}

// FetchByParent returns the media of one product.
func (r *MediaRepository) FetchByParent(ctx context.Context, id string, includeLocationForAll bool) ([]product.MediaRef, error) {
	media, err := r.fetch(ctx, []string{id}, includeLocationForAll)
	if err != nil {
		return nil, fmt.Errorf("getting media of %q: %w", id, err)
	}
	return media, nil
}

// FetchByParents returns the media of every product in ids, grouped by parent.
func (r *MediaRepository) FetchByParents(ctx context.Context, ids []string, includeLocationForAll bool) ([]product.MediaRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	media, err := r.fetch(ctx, ids, includeLocationForAll)
	if err != nil {
		return nil, fmt.Errorf("getting media of %d products: %w", len(ids), err)
	}
	return media, nil
}

func (r *MediaRepository) fetch(ctx context.Context, ids []string, includeLocationForAll bool) ([]product.MediaRef, error) {
	rows, err := r.pool.Query(ctx, fetchMediaSQL, ids, includeLocationForAll, nonNil(r.publicTypes))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.MediaRef, error) {
		var (
			m          product.MediaRef
			parentType string
		)
		err := row.Scan(&m.ID, &m.ParentID, &parentType, &m.VersionType, &m.Type, &m.Location, &m.Size)
		m.ParentType = product.Type(parentType)
		return m, err
	})
}
