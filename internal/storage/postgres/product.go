package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
	"github.com/xenking/catalog-aggregator/internal/domain/variant"
)

// Projection, channel and variant filters are evaluated by PostgreSQL:
//
//	$1 ids, $2 type, $3 all fields, $4 field subset,
//	$5 channel name, $6 channel statuses, $7 variant format code.
const fetchProductsSQL = `SELECT p.id, p.type,
		CASE WHEN $3::bool THEN p.doc
		ELSE COALESCE(
			(SELECT jsonb_object_agg(e.key, e.value) FROM jsonb_each(p.doc) e WHERE e.key = ANY($4::text[])),
			'{}'::jsonb)
		END
	FROM products p
	WHERE p.id = ANY($1::text[]) AND p.type = $2::text
	  AND ($5::text = '' OR EXISTS (
		SELECT 1 FROM jsonb_array_elements(
			CASE jsonb_typeof(p.doc -> 'availability') WHEN 'array' THEN p.doc -> 'availability' ELSE '[]'::jsonb END
		) a
		WHERE a ->> 'name' = $5::text
		  AND (cardinality($6::text[]) = 0 OR (a -> 'status') ?| $6::text[])))
	  AND ($7::text = '' OR p.doc -> p.type ->> 'formatCode' = $7::text)
	ORDER BY p.id`

const (
	fetchActiveIDsSQL = `SELECT id FROM products
		WHERE type = $1 AND id = ANY($2::text[]) AND active
		ORDER BY id`

	fetchVariantsSQL = `SELECT id,
		COALESCE(doc -> type ->> 'formatCode', ''),
		COALESCE(doc -> type ->> 'status', '')
		FROM products
		WHERE type = $1 AND id = ANY($2::text[])
		ORDER BY id`
)

var (
	_ product.Store = (*ProductRepository)(nil)
	_ variant.Store = (*ProductRepository)(nil)
)

// ProductRepository reads type-specific product documents from PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// FetchOne returns the projected document of id, or nil when no document
// of typ matches the id and filters.
func (r *ProductRepository) FetchOne(ctx context.Context, typ product.Type, id string, fields []product.Field, f product.Filter) (*product.Document, error) {
	docs, err := r.fetch(ctx, typ, []string{id}, fields, f)
	if err != nil {
		return nil, fmt.Errorf("getting %s %q: %w", typ, id, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

// FetchMany returns the projected documents of typ among ids that match the
// filters, ordered by id.
func (r *ProductRepository) FetchMany(ctx context.Context, typ product.Type, ids []string, fields []product.Field, f product.Filter) ([]product.Document, error) {
	docs, err := r.fetch(ctx, typ, ids, fields, f)
	if err != nil {
		return nil, fmt.Errorf("getting %s products: %w", typ, err)
	}
	return docs, nil
}

func (r *ProductRepository) fetch(ctx context.Context, typ product.Type, ids []string, fields []product.Field, f product.Filter) ([]product.Document, error) {
	rows, err := r.pool.Query(ctx, fetchProductsSQL,
		ids,
		string(typ),
		fields == nil,
		nonNil(fieldNames(fields)),
		f.ChannelName,
		nonNil(f.ChannelStatuses),
		f.Variant,
	)
	if err != nil {
		return nil, err
	}

	docs, err := pgx.CollectRows(rows, scanDocument)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		// id and type come from the row, the stored document may lack them.
		docs[i] = docs[i].WithIdentity(fields)
		if docs[i], err = docs[i].WithRegion(f.Region); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// FetchActiveIDs returns the ids of typ that are flagged active.
func (r *ProductRepository) FetchActiveIDs(ctx context.Context, typ product.Type, ids []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, fetchActiveIDsSQL, string(typ), ids)
	if err != nil {
		return nil, fmt.Errorf("getting active %s ids: %w", typ, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// FetchVariants returns format code and status of each candidate, ordered
// by id.
func (r *ProductRepository) FetchVariants(ctx context.Context, typ product.Type, ids []string) ([]variant.Record, error) {
	rows, err := r.pool.Query(ctx, fetchVariantsSQL, string(typ), ids)
	if err != nil {
		return nil, fmt.Errorf("getting %s variants: %w", typ, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (variant.Record, error) {
		var rec variant.Record
		err := row.Scan(&rec.ID, &rec.FormatCode, &rec.Status)
		return rec, err
	})
}

func scanDocument(row pgx.CollectableRow) (product.Document, error) {
	var (
		id, typ string
		raw     []byte
	)
	if err := row.Scan(&id, &typ, &raw); err != nil {
		return product.Document{}, err
	}
	doc, err := product.DecodeDocument(raw)
	if err != nil {
		return product.Document{}, fmt.Errorf("product %q: %w", id, err)
	}
	doc.ID = id
	doc.Type = product.Type(typ)
	return doc, nil
}
