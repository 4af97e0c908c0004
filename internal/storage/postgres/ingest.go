package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

const (
	upsertIdentitySQL = `INSERT INTO product_identities (id, type, identifiers)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, identifiers = EXCLUDED.identifiers`

	upsertProductSQL = `INSERT INTO products (id, type, active, list_price, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			active = EXCLUDED.active,
			list_price = EXCLUDED.list_price,
			doc = EXCLUDED.doc,
			updated_at = now()`

	writtenSinceSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND updated_at >= $2)`

	deleteMediaSQL = `DELETE FROM media WHERE parent_id = $1`

	insertMediaSQL = `INSERT INTO media (id, parent_id, parent_type, version_type, type, location, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			parent_type = EXCLUDED.parent_type,
			version_type = EXCLUDED.version_type,
			type = EXCLUDED.type,
			location = EXCLUDED.location,
			size = EXCLUDED.size`
)

// IngestRecord is one product as loaded from a document dump.
type IngestRecord struct {
	ID     string
	Type   product.Type
	Active bool
	// Identifiers is the raw JSON object of document identifiers.
	Identifiers []byte
	// ListPrice is the lowest list price found in the document, if any.
	ListPrice decimal.NullDecimal
	// Doc is the raw JSON document.
	Doc   []byte
	Media []product.MediaRef
}

// Ingester writes product records, their identities and media.
type Ingester struct {
	pool *pgxpool.Pool
}

// NewIngester returns an Ingester that uses the given pool.
func NewIngester(pool *pgxpool.Pool) *Ingester {
	return &Ingester{pool: pool}
}

// Upsert stores rec in one transaction. The media of the product are
// replaced by rec.Media.
func (w *Ingester) Upsert(ctx context.Context, rec IngestRecord) error {
	identifiers := rec.Identifiers
	if len(identifiers) == 0 {
		identifiers = []byte("{}")
	}

	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertIdentitySQL, rec.ID, string(rec.Type), identifiers); err != nil {
			return fmt.Errorf("upserting identity: %w", err)
		}
		if _, err := tx.Exec(ctx, upsertProductSQL, rec.ID, string(rec.Type), rec.Active, rec.ListPrice, rec.Doc); err != nil {
			return fmt.Errorf("upserting product: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteMediaSQL, rec.ID); err != nil {
			return fmt.Errorf("deleting media: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range rec.Media {
			batch.Queue(insertMediaSQL, m.ID, rec.ID, string(rec.Type), m.VersionType, m.Type, m.Location, m.Size)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting media: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ingesting %s %q: %w", rec.Type, rec.ID, err)
	}
	return nil
}

// WrittenSince reports whether product id was written at or after since.
func (w *Ingester) WrittenSince(ctx context.Context, id string, since time.Time) (bool, error) {
	var ok bool
	if err := w.pool.QueryRow(ctx, writtenSinceSQL, id, since).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking product %q: %w", id, err)
	}
	return ok, nil
}

// Now returns the database clock, the reference for WrittenSince.
func (w *Ingester) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := w.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("reading database clock: %w", err)
	}
	return now, nil
}
