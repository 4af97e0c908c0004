package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

const (
	resolveIdentitySQL = `SELECT id, type FROM product_identities WHERE id = $1`

	resolveIdentitiesByIDsSQL = `SELECT id, type FROM product_identities
		WHERE id = ANY($1::text[]) ORDER BY id`

	resolveIdentitiesByFieldSQL = `SELECT id, type FROM product_identities
		WHERE identifiers ->> $1::text = ANY($2::text[])
		  AND ($3::text = '' OR type = $3::text)
		ORDER BY id`
)

var identifierFieldRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

var _ product.IdentityResolver = (*IdentityRepository)(nil)

// IdentityRepository resolves product identities stored in PostgreSQL.
type IdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository returns an IdentityRepository that uses the given pool.
func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Resolve returns the identity of id, or nil when it does not exist.
func (r *IdentityRepository) Resolve(ctx context.Context, id string) (*product.Identity, error) {
	rows, err := r.pool.Query(ctx, resolveIdentitySQL, id)
	if err != nil {
		return nil, fmt.Errorf("resolving identity %q: %w", id, err)
	}

	ident, err := pgx.CollectExactlyOneRow(rows, scanIdentity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving identity %q: %w", id, err)
	}
	return &ident, nil
}

// ResolveMany returns identities whose identifier fieldName equals any of
// values, restricted to typ unless typ is empty.
func (r *IdentityRepository) ResolveMany(ctx context.Context, fieldName string, values []string, typ product.Type) ([]product.Identity, error) {
	if !identifierFieldRe.MatchString(fieldName) {
		return nil, &product.InvalidInputError{Field: "idFieldName", Reason: fmt.Sprintf("malformed identifier field %q", fieldName)}
	}

	rows, err := r.pool.Query(ctx, resolveIdentitiesByFieldSQL, fieldName, values, string(typ))
	if err != nil {
		return nil, fmt.Errorf("resolving identities by %s: %w", fieldName, err)
	}
	return pgx.CollectRows(rows, scanIdentity)
}

// ResolveIDs returns the identities of the ids that exist.
func (r *IdentityRepository) ResolveIDs(ctx context.Context, ids []string) ([]product.Identity, error) {
	rows, err := r.pool.Query(ctx, resolveIdentitiesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving identities by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanIdentity)
}

func scanIdentity(row pgx.CollectableRow) (product.Identity, error) {
	var (
		ident product.Identity
		typ   string
	)
	err := row.Scan(&ident.ID, &typ)
	ident.Type = product.Type(typ)
	return ident, err
}
