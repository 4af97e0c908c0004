// Package variant picks the canonical electronic-book edition among several
// products representing the same work.
package variant

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

// FormatEbook is the format code of electronic-book editions.
const FormatEbook = "EBK"

// Edition statuses in canonical-selection priority order.
const (
	StatusAvailable  = "Available"
	StatusOutOfPrint = "Out of Print"
	StatusWithdrawn  = "Withdrawn"
)

var statusPriority = []string{StatusAvailable, StatusOutOfPrint, StatusWithdrawn}

// Record is the format and status of one candidate edition, read from the
// candidate's type-specific object.
type Record struct {
	ID         string
	FormatCode string
	Status     string
}

// Store fetches format and status for candidate ids. The order of the
// returned records is defined by the store.
type Store interface {
	FetchVariants(ctx context.Context, typ product.Type, ids []string) ([]Record, error)
}

// Resolver selects canonical e-book ids.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// CanonicalEbookID returns the canonical e-book id among candidates, or an
// empty string when none qualifies.
//
// A single candidate is returned as is without a lookup. Otherwise only
// records with the EBK format code are considered; when several remain, the
// first record with status Available wins, then Out of Print, then Withdrawn.
// Candidates in any other status never win.
func (r *Resolver) CanonicalEbookID(ctx context.Context, candidates []string, typ product.Type) (string, error) {
	switch len(candidates) {
	case 0:
		return "", &product.InvalidInputError{Field: "ids", Reason: "at least one candidate id is required"}
	case 1:
		return candidates[0], nil
	}

	records, err := r.store.FetchVariants(ctx, typ, candidates)
	if err != nil {
		return "", errors.Wrap(err, "fetch variants")
	}
	return pick(records), nil
}

func pick(records []Record) string {
	var ebooks []Record
	for _, rec := range records {
		if rec.FormatCode == FormatEbook {
			ebooks = append(ebooks, rec)
		}
	}

	switch len(ebooks) {
	case 0:
		return ""
	case 1:
		return ebooks[0].ID
	}

	for _, status := range statusPriority {
		for _, rec := range ebooks {
			if rec.Status == status {
				return rec.ID
			}
		}
	}
	return ""
}
