package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Type is the concrete kind of a catalog product.
type Type string

// Known product types. The set is closed: identifiers resolving to any other
// type are never dispatched.
const (
	TypeBook               Type = "book"
	TypeChapter            Type = "chapter"
	TypeJournal            Type = "journal"
	TypeCollection         Type = "collection"
	TypeCreativeWork       Type = "creativeWork"
	TypeScholarlyArticle   Type = "scholarlyArticle"
	TypePreArticle         Type = "preArticle"
	TypeManuscriptWorkflow Type = "manuscriptWorkflow"
	TypeSet                Type = "set"
	TypeSeries             Type = "series"
)

// Types lists every known product type in a stable order.
var Types = []Type{
	TypeBook,
	TypeChapter,
	TypeJournal,
	TypeCollection,
	TypeCreativeWork,
	TypeScholarlyArticle,
	TypePreArticle,
	TypeManuscriptWorkflow,
	TypeSet,
	TypeSeries,
}

// Valid reports whether t is one of the known product types.
func (t Type) Valid() bool {
	switch t {
	case TypeBook, TypeChapter, TypeJournal, TypeCollection, TypeCreativeWork,
		TypeScholarlyArticle, TypePreArticle, TypeManuscriptWorkflow, TypeSet, TypeSeries:
		return true
	default:
		return false
	}
}

// ParseType converts s into a known Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", &InvalidInputError{Field: "type", Reason: "unknown product type " + s}
	}
	return t, nil
}

// Identity is the lightweight pointer from an opaque id to its concrete type.
type Identity struct {
	ID   string
	Type Type
}

// AvailabilityEntry describes availability of a product on one distribution
// channel. Several entries may share a channel name.
type AvailabilityEntry struct {
	Name   string   `json:"name"`
	Status []string `json:"status"`
	Errors []string `json:"errors"`
}

// Price is a single price point of a product. An empty Region marks a global
// price.
type Price struct {
	Type     string
	Region   string
	Currency string
	Amount   decimal.Decimal
}

// MediaRef is a media item attached to a product through ParentID.
type MediaRef struct {
	ID          string
	ParentID    string
	ParentType  Type
	VersionType string
	Type        string
	Location    string
	Size        int64
}

// Filter holds the optional store-level filters of a product fetch.
type Filter struct {
	ChannelName     string
	ChannelStatuses []string
	Variant         string
	Region          string
}

// IdentityResolver maps opaque identifiers to their concrete product type.
type IdentityResolver interface {
	// Resolve returns nil without error when id is unknown.
	Resolve(ctx context.Context, id string) (*Identity, error)
	// ResolveMany returns identities whose identifier fieldName matches any of
	// values. An empty typ matches every type.
	ResolveMany(ctx context.Context, fieldName string, values []string, typ Type) ([]Identity, error)
	// ResolveIDs returns identities for the subset of ids that exist.
	ResolveIDs(ctx context.Context, ids []string) ([]Identity, error)
}

// Store reads type-specific product documents.
type Store interface {
	// FetchOne returns nil without error when no document matches.
	FetchOne(ctx context.Context, typ Type, id string, fields []Field, f Filter) (*Document, error)
	FetchMany(ctx context.Context, typ Type, ids []string, fields []Field, f Filter) ([]Document, error)
	FetchActiveIDs(ctx context.Context, typ Type, ids []string) ([]string, error)
}

// MediaStore reads media items by parent product id.
type MediaStore interface {
	FetchByParent(ctx context.Context, id string, includeLocationForAll bool) ([]MediaRef, error)
	FetchByParents(ctx context.Context, ids []string, includeLocationForAll bool) ([]MediaRef, error)
}
