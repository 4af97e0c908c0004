package aggregate

import (
	"github.com/go-faster/errors"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
	"github.com/xenking/catalog-aggregator/internal/domain/projection"
)

// versionsMedia reports whether media of typ are related by version marker
// in addition to parent id.
func versionsMedia(typ product.Type) bool {
	switch typ {
	case product.TypeScholarlyArticle:
		return true
	case product.TypeBook, product.TypeChapter, product.TypeJournal, product.TypeCollection,
		product.TypeCreativeWork, product.TypePreArticle, product.TypeManuscriptWorkflow,
		product.TypeSet, product.TypeSeries:
		return false
	default:
		return false
	}
}

// filtersActive reports whether ids of typ must pass the active-record check
// before a batch fetch. A journal may have several historical records.
func filtersActive(typ product.Type) bool {
	switch typ {
	case product.TypeJournal:
		return true
	case product.TypeBook, product.TypeChapter, product.TypeCollection, product.TypeCreativeWork,
		product.TypeScholarlyArticle, product.TypePreArticle, product.TypeManuscriptWorkflow,
		product.TypeSet, product.TypeSeries:
		return false
	default:
		return false
	}
}

// storeFields returns the fields to request from the store for p, and the
// fields added only for internal use that must be dropped before shaping.
func storeFields(typ product.Type, p projection.Projection) (fields, hidden []product.Field) {
	fields = p.Fields()
	if p.IsAll() {
		return nil, nil
	}
	if p.WantsMedia() && versionsMedia(typ) && !p.Includes(typ.DetailField()) {
		fields = append(fields, typ.DetailField())
		hidden = append(hidden, typ.DetailField())
	}
	return fields, hidden
}

// relatedMedia selects the media items that belong to doc.
func relatedMedia(doc product.Document, media []product.MediaRef) ([]product.MediaRef, error) {
	version := ""
	versioned := versionsMedia(doc.Type)
	if versioned {
		v, err := doc.CurrentVersion()
		if err != nil {
			return nil, errors.Wrap(err, "current version")
		}
		version = v
	}

	out := make([]product.MediaRef, 0, len(media))
	for _, m := range media {
		if m.ParentID != doc.ID {
			continue
		}
		if versioned && m.VersionType != version {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// wrap shapes a fetched document into the caller-facing envelope. The
// document is not modified; a new value is returned.
func wrap(
	doc product.Document,
	p projection.Projection,
	hidden []product.Field,
	media []product.MediaRef,
	channelName string,
) (product.Wrapper, error) {
	out := doc
	if p.WantsMedia() {
		related, err := relatedMedia(doc, media)
		if err != nil {
			return product.Wrapper{}, err
		}
		out = out.With(product.FieldAssociatedMedia, product.EncodeMedia(related))
	}
	for _, f := range hidden {
		out = out.Without(f)
	}

	if !p.WantsAvailability() {
		return product.Wrapper{Product: out}, nil
	}

	availability, err := product.FilterAvailability(doc, channelName)
	if err != nil {
		return product.Wrapper{}, err
	}
	return product.Wrapper{
		Product:         out.Without(product.FieldAvailability),
		Availability:    availability,
		HasAvailability: true,
	}, nil
}

// typeGroup is the set of ids of one concrete type within a batch.
type typeGroup struct {
	typ    product.Type
	ids    []string
	fields []product.Field
}

// groupByType splits identities by concrete type, keeping the order in which
// each type first appears. Unknown types are dropped and duplicate ids are
// collapsed.
func groupByType(identities []product.Identity) []typeGroup {
	var groups []typeGroup
	index := make(map[product.Type]int)
	seen := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		if !id.Type.Valid() {
			continue
		}
		if _, ok := seen[id.ID]; ok {
			continue
		}
		seen[id.ID] = struct{}{}

		i, ok := index[id.Type]
		if !ok {
			i = len(groups)
			index[id.Type] = i
			groups = append(groups, typeGroup{typ: id.Type})
		}
		groups[i].ids = append(groups[i].ids, id.ID)
	}
	return groups
}
