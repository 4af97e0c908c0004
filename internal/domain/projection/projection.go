// Package projection maps a product type and a response shape to the set of
// document fields returned to the caller.
package projection

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

//go:embed projections.yaml
var defaultCatalog []byte

// allKeyword selects every field of a document, joined fields included.
const allKeyword = "all"

// Projection is either every field of a document or an explicit subset.
type Projection struct {
	all    bool
	fields []product.Field
}

// All returns the projection selecting every field.
func All() Projection {
	return Projection{all: true}
}

// Subset returns a projection selecting only fields, in the given order.
func Subset(fields ...product.Field) Projection {
	return Projection{fields: slices.Clone(fields)}
}

// IsAll reports whether p selects every field.
func (p Projection) IsAll() bool { return p.all }

// Fields returns the selected fields, or nil when p selects every field.
func (p Projection) Fields() []product.Field {
	if p.all {
		return nil
	}
	return slices.Clone(p.fields)
}

// Includes reports whether f is returned under p.
func (p Projection) Includes(f product.Field) bool {
	return p.all || slices.Contains(p.fields, f)
}

// WantsMedia reports whether related media must be joined.
func (p Projection) WantsMedia() bool { return p.Includes(product.FieldAssociatedMedia) }

// WantsAvailability reports whether availability is promoted to the wrapper.
func (p Projection) WantsAvailability() bool { return p.Includes(product.FieldAvailability) }

// Catalog is an immutable lookup of projections by type and shape.
type Catalog struct {
	byType map[product.Type]map[string]Projection
}

// Get returns the projection for typ and shape.
func (c *Catalog) Get(typ product.Type, shape string) (Projection, error) {
	p, ok := c.byType[typ][shape]
	if !ok {
		return Projection{}, &product.InvalidResponseShapeError{Type: typ, Shape: shape}
	}
	return p, nil
}

// Shapes returns the configured shape names for typ, sorted.
func (c *Catalog) Shapes(typ product.Type) []string {
	shapes := make([]string, 0, len(c.byType[typ]))
	for s := range c.byType[typ] {
		shapes = append(shapes, s)
	}
	sort.Strings(shapes)
	return shapes
}

type catalogFile struct {
	Types map[string]map[string]yaml.Node `yaml:"types"`
}

// Load parses a YAML projection catalog. Unknown types, fields not valid for
// their type, and empty field lists are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode projection catalog")
	}

	c := &Catalog{byType: make(map[product.Type]map[string]Projection, len(f.Types))}
	for name, shapes := range f.Types {
		typ := product.Type(name)
		if !typ.Valid() {
			return nil, errors.Errorf("unknown product type %q", name)
		}
		c.byType[typ] = make(map[string]Projection, len(shapes))
		for shape, node := range shapes {
			p, err := parseProjection(typ, &node)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", name, shape)
			}
			c.byType[typ][shape] = p
		}
	}
	return c, nil
}

func parseProjection(typ product.Type, node *yaml.Node) (Projection, error) {
	if node.Kind == yaml.ScalarNode {
		if node.Value != allKeyword {
			return Projection{}, errors.Errorf("expected field list or %q, got %q", allKeyword, node.Value)
		}
		return All(), nil
	}

	var names []string
	if err := node.Decode(&names); err != nil {
		return Projection{}, errors.Wrap(err, "decode field list")
	}
	if len(names) == 0 {
		return Projection{}, errors.Errorf("empty field list, use %q to select every field", allKeyword)
	}
	fields := make([]product.Field, 0, len(names))
	for _, n := range names {
		f := product.Field(n)
		if !typ.HasField(f) {
			return Projection{}, errors.Errorf("unknown field %q", n)
		}
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return Subset(fields...), nil
}

// LoadFile reads a projection catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open projection catalog")
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}
