package product

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Document is a projected product document. Only the fields selected by the
// projection are present. ID and Type always identify the document, but the
// id and type keys are encoded only when they are among its fields.
//
// Documents are values: With and Without return modified copies and never
// touch the receiver, so documents handed out by a caching gateway can be
// shared safely.
type Document struct {
	ID     string
	Type   Type
	fields map[Field]jx.Raw
}

// NewDocument builds a document from raw JSON field values.
func NewDocument(id string, typ Type, fields map[Field]jx.Raw) Document {
	return Document{ID: id, Type: typ, fields: fields}
}

// DecodeDocument parses a JSON object into a Document. The id and type keys
// populate ID and Type and are kept as fields like every other key.
func DecodeDocument(data []byte) (Document, error) {
	doc := Document{fields: map[Field]jx.Raw{}}
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := Field(key)
		raw, err := d.Raw()
		if err != nil {
			return errors.Wrapf(err, "field %s", k)
		}
		switch k {
		case FieldID, FieldType:
			v, err := jx.DecodeBytes(raw).Str()
			if err != nil {
				return errors.Wrap(err, string(k))
			}
			if k == FieldID {
				doc.ID = v
			} else {
				doc.Type = Type(v)
			}
		}
		doc.fields[k] = slices.Clone(raw)
		return nil
	}); err != nil {
		return Document{}, errors.Wrap(err, "decode document")
	}
	return doc, nil
}

// WithIdentity returns a copy of d whose id and type fields hold d.ID and
// d.Type. Only fields selected by include are set; a nil include selects both.
func (d Document) WithIdentity(include []Field) Document {
	out := d
	if include == nil || slices.Contains(include, FieldID) {
		out = out.With(FieldID, encodeString(d.ID))
	}
	if include == nil || slices.Contains(include, FieldType) {
		out = out.With(FieldType, encodeString(string(d.Type)))
	}
	return out
}

func encodeString(s string) jx.Raw {
	var e jx.Encoder
	e.Str(s)
	return jx.Raw(e.Bytes())
}

// Has reports whether the document carries field f.
func (d Document) Has(f Field) bool {
	_, ok := d.fields[f]
	return ok
}

// Raw returns the raw JSON value of field f.
func (d Document) Raw(f Field) (jx.Raw, bool) {
	v, ok := d.fields[f]
	return v, ok
}

// Keys returns the populated fields, type-defined fields first in their
// canonical order followed by any others sorted by name.
func (d Document) Keys() []Field {
	keys := make([]Field, 0, len(d.fields))
	seen := make(map[Field]struct{}, len(d.fields))
	for _, f := range d.Type.Fields() {
		if _, ok := d.fields[f]; ok {
			keys = append(keys, f)
			seen[f] = struct{}{}
		}
	}
	var rest []Field
	for f := range d.fields {
		if _, ok := seen[f]; !ok {
			rest = append(rest, f)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

func (d Document) clone() Document {
	fields := make(map[Field]jx.Raw, len(d.fields)+1)
	for k, v := range d.fields {
		fields[k] = v
	}
	return Document{ID: d.ID, Type: d.Type, fields: fields}
}

// Without returns a copy of d lacking field f.
func (d Document) Without(f Field) Document {
	out := d.clone()
	delete(out.fields, f)
	return out
}

// With returns a copy of d with field f set to raw.
func (d Document) With(f Field, raw jx.Raw) Document {
	out := d.clone()
	out.fields[f] = raw
	return out
}

// Availability decodes the availability array. A missing or null field
// yields an empty slice. Items that are not objects are skipped.
func (d Document) Availability() ([]AvailabilityEntry, error) {
	raw, ok := d.fields[FieldAvailability]
	if !ok || raw.Type() != jx.Array {
		return nil, nil
	}
	var out []AvailabilityEntry
	if err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return d.Skip()
		}
		e, err := decodeAvailabilityEntry(d)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode availability")
	}
	return out, nil
}

func decodeAvailabilityEntry(d *jx.Decoder) (AvailabilityEntry, error) {
	var e AvailabilityEntry
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			if d.Next() != jx.String {
				return d.Skip()
			}
			e.Name, err = d.Str()
		case "status":
			e.Status, err = decodeStrings(d)
		case "errors":
			e.Errors, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return e, err
}

// decodeStrings reads an array of strings. A single string is read as a
// one-element array; other values and non-string items are skipped.
func decodeStrings(d *jx.Decoder) ([]string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	case jx.Array:
	default:
		return nil, d.Skip()
	}
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// DetailString reads a string key from the type-specific nested object. It
// returns an empty string when the object or the key is absent.
func (d Document) DetailString(key string) (string, error) {
	raw, ok := d.fields[d.Type.DetailField()]
	if !ok || raw.Type() != jx.Object {
		return "", nil
	}
	var out string
	if err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, k string) error {
		if k != key || d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		out = s
		return err
	}); err != nil {
		return "", errors.Wrapf(err, "decode %s.%s", d.Type, key)
	}
	return out, nil
}

// CurrentVersion returns the current-version marker of a scholarly article.
func (d Document) CurrentVersion() (string, error) {
	return d.DetailString("currentVersion")
}

// FormatCode returns the format code of the type-specific object, like "EBK".
func (d Document) FormatCode() (string, error) {
	return d.DetailString("formatCode")
}

// Status returns the lifecycle status of the type-specific object.
func (d Document) Status() (string, error) {
	return d.DetailString("status")
}

// Prices decodes the prices array.
func (d Document) Prices() ([]Price, error) {
	raw, ok := d.fields[FieldPrices]
	if !ok || raw.Type() != jx.Array {
		return nil, nil
	}
	var out []Price
	if err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		p, err := decodePrice(d)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode prices")
	}
	return out, nil
}

func decodePrice(d *jx.Decoder) (Price, error) {
	var p Price
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			p.Type, err = d.Str()
		case "region":
			p.Region, err = d.Str()
		case "currency":
			p.Currency, err = d.Str()
		case "amount":
			p.Amount, err = decodeAmount(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, d.Skip()
	}
}

// WithRegion returns a copy of d whose prices keep only entries for region
// plus global entries without a region. An empty region returns d unchanged.
func (d Document) WithRegion(region string) (Document, error) {
	raw, ok := d.fields[FieldPrices]
	if region == "" || !ok || raw.Type() != jx.Array {
		return d, nil
	}
	var e jx.Encoder
	e.ArrStart()
	if err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		item, err := d.Raw()
		if err != nil {
			return err
		}
		var itemRegion string
		if item.Type() == jx.Object {
			if err := jx.DecodeBytes(item).Obj(func(d *jx.Decoder, key string) error {
				if key != "region" || d.Next() != jx.String {
					return d.Skip()
				}
				s, err := d.Str()
				itemRegion = s
				return err
			}); err != nil {
				return err
			}
		}
		if itemRegion == "" || itemRegion == region {
			e.Raw(item)
		}
		return nil
	}); err != nil {
		return Document{}, errors.Wrap(err, "filter prices by region")
	}
	e.ArrEnd()
	return d.With(FieldPrices, jx.Raw(e.Bytes())), nil
}

// Encode writes the fields of d as a JSON object.
func (d Document) Encode(e *jx.Encoder) {
	e.ObjStart()
	for _, f := range d.Keys() {
		e.FieldStart(string(f))
		e.Raw(d.fields[f])
	}
	e.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	d.Encode(&e)
	return e.Bytes(), nil
}
