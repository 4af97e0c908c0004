package product

import "github.com/go-faster/jx"

// FilterAvailability returns the availability entries of doc for channelName.
// An empty channelName selects every channel. Duplicates and the original
// order are preserved, and the result is never nil. doc is not modified.
func FilterAvailability(doc Document, channelName string) ([]AvailabilityEntry, error) {
	all, err := doc.Availability()
	if err != nil {
		return nil, err
	}
	out := make([]AvailabilityEntry, 0, len(all))
	for _, e := range all {
		if channelName == "" || e.Name == channelName {
			out = append(out, e)
		}
	}
	return out, nil
}

// Wrapper is the caller-facing envelope of a product. Availability is promoted
// out of the product document when the projection asks for it.
type Wrapper struct {
	Product         Document
	Availability    []AvailabilityEntry
	HasAvailability bool
}

// Encode writes w as {"product": ..., "availability": [...]}, omitting the
// availability key unless HasAvailability is set.
func (w Wrapper) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("product")
	w.Product.Encode(e)
	if w.HasAvailability {
		e.FieldStart("availability")
		e.ArrStart()
		for _, a := range w.Availability {
			encodeAvailabilityEntry(e, a)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (w Wrapper) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	w.Encode(&e)
	return e.Bytes(), nil
}

func encodeAvailabilityEntry(e *jx.Encoder, a AvailabilityEntry) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(a.Name)
	e.FieldStart("status")
	encodeStrings(e, a.Status)
	e.FieldStart("errors")
	encodeStrings(e, a.Errors)
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, v []string) {
	e.ArrStart()
	for _, s := range v {
		e.Str(s)
	}
	e.ArrEnd()
}

// EncodeMedia renders media items as the associatedMedia JSON array.
func EncodeMedia(media []MediaRef) jx.Raw {
	var e jx.Encoder
	e.ArrStart()
	for _, m := range media {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(m.ID)
		e.FieldStart("parentId")
		e.Str(m.ParentID)
		e.FieldStart("parentType")
		e.Str(string(m.ParentType))
		if m.VersionType != "" {
			e.FieldStart("versionType")
			e.Str(m.VersionType)
		}
		e.FieldStart("type")
		e.Str(m.Type)
		if m.Location != "" {
			e.FieldStart("location")
			e.Str(m.Location)
		}
		e.FieldStart("size")
		e.Int64(m.Size)
		e.ObjEnd()
	}
	e.ArrEnd()
	return jx.Raw(e.Bytes())
}
