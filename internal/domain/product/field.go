package product

// Field is a top-level field of a product document.
type Field string

// Fields shared by every product type.
const (
	FieldID              Field = "id"
	FieldType            Field = "type"
	FieldTitle           Field = "title"
	FieldIdentifiers     Field = "identifiers"
	FieldAvailability    Field = "availability"
	FieldPermissions     Field = "permissions"
	FieldPrices          Field = "prices"
	FieldAssociatedMedia Field = "associatedMedia"
	FieldContributors    Field = "contributors"
	FieldKeywords        Field = "keywords"
	FieldClassifications Field = "classifications"
	FieldPublishedDate   Field = "publishedDate"
)

var commonFields = []Field{
	FieldID,
	FieldType,
	FieldTitle,
	FieldIdentifiers,
	FieldAvailability,
	FieldPermissions,
	FieldPrices,
	FieldAssociatedMedia,
	FieldContributors,
	FieldKeywords,
	FieldClassifications,
	FieldPublishedDate,
}

// DetailField returns the type-specific nested object field of t, named after
// the type itself.
func (t Type) DetailField() Field {
	return Field(t)
}

// Fields returns every field a document of type t may carry.
func (t Type) Fields() []Field {
	out := make([]Field, 0, len(commonFields)+1)
	out = append(out, commonFields...)
	return append(out, t.DetailField())
}

// HasField reports whether f is a known field for documents of type t.
func (t Type) HasField(f Field) bool {
	if f == t.DetailField() {
		return t.Valid()
	}
	for _, c := range commonFields {
		if c == f {
			return true
		}
	}
	return false
}
