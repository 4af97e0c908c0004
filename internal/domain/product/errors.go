package product

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidResponseShape = errors.New("invalid response shape")
	ErrInvalidInput         = errors.New("invalid input")
)

// NotFoundKind names what could not be found.
type NotFoundKind string

const (
	// KindAsset means no identity record matched a single id.
	KindAsset NotFoundKind = "asset"
	// KindAssets means no identity record matched a batch lookup.
	KindAssets NotFoundKind = "assets"
	// KindProduct means the identity resolved but the document fetch was empty.
	KindProduct NotFoundKind = "product"
	// KindProducts means a batch read produced no documents at all.
	KindProducts NotFoundKind = "products"
)

// NotFoundError reports an absent identity or product.
type NotFoundError struct {
	Kind    NotFoundKind
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Message)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidResponseShapeError reports a response shape that is not configured
// for a product type.
type InvalidResponseShapeError struct {
	Type  Type
	Shape string
}

func (e *InvalidResponseShapeError) Error() string {
	return fmt.Sprintf("response shape %q is not configured for type %s", e.Shape, e.Type)
}

func (e *InvalidResponseShapeError) Is(target error) bool { return target == ErrInvalidResponseShape }

// InvalidInputError reports a malformed or missing caller-supplied value.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// NotFoundKindOf returns the kind of a NotFoundError anywhere in err's chain.
func NotFoundKindOf(err error) (NotFoundKind, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Kind, true
	}
	return "", false
}
