// Package handler exposes the aggregation engine over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xenking/catalog-aggregator/internal/domain/aggregate"
	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

// Engine is the read surface of the aggregation engine.
type Engine interface {
	GetByID(ctx context.Context, req aggregate.GetByIDRequest) (*product.Wrapper, error)
	GetByDynamicIDs(ctx context.Context, req aggregate.DynamicIDsRequest) ([]product.Wrapper, error)
	GetByIDs(ctx context.Context, req aggregate.IDsRequest) ([]product.Wrapper, error)
	CanonicalEbook(ctx context.Context, candidates []string, typ product.Type) (string, error)
}

var _ Engine = (*aggregate.Engine)(nil)

// Handler serves the product read API.
type Handler struct {
	engine   Engine
	validate *validator.Validate
}

// NewHandler constructs a Handler over engine.
func NewHandler(engine Engine) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report parameter names as callers spell them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("param"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Handler{engine: engine, validate: v}
}

// Register adds the product routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("GET /api/products/canonical-ebook", h.CanonicalEbook)
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/products:batch", h.BatchProducts)
}
