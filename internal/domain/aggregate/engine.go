// Package aggregate assembles caller-facing product responses from identity
// records, type-specific product documents, related media and per-channel
// availability.
package aggregate

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
	"github.com/xenking/catalog-aggregator/internal/domain/projection"
	"github.com/xenking/catalog-aggregator/internal/domain/variant"
)

// Catalog looks up the projection of a response shape for a product type.
type Catalog interface {
	Get(typ product.Type, shape string) (projection.Projection, error)
}

// Config holds non-dependency configuration for the Engine.
type Config struct {
	// IncludeLocationForAll asks the media store to return locations of
	// every media item, not only public ones.
	IncludeLocationForAll bool
	// TracerProvider defaults to the global provider when nil.
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to the global provider when nil.
	MeterProvider metric.MeterProvider
}

// Engine orchestrates the single and batch read paths. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	identities product.IdentityResolver
	products   product.Store
	media      product.MediaStore
	catalog    Catalog
	variants   *variant.Resolver

	includeLocationForAll bool
	tracer                trace.Tracer
	notFound              metric.Int64Counter
}

// NewEngine creates an Engine over the given gateways.
func NewEngine(
	cfg Config,
	identities product.IdentityResolver,
	products product.Store,
	media product.MediaStore,
	catalog Catalog,
	variants *variant.Resolver,
) (*Engine, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	notFound, err := mp.Meter("catalog/aggregate").Int64Counter("catalog.aggregate.not_found",
		metric.WithDescription("Reads that ended with a not found error, by kind"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create not found counter")
	}

	return &Engine{
		identities:            identities,
		products:              products,
		media:                 media,
		catalog:               catalog,
		variants:              variants,
		includeLocationForAll: cfg.IncludeLocationForAll,
		tracer:                tp.Tracer("catalog/aggregate"),
		notFound:              notFound,
	}, nil
}

// GetByIDRequest holds the input of a single product read.
type GetByIDRequest struct {
	ID              string
	Shape           string
	Variant         string
	ChannelName     string
	ChannelStatuses []string
	Region          string
}

// GetByID resolves id to its concrete type and returns the product shaped by
// the requested response shape.
func (e *Engine) GetByID(ctx context.Context, req GetByIDRequest) (_ *product.Wrapper, rerr error) {
	ctx, span := e.tracer.Start(ctx, "aggregate.GetByID",
		trace.WithAttributes(attribute.String("catalog.shape", req.Shape)),
	)
	defer func() { e.finish(ctx, span, rerr) }()

	if strings.TrimSpace(req.ID) == "" {
		return nil, &product.InvalidInputError{Field: "id", Reason: "required"}
	}
	if req.Shape == "" {
		return nil, &product.InvalidInputError{Field: "responseShape", Reason: "required"}
	}

	identity, err := e.identities.Resolve(ctx, req.ID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve identity")
	}
	if identity == nil {
		return nil, &product.NotFoundError{Kind: product.KindAsset, Message: "no asset with id " + req.ID}
	}
	span.SetAttributes(attribute.String("catalog.type", string(identity.Type)))

	proj, err := e.catalog.Get(identity.Type, req.Shape)
	if err != nil {
		return nil, err
	}
	fields, hidden := storeFields(identity.Type, proj)

	var (
		doc   *product.Document
		media []product.MediaRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := e.products.FetchOne(gctx, identity.Type, identity.ID, fields, product.Filter{
			ChannelName:     req.ChannelName,
			ChannelStatuses: req.ChannelStatuses,
			Variant:         req.Variant,
			Region:          req.Region,
		})
		if err != nil {
			return errors.Wrap(err, "fetch product")
		}
		doc = d
		return nil
	})
	if proj.WantsMedia() {
		g.Go(func() error {
			m, err := e.media.FetchByParent(gctx, identity.ID, e.includeLocationForAll)
			if err != nil {
				return errors.Wrap(err, "fetch media")
			}
			media = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if doc == nil {
		return nil, &product.NotFoundError{
			Kind:    product.KindProduct,
			Message: "no " + string(identity.Type) + " document with id " + identity.ID,
		}
	}

	w, err := wrap(*doc, proj, hidden, media, req.ChannelName)
	if err != nil {
		return nil, errors.Wrap(err, "shape product")
	}
	return &w, nil
}

// DynamicIDsRequest holds the input of a batch read by a document identifier
// such as an ISBN or a journal acronym.
type DynamicIDsRequest struct {
	IDFieldName string
	IDValues    []string
	// Type restricts identity resolution. Empty matches every type.
	Type            product.Type
	Shape           string
	ChannelName     string
	ChannelStatuses []string
	Variant         string
}

// GetByDynamicIDs resolves every product whose identifier IDFieldName matches
// one of IDValues and returns them shaped per their own type.
func (e *Engine) GetByDynamicIDs(ctx context.Context, req DynamicIDsRequest) (_ []product.Wrapper, rerr error) {
	ctx, span := e.tracer.Start(ctx, "aggregate.GetByDynamicIDs",
		trace.WithAttributes(
			attribute.String("catalog.shape", req.Shape),
			attribute.String("catalog.id_field", req.IDFieldName),
			attribute.Int("catalog.id_values", len(req.IDValues)),
		),
	)
	defer func() { e.finish(ctx, span, rerr) }()

	if strings.TrimSpace(req.IDFieldName) == "" {
		return nil, &product.InvalidInputError{Field: "idFieldName", Reason: "required"}
	}
	values := compact(req.IDValues)
	if len(values) == 0 {
		return nil, &product.InvalidInputError{Field: "idValues", Reason: "at least one value is required"}
	}
	if req.Type != "" && !req.Type.Valid() {
		return nil, &product.InvalidInputError{Field: "type", Reason: "unknown product type " + string(req.Type)}
	}
	if req.Shape == "" {
		return nil, &product.InvalidInputError{Field: "responseShape", Reason: "required"}
	}

	identities, err := e.identities.ResolveMany(ctx, req.IDFieldName, values, req.Type)
	if err != nil {
		return nil, errors.Wrap(err, "resolve identities")
	}
	if len(identities) == 0 {
		return nil, &product.NotFoundError{
			Kind:    product.KindAssets,
			Message: "no assets with " + req.IDFieldName + " in " + strings.Join(values, ", "),
		}
	}

	return e.fanOut(ctx, identities, batch{
		shape: req.Shape,
		filter: product.Filter{
			ChannelName:     req.ChannelName,
			ChannelStatuses: req.ChannelStatuses,
			Variant:         req.Variant,
		},
	})
}

// IDsRequest holds the input of a batch read by opaque product ids.
type IDsRequest struct {
	IDs             []string
	Shape           string
	ChannelName     string
	ChannelStatuses []string
	Variant         string
}

// GetByIDs resolves every id to its concrete type and returns the products
// shaped per their own type. Unknown ids are skipped.
func (e *Engine) GetByIDs(ctx context.Context, req IDsRequest) (_ []product.Wrapper, rerr error) {
	ctx, span := e.tracer.Start(ctx, "aggregate.GetByIDs",
		trace.WithAttributes(
			attribute.String("catalog.shape", req.Shape),
			attribute.Int("catalog.ids", len(req.IDs)),
		),
	)
	defer func() { e.finish(ctx, span, rerr) }()

	ids := compact(req.IDs)
	if len(ids) == 0 {
		return nil, &product.InvalidInputError{Field: "ids", Reason: "at least one id is required"}
	}
	if req.Shape == "" {
		return nil, &product.InvalidInputError{Field: "responseShape", Reason: "required"}
	}

	identities, err := e.identities.ResolveIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolve identities")
	}
	if len(identities) == 0 {
		return nil, &product.NotFoundError{Kind: product.KindAssets, Message: "no assets with ids " + strings.Join(ids, ", ")}
	}

	return e.fanOut(ctx, identities, batch{
		shape: req.Shape,
		filter: product.Filter{
			ChannelName:     req.ChannelName,
			ChannelStatuses: req.ChannelStatuses,
			Variant:         req.Variant,
		},
	})
}

// CanonicalEbook returns the canonical e-book id among candidates of typ, or
// an empty string when no candidate qualifies.
func (e *Engine) CanonicalEbook(ctx context.Context, candidates []string, typ product.Type) (_ string, rerr error) {
	ctx, span := e.tracer.Start(ctx, "aggregate.CanonicalEbook",
		trace.WithAttributes(
			attribute.String("catalog.type", string(typ)),
			attribute.Int("catalog.candidates", len(candidates)),
		),
	)
	defer func() { e.finish(ctx, span, rerr) }()

	if !typ.Valid() {
		return "", &product.InvalidInputError{Field: "type", Reason: "unknown product type " + string(typ)}
	}
	return e.variants.CanonicalEbookID(ctx, nonBlank(candidates), typ)
}

type batch struct {
	shape  string
	filter product.Filter
}

// groupResult is what one type group contributed to a batch read.
type groupResult struct {
	proj    projection.Projection
	hidden  []product.Field
	docs    []product.Document
	dropped int
}

// fanOut fetches every type group concurrently, then joins media once for the
// combined result and shapes each document per its own type's projection.
func (e *Engine) fanOut(ctx context.Context, identities []product.Identity, b batch) ([]product.Wrapper, error) {
	lg := zctx.From(ctx)
	groups := groupByType(identities)

	results := make([]groupResult, len(groups))
	for i, grp := range groups {
		proj, err := e.catalog.Get(grp.typ, b.shape)
		if err != nil {
			return nil, err
		}
		fields, hidden := storeFields(grp.typ, proj)
		results[i] = groupResult{proj: proj, hidden: hidden}
		groups[i].fields = fields
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, grp := range groups {
		g.Go(func() error {
			ids := grp.ids
			if filtersActive(grp.typ) {
				active, err := e.products.FetchActiveIDs(gctx, grp.typ, ids)
				if err != nil {
					return errors.Wrapf(err, "fetch active %s ids", grp.typ)
				}
				results[i].dropped = len(ids) - len(active)
				ids = active
			}
			if len(ids) == 0 {
				return nil
			}

			docs, err := e.products.FetchMany(gctx, grp.typ, ids, grp.fields, b.filter)
			if err != nil {
				return errors.Wrapf(err, "fetch %s products", grp.typ)
			}
			results[i].docs = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		total      int
		dropped    int
		mediaIDs   []string
		wantsMedia bool
	)
	for i, r := range results {
		lg.Debug("Type group fetched",
			zap.String("type", string(groups[i].typ)),
			zap.Int("requested", len(groups[i].ids)),
			zap.Int("inactive", r.dropped),
			zap.Int("found", len(r.docs)),
		)
		total += len(r.docs)
		dropped += r.dropped
		if r.proj.WantsMedia() {
			wantsMedia = true
			for _, d := range r.docs {
				mediaIDs = append(mediaIDs, d.ID)
			}
		}
	}
	if total == 0 {
		msg := "no product documents for the resolved assets"
		if dropped > 0 {
			msg = "no active journal record among the resolved assets"
		}
		return nil, &product.NotFoundError{Kind: product.KindProducts, Message: msg}
	}

	byParent := map[string][]product.MediaRef{}
	if wantsMedia && len(mediaIDs) > 0 {
		media, err := e.media.FetchByParents(ctx, mediaIDs, e.includeLocationForAll)
		if err != nil {
			return nil, errors.Wrap(err, "fetch media")
		}
		for _, m := range media {
			byParent[m.ParentID] = append(byParent[m.ParentID], m)
		}
	}

	out := make([]product.Wrapper, 0, total)
	for _, r := range results {
		for _, d := range r.docs {
			w, err := wrap(d, r.proj, r.hidden, byParent[d.ID], b.filter.ChannelName)
			if err != nil {
				return nil, errors.Wrapf(err, "shape product %s", d.ID)
			}
			out = append(out, w)
		}
	}
	return out, nil
}

// finish records the outcome of a read on its span and metrics.
func (e *Engine) finish(ctx context.Context, span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	if kind, ok := product.NotFoundKindOf(err); ok {
		e.notFound.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
		span.SetAttributes(attribute.String("catalog.not_found", string(kind)))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// nonBlank drops blank values. Duplicates are kept: two equal candidates are
// still two candidates.
func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// compact drops blank values and duplicates, keeping the first occurrence.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
