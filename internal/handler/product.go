package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/catalog-aggregator/internal/domain/aggregate"
	"github.com/xenking/catalog-aggregator/internal/domain/product"
)

const maxBatchBody = 1 << 20

type getProductParams struct {
	ID              string   `param:"id" validate:"required,max=128"`
	ResponseShape   string   `param:"responseShape" validate:"required,max=64"`
	Variant         string   `param:"variant" validate:"omitempty,alphanum,max=16"`
	ChannelName     string   `param:"channelName" validate:"omitempty,max=128"`
	ChannelStatuses []string `param:"channelStatus" validate:"max=16,dive,required,max=64"`
	Region          string   `param:"region" validate:"omitempty,max=16"`
}

type listProductsParams struct {
	IDFieldName     string   `param:"idFieldName" validate:"required,max=64"`
	IDValues        []string `param:"idValue" validate:"required,min=1,max=100,dive,required,max=256"`
	Type            string   `param:"type" validate:"omitempty,max=32"`
	ResponseShape   string   `param:"responseShape" validate:"required,max=64"`
	ChannelName     string   `param:"channelName" validate:"omitempty,max=128"`
	ChannelStatuses []string `param:"channelStatus" validate:"max=16,dive,required,max=64"`
	Variant         string   `param:"variant" validate:"omitempty,alphanum,max=16"`
}

type batchParams struct {
	IDs             []string `param:"ids" validate:"required,min=1,max=500,dive,required,max=128"`
	ResponseShape   string   `param:"responseShape" validate:"required,max=64"`
	ChannelName     string   `param:"channelName" validate:"omitempty,max=128"`
	ChannelStatuses []string `param:"channelStatus" validate:"max=16,dive,required,max=64"`
	Variant         string   `param:"variant" validate:"omitempty,alphanum,max=16"`
}

type canonicalEbookParams struct {
	IDs  []string `param:"id" validate:"required,min=1,max=100,dive,required,max=128"`
	Type string   `param:"type" validate:"required,max=32"`
}

// GetProduct serves GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := getProductParams{
		ID:              r.PathValue("id"),
		ResponseShape:   q.Get("responseShape"),
		Variant:         q.Get("variant"),
		ChannelName:     q.Get("channelName"),
		ChannelStatuses: q["channelStatus"],
		Region:          q.Get("region"),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, r, invalidInput(err))
		return
	}

	wrapper, err := h.engine.GetByID(r.Context(), aggregate.GetByIDRequest{
		ID:              params.ID,
		Shape:           params.ResponseShape,
		Variant:         params.Variant,
		ChannelName:     params.ChannelName,
		ChannelStatuses: params.ChannelStatuses,
		Region:          params.Region,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	wrapper.Encode(e)
	writeBody(w, http.StatusOK, e.Bytes())
}

// ListProducts serves GET /api/products, a batch read by document identifier.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := listProductsParams{
		IDFieldName:     q.Get("idFieldName"),
		IDValues:        q["idValue"],
		Type:            q.Get("type"),
		ResponseShape:   q.Get("responseShape"),
		ChannelName:     q.Get("channelName"),
		ChannelStatuses: q["channelStatus"],
		Variant:         q.Get("variant"),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, r, invalidInput(err))
		return
	}

	var typ product.Type
	if params.Type != "" {
		t, err := product.ParseType(params.Type)
		if err != nil {
			writeError(w, r, err)
			return
		}
		typ = t
	}

	wrappers, err := h.engine.GetByDynamicIDs(r.Context(), aggregate.DynamicIDsRequest{
		IDFieldName:     params.IDFieldName,
		IDValues:        params.IDValues,
		Type:            typ,
		Shape:           params.ResponseShape,
		ChannelName:     params.ChannelName,
		ChannelStatuses: params.ChannelStatuses,
		Variant:         params.Variant,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeWrappers(w, wrappers)
}

// BatchProducts serves POST /api/products:batch, a batch read by product id.
func (h *Handler) BatchProducts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err != nil {
		writeError(w, r, &product.InvalidInputError{Field: "body", Reason: err.Error()})
		return
	}
	params, err := decodeBatchParams(body)
	if err != nil {
		writeError(w, r, &product.InvalidInputError{Field: "body", Reason: err.Error()})
		return
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, r, invalidInput(err))
		return
	}

	wrappers, err := h.engine.GetByIDs(r.Context(), aggregate.IDsRequest{
		IDs:             params.IDs,
		Shape:           params.ResponseShape,
		ChannelName:     params.ChannelName,
		ChannelStatuses: params.ChannelStatuses,
		Variant:         params.Variant,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeWrappers(w, wrappers)
}

// CanonicalEbook serves GET /api/products/canonical-ebook.
func (h *Handler) CanonicalEbook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := canonicalEbookParams{
		IDs:  q["id"],
		Type: q.Get("type"),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, r, invalidInput(err))
		return
	}
	typ, err := product.ParseType(params.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.engine.CanonicalEbook(r.Context(), params.IDs, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if id == "" {
		writeError(w, r, &product.NotFoundError{Kind: product.KindProduct, Message: "no canonical e-book among candidates"})
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("id")
	e.Str(id)
	e.ObjEnd()
	writeBody(w, http.StatusOK, e.Bytes())
}

func writeWrappers(w http.ResponseWriter, wrappers []product.Wrapper) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ArrStart()
	for _, wr := range wrappers {
		wr.Encode(e)
	}
	e.ArrEnd()
	writeBody(w, http.StatusOK, e.Bytes())
}

func decodeBatchParams(body []byte) (batchParams, error) {
	var p batchParams
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "ids":
			v, err := decodeStringArray(d)
			p.IDs = v
			return err
		case "channelStatus":
			v, err := decodeStringArray(d)
			p.ChannelStatuses = v
			return err
		case "responseShape":
			v, err := d.Str()
			p.ResponseShape = v
			return err
		case "channelName":
			v, err := d.Str()
			p.ChannelName = v
			return err
		case "variant":
			v, err := d.Str()
			p.Variant = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return batchParams{}, errors.Wrap(err, "decode batch request")
	}
	return p, nil
}

func decodeStringArray(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}
