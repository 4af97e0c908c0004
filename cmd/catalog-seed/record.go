package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-aggregator/internal/domain/product"
	"github.com/xenking/catalog-aggregator/internal/storage/postgres"
)

// parseRecord splits one dump line into the stored document, its identifiers,
// the ingest-only "active" flag and the embedded media list.
func parseRecord(line []byte) (postgres.IngestRecord, error) {
	rec := postgres.IngestRecord{Active: true}

	var e jx.Encoder
	e.ObjStart()
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "active":
			v, err := d.Bool()
			rec.Active = v
			return err
		case "media":
			media, err := parseMedia(d)
			rec.Media = media
			return err
		}

		raw, err := d.Raw()
		if err != nil {
			return err
		}
		switch string(key) {
		case "id":
			if raw.Type() != jx.String {
				return errors.New("id must be a string")
			}
			s, err := jx.DecodeBytes(raw).Str()
			if err != nil {
				return err
			}
			rec.ID = s
		case "type":
			if raw.Type() != jx.String {
				return errors.New("type must be a string")
			}
			s, err := jx.DecodeBytes(raw).Str()
			if err != nil {
				return err
			}
			t, err := product.ParseType(s)
			if err != nil {
				return err
			}
			rec.Type = t
		case "identifiers":
			rec.Identifiers = append([]byte(nil), raw...)
		}
		e.FieldStart(string(key))
		e.Raw(raw)
		return nil
	})
	if err != nil {
		return postgres.IngestRecord{}, errors.Wrap(err, "decode record")
	}
	e.ObjEnd()

	if rec.ID == "" || rec.Type == "" {
		return postgres.IngestRecord{}, errors.New("record without id or type")
	}
	rec.Doc = e.Bytes()

	doc, err := product.DecodeDocument(rec.Doc)
	if err != nil {
		return postgres.IngestRecord{}, err
	}
	prices, err := doc.Prices()
	if err != nil {
		return postgres.IngestRecord{}, errors.Wrapf(err, "record %s", rec.ID)
	}
	rec.ListPrice = lowestPrice(prices)
	return rec, nil
}

// lowestPrice returns the smallest price amount, preferring list prices.
func lowestPrice(prices []product.Price) decimal.NullDecimal {
	var (
		out    decimal.NullDecimal
		isList bool
	)
	for _, p := range prices {
		list := p.Type == "list"
		switch {
		case !out.Valid, list && !isList, list == isList && p.Amount.LessThan(out.Decimal):
			out = decimal.NullDecimal{Decimal: p.Amount, Valid: true}
			isList = list
		}
	}
	return out
}

func parseMedia(d *jx.Decoder) ([]product.MediaRef, error) {
	var out []product.MediaRef
	err := d.Arr(func(d *jx.Decoder) error {
		var m product.MediaRef
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				m.ID, err = d.Str()
			case "versionType":
				m.VersionType, err = d.Str()
			case "type":
				m.Type, err = d.Str()
			case "location":
				m.Location, err = d.Str()
			case "size":
				m.Size, err = d.Int64()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if m.ID == "" {
			return errors.New("media without id")
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode media")
	}
	return out, nil
}
