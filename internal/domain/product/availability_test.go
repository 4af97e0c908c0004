package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) Document {
	t.Helper()
	doc, err := DecodeDocument([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestFilterAvailability(t *testing.T) {
	doc := mustDecode(t, `{
		"id": "c1",
		"type": "chapter",
		"availability": [
			{"name": "UBX", "status": ["SELLABLE"], "errors": []},
			{"name": "other", "status": ["PUBLISHED"], "errors": ["E1"]},
			{"name": "UBX", "status": ["PLANNED"], "errors": []}
		]
	}`)

	t.Run("no channel returns everything in order", func(t *testing.T) {
		got, err := FilterAvailability(doc, "")
		require.NoError(t, err)
		all, err := doc.Availability()
		require.NoError(t, err)
		assert.Equal(t, all, got)
		require.Len(t, got, 3)
		assert.Equal(t, "other", got[1].Name)
		assert.Equal(t, []string{"E1"}, got[1].Errors)
	})

	t.Run("channel keeps duplicates", func(t *testing.T) {
		got, err := FilterAvailability(doc, "UBX")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"SELLABLE"}, got[0].Status)
		assert.Equal(t, []string{"PLANNED"}, got[1].Status)
	})

	t.Run("unknown channel", func(t *testing.T) {
		got, err := FilterAvailability(doc, "nope")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := FilterAvailability(doc, "UBX")
		require.NoError(t, err)
		second, err := FilterAvailability(doc, "UBX")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.True(t, doc.Has(FieldAvailability))
	})
}

func TestFilterAvailability_Absent(t *testing.T) {
	for name, src := range map[string]string{
		"missing": `{"id": "b1", "type": "book"}`,
		"null":    `{"id": "b1", "type": "book", "availability": null}`,
		"empty":   `{"id": "b1", "type": "book", "availability": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			doc := mustDecode(t, src)
			for _, channel := range []string{"", "UBX"} {
				got, err := FilterAvailability(doc, channel)
				require.NoError(t, err)
				assert.NotNil(t, got)
				assert.Empty(t, got)
			}
		})
	}
}

func TestFilterAvailability_LooseEntries(t *testing.T) {
	doc := mustDecode(t, `{
		"id": "c1",
		"type": "chapter",
		"availability": [
			{"name": "UBX", "status": "SELLABLE", "errors": "E1"},
			{"name": "UBX", "status": {"code": 1}, "errors": [1, "E2"]},
			"broken",
			{"name": 7, "status": ["PUBLISHED"]},
			{"name": "other", "status": ["PUBLISHED"], "errors": null}
		]
	}`)

	got, err := FilterAvailability(doc, "UBX")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"SELLABLE"}, got[0].Status)
	assert.Equal(t, []string{"E1"}, got[0].Errors)
	assert.Nil(t, got[1].Status)
	assert.Equal(t, []string{"E2"}, got[1].Errors)

	all, err := FilterAvailability(doc, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestWrapper_Encode(t *testing.T) {
	doc := mustDecode(t, `{"id": "b1", "type": "book", "title": "Go"}`)

	t.Run("without availability", func(t *testing.T) {
		out, err := Wrapper{Product: doc}.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"product": {"id": "b1", "type": "book", "title": "Go"}}`, string(out))
	})

	t.Run("with empty availability", func(t *testing.T) {
		out, err := Wrapper{Product: doc, HasAvailability: true}.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"product": {"id": "b1", "type": "book", "title": "Go"}, "availability": []}`, string(out))
	})

	t.Run("with availability", func(t *testing.T) {
		out, err := Wrapper{
			Product:         doc,
			Availability:    []AvailabilityEntry{{Name: "UBX", Status: []string{"SELLABLE"}}},
			HasAvailability: true,
		}.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"product": {"id": "b1", "type": "book", "title": "Go"},
			"availability": [{"name": "UBX", "status": ["SELLABLE"], "errors": []}]
		}`, string(out))
	})
}

func TestEncodeMedia(t *testing.T) {
	raw := EncodeMedia([]MediaRef{
		{ID: "m1", ParentID: "a1", ParentType: TypeScholarlyArticle, VersionType: "v2", Type: "pdf", Size: 42},
		{ID: "m2", ParentID: "a1", ParentType: TypeScholarlyArticle, Type: "cover", Location: "s3://covers/a1.png", Size: 7},
	})
	assert.JSONEq(t, `[
		{"id": "m1", "parentId": "a1", "parentType": "scholarlyArticle", "versionType": "v2", "type": "pdf", "size": 42},
		{"id": "m2", "parentId": "a1", "parentType": "scholarlyArticle", "type": "cover", "location": "s3://covers/a1.png", "size": 7}
	]`, string(raw))
	assert.JSONEq(t, `[]`, string(EncodeMedia(nil)))
}
