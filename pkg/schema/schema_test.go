package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/effective-security/medichat/pkg/llmutils"
	"github.com/effective-security/medichat/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SearchRequest represents a paper search with various parameters.
type SearchRequest struct {
	Topic      string `json:"topic" jsonschema:"title=Topic,description=Medication topic to search for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"title=Max Results,description=Maximum number of results"`
}

type Ingredient struct {
	Name string `json:"name" jsonschema:"title=Name,description=Active ingredient name"`
	Dose string `json:"dose,omitempty" jsonschema:"title=Dose,description=Dose per unit"`
}

type InteractionRequest struct {
	Ingredients []*Ingredient `json:"ingredients" jsonschema:"title=Ingredients,description=Active ingredients to check"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	t.Run("flat", func(t *testing.T) {
		t.Parallel()
		si, err := schema.New(reflect.TypeOf(SearchRequest{}))
		require.NoError(t, err)
		exp := `{
	"properties": {
		"topic": {
			"type": "string",
			"title": "Topic",
			"description": "Medication topic to search for"
		},
		"max_results": {
			"type": "integer",
			"title": "Max Results",
			"description": "Maximum number of results"
		}
	},
	"type": "object",
	"required": [
		"topic"
	]
}`
		assert.Equal(t, exp, si.String())
		assert.Equal(t, exp, llmutils.ToJSONIndent(si.Parameters))
	})

	t.Run("nested", func(t *testing.T) {
		t.Parallel()
		si, err := schema.New(reflect.TypeOf(InteractionRequest{}))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(si.Bytes(), &decoded))
		assert.Equal(t, "object", decoded["type"])
		assert.Equal(t, []any{"ingredients"}, decoded["required"])

		props := decoded["properties"].(map[string]any)
		list := props["ingredients"].(map[string]any)
		assert.Equal(t, "array", list["type"])

		item := list["items"].(map[string]any)
		itemProps := item["properties"].(map[string]any)
		assert.Contains(t, itemProps, "name")
		assert.Contains(t, itemProps, "dose")
	})

	t.Run("cached", func(t *testing.T) {
		t.Parallel()
		s1, err := schema.New(reflect.TypeOf(SearchRequest{}))
		require.NoError(t, err)
		s2, err := schema.New(reflect.TypeOf(SearchRequest{}))
		require.NoError(t, err)
		assert.Same(t, s1, s2)
	})
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	s := schema.MustFromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"uri": map[string]any{
				"type":        "string",
				"description": "Resource URI",
			},
		},
		"required": []string{"uri"},
	})
	require.NotNil(t, s)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"uri"}, s.Required)

	uri, ok := s.Properties.Get("uri")
	require.True(t, ok)
	assert.Equal(t, "string", uri.Type)

	_, err := schema.FromAny(func() {})
	assert.Error(t, err)
}
