package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchInput struct {
	Query string   `json:"query" jsonschema:"description=Search query"`
	Limit int      `json:"limit,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestGenerateBasicStruct(t *testing.T) {
	m := decode(t, Generate[searchInput]())

	assert.Equal(t, "object", m["type"])

	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "Search query", query["description"])

	limit, ok := props["limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", limit["type"])

	tags, ok := props["tags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", tags["type"])
}

func TestGenerateRequiredFields(t *testing.T) {
	m := decode(t, Generate[searchInput]())

	required, ok := m["required"].([]any)
	require.True(t, ok)
	// omitempty fields are optional.
	assert.Equal(t, []any{"query"}, required)
}

func TestGenerateEmptyStruct(t *testing.T) {
	m := decode(t, Generate[struct{}]())
	assert.Equal(t, "object", m["type"])
	assert.NotContains(t, m, "required")
}

func TestGenerateAlwaysObjectShaped(t *testing.T) {
	// Whatever the input type, the output is a valid object schema: the
	// shape tool definitions require.
	m := decode(t, Generate[map[string]string]())
	assert.Equal(t, "object", m["type"])
}
