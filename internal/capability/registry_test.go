package capability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptors() []*Descriptor {
	ok := func(ctx context.Context, args map[string]string) (any, error) {
		return map[string]any{"ok": true}, nil
	}
	return []*Descriptor{
		{
			Name:        "get_weather",
			Description: "Current weather for a city",
			Domain:      "weather",
			Params: []Param{
				{Name: "city", Type: "string", Description: "City name", Required: true},
				{Name: "units", Type: "string", Description: "Unit system", Enum: []string{"metric", "imperial"}},
			},
			Invoke: ok,
		},
		{
			Name:        "set_device",
			Description: "Switch a smart-home device",
			Domain:      "home",
			Params: []Param{
				{Name: "device", Type: "string", Description: "Device id", Required: true},
				{Name: "state", Type: "string", Description: "on or off", Required: true, Enum: []string{"on", "off"}},
			},
			Invoke: ok,
		},
		{
			Name:        "web_search",
			Description: "Search the web",
			Domain:      "search",
			Params: []Param{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
			},
			Invoke: ok,
		},
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	d := testDescriptors()
	d = append(d, d[0])
	_, err := NewRegistry(d...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestInvokeFailsClosed(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	res := r.Invoke(context.Background(), "does_not_exist", nil)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, "does_not_exist", res.Name)
}

func TestInvokeConvertsImplementationError(t *testing.T) {
	r, err := NewRegistry(&Descriptor{
		Name:        "boom",
		Description: "always fails",
		Domain:      "search",
		Invoke: func(ctx context.Context, args map[string]string) (any, error) {
			return nil, errors.New("upstream timed out")
		},
	})
	require.NoError(t, err)

	res := r.Invoke(context.Background(), "boom", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "upstream timed out", res.Error)
	assert.Nil(t, res.Payload)
}

func TestVisibilityFiltering(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	full, err := r.SchemasFor("gpt-4.1", FormatText)
	require.NoError(t, err)
	assert.Len(t, full, 3)

	restricted, err := r.SchemasFor("gpt-4.1", FormatWidget)
	require.NoError(t, err)
	require.Len(t, restricted, 1)

	var tool map[string]any
	require.NoError(t, json.Unmarshal(restricted[0], &tool))
	assert.Equal(t, "set_device", tool["name"])
}

func TestDialectTypedFunction(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	schemas, err := r.SchemasFor("gpt-4.1", FormatText)
	require.NoError(t, err)

	var tool map[string]any
	require.NoError(t, json.Unmarshal(schemas[0], &tool))
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, true, tool["strict"])

	params := tool["parameters"].(map[string]any)
	assert.Equal(t, false, params["additionalProperties"])
	props := params["properties"].(map[string]any)
	// typed dialect does not carry enum hints
	units := props["units"].(map[string]any)
	_, hasEnum := units["enum"]
	assert.False(t, hasEnum)
}

func TestDialectAnnotatedDeclaration(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	schemas, err := r.SchemasFor("gemini-2.5-flash", FormatText)
	require.NoError(t, err)

	var decl map[string]any
	require.NoError(t, json.Unmarshal(schemas[0], &decl))
	_, hasType := decl["type"]
	assert.False(t, hasType, "declaration dialect has no wrapper type")

	props := decl["parameters"].(map[string]any)["properties"].(map[string]any)
	units := props["units"].(map[string]any)
	assert.Equal(t, []any{"metric", "imperial"}, units["enum"])
}

func TestDialectMinimal(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	schemas, err := r.SchemasFor("anthropic/claude-sonnet-4", FormatText)
	require.NoError(t, err)

	var fn map[string]any
	require.NoError(t, json.Unmarshal(schemas[0], &fn))
	props := fn["parameters"].(map[string]any)["properties"].(map[string]any)
	units := props["units"].(map[string]any)
	// minimal dialect flattens everything to described strings
	assert.Equal(t, "string", units["type"])
	_, hasEnum := units["enum"]
	assert.False(t, hasEnum)
}

func TestCatalogOrderDeterministic(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	entries := r.Catalog(FormatText)
	require.Len(t, entries, 3)
	assert.Equal(t, "get_weather", entries[0].Name)
	assert.Equal(t, "set_device", entries[1].Name)
	assert.Equal(t, "web_search", entries[2].Name)
}
