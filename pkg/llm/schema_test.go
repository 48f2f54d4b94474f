package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// TestSchemaMarshalsToJSONSchema verifies the OpenAI wire form.
func TestSchemaMarshalsToJSONSchema(t *testing.T) {
	schema := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"time": {
				Type:        TypeString,
				Description: "Requested time in RFC 3339 format",
			},
			"action": {
				Type: TypeString,
				Enum: []string{"check", "schedule", "suggest_next"},
			},
		},
		Required: []string{"time", "action"},
	}

	data, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, []any{"time", "action"}, decoded["required"])

	props, ok := decoded["properties"].(map[string]any)
	require.True(t, ok)
	action, ok := props["action"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"check", "schedule", "suggest_next"}, action["enum"])
	assert.NotContains(t, action, "description")
}

// TestSchemaAsGenAI verifies the Gemini SDK conversion.
func TestSchemaAsGenAI(t *testing.T) {
	schema := &Schema{
		Type:        TypeObject,
		Description: "appointment request",
		Properties: map[string]*Schema{
			"time":      {Type: TypeString, Description: "RFC 3339 time"},
			"confident": {Type: TypeBoolean},
			"count":     {Type: TypeInteger},
			"tags":      {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
		Required: []string{"time"},
	}

	converted := schema.asGenAI()
	require.NotNil(t, converted)
	assert.Equal(t, genai.TypeObject, converted.Type)
	assert.Equal(t, "appointment request", converted.Description)
	assert.Equal(t, []string{"time"}, converted.Required)

	require.Len(t, converted.Properties, 4)
	assert.Equal(t, genai.TypeString, converted.Properties["time"].Type)
	assert.Equal(t, "RFC 3339 time", converted.Properties["time"].Description)
	assert.Equal(t, genai.TypeBoolean, converted.Properties["confident"].Type)
	assert.Equal(t, genai.TypeInteger, converted.Properties["count"].Type)
	assert.Equal(t, genai.TypeArray, converted.Properties["tags"].Type)
	require.NotNil(t, converted.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, converted.Properties["tags"].Items.Type)
}

func TestSchemaAsGenAINil(t *testing.T) {
	var schema *Schema
	assert.Nil(t, schema.asGenAI())
}

func TestGenAITypeMapping(t *testing.T) {
	assert.Equal(t, genai.TypeNumber, genaiType(TypeNumber))
	assert.Equal(t, genai.TypeUnspecified, genaiType("mystery"))
}
