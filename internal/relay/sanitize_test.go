package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

// TestSanitize_Slices tests sentinel removal from slices
func TestSanitize_Slices(t *testing.T) {
	tests := []struct {
		name     string
		input    []any
		expected []any
	}{
		{
			name:     "sentinel elements dropped",
			input:    []any{"a", "undefined", "b"},
			expected: []any{"a", "b"},
		},
		{
			name:     "all sentinels",
			input:    []any{"undefined", "undefined"},
			expected: []any{},
		},
		{
			name:     "order preserved",
			input:    []any{"c", "undefined", "a", "b"},
			expected: []any{"c", "a", "b"},
		},
		{
			name:     "no sentinels",
			input:    []any{"x", float64(1), true},
			expected: []any{"x", float64(1), true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

// TestSanitize_Maps tests sentinel removal from maps
func TestSanitize_Maps(t *testing.T) {
	input := map[string]any{
		"keep":  "value",
		"drop":  "undefined",
		"count": float64(3),
	}

	result := Sanitize(input).(map[string]any)

	assert.Equal(t, "value", result["keep"])
	assert.Equal(t, float64(3), result["count"])
	assert.NotContains(t, result, "drop")
}

// TestSanitize_Nested tests removal at arbitrary depth
func TestSanitize_Nested(t *testing.T) {
	input := map[string]any{
		"messages": []any{
			map[string]any{
				"role":    "user",
				"content": []any{"hello", "undefined"},
				"meta":    "undefined",
			},
		},
	}

	result := Sanitize(input).(map[string]any)
	messages := result["messages"].([]any)
	first := messages[0].(map[string]any)

	assert.Equal(t, []any{"hello"}, first["content"])
	assert.NotContains(t, first, "meta")
	assert.Equal(t, "user", first["role"])
}

// TestSanitize_Scalars tests that non-container values pass through
func TestSanitize_Scalars(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("hello"))
	assert.Equal(t, float64(42), Sanitize(float64(42)))
	assert.Equal(t, true, Sanitize(true))
	assert.Nil(t, Sanitize(nil))

	// A bare top-level sentinel is not a container member and survives
	assert.Equal(t, "undefined", Sanitize("undefined"))
}

// TestSanitize_SubstringNotDropped tests that only exact matches are removed
func TestSanitize_SubstringNotDropped(t *testing.T) {
	input := []any{"undefined behavior", "is undefined", "Undefined"}
	assert.Equal(t, input, Sanitize(input))
}

// TestSanitizeBody tests the byte-level wrapper
func TestSanitizeBody(t *testing.T) {
	body := []byte(`{"model":"claude-sonnet-4","stop_sequences":["undefined","END"],"metadata":{"user_id":"undefined"},"max_tokens":1024}`)

	result := SanitizeBody(body)

	assert.Equal(t, `["END"]`, gjson.GetBytes(result, "stop_sequences").Raw)
	assert.False(t, gjson.GetBytes(result, "metadata.user_id").Exists())
	assert.Equal(t, int64(1024), gjson.GetBytes(result, "max_tokens").Int())
}

// TestSanitizeBody_NumbersPreserved tests that numeric literals survive
func TestSanitizeBody_NumbersPreserved(t *testing.T) {
	body := []byte(`{"temperature":0.7,"max_tokens":4096,"big":12345678901234567890}`)

	result := SanitizeBody(body)

	assert.Equal(t, "0.7", gjson.GetBytes(result, "temperature").Raw)
	assert.Equal(t, "4096", gjson.GetBytes(result, "max_tokens").Raw)
	assert.Equal(t, "12345678901234567890", gjson.GetBytes(result, "big").Raw)
}

// TestSanitizeBody_InvalidJSON tests passthrough on undecodable bodies
func TestSanitizeBody_InvalidJSON(t *testing.T) {
	body := []byte(`{"broken":`)
	assert.Equal(t, body, SanitizeBody(body))
}
