package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	t.Run("parses a JSON object", func(t *testing.T) {
		payload := ParsePayload(`{"requestId": "r1", "nested": {"k": "v"}}`)
		require.True(t, payload.IsStructured())
		assert.Equal(t, "r1", payload.Structured()["requestId"])
	})

	t.Run("keeps a non-JSON payload as raw text", func(t *testing.T) {
		payload := ParsePayload("plain text output")
		assert.False(t, payload.IsStructured())
		assert.Equal(t, "plain text output", payload.Raw())
	})

	t.Run("treats a JSON scalar as raw", func(t *testing.T) {
		payload := ParsePayload(`"just a string"`)
		assert.False(t, payload.IsStructured())
	})
}

func TestPayloadMarshalJSON(t *testing.T) {
	t.Run("structured payloads serialize as objects", func(t *testing.T) {
		payload := StructuredPayload(map[string]interface{}{"a": 1})
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 1}`, string(data))
	})

	t.Run("raw payloads serialize as strings", func(t *testing.T) {
		payload := ParsePayload("oops")
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.Equal(t, `"oops"`, string(data))
	})
}
