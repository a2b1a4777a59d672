package client

import "encoding/json"

// Payload is the parse-or-fallback representation of a JSON payload coming
// back from the emulator. Event history payloads are plain strings on the
// wire; most are JSON objects, but a handler can emit anything, so the raw
// string is retained whenever parsing fails. Consumers branch on
// IsStructured instead of type-asserting.
type Payload struct {
	structured map[string]interface{}
	raw        string
	parsed     bool
}

// ParsePayload parses a raw payload string, falling back to the raw form
// when the payload is not a JSON object.
func ParsePayload(raw string) Payload {
	var structured map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &structured); err != nil {
		return Payload{raw: raw}
	}
	return Payload{structured: structured, raw: raw, parsed: true}
}

// StructuredPayload wraps an already-decoded payload object.
func StructuredPayload(data map[string]interface{}) Payload {
	return Payload{structured: data, parsed: true}
}

// IsStructured reports whether the payload parsed as a JSON object.
func (p Payload) IsStructured() bool {
	return p.parsed
}

// Structured returns the decoded object, or nil for raw payloads.
func (p Payload) Structured() map[string]interface{} {
	if !p.parsed {
		return nil
	}
	return p.structured
}

// Raw returns the original payload string.
func (p Payload) Raw() string {
	if p.raw == "" && p.parsed {
		data, err := json.Marshal(p.structured)
		if err == nil {
			return string(data)
		}
	}
	return p.raw
}

// MarshalJSON renders the structured form when available and the raw string
// otherwise, so reports stay readable either way.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.parsed {
		return json.Marshal(p.structured)
	}
	return json.Marshal(p.raw)
}
