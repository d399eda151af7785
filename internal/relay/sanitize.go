package relay

import (
	"bytes"
	"encoding/json"
)

// sentinelValue is the literal some JavaScript clients serialize in place of
// an absent value. It must be removed at any depth before the request reaches
// the upstream, which rejects bodies containing it.
const sentinelValue = "undefined"

// Sanitize returns a copy of v with the sentinel marker removed at every
// depth. Slice elements equal to the sentinel are dropped (order preserved),
// map keys whose value is the sentinel are dropped, and everything else is
// returned unchanged. It never fails.
func Sanitize(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s == sentinelValue {
				continue
			}
			out = append(out, Sanitize(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok && s == sentinelValue {
				continue
			}
			out[k] = Sanitize(val)
		}
		return out
	default:
		return v
	}
}

// SanitizeBody runs Sanitize over a JSON document. The decoder keeps numbers
// as json.Number so numeric literals survive the round trip byte-exact.
// A body that does not decode is returned unchanged.
func SanitizeBody(body []byte) []byte {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var tree any
	if err := decoder.Decode(&tree); err != nil {
		return body
	}

	sanitized, err := json.Marshal(Sanitize(tree))
	if err != nil {
		return body
	}
	return sanitized
}
