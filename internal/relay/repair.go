package relay

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RepairResponseBody undoes double-encoded tool arguments in a non-streaming
// response. Some upstreams serialize the input of a tool_use block as a JSON
// string instead of a structure; clients then receive a quoted blob they
// cannot execute. Each string input that looks like a JSON document and
// parses cleanly is replaced in place with the parsed form. Anything else —
// including an unparseable body — passes through untouched.
func RepairResponseBody(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}

	gjson.GetBytes(body, "content").ForEach(func(key, block gjson.Result) bool {
		if block.Get("type").String() != "tool_use" {
			return true
		}
		input := block.Get("input")
		if input.Type != gjson.String {
			return true
		}
		if repaired, ok := decodeJSONString(input.String()); ok {
			path := "content." + key.String() + ".input"
			body, _ = sjson.SetRawBytes(body, path, repaired)
		}
		return true
	})

	return body
}

// decodeJSONString reports whether s is a self-contained JSON object or
// array, returning the raw decoded document when it is.
func decodeJSONString(s string) ([]byte, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, false
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, false
	}
	return []byte(trimmed), true
}

// repairEventPayload rewrites a single SSE data payload when it opens a
// tool_use content block: the block's name is normalized and only that field
// re-serialized. All other payloads are returned unchanged with ok=false.
func repairEventPayload(payload []byte) ([]byte, bool) {
	if !gjson.ValidBytes(payload) {
		return payload, false
	}
	if gjson.GetBytes(payload, "type").String() != "content_block_start" {
		return payload, false
	}
	block := gjson.GetBytes(payload, "content_block")
	if block.Get("type").String() != "tool_use" {
		return payload, false
	}
	name := block.Get("name").String()
	if name == "" {
		return payload, false
	}
	normalized := NormalizeToolName(name)
	if normalized == name {
		return payload, false
	}
	out, err := sjson.SetBytes(payload, "content_block.name", normalized)
	if err != nil {
		return payload, false
	}
	return out, true
}
