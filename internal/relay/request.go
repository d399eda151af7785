package relay

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Canonical system segments expected by the upstream. Segment order and text
// are fixed; both carry an ephemeral cache_control marker.
const (
	systemIdentityText = "You are Claude Code, Anthropic's official CLI for Claude."
	systemPreambleText = "You are an interactive CLI tool that helps users with software engineering tasks. Use the instructions below and the tools available to you to assist the user."

	canonicalSystemJSON = `[{"type":"text","text":"` + systemIdentityText + `","cache_control":{"type":"ephemeral"}},` +
		`{"type":"text","text":"` + systemPreambleText + `","cache_control":{"type":"ephemeral"}}]`

	clientPromptOpenTag  = "<client-system-prompt>"
	clientPromptCloseTag = "</client-system-prompt>"
)

// Thinking injection parameters. Family A models negotiate their own budget;
// family B models need an explicit budget plus headroom in max_tokens.
const (
	thinkingBudgetTokens = 10000
	thinkingTokenMargin  = 4096
)

var (
	adaptiveThinkingModels = []string{"opus-4-5", "opus-4-6"}
	budgetThinkingModels   = []string{"claude-3-7", "sonnet-4", "opus-4", "haiku-4"}
)

// TransformRequest runs the full outbound pipeline over a serialized
// Messages-API request: sanitize, normalize tool identifiers, substitute the
// system prompt, and inject thinking configuration. Every stage degrades to
// passthrough on shapes it does not recognize; the returned body is always
// usable.
func TransformRequest(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	body = SanitizeBody(body)
	body = normalizeToolIdentifiers(body)
	body = substituteSystemPrompt(body)
	body = injectThinking(body)
	return body
}

// normalizeToolIdentifiers canonicalizes tool names in the tools array and in
// historical tool_use blocks. Builtin descriptors (versioned type field) keep
// their upstream-owned names.
func normalizeToolIdentifiers(body []byte) []byte {
	gjson.GetBytes(body, "tools").ForEach(func(key, tool gjson.Result) bool {
		if IsBuiltinToolType(tool.Get("type").String()) {
			return true
		}
		name := tool.Get("name").String()
		if normalized := NormalizeToolName(name); normalized != name {
			body, _ = sjson.SetBytes(body, "tools."+key.String()+".name", normalized)
		}
		return true
	})

	gjson.GetBytes(body, "messages").ForEach(func(msgKey, msg gjson.Result) bool {
		content := msg.Get("content")
		if !content.IsArray() {
			return true
		}
		content.ForEach(func(blockKey, block gjson.Result) bool {
			if block.Get("type").String() != "tool_use" {
				return true
			}
			name := block.Get("name").String()
			if normalized := NormalizeToolName(name); normalized != name {
				path := "messages." + msgKey.String() + ".content." + blockKey.String() + ".name"
				body, _ = sjson.SetBytes(body, path, normalized)
			}
			return true
		})
		return true
	})

	return body
}

// flattenSystemField collapses the system field to plain text: a string is
// taken as-is, an array contributes its text-typed segments joined by
// newlines. Anything else flattens to empty.
func flattenSystemField(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	if !system.IsArray() {
		return ""
	}
	var parts []string
	system.ForEach(func(_, segment gjson.Result) bool {
		if segment.Get("type").String() == "text" {
			if text := segment.Get("text").String(); text != "" {
				parts = append(parts, text)
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// substituteSystemPrompt overwrites the system field with the canonical
// segments and relocates the client's original system text into the first
// user message, wrapped in marker tags so the model can tell it apart from
// the conversation. When no user message exists the captured text is dropped.
func substituteSystemPrompt(body []byte) []byte {
	captured := flattenSystemField(gjson.GetBytes(body, "system"))

	body, _ = sjson.SetRawBytes(body, "system", []byte(canonicalSystemJSON))

	if captured == "" || captured == systemIdentityText {
		return body
	}

	wrapped := clientPromptOpenTag + "\n" + captured + "\n" + clientPromptCloseTag

	userIndex := -1
	var userMsg gjson.Result
	gjson.GetBytes(body, "messages").ForEach(func(key, msg gjson.Result) bool {
		if msg.Get("role").String() == "user" {
			userIndex = int(key.Int())
			userMsg = msg
			return false
		}
		return true
	})
	if userIndex < 0 {
		return body
	}

	content := userMsg.Get("content")
	contentPath := "messages." + strconv.Itoa(userIndex) + ".content"
	if content.Type == gjson.String {
		body, _ = sjson.SetBytes(body, contentPath, wrapped+"\n\n"+content.String())
		return body
	}
	if content.IsArray() {
		segment, _ := sjson.Set(`{"type":"text"}`, "text", wrapped)
		raw := "[" + segment
		content.ForEach(func(_, block gjson.Result) bool {
			raw += "," + block.Raw
			return true
		})
		raw += "]"
		body, _ = sjson.SetRawBytes(body, contentPath, []byte(raw))
	}
	return body
}

// injectThinking adds a thinking configuration for models known to support
// it. An explicit client-provided thinking field always wins.
func injectThinking(body []byte) []byte {
	if gjson.GetBytes(body, "thinking").Exists() {
		return body
	}
	model := strings.ToLower(gjson.GetBytes(body, "model").String())

	for _, marker := range adaptiveThinkingModels {
		if strings.Contains(model, marker) {
			body, _ = sjson.SetRawBytes(body, "thinking", []byte(`{"type":"adaptive"}`))
			return body
		}
	}

	for _, marker := range budgetThinkingModels {
		if !strings.Contains(model, marker) {
			continue
		}
		body, _ = sjson.SetRawBytes(body, "thinking",
			[]byte(`{"type":"enabled","budget_tokens":10000}`))
		floor := int64(thinkingBudgetTokens + thinkingTokenMargin)
		if gjson.GetBytes(body, "max_tokens").Int() < floor {
			body, _ = sjson.SetBytes(body, "max_tokens", floor)
		}
		return body
	}

	return body
}
