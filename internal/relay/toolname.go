package relay

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// canonicalToolNames maps known lowercase tool names to the display form the
// Claude Code tool-calling convention expects. Immutable after init; safe for
// unsynchronized concurrent reads.
var canonicalToolNames = map[string]string{
	"todowrite":        "TodoWrite",
	"todoread":         "TodoRead",
	"webfetch":         "WebFetch",
	"websearch":        "WebSearch",
	"multiedit":        "MultiEdit",
	"notebookedit":     "NotebookEdit",
	"notebookread":     "NotebookRead",
	"exitplanmode":     "ExitPlanMode",
	"enterplanmode":    "EnterPlanMode",
	"askuserquestion":  "AskUserQuestion",
	"bashoutput":       "BashOutput",
	"killshell":        "KillShell",
	"listmcpresources": "ListMcpResources",
	"readmcpresource":  "ReadMcpResource",
}

// builtinToolTypePrefixes identifies protocol-reserved, server-executed tools
// by their versioned type field (e.g. "web_search_20250305"). Their names
// belong to the upstream and must never be rewritten.
var builtinToolTypePrefixes = []string{
	"web_search_",
	"computer_",
	"text_editor_",
	"bash_",
	"code_execution_",
	"memory_",
	"web_fetch_",
	"tool_search_",
}

// NormalizeToolName maps a tool name to its canonical display form: an exact
// lookup-table hit wins, otherwise the first character is uppercased and the
// remainder kept as-is. Empty input is returned unchanged. Callers must skip
// builtin descriptors before calling this.
func NormalizeToolName(name string) string {
	if name == "" {
		return name
	}
	if canonical, ok := canonicalToolNames[name]; ok {
		return canonical
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError && size <= 1 {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// IsBuiltinToolType reports whether a tool descriptor's type field marks it
// as a protocol-reserved builtin.
func IsBuiltinToolType(toolType string) bool {
	for _, prefix := range builtinToolTypePrefixes {
		if strings.HasPrefix(toolType, prefix) {
			return true
		}
	}
	return false
}
