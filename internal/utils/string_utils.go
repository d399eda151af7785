package utils

import (
	"strings"
)

// MaskAPIKey masks a credential for safe logging.
// Example: "sk-1234567890abcdef" -> "sk-1****cdef"
func MaskAPIKey(key string) string {
	length := len(key)
	if length <= 8 {
		return key
	}
	var b strings.Builder
	b.Grow(12)
	b.WriteString(key[:4])
	b.WriteString("****")
	b.WriteString(key[length-4:])
	return b.String()
}

// TruncateString shortens a string to at most maxLength runes, never
// splitting a multi-byte character.
func TruncateString(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength])
}

// SplitAndTrim splits a string by a separator, trimming whitespace and
// dropping empty parts.
func SplitAndTrim(s string, sep string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
