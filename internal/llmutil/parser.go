// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedObjectRegex pulls a JSON object out of a markdown code fence.
// \x60 is a backtick; raw strings cannot hold one.
var fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*({.*})\\s*\x60\x60\x60")

// ExtractJSONObject returns the JSON object embedded in a model response.
// Models wrap answers in code fences or surround them with prose; both are
// stripped. The input is returned trimmed when no object is found.
func ExtractJSONObject(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		if m := fencedObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
	}
	if strings.HasPrefix(response, "{") && strings.HasSuffix(response, "}") {
		return response
	}

	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first != -1 && last > first {
		return response[first : last+1]
	}
	return response
}

// DecodeInto extracts the JSON object from response and unmarshals it into out.
func DecodeInto(response string, out interface{}) error {
	candidate := ExtractJSONObject(response)
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(candidate, 500))
	}
	return nil
}

// Truncate shortens s to at most maxLen bytes without splitting a rune.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
