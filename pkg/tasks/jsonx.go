package tasks

import (
	"encoding/json"
	"regexp"
)

// LLMs wrap JSON in markdown fences and leave trailing commas often enough
// that strict unmarshaling of the raw response is a losing game.
var (
	jsonBlockPattern     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	jsonObjectPattern    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls the first JSON object out of an LLM response, preferring
// fenced code blocks, and strips trailing commas.
func ExtractJSON(content string) string {
	raw := ""
	if matches := jsonBlockPattern.FindStringSubmatch(content); len(matches) > 1 {
		raw = matches[1]
	} else {
		raw = jsonObjectPattern.FindString(content)
	}
	if raw == "" {
		return ""
	}
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}

// DecodeJSON extracts and unmarshals a JSON object from an LLM response.
func DecodeJSON(content string, v any) bool {
	raw := ExtractJSON(content)
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}
