// Package jsonutil extracts and parses JSON objects from model responses that
// may be wrapped in markdown code fences or embedded in prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when the text holds no balanced top-level object.
var ErrNoObject = errors.New("no JSON object found")

// StripMarkdownFences removes ```json and ``` fence markers anywhere in text.
// Models frequently wrap the object in a fence and then keep talking, so
// markers are dropped wherever they occur rather than only at the edges.
func StripMarkdownFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// ExtractObject returns the first balanced top-level {...} object in text.
// Braces inside string literals do not count toward the depth.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSON strips fences from raw model text, extracts the first JSON object
// and unmarshals it into T.
func ParseJSON[T any](raw string) (T, error) {
	var zero T
	obj, ok := ExtractObject(StripMarkdownFences(raw))
	if !ok {
		return zero, fmt.Errorf("%w (raw length: %d)", ErrNoObject, len(raw))
	}

	var result T
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		preview := obj
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}
