// Package jsonutil extracts JSON from LLM responses that wrap it in prose,
// markdown fences, comments, or trailing commas. All stages funnel model
// output through here rather than repairing ad hoc.
package jsonutil

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no balanced JSON value can be found.
var ErrNoJSON = errors.New("jsonutil: no JSON object or array found")

// ExtractFirst returns the first balanced JSON object or array in s,
// ignoring braces and brackets inside string literals. Markdown code
// fences are stripped before scanning.
func ExtractFirst(s string) (string, error) {
	s = StripFences(s)

	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if s[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}

// StripFences removes a leading/trailing markdown code fence pair
// (```json ... ``` or ``` ... ```).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		if idx := strings.LastIndex(s, "\n```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// Repair removes // line comments and trailing commas outside string
// literals so that slightly sloppy model output still parses.
func Repair(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == ',':
			// Drop the comma when the next non-space byte closes a container.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Decode extracts, repairs and unmarshals the first JSON value in raw.
func Decode(raw string, v any) error {
	blob, err := ExtractFirst(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(Repair(blob)), v)
}

// DecodeItems decodes raw as either a JSON array of T or a lone T object;
// the lone-object case yields a one-element slice. Array elements that do
// not unmarshal as T are skipped rather than failing the whole array.
func DecodeItems[T any](raw string) ([]T, error) {
	blob, err := ExtractFirst(raw)
	if err != nil {
		return nil, err
	}
	blob = Repair(blob)

	if strings.HasPrefix(strings.TrimSpace(blob), "[") {
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(blob), &elems); err != nil {
			return nil, err
		}
		items := make([]T, 0, len(elems))
		for _, e := range elems {
			var item T
			if err := json.Unmarshal(e, &item); err != nil {
				continue
			}
			items = append(items, item)
		}
		return items, nil
	}

	var item T
	if err := json.Unmarshal([]byte(blob), &item); err != nil {
		return nil, err
	}
	return []T{item}, nil
}
