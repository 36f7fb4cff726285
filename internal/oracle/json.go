package oracle

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply holds no parseable JSON value.
var ErrNoJSON = errors.New("oracle: no JSON in reply")

var reasoningBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON returns the first JSON object or array embedded in reply.
// Leading reasoning blocks and markdown fences are tolerated.
func ExtractJSON(reply string) (string, error) {
	s := reasoningBlock.ReplaceAllString(reply, "")

	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	order := []byte{'[', '{'}
	if obj >= 0 && (arr < 0 || obj < arr) {
		order = []byte{'{', '['}
	}
	for _, open := range order {
		if v, ok := balanced(s, open); ok && json.Valid([]byte(v)) {
			return v, nil
		}
	}

	if t := strings.TrimSpace(s); json.Valid([]byte(t)) {
		return t, nil
	}
	return "", ErrNoJSON
}

// balanced returns the first bracket-balanced span starting at open, ignoring
// brackets inside JSON strings.
func balanced(s string, open byte) (string, bool) {
	end := byte('}')
	if open == '[' {
		end = ']'
	}
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == open:
			depth++
		case c == end:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// arrayElements returns the elements of the first array found in reply. A
// bare array is used as is; an object contributes its first array-valued
// field (JSON-mode providers cannot return a top-level array).
func arrayElements(reply string) ([]json.RawMessage, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var arr []json.RawMessage
	if json.Unmarshal([]byte(raw), &arr) == nil {
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, ErrNoJSON
	}
	// Prefer conventional keys so the result does not depend on map order.
	for _, k := range []string{"mappings", "results", "items", "data"} {
		if v, ok := obj[k]; ok && json.Unmarshal(v, &arr) == nil {
			return arr, nil
		}
	}
	for _, v := range obj {
		if json.Unmarshal(v, &arr) == nil {
			return arr, nil
		}
	}
	return nil, ErrNoJSON
}
