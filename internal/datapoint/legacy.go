package datapoint

import (
	"math"
	"strconv"
	"strings"
)

// decodeLegacy parses the flat {key=value, key2=value2} text some provider
// firmware reports instead of JSON. Nested braces or brackets are
// rejected; entries without '=' are skipped.
func decodeLegacy(blob string) (map[string]any, bool) {
	s := strings.TrimSpace(blob)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, false
	}
	body := s[1 : len(s)-1]
	if strings.ContainsAny(body, "{}[]") {
		return nil, false
	}

	out := make(map[string]any)
	if strings.TrimSpace(body) == "" {
		return out, true
	}

	for _, entry := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key := unquote(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		out[key] = legacyValue(strings.TrimSpace(v))
	}
	return out, true
}

func legacyValue(tok string) any {
	switch tok {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && looksNumeric(tok) {
		return f
	}
	return unquote(tok)
}

// looksNumeric rejects tokens ParseFloat accepts but a person would not
// call a number, such as "Inf" or "0x1p-2".
func looksNumeric(tok string) bool {
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
