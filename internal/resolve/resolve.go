// Package resolve walks dotted/bracket paths (a.b[0].c) through decoded JSON values.
package resolve

import (
	"strconv"
	"strings"
)

const (
	dbPrefix     = "db."
	tablesPrefix = "tables."
	lengthField  = "length"
)

// Path resolves path against root. The boolean reports whether the path is
// defined: a JSON null yields (nil, true), a missing key yields (nil, false).
// Resolution never fails; absence is the only signal.
func Path(path string, root any) (any, bool) {
	current := root
	defined := true
	for _, seg := range Segments(path) {
		if !defined || current == nil {
			return nil, false
		}
		current, defined = step(current, seg)
	}
	return current, defined
}

// Context resolves path after applying the db. alias.
func Context(path string, root any) (any, bool) {
	return Path(Alias(path), root)
}

// Alias rewrites a leading "db." to "tables.".
func Alias(path string) string {
	if strings.HasPrefix(path, dbPrefix) {
		return tablesPrefix + strings.TrimPrefix(path, dbPrefix)
	}
	return path
}

// Segments strips a leading "$." or "$" and splits the remainder on '.', '['
// and ']', discarding empty tokens.
func Segments(path string) []string {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
}

func step(current any, seg string) (any, bool) {
	if isIndex(seg) {
		arr, ok := current.([]any)
		if !ok {
			return nil, false
		}
		idx, err := strconv.Atoi(seg)
		if err != nil || idx >= len(arr) {
			return nil, false
		}
		return arr[idx], true
	}

	switch v := current.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case []any:
		if seg == lengthField {
			return float64(len(v)), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
