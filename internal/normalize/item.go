// Package normalize projects heterogeneous provider payloads into the
// internal listing schema. It is the single place where payload shape
// diversity is absorbed: extraction rules are table-driven ordered probes,
// so adding a provider does not touch the rest of the pipeline.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Item is a raw provider payload as decoded from JSON.
type Item = map[string]any

// pickNested returns the first non-empty value found for any of the given
// keys, searching obj depth-first through nested maps and arrays.
func pickNested(obj any, keys []string) any {
	switch v := obj.(type) {
	case map[string]any:
		for _, k := range keys {
			if val, ok := v[k]; ok && val != nil && val != "" {
				return val
			}
		}
		for _, child := range v {
			if r := pickNested(child, keys); r != nil {
				return r
			}
		}
	case []any:
		for _, child := range v {
			if r := pickNested(child, keys); r != nil {
				return r
			}
		}
	}
	return nil
}

var leadingNumber = regexp.MustCompile(`[0-9][0-9.,\s]*`)

// toFloat coerces a scalar to a float64, parsing German-formatted numbers
// out of strings: thousands separators ("." or space) are stripped and the
// decimal comma becomes a period. Returns false when no number is present.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		m := leadingNumber.FindString(n)
		if m == "" {
			return 0, false
		}
		return parseGermanNumber(m)
	}
	return 0, false
}

func parseGermanNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	return parseFloat(s)
}

// parseDecimal interprets s as a plain decimal where only the comma is a
// separator ("1,5" -> 1.5). Used for regex captures of rooms and area,
// where a period is a true decimal point, not a thousands separator.
func parseDecimal(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return parseFloat(s)
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// str returns v as a trimmed string when it is one, else "".
func str(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// itemStr returns item[key] as a string when present.
func itemStr(item Item, key string) string {
	return str(item[key])
}

// firstString returns the first non-empty string among item[keys...].
func firstString(item Item, keys ...string) string {
	for _, k := range keys {
		if s := itemStr(item, k); s != "" {
			return s
		}
	}
	return ""
}
