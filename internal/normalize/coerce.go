package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Helpers for reading a loosely-typed decoded JSON object. Model replies
// drift in key casing and value types, so every accessor tolerates aliases,
// numeric strings and wrong types without failing.

// lookup returns the first present value among keys, matching case-insensitively
func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	for _, key := range keys {
		for k, v := range obj {
			if v != nil && strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return nil, false
}

// stringField returns a string value; numbers and booleans are formatted
func stringField(obj map[string]any, keys ...string) string {
	v, ok := lookup(obj, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// floatField returns a number from a JSON number or a numeric string.
// Percent strings ("85%") are converted to fractions.
func floatField(obj map[string]any, keys ...string) (float64, bool) {
	v, ok := lookup(obj, keys...)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		percent := strings.HasSuffix(s, "%")
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		if percent {
			f /= 100
		}
		return f, true
	}
	return 0, false
}

// listField returns a JSON array value
func listField(obj map[string]any, keys ...string) []any {
	v, ok := lookup(obj, keys...)
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	return list
}

// objectField returns a JSON object value
func objectField(obj map[string]any, keys ...string) (map[string]any, bool) {
	v, ok := lookup(obj, keys...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// stringList converts a JSON array into its string and numeric members
func stringList(list []any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// unitInterval clamps a score into [0,1]. Whole numbers up to 100 are read
// as percentages; fractional values above 1 are clamped, not rescaled.
// Percent strings are already fractions by the time they get here.
func unitInterval(f float64) float64 {
	if f > 1 && f <= 100 && f == math.Trunc(f) {
		f /= 100
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
