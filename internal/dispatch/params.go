// Package dispatch implements the Tool Dispatcher: maps tool names to
// handlers, normalizes flexible parameter shapes, and maps handler errors
// to the transport's error shape.
package dispatch

import (
	"strconv"
	"strings"

	"github.com/8agana/unified-intelligence/internal/apperr"
)

// Params is the raw decoded JSON request body for a tool call.
type Params map[string]interface{}

// String returns the string field at key, or "" if absent/wrong type.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Bool returns the bool field at key.
func (p Params) Bool(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Int flexibly coerces the field at key: accepts a JSON number, an int, or
// a decimal string, per the tool surface's "flexible int deserialization"
// contract. Returns (0, false) if the field is absent or uncoercible.
func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return FlexInt(v)
}

// FlexInt coerces v into an int, accepting a float64 (JSON number), an
// int, or a numeric string. Fractional values, as numbers or strings, are
// truncated toward zero.
func FlexInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			f, ferr := strconv.ParseFloat(t, 64)
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return n, true
	default:
		return 0, false
	}
}

// FlexFloat coerces v into a float64, accepting a float64 (JSON number),
// an int, or a decimal string.
func FlexFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// RequireInt coerces the field at key, returning a Validation error if it
// is absent or uncoercible.
func (p Params) RequireInt(key string) (int, error) {
	n, ok := p.Int(key)
	if !ok {
		return 0, apperr.Validation(key+" is required and must be an integer", nil)
	}
	return n, nil
}

// RequireString returns the string field at key, or a Validation error if
// it is absent or empty.
func (p Params) RequireString(key string) (string, error) {
	s := p.String(key)
	if s == "" {
		return "", apperr.Validation(key+" is required", nil)
	}
	return s, nil
}

// OptionalIntPtr returns a pointer to the coerced int at key, or nil if
// absent.
func (p Params) OptionalIntPtr(key string) *int {
	n, ok := p.Int(key)
	if !ok {
		return nil
	}
	return &n
}

// StringSlice returns the field at key as a []string, tolerating either a
// JSON array of strings or a comma-separated string.
func (p Params) StringSlice(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
