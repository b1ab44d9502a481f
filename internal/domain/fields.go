package domain

import (
	"fmt"
	"math"
	"time"
)

// FieldError reports a missing or malformed document field discovered while
// decoding a raw document into a typed schema.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q %s", e.Field, e.Reason)
}

func missingField(name string) error {
	return &FieldError{Field: name, Reason: "is required"}
}

func badField(name, want string, got any) error {
	return &FieldError{Field: name, Reason: fmt.Sprintf("expected %s, got %T", want, got)}
}

func fieldString(fields map[string]any, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return "", missingField(name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", badField(name, "string", raw)
	}
	return s, nil
}

func fieldOptString(fields map[string]any, name string) (*string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, badField(name, "string", raw)
	}
	return &s, nil
}

func fieldOptInt(fields map[string]any, name string) (*int, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case int:
		return &v, nil
	case int64:
		n := int(v)
		return &n, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, badField(name, "integer", raw)
		}
		n := int(v)
		return &n, nil
	default:
		return nil, badField(name, "integer", raw)
	}
}

func fieldFloat(fields map[string]any, name string, fallback float64) (float64, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, badField(name, "number", raw)
	}
}

func fieldInt(fields map[string]any, name string, fallback int) (int, error) {
	v, err := fieldOptInt(fields, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return fallback, nil
	}
	return *v, nil
}

func fieldBool(fields map[string]any, name string, fallback bool) (bool, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return fallback, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, badField(name, "bool", raw)
	}
	return b, nil
}

func fieldStringSlice(fields map[string]any, name string) ([]string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, badField(name, "string array", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, badField(name, "string array", raw)
	}
}

func fieldOptTime(fields map[string]any, name string) (*time.Time, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return &v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, badField(name, "RFC3339 timestamp", raw)
		}
		return &t, nil
	default:
		return nil, badField(name, "timestamp", raw)
	}
}

func fieldTime(fields map[string]any, name string) (time.Time, error) {
	t, err := fieldOptTime(fields, name)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, missingField(name)
	}
	return *t, nil
}
