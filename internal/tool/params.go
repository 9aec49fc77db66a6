package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ltl/internal/domain"
)

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(params []domain.ParamSpec) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0)
	for _, p := range params {
		prop := map[string]any{"type": p.Type.JSONType(), "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// CoerceArgs checks args against params and returns a new map holding only
// declared parameters, converted to their declared types (string, int64,
// float64, bool). Missing optional parameters get their defaults.
func CoerceArgs(params []domain.ParamSpec, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for _, p := range params {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("%w %s", domain.ErrMissingParameter, p.Name)
			}
			if p.Default != nil {
				v, err := coerce(p.Type, p.Default)
				if err != nil {
					return nil, fmt.Errorf("%w %s: bad default: %v", domain.ErrInvalidParameter, p.Name, err)
				}
				out[p.Name] = v
			}
			continue
		}
		v, err := coerce(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", domain.ErrInvalidParameter, p.Name, err)
		}
		out[p.Name] = v
	}
	return out, nil
}

func coerce(t domain.ParamType, v any) (any, error) {
	switch t {
	case domain.ParamInt:
		return toInt(v)
	case domain.ParamFloat:
		return toFloat(v)
	case domain.ParamBool:
		return toBool(v)
	default:
		return toString(v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32:
		return integral(float64(n), v)
	case float64:
		return integral(n, v)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return integral(f, v)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return integral(f, v)
		}
		return 0, fmt.Errorf("expected integer, got %q", n)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func integral(f float64, orig any) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", orig)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("expected integer in range, got %v", orig)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		return false, fmt.Errorf("expected boolean, got %q", b)
	}
	return false, fmt.Errorf("expected boolean, got %T", v)
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case json.Number:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

// ArgString returns a coerced string argument or "".
func ArgString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// ArgInt returns a coerced integer argument or def.
func ArgInt(args map[string]any, key string, def int) int {
	if n, ok := args[key].(int64); ok {
		return int(n)
	}
	return def
}

// ArgBool returns a coerced boolean argument or false.
func ArgBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
