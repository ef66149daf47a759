package capability

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

// ValidateArgs checks args against desc and returns a normalised copy.
// Strings are trimmed, integers come back as int64, numbers as float64.
func ValidateArgs(desc contractx.Capability, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(desc.Fields))

	for key := range args {
		if _, ok := desc.Field(key); !ok {
			return nil, fmt.Errorf("%w: %s does not accept field %q", contractx.ErrValidation, desc.Name, key)
		}
	}

	for _, f := range desc.Fields {
		raw, present := args[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, fmt.Errorf("%w: %s requires field %q", contractx.ErrValidation, desc.Name, f.Name)
			}
			continue
		}

		val, err := coerce(f, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %v", contractx.ErrValidation, desc.Name, f.Name, err)
		}
		if s, ok := val.(string); ok && s == "" {
			if f.Required {
				return nil, fmt.Errorf("%w: %s requires field %q", contractx.ErrValidation, desc.Name, f.Name)
			}
			continue
		}
		if len(f.Enum) > 0 {
			s, _ := val.(string)
			if !slices.Contains(f.Enum, s) {
				return nil, fmt.Errorf("%w: %s field %q must be one of %s", contractx.ErrValidation, desc.Name, f.Name, strings.Join(f.Enum, ", "))
			}
		}
		out[f.Name] = val
	}
	return out, nil
}

func coerce(f contractx.Field, raw any) (any, error) {
	switch f.Type {
	case contractx.FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		s = strings.TrimSpace(s)
		if len(f.Enum) > 0 {
			s = strings.ToLower(s)
		}
		return s, nil
	case contractx.FieldNumber:
		n, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", raw)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("number is not finite")
		}
		return n, nil
	case contractx.FieldInteger:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
		}
		n, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("want integer, got %T", raw)
		}
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("want integer, got %v", n)
		}
		if n < -int64Bound || n >= int64Bound {
			return nil, fmt.Errorf("integer %v is out of range", n)
		}
		return int64(n), nil
	case contractx.FieldBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want boolean, got %T", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported field type %q", f.Type)
	}
}

// int64Bound is 2^63; int64 covers [-2^63, 2^63).
const int64Bound = float64(1 << 63)

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
