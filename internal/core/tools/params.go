package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Argument preparation.
// Models send arguments as map[string]any, and textual pseudo-calls send
// every value as a string. These helpers bring the map in line with the
// schema before it is decoded into the handler's argument struct, with
// error messages the model can act on.

// checkRequired reports the first required parameter absent from args.
func checkRequired(required []string, args map[string]any) error {
	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required parameter: %q", name)
		}
	}
	return nil
}

// applyDefaults fills absent parameters that declare a default.
func applyDefaults(schema Schema, args map[string]any) {
	for _, p := range schema {
		if p.Default == nil {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			args[p.Name] = p.Default
		}
	}
}

// coerceArgs converts string values to the declared scalar type in place.
func coerceArgs(schema Schema, args map[string]any) error {
	for _, p := range schema {
		v, ok := args[p.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := coerceValue(p.Type, v)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		args[p.Name] = cv
	}
	return nil
}

func coerceValue(typ string, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	switch typ {
	case "integer":
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// Models often write whole numbers as "5.0".
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return nil, fmt.Errorf("must be an integer, got %q", v)
		}
		return int64(f), nil
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number, got %q", s)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("must be a boolean, got %q", s)
		}
		return b, nil
	}
	return v, nil
}

// checkConstraints enforces enum membership and numeric bounds.
func checkConstraints(schema Schema, args map[string]any) error {
	for _, p := range schema {
		v, ok := args[p.Name]
		if !ok || v == nil {
			continue
		}
		if len(p.Enum) > 0 && !inEnum(p.Enum, v) {
			return fmt.Errorf("parameter %q must be one of %v, got %v", p.Name, p.Enum, v)
		}
		n, numeric := toFloat(v)
		if !numeric {
			continue
		}
		if p.Minimum != nil && n < *p.Minimum {
			return fmt.Errorf("parameter %q must be >= %v, got %v", p.Name, *p.Minimum, v)
		}
		if p.Maximum != nil && n > *p.Maximum {
			return fmt.Errorf("parameter %q must be <= %v, got %v", p.Name, *p.Maximum, v)
		}
	}
	return nil
}

func inEnum(enum []any, v any) bool {
	vf, vNum := toFloat(v)
	for _, e := range enum {
		if ef, eNum := toFloat(e); eNum && vNum {
			if ef == vf {
				return true
			}
			continue
		}
		if fmt.Sprint(e) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}

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
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// decodeArgs decodes the argument map into dst, rejecting names dst does not declare.
func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
