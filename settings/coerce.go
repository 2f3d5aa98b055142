package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"pushrelay/desktop"
)

// CoerceBool accepts bools and the strings "true"/"false".
func CoerceBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", t)
		}
		return b, nil
	}
	return nil, fmt.Errorf("not a boolean: %T", v)
}

// CoerceFloat accepts any number or a string parsed as a float. The result is
// always float64.
func CoerceFloat(v any) (any, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		p, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", t)
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", t)
		}
		f = p
	default:
		return nil, fmt.Errorf("not a number: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("not a finite number: %v", f)
	}
	return f, nil
}

// CoerceString accepts strings only.
func CoerceString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("not a string: %T", v)
	}
	return s, nil
}

// CoerceBounds accepts a desktop.Bounds or its JSON object form.
func CoerceBounds(v any) (any, error) {
	switch t := v.(type) {
	case desktop.Bounds:
		return t, nil
	case *desktop.Bounds:
		if t == nil {
			return nil, fmt.Errorf("nil bounds")
		}
		return *t, nil
	case map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var b desktop.Bounds
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("not window bounds: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("not window bounds: %T", v)
}
