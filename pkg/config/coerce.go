package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Coercion accepts the values a YAML decoder or an environment variable can
// produce for a key. Strings are converted with cast; anything cast would
// accept lossily (true as 1, 2.5 as 2) is rejected instead.

func toInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case nil, bool:
		return 0, false
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false
		}
		return int(v), true
	case float32:
		return toInt(float64(v))
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, false
		}
		i, err := cast.ToIntE(v)
		if err != nil {
			// "3.0" is an integer written as a float
			f, ferr := cast.ToFloat64E(v)
			if ferr != nil {
				return 0, false
			}
			return toInt(f)
		}
		return i, true
	case uint, uint64:
		// cast wraps values above MaxInt around to negatives
		u, err := cast.ToUint64E(v)
		if err != nil || u > uint64(math.MaxInt) {
			return 0, false
		}
		return int(u), true
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		i, err := cast.ToIntE(v)
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case nil, bool:
		return 0, false
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(strings.TrimSpace(v))
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		f, err := cast.ToFloat64E(v)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toBool(raw interface{}) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		if strings.TrimSpace(v) == "" {
			return false, false
		}
		b, err := cast.ToBoolE(strings.TrimSpace(v))
		return b, err == nil
	case int:
		if v != 0 && v != 1 {
			return false, false
		}
		return v == 1, true
	default:
		return false, false
	}
}

// toString accepts scalars only. A null value is the empty string.
func toString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case bool, map[string]interface{}, map[interface{}]interface{}, []interface{}:
		return "", false
	default:
		s, err := cast.ToStringE(v)
		return s, err == nil
	}
}

// toList accepts a YAML sequence, a comma separated string (as set through an
// environment variable, optionally wrapped in brackets) or a single scalar.
func toList(raw interface{}) ([]interface{}, bool) {
	switch v := raw.(type) {
	case nil:
		return []interface{}{}, true
	case []interface{}:
		return v, true
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
		if strings.TrimSpace(s) == "" {
			return []interface{}{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = strings.Trim(strings.TrimSpace(p), `"'`)
		}
		return out, true
	case map[string]interface{}, map[interface{}]interface{}:
		return nil, false
	default:
		return []interface{}{v}, true
	}
}

func toIntList(raw interface{}) ([]int, bool) {
	items, ok := toList(raw)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		i, ok := toInt(item)
		if !ok {
			return nil, false
		}
		out = append(out, i)
	}
	return out, true
}

// toImageSize accepts [height, width], a single integer for a square image,
// or "HxW".
func toImageSize(raw interface{}) (ImageSize, bool) {
	if s, ok := raw.(string); ok && strings.ContainsAny(s, "xX") {
		raw = strings.NewReplacer("x", ",", "X", ",").Replace(s)
	}
	if n, ok := toInt(raw); ok {
		return ImageSize{Height: n, Width: n}, true
	}
	dims, ok := toIntList(raw)
	if !ok || len(dims) != 2 {
		return ImageSize{}, false
	}
	return ImageSize{Height: dims[0], Width: dims[1]}, true
}

func enumExpectation[T ~string](values []T) string {
	return fmt.Sprintf("one of [%s]", joinNames(values))
}
