package dto

import (
	"fmt"
	"math"
	"strconv"

	"github.com/reglet-dev/netgate/internal/domain/values"
)

// Params is the positional parameter list of a call. Values arrive from
// different codecs, so numeric accessors accept any numeric representation.
type Params []any

// Len returns the number of parameters
func (p Params) Len() int {
	return len(p)
}

// Has reports whether parameter i is present and not null
func (p Params) Has(i int) bool {
	return i < len(p) && p[i] != nil
}

// String returns parameter i as a string.
func (p Params) String(i int) (string, error) {
	if !p.Has(i) {
		return "", fmt.Errorf("parameter %d: missing string", i)
	}
	s, ok := p[i].(string)
	if !ok {
		return "", fmt.Errorf("parameter %d: expected string, got %T", i, p[i])
	}
	return s, nil
}

// Int returns parameter i as an int.
func (p Params) Int(i int) (int, error) {
	if !p.Has(i) {
		return 0, fmt.Errorf("parameter %d: missing number", i)
	}
	return toInt(p[i], i)
}

// Handle returns parameter i as a socket handle. Handles exceed 32 bits, so
// they get their own accessor.
func (p Params) Handle(i int) (values.SocketHandle, error) {
	if !p.Has(i) {
		return 0, fmt.Errorf("parameter %d: missing handle", i)
	}
	switch v := p[i].(type) {
	case values.SocketHandle:
		return v, nil
	case uint64:
		return values.SocketHandle(v), nil
	case int64:
		if v >= 0 {
			return values.SocketHandle(v), nil
		}
	case int:
		if v >= 0 {
			return values.SocketHandle(v), nil
		}
	case uint32:
		return values.SocketHandle(v), nil
	case float64:
		if v >= 0 && v == math.Trunc(v) && v < 1<<53 {
			return values.SocketHandle(v), nil
		}
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			return values.SocketHandle(n), nil
		}
	}
	return 0, fmt.Errorf("parameter %d: %v is not a socket handle", i, p[i])
}

// IntOr returns parameter i as an int, or def when absent.
func (p Params) IntOr(i int, def int) (int, error) {
	if !p.Has(i) {
		return def, nil
	}
	return toInt(p[i], i)
}

// BoolOr returns parameter i as a bool, or def when absent.
func (p Params) BoolOr(i int, def bool) (bool, error) {
	if !p.Has(i) {
		return def, nil
	}
	switch v := p[i].(type) {
	case bool:
		return v, nil
	default:
		n, err := toInt(v, i)
		if err != nil {
			return false, fmt.Errorf("parameter %d: expected bool, got %T", i, p[i])
		}
		return n != 0, nil
	}
}

// Bytes returns parameter i as raw bytes. Strings are taken as-is; arrays
// must hold byte values.
func (p Params) Bytes(i int) ([]byte, error) {
	if !p.Has(i) {
		return nil, fmt.Errorf("parameter %d: missing data", i)
	}
	switch v := p[i].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case []any:
		out := make([]byte, len(v))
		for j, el := range v {
			n, err := toInt(el, i)
			if err != nil || n < 0 || n > math.MaxUint8 {
				return nil, fmt.Errorf("parameter %d: element %d is not a byte value", i, j)
			}
			out[j] = byte(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %d: expected string or byte array, got %T", i, p[i])
	}
}

// Object returns parameter i as a string-keyed map.
func (p Params) Object(i int) (map[string]any, error) {
	if !p.Has(i) {
		return nil, fmt.Errorf("parameter %d: missing object", i)
	}
	switch v := p[i].(type) {
	case map[string]any:
		return v, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %d: non-string key %v", i, k)
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %d: expected object, got %T", i, p[i])
	}
}

func toInt(v any, i int) (int, error) {
	switch n := v.(type) {
	case int:
		return toInt(int64(n), i)
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, fmt.Errorf("parameter %d: %d out of range", i, n)
		}
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("parameter %d: %d out of range", i, n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
			return 0, fmt.Errorf("parameter %d: %v is not an integer", i, n)
		}
		return int(n), nil
	case float32:
		return toInt(float64(n), i)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parameter %d: %q is not an integer", i, n)
		}
		return int(parsed), nil
	default:
		return 0, fmt.Errorf("parameter %d: expected number, got %T", i, v)
	}
}

// ObjectView reads typed fields out of an object parameter.
type ObjectView map[string]any

// String returns field k, or def when absent.
func (o ObjectView) String(k, def string) (string, error) {
	v, ok := o[k]
	if !ok || v == nil {
		return def, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("field %q: expected string, got %T", k, v)
	}
	return s, nil
}

// Int returns field k, or def when absent.
func (o ObjectView) Int(k string, def int) (int, error) {
	v, ok := o[k]
	if !ok || v == nil {
		return def, nil
	}
	n, err := toInt(v, 0)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", k, err)
	}
	return n, nil
}
