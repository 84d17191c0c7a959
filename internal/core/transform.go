package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TransformFunc rewrites one mapped value before type coercion.
type TransformFunc func(v any, dateFormat string) (any, error)

var (
	transformsMu sync.RWMutex
	transforms   = map[string]TransformFunc{
		"upper": stringTransform(strings.ToUpper),
		"lower": stringTransform(strings.ToLower),
		"trim":  stringTransform(strings.TrimSpace),
		"date": func(v any, dateFormat string) (any, error) {
			return ToDate(v, dateFormat)
		},
		"number": func(v any, _ string) (any, error) {
			return ToNumber(v)
		},
		"boolean": func(v any, _ string) (any, error) {
			return ToBool(v)
		},
	}
)

// RegisterTransform adds a named transform. Names are case-insensitive and
// may not replace an existing transform.
func RegisterTransform(name string, fn TransformFunc) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || fn == nil {
		return fmt.Errorf("transform needs a name and a function")
	}
	transformsMu.Lock()
	defer transformsMu.Unlock()
	if _, exists := transforms[key]; exists {
		return fmt.Errorf("transform already registered: %s", key)
	}
	transforms[key] = fn
	return nil
}

// MustRegisterTransform is RegisterTransform that panics, for init-time registration.
func MustRegisterTransform(name string, fn TransformFunc) {
	if err := RegisterTransform(name, fn); err != nil {
		panic(err)
	}
}

// StringTransform lifts fn to a transform that leaves non-string values alone.
func StringTransform(fn func(string) string) TransformFunc {
	return stringTransform(fn)
}

func stringTransform(fn func(string) string) TransformFunc {
	return func(v any, _ string) (any, error) {
		if s, ok := v.(string); ok {
			return fn(s), nil
		}
		return v, nil
	}
}

// TransformNames lists the supported transform names.
func TransformNames() []string {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyTransform runs the named transform. Nil values pass through untouched.
func ApplyTransform(name string, v any, dateFormat string) (any, error) {
	if name == "" || v == nil {
		return v, nil
	}
	transformsMu.RLock()
	fn, ok := transforms[strings.ToLower(name)]
	transformsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	return fn(v, dateFormat)
}
