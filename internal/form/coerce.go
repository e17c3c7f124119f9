// internal/form/coerce.go
//
// Loose value coercion for decoded JSON payloads.
//
// Context
//   Browser payloads arrive as `map[string]any` straight from encoding/json,
//   so a field may hold a string, float64, bool, nil, slice, or map.  The
//   validators compare against the text the user typed, which means every
//   value is first rendered to a string the way the browser would print it
//   (5 → "5", true → "true", [1,2] → "1,2").
//
//------------------------------------------------------------------------------

package form

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Truthy reports whether v counts as “set”: nil, false, 0, NaN, and the empty
// string are not.  Slices and maps are always truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

// Stringify renders v the way a browser prints it.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e != nil {
				parts[i] = Stringify(e)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToNumber parses s as a number.  The empty string is 0.  ok is false for
// anything that is not a finite decimal.
func ToNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ToInt converts numeric payload and YAML values to int.
func ToInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}

/*──────────────────────────── struct tags ──────────────────────────────────*/

var keyCache sync.Map // reflect.Type → map[string]struct{}

// jsonKeys lists the JSON member names declared by v’s struct type.
func jsonKeys(v any) map[string]struct{} {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := keyCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = t.Field(i).Name
		}
		keys[name] = struct{}{}
	}
	keyCache.Store(t, keys)
	return keys
}
