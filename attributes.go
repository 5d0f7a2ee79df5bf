package zarr

import (
	"fmt"
	"strings"
)

// Attributes is the userland metadata stored under a node's .zattrs key.
// Values are whatever encoding/json produced: float64, string, bool, nil,
// []interface{} or map[string]interface{}.
type Attributes map[string]interface{}

// Has reports whether key is present, even with a null value.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the value at key if it is a string.
func (a Attributes) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// Float64 returns the value at key if it is numeric.
func (a Attributes) Float64(key string) (float64, bool) {
	return toFloat64(a[key])
}

// Int returns the value at key if it is numeric, truncated to an int.
func (a Attributes) Int(key string) (int, bool) {
	f, ok := toFloat64(a[key])
	return int(f), ok
}

// Float64s returns the value at key if it is a list of numbers.
func (a Attributes) Float64s(key string) ([]float64, bool) {
	list, ok := a[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float64, len(list))
	for i, v := range list {
		f, ok := toFloat64(v)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// Strings returns the value at key as a list of strings. A plain string is
// split on whitespace, the way CF conventions encode flag_meanings.
func (a Attributes) Strings(key string) ([]string, bool) {
	switch v := a[key].(type) {
	case string:
		return strings.Fields(v), true
	case []interface{}:
		out := make([]string, len(v))
		for i, el := range v {
			s, ok := el.(string)
			if !ok {
				s = fmt.Sprint(el)
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// Map returns the nested attribute mapping at key.
func (a Attributes) Map(key string) (Attributes, bool) {
	m, ok := a[key].(map[string]interface{})
	if !ok {
		if at, isAttrs := a[key].(Attributes); isAttrs {
			return at, true
		}
		return nil, false
	}
	return Attributes(m), true
}

// Path follows a chain of nested mappings, e.g.
// Path("stac_discovery", "properties").
func (a Attributes) Path(keys ...string) (Attributes, bool) {
	cur := a
	for _, k := range keys {
		next, ok := cur.Map(k)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func toFloat64(v interface{}) (float64, bool) {
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
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Merged returns a copy of the attributes where entries missing at the top
// level are taken from the nested mapping at key, e.g. "_eopf_attrs".
func (a Attributes) Merged(key string) Attributes {
	out := Attributes{}
	if nested, ok := a.Map(key); ok {
		for k, v := range nested {
			out[k] = v
		}
	}
	for k, v := range a {
		if v == nil {
			if _, ok := out[k]; ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}
