// Package fieldpath reads and writes values inside nested form models using
// field keys such as "addresses.homeAddress.street" or "items[2].sku".
//
// Set never mutates its input: it returns a structural copy with the value
// applied, creating intermediate containers on the way.
package fieldpath

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrPathConflict is returned when a path walks through a value that cannot
// hold children (nil, a scalar, or a non-numeric segment against a list).
// It signals a malformed field key for the model shape, not a user error.
var ErrPathConflict = errors.New("fieldpath: path conflicts with model shape")

// Parse splits a field key into segments. Dots and brackets both separate
// segments; blank segments are dropped, so "a[0].b" and "a.0.b" are equal.
func Parse(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.FieldsFunc(path, func(r rune) bool { return r == '.' || r == '[' || r == ']' })
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Join composes a prefix and a relative key.
func Join(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	case key[0] == '[':
		return prefix + key
	default:
		return prefix + "." + key
	}
}

// Get returns the value at path. Maps are walked by key, slices and arrays by
// integer index, and structs by their json tag (or field name). The second
// result is false when any segment is missing.
func Get(model any, path string) (any, bool) {
	segs := Parse(path)
	if len(segs) == 0 {
		return model, model != nil
	}
	// fast path for the common map/slice tree
	cur := model
	for i, seg := range segs {
		switch n := cur.(type) {
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, ok := tryParseInt(seg)
			if !ok || idx < 0 || idx >= len(n) {
				return nil, false
			}
			cur = n[idx]
		case nil:
			return nil, false
		default:
			return valueAtPathWithin(cur, segs[i:])
		}
	}
	return cur, true
}

// Set returns a copy of model with value stored at path. Missing
// intermediates and nil list slots are created as []any when the next
// segment is an integer and as map[string]any otherwise. An empty path returns model unchanged.
func Set(model map[string]any, path string, value any) (map[string]any, error) {
	segs := Parse(path)
	if len(segs) == 0 {
		return model, nil
	}
	root, _ := Clone(model).(map[string]any)
	if root == nil {
		root = map[string]any{}
	}
	if _, err := setIn(root, segs, value); err != nil {
		return nil, fmt.Errorf("fieldpath: set %q: %w", path, err)
	}
	return root, nil
}

// setIn writes value under node and returns the (possibly regrown) node.
func setIn(node any, segs []string, value any) (any, error) {
	seg := segs[0]
	last := len(segs) == 1
	switch n := node.(type) {
	case map[string]any:
		if last {
			n[seg] = value
			return n, nil
		}
		child, ok := n[seg]
		if !ok {
			child = newContainer(segs[1])
		}
		c, err := setIn(child, segs[1:], value)
		if err != nil {
			return nil, err
		}
		n[seg] = c
		return n, nil
	case []any:
		idx, ok := tryParseInt(seg)
		if !ok || idx < 0 {
			return nil, fmt.Errorf("segment %q is not a list index: %w", seg, ErrPathConflict)
		}
		grown := false
		for len(n) <= idx {
			n = append(n, nil)
			grown = true
		}
		if last {
			n[idx] = value
			return n, nil
		}
		child := n[idx]
		if grown || child == nil {
			child = newContainer(segs[1])
		}
		c, err := setIn(child, segs[1:], value)
		if err != nil {
			return nil, err
		}
		n[idx] = c
		return n, nil
	default:
		return nil, fmt.Errorf("segment %q: cannot descend into %T: %w", seg, node, ErrPathConflict)
	}
}

func newContainer(next string) any {
	if _, ok := tryParseInt(next); ok {
		return []any{}
	}
	return map[string]any{}
}

// Clone deep-copies maps and slices of a model tree. Scalars and other
// values are returned as is.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		if n == nil {
			return n
		}
		out := make(map[string]any, len(n))
		for k, c := range n {
			out[k] = Clone(c)
		}
		return out
	case []any:
		if n == nil {
			return n
		}
		out := make([]any, len(n))
		for i, c := range n {
			out[i] = Clone(c)
		}
		return out
	default:
		return v
	}
}

// CloneModel is Clone specialised for a root model.
func CloneModel(m map[string]any) map[string]any {
	out, _ := Clone(m).(map[string]any)
	return out
}

// valueAtPathWithin navigates v (struct/map/slice) by segments using reflection.
func valueAtPathWithin(v any, segs []string) (any, bool) {
	cur := reflect.ValueOf(v)
	for _, seg := range segs {
		for cur.IsValid() && (cur.Kind() == reflect.Pointer || cur.Kind() == reflect.Interface) {
			if cur.IsNil() {
				return nil, false
			}
			cur = cur.Elem()
		}
		if !cur.IsValid() {
			return nil, false
		}
		switch cur.Kind() {
		case reflect.Struct:
			found := false
			rt := cur.Type()
			for i := 0; i < rt.NumField(); i++ {
				sf := rt.Field(i)
				if !sf.IsExported() {
					continue
				}
				if structKey(sf) == seg {
					cur = cur.Field(i)
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
		case reflect.Map:
			if cur.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			mv := cur.MapIndex(reflect.ValueOf(seg).Convert(cur.Type().Key()))
			if !mv.IsValid() {
				return nil, false
			}
			cur = mv
		case reflect.Slice, reflect.Array:
			idx, ok := tryParseInt(seg)
			if !ok || idx < 0 || idx >= cur.Len() {
				return nil, false
			}
			cur = cur.Index(idx)
		default:
			return nil, false
		}
	}
	for cur.IsValid() && (cur.Kind() == reflect.Pointer || cur.Kind() == reflect.Interface) {
		if cur.IsNil() {
			return nil, true
		}
		cur = cur.Elem()
	}
	if !cur.IsValid() {
		return nil, false
	}
	return cur.Interface(), true
}

// structKey resolves a struct field's external key: json tag name > field name.
func structKey(sf reflect.StructField) string {
	if jt := sf.Tag.Get("json"); jt != "" {
		if jt == "-" {
			return "-"
		}
		if i := strings.IndexByte(jt, ','); i >= 0 {
			if i == 0 {
				return sf.Name
			}
			return jt[:i]
		}
		return jt
	}
	return sf.Name
}

func tryParseInt(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' && len(s) > 1 {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
