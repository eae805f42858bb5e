// Package rules provides the predicates and conditions used to declare suite
// rules. Every helper reads the model through field keys (see fieldpath), so
// the same predicate works on a root model and on a nested sub-model.
package rules

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/fieldpath"
)

// Predicate reports whether the model passes a check.
type Predicate = func(formguard.Model) bool

// Op defines simple comparison operators for If(...) and Compare(...).
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Cond is a composable condition used to guard rules.
type Cond struct {
	path string
	op   Op
	want any
	all  []Cond // composite AND
	any  []Cond // composite OR
	not  *Cond
	comp compKind
}

type compKind int

const (
	compNone compKind = iota
	compAll
	compAny
)

// If builds a condition that compares the value at path with want. A missing
// value never satisfies a simple condition.
func If(path string, op Op, want any) Cond {
	return Cond{path: path, op: op, want: want}
}

// IfAll builds a condition that requires all conditions to hold. An empty
// IfAll always holds.
func IfAll(conds ...Cond) Cond { return Cond{all: conds, comp: compAll} }

// IfAny builds a condition that requires any condition to hold. An empty
// IfAny never holds.
func IfAny(conds ...Cond) Cond { return Cond{any: conds, comp: compAny} }

// Not negates c.
func Not(c Cond) Cond { return Cond{not: &c} }

// And combines the receiver with additional conditions using logical AND.
func (c Cond) And(others ...Cond) Cond {
	conds := append([]Cond{c}, others...)
	return IfAll(conds...)
}

// Or combines the receiver with additional conditions using logical OR.
func (c Cond) Or(others ...Cond) Cond {
	conds := append([]Cond{c}, others...)
	return IfAny(conds...)
}

// Holds evaluates the condition against m.
func (c Cond) Holds(m formguard.Model) bool {
	if c.not != nil {
		return !c.not.Holds(m)
	}
	switch c.comp {
	case compAll:
		for _, it := range c.all {
			if !it.Holds(m) {
				return false
			}
		}
		return true
	case compAny:
		for _, it := range c.any {
			if it.Holds(m) {
				return true
			}
		}
		return false
	}
	cur, ok := fieldpath.Get(m, c.path)
	if !ok || cur == nil {
		return false
	}
	return compare(cur, c.op, c.want)
}

// Predicate exposes the condition as a Predicate.
func (c Cond) Predicate() Predicate { return c.Holds }

// ---------- Predicates ----------

// NotBlank passes when the value at path is present, non-nil and, for
// strings, not only whitespace.
func NotBlank(path string) Predicate {
	return func(m formguard.Model) bool {
		v, ok := fieldpath.Get(m, path)
		return ok && !isBlank(v)
	}
}

// Numeric passes when the value at path is a number or a numeric string.
func Numeric(path string) Predicate {
	return func(m formguard.Model) bool {
		v, ok := fieldpath.Get(m, path)
		if !ok {
			return false
		}
		_, num := toFloat(v)
		return num
	}
}

// Compare passes when the value at path satisfies op against want. Missing
// or non-comparable values fail.
func Compare(path string, op Op, want any) Predicate {
	return func(m formguard.Model) bool {
		v, ok := fieldpath.Get(m, path)
		if !ok || v == nil {
			return false
		}
		return compare(v, op, want)
	}
}

// LessThan passes when the numeric value at path is < n.
func LessThan(path string, n float64) Predicate { return Compare(path, Lt, n) }

// GreaterThanOrEquals passes when the numeric value at path is >= n.
func GreaterThanOrEquals(path string, n float64) Predicate { return Compare(path, Ge, n) }

// EqualsField passes when the values at path and other are equal (for
// example a password confirmation).
func EqualsField(path, other string) Predicate {
	return func(m formguard.Model) bool {
		a, _ := fieldpath.Get(m, path)
		b, _ := fieldpath.Get(m, other)
		return compare(a, Eq, b)
	}
}

// Matches passes when the string value at path matches re. Blank values pass
// so that format rules compose with a separate required rule.
func Matches(path string, re *regexp.Regexp) Predicate {
	return func(m formguard.Model) bool {
		v, ok := fieldpath.Get(m, path)
		if !ok || isBlank(v) {
			return true
		}
		s, isStr := v.(string)
		if !isStr {
			s = fmt.Sprint(v)
		}
		return re.MatchString(s)
	}
}

// MinLength passes when the string (or collection) at path has at least n
// elements. Blank strings pass so that it composes with a required rule.
func MinLength(path string, n int) Predicate {
	return func(m formguard.Model) bool {
		v, ok := fieldpath.Get(m, path)
		if !ok || isBlank(v) {
			return true
		}
		if s, isStr := v.(string); isStr {
			return len([]rune(s)) >= n
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return rv.Len() >= n
		}
		return false
	}
}

// AtLeastOne passes when the collection at collectionPath has at least one
// element. A missing or non-collection value passes to avoid noise.
func AtLeastOne(collectionPath string) Predicate {
	return func(m formguard.Model) bool {
		val, ok := fieldpath.Get(m, collectionPath)
		if !ok || val == nil {
			return true
		}
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			return rv.Len() > 0
		default:
			return true
		}
	}
}

// UniqueBy passes when the elements of the collection at collectionPath have
// distinct values at keyPath (relative to each element).
// Prefer a stable, comparable key type (e.g., string). Mixed-type keys may
// stringify to identical values and cause false positives.
func UniqueBy(collectionPath, keyPath string) Predicate {
	return func(m formguard.Model) bool {
		val, ok := fieldpath.Get(m, collectionPath)
		if !ok || val == nil {
			return true
		}
		rv := reflect.ValueOf(val)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return true
		}
		seen := map[string]struct{}{}
		for i := 0; i < rv.Len(); i++ {
			kv, ok := fieldpath.Get(rv.Index(i).Interface(), keyPath)
			if !ok {
				continue
			}
			key := fmt.Sprint(kv)
			if _, dup := seen[key]; dup {
				return false
			}
			seen[key] = struct{}{}
		}
		return true
	}
}

// ---------- Predicate combinators ----------

// Optional passes when the value at path is blank and otherwise defers to
// pred, so a format rule does not duplicate a separate required rule.
func Optional(path string, pred Predicate) Predicate {
	blank := Blank(path)
	return func(m formguard.Model) bool {
		return blank(m) || pred(m)
	}
}

// WhenNumeric applies pred only when the value at path is numeric. Blank and
// non-numeric values pass, leaving them to Required and Numeric rules.
func WhenNumeric(path string, pred Predicate) Predicate {
	numeric := Numeric(path)
	return func(m formguard.Model) bool {
		return !numeric(m) || pred(m)
	}
}

// Blank passes when the value at path is missing, nil or a blank string.
func Blank(path string) Predicate {
	present := NotBlank(path)
	return func(m formguard.Model) bool { return !present(m) }
}

// And passes when every predicate passes. Nil predicates are ignored.
func And(preds ...Predicate) Predicate {
	return func(m formguard.Model) bool {
		for _, p := range preds {
			if p != nil && !p(m) {
				return false
			}
		}
		return true
	}
}

// Or passes when any predicate passes.
func Or(preds ...Predicate) Predicate {
	return func(m formguard.Model) bool {
		for _, p := range preds {
			if p != nil && p(m) {
				return true
			}
		}
		return false
	}
}

// ------- helpers -------

func isBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	default:
		return false
	}
}

func compare(cur any, op Op, want any) bool {
	a, aNum := toFloat(cur)
	b, bNum := toFloat(want)
	switch op {
	case Eq:
		if aNum && bNum {
			return a == b
		}
		return reflect.DeepEqual(cur, want)
	case Ne:
		if aNum && bNum {
			return a != b
		}
		return !reflect.DeepEqual(cur, want)
	case Lt, Le, Gt, Ge:
		if !aNum || !bNum {
			return false
		}
		switch op {
		case Lt:
			return a < b
		case Le:
			return a <= b
		case Gt:
			return a > b
		default:
			return a >= b
		}
	default:
		return false
	}
}

// floater matches json.Number from encoding/json and go-json.
type floater interface{ Float64() (float64, error) }

// decimalRe accepts plain decimal notation only, so strings like "NaN",
// "Inf" or "0x10" are not numeric.
var decimalRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// toFloat converts numbers, json.Number and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		t := strings.TrimSpace(n)
		if !decimalRe.MatchString(t) {
			return 0, false
		}
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil && !math.IsInf(f, 0)
	case floater:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
