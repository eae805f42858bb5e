package suite

import (
	"github.com/reoring/formguard"
	"github.com/reoring/formguard/fieldpath"
	"github.com/reoring/formguard/rules"
)

// Rule is one named check attached to a field key. A rule whose Guard
// returns false is skipped: it neither passes nor fails.
type Rule struct {
	Key       string
	Name      string
	Code      string
	Message   string
	Severity  formguard.Severity
	Predicate rules.Predicate
	Guard     rules.Predicate
}

// Part contributes rules to a suite. Rule, Suite and the values returned by
// OmitWhen, When and Group are Parts.
type Part interface {
	expand() []Rule
}

func (r Rule) expand() []Rule { return []Rule{r} }

type parts []Rule

func (p parts) expand() []Rule { return p }

// Test declares a blocking rule: key fails with msg when pred returns false.
func Test(key, msg string, pred rules.Predicate) Rule {
	return Rule{Key: key, Code: formguard.CodeBusinessRule, Message: msg, Predicate: pred}
}

// Warn declares an advisory rule. Its failures are reported as warnings and
// never make the field invalid.
func Warn(key, msg string, pred rules.Predicate) Rule {
	return Rule{Key: key, Code: formguard.CodeBusinessRule, Message: msg, Severity: formguard.SeverityWarn, Predicate: pred}
}

// Required declares that key must not be blank. An empty msg falls back to
// the translated "required" message.
func Required(key, msg string) Rule {
	return Rule{Key: key, Code: formguard.CodeRequired, Message: msg, Predicate: rules.NotBlank(key)}
}

// WithCode returns a copy of r using code.
func (r Rule) WithCode(code string) Rule { r.Code = code; return r }

// WithName returns a copy of r using name; the name is copied to Issue.Rule.
func (r Rule) WithName(name string) Rule { r.Name = name; return r }

// AsWarning returns an advisory copy of r.
func (r Rule) AsWarning() Rule { r.Severity = formguard.SeverityWarn; return r }

// applies reports whether r takes part in a run for field against m.
func (r Rule) applies(m formguard.Model, field string) bool {
	if field != "" && r.Key != field {
		return false
	}
	return r.Guard == nil || r.Guard(m)
}

// OmitWhen excludes the rules of ps whenever cond holds for the model.
func OmitWhen(cond rules.Predicate, ps ...Part) Part {
	return guardAll(func(m formguard.Model) bool { return !cond(m) }, ps)
}

// When includes the rules of ps only while cond holds for the model.
func When(cond rules.Predicate, ps ...Part) Part {
	return guardAll(cond, ps)
}

func guardAll(g rules.Predicate, ps []Part) Part {
	var out parts
	for _, r := range flatten(ps) {
		inner := r.Guard
		r.Guard = func(m formguard.Model) bool {
			if !g(m) {
				return false
			}
			return inner == nil || inner(m)
		}
		out = append(out, r)
	}
	return out
}

// Group nests ps under prefix. Keys become prefix.key and predicates and
// guards of the nested rules see the sub-model stored at prefix (nil when
// absent), so a suite written for an address validates any address slot.
func Group(prefix string, ps ...Part) Part {
	var out parts
	for _, r := range flatten(ps) {
		pred, guard := r.Predicate, r.Guard
		r.Key = fieldpath.Join(prefix, r.Key)
		r.Predicate = func(m formguard.Model) bool { return pred(subModel(m, prefix)) }
		if guard != nil {
			r.Guard = func(m formguard.Model) bool { return guard(subModel(m, prefix)) }
		}
		out = append(out, r)
	}
	return out
}

func subModel(m formguard.Model, prefix string) formguard.Model {
	v, ok := fieldpath.Get(m, prefix)
	if !ok {
		return nil
	}
	sub, _ := v.(map[string]any)
	return sub
}

func flatten(ps []Part) []Rule {
	var out []Rule
	for _, p := range ps {
		if p == nil {
			continue
		}
		out = append(out, p.expand()...)
	}
	return out
}
