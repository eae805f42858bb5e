// Package suite composes rules into immutable validation suites.
//
// A suite is built once from an ordered list of parts and never changes
// afterwards; variants are new suites produced by Extend. Running a suite for
// a field executes only the rules declared for that key ("only"), in
// declaration order, so repeated runs on an equal model give equal results.
package suite

import (
	"context"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/i18n"
	"github.com/reoring/formguard/internal/ctxlog"
)

// Runner runs validation for one field and reports through done. done is
// called exactly once unless the runner never completes. Implementations may
// call done synchronously or from another goroutine.
type Runner interface {
	Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error))
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error))

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error)) {
	f(ctx, m, field, done)
}

// Suite is an ordered, immutable set of rules.
type Suite struct {
	name  string
	rules []Rule
}

var _ Runner = (*Suite)(nil)

// New builds a suite from parts in declaration order.
func New(ps ...Part) *Suite {
	return &Suite{rules: flatten(ps)}
}

// Named returns a copy of s carrying name (used in logs and metrics).
func (s *Suite) Named(name string) *Suite {
	return &Suite{name: name, rules: s.rules}
}

// Name returns the suite name, or "" when unnamed.
func (s *Suite) Name() string { return s.name }

// Extend returns a new suite with the rules of s followed by ps. s is not
// modified.
func (s *Suite) Extend(ps ...Part) *Suite {
	rs := make([]Rule, 0, len(s.rules))
	rs = append(rs, s.rules...)
	rs = append(rs, flatten(ps)...)
	return &Suite{name: s.name, rules: rs}
}

func (s *Suite) expand() []Rule {
	if s == nil {
		return nil
	}
	return s.rules
}

// Rules returns a copy of the rules in declaration order.
func (s *Suite) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Keys returns the distinct rule keys in declaration order.
func (s *Suite) Keys() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range s.rules {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r.Key)
	}
	return out
}

// Validate runs the rules for field (every rule when field is "") against m
// and returns the result. A panicking predicate or guard is not recovered.
func (s *Suite) Validate(ctx context.Context, m formguard.Model, field string) formguard.Result {
	var iss formguard.Issues
	ran := 0
	for _, r := range s.rules {
		if !r.applies(m, field) {
			continue
		}
		ran++
		if r.Predicate(m) {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = i18n.T(r.Code, map[string]string{"field": r.Key})
		}
		iss = formguard.AppendIssues(iss, formguard.Issue{
			Key:      r.Key,
			Code:     r.Code,
			Message:  msg,
			Severity: r.Severity,
			Rule:     r.Name,
		})
	}
	ctxlog.FromContext(ctx).Debug("suite ran", "suite", s.name, "field", field, "rules", ran, "issues", len(iss))
	return formguard.NewResult(iss)
}

// Run implements Runner. The built-in suite is synchronous and calls done
// before returning.
func (s *Suite) Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error)) {
	done(s.Validate(ctx, m, field), nil)
}

// Async wraps r so that done is always invoked from a separate goroutine,
// making the completion boundary real even for synchronous suites.
func Async(r Runner) Runner {
	return asyncRunner{inner: r}
}

type asyncRunner struct{ inner Runner }

func (a asyncRunner) Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error)) {
	go a.inner.Run(ctx, m, field, done)
}

// Keys forwards the field keys of the wrapped runner, if it has any.
func (a asyncRunner) Keys() []string {
	if k, ok := a.inner.(interface{ Keys() []string }); ok {
		return k.Keys()
	}
	return nil
}
