package suite

import (
	"context"
	"fmt"

	"github.com/reoring/formguard"
)

// Check is a rule whose predicate performs I/O, for example a uniqueness
// lookup against a remote service. A non-nil error means the check could not
// decide; it is not a validation failure.
type Check struct {
	Key      string
	Message  string
	Severity formguard.Severity
	Fn       func(ctx context.Context, m formguard.Model) (bool, error)
}

// WithChecks returns a Runner that evaluates base and then the checks for the
// field, on a separate goroutine. Check failures are appended after the
// issues of base. The run stops with ctx.Err() once ctx is cancelled, which
// the engine does when a newer edit supersedes the run.
func WithChecks(base *Suite, checks ...Check) Runner {
	return &checkedRunner{base: base, checks: checks}
}

type checkedRunner struct {
	base   *Suite
	checks []Check
}

func (c *checkedRunner) Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error)) {
	go func() {
		res, err := c.validate(ctx, m, field)
		done(res, err)
	}()
}

func (c *checkedRunner) validate(ctx context.Context, m formguard.Model, field string) (formguard.Result, error) {
	res := c.base.Validate(ctx, m, field)
	iss := res.Issues
	for _, ch := range c.checks {
		if field != "" && ch.Key != field {
			continue
		}
		if err := ctx.Err(); err != nil {
			return formguard.Result{}, err
		}
		ok, err := ch.Fn(ctx, m)
		if err != nil {
			return formguard.Result{}, fmt.Errorf("suite: check %q: %w", ch.Key, err)
		}
		if ok {
			continue
		}
		iss = formguard.AppendIssues(iss, formguard.Issue{
			Key:      ch.Key,
			Code:     formguard.CodeBusinessRule,
			Message:  ch.Message,
			Severity: ch.Severity,
		})
	}
	return formguard.NewResult(iss), nil
}

// Keys lists the keys of the base suite followed by check keys it lacks.
func (c *checkedRunner) Keys() []string {
	keys := c.base.Keys()
	seen := map[string]struct{}{}
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for _, ch := range c.checks {
		if _, ok := seen[ch.Key]; !ok {
			seen[ch.Key] = struct{}{}
			keys = append(keys, ch.Key)
		}
	}
	return keys
}
