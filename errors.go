package formguard

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes produced by the built-in predicates and the suite runner.
const (
	CodeRequired     = "required"
	CodeInvalidType  = "invalid_type"
	CodeTooSmall     = "too_small"
	CodeTooBig       = "too_big"
	CodeTooShort     = "too_short"
	CodePattern      = "pattern"
	CodeUniqueness   = "uniqueness"
	CodeMismatch     = "mismatch"
	CodeBusinessRule = "business_rule"
	// Temporary/unavailable errors from asynchronous suites (remote lookups).
	CodeDependencyUnavailable = "dependency_unavailable"
)

// Severity expresses whether a failing rule blocks the field or only advises.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarn
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	default:
		return "error"
	}
}

// Issue represents a single failing rule.
type Issue struct {
	Key      string // Field key (for example: addresses.homeAddress.street).
	Code     string
	Message  string
	Severity Severity
	// Rule optionally records the rule name that produced this issue.
	Rule string
}

// Issues is a collection of failing rules that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := min(n, maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. salary: Salary is required
		fmt.Fprintf(b, "%s: %s", it.Key, it.Message)
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Filter returns the issues matching severity, preserving order.
func (iss Issues) Filter(sev Severity) Issues {
	var out Issues
	for _, it := range iss {
		if it.Severity == sev {
			out = append(out, it)
		}
	}
	return out
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}
