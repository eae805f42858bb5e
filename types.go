package formguard

// Model is the form value validated by the engine: a tree of
// map[string]any, []any and scalars. The engine never mutates a Model it was
// handed; updates go through fieldpath.Set which returns a copy.
type Model = map[string]any

// Result is the outcome of one suite run. Keys absent from both Errors and
// Warnings are valid.
type Result struct {
	Errors   map[string][]string
	Warnings map[string][]string
	// Issues lists every failing rule in declaration order.
	Issues Issues
}

// NewResult builds a Result from issues, grouping messages by key while
// keeping declaration order inside each key.
func NewResult(iss Issues) Result {
	r := Result{Errors: map[string][]string{}, Warnings: map[string][]string{}, Issues: iss}
	for _, it := range iss {
		switch it.Severity {
		case SeverityWarn:
			r.Warnings[it.Key] = append(r.Warnings[it.Key], it.Message)
		default:
			r.Errors[it.Key] = append(r.Errors[it.Key], it.Message)
		}
	}
	return r
}

// ErrorsOf returns the ordered error messages for key, or nil when none.
func (r Result) ErrorsOf(key string) []string { return r.Errors[key] }

// WarningsOf returns the ordered warning messages for key, or nil when none.
func (r Result) WarningsOf(key string) []string { return r.Warnings[key] }

// Primary returns the first error message for key, or "".
func (r Result) Primary(key string) string {
	if errs := r.Errors[key]; len(errs) > 0 {
		return errs[0]
	}
	return ""
}

// HasErrors reports whether any key failed.
func (r Result) HasErrors() bool {
	for _, errs := range r.Errors {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}

// Valid reports whether key has no errors. Warnings do not affect validity.
func (r Result) Valid(key string) bool { return len(r.Errors[key]) == 0 }

// Err returns the blocking issues as an error, or nil when the result has no
// errors.
func (r Result) Err() error {
	errs := r.Issues.Filter(SeverityError)
	if len(errs) == 0 {
		return nil
	}
	return errs
}
