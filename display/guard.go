// Package display decides what a host shows for a field. While a field is
// pending it keeps showing the last settled messages so the UI does not
// flicker between "errors", "nothing" and "errors" again.
package display

import (
	"slices"

	"github.com/reoring/formguard/form"
)

// Guard holds the last settled error and warning lists of one field.
// The zero value is ready to use. A Guard is not safe for concurrent use.
type Guard struct {
	errors   []string
	warnings []string
}

// Errors returns the errors to display for v. While v is pending the
// previously settled list is returned unchanged.
func (g *Guard) Errors(v form.Validity) []string {
	if !v.Pending {
		g.errors = slices.Clone(v.Errors)
	}
	return slices.Clone(g.errors)
}

// Warnings is the warning counterpart of Errors. The two caches are
// independent.
func (g *Guard) Warnings(v form.Validity) []string {
	if !v.Pending {
		g.warnings = slices.Clone(v.Warnings)
	}
	return slices.Clone(g.warnings)
}

// Invalid reports whether the error state should be rendered. It looks at
// the displayed errors, so a pending field keeps its previous state.
func (g *Guard) Invalid(v form.Validity) bool {
	return shown(v, g.Errors(v))
}

// Warned is Invalid for warnings.
func (g *Guard) Warned(v form.Validity) bool {
	return shown(v, g.Warnings(v))
}

func shown(v form.Validity, msgs []string) bool {
	return !v.Disabled && len(msgs) > 0 && (v.Touched || v.Dirty)
}
