package form

import "slices"

// Validity is the control state of one field as seen by the host.
type Validity struct {
	// Errors lists every failing rule message in declaration order.
	Errors []string
	// Primary is Errors[0], or "" when the field has no errors.
	Primary string
	// Warnings holds advisory messages; they never make the field invalid.
	Warnings []string
	// Pending is true from an edit until the matching result is applied.
	Pending  bool
	Touched  bool
	Dirty    bool
	Disabled bool
}

// Valid reports whether the field is settled without errors. Disabled
// fields are always valid.
func (v Validity) Valid() bool {
	if v.Disabled {
		return true
	}
	return !v.Pending && len(v.Errors) == 0
}

func (v Validity) clone() Validity {
	v.Errors = slices.Clone(v.Errors)
	v.Warnings = slices.Clone(v.Warnings)
	return v
}
