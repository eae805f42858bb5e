package formguard_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/formguard"
)

func sampleIssues() formguard.Issues {
	return formguard.Issues{
		{Key: "salary", Code: formguard.CodeRequired, Message: "Salary is required"},
		{Key: "salary", Code: formguard.CodeBusinessRule, Message: "Salary looks high", Severity: formguard.SeverityWarn},
		{Key: "addresses.homeAddress.street", Code: formguard.CodeRequired, Message: "Street is required"},
		{Key: "salary", Code: formguard.CodeTooSmall, Message: "Elderly must at least have 30.000 in salary."},
		{Key: "age", Code: formguard.CodeRequired, Message: "Age is required"},
	}
}

// TestErrorModel_ResultGroupsByKey checks that messages are grouped per key
// in declaration order and warnings are kept apart.
func TestErrorModel_ResultGroupsByKey(t *testing.T) {
	res := formguard.NewResult(sampleIssues())
	assert.Equal(t, []string{"Salary is required", "Elderly must at least have 30.000 in salary."}, res.ErrorsOf("salary"))
	assert.Equal(t, []string{"Salary looks high"}, res.WarningsOf("salary"))
	assert.Equal(t, "Salary is required", res.Primary("salary"))
	assert.Equal(t, "", res.Primary("firstName"))
	assert.False(t, res.Valid("salary"))
	assert.True(t, res.Valid("firstName"))
	assert.True(t, res.HasErrors())
}

func TestErrorModel_WarningsOnlyIsValid(t *testing.T) {
	res := formguard.NewResult(formguard.Issues{
		{Key: "zipcode", Message: "Zip code looks unusual", Severity: formguard.SeverityWarn},
	})
	assert.False(t, res.HasErrors())
	assert.True(t, res.Valid("zipcode"))
	assert.NoError(t, res.Err())
}

// TestErrorModel_AsIssues exercises both AsIssues and errors.As through a
// wrapped Result.Err.
func TestErrorModel_AsIssues(t *testing.T) {
	res := formguard.NewResult(sampleIssues())
	err := fmt.Errorf("submit contact: %w", res.Err())

	var iss formguard.Issues
	require.True(t, errors.As(err, &iss))
	assert.Len(t, iss, 4, "warnings are not part of the error")

	iss2, ok := formguard.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, iss, iss2)

	_, ok = formguard.AsIssues(errors.New("plain"))
	assert.False(t, ok)
	_, ok = formguard.AsIssues(nil)
	assert.False(t, ok)
}

func TestErrorModel_ErrorSummary(t *testing.T) {
	got := sampleIssues().Error()
	assert.Equal(t, "salary: Salary is required; salary: Salary looks high; addresses.homeAddress.street: Street is required; ... (total 5)", got)
	assert.Equal(t, "", formguard.Issues{}.Error())
}

func TestErrorModel_Filter(t *testing.T) {
	warns := sampleIssues().Filter(formguard.SeverityWarn)
	require.Len(t, warns, 1)
	assert.Equal(t, "warn", warns[0].Severity.String())
	assert.Equal(t, "error", formguard.SeverityError.String())
}
