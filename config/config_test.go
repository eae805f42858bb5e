package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/formguard/config"
)

const sample = `
defaultDebounce: 10ms
debounce:
  firstName: 200ms
related:
  age: [salary]
  password: [passwordConfirm]
fields: [lastName]
`

func TestParse(t *testing.T) {
	c, err := config.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, 200*time.Millisecond, c.DebounceFor("firstName"))
	assert.Equal(t, 10*time.Millisecond, c.DebounceFor("lastName"))
	assert.Equal(t, []string{"salary"}, c.Related.Dependents("age"))
	assert.Nil(t, c.Related.Dependents("salary"))
	assert.Equal(t, []string{"age", "password"}, c.Related.Sources())
	assert.Equal(t, []string{"age", "firstName", "lastName", "password", "passwordConfirm", "salary"}, c.Keys())
}

func TestParse_Empty(t *testing.T) {
	c, err := config.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, c.DebounceFor("anything"))
	assert.Empty(t, c.Keys())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := config.Parse(strings.NewReader("relatedFields: {}\n"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	c := config.Config{
		Related:         config.Graph{"a": {"a", ""}},
		Debounce:        map[string]time.Duration{"b": -time.Second},
		DefaultDebounce: -1,
	}
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	msg := err.Error()
	assert.Contains(t, msg, "depends on itself")
	assert.Contains(t, msg, "empty dependent key")
	assert.Contains(t, msg, "debounce.b")
	assert.Contains(t, msg, "defaultDebounce")
}

func TestDependents_ReturnsCopy(t *testing.T) {
	g := config.Graph{"age": {"salary"}}
	deps := g.Dependents("age")
	deps[0] = "changed"
	assert.Equal(t, []string{"salary"}, g["age"])
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "validation.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o644))

	c, err := config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"passwordConfirm"}, c.Related.Dependents("password"))

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
