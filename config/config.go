// Package config holds the host-supplied validation settings: which fields
// revalidate when another changes, and how long each field is debounced.
// Settings are plain values or YAML:
//
//	defaultDebounce: 0s
//	debounce:
//	  firstName: 200ms
//	related:
//	  age: [salary]
//	  password: [passwordConfirm]
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation error returned from
// Validate, Parse and Load.
var ErrInvalidConfig = errors.New("config: invalid validation config")

// Graph maps a source field key to the keys revalidated when it changes.
// It is read-only once handed to the engine.
type Graph map[string][]string

// Dependents returns a copy of the keys that depend on key.
func (g Graph) Dependents(key string) []string {
	deps := g[key]
	if len(deps) == 0 {
		return nil
	}
	return append([]string(nil), deps...)
}

// Sources returns the source keys in ascending order.
func (g Graph) Sources() []string {
	out := make([]string, 0, len(g))
	for k := range g {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Config is the validation configuration of one form.
type Config struct {
	// Related drives the related-field fan-out.
	Related Graph `yaml:"related"`
	// Debounce overrides DefaultDebounce per field key.
	Debounce map[string]time.Duration `yaml:"debounce"`
	// DefaultDebounce applies to fields without an override. Zero still
	// defers the run to a timer event.
	DefaultDebounce time.Duration `yaml:"defaultDebounce"`
	// Fields lists keys known up front (touched by SubmitAttempt and
	// validated by Load) in addition to the keys of the suite.
	Fields []string `yaml:"fields"`
}

// DebounceFor returns the debounce duration for key.
func (c Config) DebounceFor(key string) time.Duration {
	if d, ok := c.Debounce[key]; ok {
		return d
	}
	return c.DefaultDebounce
}

// Keys returns every key mentioned by the config in ascending order.
func (c Config) Keys() []string {
	seen := map[string]struct{}{}
	add := func(k string) {
		if k != "" {
			seen[k] = struct{}{}
		}
	}
	for _, k := range c.Fields {
		add(k)
	}
	for k, deps := range c.Related {
		add(k)
		for _, d := range deps {
			add(d)
		}
	}
	for k := range c.Debounce {
		add(k)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate reports empty keys, self-dependencies and negative durations.
func (c Config) Validate() error {
	var errs []error
	if c.DefaultDebounce < 0 {
		errs = append(errs, fmt.Errorf("%w: negative defaultDebounce %s", ErrInvalidConfig, c.DefaultDebounce))
	}
	for _, k := range c.Related.Sources() {
		if k == "" {
			errs = append(errs, fmt.Errorf("%w: related: empty source key", ErrInvalidConfig))
			continue
		}
		for _, d := range c.Related[k] {
			switch d {
			case "":
				errs = append(errs, fmt.Errorf("%w: related.%s: empty dependent key", ErrInvalidConfig, k))
			case k:
				errs = append(errs, fmt.Errorf("%w: related.%s: field depends on itself", ErrInvalidConfig, k))
			}
		}
	}
	keys := make([]string, 0, len(c.Debounce))
	for k := range c.Debounce {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if c.Debounce[k] < 0 {
			errs = append(errs, fmt.Errorf("%w: debounce.%s: negative duration %s", ErrInvalidConfig, k, c.Debounce[k]))
		}
	}
	return errors.Join(errs...)
}

// Parse decodes a YAML config from r. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses the YAML config at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(bytes.NewReader(b))
}
