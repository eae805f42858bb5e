// Package source decodes form models and edit logs from JSON.
//
// Decoding walks the token stream of a go-json decoder instead of
// unmarshalling into interface{}, so duplicate object keys can be rejected
// with the field key where they occur and numbers keep their integer form.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	j "github.com/goccy/go-json"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/fieldpath"
)

var (
	// ErrDuplicateKey is returned when an object repeats a key.
	ErrDuplicateKey = errors.New("source: duplicate key")
	// ErrTooDeep is returned when nesting exceeds the configured depth.
	ErrTooDeep = errors.New("source: nesting too deep")
	// ErrNotObject is returned when a model is not a JSON object.
	ErrNotObject = errors.New("source: model must be a JSON object")
)

// DefaultMaxDepth bounds nesting when no WithMaxDepth option is given.
const DefaultMaxDepth = 64

// Option tunes decoding.
type Option func(*options)

type options struct {
	allowDuplicates bool
	maxDepth        int
}

// AllowDuplicateKeys keeps the last value of a repeated key instead of failing.
func AllowDuplicateKeys() Option { return func(o *options) { o.allowDuplicates = true } }

// WithMaxDepth overrides DefaultMaxDepth. Zero disables the limit.
func WithMaxDepth(n int) Option { return func(o *options) { o.maxDepth = n } }

func buildOptions(opts []Option) options {
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ReadModel decodes a single JSON object into a model.
func ReadModel(r io.Reader, opts ...Option) (formguard.Model, error) {
	v, err := decodeValue(r, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrNotObject, v)
	}
	return m, nil
}

// ReadModelBytes is ReadModel for an in-memory document.
func ReadModelBytes(b []byte, opts ...Option) (formguard.Model, error) {
	return ReadModel(bytes.NewReader(b), opts...)
}

// ReadModelFile reads the model stored at path.
func ReadModelFile(path string, opts ...Option) (formguard.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	m, err := ReadModel(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// DecodeValue decodes any JSON value with the same number and duplicate key
// handling as ReadModel.
func DecodeValue(b []byte, opts ...Option) (any, error) {
	return decodeValue(bytes.NewReader(b), buildOptions(opts))
}

func decodeValue(r io.Reader, o options) (any, error) {
	dec := j.NewDecoder(r)
	dec.UseNumber()
	d := &decoder{dec: dec, opt: o}
	v, err := d.value("", 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("source: empty input: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("source: trailing data after value")
	}
	return v, nil
}

type decoder struct {
	dec *j.Decoder
	opt options
}

func (d *decoder) value(path string, depth int) (any, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case j.Delim:
		if d.opt.maxDepth > 0 && depth >= d.opt.maxDepth {
			return nil, fmt.Errorf("%w at %q", ErrTooDeep, path)
		}
		switch v {
		case '{':
			return d.object(path, depth+1)
		case '[':
			return d.array(path, depth+1)
		}
		return nil, fmt.Errorf("source: unexpected %q at %q", rune(v), path)
	case j.Number:
		return number(v), nil
	case float64:
		return v, nil
	case string, bool, nil:
		return v, nil
	}
	return nil, fmt.Errorf("source: unexpected token %T at %q", tok, path)
}

func (d *decoder) object(path string, depth int) (map[string]any, error) {
	out := map[string]any{}
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("source: expected key at %q, got %T", path, tok)
		}
		child := fieldpath.Join(path, key)
		if _, dup := out[key]; dup && !d.opt.allowDuplicates {
			return nil, fmt.Errorf("%w %q", ErrDuplicateKey, child)
		}
		v, err := d.value(child, depth)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *decoder) array(path string, depth int) ([]any, error) {
	out := []any{}
	for i := 0; d.dec.More(); i++ {
		v, err := d.value(fmt.Sprintf("%s[%d]", path, i), depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// number keeps integers as int64 and everything else as float64.
func number(n j.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// WriteJSON encodes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := j.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
