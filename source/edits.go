package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrInvalidEdit is returned for an edit log line that cannot be replayed.
var ErrInvalidEdit = errors.New("source: invalid edit")

// Action is what an edit log line asks the form to do.
type Action string

const (
	ActionEdit    Action = "edit"
	ActionSubmit  Action = "submit"
	ActionTouch   Action = "touch"
	ActionDisable Action = "disable"
	ActionEnable  Action = "enable"
)

// Edit is one line of an edit log:
//
//	{"key": "age", "value": 65, "after": "150ms"}
//	{"action": "submit"}
//
// After is the pause before the line is applied. A bare number is read as
// milliseconds.
type Edit struct {
	Line   int
	Action Action
	Key    string
	Value  any
	After  time.Duration
}

// ReadEdits decodes a JSON-lines edit log. Blank lines and lines starting
// with '#' are skipped.
func ReadEdits(r io.Reader, opts ...Option) ([]Edit, error) {
	o := buildOptions(opts)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []Edit
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := decodeValue(strings.NewReader(text), o)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		e, err := editFrom(v)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		e.Line = line
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read edits: %w", err)
	}
	return out, nil
}

// ReadEditsFile reads the edit log stored at path.
func ReadEditsFile(path string, opts ...Option) ([]Edit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edits: %w", err)
	}
	defer f.Close()
	edits, err := ReadEdits(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return edits, nil
}

func editFrom(v any) (Edit, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Edit{}, fmt.Errorf("%w: want an object, got %T", ErrInvalidEdit, v)
	}
	e := Edit{Action: ActionEdit}
	_, hasValue := obj["value"]
	for k, raw := range obj {
		switch k {
		case "key":
			s, ok := raw.(string)
			if !ok {
				return Edit{}, fmt.Errorf("%w: key must be a string", ErrInvalidEdit)
			}
			e.Key = s
		case "value":
			e.Value = raw
		case "action":
			s, ok := raw.(string)
			if !ok {
				return Edit{}, fmt.Errorf("%w: action must be a string", ErrInvalidEdit)
			}
			e.Action = Action(s)
		case "after":
			d, err := duration(raw)
			if err != nil {
				return Edit{}, err
			}
			e.After = d
		default:
			return Edit{}, fmt.Errorf("%w: unknown field %q", ErrInvalidEdit, k)
		}
	}
	switch e.Action {
	case ActionEdit:
		if e.Key == "" || !hasValue {
			return Edit{}, fmt.Errorf("%w: edit needs key and value", ErrInvalidEdit)
		}
	case ActionTouch, ActionDisable, ActionEnable:
		if e.Key == "" {
			return Edit{}, fmt.Errorf("%w: %s needs a key", ErrInvalidEdit, e.Action)
		}
	case ActionSubmit:
	default:
		return Edit{}, fmt.Errorf("%w: unknown action %q", ErrInvalidEdit, e.Action)
	}
	return e, nil
}

func duration(raw any) (time.Duration, error) {
	var d time.Duration
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: after: %v", ErrInvalidEdit, err)
		}
		d = parsed
	case int64:
		d = time.Duration(v) * time.Millisecond
	case float64:
		d = time.Duration(v * float64(time.Millisecond))
	default:
		return 0, fmt.Errorf("%w: after must be a duration", ErrInvalidEdit)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: after must not be negative", ErrInvalidEdit)
	}
	return d, nil
}
