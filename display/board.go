package display

import (
	"sort"
	"sync"

	"github.com/reoring/formguard/form"
)

// View is the rendered state of one field.
type View struct {
	Key      string   `json:"key"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Invalid  bool     `json:"invalid"`
	Warned   bool     `json:"warned"`
	Pending  bool     `json:"pending"`
}

// Primary returns the first displayed error, or "".
func (v View) Primary() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return v.Errors[0]
}

// Board keeps one Guard per field key.
type Board struct {
	mu     sync.Mutex
	guards map[string]*Guard
	views  map[string]View
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{guards: map[string]*Guard{}, views: map[string]View{}}
}

// Attach feeds every validity change of f into the board and returns a
// function that detaches it. Fields already known to f are rendered
// immediately.
func Attach(f *form.Form) (*Board, func()) {
	b := NewBoard()
	for key, v := range f.Snapshot() {
		b.Update(key, v)
	}
	stop := f.Watch(func(key string, v form.Validity) { b.Update(key, v) })
	return b, stop
}

// Update renders v through the key's guard and stores the resulting view.
func (b *Board) Update(key string, v form.Validity) View {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.guards[key]
	if !ok {
		g = &Guard{}
		b.guards[key] = g
	}
	view := View{
		Key:      key,
		Errors:   g.Errors(v),
		Warnings: g.Warnings(v),
		Invalid:  g.Invalid(v),
		Warned:   g.Warned(v),
		Pending:  v.Pending,
	}
	b.views[key] = view
	return view
}

// View returns the last rendered view of key.
func (b *Board) View(key string) (View, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[key]
	return v, ok
}

// Views returns every rendered view sorted by key.
func (b *Board) Views() []View {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]View, 0, len(b.views))
	for _, v := range b.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
