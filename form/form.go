// Package form runs a validation suite against an evolving form model, one
// field at a time.
//
// Every edit stores a snapshot of the whole model for the edited key and
// (re)arms that key's debounce timer. When the timer fires the suite runs for
// the key; the result is applied only if no newer edit to the same key
// arrived in the meantime. After a result is applied, the keys that depend
// on the edited one (config.Graph) are revalidated with the current model and
// marked touched and dirty, without changing their values.
//
// A Form serialises all state transitions behind one mutex. Timers fire on
// their own goroutines and suites may complete on any goroutine; both
// re-enter through the mutex. Notifications are delivered in the order the
// transitions happened, outside the mutex, so subscribers may call back into
// the Form.
package form

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/config"
	"github.com/reoring/formguard/fieldpath"
	"github.com/reoring/formguard/internal/ctxlog"
	"github.com/reoring/formguard/internal/debounce"
	"github.com/reoring/formguard/metrics"
	"github.com/reoring/formguard/suite"
)

// runKind tells whether a settled run may fan out to dependents.
type runKind int

const (
	runEdit  runKind = iota // user edit; fans out
	runQuiet                // load or fan-out; never cascades
)

type event struct {
	key string
	v   Validity
}

type fieldState struct {
	Validity
	kind runKind
	// validated is set once a result has been applied.
	validated bool
}

// Form is the validation orchestrator of one form instance.
type Form struct {
	mu sync.Mutex

	runner  suite.Runner
	cfg     config.Config
	clk     clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
	onError func(key string, err error)
	ctx     context.Context
	initial []string

	cache  *debounce.Cache
	fields map[string]*fieldState
	order  []string
	model  formguard.Model

	// last value of a source key that triggered fan-out
	fanned map[string]any

	subs     map[string]map[int]func(Validity)
	watchers map[int]func(string, Validity)
	nextSub  int
	queue    []event
	draining bool
	// open while events are queued or being delivered
	drained chan struct{}

	idle   chan struct{}
	closed bool
}

// keyed is implemented by suites that can list their field keys.
type keyed interface{ Keys() []string }

// New creates a Form validating with runner under cfg. Keys declared by the
// runner (when it has a Keys method, as *suite.Suite does), by cfg and by
// WithFields are registered immediately. A runner without Keys, such as a
// suite.RunnerFunc, needs WithFields so that Load and SubmitAttempt reach
// its fields.
func New(runner suite.Runner, cfg config.Config, opts ...Option) *Form {
	f := &Form{
		runner:   runner,
		cfg:      cfg,
		log:      slog.New(slog.DiscardHandler),
		ctx:      context.Background(),
		fields:   map[string]*fieldState{},
		fanned:   map[string]any{},
		subs:     map[string]map[int]func(Validity){},
		watchers: map[int]func(string, Validity){},
		idle:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
	close(f.idle)
	close(f.drained)
	for _, o := range opts {
		o(f)
	}
	if f.clk == nil {
		f.clk = clock.New()
	}
	f.cache = debounce.New(f.clk)

	var keys []string
	if k, ok := runner.(keyed); ok {
		keys = append(keys, k.Keys()...)
	}
	keys = append(keys, cfg.Keys()...)
	keys = append(keys, f.initial...)
	for _, k := range keys {
		f.fieldLocked(k)
	}
	if len(f.order) == 0 {
		f.log.Warn("form has no registered fields; pass WithFields for runners without Keys")
	}
	return f
}

// fieldLocked returns key's state, registering it on first use.
func (f *Form) fieldLocked(key string) *fieldState {
	fs, ok := f.fields[key]
	if !ok {
		fs = &fieldState{}
		f.fields[key] = fs
		f.order = append(f.order, key)
	}
	return fs
}

// Register adds keys to the form without scheduling validation.
func (f *Form) Register(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			f.fieldLocked(k)
		}
	}
}

// Keys returns the registered keys in registration order.
func (f *Form) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order)
}

// Edit reports that key changed and m is the whole model after the change.
// The field becomes dirty and pending; its validation runs after its
// debounce period unless another edit to key arrives first.
func (f *Form) Edit(m formguard.Model, key string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.editLocked(m, key)
	f.mu.Unlock()
	f.flush()
}

func (f *Form) editLocked(m formguard.Model, key string) {
	snap := fieldpath.CloneModel(m)
	f.model = snap
	fs := f.fieldLocked(key)
	fs.Dirty = true
	f.scheduleLocked(key, snap, runEdit)
}

// SetValue stores value at key in the current model and reports the edit.
// It returns an error wrapping fieldpath.ErrPathConflict when key does not
// fit the model shape. Concurrent calls on different keys all land in the
// model.
func (f *Form) SetValue(key string, value any) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	next, err := fieldpath.Set(f.model, key, value)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.editLocked(next, key)
	f.mu.Unlock()
	f.flush()
	return nil
}

// Load replaces the model and schedules a validation run for every
// registered key without marking any of them dirty. Results are computed
// but stay hidden until the fields are touched or dirty.
func (f *Form) Load(m formguard.Model) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	snap := fieldpath.CloneModel(m)
	if snap == nil {
		snap = formguard.Model{}
	}
	f.model = snap
	for _, k := range f.order {
		f.scheduleLocked(k, snap, runQuiet)
	}
	f.mu.Unlock()
	f.flush()
}

// scheduleLocked (re)arms key's debounce timer for snap.
func (f *Form) scheduleLocked(key string, snap formguard.Model, kind runKind) {
	fs := f.fieldLocked(key)
	// a pending user edit keeps its right to fan out
	if kind == runEdit || !fs.Pending {
		fs.kind = kind
	}
	fs.Pending = true
	d := f.cfg.DebounceFor(key)
	run := f.cache.Schedule(key, snap, d, func(run uint64) { f.fire(key, run) })
	f.metrics.Scheduled()
	f.log.Debug("validation scheduled", "field", key, "run", run, "debounce", d)
	f.enqueueLocked(key)
	f.updatePendingLocked()
}

// fire runs when key's debounce timer expires.
func (f *Form) fire(key string, run uint64) {
	f.mu.Lock()
	snap, ok := f.cache.Snapshot(key, run)
	if !ok || f.closed {
		f.mu.Unlock()
		f.log.Debug("stale timer ignored", "field", key, "run", run)
		return
	}
	runner := f.runner
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(f.ctx, f.log))
	f.cache.Start(key, run, cancel)
	f.mu.Unlock()

	var once sync.Once
	runner.Run(ctx, fieldpath.CloneModel(snap), key, func(res formguard.Result, err error) {
		once.Do(func() { f.complete(key, run, res, err) })
	})
}

// complete applies a finished run when it is still the newest one for key.
func (f *Form) complete(key string, run uint64, res formguard.Result, err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if err != nil {
		if !f.cache.Fail(key, run) {
			f.mu.Unlock()
			f.metrics.Discarded()
			f.log.Debug("stale failure discarded", "field", key, "run", run, "error", err)
			return
		}
		h := f.onError
		f.mu.Unlock()
		f.metrics.Failed()
		f.log.Error("validation failed", "field", key, "run", run, "error", err)
		if h != nil {
			h(key, err)
		}
		return
	}
	waited, ok := f.cache.Settle(key, run)
	if !ok {
		f.mu.Unlock()
		f.metrics.Discarded()
		f.log.Debug("stale result discarded", "field", key, "run", run)
		return
	}
	fs := f.fieldLocked(key)
	errs := slices.Clone(res.Errors[key])
	fs.Errors = errs
	fs.Primary = ""
	if len(errs) > 0 {
		fs.Primary = errs[0]
	}
	fs.Warnings = slices.Clone(res.Warnings[key])
	fs.Pending = false
	fs.validated = true
	f.metrics.Settled(waited)
	f.log.Debug("validation settled", "field", key, "run", run, "errors", len(errs), "warnings", len(fs.Warnings))
	f.enqueueLocked(key)
	if fs.kind == runEdit {
		f.fanOutLocked(key)
	}
	f.updatePendingLocked()
	f.mu.Unlock()
	f.flush()
}

// fanOutLocked revalidates the dependents of key when key's value differs
// from the value seen at its previous fan-out.
func (f *Form) fanOutLocked(key string) {
	deps := f.cfg.Related.Dependents(key)
	if len(deps) == 0 {
		return
	}
	cur, _ := fieldpath.Get(f.model, key)
	if prev, seen := f.fanned[key]; seen && reflect.DeepEqual(prev, cur) {
		return
	}
	f.fanned[key] = fieldpath.Clone(cur)
	for _, d := range deps {
		fd := f.fieldLocked(d)
		fd.Touched = true
		fd.Dirty = true
		f.scheduleLocked(d, f.model, runQuiet)
	}
	f.metrics.FanOut(len(deps))
	f.log.Debug("related fields revalidated", "field", key, "dependents", deps)
}

// SubmitAttempt marks every registered field touched so that computed errors
// become visible. It schedules no validation.
func (f *Form) SubmitAttempt() {
	f.mu.Lock()
	for _, k := range f.order {
		fs := f.fields[k]
		if fs.Touched {
			continue
		}
		fs.Touched = true
		f.enqueueLocked(k)
	}
	f.mu.Unlock()
	f.flush()
}

// Touch marks key touched (for example on blur).
func (f *Form) Touch(key string) {
	f.mu.Lock()
	fs := f.fieldLocked(key)
	if !fs.Touched {
		fs.Touched = true
		f.enqueueLocked(key)
	}
	f.mu.Unlock()
	f.flush()
}

// SetDisabled enables or disables key. Disabled fields are never shown as
// invalid and do not count against Valid.
func (f *Form) SetDisabled(key string, disabled bool) {
	f.mu.Lock()
	fs := f.fieldLocked(key)
	if fs.Disabled != disabled {
		fs.Disabled = disabled
		f.enqueueLocked(key)
	}
	f.mu.Unlock()
	f.flush()
}

// SetSuite swaps the runner. Settled fields keep their results until their
// next edit or fan-out; runs not yet started use the new runner.
func (f *Form) SetSuite(r suite.Runner) {
	f.mu.Lock()
	f.runner = r
	f.mu.Unlock()
}

// ValidityOf returns key's current validity. Unknown keys are idle and valid.
func (f *Form) ValidityOf(key string) Validity {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.fields[key]
	if !ok {
		return Validity{}
	}
	return fs.Validity.clone()
}

// Snapshot returns the validity of every registered key.
func (f *Form) Snapshot() map[string]Validity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Validity, len(f.fields))
	for k, fs := range f.fields {
		out[k] = fs.Validity.clone()
	}
	return out
}

// Model returns a copy of the latest whole model reported to the form.
func (f *Form) Model() formguard.Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fieldpath.CloneModel(f.model)
}

// Valid reports whether every registered field is settled without errors.
// An enabled field that has never been validated is not valid.
func (f *Form) Valid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fs := range f.fields {
		if !fs.Disabled && !fs.validated {
			return false
		}
		if !fs.Valid() {
			return false
		}
	}
	return true
}

// Idle reports whether no field is pending and every change has been
// delivered to subscribers.
func (f *Form) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingCountLocked() == 0 && f.deliveredLocked()
}

func (f *Form) deliveredLocked() bool {
	return len(f.queue) == 0 && !f.draining
}

// WaitIdle blocks until Idle holds or ctx is done. A field whose suite never
// completes, or failed, keeps the form from becoming idle. It must not be
// called from a subscriber.
func (f *Form) WaitIdle(ctx context.Context) error {
	for {
		f.mu.Lock()
		var ch chan struct{}
		switch {
		case f.pendingCountLocked() > 0:
			ch = f.idle
		case !f.deliveredLocked():
			ch = f.drained
		}
		f.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Form) pendingCountLocked() int {
	n := 0
	for _, fs := range f.fields {
		if fs.Pending {
			n++
		}
	}
	return n
}

func (f *Form) updatePendingLocked() {
	n := f.pendingCountLocked()
	f.metrics.SetPending(n)
	select {
	case <-f.idle:
		if n > 0 {
			f.idle = make(chan struct{})
		}
	default:
		if n == 0 {
			close(f.idle)
		}
	}
}

// Close stops all timers and cancels in-flight runs. Later edits are
// ignored and late results are dropped.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.cache.Close()
}

// ---- notifications ----

// Subscribe calls fn with key's validity after every change to it. The
// returned function removes the subscription.
func (f *Form) Subscribe(key string, fn func(Validity)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	if f.subs[key] == nil {
		f.subs[key] = map[int]func(Validity){}
	}
	f.subs[key][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[key], id)
	}
}

// Watch calls fn for every validity change of any key.
func (f *Form) Watch(fn func(key string, v Validity)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.watchers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}

func (f *Form) enqueueLocked(key string) {
	if f.deliveredLocked() {
		f.drained = make(chan struct{})
	}
	f.queue = append(f.queue, event{key: key, v: f.fields[key].Validity.clone()})
}

// flush delivers queued events. Only one goroutine delivers at a time; calls
// made while another goroutine (or a subscriber) is delivering only enqueue.
func (f *Form) flush() {
	f.mu.Lock()
	if f.draining || len(f.queue) == 0 {
		f.mu.Unlock()
		return
	}
	f.draining = true
	f.mu.Unlock()

	finished := false
	defer func() {
		// a panicking subscriber leaves the rest of the queue for the next flush
		if !finished {
			f.mu.Lock()
			f.draining = false
			if len(f.queue) == 0 {
				close(f.drained)
			}
			f.mu.Unlock()
		}
	}()
	for {
		f.mu.Lock()
		evs := f.queue
		f.queue = nil
		if len(evs) == 0 {
			f.draining = false
			finished = true
			close(f.drained)
			f.mu.Unlock()
			return
		}
		type target struct {
			ev   event
			subs []func(Validity)
		}
		targets := make([]target, 0, len(evs))
		for _, ev := range evs {
			targets = append(targets, target{ev: ev, subs: sortedSubs(f.subs[ev.key])})
		}
		watchers := sortedWatchers(f.watchers)
		f.mu.Unlock()

		for _, t := range targets {
			for _, fn := range t.subs {
				fn(t.ev.v.clone())
			}
			for _, fn := range watchers {
				fn(t.ev.key, t.ev.v.clone())
			}
		}
	}
}

func sortedSubs(m map[int]func(Validity)) []func(Validity) {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Validity), 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func sortedWatchers(m map[int]func(string, Validity)) []func(string, Validity) {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(string, Validity), 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
