package form_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/config"
	"github.com/reoring/formguard/fieldpath"
	"github.com/reoring/formguard/form"
	"github.com/reoring/formguard/rules"
	"github.com/reoring/formguard/suite"
)

func contactSuite() *suite.Suite {
	return suite.New(
		suite.Required("name", "Name is required"),
		suite.Required("age", "Age is required"),
		suite.Required("salary", "Salary is required"),
		suite.Test("salary", "Salary must be numeric", rules.Optional("salary", rules.Numeric("salary"))),
		suite.OmitWhen(rules.If("age", rules.Lt, 60).Predicate(),
			suite.Test("salary", "Elderly must at least have 30.000 in salary.", rules.GreaterThanOrEquals("salary", 30000)),
		),
		suite.Warn("salary", "Salary looks high", rules.LessThan("salary", 100000)),
		suite.Group("addresses.homeAddress",
			suite.Required("street", "Street is required"),
		),
	)
}

type call struct {
	field string
	model formguard.Model
}

// countingRunner records every run before delegating to inner.
type countingRunner struct {
	mu    sync.Mutex
	inner suite.Runner
	calls []call
}

func (c *countingRunner) Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error)) {
	c.mu.Lock()
	c.calls = append(c.calls, call{field: field, model: m})
	c.mu.Unlock()
	c.inner.Run(ctx, m, field, done)
}

func (c *countingRunner) Keys() []string {
	if k, ok := c.inner.(interface{ Keys() []string }); ok {
		return k.Keys()
	}
	return nil
}

func (c *countingRunner) callsFor(field string) []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []call
	for _, cl := range c.calls {
		if cl.field == field {
			out = append(out, cl)
		}
	}
	return out
}

func (c *countingRunner) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// heldRunner keeps every run open until the test completes it.
type heldRunner struct {
	mu   sync.Mutex
	runs []heldRun
}

type heldRun struct {
	field string
	model formguard.Model
	ctx   context.Context
	done  func(formguard.Result, error)
}

func (h *heldRunner) Run(ctx context.Context, m formguard.Model, field string, done func(formguard.Result, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, heldRun{field: field, model: m, ctx: ctx, done: done})
}

func (h *heldRunner) await(t *testing.T, n int) []heldRun {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.runs) >= n
	}, time.Second, time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]heldRun(nil), h.runs...)
}

func settle(t *testing.T, f *form.Form) {
	t.Helper()
	require.Eventually(t, f.Idle, time.Second, time.Millisecond)
}

func TestEdit_DebounceCoalescesToLastSnapshot(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	cfg := config.Config{Debounce: map[string]time.Duration{"name": 100 * time.Millisecond}}
	f := form.New(r, cfg, form.WithClock(clk))
	defer f.Close()

	for _, v := range []string{"A", "An", "Ann"} {
		f.Edit(formguard.Model{"name": v}, "name")
		clk.Add(40 * time.Millisecond)
	}
	assert.True(t, f.ValidityOf("name").Pending)
	assert.Empty(t, r.callsFor("name"), "no run inside the quiet period")

	clk.Add(100 * time.Millisecond)
	settle(t, f)

	calls := r.callsFor("name")
	require.Len(t, calls, 1)
	assert.Equal(t, "Ann", calls[0].model["name"])
	v := f.ValidityOf("name")
	assert.False(t, v.Pending)
	assert.True(t, v.Dirty)
	assert.Empty(t, v.Errors)
}

func TestEdit_ZeroDebounceStillWaitsForTimer(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	f := form.New(r, config.Config{}, form.WithClock(clk))
	defer f.Close()

	f.Edit(formguard.Model{}, "name")
	assert.True(t, f.ValidityOf("name").Pending)
	assert.Zero(t, r.total())

	clk.Add(0)
	settle(t, f)
	v := f.ValidityOf("name")
	assert.Equal(t, []string{"Name is required"}, v.Errors)
	assert.Equal(t, "Name is required", v.Primary)
}

func TestEdit_StaleResultNeverOverwritesNewer(t *testing.T) {
	clk := clock.NewMock()
	h := &heldRunner{}
	f := form.New(h, config.Config{}, form.WithClock(clk))
	defer f.Close()

	f.Edit(formguard.Model{"name": ""}, "name")
	clk.Add(0)
	first := h.await(t, 1)[0]

	f.Edit(formguard.Model{"name": "Ann"}, "name")
	assert.ErrorIs(t, first.ctx.Err(), context.Canceled, "a newer edit cancels the in-flight run")
	clk.Add(0)
	second := h.await(t, 2)[1]
	assert.Equal(t, "Ann", second.model["name"])

	second.done(formguard.NewResult(nil), nil)
	require.False(t, f.ValidityOf("name").Pending)

	first.done(formguard.NewResult(formguard.Issues{{Key: "name", Message: "Name is required"}}), nil)
	v := f.ValidityOf("name")
	assert.Empty(t, v.Errors, "result of the superseded run must be discarded")
	assert.False(t, v.Pending)
}

func TestEdit_StaleResultWhileNewerPending(t *testing.T) {
	clk := clock.NewMock()
	h := &heldRunner{}
	cfg := config.Config{DefaultDebounce: 50 * time.Millisecond}
	f := form.New(h, cfg, form.WithClock(clk))
	defer f.Close()

	f.Edit(formguard.Model{"name": ""}, "name")
	clk.Add(50 * time.Millisecond)
	first := h.await(t, 1)[0]

	f.Edit(formguard.Model{"name": "Ann"}, "name")
	first.done(formguard.NewResult(formguard.Issues{{Key: "name", Message: "Name is required"}}), nil)

	v := f.ValidityOf("name")
	assert.True(t, v.Pending, "stale completion must not settle the newer cycle")
	assert.Empty(t, v.Errors)
}

func TestFanOut_RevalidatesDependents(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	cfg := config.Config{
		Related:  config.Graph{"age": {"salary"}},
		Debounce: map[string]time.Duration{"salary": 50 * time.Millisecond},
	}
	f := form.New(r, cfg, form.WithClock(clk))
	defer f.Close()

	model := formguard.Model{"age": 65, "salary": 20000}
	f.Edit(model, "age")
	clk.Add(0)
	// the dependent run is scheduled in the same transition that settles age
	require.Eventually(t, func() bool { return !f.ValidityOf("age").Pending }, time.Second, time.Millisecond)
	assert.True(t, f.ValidityOf("salary").Pending)
	assert.Empty(t, r.callsFor("salary"))
	clk.Add(50 * time.Millisecond)
	settle(t, f)
	require.Len(t, r.callsFor("salary"), 1)

	age := f.ValidityOf("age")
	assert.Empty(t, age.Errors)

	salary := f.ValidityOf("salary")
	assert.Equal(t, []string{"Elderly must at least have 30.000 in salary."}, salary.Errors)
	assert.True(t, salary.Touched)
	assert.True(t, salary.Dirty)
	assert.Equal(t, 20000, f.Model()["salary"], "dependent value must not change")
	assert.Equal(t, 20000, r.callsFor("salary")[0].model["salary"])
}

func TestFanOut_OnlyWhenSourceValueChanges(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	cfg := config.Config{Related: config.Graph{"age": {"salary"}}}
	f := form.New(r, cfg, form.WithClock(clk))
	defer f.Close()

	edit := func(m formguard.Model) {
		f.Edit(m, "age")
		clk.Add(0)
		require.Eventually(t, func() bool { return !f.ValidityOf("age").Pending }, time.Second, time.Millisecond)
		clk.Add(0)
		settle(t, f)
	}

	edit(formguard.Model{"age": 40, "salary": 20000})
	require.Len(t, r.callsFor("salary"), 1)

	edit(formguard.Model{"age": 40, "salary": 20000})
	assert.Len(t, r.callsFor("salary"), 1, "unchanged source value does not fan out")

	edit(formguard.Model{"age": 70, "salary": 20000})
	assert.Len(t, r.callsFor("salary"), 2)
	assert.False(t, f.ValidityOf("salary").Valid())
}

func TestFanOut_DoesNotCascade(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	cfg := config.Config{Related: config.Graph{"age": {"salary"}, "salary": {"age"}}}
	f := form.New(r, cfg, form.WithClock(clk))
	defer f.Close()

	f.Edit(formguard.Model{"age": 30, "salary": 1}, "age")
	clk.Add(0)
	require.Eventually(t, func() bool { return !f.ValidityOf("age").Pending }, time.Second, time.Millisecond)
	clk.Add(0)
	settle(t, f)
	clk.Add(0)
	settle(t, f)
	assert.Len(t, r.callsFor("age"), 1)
	assert.Len(t, r.callsFor("salary"), 1)
}

func TestSubmitAttempt_BeforeAnyEdit(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	f := form.New(r, config.Config{}, form.WithClock(clk))
	defer f.Close()

	f.Load(formguard.Model{})
	clk.Add(0)
	settle(t, f)
	runs := r.total()
	require.Equal(t, len(f.Keys()), runs)

	street := f.ValidityOf("addresses.homeAddress.street")
	assert.Equal(t, []string{"Street is required"}, street.Errors)
	assert.False(t, street.Touched)
	assert.False(t, street.Dirty)

	f.SubmitAttempt()
	for _, k := range f.Keys() {
		assert.True(t, f.ValidityOf(k).Touched, k)
	}
	clk.Add(time.Second)
	assert.True(t, f.Idle())
	assert.Equal(t, runs, r.total(), "submit must not schedule runs")
	assert.False(t, f.Valid())
}

func TestSuiteError_LeavesFieldPending(t *testing.T) {
	clk := clock.NewMock()
	boom := errors.New("lookup failed")
	failing := suite.RunnerFunc(func(_ context.Context, _ formguard.Model, _ string, done func(formguard.Result, error)) {
		done(formguard.Result{}, boom)
	})
	var mu sync.Mutex
	var reported []error
	f := form.New(failing, config.Config{}, form.WithClock(clk), form.WithErrorHandler(func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "email", key)
		reported = append(reported, err)
	}))
	defer f.Close()

	f.Edit(formguard.Model{"email": "x"}, "email")
	clk.Add(0)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, reported[0], boom)
	assert.True(t, f.ValidityOf("email").Pending)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestSuiteError_CancelsRunContext(t *testing.T) {
	clk := clock.NewMock()
	h := &heldRunner{}
	f := form.New(h, config.Config{}, form.WithClock(clk), form.WithFields("email"))
	defer f.Close()

	f.Edit(formguard.Model{"email": "x"}, "email")
	clk.Add(0)
	run := h.await(t, 1)[0]
	require.NoError(t, run.ctx.Err())

	run.done(formguard.Result{}, errors.New("lookup failed"))
	assert.ErrorIs(t, run.ctx.Err(), context.Canceled)
	assert.True(t, f.ValidityOf("email").Pending)
}

func TestNew_RunnerWithoutKeysUsesWithFields(t *testing.T) {
	clk := clock.NewMock()
	var mu sync.Mutex
	var seen []string
	runner := suite.RunnerFunc(func(_ context.Context, _ formguard.Model, field string, done func(formguard.Result, error)) {
		mu.Lock()
		seen = append(seen, field)
		mu.Unlock()
		done(formguard.Result{Errors: map[string][]string{field: {"required"}}}, nil)
	})

	bare := form.New(runner, config.Config{}, form.WithClock(clk))
	defer bare.Close()
	assert.Empty(t, bare.Keys())

	f := form.New(runner, config.Config{}, form.WithClock(clk), form.WithFields("email", "phone"))
	defer f.Close()
	require.Equal(t, []string{"email", "phone"}, f.Keys())

	f.Load(formguard.Model{})
	clk.Add(0)
	settle(t, f)
	mu.Lock()
	assert.ElementsMatch(t, []string{"email", "phone"}, seen)
	mu.Unlock()

	f.SubmitAttempt()
	assert.True(t, f.ValidityOf("email").Touched)
	assert.Equal(t, []string{"required"}, f.ValidityOf("phone").Errors)
	assert.False(t, f.Valid())
}

func TestValid_FalseUntilEveryFieldValidated(t *testing.T) {
	clk := clock.NewMock()
	s := suite.New(
		suite.Required("name", "Name is required"),
		suite.Required("age", "Age is required"),
	)
	f := form.New(s, config.Config{}, form.WithClock(clk))
	defer f.Close()

	f.Edit(formguard.Model{"name": "Ann"}, "name")
	clk.Add(0)
	settle(t, f)
	assert.True(t, f.ValidityOf("name").Valid())
	assert.True(t, f.ValidityOf("age").Valid(), "a single field view has no errors yet")
	assert.False(t, f.Valid(), "age was never validated")

	f.Load(formguard.Model{"name": "Ann", "age": 30})
	clk.Add(0)
	settle(t, f)
	assert.True(t, f.Valid())
}

func TestSetSuite_DoesNotRevalidateSettledFields(t *testing.T) {
	clk := clock.NewMock()
	lenient := suite.New(suite.Required("name", "Name is required"))
	strict := lenient.Extend(suite.Test("name", "Name too short", rules.MinLength("name", 4)))
	f := form.New(lenient, config.Config{}, form.WithClock(clk))
	defer f.Close()

	f.Edit(formguard.Model{"name": "Ann"}, "name")
	clk.Add(0)
	settle(t, f)
	require.True(t, f.ValidityOf("name").Valid())

	f.SetSuite(strict)
	clk.Add(time.Second)
	assert.True(t, f.ValidityOf("name").Valid(), "swap alone does not revalidate")

	f.Edit(formguard.Model{"name": "Ann"}, "name")
	clk.Add(0)
	settle(t, f)
	assert.Equal(t, []string{"Name too short"}, f.ValidityOf("name").Errors)
}

func TestSubscribe_DeliversInOrder(t *testing.T) {
	clk := clock.NewMock()
	f := form.New(contactSuite(), config.Config{}, form.WithClock(clk))
	defer f.Close()

	var mu sync.Mutex
	var seen []form.Validity
	unsub := f.Subscribe("name", func(v form.Validity) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
	})
	var keys []string
	unwatch := f.Watch(func(key string, _ form.Validity) {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, key)
	})

	f.Edit(formguard.Model{}, "name")
	clk.Add(0)
	settle(t, f)

	mu.Lock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Pending)
	assert.False(t, seen[1].Pending)
	assert.Equal(t, "Name is required", seen[1].Primary)
	assert.Equal(t, []string{"name", "name"}, keys)
	mu.Unlock()

	unsub()
	unwatch()
	f.Touch("name")
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestSubscribe_CallbackMayReenter(t *testing.T) {
	clk := clock.NewMock()
	f := form.New(contactSuite(), config.Config{}, form.WithClock(clk))
	defer f.Close()

	once := sync.Once{}
	f.Subscribe("name", func(v form.Validity) {
		if !v.Pending {
			once.Do(func() { f.Touch("age") })
		}
	})
	f.Edit(formguard.Model{"name": "Ann"}, "name")
	clk.Add(0)
	require.Eventually(t, func() bool { return f.ValidityOf("age").Touched }, time.Second, time.Millisecond)
}

func TestSetValue(t *testing.T) {
	clk := clock.NewMock()
	f := form.New(contactSuite(), config.Config{}, form.WithClock(clk))
	defer f.Close()

	require.NoError(t, f.SetValue("addresses.homeAddress.street", "Main"))
	clk.Add(0)
	settle(t, f)
	assert.Empty(t, f.ValidityOf("addresses.homeAddress.street").Errors)
	v, ok := fieldpath.Get(f.Model(), "addresses.homeAddress.street")
	require.True(t, ok)
	assert.Equal(t, "Main", v)

	require.NoError(t, f.SetValue("age", 42))
	err := f.SetValue("age.years", 1)
	assert.ErrorIs(t, err, fieldpath.ErrPathConflict)
}

func TestSetValue_ConcurrentKeysAllLand(t *testing.T) {
	clk := clock.NewMock()
	f := form.New(contactSuite(), config.Config{}, form.WithClock(clk))
	defer f.Close()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.SetValue(fmt.Sprintf("extra.f%d", i), i))
		}(i)
	}
	wg.Wait()

	m := f.Model()
	for i := 0; i < n; i++ {
		v, ok := fieldpath.Get(m, fmt.Sprintf("extra.f%d", i))
		require.True(t, ok, "extra.f%d lost", i)
		assert.Equal(t, i, v)
	}
}

func TestDisabledFieldsAreValid(t *testing.T) {
	clk := clock.NewMock()
	f := form.New(suite.New(suite.Required("name", "")), config.Config{}, form.WithClock(clk))
	defer f.Close()

	f.Load(formguard.Model{})
	clk.Add(0)
	settle(t, f)
	assert.False(t, f.Valid())

	f.SetDisabled("name", true)
	assert.True(t, f.Valid())
	assert.True(t, f.ValidityOf("name").Disabled)
}

func TestClose_IgnoresLaterEdits(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	f := form.New(r, config.Config{}, form.WithClock(clk))

	f.Edit(formguard.Model{}, "name")
	f.Close()
	f.Edit(formguard.Model{}, "age")
	clk.Add(time.Second)
	assert.Zero(t, r.total())
	assert.False(t, f.ValidityOf("age").Dirty)
}

func TestEdit_SnapshotIsNotAliased(t *testing.T) {
	clk := clock.NewMock()
	r := &countingRunner{inner: contactSuite()}
	f := form.New(r, config.Config{}, form.WithClock(clk))
	defer f.Close()

	m := formguard.Model{"name": "Ann"}
	f.Edit(m, "name")
	m["name"] = ""
	clk.Add(0)
	settle(t, f)
	assert.Empty(t, f.ValidityOf("name").Errors)
	assert.Equal(t, "Ann", r.callsFor("name")[0].model["name"])
}

func TestWaitIdle(t *testing.T) {
	clk := clock.NewMock()
	f := form.New(contactSuite(), config.Config{}, form.WithClock(clk))
	defer f.Close()

	require.NoError(t, f.WaitIdle(context.Background()))
	f.Edit(formguard.Model{}, "name")

	errc := make(chan error, 1)
	go func() { errc <- f.WaitIdle(context.Background()) }()
	clk.Add(0)
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIdle did not return")
	}
}
