package form

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/reoring/formguard/metrics"
)

// Option configures a Form.
type Option func(*Form)

// WithClock sets the clock driving debounce timers. Tests pass
// clock.NewMock().
func WithClock(clk clock.Clock) Option {
	return func(f *Form) { f.clk = clk }
}

// WithLogger sets the logger. It is also handed to suites through the run
// context.
func WithLogger(l *slog.Logger) Option {
	return func(f *Form) {
		if l != nil {
			f.log = l
		}
	}
}

// WithMetrics records engine activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Form) { f.metrics = m }
}

// WithErrorHandler receives errors reported by the suite through its
// completion callback. The field stays pending; the engine does not retry.
func WithErrorHandler(h func(key string, err error)) Option {
	return func(f *Form) { f.onError = h }
}

// WithContext sets the parent context of every validation run. Cancelling it
// cancels in-flight runs.
func WithContext(ctx context.Context) Option {
	return func(f *Form) {
		if ctx != nil {
			f.ctx = ctx
		}
	}
}

// WithFields registers keys up front, in addition to the suite's and the
// config's keys.
func WithFields(keys ...string) Option {
	return func(f *Form) { f.initial = append(f.initial, keys...) }
}
