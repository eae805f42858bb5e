package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/config"
	"github.com/reoring/formguard/display"
	"github.com/reoring/formguard/examples/contact"
	"github.com/reoring/formguard/form"
	"github.com/reoring/formguard/metrics"
	"github.com/reoring/formguard/source"
	"github.com/reoring/formguard/suite"
)

type replayOptions struct {
	events  string
	model   string
	config  string
	suite   string
	format  string
	timeout time.Duration
	metrics bool
	async   bool
}

func newReplayCmd(g *globals) *cobra.Command {
	o := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed an edit log through a debounced form and print what it displays",
		Long: `replay applies each line of a JSON-lines edit log to a form, pausing for the
line's "after" duration first, then waits until no field is pending and prints
the displayed state of every field.

  {"key": "age", "value": 65}
  {"key": "salary", "value": 20000, "after": "150ms"}
  {"action": "submit"}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout(), g, o, clock.New())
		},
	}
	cmd.Flags().StringVar(&o.events, "events", "", "JSON-lines edit log")
	cmd.Flags().StringVar(&o.model, "model", "", "initial model JSON file")
	cmd.Flags().StringVar(&o.config, "config", "", "YAML validation config (default: built-in contact config)")
	cmd.Flags().StringVar(&o.suite, "suite", "contact", "suite name (see formguard suites)")
	cmd.Flags().StringVar(&o.format, "format", "text", "output format: text or json")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 10*time.Second, "how long to wait for pending fields")
	cmd.Flags().BoolVar(&o.metrics, "metrics", false, "print engine counters after the replay")
	cmd.Flags().BoolVar(&o.async, "async", false, "complete suite runs on a separate goroutine")
	_ = cmd.MarkFlagRequired("events")
	return cmd
}

func runReplay(ctx context.Context, out io.Writer, g *globals, o *replayOptions, clk clock.Clock) error {
	s, err := lookupSuite(o.suite)
	if err != nil {
		return err
	}
	cfg := contact.DefaultConfig()
	if o.config != "" {
		if cfg, err = config.Load(o.config); err != nil {
			return err
		}
	}
	edits, err := source.ReadEditsFile(o.events)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg, "formguard")
	if err != nil {
		return err
	}
	var runner suite.Runner = s
	if o.async {
		runner = suite.Async(s)
	}
	var (
		mu       sync.Mutex
		failures []string
	)
	f := form.New(runner, cfg,
		form.WithClock(clk),
		form.WithLogger(g.logger.With("suite", s.Name())),
		form.WithMetrics(met),
		form.WithContext(ctx),
		form.WithErrorHandler(func(key string, err error) {
			mu.Lock()
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
			mu.Unlock()
		}),
	)
	defer f.Close()
	board, detach := display.Attach(f)
	defer detach()

	// every field starts validated so a submit reveals fields no edit reached
	m := formguard.Model{}
	if o.model != "" {
		var err error
		if m, err = source.ReadModelFile(o.model); err != nil {
			return err
		}
	}
	f.Load(m)
	for _, e := range edits {
		if e.After > 0 {
			clk.Sleep(e.After)
		}
		if err := apply(f, e); err != nil {
			return fmt.Errorf("line %d: %w", e.Line, err)
		}
		g.logger.Debug("edit applied", "line", e.Line, "action", e.Action, "key", e.Key)
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := f.WaitIdle(waitCtx); err != nil {
		mu.Lock()
		defer mu.Unlock()
		if len(failures) > 0 {
			return fmt.Errorf("suite errors: %s: %w", strings.Join(failures, "; "), err)
		}
		return fmt.Errorf("fields still pending after %s: %w", o.timeout, err)
	}

	if err := writeViews(out, o.format, board.Views()); err != nil {
		return err
	}
	if o.metrics {
		if err := writeMetrics(out, reg); err != nil {
			return err
		}
	}
	if !f.Valid() {
		return ErrInvalid
	}
	return nil
}

func apply(f *form.Form, e source.Edit) error {
	switch e.Action {
	case source.ActionEdit:
		return f.SetValue(e.Key, e.Value)
	case source.ActionTouch:
		f.Touch(e.Key)
	case source.ActionSubmit:
		f.SubmitAttempt()
	case source.ActionDisable:
		f.SetDisabled(e.Key, true)
	case source.ActionEnable:
		f.SetDisabled(e.Key, false)
	default:
		return fmt.Errorf("unsupported action %q", e.Action)
	}
	return nil
}

func writeViews(w io.Writer, format string, views []display.View) error {
	switch format {
	case "json":
		return source.WriteJSON(w, views)
	case "text":
		for _, v := range views {
			state := "ok"
			switch {
			case v.Invalid:
				state = "invalid"
			case v.Warned:
				state = "warning"
			}
			if _, err := fmt.Fprintf(w, "%s: %s\n", v.Key, state); err != nil {
				return err
			}
			if v.Invalid {
				for _, msg := range v.Errors {
					fmt.Fprintf(w, "  error: %s\n", msg)
				}
			}
			if v.Warned {
				for _, msg := range v.Warnings {
					fmt.Fprintf(w, "  warn: %s\n", msg)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// writeMetrics prints counters and gauges as "name{labels} value" and
// histograms as their sample count and sum.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s_count %d", name, h.GetSampleCount()))
				lines = append(lines, fmt.Sprintf("%s_sum %g", name, h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
