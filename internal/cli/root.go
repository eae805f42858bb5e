// Package cli implements the formguard command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reoring/formguard/examples/contact"
	"github.com/reoring/formguard/suite"
)

// ErrInvalid is returned by commands whose input failed validation. main
// maps it to exit status 1 without printing it again.
var ErrInvalid = errors.New("validation failed")

type globals struct {
	logLevel  string
	logFormat string
	logger    *slog.Logger
}

// NewRootCmd builds the command tree. Output goes to out, logs to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "formguard",
		Short: "Run field validation suites against form models",
		Long: `formguard runs declarative validation suites against JSON form models.

Validate a model once:
  formguard check --model contact.json --suite contact

Replay a recorded editing session through the debounced engine:
  formguard replay --events edits.jsonl --config formguard.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(g.logLevel, g.logFormat, errOut)
			if err != nil {
				return err
			}
			g.logger = l
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(newCheckCmd(g))
	root.AddCommand(newReplayCmd(g))
	root.AddCommand(newSuitesCmd())
	return root
}

// Execute runs the command line with args.
func Execute(args []string, out, errOut io.Writer) error {
	root := NewRootCmd(out, errOut)
	root.SetArgs(args)
	return root.Execute()
}

func lookupSuite(name string) (*suite.Suite, error) {
	build, ok := contact.Suites()[name]
	if !ok {
		return nil, fmt.Errorf("unknown suite %q (available: %s)", name, strings.Join(suiteNames(), ", "))
	}
	return build(), nil
}

func suiteNames() []string {
	var names []string
	for name := range contact.Suites() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newSuitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suites",
		Short: "List the built-in suites and their field keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, name := range suiteNames() {
				s, _ := lookupSuite(name)
				fmt.Fprintf(w, "%s\n", name)
				for _, k := range s.Keys() {
					fmt.Fprintf(w, "  %s\n", k)
				}
			}
			return nil
		},
	}
}
