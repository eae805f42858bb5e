package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/reoring/formguard"
	"github.com/reoring/formguard/internal/ctxlog"
	"github.com/reoring/formguard/source"
)

type checkOptions struct {
	model  string
	field  string
	suite  string
	format string
}

func newCheckCmd(g *globals) *cobra.Command {
	o := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a JSON model once and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lookupSuite(o.suite)
			if err != nil {
				return err
			}
			m, err := readModel(cmd.InOrStdin(), o.model)
			if err != nil {
				return err
			}
			ctx := ctxlog.WithLogger(cmd.Context(), g.logger)
			res := s.Validate(ctx, m, o.field)
			g.logger.Info("checked model", "suite", s.Name(), "field", o.field, "issues", len(res.Issues))

			if err := writeResult(cmd.OutOrStdout(), o.format, res); err != nil {
				return err
			}
			if res.HasErrors() {
				return ErrInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&o.model, "model", "-", "model JSON file, - for stdin")
	cmd.Flags().StringVar(&o.field, "field", "", "validate only this field key")
	cmd.Flags().StringVar(&o.suite, "suite", "contact", "suite name (see formguard suites)")
	cmd.Flags().StringVar(&o.format, "format", "text", "output format: text or json")
	return cmd
}

func readModel(stdin io.Reader, path string) (formguard.Model, error) {
	if path == "-" {
		return source.ReadModel(stdin)
	}
	return source.ReadModelFile(path)
}

type issueJSON struct {
	Key      string `json:"key"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Rule     string `json:"rule,omitempty"`
}

type resultJSON struct {
	Valid    bool                `json:"valid"`
	Errors   map[string][]string `json:"errors"`
	Warnings map[string][]string `json:"warnings"`
	Issues   []issueJSON         `json:"issues"`
}

func writeResult(w io.Writer, format string, res formguard.Result) error {
	switch format {
	case "json":
		out := resultJSON{Valid: !res.HasErrors(), Errors: res.Errors, Warnings: res.Warnings, Issues: []issueJSON{}}
		for _, it := range res.Issues {
			out.Issues = append(out.Issues, issueJSON{
				Key: it.Key, Code: it.Code, Message: it.Message, Severity: it.Severity.String(), Rule: it.Rule,
			})
		}
		return source.WriteJSON(w, out)
	case "text":
		if len(res.Issues) == 0 {
			_, err := fmt.Fprintln(w, "valid")
			return err
		}
		iss := append(formguard.Issues(nil), res.Issues...)
		sort.SliceStable(iss, func(i, j int) bool { return iss[i].Key < iss[j].Key })
		for _, it := range iss {
			if _, err := fmt.Fprintf(w, "%s: %s: %s\n", it.Key, it.Severity, it.Message); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
