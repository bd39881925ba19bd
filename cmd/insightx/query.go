package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// errAnalysisFailed is returned after a failed result has been printed.
var errAnalysisFailed = errors.New("analysis failed")

func newQueryCmd(opts *globalOptions) *cobra.Command {
	flags := &intentFlags{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one analysis and print its numbers, chart data and SQL",
		Long: `Run one analysis against the dataset.

The intent is built from flags, or read as JSON with --intent. The JSON form
is the same body accepted by POST /api/v1/analyze.

Examples:
  insightx query -m failure_rate -F device=Android
  insightx query -o time_series -m volume --bucket week --period last_30_days
  insightx query -o top_failure_reasons --limit 5
  echo '{"operation":"summary"}' | insightx query --intent -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := flags.intent(cmd.InOrStdin())
			if err != nil {
				return err
			}

			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.service.Analyze(cmd.Context(), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				renderResult(out, res)
			}
			if !res.Success {
				return fmt.Errorf("%w: %s", errAnalysisFailed, res.Error)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

type checkOutput struct {
	Computable bool   `json:"computable"`
	Reason     string `json:"reason,omitempty"`
}

func newCheckCmd(opts *globalOptions) *cobra.Command {
	flags := &intentFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether an intent can be answered, without running it",
		Long: `Validate an intent against the metric registry and the accepted
dimension values. Nothing is executed.

Examples:
  insightx check -m churn_rate
  insightx check -F network=6G`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := flags.intent(cmd.InOrStdin())
			if err != nil {
				return err
			}

			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			ok, reason := s.service.Check(in)
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, checkOutput{Computable: ok, Reason: reason})
			}
			if ok {
				fmt.Fprintln(out, "computable")
				return nil
			}
			fmt.Fprintf(out, "not computable: %s\n", reason)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

