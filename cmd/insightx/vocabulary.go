package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kiranshivaraju/insightx/pkg/metric"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/spf13/cobra"
)

type vocabularyOutput struct {
	Metrics  []string                      `json:"metrics"`
	Accepted map[models.Dimension][]string `json:"accepted_values"`
	Values   map[models.Dimension][]string `json:"dataset_values"`
	Periods  []string                      `json:"periods"`
	Buckets  []models.Bucket               `json:"buckets"`
}

func newVocabularyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vocabulary",
		Short: "List metrics, dimensions and the values present in the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			values := make(map[models.Dimension][]string, len(models.Dimensions))
			for _, d := range models.Dimensions {
				vals, err := s.provider.Values(cmd.Context(), d)
				if err != nil {
					return fmt.Errorf("list %s values: %w", d, err)
				}
				values[d] = vals
			}

			out := vocabularyOutput{
				Metrics:  metric.Names(),
				Accepted: s.guard.Vocabulary(),
				Values:   values,
				Periods:  []string{models.PeriodLast7Days, models.PeriodLast30Days, models.PeriodLast90Days},
				Buckets:  []models.Bucket{models.BucketDay, models.BucketWeek, models.BucketMonth},
			}

			w := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(w, out)
			}

			t := newTable(w)
			t.SetTitle("Metrics")
			t.AppendHeader(table.Row{"Metric", "Format", "Formula"})
			for _, name := range out.Metrics {
				m, ok := metric.Lookup(name)
				if !ok {
					t.AppendRow(table.Row{name, "", ""})
					continue
				}
				t.AppendRow(table.Row{name, m.Class, m.Formula})
			}
			t.Render()

			renderValues(w, "Accepted Values", out.Accepted)
			renderValues(w, "Dataset Values", out.Values)

			buckets := make([]string, len(out.Buckets))
			for i, b := range out.Buckets {
				buckets[i] = string(b)
			}
			fmt.Fprintf(w, "\nPeriods: %s\nBuckets: %s\n", strings.Join(out.Periods, ", "), strings.Join(buckets, ", "))
			return nil
		},
	}
}
