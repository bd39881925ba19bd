package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

const maxCellWidth = 60

// sampleColumns orders the columns of a sample-rows table.
var sampleColumns = []string{
	models.ColTransactionID,
	models.ColTimestamp,
	models.ColAmount,
	models.ColDevice,
	models.ColState,
	models.ColNetwork,
	models.ColCategory,
	models.ColFailureCode,
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Options.DrawBorder = true
	return t
}

func renderResult(w io.Writer, res *models.AnalysisResult) {
	if !res.Success {
		fmt.Fprintf(w, "\nAnalysis failed: %s\n", res.Error)
		renderQuery(w, res)
		return
	}

	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Results: %s", res.Metric))
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: maxCellWidth},
	})
	t.AppendHeader(table.Row{"Label", "Value", "Sample Size", "Formula"})
	for _, n := range res.Numbers {
		sample, formula := "", ""
		if c := n.Calculation; c != nil {
			if c.SampleSize != nil {
				sample = fmt.Sprint(*c.SampleSize)
			}
			formula = c.Formula
		}
		t.AppendRow(table.Row{n.Label, n.Value, sample, formula})
	}
	t.AppendFooter(table.Row{"Time", fmt.Sprintf("%.1f ms", res.ExecutionTimeMS), "", ""})
	fmt.Fprintln(w)
	t.Render()

	if res.Chart != nil && len(res.Chart.Points) > 0 {
		renderChart(w, res.Chart)
	}
	if len(res.SampleRows) > 0 {
		renderSamples(w, res.SampleRows)
	}
	renderQuery(w, res)
}

func renderChart(w io.Writer, c *models.ChartSeries) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", c.Title, c.Type))
	xLabel, yLabel := c.XLabel, c.YLabel
	if xLabel == "" {
		xLabel = "X"
	}
	if yLabel == "" {
		yLabel = "Y"
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.AppendHeader(table.Row{xLabel, yLabel, "Series"})
	for _, p := range c.Points {
		t.AppendRow(table.Row{p.X, p.Y, p.Label})
	}
	fmt.Fprintln(w)
	t.Render()
}

func renderSamples(w io.Writer, rows []map[string]any) {
	t := newTable(w)
	t.SetTitle("Sample Rows")
	cols := sampleColumns
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			if v := r[c]; v != nil {
				row[i] = v
			}
		}
		t.AppendRow(row)
	}
	fmt.Fprintln(w)
	t.Render()
}

func renderQuery(w io.Writer, res *models.AnalysisResult) {
	if res.Query == "" {
		return
	}
	fmt.Fprintf(w, "\nSQL:\n  %s\n", strings.Join(strings.Fields(res.Query), " "))
	if len(res.Args) > 0 {
		args := make([]string, len(res.Args))
		for i, a := range res.Args {
			args[i] = fmt.Sprintf("%v", a)
		}
		fmt.Fprintf(w, "Args: [%s]\n", strings.Join(args, ", "))
	}
}

// renderValues prints one row per dimension with its values joined.
func renderValues(w io.Writer, title string, values map[models.Dimension][]string) {
	dims := make([]string, 0, len(values))
	for d := range values {
		dims = append(dims, string(d))
	}
	sort.Strings(dims)

	t := newTable(w)
	t.SetTitle(title)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: maxCellWidth}})
	t.AppendHeader(table.Row{"Dimension", "Values"})
	for _, d := range dims {
		t.AppendRow(table.Row{d, strings.Join(values[models.Dimension(d)], ", ")})
	}
	fmt.Fprintln(w)
	t.Render()
}
