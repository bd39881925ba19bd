package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/insightx/pkg/metric"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/kiranshivaraju/insightx/pkg/query"
)

func singleNumbers(m metric.Metric, row singleRow) []models.NumberResult {
	total, failed := float64(row.TotalCount), float64(row.FailedCount)

	if m.Name != metric.FailureRate {
		return []models.NumberResult{{
			Label:    metric.Title(m.Name),
			Value:    m.Format(row.Value),
			RawValue: row.Value,
			Calculation: &models.Calculation{
				Formula:    m.Formula,
				SampleSize: models.Int(int(row.TotalCount)),
			},
		}}
	}

	return []models.NumberResult{
		{
			Label:    metric.Title(m.Name),
			Value:    m.Format(row.Value),
			RawValue: row.Value,
			Calculation: &models.Calculation{
				Numerator:   models.Float(failed),
				Denominator: models.Float(total),
				Formula:     m.Formula,
			},
		},
		{Label: "Total Transactions", Value: metric.FormatCountValue(total), RawValue: total},
		{Label: "Failed Transactions", Value: metric.FormatCountValue(failed), RawValue: failed},
	}
}

func sampleMaps(rows []sampleRow) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		var code any
		if r.FailureCode.Valid {
			code = r.FailureCode.String
		}
		out[i] = map[string]any{
			models.ColTransactionID: r.TransactionID,
			models.ColTimestamp:     r.Timestamp,
			models.ColAmount:        r.Amount,
			models.ColDevice:        r.Device,
			models.ColState:         r.State,
			models.ColNetwork:       r.Network,
			models.ColCategory:      r.Category,
			models.ColFailureCode:   code,
		}
	}
	return out
}

func aggregateResults(m metric.Metric, groupBy []models.Dimension, rows []groupRow) ([]models.NumberResult, *models.ChartSeries) {
	numbers := make([]models.NumberResult, 0, len(rows))
	points := make([]models.ChartPoint, 0, len(rows))
	for _, r := range rows {
		label := strings.Join(r.Keys, " - ")
		numbers = append(numbers, models.NumberResult{
			Label:       label,
			Value:       m.Format(r.Value),
			RawValue:    r.Value,
			Calculation: &models.Calculation{SampleSize: models.Int(int(r.SampleSize))},
		})
		points = append(points, models.ChartPoint{X: label, Y: r.Value})
	}
	if len(numbers) > query.MaxGroups {
		numbers = numbers[:query.MaxGroups]
	}

	dims := make([]string, len(groupBy))
	for i, d := range groupBy {
		dims[i] = string(d)
	}
	chart := models.NewChartSeries(models.ChartBar,
		fmt.Sprintf("%s by %s", metric.Title(m.Name), strings.Join(dims, ", ")), points)
	chart.XLabel = strings.Join(dims, ", ")
	chart.YLabel = metric.Title(m.Name)
	return numbers, chart
}

func compareResults(m metric.Metric, op models.SegmentComparison, a, b segmentRow) ([]models.NumberResult, *models.ChartSeries) {
	title := metric.Title(m.Name)
	labelA, labelB := op.A.Label(), op.B.Label()
	va, vb := a.Value.Float64, b.Value.Float64

	diff := va - vb
	var pct float64
	if vb != 0 {
		pct = diff / vb * 100
	}

	numbers := []models.NumberResult{
		{
			Label:       fmt.Sprintf("%s (%s)", title, labelA),
			Value:       m.Format(va),
			RawValue:    va,
			Calculation: &models.Calculation{SampleSize: models.Int(int(a.SampleSize))},
		},
		{
			Label:       fmt.Sprintf("%s (%s)", title, labelB),
			Value:       m.Format(vb),
			RawValue:    vb,
			Calculation: &models.Calculation{SampleSize: models.Int(int(b.SampleSize))},
		},
		{
			Label:    "Difference",
			Value:    metric.FormatDifference(diff, pct),
			RawValue: diff,
			Calculation: &models.Calculation{
				Numerator:   models.Float(diff),
				Denominator: models.Float(vb),
				Formula:     "(segment_a - segment_b) / segment_b * 100",
			},
		},
	}

	chart := models.NewChartSeries(models.ChartBar, title+" Comparison", []models.ChartPoint{
		{X: labelA, Y: va},
		{X: labelB, Y: vb},
	})
	chart.YLabel = title
	return numbers, chart
}

func timeSeriesResults(m metric.Metric, op models.TimeSeries, rows []groupRow) ([]models.NumberResult, *models.ChartSeries) {
	numbers := make([]models.NumberResult, 0, len(rows))
	points := make([]models.ChartPoint, 0, len(rows))
	for _, r := range rows {
		period := r.Keys[0]
		label, group := period, ""
		if op.GroupBy != nil {
			group = r.Keys[1]
			label = fmt.Sprintf("%s (%s)", period, group)
		}
		numbers = append(numbers, models.NumberResult{
			Label:       label,
			Value:       m.Format(r.Value),
			RawValue:    r.Value,
			Calculation: &models.Calculation{SampleSize: models.Int(int(r.SampleSize))},
		})
		points = append(points, models.ChartPoint{X: period, Y: r.Value, Label: group})
	}
	if len(numbers) > models.MaxChartPoints {
		numbers = numbers[:models.MaxChartPoints]
	}

	title := metric.Title(m.Name)
	chart := models.NewChartSeries(models.ChartLine, title+" over Time", points)
	chart.XLabel = "Date"
	chart.YLabel = title
	return numbers, chart
}

func topReasonResults(rows []reasonRow) ([]models.NumberResult, *models.ChartSeries) {
	numbers := make([]models.NumberResult, 0, len(rows))
	points := make([]models.ChartPoint, 0, len(rows))
	for _, r := range rows {
		count := float64(r.Failures)
		numbers = append(numbers, models.NumberResult{
			Label:    r.Code,
			Value:    fmt.Sprintf("%s (%s%%)", metric.FormatCountValue(count), strconv.FormatFloat(r.Percentage, 'f', 2, 64)),
			RawValue: count,
			Calculation: &models.Calculation{
				Formula: "COUNT(*) / SUM(COUNT(*)) OVER () * 100",
			},
		})
		points = append(points, models.ChartPoint{X: r.Code, Y: count})
	}
	chart := models.NewChartSeries(models.ChartBar, "Top Failure Codes", points)
	chart.XLabel = "Failure Code"
	chart.YLabel = "Failures"
	return numbers, chart
}

func summaryNumbers(row summaryRow) []models.NumberResult {
	total := float64(row.TotalTransactions)
	num := func(label, name string, v float64) models.NumberResult {
		return models.NumberResult{Label: label, Value: metric.MustLookup(name).Format(v), RawValue: v}
	}
	return []models.NumberResult{
		{Label: "Total Transactions", Value: metric.FormatCountValue(total), RawValue: total},
		num("Total Volume", metric.TotalAmount, row.TotalAmount),
		num("Average Transaction", metric.AvgAmount, row.AvgAmount),
		num("Failure Rate", metric.FailureRate, row.FailureRate),
		num("Fraud Rate", metric.FraudRate, row.FraudRate),
		num("Review Rate", metric.ReviewRate, row.ReviewRate),
	}
}
