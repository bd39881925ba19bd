package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/spf13/cobra"
)

// intentFlags collects an intent from flags or from a JSON document.
type intentFlags struct {
	file      string
	operation string
	metric    string
	filters   map[string]string
	groupBy   []string
	segmentA  map[string]string
	segmentB  map[string]string
	period    string
	from      string
	to        string
	bucket    string
	limit     int
}

func (f *intentFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.file, "intent", "i", "", "read the intent as JSON from a file (- for stdin)")
	fs.StringVarP(&f.operation, "op", "o", "", "operation: single_metric, aggregate, compare, time_series, top_failure_reasons, summary")
	fs.StringVarP(&f.metric, "metric", "m", "", "metric name (see 'insightx vocabulary')")
	fs.StringToStringVarP(&f.filters, "filter", "F", nil, "filter as dimension=value; repeatable")
	fs.StringSliceVarP(&f.groupBy, "group-by", "g", nil, "dimensions to group by")
	fs.StringToStringVar(&f.segmentA, "segment-a", nil, "first comparison segment as dimension=value pairs")
	fs.StringToStringVar(&f.segmentB, "segment-b", nil, "second comparison segment as dimension=value pairs")
	fs.StringVar(&f.period, "period", "", "relative window: last_7_days, last_30_days, last_90_days")
	fs.StringVar(&f.from, "from", "", "window start date (YYYY-MM-DD)")
	fs.StringVar(&f.to, "to", "", "window end date (YYYY-MM-DD), inclusive")
	fs.StringVar(&f.bucket, "bucket", "", "time series bucket: day, week, month")
	fs.IntVar(&f.limit, "limit", 0, "number of failure reasons to return (1-100)")
}

// intent builds the wire form and decodes it through Intent.UnmarshalJSON,
// so flags and JSON share one set of aliases.
func (f *intentFlags) intent(stdin io.Reader) (models.Intent, error) {
	var raw []byte
	if f.file != "" {
		var err error
		if f.file == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(f.file)
		}
		if err != nil {
			return models.Intent{}, fmt.Errorf("read intent: %w", err)
		}
	} else {
		wire := map[string]any{
			"operation": f.operation,
			"metric":    f.metric,
		}
		if len(f.filters) > 0 {
			wire["filters"] = f.filters
		}
		if len(f.groupBy) > 0 {
			wire["group_by"] = f.groupBy
		}
		if len(f.segmentA) > 0 {
			wire["segment_a"] = f.segmentA
		}
		if len(f.segmentB) > 0 {
			wire["segment_b"] = f.segmentB
		}
		if f.period != "" || f.from != "" || f.to != "" {
			wire["time_window"] = map[string]string{"period": f.period, "from": f.from, "to": f.to}
		}
		if f.bucket != "" {
			wire["bucket"] = f.bucket
		}
		if f.limit != 0 {
			wire["limit"] = f.limit
		}
		var err error
		if raw, err = json.Marshal(wire); err != nil {
			return models.Intent{}, err
		}
	}

	var in models.Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Intent{}, fmt.Errorf("parse intent: %w", err)
	}
	return in, nil
}
