package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/kiranshivaraju/insightx/pkg/query"
)

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	query.TimestampLayout,
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	query.DateLayout,
}

// columnIndex maps each required column to its position in a source header.
type columnIndex map[string]int

// indexHeader matches header names case-insensitively against the required
// columns. Extra columns are ignored.
func indexHeader(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(models.RequiredColumns))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range models.RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrSchemaViolation, strings.Join(missing, ", "))
	}
	return idx, nil
}

func (c columnIndex) get(rec []string, col string) string {
	i := c[col]
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseRow normalizes one record. line is the 1-based source line for errors.
func (c columnIndex) parseRow(rec []string, line int) (models.Transaction, error) {
	ts, err := parseTimestamp(c.get(rec, models.ColTimestamp))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
	}

	amount, err := strconv.ParseFloat(c.get(rec, models.ColAmount), 64)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: line %d: amount %q is not a number", ErrMalformedRow, line, c.get(rec, models.ColAmount))
	}

	fraud, err := parseFlag(c.get(rec, models.ColFraudFlag))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: line %d: fraud_flag: %v", ErrMalformedRow, line, err)
	}
	review, err := parseFlag(c.get(rec, models.ColReviewFlag))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: line %d: review_flag: %v", ErrMalformedRow, line, err)
	}

	tx := models.Transaction{
		ID:            c.get(rec, models.ColTransactionID),
		Timestamp:     ts.Format(query.TimestampLayout),
		DateOnly:      ts.Format(query.DateLayout),
		Amount:        amount,
		PaymentMethod: c.get(rec, models.ColPaymentMethod),
		Device:        c.get(rec, models.ColDevice),
		State:         c.get(rec, models.ColState),
		AgeGroup:      c.get(rec, models.ColAgeGroup),
		Network:       c.get(rec, models.ColNetwork),
		Category:      c.get(rec, models.ColCategory),
		Status:        c.get(rec, models.ColStatus),
		FraudFlag:     fraud,
		ReviewFlag:    review,
	}
	if code := c.get(rec, models.ColFailureCode); code != "" && !isNullToken(code) {
		tx.FailureCode = &code
	}
	return tx, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q has no recognized layout", s)
}

func parseFlag(s string) (int, error) {
	switch strings.ToLower(s) {
	case "", "0", "0.0", "false", "no", "n", "f":
		return 0, nil
	case "1", "1.0", "true", "yes", "y", "t":
		return 1, nil
	}
	return 0, fmt.Errorf("%q is not a boolean flag", s)
}

func isNullToken(s string) bool {
	switch strings.ToLower(s) {
	case "nan", "null", "none", "na", "n/a":
		return true
	}
	return false
}
