// Package datasettest provides the 100-row transaction fixture used across
// package tests.
//
// Row i (0-based) is laid out as:
//
//	timestamp   2025-01-01 00:00 + i hours
//	amount      100 + 10*i
//	device      Android, iOS, Web cycling (Android 34, iOS 33, Web 33)
//	network     4G, 5G, WiFi, 3G cycling
//	category    Food, Entertainment, Travel, Utilities, Others cycling (20 each)
//	status      Failed for i >= 90 (10 rows), Success otherwise
//	failure     TIMEOUT 4, NETWORK_ERROR 3, BANK_DECLINED 3
//	fraud_flag  1 for i >= 98 (2 rows)
//	review_flag 1 for i >= 95 (5 rows)
package datasettest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/kiranshivaraju/insightx/internal/dataset"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Fixture totals.
const (
	Rows         = 100
	FailedRows   = 10
	FraudRows    = 2
	ReviewRows   = 5
	TotalAmount  = 59500.0 // sum of 100 + 10*i
	AvgAmount    = 595.0
	AndroidRows  = 34
	AndroidFails = 4
)

var (
	paymentMethods = []string{"UPI", "Card", "NetBanking"}
	devices        = []string{"Android", "iOS", "Web"}
	states         = []string{"Maharashtra", "Karnataka", "Tamil Nadu"}
	ageGroups      = []string{"<25", "25-34", "35-44", "45+"}
	networks       = []string{"4G", "5G", "WiFi", "3G"}
	categories     = []string{"Food", "Entertainment", "Travel", "Utilities", "Others"}
	failureCodes   = []string{"TIMEOUT", "NETWORK_ERROR", "BANK_DECLINED"}
)

// Start is the timestamp of row 0.
var Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Records returns the header followed by every fixture row.
func Records() [][]string {
	out := make([][]string, 0, Rows+1)
	out = append(out, append([]string(nil), models.RequiredColumns...))
	for i := 0; i < Rows; i++ {
		status, code := "Success", ""
		if i >= 90 {
			status = "Failed"
			code = failureCodes[(i-90)%3]
		}
		out = append(out, []string{
			fmt.Sprintf("txn_%d", i),
			Start.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(100+10*float64(i), 'f', 1, 64),
			paymentMethods[i%3],
			devices[i%3],
			states[i%3],
			ageGroups[i%4],
			networks[i%4],
			categories[i%5],
			status,
			code,
			flag(i >= 98),
			flag(i >= 95),
		})
	}
	return out
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// WriteCSV writes records to name inside a test temp directory and returns the path.
func WriteCSV(tb testing.TB, name string, records [][]string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(tb, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(tb, w.WriteAll(records))
	return path
}

// WriteXLSX writes records to the first sheet of a new workbook.
func WriteXLSX(tb testing.TB, name string, records [][]string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(tb, err)
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		require.NoError(tb, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(tb, f.SaveAs(path))
	return path
}

// Load loads the standard fixture and closes it when the test ends.
func Load(tb testing.TB) *dataset.Dataset {
	tb.Helper()
	return LoadRecords(tb, Records())
}

// LoadRecords loads arbitrary records through the CSV source.
func LoadRecords(tb testing.TB, records [][]string) *dataset.Dataset {
	tb.Helper()
	path := WriteCSV(tb, "transactions.csv", records)
	ds, err := dataset.Load(context.Background(), dataset.CSVSource{Path: path})
	require.NoError(tb, err)
	tb.Cleanup(func() { ds.Close() })
	return ds
}
