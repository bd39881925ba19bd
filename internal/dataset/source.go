package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RowReader streams the rows of a tabular source. Header is available
// immediately after Open; Next returns io.EOF after the last row.
type RowReader interface {
	Header() []string
	Next() ([]string, error)
	Close() error
}

// Source opens a tabular dataset.
type Source interface {
	Describe() string
	Open(ctx context.Context) (RowReader, error)
}

// SourceForPath picks a file source by extension: .xlsx uses the first
// sheet (or sheet when set), anything else is read as CSV.
func SourceForPath(path, sheet string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return XLSXSource{Path: path, Sheet: sheet}
	default:
		return CSVSource{Path: path}
	}
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
	}
	return fmt.Errorf("open %s: %w", path, err)
}

// --- CSV ---

// CSVSource reads a header-bearing CSV file.
type CSVSource struct {
	Path string
}

func (s CSVSource) Describe() string { return "csv:" + s.Path }

func (s CSVSource) Open(_ context.Context) (RowReader, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, openError(s.Path, err)
	}
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header row", ErrSchemaViolation, s.Path)
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return &csvReader{f: f, r: r, header: header}, nil
}

type csvReader struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

func (c *csvReader) Header() []string { return c.header }

func (c *csvReader) Next() ([]string, error) {
	rec, err := c.r.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rec, err
}

func (c *csvReader) Close() error { return c.f.Close() }

// --- XLSX ---

// XLSXSource reads one worksheet of an Excel workbook. The first row of the
// sheet is the header.
type XLSXSource struct {
	Path  string
	Sheet string
}

func (s XLSXSource) Describe() string {
	if s.Sheet != "" {
		return "xlsx:" + s.Path + "#" + s.Sheet
	}
	return "xlsx:" + s.Path
}

func (s XLSXSource) Open(_ context.Context) (RowReader, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, openError(s.Path, err)
	}

	sheet := s.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	x := &xlsxReader{f: f, rows: rows}
	if !rows.Next() {
		x.Close()
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrSchemaViolation, sheet)
	}
	if x.header, err = rows.Columns(); err != nil {
		x.Close()
		return nil, fmt.Errorf("read xlsx header: %w", err)
	}
	return x, nil
}

type xlsxReader struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
}

func (x *xlsxReader) Header() []string { return x.header }

func (x *xlsxReader) Next() ([]string, error) {
	for x.rows.Next() {
		cols, err := x.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read xlsx row: %w", err)
		}
		if len(cols) == 0 {
			continue
		}
		return cols, nil
	}
	if err := x.rows.Error(); err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	return nil, io.EOF
}

func (x *xlsxReader) Close() error {
	rerr := x.rows.Close()
	if err := x.f.Close(); err != nil {
		return err
	}
	return rerr
}
