package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/insightx/internal/dataset"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

// PostgresSource streams the dataset columns of a Postgres table. Every
// column is read as text so rows go through the same normalization as file
// sources.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource reads table, optionally schema-qualified ("analytics.tx").
func NewPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	return &PostgresSource{pool: pool, table: table}
}

func (s *PostgresSource) Describe() string { return "postgres:" + s.table }

type column struct {
	name     string // as declared, for the select list
	dataType string
}

func (c column) key() string { return strings.ToLower(c.name) }

func (s *PostgresSource) ident() pgx.Identifier {
	return pgx.Identifier(strings.Split(s.table, "."))
}

// columns lists the table's columns that belong to the dataset contract.
func (s *PostgresSource) columns(ctx context.Context) ([]column, error) {
	id := s.ident()
	schema, table := "", id[len(id)-1]
	if len(id) > 1 {
		schema = id[0]
	}

	rows, err := s.pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_name = $1 AND table_schema = COALESCE(NULLIF($2, ''), current_schema())
		 ORDER BY ordinal_position`, table, schema)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", s.table, err)
	}
	defer rows.Close()

	required := make(map[string]bool, len(models.RequiredColumns))
	for _, c := range models.RequiredColumns {
		required[c] = true
	}

	var cols []column
	seen := 0
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		seen++
		if required[c.key()] {
			cols = append(cols, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", s.table, err)
	}
	if seen == 0 {
		return nil, fmt.Errorf("%w: %w: %s", dataset.ErrDatasetNotFound, ErrTableNotFound, s.table)
	}
	return cols, nil
}

func selectExpr(c column) string {
	col := pgx.Identifier{c.name}.Sanitize()
	switch {
	case strings.HasPrefix(c.dataType, "timestamp"), c.dataType == "date":
		return fmt.Sprintf("COALESCE(to_char(%s, 'YYYY-MM-DD HH24:MI:SS'), '')", col)
	default:
		return fmt.Sprintf("COALESCE(CAST(%s AS TEXT), '')", col)
	}
}

// Open checks the table and starts streaming its rows.
func (s *PostgresSource) Open(ctx context.Context) (dataset.RowReader, error) {
	cols, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}

	header := make([]string, len(cols))
	exprs := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.key()
		exprs[i] = selectExpr(c)
	}
	if len(cols) == 0 {
		return &pgReader{header: header}, nil
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), s.ident().Sanitize())
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	return &pgReader{header: header, rows: rows}, nil
}

type pgReader struct {
	header []string
	rows   pgx.Rows
}

func (r *pgReader) Header() []string { return r.header }

func (r *pgReader) Next() ([]string, error) {
	if r.rows == nil || !r.rows.Next() {
		if r.rows != nil {
			if err := r.rows.Err(); err != nil {
				return nil, fmt.Errorf("read rows: %w", err)
			}
		}
		return nil, io.EOF
	}
	rec := make([]string, len(r.header))
	dest := make([]any, len(rec))
	for i := range rec {
		dest[i] = &rec[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return rec, nil
}

func (r *pgReader) Close() error {
	if r.rows != nil {
		r.rows.Close()
	}
	return nil
}
