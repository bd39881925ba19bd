// Package dataset loads the transaction dataset into an immutable in-memory
// SQLite database and hands out a shared read-only handle.
package dataset

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kiranshivaraju/insightx/pkg/models"
	"github.com/kiranshivaraju/insightx/pkg/query"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const insertSQL = `INSERT INTO transactions (
	transaction_id, timestamp, date_only, amount, payment_method, device, state,
	age_group, network, category, status, failure_code, fraud_flag, review_flag
) VALUES (
	:transaction_id, :timestamp, :date_only, :amount, :payment_method, :device, :state,
	:age_group, :network, :category, :status, :failure_code, :fraud_flag, :review_flag
)`

// Dataset is a loaded, immutable transaction table. It is safe for
// concurrent readers.
type Dataset struct {
	db       *sqlx.DB
	pin      *sql.Conn
	source   string
	rows     int
	loadedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger *slog.Logger
	name   string
}

// Option configures Load.
type Option func(*options)

// WithLogger sets the logger used for the load summary.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName sets the in-memory database name. Two loads with the same name
// share storage, so names must be unique per process.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Load reads every row of src into a new in-memory database.
func Load(ctx context.Context, src Source, opts ...Option) (*Dataset, error) {
	o := options{logger: slog.Default(), name: "insightx-" + uuid.NewString()}
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()

	r, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	idx, err := indexHeader(r.Header())
	if err != nil {
		return nil, err
	}

	db, pin, err := openMemory(ctx, o.name)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{db: db, pin: pin, source: src.Describe()}

	if err := migrateSchema(db.DB); err != nil {
		ds.Close()
		return nil, err
	}

	n, err := insertRows(ctx, db, r, idx)
	if err != nil {
		ds.Close()
		return nil, err
	}
	ds.rows = n
	ds.loadedAt = time.Now()

	o.logger.Info("dataset loaded",
		"source", ds.source,
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// Wrap adopts an already-populated database as a dataset. Close closes db.
func Wrap(db *sqlx.DB, source string) *Dataset {
	return &Dataset{db: db, source: source, loadedAt: time.Now()}
}

func openMemory(ctx context.Context, name string) (*sqlx.DB, *sql.Conn, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// The database lives as long as one connection holds it open.
	pin, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("pin in-memory database: %w", err)
	}
	return db, pin, nil
}

func migrateSchema(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite3 migrate driver: %w", err)
	}
	// m.Close would close db, which the dataset still owns.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, db *sqlx.DB, r RowReader, idx columnIndex) (int, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	n, line := 0, 1
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		line++
		if blank(rec) {
			continue
		}
		t, err := idx.parseRow(rec, line)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, t); err != nil {
			return 0, fmt.Errorf("insert line %d: %w", line, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load: %w", err)
	}
	return n, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}

// DB returns the query handle.
func (d *Dataset) DB() *sqlx.DB { return d.db }

// Rows returns the number of loaded rows.
func (d *Dataset) Rows() int { return d.rows }

// Source describes where the rows came from.
func (d *Dataset) Source() string { return d.source }

// LoadedAt is when the load finished.
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// Values returns the distinct values of a dimension, sorted.
func (d *Dataset) Values(ctx context.Context, dim models.Dimension) ([]string, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: %q", query.ErrUnknownDimension, dim)
	}
	var vals []string
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s <> '' ORDER BY %s", dim, query.Table, dim, dim)
	if err := d.db.SelectContext(ctx, &vals, q); err != nil {
		return nil, fmt.Errorf("select %s values: %w", dim, err)
	}
	return vals, nil
}

// Close releases the database. The in-memory data is gone afterwards.
func (d *Dataset) Close() error {
	d.closeOnce.Do(func() {
		if d.pin != nil {
			d.pin.Close()
		}
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}
