// Package store owns the SQL connection, the schema and the small helpers every
// domain service uses to read and write through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/id"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is an open database with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	log     *zap.Logger
}

// Open connects to driver ("sqlite" or "mysql"), pings it and applies the schema.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*DB, error) {
	logger = logging.OrNop(logger)

	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	switch driver {
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing mysql dsn: %w", err)
		}
		// Dates and timestamps are stored as text; keep them as strings on the wire.
		cfg.ParseTime = false
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating mysql connector: %w", err)
		}
		sqlDB = sql.OpenDB(connector)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
	default:
		sqlDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		// SQLite allows a single writer; one connection also keeps in-memory
		// databases alive and shared.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", driver, err)
	}

	db := &DB{DB: sqlDB, Dialect: dialect, log: logger}
	if err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.Dialect.Schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	for _, stmt := range db.Dialect.Indexes() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if db.Dialect.IsDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("creating index: %w", err)
		}
	}
	db.log.Debug("schema applied", zap.String("dialect", db.Dialect.Name))
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

// docNoAttempts bounds WithDocTx retries.
const docNoAttempts = 3

// WithDocTx runs fn like WithTx for transactions that allocate a document
// number with NextDocNo. Two writers can read the same next number; the loser
// hits the unique index on number and fn is run again from scratch. A clash
// on the last attempt is returned as apperr.ErrConflict.
func (db *DB) WithDocTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := db.WithTx(ctx, fn)
		if err == nil || !db.Dialect.IsUniqueViolation(err) {
			return err
		}
		if attempt == docNoAttempts {
			return fmt.Errorf("%w: document number still taken after %d attempts: %v", apperr.ErrConflict, attempt, err)
		}
		db.log.Debug("document number taken, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// QueryAll runs query and scans every row with scan. Rows are fully drained and
// closed before returning so the caller may issue the next query on the same
// connection.
func QueryAll[T any](ctx context.Context, q Querier, scan func(*sql.Rows) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count runs a COUNT query.
func Count(ctx context.Context, q Querier, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Exists reports whether query returns at least one row.
func Exists(ctx context.Context, q Querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NextDocNo allocates the next document number of prefix for the month of on,
// scanning the number column of table. Run it inside WithDocTx.
func NextDocNo(ctx context.Context, q Querier, table, prefix string, on time.Time) (string, error) {
	year, month := on.Year(), int(on.Month())
	numbers, err := QueryAll(ctx, q, func(r *sql.Rows) (string, error) {
		var s string
		return s, r.Scan(&s)
	}, "SELECT number FROM "+table+" WHERE number LIKE ?", id.DocNoPattern(prefix, year, month))
	if err != nil {
		return "", fmt.Errorf("reading %s numbers: %w", table, err)
	}
	return id.FormatDocNo(prefix, year, month, id.NextSeq(numbers, prefix, year, month)), nil
}

// Now returns the current time formatted for storage.
func Now() string {
	return FormatTime(time.Now())
}

// TimeLayout is RFC 3339 with fixed-width nanoseconds so stored timestamps sort as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime formats t for the text timestamp columns.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ScanTime returns a scanner that parses a stored timestamp into t.
func ScanTime(t *time.Time) sql.Scanner {
	return timeScanner{t: t}
}

type timeScanner struct{ t *time.Time }

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.t = time.Time{}
		return nil
	case time.Time:
		*s.t = v
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (s timeScanner) parse(v string) error {
	if v == "" {
		*s.t = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	*s.t = t
	return nil
}
