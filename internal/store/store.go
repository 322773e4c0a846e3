package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrDisabled is returned by Open when no DSN is configured.
var ErrDisabled = errors.New("run ledger disabled: DATABASE_URL is empty")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type Store struct {
	db      *sql.DB
	dialect dialect
}

// Run is one overlay run and the remote resources it created.
type Run struct {
	ID            string
	JobName       string
	TransformName string
	InputAsset    string
	LogoAsset     string
	OutputAsset   string
	State         string
	Error         sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Open connects to the ledger. postgres:// and postgresql:// DSNs go through
// pgx; anything else is a SQLite database path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDisabled
	}

	driver, d := "sqlite", dialectSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, d = "pgx", dialectPostgres
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d == dialectSQLite {
		// one writer at a time keeps SQLite from reporting SQLITE_BUSY
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	timestamp := "TIMESTAMP"
	if s.dialect == dialectPostgres {
		timestamp = "TIMESTAMPTZ"
	}
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	job_name TEXT NOT NULL,
	transform_name TEXT NOT NULL,
	input_asset TEXT NOT NULL,
	logo_asset TEXT NOT NULL,
	output_asset TEXT NOT NULL,
	state TEXT NOT NULL,
	error TEXT,
	created_at ` + timestamp + ` NOT NULL,
	updated_at ` + timestamp + ` NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) CreateRun(ctx context.Context, r Run) error {
	const q = `
INSERT INTO runs (id, job_name, transform_name, input_asset, logo_asset, output_asset, state, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(q), r.ID, r.JobName, r.TransformName, r.InputAsset, r.LogoAsset, r.OutputAsset, r.State, nullString(r.Error), now, now)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	const q = `
SELECT id, job_name, transform_name, input_asset, logo_asset, output_asset, state, error, created_at, updated_at
FROM runs
WHERE id = ?
`
	return scanRun(s.db.QueryRowContext(ctx, s.rebind(q), id))
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, job_name, transform_name, input_asset, logo_asset, output_asset, state, error, created_at, updated_at
FROM runs
ORDER BY created_at DESC
LIMIT ?
`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) UpdateRunState(ctx context.Context, id, state string, errMsg *string) error {
	const q = `
UPDATE runs
SET state = ?, error = ?, updated_at = ?
WHERE id = ?
`
	res, err := s.db.ExecContext(ctx, s.rebind(q), state, errMsg, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	err := row.Scan(
		&r.ID,
		&r.JobName,
		&r.TransformName,
		&r.InputAsset,
		&r.LogoAsset,
		&r.OutputAsset,
		&r.State,
		&r.Error,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func nullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}
