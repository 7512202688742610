// Package jobstore persists job snapshots in a local SQLite database.
//
// The store exists for one reason: surviving restarts. Every submitted
// job is written here before monitoring starts, updated to completed
// once its result is reported, and rows past the retention window are
// purged on open. The schema is deliberately tiny; the job itself is an
// opaque snapshot blob.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the no-cgo "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

const driverSQLite = "sqlite"

// Status is the coarse persistence state of a stored job.
type Status int

const (
	StatusCompleted Status = 1
	StatusSubmitted Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// DefaultRetentionDays is how long completed rows are kept before the
// purge at open removes them.
const DefaultRetentionDays = 7

type Config struct {
	// Path is the local filesystem path to the job database. Parent
	// directories are created. ":memory:" gives an ephemeral store.
	Path string

	// RetentionDays overrides DefaultRetentionDays when positive.
	RetentionDays int
}

// Store is a SQLite-backed job snapshot store.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the job database, applies the
// schema, and purges rows older than the retention window.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dsn, err := buildDSN(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}

	if err := configureSQLite(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	if err := s.purge(ctx, retention); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("job store path is required")
	}
	if path == ":memory:" {
		return path, nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir != "." && dir != string(filepath.Separator) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create job store directory: %w", err)
		}
	}
	return "file:" + filepath.Clean(path), nil
}

func configureSQLite(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == ":memory:" {
		// A memory DSN gets one connection regardless; pooling would give
		// each connection its own empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return nil
	}

	// Keep a single connection and use WAL to reduce lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS jobs (
		jobid TEXT,
		status INTEGER,
		submissiontime TIMESTAMP,
		object BLOB
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// purge deletes rows whose submission time is older than the retention
// window. Timestamps are RFC 3339 UTC text, so lexical comparison is
// chronological comparison.
func (s *Store) purge(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE submissiontime < ?`, cutoff); err != nil {
		return fmt.Errorf("purge old jobs: %w", err)
	}
	return nil
}
