// Package storage implements the embedded relational store backing the
// code-intelligence engine: repositories, files, symbols, references,
// recorded memory (decisions, failures, patterns, insights) and workflow
// contexts, all in a single sqlite database file.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultRelPath is the database location relative to the working directory.
const DefaultRelPath = ".kotadb/kota.db"

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// Sentinel errors.
var (
	ErrNotFound = errors.New("row not found")
	ErrConflict = errors.New("unique constraint conflict")
)

// Options configures Open.
type Options struct {
	// Path is the database file path. Empty uses DefaultRelPath under cwd.
	Path string

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// Store is the process-wide database handle. One writer at a time; readers
// run concurrently against the WAL.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	path    string
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database file, applies pragmas and
// runs pending migrations. Open failure is fatal for the process; callers
// should not retry.
func Open(opts Options) (*Store, error) {
	path := opts.Path
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve cwd: %w", err)
		}

		path = filepath.Join(cwd, DefaultRelPath)
	}

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{db: db, logger: logger, path: path}

	err = s.migrate(context.Background())
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return s, nil
}

// dsn builds the sqlite connection string: WAL journal for concurrent
// readers, immediate transactions so write intent takes the lock up front,
// and foreign keys on so File deletion cascades to Symbols and References.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_txlock", "immediate")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", "synchronous(NORMAL)")

	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for read-only queries. Writes must go
// through WriteTx.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteTx runs fn inside a single write transaction. Writes are serialized
// process-wide; the transaction is rolled back if fn returns an error.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// nowISO returns the current time as an ISO-8601 UTC string, the timestamp
// format used across all tables.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
