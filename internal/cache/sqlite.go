package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ziadkadry99/examrender/internal/texmath"
)

// SQLite is a persistent fragment cache shared across runs.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens a SQLite cache at the given path.
func Open(path string, logger *slog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// Batch workers share one cache; a single connection serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}
	return newSQLite(db, path, logger)
}

// OpenMemory creates an in-memory SQLite cache (useful for testing).
func OpenMemory(logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory cache: %w", err)
	}
	// Each pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return newSQLite(db, ":memory:", logger)
}

func newSQLite(db *sql.DB, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLite{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS math_fragments (
    raw TEXT NOT NULL,
    mode TEXT NOT NULL CHECK(mode IN ('inline','display')),
    markup TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (raw, mode)
);
`

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Get(raw string, mode texmath.Mode) (string, bool) {
	var markup string
	err := s.db.QueryRow(`SELECT markup FROM math_fragments WHERE raw = ? AND mode = ?`, raw, mode.String()).Scan(&markup)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("fragment cache read failed", "path", s.path, "error", err)
		}
		return "", false
	}
	return markup, true
}

func (s *SQLite) Put(raw string, mode texmath.Mode, markup string) {
	_, err := s.db.Exec(`INSERT INTO math_fragments (raw, mode, markup) VALUES (?, ?, ?)
		ON CONFLICT(raw, mode) DO UPDATE SET markup = excluded.markup`, raw, mode.String(), markup)
	if err != nil {
		s.logger.Warn("fragment cache write failed", "path", s.path, "error", err)
	}
}

// Len reports the number of cached fragments.
func (s *SQLite) Len() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM math_fragments`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
