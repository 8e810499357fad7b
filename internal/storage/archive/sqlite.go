// internal/storage/archive/sqlite.go
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLite implements Storage as rows of a single documents table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at dsn.
func NewSQLite(dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(documentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Write(ctx context.Context, path string, data []byte) error {
	cleaned, err := cleanPath(path)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (path, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		cleaned, data, time.Now().UnixMilli())
	return err
}

func (s *SQLite) Read(ctx context.Context, path string) ([]byte, error) {
	cleaned, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, cleaned).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

func (s *SQLite) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM documents WHERE substr(path, 1, length(?)) = ? ORDER BY path`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, path string) error {
	cleaned, err := cleanPath(path)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, cleaned)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, path string) (bool, error) {
	cleaned, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE path = ?`, cleaned).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
