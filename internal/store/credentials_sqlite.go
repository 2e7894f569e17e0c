package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shelf-cli/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteCredentials keeps the session cookie in a single-row SQLite table.
type SQLiteCredentials struct {
	db *sql.DB
}

// OpenSQLiteCredentials opens (creating if needed) the credential database at path.
// An empty path uses <config dir>/shelf.sqlite.
func OpenSQLiteCredentials(ctx context.Context, path string) (*SQLiteCredentials, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "shelf.sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// CLI and TUI may hold the file at the same time.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at_unixms INTEGER
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteCredentials{db: db}, nil
}

func (s *SQLiteCredentials) Get(ctx context.Context) (model.Credential, bool, error) {
	var (
		c       model.Credential
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, value, expires_at_unixms FROM credentials WHERE name = ?`,
		model.SessionCookieName,
	).Scan(&c.Name, &c.Value, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, false, nil
		}
		return model.Credential{}, false, err
	}
	if expires.Valid {
		c.Expires = time.UnixMilli(expires.Int64).UTC()
	}
	return c, true, nil
}

func (s *SQLiteCredentials) Set(ctx context.Context, c model.Credential) error {
	if strings.TrimSpace(c.Value) == "" {
		return errors.New("credential value is empty")
	}
	var expires any
	if !c.Expires.IsZero() {
		expires = c.Expires.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials(name, value, expires_at_unixms) VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, expires_at_unixms = excluded.expires_at_unixms`,
		model.SessionCookieName, c.Value, expires,
	)
	return err
}

func (s *SQLiteCredentials) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, model.SessionCookieName)
	return err
}

func (s *SQLiteCredentials) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
