package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS locators (
    name       TEXT PRIMARY KEY,
    selector   TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scripts (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    code       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);`

// SQLiteStorage keeps locators and scripts in a local SQLite file.
// Timestamps are stored as unix nanoseconds.
type SQLiteStorage struct {
	db      *sql.DB
	log     *logrus.Entry
	now     func() time.Time
	locs    *sqliteLocators
	scripts *sqliteScripts
}

// OpenSQLite - opens the database with WAL and a busy timeout and migrates the schema
func OpenSQLite(ctx context.Context, path string, logger *logrus.Logger) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; pragmas apply per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s := &SQLiteStorage{
		db:  db,
		log: logger.WithFields(logrus.Fields{"component": "sqlite_store", "path": path}),
		now: time.Now,
	}
	s.locs = &sqliteLocators{s}
	s.scripts = &sqliteScripts{s}
	s.log.Info("SQLite storage ready")
	return s, nil
}

func (s *SQLiteStorage) Locators() interfaces.LocatorStore { return s.locs }
func (s *SQLiteStorage) Scripts() interfaces.ScriptStore   { return s.scripts }
func (s *SQLiteStorage) Close() error                      { return s.db.Close() }

type sqliteLocators struct{ s *SQLiteStorage }

func (l *sqliteLocators) Get(ctx context.Context, name string) (string, bool, error) {
	var selector string
	err := l.s.db.QueryRowContext(ctx, `SELECT selector FROM locators WHERE name = ?`, name).Scan(&selector)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query locator: %w", err)
	}
	return selector, true, nil
}

func (l *sqliteLocators) Put(ctx context.Context, name string, selector string) error {
	if name == "" || selector == "" {
		return fmt.Errorf("%w: locator name and selector are required", entities.ErrStoreWrite)
	}
	_, err := l.s.db.ExecContext(ctx, `
		INSERT INTO locators (name, selector, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET selector = excluded.selector, updated_at = excluded.updated_at`,
		name, selector, l.s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrStoreWrite, err)
	}
	return nil
}

func (l *sqliteLocators) List(ctx context.Context) (map[string]string, error) {
	rows, err := l.s.db.QueryContext(ctx, `SELECT name, selector FROM locators`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locators: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, selector string
		if err := rows.Scan(&name, &selector); err != nil {
			return nil, fmt.Errorf("failed to scan locator: %w", err)
		}
		out[name] = selector
	}
	return out, rows.Err()
}

type sqliteScripts struct{ s *SQLiteStorage }

func (p *sqliteScripts) Save(ctx context.Context, name string, code string) (entities.Script, error) {
	script := entities.Script{
		ID:   uuid.NewString(),
		Name: scriptName(name),
		Code: code,
	}

	now := p.s.now().UTC().Truncate(time.Microsecond).UnixNano()
	var createdAt int64
	err := p.s.db.QueryRowContext(ctx, `
		INSERT INTO scripts (id, name, code, created_at)
		SELECT ?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at) FROM scripts), 0))
		RETURNING created_at`,
		script.ID, script.Name, script.Code, now).Scan(&createdAt)
	if err != nil {
		return entities.Script{}, fmt.Errorf("%w: %v", entities.ErrStoreWrite, err)
	}
	script.CreatedAt = time.Unix(0, createdAt).UTC()
	return script, nil
}

func (p *sqliteScripts) List(ctx context.Context) ([]entities.Script, error) {
	rows, err := p.s.db.QueryContext(ctx, `SELECT id, name, code, created_at FROM scripts ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	var out []entities.Script
	for rows.Next() {
		var script entities.Script
		var createdAt int64
		if err := rows.Scan(&script.ID, &script.Name, &script.Code, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		script.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, script)
	}
	return out, rows.Err()
}
