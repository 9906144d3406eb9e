package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS locators (
    name       TEXT PRIMARY KEY,
    selector   TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS scripts (
    seq        BIGSERIAL PRIMARY KEY,
    id         UUID NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    code       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);`

const (
	pgGetLocator = `SELECT selector FROM locators WHERE name = $1`

	pgPutLocator = `
        INSERT INTO locators (name, selector, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (name) DO UPDATE SET
            selector = EXCLUDED.selector,
            updated_at = EXCLUDED.updated_at`

	pgListLocators = `SELECT name, selector FROM locators`

	// serializes script inserts so MAX(created_at) sees every earlier row
	pgLockScripts = `SELECT pg_advisory_xact_lock($1)`

	// created_at never goes below the newest stored script
	pgInsertScript = `
        INSERT INTO scripts (id, name, code, created_at)
        SELECT $1, $2, $3, GREATEST($4::timestamptz, COALESCE(MAX(created_at), $4::timestamptz))
        FROM scripts
        RETURNING created_at`

	pgListScripts = `SELECT id::text, name, code, created_at FROM scripts ORDER BY created_at DESC, seq DESC`
)

// scriptsLockKey is the advisory lock taken by script inserts
const scriptsLockKey int64 = 0x73656c6668656c

// PostgresStorage keeps locators and scripts in PostgreSQL
type PostgresStorage struct {
	pool    DBPool
	log     *logrus.Entry
	now     func() time.Time
	locs    *pgLocators
	scripts *pgScripts
}

// OpenPostgres - connects a pgx pool to dsn and prepares the schema
func OpenPostgres(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	store, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres - verifies the connection and migrates the schema
func NewPostgres(ctx context.Context, pool DBPool, logger *logrus.Logger) (*PostgresStorage, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s := &PostgresStorage{
		pool: pool,
		log:  logger.WithField("component", "postgres_store"),
		now:  time.Now,
	}
	s.locs = &pgLocators{s}
	s.scripts = &pgScripts{s}
	s.log.Info("PostgreSQL storage ready")
	return s, nil
}

func (s *PostgresStorage) Locators() interfaces.LocatorStore { return s.locs }
func (s *PostgresStorage) Scripts() interfaces.ScriptStore   { return s.scripts }

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

type pgLocators struct{ s *PostgresStorage }

func (l *pgLocators) Get(ctx context.Context, name string) (string, bool, error) {
	var selector string
	err := l.s.pool.QueryRow(ctx, pgGetLocator, name).Scan(&selector)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query locator: %w", err)
	}
	return selector, true, nil
}

func (l *pgLocators) Put(ctx context.Context, name string, selector string) error {
	if name == "" || selector == "" {
		return fmt.Errorf("%w: locator name and selector are required", entities.ErrStoreWrite)
	}
	if _, err := l.s.pool.Exec(ctx, pgPutLocator, name, selector); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrStoreWrite, err)
	}
	return nil
}

func (l *pgLocators) List(ctx context.Context) (map[string]string, error) {
	rows, err := l.s.pool.Query(ctx, pgListLocators)
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

type pgScripts struct{ s *PostgresStorage }

func (p *pgScripts) Save(ctx context.Context, name string, code string) (entities.Script, error) {
	script := entities.Script{
		ID:   uuid.NewString(),
		Name: scriptName(name),
		Code: code,
	}

	tx, err := p.s.pool.Begin(ctx)
	if err != nil {
		return entities.Script{}, fmt.Errorf("%w: begin: %v", entities.ErrStoreWrite, err)
	}
	fail := func(step string, err error) (entities.Script, error) {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.s.log.WithError(rbErr).Debug("Rollback failed")
		}
		return entities.Script{}, fmt.Errorf("%w: %s: %v", entities.ErrStoreWrite, step, err)
	}

	if _, err := tx.Exec(ctx, pgLockScripts, scriptsLockKey); err != nil {
		return fail("lock", err)
	}

	now := p.s.now().UTC().Truncate(time.Microsecond)
	if err := tx.QueryRow(ctx, pgInsertScript, script.ID, script.Name, script.Code, now).Scan(&script.CreatedAt); err != nil {
		return fail("insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return entities.Script{}, fmt.Errorf("%w: commit: %v", entities.ErrStoreWrite, err)
	}
	script.CreatedAt = script.CreatedAt.UTC()
	return script, nil
}

func (p *pgScripts) List(ctx context.Context) ([]entities.Script, error) {
	rows, err := p.s.pool.Query(ctx, pgListScripts)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	var out []entities.Script
	for rows.Next() {
		var script entities.Script
		if err := rows.Scan(&script.ID, &script.Name, &script.Code, &script.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		script.CreatedAt = script.CreatedAt.UTC()
		out = append(out, script)
	}
	return out, rows.Err()
}
