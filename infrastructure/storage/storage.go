package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Supported backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a storage backend
type Options struct {
	Backend string
	// Dir holds the JSON documents of the file backend
	Dir string
	// Path is the SQLite database file
	Path string
	// DSN is the PostgreSQL connection string
	DSN string
}

// Open - opens the configured backend
func Open(ctx context.Context, opts Options, logger *logrus.Logger) (interfaces.Storage, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStorage(opts.Dir, logger)
	case BackendSQLite:
		s, err := OpenSQLite(ctx, opts.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := OpenPostgres(ctx, opts.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func scriptName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return entities.DefaultScriptName
	}
	return name
}

// monotonic clamps a clock that moved backwards to the previous timestamp
func monotonic(last, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if now.Before(last) {
		return last
	}
	return now
}
