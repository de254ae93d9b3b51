package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Open picks a backend from the DATABASE_URL scheme, connects, and applies
// migrations where the engine needs them:
//
//	postgres://, postgresql://  PostgresStore
//	sqlite:<path>, sqlite://<path>, sqlite::memory:  SQLiteStore
//	redis://, rediss://  RedisStore
func Open(ctx context.Context, databaseURL string) (Backend, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		ps, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := ps.Migrate(ctx, PostgresMigrations()); err != nil {
			ps.Close()
			return nil, fmt.Errorf("running postgres migrations: %w", err)
		}
		slog.Info("user store ready", "backend", "postgres")
		return ps, nil

	case strings.HasPrefix(databaseURL, "sqlite:"):
		path := sqlitePath(databaseURL)
		ss, err := NewSQLiteStore(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		if err := ss.Migrate(ctx, SQLiteMigrations()); err != nil {
			ss.Close()
			return nil, fmt.Errorf("running sqlite migrations: %w", err)
		}
		slog.Info("user store ready", "backend", "sqlite", "path", path)
		return ss, nil

	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		rs, err := NewRedisStore(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		slog.Info("user store ready", "backend", "redis")
		return rs, nil
	}

	return nil, fmt.Errorf("unsupported DATABASE_URL scheme (want postgres, sqlite or redis)")
}

// sqlitePath strips the scheme; "sqlite://data/users.db" and "sqlite:data/users.db" are the same file.
func sqlitePath(databaseURL string) string {
	path, _ := strings.CutPrefix(databaseURL, "sqlite:")
	if rest, ok := strings.CutPrefix(path, "//"); ok {
		path = rest
	}
	return path
}
