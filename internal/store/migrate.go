package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

// Embedded schema per SQL dialect. Redis needs none.
//
//go:embed migrations/postgres/*.sql
var postgresMigrationFiles embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrationFiles embed.FS

// PostgresMigrations returns the embedded Postgres migrations rooted at their directory.
func PostgresMigrations() fs.FS {
	sub, _ := fs.Sub(postgresMigrationFiles, "migrations/postgres")
	return sub
}

// SQLiteMigrations returns the embedded SQLite migrations rooted at their directory.
func SQLiteMigrations() fs.FS {
	sub, _ := fs.Sub(sqliteMigrationFiles, "migrations/sqlite")
	return sub
}

// migrator is the per-dialect half of migrate.
type migrator interface {
	// ensureMigrationTable creates schema_migrations if missing.
	ensureMigrationTable(ctx context.Context) error
	// migrationApplied reports whether version is recorded in schema_migrations.
	migrationApplied(ctx context.Context, version string) (bool, error)
	// applyMigration runs sql and records version in one transaction.
	applyMigration(ctx context.Context, version, sql string) error
}

// migrate applies all pending *.sql files from migrationsFS in lexical order.
// Each migration runs in its own transaction -- if any statement fails,
// that migration is rolled back entirely. Already-applied migrations are skipped.
func migrate(ctx context.Context, migrationsFS fs.FS, m migrator) error {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.Glob(migrationsFS, "*.sql")
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}
	sort.Strings(entries)

	for _, filename := range entries {
		applied, err := m.migrationApplied(ctx, filename)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", filename, err)
		}
		if applied {
			slog.Debug("migration already applied, skipping", "version", filename)
			continue
		}

		sql, err := fs.ReadFile(migrationsFS, filename)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", filename, err)
		}
		if err := m.applyMigration(ctx, filename, string(sql)); err != nil {
			return fmt.Errorf("applying migration %s: %w", filename, err)
		}

		slog.Info("migration applied", "version", filename)
	}

	return nil
}
