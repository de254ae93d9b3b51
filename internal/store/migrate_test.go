package store

import (
	"context"
	"testing"
	"testing/fstest"
)

// --- Migrate ---

// Runs against a fresh in-memory SQLite store; the Postgres half of the migrator
// is exercised by TestPostgresBackend when Docker is available.
func TestMigrate(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *SQLiteStore {
		t.Helper()
		ss, err := NewSQLiteStore(ctx, ":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { ss.Close() })
		return ss
	}

	tableExists := func(t *testing.T, ss *SQLiteStore, name string) bool {
		t.Helper()
		var exists bool
		err := ss.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)", name,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("checking table existence: %v", err)
		}
		return exists
	}

	countVersions := func(t *testing.T, ss *SQLiteStore, like string) int {
		t.Helper()
		var count int
		err := ss.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version LIKE ?", like,
		).Scan(&count)
		if err != nil {
			t.Fatalf("counting migrations: %v", err)
		}
		return count
	}

	t.Run("applies migration and records version", func(t *testing.T) {
		ss := newStore(t)
		testFS := fstest.MapFS{
			"900_test_migrate.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE test_migrate_tbl (id INT);"),
			},
		}

		if err := ss.Migrate(ctx, testFS); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}

		if !tableExists(t, ss, "test_migrate_tbl") {
			t.Error("expected test_migrate_tbl to exist after migration")
		}
		if n := countVersions(t, ss, "900_test_migrate.sql"); n != 1 {
			t.Errorf("expected migration version to be recorded once, got %d", n)
		}
	})

	t.Run("skips already-applied migrations", func(t *testing.T) {
		ss := newStore(t)
		testFS := fstest.MapFS{
			"901_test_idempotent.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE test_idempotent_tbl (id INT);"),
			},
		}

		// Second run would fail on CREATE TABLE if not skipped
		if err := ss.Migrate(ctx, testFS); err != nil {
			t.Fatalf("first Migrate: %v", err)
		}
		if err := ss.Migrate(ctx, testFS); err != nil {
			t.Fatalf("second Migrate: %v", err)
		}

		if n := countVersions(t, ss, "901_test_idempotent.sql"); n != 1 {
			t.Errorf("expected 1 migration record, got %d", n)
		}
	})

	t.Run("rolls back on bad SQL", func(t *testing.T) {
		ss := newStore(t)
		testFS := fstest.MapFS{
			"902_test_bad.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE half_done (id INT); THIS IS NOT VALID SQL;"),
			},
		}

		if err := ss.Migrate(ctx, testFS); err == nil {
			t.Fatal("expected error for bad SQL, got nil")
		}

		if n := countVersions(t, ss, "902_test_bad.sql"); n != 0 {
			t.Error("bad migration should not be recorded in schema_migrations")
		}
		if tableExists(t, ss, "half_done") {
			t.Error("statements before the failure should be rolled back")
		}
	})

	t.Run("applies migrations in sorted order", func(t *testing.T) {
		ss := newStore(t)
		// Second migration depends on first, proves ordering works
		testFS := fstest.MapFS{
			"904_test_order_b.sql": &fstest.MapFile{
				Data: []byte("ALTER TABLE test_order_tbl ADD COLUMN name TEXT;"),
			},
			"903_test_order_a.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE test_order_tbl (id INT);"),
			},
		}

		if err := ss.Migrate(ctx, testFS); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		if n := countVersions(t, ss, "90%_test_order%"); n != 2 {
			t.Errorf("expected 2 migration records, got %d", n)
		}
	})

	t.Run("handles empty filesystem", func(t *testing.T) {
		ss := newStore(t)
		if err := ss.Migrate(ctx, fstest.MapFS{}); err != nil {
			t.Fatalf("Migrate with empty FS should not error, got: %v", err)
		}
	})

	t.Run("embedded schema applies cleanly", func(t *testing.T) {
		ss := newStore(t)
		if err := ss.Migrate(ctx, SQLiteMigrations()); err != nil {
			t.Fatalf("Migrate(SQLiteMigrations): %v", err)
		}
		for _, table := range []string{"users", "login_events"} {
			if !tableExists(t, ss, table) {
				t.Errorf("expected table %s after migrations", table)
			}
		}
	})
}
