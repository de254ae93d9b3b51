// sqlite.go -- modernc.org/sqlite backend.
//
// Single-node deployments and tests. Timestamps are stored as unix microseconds.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	_ "modernc.org/sqlite"
)

const sqliteUpsertUser = `
INSERT INTO users (id, username, discriminator, avatar, email,
	access_token, refresh_token, token_expires_in, token_type, scope,
	first_login, last_login, login_count, login_ip)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?11, 1, ?12)
ON CONFLICT (id) DO UPDATE SET
	username         = excluded.username,
	discriminator    = excluded.discriminator,
	avatar           = excluded.avatar,
	email            = excluded.email,
	access_token     = excluded.access_token,
	refresh_token    = excluded.refresh_token,
	token_expires_in = excluded.token_expires_in,
	token_type       = excluded.token_type,
	scope            = excluded.scope,
	last_login       = MAX(users.last_login, excluded.last_login),
	login_count      = users.login_count + 1,
	login_ip         = excluded.login_ip
RETURNING ` + userColumns

// SQLiteStore is a user store backed by a SQLite file or in-memory database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (a file path or ":memory:") and verifies the connection.
// Migrations are not applied; call Migrate.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate applies pending migrations from migrationsFS.
func (s *SQLiteStore) Migrate(ctx context.Context, migrationsFS fs.FS) error {
	return migrate(ctx, migrationsFS, s)
}

// CheckHealth pings SQLite.
func (s *SQLiteStore) CheckHealth(ctx context.Context) error {
	return unavailable("ping", s.db.PingContext(ctx))
}

// UpsertUser inserts or updates the user row and appends a login event in one transaction.
func (s *SQLiteStore) UpsertUser(ctx context.Context, in UserUpsert) (*UserRecord, error) {
	at := loginTime(in.At)
	event, err := newLoginEvent(in, at)
	if err != nil {
		return nil, unavailable("upsert user", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("upsert user", err)
	}
	defer tx.Rollback()

	rec, err := scanSQLiteUser(tx.QueryRowContext(ctx, sqliteUpsertUser,
		in.ID, in.Username, in.Discriminator, in.Avatar, in.Email,
		in.AccessToken, in.RefreshToken, in.TokenExpiresIn, in.TokenType, in.Scope,
		at.UnixMicro(), in.LoginIP))
	if err != nil {
		return nil, unavailable("upsert user", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO login_events (id, user_id, ip, logged_in_at) VALUES (?, ?, ?, ?)",
		event.ID.String(), event.UserID, event.IP, at.UnixMicro()); err != nil {
		return nil, unavailable("record login event", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("upsert user", err)
	}
	return rec, nil
}

// ListUsers returns every user ordered by last_login descending.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY last_login DESC, id")
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	users := []UserRecord{}
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, unavailable("list users", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list users", err)
	}
	return users, nil
}

// ListLogins returns up to limit login events for userID, newest first.
func (s *SQLiteStore) ListLogins(ctx context.Context, userID string, limit int) ([]LoginEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, ip, logged_in_at FROM login_events
		WHERE user_id = ?
		ORDER BY logged_in_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, unavailable("list logins", err)
	}
	defer rows.Close()

	events := []LoginEvent{}
	for rows.Next() {
		var (
			e     LoginEvent
			id    string
			micro int64
		)
		if err := rows.Scan(&id, &e.UserID, &e.IP, &micro); err != nil {
			return nil, unavailable("list logins", err)
		}
		if e.ID, err = uuid.FromString(id); err != nil {
			return nil, unavailable("list logins", err)
		}
		e.LoggedInAt = time.UnixMicro(micro).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list logins", err)
	}
	return events, nil
}

// scanSQLiteUser reads one row in userColumns order, converting unix-micro timestamps.
func scanSQLiteUser(row interface{ Scan(...any) error }) (*UserRecord, error) {
	var (
		u                     UserRecord
		firstMicro, lastMicro int64
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Discriminator, &u.Avatar, &u.Email,
		&u.AccessToken, &u.RefreshToken, &u.TokenExpiresIn, &u.TokenType, &u.Scope,
		&firstMicro, &lastMicro, &u.LoginCount, &u.LoginIP,
	); err != nil {
		return nil, err
	}
	u.FirstLogin = time.UnixMicro(firstMicro).UTC()
	u.LastLogin = time.UnixMicro(lastMicro).UTC()
	return &u, nil
}

func (s *SQLiteStore) ensureMigrationTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	return err
}

func (s *SQLiteStore) migrationApplied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version,
	).Scan(&exists)
	return exists, err
}

func (s *SQLiteStore) applyMigration(ctx context.Context, version, sqlText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("executing: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now().Unix()); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	return tx.Commit()
}
