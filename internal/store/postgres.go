// Package store handles all user persistence.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userColumns is the shared SELECT/RETURNING list; scan order must match scanPostgresUser.
const userColumns = `id, username, discriminator, avatar, email,
	access_token, refresh_token, token_expires_in, token_type, scope,
	first_login, last_login, login_count, login_ip`

// Single statement: the row lock taken by ON CONFLICT serializes concurrent logins
// for the same id, so login_count can't lose increments.
const pgUpsertUser = `
INSERT INTO users (id, username, discriminator, avatar, email,
	access_token, refresh_token, token_expires_in, token_type, scope,
	first_login, last_login, login_count, login_ip)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, 1, $12)
ON CONFLICT (id) DO UPDATE SET
	username         = EXCLUDED.username,
	discriminator    = EXCLUDED.discriminator,
	avatar           = EXCLUDED.avatar,
	email            = EXCLUDED.email,
	access_token     = EXCLUDED.access_token,
	refresh_token    = EXCLUDED.refresh_token,
	token_expires_in = EXCLUDED.token_expires_in,
	token_type       = EXCLUDED.token_type,
	scope            = EXCLUDED.scope,
	last_login       = GREATEST(users.last_login, EXCLUDED.last_login),
	login_count      = users.login_count + 1,
	login_ip         = EXCLUDED.login_ip
RETURNING ` + userColumns

// PostgresStore is the store used to connect with a Postgres db.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool to PostgreSQL
// wrapped in a store. Call once at startup; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies pending migrations from migrationsFS.
func (s *PostgresStore) Migrate(ctx context.Context, migrationsFS fs.FS) error {
	return migrate(ctx, migrationsFS, s)
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return unavailable("ping", s.pool.Ping(ctx))
}

// UpsertUser inserts or updates the user row and appends a login event in one transaction.
func (s *PostgresStore) UpsertUser(ctx context.Context, in UserUpsert) (*UserRecord, error) {
	at := loginTime(in.At)
	event, err := newLoginEvent(in, at)
	if err != nil {
		return nil, unavailable("upsert user", err)
	}

	var rec *UserRecord
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, pgUpsertUser,
			in.ID, in.Username, in.Discriminator, in.Avatar, in.Email,
			in.AccessToken, in.RefreshToken, in.TokenExpiresIn, in.TokenType, in.Scope,
			at, in.LoginIP)
		r, err := scanPostgresUser(row)
		if err != nil {
			return fmt.Errorf("upserting user: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO login_events (id, user_id, ip, logged_in_at) VALUES ($1, $2, $3, $4)",
			event.ID, event.UserID, event.IP, event.LoggedInAt); err != nil {
			return fmt.Errorf("recording login event: %w", err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, unavailable("upsert user", err)
	}
	return rec, nil
}

// ListUsers returns every user ordered by last_login descending.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY last_login DESC, id")
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	users := []UserRecord{}
	for rows.Next() {
		u, err := scanPostgresUser(rows)
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
func (s *PostgresStore) ListLogins(ctx context.Context, userID string, limit int) ([]LoginEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, ip, logged_in_at FROM login_events
		WHERE user_id = $1
		ORDER BY logged_in_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, unavailable("list logins", err)
	}
	defer rows.Close()

	events := []LoginEvent{}
	for rows.Next() {
		var e LoginEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.IP, &e.LoggedInAt); err != nil {
			return nil, unavailable("list logins", err)
		}
		e.LoggedInAt = e.LoggedInAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list logins", err)
	}
	return events, nil
}

// scanPostgresUser reads one row in userColumns order.
func scanPostgresUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	if err := row.Scan(
		&u.ID, &u.Username, &u.Discriminator, &u.Avatar, &u.Email,
		&u.AccessToken, &u.RefreshToken, &u.TokenExpiresIn, &u.TokenType, &u.Scope,
		&u.FirstLogin, &u.LastLogin, &u.LoginCount, &u.LoginIP,
	); err != nil {
		return nil, err
	}
	u.FirstLogin = u.FirstLogin.UTC()
	u.LastLogin = u.LastLogin.UTC()
	return &u, nil
}

func (s *PostgresStore) ensureMigrationTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresStore) migrationApplied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) applyMigration(ctx context.Context, version, sql string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("executing: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("recording: %w", err)
		}
		return nil
	})
}
