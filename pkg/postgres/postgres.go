// Package postgres provides a magma.Store backed by a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoobzio/magma"
)

// Store upserts one row per flow. When a channel is configured, the flow
// id is sent with pg_notify in the same transaction as the write, so
// LISTEN clients see only committed artifacts.
//
// Table layout (see EnsureTable):
//
//	CREATE TABLE artifacts (
//	    id        BIGINT PRIMARY KEY,
//	    route     TEXT NOT NULL,
//	    mime_type TEXT NOT NULL,
//	    encoding  TEXT NOT NULL,
//	    data      BYTEA NOT NULL,
//	    modified  TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	pool    *pgxpool.Pool
	table   string
	channel string
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the table name.
// Defaults to "artifacts".
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

// WithChannel notifies channel with the flow id after each save.
func WithChannel(channel string) Option {
	return func(s *Store) {
		s.channel = channel
	}
}

// New creates a Store using pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:  pool,
		table: "artifacts",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ magma.Store  = (*Store)(nil)
	_ magma.Loader = (*Store)(nil)
)

// EnsureTable creates the artifact table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        BIGINT PRIMARY KEY,
			route     TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			encoding  TEXT NOT NULL,
			data      BYTEA NOT NULL,
			modified  TIMESTAMPTZ NOT NULL
		)`, s.ident()))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Save upserts the artifact row.
func (s *Store) Save(ctx context.Context, artifact magma.Artifact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := fmt.Sprintf(`
		INSERT INTO %s (id, route, mime_type, encoding, data, modified)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			route = EXCLUDED.route,
			mime_type = EXCLUDED.mime_type,
			encoding = EXCLUDED.encoding,
			data = EXCLUDED.data,
			modified = EXCLUDED.modified`, s.ident())

	_, err = tx.Exec(ctx, query,
		int64(artifact.ID), artifact.Route, artifact.MIMEType,
		artifact.Encoding, artifact.Data, artifact.Modified)
	if err != nil {
		return fmt.Errorf("failed to save flow %d: %w", artifact.ID, err)
	}

	if s.channel != "" {
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", s.channel, artifact.Key()); err != nil {
			return fmt.Errorf("failed to notify %s: %w", s.channel, err)
		}
	}

	return tx.Commit(ctx)
}

// Load reads the artifact row for id.
func (s *Store) Load(ctx context.Context, id magma.FlowID) (magma.Artifact, error) {
	query := fmt.Sprintf(
		"SELECT route, mime_type, encoding, data, modified FROM %s WHERE id = $1", s.ident())

	artifact := magma.Artifact{ID: id}
	err := s.pool.QueryRow(ctx, query, int64(id)).Scan(
		&artifact.Route, &artifact.MIMEType, &artifact.Encoding,
		&artifact.Data, &artifact.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return magma.Artifact{}, fmt.Errorf("flow %d: %w", id, magma.ErrNotFound)
	}
	if err != nil {
		return magma.Artifact{}, fmt.Errorf("failed to load flow %d: %w", id, err)
	}
	return artifact, nil
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}
