package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists stream records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			stable_key TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stream_records_session_key
			ON stream_records (session_id, stable_key) WHERE stable_key <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_stream_records_session_created
			ON stream_records (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveEvent(ctx context.Context, rec StreamRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if rec.StableKey == "" {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO stream_records (id, session_id, event, stable_key, payload, created_at)
			 VALUES ($1, $2, $3, '', $4, $5)`,
			rec.ID, rec.SessionID, rec.Event, rec.Payload, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save stream event: %w", err)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO stream_records (id, session_id, event, stable_key, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, stable_key) WHERE stable_key <> ''
		 DO UPDATE SET event = EXCLUDED.event, payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		rec.ID, rec.SessionID, rec.Event, rec.StableKey, rec.Payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stream item: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
