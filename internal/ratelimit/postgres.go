package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLimiter persists fixed-window counters in PostgreSQL, so limits
// hold across instances.
type PostgresLimiter struct {
	pool   *pgxpool.Pool
	limit  int
	window time.Duration
}

func NewPostgresLimiter(ctx context.Context, databaseURL string, limit int, window time.Duration) (*PostgresLimiter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS search_rate_limits (
		user_id TEXT PRIMARY KEY,
		window_start TIMESTAMPTZ NOT NULL,
		count INTEGER NOT NULL
	);`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init rate limit schema: %w", err)
	}

	return &PostgresLimiter{pool: pool, limit: limit, window: window}, nil
}

func (l *PostgresLimiter) Allow(ctx context.Context, userID string) (State, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)

	var windowStart time.Time
	var count int
	err := l.pool.QueryRow(ctx,
		`INSERT INTO search_rate_limits (user_id, window_start, count) VALUES ($1, $2, 1)
		 ON CONFLICT (user_id) DO UPDATE SET
			count = CASE WHEN search_rate_limits.window_start <= $3 THEN 1 ELSE search_rate_limits.count + 1 END,
			window_start = CASE WHEN search_rate_limits.window_start <= $3 THEN $2 ELSE search_rate_limits.window_start END
		 RETURNING window_start, count`,
		userID, now, cutoff,
	).Scan(&windowStart, &count)
	if err != nil {
		return State{}, fmt.Errorf("rate limit lookup: %w", err)
	}

	return l.state(windowStart, count), nil
}

func (l *PostgresLimiter) state(windowStart time.Time, count int) State {
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return State{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetTime: windowStart.Add(l.window),
	}
}

func (l *PostgresLimiter) Close() error {
	l.pool.Close()
	return nil
}
