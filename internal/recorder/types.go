package recorder

import (
	"context"
	"strings"
	"time"
)

// StreamRecord stores one stream lifecycle event or emitted item.
type StreamRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Event     string    `json:"event"`
	StableKey string    `json:"stable_key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists stream records. A second record with the same
// (session_id, stable_key) overwrites rather than duplicates.
type Store interface {
	SaveEvent(ctx context.Context, rec StreamRecord) error
	Close() error
}

// Keyed payloads supply their own deduplication key.
type Keyed interface {
	StableKey() string
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
