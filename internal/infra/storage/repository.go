// Package storage provides the persistence layer for the tower server.
// The engine only sees the small interfaces it declares (BlobStore, EventPersister);
// the sqlite and bolt implementations live here.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// StoredEvent is the persisted form of an events.GameEvent. The payload is kept as the
// JSON it was written with.
type StoredEvent struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Seq       int64           `json:"seq" db:"seq"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	SimTime   float64         `json:"sim_time" db:"sim_time"`
	Tick      int64           `json:"tick" db:"tick"`
	EventType string          `json:"event_type" db:"event_type"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	TargetID  string          `json:"target_id" db:"target_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	GameDay   int             `json:"game_day" db:"game_day"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetBySession retrieves all events of a session in sequence order (for replay).
	GetBySession(ctx context.Context, sessionID string) ([]StoredEvent, error)

	// GetSince retrieves the events of a session after seq.
	GetSince(ctx context.Context, sessionID string, seq int64) ([]StoredEvent, error)

	// GetByActor retrieves all events performed by a passenger, disaster or player.
	GetByActor(ctx context.Context, sessionID, actorID string) ([]StoredEvent, error)

	// GetByType retrieves all events of a specific type.
	GetByType(ctx context.Context, sessionID, eventType string) ([]StoredEvent, error)
}

// ScoreEntry is one finished (or autosaved) session on the leaderboard.
type ScoreEntry struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	Name       string    `json:"name" db:"name"`
	Score      int       `json:"score" db:"score"`
	Delivered  int       `json:"delivered" db:"delivered"`
	Difficulty string    `json:"difficulty" db:"difficulty"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// Leaderboard keeps the best score of every session.
type Leaderboard interface {
	// Submit records entry, keeping the higher score when the session is already listed.
	Submit(ctx context.Context, entry ScoreEntry) error

	// Top returns the n best sessions, highest score first.
	Top(ctx context.Context, n int) ([]ScoreEntry, error)
}
