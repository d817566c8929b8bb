package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payload := string(event.Payload)
	if payload == "" {
		payload = "null"
	}

	query := `
		INSERT INTO events (id, session_id, seq, timestamp, sim_time, tick, event_type, actor_id, target_id, payload, game_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Seq, event.Timestamp, event.SimTime, event.Tick,
		event.EventType, event.ActorID, event.TargetID, payload, event.GameDay,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const selectEvents = `SELECT id, session_id, seq, timestamp, sim_time, tick, event_type, actor_id, target_id, payload, game_day FROM events`

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload string
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.Seq, &e.Timestamp, &e.SimTime, &e.Tick,
			&e.EventType, &e.ActorID, &e.TargetID, &payload, &e.GameDay,
		)
		if err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE session_id = ? ORDER BY seq ASC`, sessionID)
}

func (r *SQLiteEventRepository) GetSince(ctx context.Context, sessionID string, seq int64) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE session_id = ? AND seq > ? ORDER BY seq ASC`, sessionID, seq)
}

func (r *SQLiteEventRepository) GetByActor(ctx context.Context, sessionID, actorID string) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE session_id = ? AND actor_id = ? ORDER BY seq ASC`, sessionID, actorID)
}

func (r *SQLiteEventRepository) GetByType(ctx context.Context, sessionID, eventType string) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE session_id = ? AND event_type = ? ORDER BY seq ASC`, sessionID, eventType)
}

// ---------------------------------------------------------
// EventSink
// ---------------------------------------------------------

// EventSink lets the in-memory event log write through to an EventRepository.
type EventSink struct {
	repo      EventRepository
	sessionID string
	timeout   time.Duration
}

// NewEventSink tags every event with sessionID.
func NewEventSink(repo EventRepository, sessionID string) *EventSink {
	return &EventSink{repo: repo, sessionID: sessionID, timeout: 5 * time.Second}
}

// Append implements events.EventPersister.
func (s *EventSink) Append(e events.GameEvent) error {
	start := time.Now()
	err := s.append(e)
	metrics.Get().RecordEventWrite(time.Since(start), err)
	return err
}

func (s *EventSink) append(e events.GameEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.repo.Append(ctx, StoredEvent{
		ID:        e.ID,
		SessionID: s.sessionID,
		Seq:       e.Seq,
		Timestamp: e.Timestamp,
		SimTime:   e.SimTime,
		Tick:      e.Tick,
		EventType: string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Payload:   payload,
		GameDay:   e.GameDay,
	})
}

// ---------------------------------------------------------
// SQLiteSessionStore
// ---------------------------------------------------------

// SQLiteSessionStore keeps the saved session blob in one row of session_state.
type SQLiteSessionStore struct {
	db   *sql.DB
	slot string
}

func NewSQLiteSessionStore(db *sql.DB, slot string) *SQLiteSessionStore {
	if slot == "" {
		slot = "current"
	}
	return &SQLiteSessionStore{db: db, slot: slot}
}

func (s *SQLiteSessionStore) SaveBlob(ctx context.Context, version int, payload []byte) error {
	query := `
		INSERT INTO session_state (slot, version, payload, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			version=excluded.version,
			payload=excluded.payload,
			saved_at=excluded.saved_at
	`
	_, err := s.db.ExecContext(ctx, query, s.slot, version, payload, time.Now())
	metrics.Get().RecordSessionSave(err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) LoadBlob(ctx context.Context) (int, []byte, error) {
	var version int
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT version, payload FROM session_state WHERE slot = ?`, s.slot).
		Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, simerr.New(simerr.CodeNotFound, "sqlite.LoadBlob", "no session saved in slot %q", s.slot)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load session: %w", err)
	}
	return version, payload, nil
}

// ---------------------------------------------------------
// SQLiteLeaderboard
// ---------------------------------------------------------

type SQLiteLeaderboard struct {
	db *sql.DB
}

func NewSQLiteLeaderboard(db *sql.DB) *SQLiteLeaderboard {
	return &SQLiteLeaderboard{db: db}
}

func (l *SQLiteLeaderboard) Submit(ctx context.Context, entry ScoreEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	query := `
		INSERT INTO leaderboard (session_id, name, score, delivered, difficulty, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			name=excluded.name,
			score=excluded.score,
			delivered=excluded.delivered,
			difficulty=excluded.difficulty,
			recorded_at=excluded.recorded_at
		WHERE excluded.score > leaderboard.score
	`
	_, err := l.db.ExecContext(ctx, query,
		entry.SessionID, entry.Name, entry.Score, entry.Delivered, entry.Difficulty, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to submit score: %w", err)
	}
	return nil
}

func (l *SQLiteLeaderboard) Top(ctx context.Context, n int) ([]ScoreEntry, error) {
	if n <= 0 {
		n = 10
	}
	query := `SELECT session_id, name, score, delivered, difficulty, recorded_at FROM leaderboard ORDER BY score DESC, recorded_at ASC LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoreEntry
	for rows.Next() {
		var e ScoreEntry
		if err := rows.Scan(&e.SessionID, &e.Name, &e.Score, &e.Delivered, &e.Difficulty, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
