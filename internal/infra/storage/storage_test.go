package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
)

func openTestDB(t *testing.T) *SQLiteEventRepository {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "nested", "tower.db"))
	if err != nil {
		t.Fatalf("InitSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db)
}

type blobStore interface {
	SaveBlob(ctx context.Context, version int, payload []byte) error
	LoadBlob(ctx context.Context) (int, []byte, error)
}

func exerciseBlobStore(t *testing.T, s blobStore) {
	t.Helper()
	ctx := context.Background()

	if _, _, err := s.LoadBlob(ctx); !errors.Is(err, simerr.ErrNotFound) {
		t.Fatalf("empty store = %v, want ErrNotFound", err)
	}
	if err := s.SaveBlob(ctx, 1, []byte(`{"tick":1}`)); err != nil {
		t.Fatalf("SaveBlob: %v", err)
	}
	if err := s.SaveBlob(ctx, 2, []byte(`{"tick":2}`)); err != nil {
		t.Fatalf("SaveBlob again: %v", err)
	}
	version, payload, err := s.LoadBlob(ctx)
	if err != nil {
		t.Fatalf("LoadBlob: %v", err)
	}
	if version != 2 || string(payload) != `{"tick":2}` {
		t.Errorf("loaded v%d %s, want the last save", version, payload)
	}
}

func TestSQLiteSessionStore(t *testing.T) {
	repo := openTestDB(t)
	exerciseBlobStore(t, NewSQLiteSessionStore(repo.db, ""))
}

func TestBoltSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tower.bolt")
	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	exerciseBlobStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// survives a reopen
	s, err = OpenBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if v, _, err := s.LoadBlob(context.Background()); err != nil || v != 2 {
		t.Errorf("after reopen: v%d, %v", v, err)
	}
}

func TestEventSinkAndRecap(t *testing.T) {
	repo := openTestDB(t)
	log := events.NewEventLog(NewEventSink(repo, "s1"))

	add := func(typ events.EventType, actor, target string, payload interface{}) {
		log.Append(events.GameEvent{
			ID: events.GenerateEventID(), Timestamp: time.Now(), Type: typ,
			ActorID: actor, TargetID: target, Payload: payload, GameDay: 1,
		})
	}
	add(events.EventTypePassengerSpawned, "passenger-1", "floor-3", nil)
	add(events.EventTypeFloorReached, "elevator", "floor-3", 3)
	add(events.EventTypePassengerDelivered, "passenger-1", "floor-9",
		events.DeliveryPayload{PassengerType: "VIP", Origin: 3, Destination: 9, Theme: "neutral"})
	add(events.EventTypeDisasterTriggered, "d1", "flood", events.DisasterPayload{Kind: "FLOOD", Severity: 2})
	add(events.EventTypeRobotsEscaped, "uprising", "floor-0", 3)
	add(events.EventTypePassengerAbandoned, "passenger-2", "floor-0",
		events.AbandonPayload{PassengerType: "REGULAR", Floor: 0, Trampling: true, Cause: "patience"})
	add(events.EventTypeDisasterResolved, "d1", "flood", events.DisasterPayload{Kind: "FLOOD", Severity: 2, Forced: true})
	log.Close() // flush the writer

	ctx := context.Background()
	stored, err := repo.GetBySession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 7 {
		t.Fatalf("stored %d events, want 7", len(stored))
	}
	for i, e := range stored {
		if e.Seq != int64(i+1) {
			t.Errorf("event %d has seq %d", i, e.Seq)
		}
	}
	if since, _ := repo.GetSince(ctx, "s1", 5); len(since) != 2 {
		t.Errorf("GetSince(5) = %d events", len(since))
	}
	if mine, _ := repo.GetByActor(ctx, "s1", "passenger-1"); len(mine) != 2 {
		t.Errorf("GetByActor = %d events", len(mine))
	}
	if other, _ := repo.GetBySession(ctx, "s2"); len(other) != 0 {
		t.Errorf("sessions leak into each other")
	}

	r := NewReconstructor(repo)
	totals, err := r.RebuildTotals(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	want := SessionTotals{Spawned: 1, Delivered: 1, Abandoned: 1, Trampled: 1, Triggered: 1,
		Resolved: 1, ForcedResolutions: 1, RobotsEscaped: 3, LastSeq: 7}
	if *totals != want {
		t.Errorf("totals = %+v, want %+v", *totals, want)
	}

	recap, err := r.GenerateRecap(ctx, "s1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recap) != 5 {
		t.Fatalf("recap has %d entries, want 5 (spawn and arrival skipped)", len(recap))
	}
	if recap[0].Summary != "A vip passenger rode from floor 3 to 9." || recap[0].Impact != "POSITIVE" {
		t.Errorf("first entry = %+v", recap[0])
	}
	if recap[1].Summary != "Flood struck the tower." || recap[4].Impact != "POSITIVE" {
		t.Errorf("recap = %+v", recap)
	}
	if late, _ := r.GenerateRecap(ctx, "s1", 2); len(late) != 0 {
		t.Errorf("day filter ignored")
	}
}

func TestLeaderboardKeepsBestScore(t *testing.T) {
	repo := openTestDB(t)
	lb := NewSQLiteLeaderboard(repo.db)
	ctx := context.Background()

	entries := []ScoreEntry{
		{SessionID: "a", Name: "ada", Score: 120, Difficulty: "normal"},
		{SessionID: "b", Name: "bob", Score: 300, Difficulty: "hard"},
		{SessionID: "a", Name: "ada", Score: 90, Difficulty: "normal"}, // worse, ignored
		{SessionID: "c", Name: "cy", Score: 200, Difficulty: "easy"},
		{SessionID: "c", Name: "cy", Score: 450, Difficulty: "easy"}, // better, kept
	}
	for _, e := range entries {
		if err := lb.Submit(ctx, e); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	top, err := lb.Top(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].SessionID != "c" || top[0].Score != 450 || top[1].SessionID != "b" {
		t.Errorf("top 2 = %+v", top)
	}

	all, _ := lb.Top(ctx, 0)
	if len(all) != 3 || all[2].Score != 120 {
		t.Errorf("full board = %+v", all)
	}
}
