package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

type memBlob struct {
	version int
	payload []byte
}

func (m *memBlob) SaveBlob(_ context.Context, version int, payload []byte) error {
	m.version = version
	m.payload = append([]byte(nil), payload...)
	return nil
}

func (m *memBlob) LoadBlob(context.Context) (int, []byte, error) {
	if m.payload == nil {
		return 0, nil, simerr.New(simerr.CodeNotFound, "memBlob.LoadBlob", "nothing saved")
	}
	return m.version, m.payload, nil
}

// busyEngine runs a frontier tower with traffic and a flood in progress.
func busyEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Config{Layout: floor.FrontierTower(), Seed: 3, Triggers: []Trigger{}},
		events.NewEventLog(nil), logger.NewWriterLogger(io.Discard))
	if _, err := e.SpawnPassenger(passenger.Passenger{Origin: 0, Destination: 4, Patience: 500}); err != nil {
		t.Fatal(err)
	}
	submit(t, e, Input{Action: ActionToggleDoors})
	submit(t, e, Input{Action: ActionTriggerDebug, Kind: disaster.KindFlood})
	submit(t, e, Input{Action: ActionTriggerDebug, Kind: disaster.KindEarthquake})
	for range 90 {
		e.Tick(0.1)
	}
	e.balance.Adjust(12.5, 33)
	return e
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSessionRoundTrip(t *testing.T) {
	src := busyEngine(t)
	saved, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(saved.ActiveDisasters) == 0 || len(saved.Passengers) == 0 {
		t.Fatalf("nothing interesting to save: %d disasters, %d passengers", len(saved.ActiveDisasters), len(saved.Passengers))
	}

	store := NewSessionStore(&memBlob{})
	ctx := context.Background()
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dst := NewEngine(Config{Seed: 11}, events.NewEventLog(nil), logger.NewWriterLogger(io.Discard))
	if err := dst.Restore(loaded); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	again, err := dst.Export()
	if err != nil {
		t.Fatal(err)
	}

	checks := map[string][2]any{
		"floors":     {saved.Floors, again.Floors},
		"elevator":   {saved.Elevator, again.Elevator},
		"passengers": {saved.Passengers, again.Passengers},
		"disasters":  {saved.ActiveDisasters, again.ActiveDisasters},
		"chaos":      {saved.Chaos, again.Chaos},
		"harmony":    {saved.Harmony, again.Harmony},
		"score":      {saved.Score, again.Score},
		"clock":      {saved.Clock, again.Clock},
	}
	for name, pair := range checks {
		if a, b := mustJSON(t, pair[0]), mustJSON(t, pair[1]); a != b {
			t.Errorf("%s differs after round trip:\n saved %s\n again %s", name, a, b)
		}
	}

	if fmt.Sprint(saved.EventHistory) != fmt.Sprint(again.EventHistory) {
		t.Errorf("history differs: %v vs %v", saved.EventHistory, again.EventHistory)
	}

	// the restored session keeps running
	dst.Tick(0.1)
}

func TestExportIsDetached(t *testing.T) {
	e := busyEngine(t)
	st, err := e.Export()
	if err != nil {
		t.Fatal(err)
	}
	st.Floors[0].Waiting = append(st.Floors[0].Waiting, 999)
	st.Passengers[0].Patience = -1
	if w := e.floors.Waiting(0); len(w) > 0 && w[len(w)-1] == 999 {
		t.Errorf("export shares the waiting queue")
	}
	if p, ok := e.passengers.Get(st.Passengers[0].ID); ok && p.Patience == -1 {
		t.Errorf("export shares passenger rows")
	}
}

func TestLoadRejectsOtherVersions(t *testing.T) {
	blob := &memBlob{}
	store := NewSessionStore(blob)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("empty store = %v, want ErrNotFound", err)
	}

	st, _ := busyEngine(t).Export()
	st.Version = SessionVersion + 1
	if err := store.Save(ctx, st); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, simerr.ErrIncompatibleVersion) {
		t.Errorf("Load = %v, want ErrIncompatibleVersion", err)
	}
}

func TestRestoreFailureLeavesSessionUntouched(t *testing.T) {
	e := busyEngine(t)
	before, _ := e.Export()

	bad := before
	bad.Version = SessionVersion + 1
	if err := e.Restore(bad); !errors.Is(err, simerr.ErrIncompatibleVersion) {
		t.Errorf("Restore(newer) = %v", err)
	}

	bad = before
	bad.Floors = bad.Floors[:3]
	if err := e.Restore(bad); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("Restore(short building) = %v", err)
	}

	bad = before
	bad.ActiveDisasters = append(append([]disaster.Record(nil), before.ActiveDisasters...), before.ActiveDisasters...)
	hasFlood := false
	for _, rec := range before.ActiveDisasters {
		hasFlood = hasFlood || rec.Kind == disaster.KindFlood
	}
	if hasFlood {
		if err := e.Restore(bad); !errors.Is(err, simerr.ErrInvalidState) {
			t.Errorf("Restore(two floods) = %v", err)
		}
	}

	after, _ := e.Export()
	if mustJSON(t, before.Floors) != mustJSON(t, after.Floors) || before.Chaos != after.Chaos {
		t.Errorf("failed restore changed the running session")
	}
}

func TestRestoreContinuesTheRandomStream(t *testing.T) {
	quiet := logger.NewWriterLogger(io.Discard)
	cfg := Config{Layout: floor.Uniform(10), Seed: 21, Triggers: []Trigger{}}
	src := NewEngine(cfg, events.NewEventLog(nil), quiet)
	for range 40 {
		src.Tick(0.5)
	}
	src.world.Mods.TramplingRisk = true
	src.world.Mods.PatienceDrain[2] = 3
	saved, err := src.Export()
	if err != nil {
		t.Fatal(err)
	}

	cfg.Seed = 99
	dst := NewEngine(cfg, events.NewEventLog(nil), quiet)
	if err := dst.Restore(saved); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if dst.spawner.timer != src.spawner.timer {
		t.Errorf("spawn timer %.3f, saved %.3f", dst.spawner.timer, src.spawner.timer)
	}
	if m := dst.world.Mods; !m.TramplingRisk || m.Drain(2) != 3 {
		t.Errorf("modifiers not restored: %+v", m)
	}
	if dst.world.Mods == src.world.Mods {
		t.Errorf("restored modifiers share memory with the saved session")
	}

	// both sessions draw the same passengers from here on
	for i := range 100 {
		a, b := src.Tick(0.5), dst.Tick(0.5)
		if x, y := mustJSON(t, a.Passengers), mustJSON(t, b.Passengers); x != y {
			t.Fatalf("tick %d: sessions diverged:\n original %s\n restored %s", i, x, y)
		}
	}
}
