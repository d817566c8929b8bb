package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
)

// SessionVersion is bumped whenever SessionState changes shape.
const SessionVersion = 2

// SessionState is everything needed to resume a session.
type SessionState struct {
	Version         int                   `json:"version"`
	SavedAt         int64                 `json:"saved_at"` // unix millis
	Difficulty      string                `json:"difficulty"`
	Layout          floor.Layout          `json:"layout"`
	Floors          []floor.Floor         `json:"floors"`
	Elevator        elevator.State        `json:"elevator"`
	Passengers      []passenger.Passenger `json:"passengers"`
	NextPassengerID int                   `json:"next_passenger_id"`
	ActiveDisasters []disaster.Record     `json:"active_disasters"`
	Chaos           float64               `json:"chaos"`
	Harmony         float64               `json:"harmony"`
	Score           ScoreState            `json:"score"`
	EventHistory    map[string]float64    `json:"event_history"`
	Clock           Clock                 `json:"clock"`
	Tick            int64                 `json:"tick"`
	Paused          bool                  `json:"paused"`

	// what the next tick inherits from the last one
	RNG        []byte              `json:"rng"` // PCG state
	SpawnTimer float64             `json:"spawn_timer"`
	Mods       *disaster.Modifiers `json:"mods"`
}

// PersistenceStore saves and loads whole sessions.
type PersistenceStore interface {
	Save(ctx context.Context, st SessionState) error
	Load(ctx context.Context) (SessionState, error)
}

// BlobStore keeps one versioned blob. The sqlite and bolt stores implement it.
type BlobStore interface {
	SaveBlob(ctx context.Context, version int, payload []byte) error
	// LoadBlob fails with simerr.ErrNotFound when nothing was saved yet.
	LoadBlob(ctx context.Context) (int, []byte, error)
}

// SessionStore turns a BlobStore into a PersistenceStore using JSON.
type SessionStore struct {
	blob BlobStore
}

// NewSessionStore wraps blob.
func NewSessionStore(blob BlobStore) *SessionStore {
	return &SessionStore{blob: blob}
}

// Save writes st as the current session.
func (s *SessionStore) Save(ctx context.Context, st SessionState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.blob.SaveBlob(ctx, st.Version, payload); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load reads the current session. A blob written by another version is refused
// before it is decoded.
func (s *SessionStore) Load(ctx context.Context) (SessionState, error) {
	const op = "session.Load"
	version, payload, err := s.blob.LoadBlob(ctx)
	if err != nil {
		return SessionState{}, err
	}
	if version != SessionVersion {
		return SessionState{}, simerr.New(simerr.CodeIncompatibleVersion, op, "blob version %d, want %d", version, SessionVersion)
	}
	var st SessionState
	if err := json.Unmarshal(payload, &st); err != nil {
		return SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	if st.Version != SessionVersion {
		return SessionState{}, simerr.New(simerr.CodeIncompatibleVersion, op, "session version %d, want %d", st.Version, SessionVersion)
	}
	return st, nil
}

// Export captures the session. The result shares no memory with the engine.
func (e *Engine) Export() (SessionState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := SessionState{
		Version:         SessionVersion,
		Difficulty:      e.cfg.Difficulty.Name,
		Layout:          e.floors.Layout(),
		Floors:          e.floors.Floors(),
		Elevator:        e.elevator.State(),
		Passengers:      e.passengers.All(),
		NextPassengerID: e.passengers.NextID(),
		Chaos:           e.balance.Chaos(),
		Harmony:         e.balance.Harmony(),
		Score:           e.scoring.State(),
		EventHistory:    e.scheduler.History(),
		Clock:           e.clock,
		Tick:            e.tick,
		Paused:          e.paused,
		SpawnTimer:      e.spawner.timer,
		Mods:            e.world.Mods,
	}
	rng, err := e.src.MarshalBinary()
	if err != nil {
		return SessionState{}, fmt.Errorf("save rng: %w", err)
	}
	st.RNG = rng
	for _, d := range e.scheduler.Active() {
		rec, err := disaster.Encode(d)
		if err != nil {
			return SessionState{}, err
		}
		st.ActiveDisasters = append(st.ActiveDisasters, rec)
	}

	var out SessionState
	if err := deepcopy.Copy(&out, &st); err != nil {
		return SessionState{}, fmt.Errorf("detach session: %w", err)
	}
	out.SavedAt = time.Now().UnixMilli()
	return out, nil
}

// Restore replaces the running session with st. Everything is validated and rebuilt
// on the side first; on any error the running session is untouched.
func (e *Engine) Restore(st SessionState) error {
	const op = "engine.Restore"
	if st.Version != SessionVersion {
		return simerr.New(simerr.CodeIncompatibleVersion, op, "session version %d, want %d", st.Version, SessionVersion)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg
	if len(st.Layout.Floors) > 0 {
		cfg.Layout = st.Layout
	}
	if d, err := config.DifficultyByName(st.Difficulty); err == nil && st.Difficulty != "" {
		cfg.Difficulty = d
	}
	if len(cfg.Layout.Floors) != e.cfg.Elevator.Floors {
		cfg.Elevator = elevator.Config{StartFloor: cfg.Elevator.StartFloor}
	}
	cfg = cfg.withDefaults()
	if err := cfg.Layout.Validate(); err != nil {
		return simerr.Wrap(simerr.CodeInvalidState, op, err)
	}

	fresh := &Engine{eventLog: e.eventLog, logger: e.logger, cfg: cfg}
	fresh.build()

	if !fresh.floors.Load(st.Floors) {
		return simerr.New(simerr.CodeInvalidState, op, "%d floors saved, building has %d", len(st.Floors), fresh.floors.Len())
	}
	fresh.passengers.Load(st.Passengers, st.NextPassengerID)
	if err := checkRiders(st, cfg.Elevator); err != nil {
		return simerr.Wrap(simerr.CodeInvalidState, op, err)
	}
	fresh.elevator.Load(st.Elevator)

	active := make([]disaster.Disaster, 0, len(st.ActiveDisasters))
	unresolved := make(map[disaster.Kind]bool)
	for _, rec := range st.ActiveDisasters {
		d, err := disaster.Decode(rec)
		if err != nil {
			return simerr.Wrap(simerr.CodeInvalidState, op, err)
		}
		m := d.Meta()
		if !m.Kind.Stackable() && !d.IsResolved() {
			if unresolved[m.Kind] {
				return simerr.New(simerr.CodeInvalidState, op, "two unresolved %s disasters", m.Kind)
			}
			unresolved[m.Kind] = true
		}
		active = append(active, d)
	}
	fresh.scheduler.Load(active, st.EventHistory)
	fresh.balance.Load(st.Chaos, st.Harmony)
	fresh.scoring.Load(st.Score)
	if len(st.RNG) > 0 {
		if err := fresh.src.UnmarshalBinary(st.RNG); err != nil {
			return simerr.Wrap(simerr.CodeInvalidState, op, fmt.Errorf("rng state: %w", err))
		}
	}
	fresh.spawner.timer = max(0, st.SpawnTimer)
	if st.Mods != nil {
		fresh.world.Mods = st.Mods.Clone()
	}

	e.cfg = cfg
	e.floors = fresh.floors
	e.passengers = fresh.passengers
	e.elevator = fresh.elevator
	e.src = fresh.src
	e.rng = fresh.rng
	e.world = fresh.world
	e.world.Hooks = engineHooks{e}
	e.spawner = fresh.spawner
	e.scheduler = fresh.scheduler
	e.balance = fresh.balance
	e.scoring = fresh.scoring
	e.assets = fresh.assets
	e.clock = st.Clock
	if e.clock.StartHour == 0 && e.clock.Elapsed == 0 {
		e.clock = NewClock()
	}
	e.tick = st.Tick
	e.paused = st.Paused
	e.resolverPending = false

	e.eventLog.Append(e.tickInfo().event(events.EventTypeSessionRestored, "system", "",
		fmt.Sprintf("%d passengers, %d disasters", len(st.Passengers), len(active))))
	e.logger.Infof("Session restored at %s with score %d", e.clock, st.Score.Total)
	e.publish()
	return nil
}

// checkRiders makes sure every rider exists and the car is within capacity.
func checkRiders(st SessionState, car elevator.Config) error {
	known := make(map[int]passenger.Passenger, len(st.Passengers))
	for _, p := range st.Passengers {
		known[p.ID] = p
	}
	load := 0
	for _, id := range st.Elevator.Riders {
		p, ok := known[id]
		if !ok {
			return fmt.Errorf("rider %d is not a known passenger", id)
		}
		if p.State != passenger.StateBoarding && p.State != passenger.StateRiding {
			return fmt.Errorf("rider %d is %s", id, p.State)
		}
		load += p.Weight
	}
	if len(st.Elevator.Riders) > car.CapacityCount || load > car.CapacityWeight {
		return fmt.Errorf("%d riders and %d kg exceed the car", len(st.Elevator.Riders), load)
	}
	return nil
}
