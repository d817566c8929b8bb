package engine

import (
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

func TestDrawRespectsCompatibility(t *testing.T) {
	e := NewEngine(Config{Layout: floor.FrontierTower(), Seed: 5, Triggers: []Trigger{}, DisableSpawning: true},
		events.NewEventLog(nil), logger.NewWriterLogger(io.Discard))
	s := e.spawner
	layout := e.floors.Layout()

	seen := make(map[passenger.Type]int)
	for i := range 4000 {
		origin := i % e.floors.Len()
		c := spawnConditions{TimeWeight: 1}
		if i%2 == 1 {
			c.Chaos, c.Unresolved = 80, true
		}
		p := s.draw(origin, c)
		seen[p.Type]++

		if p.Origin != origin || p.Destination == origin || !e.floors.Valid(p.Destination) {
			t.Fatalf("bad trip %d -> %d for %s", p.Origin, p.Destination, p.Type)
		}
		if p.Patience <= 0 {
			t.Fatalf("%s spawned without patience", p.Type)
		}
		switch p.Type {
		case passenger.TypeEvilRobot:
			if origin != layout.Basement || p.Destination <= layout.Basement || p.Destination > layout.Basement+publicLowerFloors {
				t.Fatalf("evil robot %d -> %d", origin, p.Destination)
			}
		case passenger.TypeGoodRobot:
			if p.Destination != layout.Robotics {
				t.Fatalf("good robot heading to %d", p.Destination)
			}
		case passenger.TypeResolver:
			if c.Chaos < resolverMinChaos || (p.Destination != layout.Roof && origin != layout.Roof) {
				t.Fatalf("resolver %d -> %d at chaos %.0f", origin, p.Destination, c.Chaos)
			}
		case passenger.TypeVIP:
			home := slices.IndexFunc(vipProfiles, func(v vipProfile) bool {
				return v.Name == p.Name && v.Home == layout.Floors[origin].Label
			})
			if home < 0 || p.Patience != vipPatience {
				t.Fatalf("vip %q does not live on floor %d", p.Name, origin)
			}
			want, _ := layout.IDForLabel(vipProfiles[home].Destinations[0])
			ok := false
			for _, l := range vipProfiles[home].Destinations {
				id, _ := layout.IDForLabel(l)
				ok = ok || id == p.Destination
			}
			if !ok {
				t.Fatalf("vip %s going to %d, favourites start at %d", p.Name, p.Destination, want)
			}
		}
	}
	for _, typ := range []passenger.Type{passenger.TypeRegular, passenger.TypeVIP, passenger.TypeGoodRobot, passenger.TypeEvilRobot, passenger.TypeResolver} {
		if seen[typ] == 0 {
			t.Errorf("never drew a %s in %v", typ, seen)
		}
	}
}

func TestSpawnInterval(t *testing.T) {
	s := newQuietEngine(t, 8, 0).spawner
	near := func(got, want float64) bool { return math.Abs(got-want) < 1e-9 }

	calm := s.Interval(spawnConditions{TimeWeight: 1})
	if !near(calm, 3) {
		t.Fatalf("calm interval = %.3f", calm)
	}
	if got := s.Interval(spawnConditions{Chaos: 50, TimeWeight: 1}); !near(got, 2) {
		t.Errorf("chaos 50 interval = %.3f", got)
	}
	if got := s.Interval(spawnConditions{Chaos: 100, TimeWeight: 1}); !near(got, minSpawnInterval) {
		t.Errorf("interval floor = %.3f", got)
	}
	if got := s.Interval(spawnConditions{Flow: true, TimeWeight: 1}); !near(got, 3/flowSpawnBonus) {
		t.Errorf("flow interval = %.3f", got)
	}

	mods := disaster.NewModifiers()
	mods.SpawnMultiplier = 2
	if got := s.Interval(spawnConditions{TimeWeight: 1.8, Mods: mods}); !near(got, 3/3.6) {
		t.Errorf("rush hour with a crowd = %.3f", got)
	}
}

func TestSpawnRejectsBadTrips(t *testing.T) {
	e := newQuietEngine(t, 6, 0)
	for _, p := range []passenger.Passenger{
		{Origin: 2, Destination: 2},
		{Origin: -1, Destination: 2},
		{Origin: 1, Destination: 6},
	} {
		if _, err := e.SpawnPassenger(p); err == nil {
			t.Errorf("spawned %d -> %d", p.Origin, p.Destination)
		}
	}

	e.floors.Apply(3, "test", floor.Overlay{Blocked: true})
	if _, err := e.SpawnPassenger(passenger.Passenger{Origin: 3, Destination: 1}); err == nil {
		t.Errorf("spawned on a closed floor")
	}

	p, err := e.SpawnPassenger(passenger.Passenger{Origin: 1, Destination: 4})
	if err != nil {
		t.Fatal(err)
	}
	if p.Type != passenger.TypeRegular || p.Patience != e.Difficulty().Patience || p.State != passenger.StateWaiting {
		t.Errorf("defaults not applied: %+v", p)
	}
}

func TestReleaseEscapedRobots(t *testing.T) {
	e := newQuietEngine(t, 12, 0)
	e.spawner.ReleaseEscaped(0, 3, e.tickInfo())

	robots := e.passengers.All()
	if len(robots) != 3 {
		t.Fatalf("released %d robots", len(robots))
	}
	for _, p := range robots {
		if p.Type != passenger.TypeEvilRobot || !p.Escaped || p.Origin != 0 || p.Patience != escapedPatience {
			t.Errorf("robot = %+v", p)
		}
		if p.Destination < 1 || p.Destination > publicLowerFloors {
			t.Errorf("robot heading to %d", p.Destination)
		}
	}
	escaped := e.EventLog().GetByType(events.EventTypeRobotsEscaped)
	if len(escaped) != 1 || escaped[0].Payload != 3 {
		t.Errorf("escape events = %+v", escaped)
	}
}

func TestEvacuateSkipsDestinationAndClosedFloors(t *testing.T) {
	e := newQuietEngine(t, 6, 0)
	toTwo, _ := e.SpawnPassenger(passenger.Passenger{Origin: 1, Destination: 2, Patience: 100})
	toFive, _ := e.SpawnPassenger(passenger.Passenger{Origin: 1, Destination: 5, Patience: 100})
	stuck, _ := e.SpawnPassenger(passenger.Passenger{Origin: 5, Destination: 0, Patience: 100})
	e.floors.Apply(3, "test", floor.Overlay{Blocked: true})

	ti := e.tickInfo()
	e.spawner.Evacuate(1, "flood", ti, false)
	e.spawner.Evacuate(5, "flood", ti, false)

	if got := e.floors.Waiting(2); !slices.Equal(got, []int{toFive.ID}) {
		t.Errorf("floor 2 queue = %v", got)
	}
	if got := e.floors.Waiting(4); !slices.Equal(got, []int{toTwo.ID}) {
		t.Errorf("floor 4 queue = %v", got)
	}
	if p, _ := e.passengers.Get(toTwo.ID); p.Origin != 4 {
		t.Errorf("origin not updated: %d", p.Origin)
	}

	if _, ok := e.passengers.Get(stuck.ID); ok {
		t.Errorf("passenger with no refuge still present")
	}
	gone := e.EventLog().GetByType(events.EventTypePassengerAbandoned)
	if len(gone) != 1 || gone[0].Payload.(events.AbandonPayload).Cause != "flood" {
		t.Errorf("abandon events = %+v", gone)
	}
	if n := len(e.EventLog().GetByType(events.EventTypePassengerEvacuated)); n != 2 {
		t.Errorf("%d evacuation events, want 2", n)
	}
}

func TestPatienceDrainsFasterOnHazardFloors(t *testing.T) {
	e := newQuietEngine(t, 6, 0)
	calm, _ := e.SpawnPassenger(passenger.Passenger{Origin: 1, Destination: 3, Patience: 10})
	scared, _ := e.SpawnPassenger(passenger.Passenger{Origin: 2, Destination: 3, Patience: 10})

	mods := disaster.NewModifiers()
	mods.PatienceDrain[2] = 3
	e.spawner.Tick(1, e.tickInfo(), spawnConditions{TimeWeight: 1, Mods: mods})

	a, _ := e.passengers.Get(calm.ID)
	b, _ := e.passengers.Get(scared.ID)
	if a.Patience != 9 || b.Patience != 7 {
		t.Errorf("patience after 1s: calm %.1f scared %.1f", a.Patience, b.Patience)
	}
}

func TestLongTickSpawnsEveryInterval(t *testing.T) {
	e := newQuietEngine(t, 8, 0)
	s := e.spawner
	s.SetEnabled(true)
	c := spawnConditions{TimeWeight: 1, Mods: disaster.NewModifiers()}
	interval := s.Interval(c)
	spawns := func() int { return len(e.EventLog().GetByType(events.EventTypePassengerSpawned)) }

	s.Tick(3*interval, e.tickInfo(), c)
	if n := spawns(); n != 3 {
		t.Fatalf("spawned %d passengers over three intervals, want 3", n)
	}

	s.Tick(100*interval, e.tickInfo(), c)
	if n := spawns() - 3; n != maxSpawnsPerTick {
		t.Errorf("spawned %d after a long stall, want the per-tick cap", n)
	}
	if s.timer > interval {
		t.Errorf("backlog of %.1fs carried over", s.timer)
	}
}

func TestOneFloorBuildingNeverSpawns(t *testing.T) {
	only := floor.Layout{Floors: []floor.Spec{{Label: 0, Name: "Only", Theme: floor.ThemeNeutral}}}
	floors := floor.NewRegistry(only)
	table := passenger.NewTable()
	s := NewSpawnSystem(events.NewEventLog(nil), logger.NewWriterLogger(io.Discard), floors, table,
		elevator.New(elevator.DefaultConfig(1)), rand.New(rand.NewPCG(1, 2)), config.NormalDifficulty())

	if got := s.otherFloor(0); got != 0 {
		t.Errorf("otherFloor(0) = %d", got)
	}
	s.Tick(60, tickInfo{}, spawnConditions{TimeWeight: 1, Mods: disaster.NewModifiers()})
	if table.Len() != 0 {
		t.Errorf("spawned %d passengers with nowhere to go", table.Len())
	}

	// the engine refuses the layout outright
	e := NewEngine(Config{Layout: only}, events.NewEventLog(nil), logger.NewWriterLogger(io.Discard))
	if e.floors.Len() != len(floor.FrontierTower().Floors) {
		t.Errorf("engine kept a %d-floor layout", e.floors.Len())
	}
	st, err := newQuietEngine(t, 4, 0).Export()
	if err != nil {
		t.Fatal(err)
	}
	st.Layout = only
	st.Floors = st.Floors[:1]
	if err := e.Restore(st); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("Restore(one floor) = %v", err)
	}
}
