package engine

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
)

// certain never misses a roll.
const certain = 1e9

func newTestScheduler(t *testing.T, triggers ...Trigger) (*Scheduler, *disaster.World) {
	t.Helper()
	e := newQuietEngine(t, 12, 0)
	w := *e.world
	w.Hooks = disaster.NopHooks{}
	return NewScheduler(e.eventLog, e.logger, triggers, rand.New(rand.NewPCG(1, 2))), &w
}

func kindsOf(ds []disaster.Disaster) []disaster.Kind {
	var out []disaster.Kind
	for _, d := range ds {
		out = append(out, d.Meta().Kind)
	}
	return out
}

func TestPrerequisitesAndCooldown(t *testing.T) {
	s, w := newTestScheduler(t,
		Trigger{ID: "aftershock", Kind: disaster.KindMalfunction, BaseProbability: certain, Cooldown: 30, Prerequisites: []string{"quake"}},
		Trigger{ID: "quake", Kind: disaster.KindEarthquake, BaseProbability: certain, Cooldown: 30},
	)

	fired := s.Check(0.1, View{Now: 1}, w, tickInfo{now: 1}, false)
	if got := kindsOf(fired); len(got) != 1 || got[0] != disaster.KindEarthquake {
		t.Fatalf("first pass fired %v, want only the earthquake", got)
	}

	fired = s.Check(0.1, View{Now: 2}, w, tickInfo{now: 2}, false)
	if got := kindsOf(fired); len(got) != 1 || got[0] != disaster.KindMalfunction {
		t.Fatalf("second pass fired %v, want the malfunction", got)
	}

	for _, d := range s.Active() {
		d.Resolve(w)
	}
	s.prune(tickInfo{now: 10})
	if h := s.History(); h["quake"] != 10 || h["aftershock"] != 10 {
		t.Fatalf("history = %v", h)
	}

	if fired := s.Check(0.1, View{Now: 39}, w, tickInfo{now: 39}, false); len(fired) != 0 {
		t.Errorf("fired %v during cooldown", kindsOf(fired))
	}
	if fired := s.Check(0.1, View{Now: 40}, w, tickInfo{now: 40}, false); len(fired) != 2 {
		t.Errorf("fired %v after cooldown, want both", kindsOf(fired))
	}
}

func TestPredicateGatesTrigger(t *testing.T) {
	s, w := newTestScheduler(t, Trigger{
		ID: "rush", Kind: disaster.KindOvercrowding, BaseProbability: certain,
		Predicate: func(v View) bool { return v.Hour >= 10 },
	})
	if fired := s.Check(0.1, View{Hour: 9}, w, tickInfo{}, false); len(fired) != 0 {
		t.Errorf("predicate ignored")
	}
	if fired := s.Check(0.1, View{Hour: 10}, w, tickInfo{}, false); len(fired) != 1 {
		t.Errorf("predicate held but nothing fired")
	}
}

func TestFullHarmonyAndResolverSuppressTriggers(t *testing.T) {
	s, w := newTestScheduler(t, Trigger{ID: "flood", Kind: disaster.KindFlood, BaseProbability: certain})

	if fired := s.Check(0.1, View{Harmony: 100}, w, tickInfo{}, false); len(fired) != 0 {
		t.Errorf("full harmony fired %v", kindsOf(fired))
	}
	if fired := s.Check(0.1, View{Chaos: 100}, w, tickInfo{}, true); len(fired) != 0 {
		t.Errorf("pending resolver fired %v", kindsOf(fired))
	}
	if len(s.Active()) != 0 {
		t.Errorf("active set = %v", kindsOf(s.Active()))
	}
}

func TestMaxChaosForcesHighSeverity(t *testing.T) {
	s, w := newTestScheduler(t,
		Trigger{ID: "flood", Kind: disaster.KindFlood, Predicate: func(View) bool { return false }},
		Trigger{ID: "outage", Kind: disaster.KindPowerOutage},
	)

	fired := s.Check(0.1, View{Chaos: 100}, w, tickInfo{}, false)
	if len(fired) != 1 {
		t.Fatalf("escalation fired %d disasters", len(fired))
	}
	m := fired[0].Meta()
	if m.Kind != disaster.KindPowerOutage || m.Severity != disaster.SeverityHigh || m.TriggerID != "outage" {
		t.Errorf("escalation = %s %s via %s", m.Kind, m.Severity, m.TriggerID)
	}

	// nothing eligible left but the blocked flood, which escalation still uses
	fired = s.Check(0.1, View{Chaos: 100}, w, tickInfo{}, false)
	if got := kindsOf(fired); len(got) != 1 || got[0] != disaster.KindFlood {
		t.Errorf("second escalation = %v", got)
	}
}

func TestDebugLaunchRespectsStackability(t *testing.T) {
	s, w := newTestScheduler(t)

	if _, err := s.TriggerDebug(disaster.KindFlood, w, tickInfo{}); err != nil {
		t.Fatalf("first flood: %v", err)
	}
	_, err := s.TriggerDebug(disaster.KindFlood, w, tickInfo{})
	if !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("second flood = %v, want ErrInvalidState", err)
	}

	for range 2 {
		if _, err := s.TriggerDebug(disaster.KindEarthquake, w, tickInfo{}); err != nil {
			t.Errorf("earthquakes stack: %v", err)
		}
	}
	if got := s.ActiveKinds(); got[disaster.KindFlood] != 1 || got[disaster.KindEarthquake] != 2 {
		t.Errorf("active kinds = %v", got)
	}

	if _, err := s.TriggerDebug("METEOR", w, tickInfo{}); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("unknown kind = %v", err)
	}
}

func TestResolveAllLeavesPendingDisasters(t *testing.T) {
	s, w := newTestScheduler(t)
	flood, _ := s.TriggerDebug(disaster.KindFlood, w, tickInfo{})
	quake, _ := s.TriggerDebug(disaster.KindEarthquake, w, tickInfo{})
	s.Update(0.1, w, tickInfo{now: 0.1})

	if quake.Meta().State != disaster.StateActive || flood.Meta().State != disaster.StatePending {
		t.Fatalf("states: quake %s, flood %s", quake.Meta().State, flood.Meta().State)
	}

	if n := s.ResolveAll(w, tickInfo{now: 0.2}); n != 1 {
		t.Errorf("ResolveAll = %d, want 1", n)
	}
	if !quake.Meta().Forced {
		t.Errorf("forced flag not set")
	}
	if got := kindsOf(s.Active()); len(got) != 1 || got[0] != disaster.KindFlood {
		t.Errorf("active after override = %v", got)
	}
}

func TestDecideWithoutUprising(t *testing.T) {
	s, w := newTestScheduler(t)
	if err := s.Decide(disaster.ChoiceNegotiate, w, tickInfo{}); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("Decide = %v, want ErrNotFound", err)
	}
}
