package engine

import (
	"io"
	"math"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

func appendAll(log *events.EventLog, evs ...events.GameEvent) {
	for _, ev := range evs {
		log.Append(ev)
	}
}

func delivered(t passenger.Type, theme floor.Theme) events.GameEvent {
	return tickInfo{}.event(events.EventTypePassengerDelivered, "p", "f",
		events.DeliveryPayload{PassengerType: string(t), Theme: string(theme)})
}

func escapedDelivery(theme floor.Theme) events.GameEvent {
	return tickInfo{}.event(events.EventTypePassengerDelivered, "p", "f",
		events.DeliveryPayload{PassengerType: string(passenger.TypeEvilRobot), Theme: string(theme), Escaped: true})
}

func abandoned(t passenger.Type, trampling bool) events.GameEvent {
	return tickInfo{}.event(events.EventTypePassengerAbandoned, "p", "f",
		events.AbandonPayload{PassengerType: string(t), Trampling: trampling})
}

func lifecycle(typ events.EventType, phase string, forced bool) events.GameEvent {
	return tickInfo{}.event(typ, "d", "t",
		events.DisasterPayload{Kind: "FLOOD", Severity: 2, Phase: phase, Forced: forced})
}

func TestBalanceClampsAndThresholds(t *testing.T) {
	bs := NewBalanceSystem(events.NewEventLog(nil), logger.NewWriterLogger(io.Discard))

	bs.Adjust(150, -20)
	if bs.Chaos() != 100 || bs.Harmony() != 0 {
		t.Fatalf("clamp: chaos %.1f harmony %.1f", bs.Chaos(), bs.Harmony())
	}
	if !bs.Emergency() || bs.Flow() {
		t.Errorf("emergency %v flow %v", bs.Emergency(), bs.Flow())
	}
	if m := bs.Multiplier(); m != 3 {
		t.Errorf("multiplier at full chaos = %.2f, want 3", m)
	}

	bs.Adjust(-100, 80)
	if bs.Emergency() || !bs.Flow() {
		t.Errorf("after calm: emergency %v flow %v", bs.Emergency(), bs.Flow())
	}

	bs.Decay(10)
	if bs.Chaos() != 0 || math.Abs(bs.Harmony()-77) > 1e-9 {
		t.Errorf("decay: chaos %.1f harmony %.1f", bs.Chaos(), bs.Harmony())
	}
}

func TestBalanceReconcile(t *testing.T) {
	log := events.NewEventLog(nil)
	bs := NewBalanceSystem(log, logger.NewWriterLogger(io.Discard))

	appendAll(log,
		delivered(passenger.TypeVIP, floor.ThemeParty),                 // +30 harmony
		abandoned(passenger.TypeGoodRobot, false),                      // +2 chaos, -5 harmony
		lifecycle(events.EventTypeDisasterPhase, "ACTIVE", false),      // +10 chaos
		lifecycle(events.EventTypeDisasterPhase, "RESOLVING", false),   // nothing
		lifecycle(events.EventTypeDisasterResolved, "RESOLVED", false), // +5 harmony
		lifecycle(events.EventTypeDisasterResolved, "RESOLVED", true),  // forced: nothing
	)
	bs.Reconcile()
	if bs.Chaos() != 12 || bs.Harmony() != 30 {
		t.Errorf("chaos %.1f harmony %.1f, want 12 and 30", bs.Chaos(), bs.Harmony())
	}

	// a second pass sees nothing new
	bs.Reconcile()
	if bs.Chaos() != 12 || bs.Harmony() != 30 {
		t.Errorf("events counted twice")
	}
}

func TestScoringReconcile(t *testing.T) {
	log := events.NewEventLog(nil)
	ss := NewScoringSystem(log, logger.NewWriterLogger(io.Discard), 1)

	appendAll(log,
		delivered(passenger.TypeRegular, floor.ThemeNeutral),           // 10
		delivered(passenger.TypeRegular, floor.ThemeNeutral),           // 10 * 1.1
		escapedDelivery(floor.ThemeStreet),                             // -10, streak kept
		abandoned(passenger.TypeRegular, true),                         // -20, streak reset
		lifecycle(events.EventTypeDisasterResolved, "RESOLVED", false), // +50
		lifecycle(events.EventTypeDisasterResolved, "RESOLVED", true),  // forced: nothing
	)
	ss.Reconcile()

	want := ScoreState{Total: 41, Streak: 0, Delivered: 3, Abandoned: 1, DisastersResolved: 1}
	if got := ss.State(); got != want {
		t.Errorf("score = %+v, want %+v", got, want)
	}

	ss.AddBonus(100)
	if ss.Total() != 141 {
		t.Errorf("total after bonus = %d", ss.Total())
	}
}

func TestOnlyEscapedRobotsArePenalised(t *testing.T) {
	log := events.NewEventLog(nil)
	ss := NewScoringSystem(log, logger.NewWriterLogger(io.Discard), 1)
	bs := NewBalanceSystem(log, logger.NewWriterLogger(io.Discard))

	log.Append(delivered(passenger.TypeEvilRobot, floor.ThemeNeutral))
	ss.Reconcile()
	bs.Reconcile()
	if ss.Total() != 10 || bs.Chaos() != 0 {
		t.Errorf("ordinary evil robot: score %d chaos %.1f, want 10 and 0", ss.Total(), bs.Chaos())
	}

	log.Append(escapedDelivery(floor.ThemeNeutral))
	log.Append(delivered(passenger.TypeResolver, floor.ThemeNeutral))
	ss.Reconcile()
	bs.Reconcile()
	if bs.Chaos() != 15 || bs.Harmony() != 30 {
		t.Errorf("chaos %.1f harmony %.1f, want 15 and 30", bs.Chaos(), bs.Harmony())
	}
	// escapee -10 keeps the streak at 1, the resolver is the second in a row
	if want := 10 - 10 + int(math.Round(85*1.1)); ss.Total() != want {
		t.Errorf("score = %d, want %d", ss.Total(), want)
	}
}

func TestScoringComboAndDifficulty(t *testing.T) {
	log := events.NewEventLog(nil)
	ss := NewScoringSystem(log, logger.NewWriterLogger(io.Discard), 2)

	for range 12 {
		log.Append(delivered(passenger.TypeRegular, floor.ThemeNeutral))
	}
	ss.Reconcile()
	// streaks 1..11 grow the combo by 0.1 each, 12 hits the 2x cap
	want := 0
	for n := 1; n <= 12; n++ {
		combo := min(1+0.1*float64(n-1), 2)
		want += int(math.Round(10 * combo * 2))
	}
	if ss.Total() != want {
		t.Errorf("total = %d, want %d", ss.Total(), want)
	}
}

func TestLoadSkipsExistingEvents(t *testing.T) {
	log := events.NewEventLog(nil)
	log.Append(delivered(passenger.TypeVIP, floor.ThemeParty))

	bs := NewBalanceSystem(log, logger.NewWriterLogger(io.Discard))
	ss := NewScoringSystem(log, logger.NewWriterLogger(io.Discard), 1)
	bs.Load(40, 10)
	ss.Load(ScoreState{Total: 500})
	bs.Reconcile()
	ss.Reconcile()

	if bs.Chaos() != 40 || bs.Harmony() != 10 || ss.Total() != 500 {
		t.Errorf("restored state replayed old events: chaos %.0f harmony %.0f score %d",
			bs.Chaos(), bs.Harmony(), ss.Total())
	}
}

func TestClock(t *testing.T) {
	c := NewClock()
	if c.String() != "Day 1 08:00" || c.SpawnWeight() != 1.8 {
		t.Fatalf("start = %s weight %.1f", c, c.SpawnWeight())
	}

	c.Advance(-5)
	if c.Elapsed != 0 {
		t.Errorf("clock went backwards")
	}

	c.Advance(270 / GameMinutesPerSecond) // four and a half hours later
	if c.Hour() != 12 || c.Minute() != 30 || c.SpawnWeight() != 1.4 {
		t.Errorf("lunch: %s weight %.1f", c, c.SpawnWeight())
	}

	c = Clock{StartHour: 23, Elapsed: 60 / GameMinutesPerSecond}
	if c.Day() != 2 || c.Hour() != 0 || !c.Night() || c.SpawnWeight() != 0.4 {
		t.Errorf("midnight: %s night %v", c, c.Night())
	}
}
