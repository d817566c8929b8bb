// Package scenario runs the tower headless: a scripted or greedy operator drives an
// engine at a fixed step while every snapshot is checked against the rules the game
// must never break. cmd/test-runner and the package tests run the same catalog.
package scenario

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

// Step is a scripted input sent before the given tick runs.
type Step struct {
	AtTick int64
	Input  engine.Input
}

// Scenario is one headless session.
type Scenario struct {
	Name        string
	Description string
	Config      engine.Config
	Ticks       int
	DT          float64 // seconds per tick; 0 means 0.1
	Script      []Step
	Operator    bool // a greedy operator plays between scripted steps
	// Midway, when set, runs after half the ticks; it may swap the engine.
	Midway func(r *Run) error
	Expect func(r *Run) error
}

// Run is the state of a scenario while and after it executes.
type Run struct {
	Engine     *engine.Engine
	Log        *events.EventLog
	Final      engine.Snapshot
	Counts     map[events.EventType]int
	Triggered  map[disaster.Kind]int
	Rejected   []string
	Violations []string
	MaxChaos   float64
	MaxRiders  int

	logger *logger.Logger
}

// Logger is the logger the scenario runs with.
func (r *Run) Logger() *logger.Logger { return r.logger }

// Result captures the outcome of each scenario.
type Result struct {
	Name       string
	Passed     bool
	Reason     string
	Ticks      int
	Score      int
	Delivered  int
	Violations []string
	Counts     map[events.EventType]int
	Elapsed    time.Duration
}

// Execute runs s to completion and judges it.
func Execute(s Scenario, log *logger.Logger) Result {
	start := time.Now()
	dt := s.DT
	if dt <= 0 {
		dt = 0.1
	}

	eventLog := events.NewEventLog(nil)
	r := &Run{
		Engine:    engine.NewEngine(s.Config, eventLog, log),
		Log:       eventLog,
		Counts:    make(map[events.EventType]int),
		Triggered: make(map[disaster.Kind]int),
		logger:    log,
	}
	car := elevator.DefaultConfig(len(r.Engine.Latest().Floors))
	if s.Config.Elevator.Floors > 0 {
		car = s.Config.Elevator
	}
	rng := rand.New(rand.NewPCG(s.Config.Seed, 7))
	script := s.Script
	var lastSeq int64
	prev := r.Engine.Latest()

	res := Result{Name: s.Name}
	for i := 0; i < s.Ticks; i++ {
		if i == s.Ticks/2 && s.Midway != nil {
			if err := s.Midway(r); err != nil {
				res.Reason = "midway: " + err.Error()
				res.Elapsed = time.Since(start)
				return res
			}
			prev = r.Engine.Latest()
		}

		scripted := false
		for len(script) > 0 && script[0].AtTick <= prev.Tick {
			if err := r.Engine.SubmitInput(script[0].Input); err != nil {
				r.Rejected = append(r.Rejected, fmt.Sprintf("tick %d: %v", prev.Tick, err))
			}
			script = script[1:]
			scripted = true
		}
		if s.Operator && !scripted {
			if in, ok := greedy(prev, car, rng); ok {
				r.Engine.SubmitInput(in)
			}
		}

		snap := r.Engine.Tick(dt)
		r.check(prev, snap, car)
		for _, e := range eventLog.Since(lastSeq) {
			if e.Seq != lastSeq+1 {
				r.violate(snap.Tick, "event seq jumped from %d to %d", lastSeq, e.Seq)
			}
			lastSeq = e.Seq
			r.Counts[e.Type]++
			if p, ok := e.Payload.(events.DisasterPayload); ok && e.Type == events.EventTypeDisasterTriggered {
				r.Triggered[disaster.Kind(p.Kind)]++
			}
			if e.Type == events.EventTypeInputRejected {
				r.Rejected = append(r.Rejected, fmt.Sprintf("tick %d: %s %v", e.Tick, e.TargetID, e.Payload))
			}
		}
		prev = snap
	}

	r.Final = prev
	res.Ticks = s.Ticks
	res.Score = r.Final.Score.Total
	res.Delivered = r.Final.Score.Delivered
	res.Counts = r.Counts
	res.Violations = r.Violations
	switch {
	case len(r.Violations) > 0:
		res.Reason = r.Violations[0]
	case s.Expect != nil:
		if err := s.Expect(r); err != nil {
			res.Reason = err.Error()
		} else {
			res.Passed = true
		}
	default:
		res.Passed = true
	}
	res.Elapsed = time.Since(start)
	return res
}

func (r *Run) violate(tick int64, format string, args ...any) {
	r.Violations = append(r.Violations, fmt.Sprintf("tick %d: ", tick)+fmt.Sprintf(format, args...))
}

// check holds every snapshot to the rules that no sequence of inputs may break.
func (r *Run) check(prev, snap engine.Snapshot, car elevator.Config) {
	r.MaxChaos = max(r.MaxChaos, snap.Chaos)
	r.MaxRiders = max(r.MaxRiders, len(snap.Elevator.Riders))

	if snap.Chaos < 0 || snap.Chaos > 100 || snap.Harmony < 0 || snap.Harmony > 100 {
		r.violate(snap.Tick, "balance out of range: chaos %.2f harmony %.2f", snap.Chaos, snap.Harmony)
	}
	if snap.Paused != (snap.Tick == prev.Tick) {
		r.violate(snap.Tick, "tick went %d -> %d with paused=%v", prev.Tick, snap.Tick, snap.Paused)
	}
	if len(snap.Elevator.Riders) > car.CapacityCount || snap.Elevator.Load > car.CapacityWeight {
		r.violate(snap.Tick, "car over capacity: %d riders, %d kg", len(snap.Elevator.Riders), snap.Elevator.Load)
	}
	if snap.Elevator.Position < 0 || snap.Elevator.Position > float64(len(snap.Floors)-1) {
		r.violate(snap.Tick, "car outside the shaft at %.2f", snap.Elevator.Position)
	}
	if snap.Elevator.Door == elevator.DoorsOpen && snap.Elevator.Velocity != 0 {
		r.violate(snap.Tick, "car moving with open doors")
	}

	byID := make(map[int]passenger.Passenger, len(snap.Passengers))
	for _, p := range snap.Passengers {
		byID[p.ID] = p
	}
	load := 0
	for _, id := range snap.Elevator.Riders {
		p, ok := byID[id]
		if !ok {
			r.violate(snap.Tick, "rider %d is not in the building", id)
			continue
		}
		if p.State != passenger.StateBoarding && p.State != passenger.StateRiding {
			r.violate(snap.Tick, "rider %d is %s", id, p.State)
		}
		load += p.Weight
	}
	if load != snap.Elevator.Load {
		r.violate(snap.Tick, "car load %d but riders weigh %d", snap.Elevator.Load, load)
	}

	unresolved := make(map[string]int)
	for _, d := range snap.Disasters {
		if d.State != string(disaster.StateResolved) {
			unresolved[d.Kind]++
		}
	}
	for kind, n := range unresolved {
		if n > 1 && !disaster.Kind(kind).Stackable() {
			r.violate(snap.Tick, "%d unresolved %s disasters", n, kind)
		}
	}
	if snap.Score.Delivered < prev.Score.Delivered || snap.Score.Abandoned < prev.Score.Abandoned {
		r.violate(snap.Tick, "score counters went backwards")
	}
}

// greedy is an operator that serves the nearest rider destination, then the nearest
// waiting passenger. It sends at most one input per tick.
func greedy(snap engine.Snapshot, car elevator.Config, rng *rand.Rand) (engine.Input, bool) {
	el := snap.Elevator
	if el.Velocity != 0 || !el.Aligned || el.Disabled {
		return engine.Input{}, false
	}
	// a human does not react every frame
	if rng.Float64() < 0.3 {
		return engine.Input{}, false
	}

	dests := make(map[int]bool)
	waiting := make(map[int]bool)
	for _, p := range snap.Passengers {
		switch p.State {
		case passenger.StateRiding, passenger.StateBoarding:
			dests[p.Destination] = true
		case passenger.StateWaiting:
			// only count people who would actually fit
			if snap.Floors[p.Origin].Accessible && el.Load+p.Weight <= car.CapacityWeight {
				waiting[p.Origin] = true
			}
		}
	}
	room := len(el.Riders) < car.CapacityCount

	here := el.Floor
	if el.Door == elevator.DoorsOpen {
		if room && waiting[here] {
			return engine.Input{}, false
		}
		return engine.Input{Action: engine.ActionToggleDoors}, true
	}
	if dests[here] || (room && waiting[here]) {
		return engine.Input{Action: engine.ActionToggleDoors}, true
	}

	target, ok := nearest(here, dests)
	if !ok && room {
		target, ok = nearest(here, waiting)
	}
	if !ok {
		return engine.Input{}, false
	}
	if target > here {
		return engine.Input{Action: engine.ActionMoveUp}, true
	}
	return engine.Input{Action: engine.ActionMoveDown}, true
}

func nearest(from int, floors map[int]bool) (int, bool) {
	best, found := 0, false
	for f := range floors {
		if f == from {
			continue
		}
		if !found || abs(f-from) < abs(best-from) || (abs(f-from) == abs(best-from) && f < best) {
			best, found = f, true
		}
	}
	return best, found
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
