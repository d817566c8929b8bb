package engine

import (
	"maps"
	"slices"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
)

// Snapshot is the read-only view handed to the presentation layer after every tick.
type Snapshot struct {
	Tick       int64                 `json:"tick"`
	SimTime    float64               `json:"sim_time"`
	Clock      string                `json:"clock"`
	Paused     bool                  `json:"paused"`
	Elevator   ElevatorView          `json:"elevator"`
	Floors     []FloorView           `json:"floors"`
	Passengers []passenger.Passenger `json:"passengers"`
	Disasters  []DisasterView        `json:"disasters"`
	Chaos      float64               `json:"chaos"`
	Harmony    float64               `json:"harmony"`
	Emergency  bool                  `json:"emergency"`
	Flow       bool                  `json:"flow"`
	Score      ScoreState            `json:"score"`
	Assets     map[string]string     `json:"assets,omitempty"`
	LastSeq    int64                 `json:"last_seq"`
}

// ElevatorView is the car as the player sees it.
type ElevatorView struct {
	elevator.State
	Floor   int  `json:"floor"`
	Aligned bool `json:"aligned"`
}

// FloorView is one floor with its derived flags.
type FloorView struct {
	ID         int    `json:"id"`
	Label      int    `json:"label"`
	Name       string `json:"name"`
	Theme      string `json:"theme"`
	Accessible bool   `json:"accessible"`
	Hazard     int    `json:"hazard"`
	Waiting    []int  `json:"waiting"`
}

// DisasterView is the public part of a running disaster.
type DisasterView struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	State    string  `json:"state"`
	Severity string  `json:"severity"`
	Floors   []int   `json:"floors"`
	Elapsed  float64 `json:"elapsed"`
	Duration float64 `json:"duration"`
	Onset    float64 `json:"onset,omitempty"`
}

func (e *Engine) snapshot() Snapshot {
	f, aligned := e.elevator.Floor()
	snap := Snapshot{
		Tick:       e.tick,
		SimTime:    e.clock.Elapsed,
		Clock:      e.clock.String(),
		Paused:     e.paused,
		Elevator:   ElevatorView{State: e.elevator.State(), Floor: f, Aligned: aligned},
		Passengers: e.passengers.All(),
		Chaos:      e.balance.Chaos(),
		Harmony:    e.balance.Harmony(),
		Emergency:  e.balance.Emergency(),
		Flow:       e.balance.Flow(),
		Score:      e.scoring.State(),
		Assets:     maps.Clone(e.assets.handles),
		LastSeq:    e.eventLog.LastSeq(),
	}
	for _, fl := range e.floors.Floors() {
		snap.Floors = append(snap.Floors, FloorView{
			ID:         fl.ID,
			Label:      fl.Label,
			Name:       fl.Name,
			Theme:      string(fl.Theme),
			Accessible: fl.Accessible(),
			Hazard:     fl.HazardLevel(),
			Waiting:    fl.Waiting,
		})
	}
	for _, d := range e.scheduler.Active() {
		snap.Disasters = append(snap.Disasters, disasterView(d))
	}
	return snap
}

func disasterView(d disaster.Disaster) DisasterView {
	m := d.Meta()
	return DisasterView{
		ID:       m.ID,
		Kind:     string(m.Kind),
		State:    string(m.State),
		Severity: m.Severity.String(),
		Floors:   slices.Clone(m.AffectedFloors),
		Elapsed:  m.Elapsed,
		Duration: m.Duration,
		Onset:    m.Onset,
	}
}
