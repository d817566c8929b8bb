// Package disaster implements the DisasterEngine: a closed set of disaster variants sharing
// one lifecycle, Pending → Active → Resolving → Resolved.
//
// Every variant satisfies Disaster and embeds Base. The set is closed: New and Decode switch
// over Kind exhaustively, so adding a variant means touching both.
package disaster

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind tags a disaster variant.
type Kind string

const (
	KindFlood         Kind = "FLOOD"
	KindEarthquake    Kind = "EARTHQUAKE"
	KindPowerOutage   Kind = "POWER_OUTAGE"
	KindOvercrowding  Kind = "OVERCROWDING"
	KindMalfunction   Kind = "MALFUNCTION"
	KindRobotUprising Kind = "ROBOT_UPRISING"
	KindBiohazard     Kind = "BIOHAZARD"
)

// Kinds lists every variant in a fixed order.
var Kinds = []Kind{
	KindFlood, KindEarthquake, KindPowerOutage, KindOvercrowding,
	KindMalfunction, KindRobotUprising, KindBiohazard,
}

// Stackable reports whether several unresolved instances of the kind may coexist.
// Aftershocks stack; everything else is one at a time.
func (k Kind) Stackable() bool {
	return k == KindEarthquake
}

// ParseKind validates a kind received from input.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown disaster kind %q", s)
}

// Severity scales a disaster's effects.
type Severity int

const (
	SeverityLow    Severity = 1
	SeverityMedium Severity = 2
	SeverityHigh   Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityHigh:
		return "HIGH"
	default:
		return "MEDIUM"
	}
}

// State is the lifecycle position of a disaster.
type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateResolving State = "RESOLVING"
	StateResolved  State = "RESOLVED"
)

func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateActive:
		return 1
	case StateResolving:
		return 2
	case StateResolved:
		return 3
	}
	return -1
}

// Unresolved reports whether the state still counts against stackability.
func (s State) Unresolved() bool {
	return s != StateResolved
}

// Disaster is the capability set every variant implements.
type Disaster interface {
	// Meta exposes the shared lifecycle record.
	Meta() *Base
	// Initialize picks affected floors and timings. Called once, before the first Update.
	Initialize(w *World)
	// Update advances the lifecycle. A no-op once Resolved.
	Update(dt float64, w *World)
	IsResolved() bool
	// Resolve rolls every effect back immediately and ends the disaster.
	Resolve(w *World)
}

// Base is the lifecycle record shared by every variant.
type Base struct {
	ID             string   `json:"id"`
	Kind           Kind     `json:"kind"`
	TriggerID      string   `json:"trigger_id,omitempty"`
	State          State    `json:"state"`
	Severity       Severity `json:"severity"`
	AffectedFloors []int    `json:"affected_floors"`
	CreatedAt      float64  `json:"created_at"`
	Onset          float64  `json:"onset"` // remaining countdown while Pending
	Duration       float64  `json:"duration"`
	Elapsed        float64  `json:"elapsed"`
	Forced         bool     `json:"forced,omitempty"`
}

func (b *Base) Meta() *Base      { return b }
func (b *Base) IsResolved() bool { return b.State == StateResolved }

// transition moves the lifecycle forward. Backward moves are refused.
func (b *Base) transition(to State) bool {
	if to.rank() <= b.State.rank() {
		return false
	}
	b.State = to
	return true
}

func (b *Base) affects(floor int) bool {
	for _, f := range b.AffectedFloors {
		if f == floor {
			return true
		}
	}
	return false
}

// phases is the per-variant behavior the shared lifecycle drives.
type phases interface {
	activate(w *World)
	// tickActive applies effects for one tick and reports whether the resolution
	// condition was met.
	tickActive(dt float64, w *World) bool
	// tickResolving rolls effects back gradually and reports when it is done.
	tickResolving(dt float64, w *World) bool
	// rollback removes whatever effects remain. Must be safe to call once after
	// tickResolving already restored everything.
	rollback(w *World)
}

// advance runs one lifecycle step for variant p.
func (b *Base) advance(dt float64, w *World, p phases) {
	switch b.State {
	case StateResolved:
		return
	case StatePending:
		b.Onset -= dt
		if b.Onset > 0 {
			return
		}
		b.Onset = 0
		b.transition(StateActive)
		p.activate(w)
		w.Hooks.Notify(b, "active")
	case StateActive:
		b.Elapsed += dt
		done := p.tickActive(dt, w)
		if done || (b.Duration > 0 && b.Elapsed >= b.Duration) {
			b.transition(StateResolving)
			w.Hooks.Notify(b, "resolving")
		}
	case StateResolving:
		if p.tickResolving(dt, w) {
			p.rollback(w)
			b.transition(StateResolved)
			w.Hooks.Notify(b, "resolved")
		}
	}
}

// forceResolve is the shared body of Resolve.
func (b *Base) forceResolve(w *World, p phases) {
	if b.State == StateResolved {
		return
	}
	p.rollback(w)
	b.transition(StateResolved)
	w.Hooks.Notify(b, "resolved")
}

func (b *Base) init(kind Kind, severity Severity, onset, duration float64) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Kind = kind
	if b.Severity == 0 {
		b.Severity = severity
	}
	if b.State == "" {
		b.State = StatePending
	}
	b.Onset = onset
	b.Duration = duration
}

// New creates an uninitialized variant of kind.
func New(kind Kind, severity Severity) (Disaster, error) {
	var d Disaster
	switch kind {
	case KindFlood:
		d = &Flood{}
	case KindEarthquake:
		d = &Earthquake{}
	case KindPowerOutage:
		d = &PowerOutage{}
	case KindOvercrowding:
		d = &Overcrowding{}
	case KindMalfunction:
		d = &Malfunction{}
	case KindRobotUprising:
		d = &RobotUprising{}
	case KindBiohazard:
		d = &Biohazard{}
	default:
		return nil, fmt.Errorf("unknown disaster kind %q", kind)
	}
	m := d.Meta()
	m.Kind = kind
	m.Severity = severity
	return d, nil
}

// scaled picks the value for a severity from low/medium/high.
func scaled(s Severity, low, medium, high float64) float64 {
	switch s {
	case SeverityLow:
		return low
	case SeverityHigh:
		return high
	default:
		return medium
	}
}
