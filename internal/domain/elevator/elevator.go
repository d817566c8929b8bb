// Package elevator is the ElevatorController: position, doors and capacity of the single car.
//
// Pure logic: no mutex, no channels, no wall clock. The engine owns the only instance and
// mutates it from the tick loop.
package elevator

import (
	"math"
	"slices"

	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/platform/invariant"
)

// Direction of a requested move.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

func (d Direction) String() string {
	if d == Up {
		return "UP"
	}
	return "DOWN"
}

// DoorState is the physical state of the doors.
type DoorState string

const (
	DoorsClosed DoorState = "CLOSED"
	DoorsOpen   DoorState = "OPEN"
)

// Config holds the static car parameters.
type Config struct {
	Floors         int     `json:"floors"`
	StartFloor     int     `json:"start_floor"`
	Speed          float64 `json:"speed"` // floors per second
	CapacityCount  int     `json:"capacity_count"`
	CapacityWeight int     `json:"capacity_weight"`
	Epsilon        float64 `json:"epsilon"`
}

// DefaultConfig matches the original cabinet: 6 riders, 650 kg, 200 px/s over 120 px floors.
func DefaultConfig(floors int) Config {
	return Config{
		Floors:         floors,
		Speed:          200.0 / 120.0,
		CapacityCount:  6,
		CapacityWeight: 650,
		Epsilon:        0.02,
	}
}

// State is the mutable, persisted part of the car.
type State struct {
	Position    float64   `json:"position"`
	TargetFloor int       `json:"target_floor"`
	Door        DoorState `json:"door"`
	Velocity    float64   `json:"velocity"`
	Riders      []int     `json:"riders"`
	Load        int       `json:"load"`
	Disabled    bool      `json:"disabled"`
	SpeedFactor float64   `json:"speed_factor"`
}

// Elevator is the controller for the car.
type Elevator struct {
	cfg Config
	st  State
}

// New places the car at cfg.StartFloor with closed doors.
func New(cfg Config) *Elevator {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.02
	}
	start := min(max(cfg.StartFloor, 0), cfg.Floors-1)
	return &Elevator{
		cfg: cfg,
		st: State{
			Position:    float64(start),
			TargetFloor: start,
			Door:        DoorsClosed,
			SpeedFactor: 1,
		},
	}
}

func (e *Elevator) Config() Config { return e.cfg }

// State returns a copy of the car state.
func (e *Elevator) State() State {
	st := e.st
	st.Riders = slices.Clone(e.st.Riders)
	return st
}

// Load replaces the car state from a saved session.
func (e *Elevator) Load(st State) {
	st.Riders = slices.Clone(st.Riders)
	if st.SpeedFactor == 0 {
		st.SpeedFactor = 1
	}
	st.Position = e.clamp(st.Position)
	e.st = st
}

func (e *Elevator) Position() float64 { return e.st.Position }
func (e *Elevator) Door() DoorState   { return e.st.Door }
func (e *Elevator) Velocity() float64 { return e.st.Velocity }
func (e *Elevator) Moving() bool      { return e.st.Velocity != 0 }
func (e *Elevator) Riders() []int     { return slices.Clone(e.st.Riders) }
func (e *Elevator) RiderCount() int   { return len(e.st.Riders) }
func (e *Elevator) WeightLoad() int   { return e.st.Load }
func (e *Elevator) Disabled() bool    { return e.st.Disabled }

// Floor returns the floor the car is aligned with, if any.
func (e *Elevator) Floor() (int, bool) {
	nearest := math.Round(e.st.Position)
	if math.Abs(e.st.Position-nearest) > e.cfg.Epsilon {
		return 0, false
	}
	return int(nearest), true
}

// SetDisabled cuts or restores power. A car that loses power halts where it is.
func (e *Elevator) SetDisabled(disabled bool) {
	e.st.Disabled = disabled
	if disabled {
		e.st.Velocity = 0
	}
}

// SetSpeedFactor scales the configured speed, e.g. during a malfunction.
func (e *Elevator) SetSpeedFactor(f float64) {
	if f <= 0 {
		f = 1
	}
	e.st.SpeedFactor = f
}

// RequestMove starts a move to the adjacent floor in dir.
func (e *Elevator) RequestMove(dir Direction) error {
	const op = "elevator.RequestMove"
	if e.st.Disabled {
		return simerr.New(simerr.CodeInvalidState, op, "no power")
	}
	if e.st.Door != DoorsClosed {
		return simerr.New(simerr.CodeInvalidState, op, "doors are open")
	}
	if e.Moving() {
		return simerr.New(simerr.CodeInvalidState, op, "already moving")
	}
	floor, aligned := e.Floor()
	if !aligned {
		floor = e.st.TargetFloor
	}
	next := floor + int(dir)
	if next < 0 || next >= e.cfg.Floors {
		return simerr.New(simerr.CodeInvalidState, op, "already at the %s boundary", dir)
	}
	e.st.TargetFloor = next
	e.st.Velocity = float64(dir) * e.speed()
	return nil
}

// ToggleDoors opens or closes the doors. Only a stopped, aligned car may do so.
func (e *Elevator) ToggleDoors() error {
	const op = "elevator.ToggleDoors"
	if e.Moving() {
		return simerr.New(simerr.CodeInvalidState, op, "car is moving")
	}
	if _, aligned := e.Floor(); !aligned {
		return simerr.New(simerr.CodeInvalidState, op, "car is between floors")
	}
	if e.st.Door == DoorsOpen {
		e.st.Door = DoorsClosed
	} else {
		e.st.Door = DoorsOpen
	}
	return nil
}

// Board takes a waiting passenger into the car and moves them to Boarding.
func (e *Elevator) Board(p *passenger.Passenger) error {
	const op = "elevator.Board"
	floor, aligned := e.Floor()
	if e.st.Door != DoorsOpen || !aligned || floor != p.Origin {
		return simerr.New(simerr.CodeNotAligned, op, "passenger %d waits at floor %d", p.ID, p.Origin)
	}
	if p.State != passenger.StateWaiting {
		return simerr.New(simerr.CodeInvalidState, op, "passenger %d is %s", p.ID, p.State)
	}
	if len(e.st.Riders)+1 > e.cfg.CapacityCount {
		return simerr.New(simerr.CodeCapacityExceeded, op, "car holds %d riders", e.cfg.CapacityCount)
	}
	if e.st.Load+p.Weight > e.cfg.CapacityWeight {
		return simerr.New(simerr.CodeCapacityExceeded, op, "%d kg over the %d kg limit",
			e.st.Load+p.Weight-e.cfg.CapacityWeight, e.cfg.CapacityWeight)
	}
	if err := p.Transition(passenger.StateBoarding); err != nil {
		return simerr.Wrap(simerr.CodeInvalidState, op, err)
	}
	e.st.Riders = append(e.st.Riders, p.ID)
	e.st.Load += p.Weight
	e.checkCapacity()
	return nil
}

// Discharge lets a riding passenger out at their destination and marks them Delivered.
func (e *Elevator) Discharge(p *passenger.Passenger) error {
	const op = "elevator.Discharge"
	floor, aligned := e.Floor()
	if e.st.Door != DoorsOpen || !aligned || floor != p.Destination {
		return simerr.New(simerr.CodeNotAligned, op, "passenger %d rides to floor %d", p.ID, p.Destination)
	}
	if !slices.Contains(e.st.Riders, p.ID) {
		return simerr.New(simerr.CodeInvalidState, op, "passenger %d is not aboard", p.ID)
	}
	if err := p.Transition(passenger.StateDelivered); err != nil {
		return simerr.Wrap(simerr.CodeInvalidState, op, err)
	}
	e.remove(p)
	return nil
}

// Eject removes a rider without delivering them, used when a rider abandons mid-ride.
func (e *Elevator) Eject(p *passenger.Passenger) {
	e.remove(p)
}

func (e *Elevator) remove(p *passenger.Passenger) {
	i := slices.Index(e.st.Riders, p.ID)
	if i < 0 {
		return
	}
	e.st.Riders = slices.Delete(e.st.Riders, i, i+1)
	e.st.Load -= p.Weight
	if !invariant.Check(e.st.Load >= 0, "elevator", "negative load %d", e.st.Load) {
		e.st.Load = 0
	}
}

// Step advances the car toward its target. It returns the floor reached this step, if any.
func (e *Elevator) Step(dt float64) (int, bool) {
	if e.st.Disabled || dt <= 0 {
		return 0, false
	}
	target := float64(e.st.TargetFloor)
	diff := target - e.st.Position
	if math.Abs(diff) <= e.cfg.Epsilon {
		if e.st.Velocity == 0 {
			return 0, false
		}
		e.arrive()
		return e.st.TargetFloor, true
	}

	dir := 1.0
	if diff < 0 {
		dir = -1.0
	}
	speed := e.speed()
	e.st.Velocity = dir * speed
	e.st.Position = e.clamp(e.st.Position + dir*speed*dt)

	if math.Abs(target-e.st.Position) <= e.cfg.Epsilon || (target-e.st.Position)*dir < 0 {
		e.arrive()
		return e.st.TargetFloor, true
	}
	return 0, false
}

func (e *Elevator) arrive() {
	e.st.Position = float64(e.st.TargetFloor)
	e.st.Velocity = 0
}

func (e *Elevator) speed() float64 {
	f := e.st.SpeedFactor
	if f <= 0 {
		f = 1
	}
	return e.cfg.Speed * f
}

func (e *Elevator) clamp(pos float64) float64 {
	return math.Min(math.Max(pos, 0), float64(e.cfg.Floors-1))
}

// checkCapacity guards against a breach forced from outside Board.
func (e *Elevator) checkCapacity() {
	invariant.Check(len(e.st.Riders) <= e.cfg.CapacityCount, "elevator",
		"%d riders over capacity %d", len(e.st.Riders), e.cfg.CapacityCount)
	invariant.Check(e.st.Load <= e.cfg.CapacityWeight, "elevator",
		"%d kg over capacity %d", e.st.Load, e.cfg.CapacityWeight)
}
