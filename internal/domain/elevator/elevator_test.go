package elevator

import (
	"errors"
	"testing"

	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
)

func newCar(floors int) *Elevator {
	return New(DefaultConfig(floors))
}

// rideTo steps the car until it reaches the requested floor.
func rideTo(t *testing.T, e *Elevator, floor int) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		f, aligned := e.Floor()
		if aligned && f == floor && !e.Moving() {
			return
		}
		if !e.Moving() {
			dir := Up
			if floor < f {
				dir = Down
			}
			if err := e.RequestMove(dir); err != nil {
				t.Fatalf("RequestMove: %v", err)
			}
		}
		e.Step(0.1)
	}
	t.Fatalf("car never reached floor %d (at %.2f)", floor, e.Position())
}

func TestRequestMoveRules(t *testing.T) {
	e := newCar(4)

	if err := e.RequestMove(Down); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("moving below the basement: got %v", err)
	}

	if err := e.ToggleDoors(); err != nil {
		t.Fatalf("ToggleDoors: %v", err)
	}
	if err := e.RequestMove(Up); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("moving with open doors: got %v", err)
	}
	e.ToggleDoors()

	if err := e.RequestMove(Up); err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if err := e.RequestMove(Up); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("second move while moving: got %v", err)
	}
}

func TestToggleDoorsWhileMovingFails(t *testing.T) {
	e := newCar(6)
	if err := e.RequestMove(Up); err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	e.Step(0.1)

	for i := 0; i < 3; i++ {
		if !e.Moving() {
			t.Fatalf("car stopped early at %.2f", e.Position())
		}
		if err := e.ToggleDoors(); !errors.Is(err, simerr.ErrInvalidState) {
			t.Errorf("ToggleDoors while moving: got %v", err)
		}
		e.SetSpeedFactor(0.5) // a malfunction changes nothing about the rule
	}
}

func TestStepReachesFloorAndSnaps(t *testing.T) {
	e := newCar(5)
	e.RequestMove(Up)

	var reached bool
	for i := 0; i < 100 && !reached; i++ {
		_, reached = e.Step(0.05)
	}
	if !reached {
		t.Fatalf("FloorReached never reported")
	}
	if f, ok := e.Floor(); !ok || f != 1 || e.Position() != 1 {
		t.Errorf("car at %.3f, want exactly 1", e.Position())
	}
	if e.Moving() {
		t.Errorf("car still moving after arrival")
	}
}

func TestPowerLossHaltsBetweenFloors(t *testing.T) {
	e := newCar(5)
	e.RequestMove(Up)
	e.Step(0.2)
	e.SetDisabled(true)
	pos := e.Position()

	e.Step(1)
	if e.Position() != pos {
		t.Errorf("car moved without power")
	}
	if err := e.ToggleDoors(); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("doors opened between floors: %v", err)
	}
	if err := e.RequestMove(Up); !errors.Is(err, simerr.ErrInvalidState) {
		t.Errorf("move accepted without power: %v", err)
	}

	e.SetDisabled(false)
	for i := 0; i < 50; i++ {
		e.Step(0.1)
	}
	if f, ok := e.Floor(); !ok || f != 1 {
		t.Errorf("car did not resume to floor 1: %.2f", e.Position())
	}
}

func TestBoardingCapacity(t *testing.T) {
	cfg := DefaultConfig(4)
	cfg.CapacityCount = 2
	cfg.CapacityWeight = 200
	e := New(cfg)
	e.ToggleDoors()

	tbl := passenger.NewTable()
	a := tbl.Add(passenger.Passenger{Type: passenger.TypeRegular, Origin: 0, Destination: 2})
	robot := tbl.Add(passenger.Passenger{Type: passenger.TypeEvilRobot, Origin: 0, Destination: 3})
	b := tbl.Add(passenger.Passenger{Type: passenger.TypeRegular, Origin: 0, Destination: 1})
	c := tbl.Add(passenger.Passenger{Type: passenger.TypeRegular, Origin: 0, Destination: 1})
	far := tbl.Add(passenger.Passenger{Type: passenger.TypeRegular, Origin: 2, Destination: 0})

	if err := e.Board(a); err != nil {
		t.Fatalf("Board: %v", err)
	}
	if err := e.Board(robot); !errors.Is(err, simerr.ErrCapacityExceeded) {
		t.Errorf("75+150 kg over a 200 kg limit: got %v", err)
	}
	if robot.State != passenger.StateWaiting {
		t.Errorf("rejected passenger left Waiting: %s", robot.State)
	}
	if err := e.Board(b); err != nil {
		t.Fatalf("Board: %v", err)
	}
	if err := e.Board(c); !errors.Is(err, simerr.ErrCapacityExceeded) {
		t.Errorf("third rider: got %v", err)
	}
	if err := e.Board(far); !errors.Is(err, simerr.ErrNotAligned) {
		t.Errorf("boarding from another floor: got %v", err)
	}
	if e.RiderCount() != 2 || e.WeightLoad() != 150 {
		t.Errorf("riders=%d load=%d", e.RiderCount(), e.WeightLoad())
	}
}

func TestDischargeAtDestination(t *testing.T) {
	e := newCar(16)
	tbl := passenger.NewTable()
	p := tbl.Add(passenger.Passenger{Type: passenger.TypeRegular, Origin: 3, Destination: 9})

	rideTo(t, e, 3)
	e.ToggleDoors()
	if err := e.Board(p); err != nil {
		t.Fatalf("Board: %v", err)
	}
	p.Transition(passenger.StateRiding)
	if err := e.Discharge(p); !errors.Is(err, simerr.ErrNotAligned) {
		t.Errorf("discharge at origin: got %v", err)
	}
	e.ToggleDoors()

	rideTo(t, e, 9)
	if err := e.Discharge(p); !errors.Is(err, simerr.ErrNotAligned) {
		t.Errorf("discharge with closed doors: got %v", err)
	}
	e.ToggleDoors()
	if err := e.Discharge(p); err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if p.State != passenger.StateDelivered || e.RiderCount() != 0 || e.WeightLoad() != 0 {
		t.Errorf("state=%s riders=%d load=%d", p.State, e.RiderCount(), e.WeightLoad())
	}
}
