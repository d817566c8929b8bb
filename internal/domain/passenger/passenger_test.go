package passenger

import "testing"

func TestTransitionsAreMonotonic(t *testing.T) {
	tests := []struct {
		from, to State
		valid    bool
	}{
		{StateWaiting, StateBoarding, true},
		{StateBoarding, StateRiding, true},
		{StateRiding, StateDelivered, true},
		{StateWaiting, StateAbandoned, true},
		{StateRiding, StateAbandoned, true},
		{StateWaiting, StateRiding, false},
		{StateRiding, StateWaiting, false},
		{StateBoarding, StateWaiting, false},
		{StateDelivered, StateAbandoned, false},
		{StateAbandoned, StateWaiting, false},
	}

	for _, tt := range tests {
		if got := IsValidTransition(tt.from, tt.to); got != tt.valid {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTransitionRejectsRevert(t *testing.T) {
	p := &Passenger{ID: 1, State: StateRiding}
	if err := p.Transition(StateWaiting); err == nil {
		t.Fatalf("riding passenger went back to waiting")
	}
	if p.State != StateRiding {
		t.Errorf("state changed on rejected transition: %s", p.State)
	}
}

func TestTableAssignsIDsAndWeights(t *testing.T) {
	tbl := NewTable()
	a := tbl.Add(Passenger{Type: TypeRegular, Origin: 3, Destination: 9, Patience: 20})
	b := tbl.Add(Passenger{Type: TypeEvilRobot, Origin: 0, Destination: 2, Patience: 60})

	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d,%d", a.ID, b.ID)
	}
	if a.State != StateWaiting || a.Weight != 75 || a.MaxPatience != 20 {
		t.Errorf("unexpected defaults: %+v", *a)
	}
	if b.Weight != 150 {
		t.Errorf("evil robot weight = %d", b.Weight)
	}

	tbl.Remove(a.ID)
	if _, ok := tbl.Get(a.ID); ok {
		t.Errorf("removed passenger still present")
	}
	if ids := tbl.IDs(); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("ids = %v", ids)
	}
}

func TestLoadKeepsIDsAhead(t *testing.T) {
	tbl := NewTable()
	tbl.Load([]Passenger{{ID: 5, State: StateRiding}, {ID: 9, State: StateWaiting}}, 3)

	if tbl.NextID() != 10 {
		t.Errorf("next id = %d, want 10", tbl.NextID())
	}
	if p := tbl.Add(Passenger{Type: TypeVIP}); p.ID != 10 {
		t.Errorf("new passenger id = %d", p.ID)
	}
}
