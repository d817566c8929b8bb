// Package passenger models the people and robots riding the elevator.
package passenger

import (
	"fmt"
	"sort"
)

// Type tags a passenger.
type Type string

const (
	TypeRegular   Type = "REGULAR"
	TypeVIP       Type = "VIP"
	TypeGoodRobot Type = "GOOD_ROBOT"
	TypeEvilRobot Type = "EVIL_ROBOT"
	TypeResolver  Type = "RESOLVER"
)

// Weight returns the weight in kilograms the elevator carries for this type.
func (t Type) Weight() int {
	switch t {
	case TypeVIP:
		return 80
	case TypeGoodRobot:
		return 120
	case TypeEvilRobot:
		return 150
	case TypeResolver:
		return 70
	default:
		return 75
	}
}

// State is the lifecycle position of a passenger.
type State string

const (
	StateWaiting   State = "WAITING"
	StateBoarding  State = "BOARDING"
	StateRiding    State = "RIDING"
	StateDelivered State = "DELIVERED"
	StateAbandoned State = "ABANDONED"
)

// validTransitions defines the allowed forward moves. Nothing ever moves back.
var validTransitions = map[State][]State{
	StateWaiting:   {StateBoarding, StateAbandoned},
	StateBoarding:  {StateRiding, StateAbandoned},
	StateRiding:    {StateDelivered, StateAbandoned},
	StateDelivered: {},
	StateAbandoned: {},
}

// IsValidTransition checks whether a passenger may move from one state to another.
func IsValidTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the passenger's life in the building.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateAbandoned
}

// Passenger is one entity in the arena.
type Passenger struct {
	ID          int     `json:"id"`
	Type        Type    `json:"type"`
	Name        string  `json:"name,omitempty"`
	Origin      int     `json:"origin"`
	Destination int     `json:"destination"`
	Patience    float64 `json:"patience"`
	MaxPatience float64 `json:"max_patience"`
	State       State   `json:"state"`
	Weight      int     `json:"weight"`
	Escaped     bool    `json:"escaped,omitempty"`
	SpawnedAt   float64 `json:"spawned_at"`
}

// Transition moves the passenger forward, rejecting any backwards or skipping move.
func (p *Passenger) Transition(to State) error {
	if !IsValidTransition(p.State, to) {
		return fmt.Errorf("passenger %d: invalid transition %s -> %s", p.ID, p.State, to)
	}
	p.State = to
	return nil
}

// Table is the passenger arena. Floors and the elevator refer to passengers by id only.
type Table struct {
	nextID int
	rows   map[int]*Passenger
}

// NewTable creates an empty arena. Ids start at 1.
func NewTable() *Table {
	return &Table{nextID: 1, rows: make(map[int]*Passenger)}
}

// Add assigns an id and stores the passenger in Waiting state.
func (t *Table) Add(p Passenger) *Passenger {
	p.ID = t.nextID
	t.nextID++
	p.State = StateWaiting
	if p.Weight == 0 {
		p.Weight = p.Type.Weight()
	}
	if p.MaxPatience == 0 {
		p.MaxPatience = p.Patience
	}
	row := p
	t.rows[row.ID] = &row
	return &row
}

// Get returns the live passenger row.
func (t *Table) Get(id int) (*Passenger, bool) {
	p, ok := t.rows[id]
	return p, ok
}

// Remove drops a passenger from the active set.
func (t *Table) Remove(id int) {
	delete(t.rows, id)
}

func (t *Table) Len() int { return len(t.rows) }

// IDs returns every active passenger id in ascending order, the tick iteration order.
func (t *Table) IDs() []int {
	ids := make([]int, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// All returns copies of every active passenger ordered by id.
func (t *Table) All() []Passenger {
	out := make([]Passenger, 0, len(t.rows))
	for _, id := range t.IDs() {
		out = append(out, *t.rows[id])
	}
	return out
}

// NextID returns the id the next spawned passenger will get.
func (t *Table) NextID() int { return t.nextID }

// Load replaces the arena with a saved set of passengers.
func (t *Table) Load(rows []Passenger, nextID int) {
	t.rows = make(map[int]*Passenger, len(rows))
	maxID := 0
	for _, p := range rows {
		row := p
		t.rows[row.ID] = &row
		maxID = max(maxID, row.ID)
	}
	t.nextID = max(nextID, maxID+1)
}
