// Package floor holds the FloorRegistry: one record per building floor, indexed by id.
//
// Disasters never write accessible/hazard directly. They place an Overlay keyed by their
// own id and remove it on rollback; the effective values are derived from the overlays,
// so two disasters touching the same floor restore independently and exactly once.
package floor

import (
	"slices"
	"sort"
)

// Overlay is one disaster's effect on a floor.
type Overlay struct {
	Blocked bool `json:"blocked"`
	Hazard  int  `json:"hazard"`
}

// Floor is a single floor record.
type Floor struct {
	ID       int                `json:"id"`
	Label    int                `json:"label"`
	Name     string             `json:"name"`
	Theme    Theme              `json:"theme"`
	Overlays map[string]Overlay `json:"overlays,omitempty"`
	Waiting  []int              `json:"waiting"`
}

// Accessible reports whether no overlay blocks the floor.
func (f Floor) Accessible() bool {
	for _, o := range f.Overlays {
		if o.Blocked {
			return false
		}
	}
	return true
}

// HazardLevel sums the hazard of every overlay.
func (f Floor) HazardLevel() int {
	h := 0
	for _, o := range f.Overlays {
		h += o.Hazard
	}
	return h
}

// Registry owns every floor of the building.
type Registry struct {
	layout Layout
	floors []Floor
}

// NewRegistry creates the floors described by layout.
func NewRegistry(layout Layout) *Registry {
	r := &Registry{layout: layout, floors: make([]Floor, len(layout.Floors))}
	for i, s := range layout.Floors {
		r.floors[i] = Floor{ID: i, Label: s.Label, Name: s.Name, Theme: s.Theme}
	}
	return r
}

func (r *Registry) Layout() Layout { return r.layout }
func (r *Registry) Len() int       { return len(r.floors) }

// Valid reports whether id names a floor.
func (r *Registry) Valid(id int) bool {
	return id >= 0 && id < len(r.floors)
}

// Get returns a copy of the floor.
func (r *Registry) Get(id int) (Floor, bool) {
	if !r.Valid(id) {
		return Floor{}, false
	}
	return cloneFloor(r.floors[id]), true
}

// Accessible reports whether the floor exists and is not blocked.
func (r *Registry) Accessible(id int) bool {
	return r.Valid(id) && r.floors[id].Accessible()
}

// Hazard returns the effective hazard level of the floor.
func (r *Registry) Hazard(id int) int {
	if !r.Valid(id) {
		return 0
	}
	return r.floors[id].HazardLevel()
}

// Theme returns the theme tag of the floor.
func (r *Registry) Theme(id int) Theme {
	if !r.Valid(id) {
		return ThemeNeutral
	}
	return r.floors[id].Theme
}

// Apply sets owner's overlay on the floor, replacing a previous one from the same owner.
func (r *Registry) Apply(id int, owner string, o Overlay) bool {
	if !r.Valid(id) {
		return false
	}
	f := &r.floors[id]
	if f.Overlays == nil {
		f.Overlays = make(map[string]Overlay)
	}
	f.Overlays[owner] = o
	return true
}

// HasOverlay reports whether owner currently affects the floor.
func (r *Registry) HasOverlay(id int, owner string) bool {
	if !r.Valid(id) {
		return false
	}
	_, ok := r.floors[id].Overlays[owner]
	return ok
}

// Restore removes owner's overlay from the floor. It returns false if there was nothing
// to restore, so a second restore is a no-op.
func (r *Registry) Restore(id int, owner string) bool {
	if !r.Valid(id) {
		return false
	}
	f := &r.floors[id]
	if _, ok := f.Overlays[owner]; !ok {
		return false
	}
	delete(f.Overlays, owner)
	if len(f.Overlays) == 0 {
		f.Overlays = nil
	}
	return true
}

// RestoreAll removes every overlay placed by owner and returns the restored floor ids.
func (r *Registry) RestoreAll(owner string) []int {
	var restored []int
	for id := range r.floors {
		if r.Restore(id, owner) {
			restored = append(restored, id)
		}
	}
	return restored
}

// AddWaiting queues a passenger on the floor.
func (r *Registry) AddWaiting(id, passengerID int) bool {
	if !r.Valid(id) {
		return false
	}
	f := &r.floors[id]
	if slices.Contains(f.Waiting, passengerID) {
		return true
	}
	f.Waiting = append(f.Waiting, passengerID)
	return true
}

// RemoveWaiting drops a passenger from the floor queue.
func (r *Registry) RemoveWaiting(id, passengerID int) bool {
	if !r.Valid(id) {
		return false
	}
	f := &r.floors[id]
	i := slices.Index(f.Waiting, passengerID)
	if i < 0 {
		return false
	}
	f.Waiting = slices.Delete(f.Waiting, i, i+1)
	return true
}

// Waiting returns the queue of the floor in arrival order.
func (r *Registry) Waiting(id int) []int {
	if !r.Valid(id) {
		return nil
	}
	return slices.Clone(r.floors[id].Waiting)
}

// WaitingCount returns the number of passengers queued on the floor.
func (r *Registry) WaitingCount(id int) int {
	if !r.Valid(id) {
		return 0
	}
	return len(r.floors[id].Waiting)
}

// AccessibleFloors lists every floor id that is currently reachable.
func (r *Registry) AccessibleFloors() []int {
	out := make([]int, 0, len(r.floors))
	for id := range r.floors {
		if r.floors[id].Accessible() {
			out = append(out, id)
		}
	}
	return out
}

// NearestAccessibleAbove returns the closest reachable floor strictly above id.
func (r *Registry) NearestAccessibleAbove(id int) (int, bool) {
	for up := id + 1; up < len(r.floors); up++ {
		if r.floors[up].Accessible() {
			return up, true
		}
	}
	return 0, false
}

// Neighbours returns the floor ids directly above and below id.
func (r *Registry) Neighbours(id int) []int {
	var out []int
	if r.Valid(id - 1) {
		out = append(out, id-1)
	}
	if r.Valid(id + 1) {
		out = append(out, id+1)
	}
	return out
}

// Floors returns a copy of every floor record, ordered by id.
func (r *Registry) Floors() []Floor {
	out := make([]Floor, len(r.floors))
	for i, f := range r.floors {
		out[i] = cloneFloor(f)
	}
	return out
}

// Owners returns the ids of every disaster that still has an overlay somewhere.
func (r *Registry) Owners() []string {
	seen := map[string]bool{}
	for _, f := range r.floors {
		for owner := range f.Overlays {
			seen[owner] = true
		}
	}
	out := make([]string, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// Load replaces the floor records, used when restoring a saved session.
func (r *Registry) Load(floors []Floor) bool {
	if len(floors) != len(r.floors) {
		return false
	}
	for i, f := range floors {
		if f.ID != i {
			return false
		}
	}
	for i, f := range floors {
		r.floors[i] = cloneFloor(f)
	}
	return true
}

func cloneFloor(f Floor) Floor {
	out := f
	out.Waiting = slices.Clone(f.Waiting)
	if f.Overlays != nil {
		out.Overlays = make(map[string]Overlay, len(f.Overlays))
		for k, v := range f.Overlays {
			out.Overlays[k] = v
		}
	}
	return out
}
