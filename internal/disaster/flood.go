package disaster

import (
	"slices"

	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
)

const (
	floodWarning       = 5.0
	floodDuration      = 45.0
	floodHazard        = 3
	floodOutageLevel   = 2.5
	floodOutageChance  = 0.5
	floodRecedeFactor  = 2.0
	floodFloorMidpoint = 0.5
)

// Flood raises water from the basement. Each floor whose midpoint goes under water is
// closed and evacuated; deep water may knock the power out.
type Flood struct {
	Base
	Level        float64 `json:"level"`
	Peak         float64 `json:"peak"`
	RiseRate     float64 `json:"rise_rate"`
	Flooded      []int   `json:"flooded"`
	OutageRolled bool    `json:"outage_rolled"`
}

func (f *Flood) Initialize(w *World) {
	f.init(KindFlood, SeverityMedium, floodWarning, floodDuration)
	f.Peak = scaled(f.Severity, 1.5, 2.5, 3.5)
	f.RiseRate = scaled(f.Severity, 0.4, 0.6, 0.8)
}

func (f *Flood) Update(dt float64, w *World) { f.advance(dt, w, f) }
func (f *Flood) Resolve(w *World)            { f.forceResolve(w, f) }

func (f *Flood) activate(w *World) {}

func (f *Flood) tickActive(dt float64, w *World) bool {
	f.Level = min(f.Peak, f.Level+f.RiseRate*dt)
	for id := 0; id < w.Floors.Len(); id++ {
		if float64(id)+floodFloorMidpoint > f.Level {
			break
		}
		if slices.Contains(f.Flooded, id) {
			continue
		}
		w.Floors.Apply(id, f.ID, floor.Overlay{Blocked: true, Hazard: floodHazard})
		f.Flooded = append(f.Flooded, id)
		f.AffectedFloors = slices.Clone(f.Flooded)
		w.Hooks.Notify(&f.Base, "floor flooded")
		w.Hooks.Evacuate(id, "flood")
	}
	if f.Level >= floodOutageLevel && !f.OutageRolled {
		f.OutageRolled = true
		if w.Rand.Float64() < floodOutageChance {
			w.Hooks.SpawnSubDisaster(KindPowerOutage, f.Severity, f.ID)
		}
	}
	return false
}

// tickResolving lets the water recede at twice the rising speed, reopening floors as
// they surface.
func (f *Flood) tickResolving(dt float64, w *World) bool {
	f.Level = max(0, f.Level-floodRecedeFactor*f.RiseRate*dt)
	kept := f.Flooded[:0]
	for _, id := range f.Flooded {
		if float64(id)+floodFloorMidpoint > f.Level {
			w.Floors.Restore(id, f.ID)
			continue
		}
		kept = append(kept, id)
	}
	f.Flooded = kept
	return f.Level <= 0
}

func (f *Flood) rollback(w *World) {
	w.Floors.RestoreAll(f.ID)
	f.Flooded = nil
}
