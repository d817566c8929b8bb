package disaster

import "github.com/MRamiBalles/TowerMadness/internal/domain/floor"

const (
	quakeHazard      = 2
	quakeSpeedFactor = 0.5
)

// Earthquake shakes a band of floors and slows the car. Aftershocks may overlap.
type Earthquake struct {
	Base
}

func (q *Earthquake) Initialize(w *World) {
	q.init(KindEarthquake, SeverityMedium, 0, scaled(q.Severity, 8, 12, 16))
	span := 1 + 2*int(q.Severity)
	n := w.Floors.Len()
	span = min(span, n)
	start := 0
	if n > span {
		start = w.Rand.IntN(n - span + 1)
	}
	q.AffectedFloors = q.AffectedFloors[:0]
	for id := start; id < start+span; id++ {
		q.AffectedFloors = append(q.AffectedFloors, id)
	}
}

func (q *Earthquake) Update(dt float64, w *World) { q.advance(dt, w, q) }
func (q *Earthquake) Resolve(w *World)            { q.forceResolve(w, q) }

func (q *Earthquake) activate(w *World) {
	for _, id := range q.AffectedFloors {
		w.Floors.Apply(id, q.ID, floor.Overlay{Hazard: quakeHazard})
	}
}

func (q *Earthquake) tickActive(dt float64, w *World) bool {
	w.Mods.SpeedFactor *= quakeSpeedFactor
	return false
}

func (q *Earthquake) tickResolving(float64, *World) bool { return true }

func (q *Earthquake) rollback(w *World) {
	w.Floors.RestoreAll(q.ID)
}
