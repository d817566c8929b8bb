package disaster

import "github.com/MRamiBalles/TowerMadness/internal/domain/floor"

const (
	bioOnset   = 2.0
	bioHazard  = 4
	bioDrain   = 2.0
	bioTimeout = 30.0
)

// Biohazard seals a lab floor. Passengers on the neighbouring floors lose patience twice
// as fast while it lasts.
type Biohazard struct {
	Base
	Floor int `json:"floor"`
}

func (b *Biohazard) Initialize(w *World) {
	b.init(KindBiohazard, SeverityMedium, bioOnset, scaled(b.Severity, 20, 30, 45))
	var labs []int
	for id := 0; id < w.Floors.Len(); id++ {
		if w.Floors.Theme(id) == floor.ThemeLab {
			labs = append(labs, id)
		}
	}
	if len(labs) > 0 {
		b.Floor = labs[w.Rand.IntN(len(labs))]
	} else {
		b.Floor = w.Rand.IntN(w.Floors.Len())
	}
	b.AffectedFloors = append([]int{b.Floor}, w.Floors.Neighbours(b.Floor)...)
}

func (b *Biohazard) Update(dt float64, w *World) { b.advance(dt, w, b) }
func (b *Biohazard) Resolve(w *World)            { b.forceResolve(w, b) }

func (b *Biohazard) activate(w *World) {
	w.Floors.Apply(b.Floor, b.ID, floor.Overlay{Blocked: true, Hazard: bioHazard})
	w.Hooks.Evacuate(b.Floor, "biohazard")
}

func (b *Biohazard) tickActive(dt float64, w *World) bool {
	for _, id := range w.Floors.Neighbours(b.Floor) {
		w.Mods.addDrain(id, bioDrain)
	}
	return false
}

func (b *Biohazard) tickResolving(float64, *World) bool { return true }

func (b *Biohazard) rollback(w *World) {
	w.Floors.RestoreAll(b.ID)
}
