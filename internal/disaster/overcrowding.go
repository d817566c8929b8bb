package disaster

import "github.com/MRamiBalles/TowerMadness/internal/domain/floor"

const (
	crowdAnnouncement    = 3.0
	crowdTimeout         = 60.0
	crowdStartPatience   = 100.0
	crowdTramplingBelow  = 30.0
	crowdSpawnMultiplier = 3.0
	crowdPerDelivery     = 10
	crowdResolvedBelow   = 20
	crowdHazard          = 1
)

// Overcrowding is a rush of people, typically a hackathon letting out on the event floor.
// The crowd's patience decays; once it runs low the crowd starts trampling and every
// abandonment costs double.
type Overcrowding struct {
	Base
	CrowdSize     int     `json:"crowd_size"`
	Remaining     int     `json:"remaining"`
	CrowdPatience float64 `json:"crowd_patience"`
	TramplingRisk bool    `json:"trampling_risk"`
	Floor         int     `json:"floor"`
}

func (o *Overcrowding) Initialize(w *World) {
	o.init(KindOvercrowding, SeverityMedium, crowdAnnouncement, crowdTimeout)
	if o.CrowdSize <= 0 {
		o.CrowdSize = 40 * int(o.Severity)
	}
	o.Remaining = o.CrowdSize
	o.CrowdPatience = crowdStartPatience
	o.Floor = w.Floors.Layout().EventSpace
	o.AffectedFloors = []int{o.Floor}
}

func (o *Overcrowding) Update(dt float64, w *World) { o.advance(dt, w, o) }
func (o *Overcrowding) Resolve(w *World)            { o.forceResolve(w, o) }

// DecayRate is the crowd patience lost per second; bigger crowds sour faster.
func (o *Overcrowding) DecayRate() float64 {
	return 4 + float64(o.CrowdSize)/40
}

func (o *Overcrowding) activate(w *World) {
	w.Floors.Apply(o.Floor, o.ID, floor.Overlay{Hazard: crowdHazard})
}

func (o *Overcrowding) tickActive(dt float64, w *World) bool {
	o.CrowdPatience = max(0, o.CrowdPatience-o.DecayRate()*dt)
	if o.CrowdPatience < crowdTramplingBelow && !o.TramplingRisk {
		o.TramplingRisk = true
		w.Hooks.Notify(&o.Base, "trampling risk")
	}
	o.Remaining = max(0, o.Remaining-w.Deliveries*crowdPerDelivery)

	w.Mods.SpawnMultiplier *= crowdSpawnMultiplier
	w.Mods.CrowdFloor = o.Floor
	w.Mods.TramplingRisk = w.Mods.TramplingRisk || o.TramplingRisk
	return o.Remaining < crowdResolvedBelow
}

func (o *Overcrowding) tickResolving(float64, *World) bool { return true }

func (o *Overcrowding) rollback(w *World) {
	w.Floors.RestoreAll(o.ID)
	o.TramplingRisk = false
}
