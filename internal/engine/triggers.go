package engine

import "github.com/MRamiBalles/TowerMadness/internal/disaster"

// Trigger is a named rule that may start a disaster.
type Trigger struct {
	ID              string
	Kind            disaster.Kind
	Severity        disaster.Severity
	BaseProbability float64 // per second, before the balance multiplier
	Cooldown        float64 // seconds after this trigger's disaster resolves
	Prerequisites   []string
	Predicate       func(View) bool
}

// View is the read-only picture of the tower a trigger predicate sees.
type View struct {
	Now          float64
	Chaos        float64
	Harmony      float64
	Hour         int
	Waiting      int
	Riders       int
	EventWaiting int // passengers queued on the event floor
	Active       map[disaster.Kind]int
}

func (t Trigger) ready(v View) bool {
	return t.Predicate == nil || t.Predicate(v)
}

// DefaultTriggers is the registry of a normal session, in evaluation order.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			ID: "flood", Kind: disaster.KindFlood, Severity: disaster.SeverityMedium,
			BaseProbability: 0.004, Cooldown: 120,
		},
		{
			ID: "earthquake", Kind: disaster.KindEarthquake, Severity: disaster.SeverityMedium,
			BaseProbability: 0.003, Cooldown: 60,
		},
		{
			ID: "power_outage", Kind: disaster.KindPowerOutage, Severity: disaster.SeverityMedium,
			BaseProbability: 0.003, Cooldown: 90,
		},
		{
			// aftershock damage
			ID: "malfunction", Kind: disaster.KindMalfunction, Severity: disaster.SeverityMedium,
			BaseProbability: 0.006, Cooldown: 60,
			Prerequisites: []string{"earthquake"},
		},
		{
			ID: "hackathon_rush", Kind: disaster.KindOvercrowding, Severity: disaster.SeverityMedium,
			BaseProbability: 0.005, Cooldown: 150,
			Predicate: func(v View) bool { return v.Hour >= 10 && v.Hour < 22 },
		},
		{
			ID: "biohazard", Kind: disaster.KindBiohazard, Severity: disaster.SeverityMedium,
			BaseProbability: 0.002, Cooldown: 180,
			Predicate: func(v View) bool { return v.Chaos >= 25 },
		},
		{
			ID: "robot_uprising", Kind: disaster.KindRobotUprising, Severity: disaster.SeverityMedium,
			BaseProbability: 0.004, Cooldown: 240,
			Prerequisites: []string{"malfunction"},
			Predicate:     func(v View) bool { return v.Chaos >= 40 },
		},
	}
}
