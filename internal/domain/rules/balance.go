package rules

import (
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
)

const (
	MaxBalance = 100.0

	ChaosDecayPerSecond   = 0.5
	HarmonyDecayPerSecond = 0.3

	// EmergencyChaos switches the tower into emergency mode.
	EmergencyChaos = 75.0
	// FlowHarmony speeds up spawning.
	FlowHarmony = 75.0

	// ResolverDeliveryHarmony is granted when the Resolver reaches a destination.
	// It comes on top of the pickup bonus.
	ResolverDeliveryHarmony = 30.0
)

// BalanceDelta is a chaos/harmony change.
type BalanceDelta struct {
	Chaos   float64
	Harmony float64
}

// DeliveryBalance returns the balance effect of a completed ride.
func DeliveryBalance(d Delivery) BalanceDelta {
	var out BalanceDelta
	switch {
	case d.Type == passenger.TypeEvilRobot && d.Escaped:
		out.Chaos += 15
	case d.Type == passenger.TypeResolver:
		out.Harmony += ResolverDeliveryHarmony
	case d.Type == passenger.TypeGoodRobot && d.Destination == floor.ThemeRobotics:
		out.Harmony += 10
	case d.Type == passenger.TypeVIP:
		out.Harmony += 20
	}
	switch d.Destination {
	case floor.ThemeParty:
		out.Harmony += 10
	case floor.ThemeCreative:
		out.Harmony += 3
	}
	return out
}

// AbandonBalance returns the balance effect of a passenger giving up.
func AbandonBalance(t passenger.Type) BalanceDelta {
	switch t {
	case passenger.TypeGoodRobot:
		return BalanceDelta{Chaos: 2, Harmony: -5}
	case passenger.TypeEvilRobot:
		return BalanceDelta{Chaos: 5}
	default:
		return BalanceDelta{Chaos: 3}
	}
}

// TriggerChaos is the chaos a disaster adds when it becomes active.
func TriggerChaos(severity int) float64 {
	return 5 * float64(severity)
}

// ResolutionHarmony is the harmony regained when a disaster runs its course.
const ResolutionHarmony = 5.0

// ProbabilityMultiplier scales trigger probabilities. It grows with chaos and shrinks
// with harmony.
func ProbabilityMultiplier(chaos, harmony float64) float64 {
	return (1 + 2*chaos/MaxBalance) / (1 + harmony/MaxBalance)
}
