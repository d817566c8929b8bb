// Package rules contains the pure lookup tables for scoring and balance.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"

	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
)

const (
	BaseDelivery            = 10
	AbandonPenalty          = 10
	TramplingAmplifier      = 2
	DisasterResolutionBonus = 50
	ResolverScoreBonus      = 100
	ResolverHarmonyBonus    = 50.0
	// EscapePenalty is charged for an uprising escapee delivered upstairs.
	EscapePenalty = 20

	ComboStep = 0.1
	ComboCap  = 2.0
)

// TypeBonus is added to the base delivery amount per passenger type.
var TypeBonus = map[passenger.Type]int{
	passenger.TypeRegular:   0,
	passenger.TypeVIP:       50,
	passenger.TypeGoodRobot: 20,
	passenger.TypeEvilRobot: 0,
	passenger.TypeResolver:  75,
}

// DestinationBonus rewards delivering to special floors.
var DestinationBonus = map[floor.Theme]int{
	floor.ThemeParty:    30,
	floor.ThemeCreative: 15,
}

// Delivery describes one completed ride.
type Delivery struct {
	Type        passenger.Type
	Destination floor.Theme
	Escaped     bool // released by a robot uprising
}

// DeliveryPoints returns the raw points of a delivery before combo and difficulty.
func DeliveryPoints(d Delivery) int {
	points := BaseDelivery + TypeBonus[d.Type] + DestinationBonus[d.Destination]
	if d.Type == passenger.TypeEvilRobot && d.Escaped {
		points -= EscapePenalty
	}
	return points
}

// ComboMultiplier returns the multiplier for the n-th consecutive delivery (n >= 1).
func ComboMultiplier(streak int) float64 {
	if streak <= 1 {
		return 1
	}
	return math.Min(1+ComboStep*float64(streak-1), ComboCap)
}

// ScaleDelivery applies combo and difficulty to positive deliveries only.
// Penalties are never amplified by a streak.
func ScaleDelivery(points, streak int, difficulty float64) int {
	if points <= 0 {
		return points
	}
	if difficulty <= 0 {
		difficulty = 1
	}
	return int(math.Round(float64(points) * ComboMultiplier(streak) * difficulty))
}

// AbandonmentPoints returns the (negative) points of an abandonment.
func AbandonmentPoints(trampling bool) int {
	if trampling {
		return -AbandonPenalty * TramplingAmplifier
	}
	return -AbandonPenalty
}
