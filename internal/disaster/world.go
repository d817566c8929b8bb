package disaster

import (
	"maps"
	"math/rand/v2"

	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
)

// Balance is the part of the BalanceTracker disasters may touch.
type Balance interface {
	Adjust(chaos, harmony float64)
	Chaos() float64
	Harmony() float64
}

// Hooks are the simulation services a disaster calls back into. They keep passenger
// bookkeeping and event emission in the engine.
type Hooks interface {
	// Evacuate moves every passenger waiting on floorID to the nearest accessible floor above.
	Evacuate(floorID int, cause string)
	// SpawnSubDisaster starts a child disaster. It returns false when stackability refuses it.
	SpawnSubDisaster(kind Kind, severity Severity, parentID string) bool
	// ReleaseEscapedRobots lets n evil robots loose from floorID.
	ReleaseEscapedRobots(floorID, n int)
	// Notify reports a lifecycle change or notable effect.
	Notify(b *Base, what string)
}

// NopHooks ignores every callback.
type NopHooks struct{}

func (NopHooks) Evacuate(int, string)                           {}
func (NopHooks) SpawnSubDisaster(Kind, Severity, string) bool { return false }
func (NopHooks) ReleaseEscapedRobots(int, int)                  {}
func (NopHooks) Notify(*Base, string)                           {}

// Modifiers are the per-tick rule changes contributed by active disasters. The engine
// resets them before the disaster updates and applies them afterwards.
type Modifiers struct {
	SpeedFactor     float64         `json:"speed_factor"`
	PowerOut        bool            `json:"power_out"`
	SpawnMultiplier float64         `json:"spawn_multiplier"`
	CrowdFloor      int             `json:"crowd_floor"`
	TramplingRisk   bool            `json:"trampling_risk"`
	PatienceDrain   map[int]float64 `json:"patience_drain"`
}

// NewModifiers returns the neutral modifier set.
func NewModifiers() *Modifiers {
	return &Modifiers{SpeedFactor: 1, SpawnMultiplier: 1, CrowdFloor: -1, PatienceDrain: map[int]float64{}}
}

// Clone returns a copy that shares no map with m.
func (m *Modifiers) Clone() *Modifiers {
	c := *m
	c.PatienceDrain = maps.Clone(m.PatienceDrain)
	if c.PatienceDrain == nil {
		c.PatienceDrain = map[int]float64{}
	}
	return &c
}

// Drain returns the patience drain factor of a floor.
func (m *Modifiers) Drain(floorID int) float64 {
	if f, ok := m.PatienceDrain[floorID]; ok {
		return f
	}
	return 1
}

func (m *Modifiers) addDrain(floorID int, f float64) {
	if cur, ok := m.PatienceDrain[floorID]; !ok || f > cur {
		m.PatienceDrain[floorID] = f
	}
}

// World is everything a disaster may read or mutate during a tick.
type World struct {
	Now        float64
	Floors     *floor.Registry
	Elevator   *elevator.Elevator
	Balance    Balance
	Rand       *rand.Rand
	Mods       *Modifiers
	Deliveries int // completed this tick
	Hooks      Hooks
}
