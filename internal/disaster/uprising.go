package disaster

import (
	"fmt"
	"slices"

	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
)

const (
	uprisingOnset        = 3.0
	uprisingTimeout      = 90.0
	uprisingSpreadChance = 0.02 // per adjacent floor, per tick
	uprisingHazard       = 2
	uprisingChaosPerFlr  = 2.0
	uprisingEscapees     = 2
)

// Choice is the operator's answer to an uprising.
type Choice string

const (
	ChoiceAlly      Choice = "ALLY"
	ChoiceResist    Choice = "RESIST"
	ChoiceNegotiate Choice = "NEGOTIATE"
)

// ChoiceEffect is the balance change each answer applies.
var ChoiceEffect = map[Choice]struct{ Chaos, Harmony float64 }{
	ChoiceAlly:      {Chaos: -10, Harmony: -10},
	ChoiceResist:    {Chaos: 10, Harmony: 5},
	ChoiceNegotiate: {Chaos: -20, Harmony: 20},
}

// RobotUprising spreads floor by floor from the robotics lab, the robots' command floor.
type RobotUprising struct {
	Base
	CommandFloor int    `json:"command_floor"`
	Controlled   []int  `json:"controlled"`
	Decision     Choice `json:"decision,omitempty"`
}

func (r *RobotUprising) Initialize(w *World) {
	r.init(KindRobotUprising, SeverityMedium, uprisingOnset, uprisingTimeout)
	r.CommandFloor = w.Floors.Layout().Robotics
	r.AffectedFloors = []int{r.CommandFloor}
}

func (r *RobotUprising) Update(dt float64, w *World) { r.advance(dt, w, r) }
func (r *RobotUprising) Resolve(w *World)            { r.forceResolve(w, r) }

// Decide resolves an active uprising early with the chosen balance effect.
func (r *RobotUprising) Decide(c Choice, w *World) error {
	effect, ok := ChoiceEffect[c]
	if !ok {
		return fmt.Errorf("unknown uprising decision %q", c)
	}
	if r.State != StateActive {
		return fmt.Errorf("uprising %s is %s, nothing to decide", r.ID, r.State)
	}
	r.Decision = c
	w.Balance.Adjust(effect.Chaos, effect.Harmony)
	r.forceResolve(w, r)
	return nil
}

func (r *RobotUprising) activate(w *World) {
	r.control(r.CommandFloor, w)
}

func (r *RobotUprising) control(id int, w *World) {
	if slices.Contains(r.Controlled, id) {
		return
	}
	r.Controlled = append(r.Controlled, id)
	r.AffectedFloors = slices.Clone(r.Controlled)
	w.Floors.Apply(id, r.ID, floor.Overlay{Hazard: uprisingHazard * int(r.Severity)})
	w.Balance.Adjust(uprisingChaosPerFlr, 0)
	w.Hooks.Notify(&r.Base, fmt.Sprintf("floor %d taken", id))
	if id == w.Floors.Layout().Basement {
		w.Hooks.ReleaseEscapedRobots(id, uprisingEscapees)
	}
}

func (r *RobotUprising) tickActive(dt float64, w *World) bool {
	frontier := slices.Clone(r.Controlled)
	slices.Sort(frontier)
	for _, id := range frontier {
		for _, next := range w.Floors.Neighbours(id) {
			if slices.Contains(r.Controlled, next) {
				continue
			}
			if w.Rand.Float64() < uprisingSpreadChance {
				r.control(next, w)
			}
		}
	}
	return false
}

func (r *RobotUprising) tickResolving(float64, *World) bool { return true }

func (r *RobotUprising) rollback(w *World) {
	w.Floors.RestoreAll(r.ID)
}
