package engine

import (
	"errors"
	"fmt"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/elevator"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// Action is an operator command.
type Action string

const (
	ActionMoveUp           Action = "MOVE_UP"
	ActionMoveDown         Action = "MOVE_DOWN"
	ActionToggleDoors      Action = "TOGGLE_DOORS"
	ActionPause            Action = "PAUSE"
	ActionTriggerDebug     Action = "TRIGGER_DEBUG_DISASTER"
	ActionUprisingDecision Action = "UPRISING_DECISION"
)

// Source tells who sent an input. Two players and the audience feed the same tick.
type Source string

const (
	SourcePlayer1  Source = "player1"
	SourcePlayer2  Source = "player2"
	SourceAudience Source = "audience"
)

// Input is one queued command.
type Input struct {
	Action Action          `json:"action"`
	Kind   disaster.Kind   `json:"kind,omitempty"`
	Choice disaster.Choice `json:"choice,omitempty"`
	Source Source          `json:"source,omitempty"`
}

// ErrInputQueueFull is returned when inputs arrive faster than the tick drains them.
var ErrInputQueueFull = errors.New("input queue full")

// Validate checks the shape of an input. Whether it can be applied is decided at tick time.
func (in Input) Validate() error {
	switch in.Action {
	case ActionMoveUp, ActionMoveDown, ActionToggleDoors, ActionPause:
		return nil
	case ActionTriggerDebug:
		_, err := disaster.ParseKind(string(in.Kind))
		return err
	case ActionUprisingDecision:
		if _, ok := disaster.ChoiceEffect[in.Choice]; !ok {
			return fmt.Errorf("unknown uprising decision %q", in.Choice)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", in.Action)
}

// SubmitInput queues an input for the next tick. Safe for concurrent use.
func (e *Engine) SubmitInput(in Input) error {
	if err := in.Validate(); err != nil {
		return simerr.Wrap(simerr.CodeInvalidState, "engine.SubmitInput", err)
	}
	if in.Source == "" {
		in.Source = SourcePlayer1
	}
	e.inputMu.Lock()
	defer e.inputMu.Unlock()
	if len(e.inputs) >= e.cfg.InputQueueSize {
		return ErrInputQueueFull
	}
	e.inputs = append(e.inputs, in)
	return nil
}

func (e *Engine) drainInputs() []Input {
	e.inputMu.Lock()
	defer e.inputMu.Unlock()
	out := e.inputs
	e.inputs = nil
	return out
}

// resolveInputs applies queued inputs in arrival order. A rejected input becomes an
// event; it never aborts the tick.
func (e *Engine) resolveInputs(ti tickInfo) {
	for _, in := range e.drainInputs() {
		if err := e.apply(in, ti); err != nil {
			e.eventLog.Append(ti.event(events.EventTypeInputRejected, string(in.Source), string(in.Action), err.Error()))
			metrics.Get().RecordRejectedInput()
		}
	}
}

func (e *Engine) apply(in Input, ti tickInfo) error {
	if e.paused && in.Action != ActionPause {
		return simerr.New(simerr.CodeInvalidState, "engine.apply", "paused")
	}
	switch in.Action {
	case ActionMoveUp:
		return e.elevator.RequestMove(elevator.Up)
	case ActionMoveDown:
		return e.elevator.RequestMove(elevator.Down)
	case ActionToggleDoors:
		if err := e.elevator.ToggleDoors(); err != nil {
			return err
		}
		f, _ := e.elevator.Floor()
		e.eventLog.Append(ti.event(events.EventTypeDoorsToggled, string(in.Source), floorTarget(f), string(e.elevator.Door())))
		return nil
	case ActionPause:
		e.paused = !e.paused
		e.eventLog.Append(ti.event(events.EventTypePaused, string(in.Source), "", e.paused))
		return nil
	case ActionTriggerDebug:
		_, err := e.scheduler.TriggerDebug(in.Kind, e.world, ti)
		return err
	case ActionUprisingDecision:
		return e.scheduler.Decide(in.Choice, e.world, ti)
	}
	return fmt.Errorf("unknown action %q", in.Action)
}
