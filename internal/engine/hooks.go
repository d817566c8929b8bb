package engine

import (
	"fmt"
	"strings"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/events"
)

// engineHooks lets disasters reach passenger bookkeeping and the event log without
// holding a reference to the engine's tables.
type engineHooks struct {
	e *Engine
}

func (h engineHooks) Evacuate(floorID int, cause string) {
	h.e.spawner.Evacuate(floorID, cause, h.e.tickInfo(), h.e.world.Mods.TramplingRisk)
}

func (h engineHooks) SpawnSubDisaster(kind disaster.Kind, severity disaster.Severity, parentID string) bool {
	d, err := disaster.New(kind, severity)
	if err != nil {
		return false
	}
	if po, ok := d.(*disaster.PowerOutage); ok {
		po.ParentID = parentID
	}
	if err := h.e.scheduler.Launch(d, "", h.e.world, h.e.tickInfo()); err != nil {
		h.e.logger.Infof("sub-disaster %s of %s refused: %v", kind, parentID, err)
		return false
	}
	return true
}

func (h engineHooks) ReleaseEscapedRobots(floorID, n int) {
	h.e.spawner.ReleaseEscaped(floorID, n, h.e.tickInfo())
}

// Notify records lifecycle changes as DISASTER_PHASE events. Only the lifecycle words
// carry a phase; anything else is detail.
func (h engineHooks) Notify(b *disaster.Base, what string) {
	payload := disasterPayload(b, what)
	if !strings.EqualFold(what, string(b.State)) {
		payload.Phase = ""
	}
	h.e.eventLog.Append(h.e.tickInfo().event(events.EventTypeDisasterPhase, b.ID, b.TriggerID, payload))
	h.e.logger.Event("DISASTER_"+strings.ToUpper(string(b.Kind)), b.ID, fmt.Sprintf("%s (%s)", what, b.Severity))
}
