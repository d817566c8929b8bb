package engine

import (
	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/rules"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/invariant"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

// escapedRobotChaos is added when an uprising lets robots out of the basement.
const escapedRobotChaos = 10.0

// BalanceSystem is the BalanceTracker: the chaos and harmony scalars of the session.
// It is created once per session and only ever adjusted.
type BalanceSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger

	chaos   float64
	harmony float64
	lastSeq int64

	emergency bool
	flow      bool
}

// NewBalanceSystem starts a calm tower.
func NewBalanceSystem(eventLog *events.EventLog, log *logger.Logger) *BalanceSystem {
	return &BalanceSystem{eventLog: eventLog, logger: log}
}

// Adjust applies a delta and clamps both scalars to [0, MaxBalance].
func (bs *BalanceSystem) Adjust(chaos, harmony float64) {
	bs.chaos = clampBalance(bs.chaos + chaos)
	bs.harmony = clampBalance(bs.harmony + harmony)
	invariant.Check(bs.chaos >= 0 && bs.chaos <= rules.MaxBalance, "balance", "chaos %.2f out of range", bs.chaos)
	invariant.Check(bs.harmony >= 0 && bs.harmony <= rules.MaxBalance, "balance", "harmony %.2f out of range", bs.harmony)
	bs.checkThresholds()
}

func (bs *BalanceSystem) Chaos() float64   { return bs.chaos }
func (bs *BalanceSystem) Harmony() float64 { return bs.harmony }

// Multiplier scales every trigger probability.
func (bs *BalanceSystem) Multiplier() float64 {
	return rules.ProbabilityMultiplier(bs.chaos, bs.harmony)
}

// Emergency reports chaos above the emergency threshold.
func (bs *BalanceSystem) Emergency() bool { return bs.emergency }

// Flow reports harmony above the bonus-spawn threshold.
func (bs *BalanceSystem) Flow() bool { return bs.flow }

// Decay relaxes both scalars toward zero.
func (bs *BalanceSystem) Decay(dt float64) {
	bs.Adjust(-rules.ChaosDecayPerSecond*dt, -rules.HarmonyDecayPerSecond*dt)
}

// Load restores the scalars of a saved session. The event cursor moves to the end of
// the log so restored history is not counted twice.
func (bs *BalanceSystem) Load(chaos, harmony float64) {
	bs.chaos = clampBalance(chaos)
	bs.harmony = clampBalance(harmony)
	bs.lastSeq = bs.eventLog.LastSeq()
	bs.checkThresholds()
}

// Reconcile applies the balance effect of every event appended since the last call.
func (bs *BalanceSystem) Reconcile() {
	for _, event := range bs.eventLog.Since(bs.lastSeq) {
		bs.lastSeq = event.Seq
		bs.dispatch(event)
	}
}

func (bs *BalanceSystem) dispatch(event events.GameEvent) {
	switch event.Type {
	case events.EventTypePassengerDelivered:
		p, ok := event.Payload.(events.DeliveryPayload)
		if !ok {
			return
		}
		d := rules.DeliveryBalance(rules.Delivery{
			Type:        passenger.Type(p.PassengerType),
			Destination: floor.Theme(p.Theme),
			Escaped:     p.Escaped,
		})
		bs.Adjust(d.Chaos, d.Harmony)

	case events.EventTypePassengerAbandoned:
		p, ok := event.Payload.(events.AbandonPayload)
		if !ok {
			return
		}
		d := rules.AbandonBalance(passenger.Type(p.PassengerType))
		bs.Adjust(d.Chaos, d.Harmony)

	case events.EventTypeDisasterPhase:
		p, ok := event.Payload.(events.DisasterPayload)
		if ok && p.Phase == string(disaster.StateActive) {
			bs.Adjust(rules.TriggerChaos(p.Severity), 0)
		}

	case events.EventTypeDisasterResolved:
		p, ok := event.Payload.(events.DisasterPayload)
		if ok && !p.Forced {
			bs.Adjust(0, rules.ResolutionHarmony)
		}

	case events.EventTypeRobotsEscaped:
		bs.Adjust(escapedRobotChaos, 0)
	}
}

func (bs *BalanceSystem) checkThresholds() {
	emergency := bs.chaos > rules.EmergencyChaos
	if emergency != bs.emergency {
		bs.emergency = emergency
		if emergency {
			bs.logger.Warnf("chaos %.0f: the tower is in emergency mode", bs.chaos)
		}
	}
	flow := bs.harmony > rules.FlowHarmony
	if flow != bs.flow {
		bs.flow = flow
		if flow {
			bs.logger.Infof("harmony %.0f: the tower is in flow", bs.harmony)
		}
	}
}

func clampBalance(v float64) float64 {
	return min(max(v, 0), rules.MaxBalance)
}
