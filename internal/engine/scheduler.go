package engine

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/rules"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/invariant"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// debugTriggerPrefix marks disasters started by hand rather than by a trigger.
const debugTriggerPrefix = "debug:"

// Scheduler is the EventScheduler. It owns the trigger registry, the active disaster
// set (in launch order) and the last-resolved time of every trigger.
type Scheduler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	rng      *rand.Rand

	triggers []Trigger
	active   []disaster.Disaster
	history  map[string]float64
}

// NewScheduler creates a scheduler over triggers, evaluated in the given order.
func NewScheduler(eventLog *events.EventLog, log *logger.Logger, triggers []Trigger, rng *rand.Rand) *Scheduler {
	return &Scheduler{
		eventLog: eventLog,
		logger:   log,
		rng:      rng,
		triggers: slices.Clone(triggers),
		history:  make(map[string]float64),
	}
}

// Triggers returns the registry.
func (s *Scheduler) Triggers() []Trigger { return slices.Clone(s.triggers) }

// Active returns the active set in launch order.
func (s *Scheduler) Active() []disaster.Disaster { return slices.Clone(s.active) }

// History returns trigger id → last resolution time.
func (s *Scheduler) History() map[string]float64 { return maps.Clone(s.history) }

// Unresolved reports whether any disaster is still running.
func (s *Scheduler) Unresolved() bool {
	for _, d := range s.active {
		if !d.IsResolved() {
			return true
		}
	}
	return false
}

// ActiveKinds counts unresolved disasters per kind.
func (s *Scheduler) ActiveKinds() map[disaster.Kind]int {
	out := make(map[disaster.Kind]int)
	for _, d := range s.active {
		if !d.IsResolved() {
			out[d.Meta().Kind]++
		}
	}
	return out
}

// Check runs the trigger pass of one tick and returns the disasters it started.
func (s *Scheduler) Check(dt float64, view View, w *disaster.World, ti tickInfo, resolverPending bool) []disaster.Disaster {
	switch {
	case resolverPending:
		// the Resolver clears the board at end of tick; nothing new starts before that
		return nil
	case view.Harmony >= rules.MaxBalance:
		return nil
	case view.Chaos >= rules.MaxBalance:
		return s.escalate(view, w, ti)
	}

	mult := rules.ProbabilityMultiplier(view.Chaos, view.Harmony)
	var fired []disaster.Disaster
	for _, t := range s.triggers {
		if !s.eligible(t, view.Now) || !t.ready(view) {
			continue
		}
		p := min(1, t.BaseProbability*mult*dt)
		if s.rng.Float64() >= p {
			continue
		}
		d, err := s.fire(t, t.Severity, w, ti)
		if err != nil {
			s.logger.Warnf("trigger %s: %v", t.ID, err)
			continue
		}
		fired = append(fired, d)
	}
	return fired
}

// escalate forces one disaster at High severity when chaos is maxed out. Triggers whose
// predicate holds go first.
func (s *Scheduler) escalate(view View, w *disaster.World, ti tickInfo) []disaster.Disaster {
	var fallback *Trigger
	for i, t := range s.triggers {
		if !s.eligible(t, view.Now) {
			continue
		}
		if t.ready(view) {
			fallback = &s.triggers[i]
			break
		}
		if fallback == nil {
			fallback = &s.triggers[i]
		}
	}
	if fallback == nil {
		return nil
	}
	d, err := s.fire(*fallback, disaster.SeverityHigh, w, ti)
	if err != nil {
		s.logger.Warnf("escalation %s: %v", fallback.ID, err)
		return nil
	}
	s.logger.Warnf("chaos maxed out: forced %s", d.Meta().Kind)
	return []disaster.Disaster{d}
}

// eligible applies cooldown, prerequisites and stackability.
func (s *Scheduler) eligible(t Trigger, now float64) bool {
	if last, ok := s.history[t.ID]; ok && now < last+t.Cooldown {
		return false
	}
	for _, pre := range t.Prerequisites {
		if !s.hasFired(pre) {
			return false
		}
	}
	for _, d := range s.active {
		m := d.Meta()
		if !m.State.Unresolved() {
			continue
		}
		if m.TriggerID == t.ID {
			return false
		}
		if m.Kind == t.Kind && !t.Kind.Stackable() {
			return false
		}
	}
	return true
}

func (s *Scheduler) hasFired(triggerID string) bool {
	if _, ok := s.history[triggerID]; ok {
		return true
	}
	for _, d := range s.active {
		if d.Meta().TriggerID == triggerID {
			return true
		}
	}
	return false
}

func (s *Scheduler) fire(t Trigger, severity disaster.Severity, w *disaster.World, ti tickInfo) (disaster.Disaster, error) {
	d, err := disaster.New(t.Kind, severity)
	if err != nil {
		return nil, err
	}
	if err := s.Launch(d, t.ID, w, ti); err != nil {
		return nil, err
	}
	return d, nil
}

// Launch initializes d and adds it to the active set. A second unresolved instance of a
// non-stackable kind is refused.
func (s *Scheduler) Launch(d disaster.Disaster, triggerID string, w *disaster.World, ti tickInfo) error {
	const op = "scheduler.Launch"
	m := d.Meta()
	if !m.Kind.Stackable() {
		for _, other := range s.active {
			if other.Meta().Kind == m.Kind && !other.IsResolved() {
				return simerr.New(simerr.CodeInvalidState, op, "a %s is already running", m.Kind)
			}
		}
	}
	m.TriggerID = triggerID
	m.CreatedAt = ti.now
	d.Initialize(w)
	s.active = append(s.active, d)
	s.checkStackability()

	s.eventLog.Append(ti.event(events.EventTypeDisasterTriggered, m.ID, triggerID, disasterPayload(m, "")))
	s.logger.Event("DISASTER_TRIGGERED", m.ID, fmt.Sprintf("%s (%s) via %s", m.Kind, m.Severity, triggerID))
	metrics.Get().RecordDisaster()
	return nil
}

// TriggerDebug starts a disaster of kind by hand, skipping probability and cooldown.
func (s *Scheduler) TriggerDebug(kind disaster.Kind, w *disaster.World, ti tickInfo) (disaster.Disaster, error) {
	d, err := disaster.New(kind, disaster.SeverityMedium)
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeInvalidState, "scheduler.TriggerDebug", err)
	}
	if err := s.Launch(d, debugTriggerPrefix+string(kind), w, ti); err != nil {
		return nil, err
	}
	return d, nil
}

// Update advances every disaster that was active at the start of the pass, then drops
// the resolved ones. Children launched during the pass start next tick.
func (s *Scheduler) Update(dt float64, w *disaster.World, ti tickInfo) {
	n := len(s.active)
	for i := 0; i < n; i++ {
		s.active[i].Update(dt, w)
	}
	s.prune(ti)
}

// ResolveAll force-resolves every Active or Resolving disaster. Pending ones have not
// touched the tower yet and are left alone. Forced resolutions earn no bonus.
func (s *Scheduler) ResolveAll(w *disaster.World, ti tickInfo) int {
	count := 0
	for _, d := range s.active {
		m := d.Meta()
		if m.State != disaster.StateActive && m.State != disaster.StateResolving {
			continue
		}
		m.Forced = true
		d.Resolve(w)
		count++
	}
	s.prune(ti)
	return count
}

// Decide answers the running robot uprising.
func (s *Scheduler) Decide(choice disaster.Choice, w *disaster.World, ti tickInfo) error {
	const op = "scheduler.Decide"
	for _, d := range s.active {
		r, ok := d.(*disaster.RobotUprising)
		if !ok || r.State != disaster.StateActive {
			continue
		}
		if err := r.Decide(choice, w); err != nil {
			return simerr.Wrap(simerr.CodeInvalidState, op, err)
		}
		s.eventLog.Append(ti.event(events.EventTypeUprisingDecision, r.ID, string(choice), disasterPayload(&r.Base, string(choice))))
		return nil
	}
	return simerr.New(simerr.CodeNotFound, op, "no active robot uprising")
}

func (s *Scheduler) prune(ti tickInfo) {
	kept := s.active[:0]
	for _, d := range s.active {
		if !d.IsResolved() {
			kept = append(kept, d)
			continue
		}
		m := d.Meta()
		if m.TriggerID != "" {
			s.history[m.TriggerID] = ti.now
		}
		s.eventLog.Append(ti.event(events.EventTypeDisasterResolved, m.ID, m.TriggerID, disasterPayload(m, "")))
		metrics.Get().RecordResolution()
	}
	clear(s.active[len(kept):])
	s.active = kept
}

// Load replaces the active set and history from a saved session.
func (s *Scheduler) Load(active []disaster.Disaster, history map[string]float64) {
	s.active = slices.Clone(active)
	s.history = maps.Clone(history)
	if s.history == nil {
		s.history = make(map[string]float64)
	}
	s.checkStackability()
}

func (s *Scheduler) checkStackability() {
	seen := make(map[disaster.Kind]bool)
	for _, d := range s.active {
		m := d.Meta()
		if m.Kind.Stackable() || d.IsResolved() {
			continue
		}
		invariant.Check(!seen[m.Kind], "scheduler", "two unresolved %s disasters", m.Kind)
		seen[m.Kind] = true
	}
}

func disasterPayload(m *disaster.Base, detail string) events.DisasterPayload {
	return events.DisasterPayload{
		Kind:      string(m.Kind),
		Severity:  int(m.Severity),
		TriggerID: m.TriggerID,
		Phase:     string(m.State),
		Floors:    slices.Clone(m.AffectedFloors),
		Forced:    m.Forced,
		Detail:    detail,
	}
}
