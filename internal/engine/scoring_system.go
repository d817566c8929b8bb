package engine

import (
	"github.com/MRamiBalles/TowerMadness/internal/domain/floor"
	"github.com/MRamiBalles/TowerMadness/internal/domain/passenger"
	"github.com/MRamiBalles/TowerMadness/internal/domain/rules"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

// ScoreState is the persisted score of a session.
type ScoreState struct {
	Total             int `json:"total"`
	Streak            int `json:"streak"`
	Delivered         int `json:"delivered"`
	Abandoned         int `json:"abandoned"`
	DisastersResolved int `json:"disasters_resolved"`
}

// ScoringSystem is the ScoringEngine. It never looks at passengers directly; it replays
// delivery, abandonment and resolution events from the log.
type ScoringSystem struct {
	eventLog   *events.EventLog
	logger     *logger.Logger
	difficulty float64

	state   ScoreState
	lastSeq int64
}

// NewScoringSystem creates a scorer with the difficulty's multiplier.
func NewScoringSystem(eventLog *events.EventLog, log *logger.Logger, difficulty float64) *ScoringSystem {
	if difficulty <= 0 {
		difficulty = 1
	}
	return &ScoringSystem{eventLog: eventLog, logger: log, difficulty: difficulty}
}

// State returns the current score.
func (ss *ScoringSystem) State() ScoreState { return ss.state }

// Total returns the current points.
func (ss *ScoringSystem) Total() int { return ss.state.Total }

// AddBonus adds points outside the event flow, e.g. the Resolver pickup.
func (ss *ScoringSystem) AddBonus(points int) {
	ss.state.Total += points
}

// Load restores a saved score and skips events already in the log.
func (ss *ScoringSystem) Load(st ScoreState) {
	ss.state = st
	ss.lastSeq = ss.eventLog.LastSeq()
}

// Reconcile scores every event appended since the last call.
func (ss *ScoringSystem) Reconcile() {
	for _, event := range ss.eventLog.Since(ss.lastSeq) {
		ss.lastSeq = event.Seq
		ss.dispatch(event)
	}
}

func (ss *ScoringSystem) dispatch(event events.GameEvent) {
	switch event.Type {
	case events.EventTypePassengerDelivered:
		p, ok := event.Payload.(events.DeliveryPayload)
		if !ok {
			return
		}
		points := rules.DeliveryPoints(rules.Delivery{
			Type:        passenger.Type(p.PassengerType),
			Destination: floor.Theme(p.Theme),
			Escaped:     p.Escaped,
		})
		if points > 0 {
			ss.state.Streak++
		}
		ss.state.Total += rules.ScaleDelivery(points, ss.state.Streak, ss.difficulty)
		ss.state.Delivered++

	case events.EventTypePassengerAbandoned:
		p, ok := event.Payload.(events.AbandonPayload)
		if !ok {
			return
		}
		ss.state.Total += rules.AbandonmentPoints(p.Trampling)
		ss.state.Streak = 0
		ss.state.Abandoned++

	case events.EventTypeDisasterResolved:
		p, ok := event.Payload.(events.DisasterPayload)
		if ok && !p.Forced {
			ss.state.Total += rules.DisasterResolutionBonus
			ss.state.DisastersResolved++
		}
	}
}
