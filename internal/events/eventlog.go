// Package events provides the append-only event log of a tower session.
// Scoring and balance reconcile from it; the replay endpoint and the recap read it back.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypePassengerSpawned   EventType = "PASSENGER_SPAWNED"
	EventTypePassengerBoarded   EventType = "PASSENGER_BOARDED"
	EventTypePassengerDelivered EventType = "PASSENGER_DELIVERED"
	EventTypePassengerAbandoned EventType = "PASSENGER_ABANDONED"
	EventTypePassengerEvacuated EventType = "PASSENGER_EVACUATED"
	EventTypeFloorReached       EventType = "FLOOR_REACHED"
	EventTypeDoorsToggled       EventType = "DOORS_TOGGLED"
	EventTypeInputRejected      EventType = "INPUT_REJECTED"
	EventTypePaused             EventType = "PAUSED"
	EventTypeDisasterTriggered  EventType = "DISASTER_TRIGGERED"
	EventTypeDisasterPhase      EventType = "DISASTER_PHASE"
	EventTypeDisasterResolved   EventType = "DISASTER_RESOLVED"
	EventTypeUprisingDecision   EventType = "UPRISING_DECISION"
	EventTypeResolverOverride   EventType = "RESOLVER_OVERRIDE"
	EventTypeRobotsEscaped      EventType = "ROBOTS_ESCAPED"
	EventTypeAssetReady         EventType = "ASSET_READY"
	EventTypeAssetFailed        EventType = "ASSET_FAILED"
	EventTypeSessionRestored    EventType = "SESSION_RESTORED"
)

// DeliveryPayload describes a completed ride.
type DeliveryPayload struct {
	PassengerType string `json:"passenger_type"`
	Origin        int    `json:"origin"`
	Destination   int    `json:"destination"`
	Theme         string `json:"theme"`
	Escaped       bool   `json:"escaped,omitempty"`
}

// AbandonPayload describes a passenger giving up.
type AbandonPayload struct {
	PassengerType string `json:"passenger_type"`
	Floor         int    `json:"floor"`
	State         string `json:"state"` // what they were doing when they gave up
	Trampling     bool   `json:"trampling"`
	Cause         string `json:"cause"`
}

// DisasterPayload describes a disaster lifecycle change.
type DisasterPayload struct {
	Kind      string `json:"kind"`
	Severity  int    `json:"severity"`
	TriggerID string `json:"trigger_id,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Floors    []int  `json:"floors,omitempty"`
	Forced    bool   `json:"forced,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// GameEvent represents an immutable record of something that happened in the tower.
type GameEvent struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	SimTime   float64     `json:"sim_time"`
	Tick      int64       `json:"tick"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`            // passenger, disaster or player
	TargetID  string      `json:"target_id,omitempty"` // floor or affected entity
	Payload   interface{} `json:"payload,omitempty"`
	GameDay   int         `json:"game_day"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// DefaultRetention bounds the in-memory log of a long session.
const DefaultRetention = 10000

// EventLog is the in-memory append-only log. Sequence numbers never repeat, even after
// old events are dropped from memory.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	lastSeq   int64
	retention int
	persister EventPersister
	queue     chan GameEvent
	done      chan struct{}
	dropped   int64
	failed    int64

	warn warnLimiter
}

// persistQueueSize is how many events may wait for the persister before Append drops.
const persistQueueSize = 1024

// warnInterval spaces out storage warnings; a dead disk fails every event.
const warnInterval = 10 * time.Second

// warnLimiter logs the first storage problem and then at most one line per interval,
// counting what it held back.
type warnLimiter struct {
	mu         sync.Mutex
	log        *logger.Logger
	last       time.Time
	suppressed int
	now        func() time.Time
}

func (w *warnLimiter) warnf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.log == nil {
		return
	}
	now := time.Now()
	if w.now != nil {
		now = w.now()
	}
	if !w.last.IsZero() && now.Sub(w.last) < warnInterval {
		w.suppressed++
		return
	}
	if w.suppressed > 0 {
		format += " (%d similar warnings suppressed)"
		args = append(args, w.suppressed)
	}
	w.log.Warnf(format, args...)
	w.last = now
	w.suppressed = 0
}

func (w *warnLimiter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.log != nil && w.suppressed > 0 {
		w.log.Warnf("event log: %d storage warnings suppressed before close", w.suppressed)
		w.suppressed = 0
	}
}

// NewEventLog creates a new event log with an optional persister. With a persister,
// writes go through one background writer so they reach storage in order.
func NewEventLog(persister EventPersister) *EventLog {
	return newEventLog(persister, persistQueueSize)
}

func newEventLog(persister EventPersister, queueSize int) *EventLog {
	el := &EventLog{
		events:    make([]GameEvent, 0, 256),
		retention: DefaultRetention,
		persister: persister,
	}
	if persister != nil {
		el.warn.log = logger.NewLogger()
		el.queue = make(chan GameEvent, queueSize)
		el.done = make(chan struct{})
		go el.writeLoop()
	}
	return el
}

func (el *EventLog) writeLoop() {
	defer close(el.done)
	for e := range el.queue {
		if err := el.persister.Append(e); err != nil {
			el.mu.Lock()
			el.failed++
			el.mu.Unlock()
			metrics.Get().RecordEventPersistFailure()
			el.warn.warnf("event log: failed to persist event %d (%s): %v", e.Seq, e.Type, err)
		}
	}
}

// SetLogger sets where storage failures and dropped events are reported.
func (el *EventLog) SetLogger(log *logger.Logger) {
	el.warn.mu.Lock()
	defer el.warn.mu.Unlock()
	el.warn.log = log
}

// Close flushes pending writes and stops the background writer.
func (el *EventLog) Close() {
	if el.queue == nil {
		return
	}
	el.mu.Lock()
	q := el.queue
	el.queue = nil
	el.mu.Unlock()
	if q != nil {
		close(q)
		<-el.done
	}
	el.warn.flush()
}

// SetRetention changes how many events are kept in memory.
func (el *EventLog) SetRetention(n int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if n > 0 {
		el.retention = n
	}
}

// Append adds a new event to the log, filling in id, sequence and timestamp.
func (el *EventLog) Append(event GameEvent) GameEvent {
	el.mu.Lock()
	defer el.mu.Unlock()

	el.lastSeq++
	event.Seq = el.lastSeq
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	el.events = append(el.events, event)
	if over := len(el.events) - el.retention; over > 0 {
		el.events = append(el.events[:0:0], el.events[over:]...)
	}

	if el.queue != nil {
		select {
		case el.queue <- event:
		default:
			el.dropped++
			metrics.Get().RecordEventDropped()
			el.warn.warnf("event log: persist queue full, event %d (%s) not stored (%d dropped so far)",
				event.Seq, event.Type, el.dropped)
		}
	}
	return event
}

// Since returns every retained event with a sequence number greater than seq.
func (el *EventLog) Since(seq int64) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	i := len(el.events)
	for i > 0 && el.events[i-1].Seq > seq {
		i--
	}
	out := make([]GameEvent, len(el.events)-i)
	copy(out, el.events[i:])
	return out
}

// LastSeq returns the sequence number of the newest event.
func (el *EventLog) LastSeq() int64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.lastSeq
}

// GetByActor returns all retained events performed by a specific actor.
func (el *EventLog) GetByActor(actorID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all retained events of a type.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the retained history.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]GameEvent, len(el.events))
	copy(out, el.events)
	return out
}

// Dropped reports how many events the persister queue had to skip.
func (el *EventLog) Dropped() int64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.dropped
}

// Failed reports how many events the persister refused.
func (el *EventLog) Failed() int64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.failed
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
