// Package storage - reconstructor.go
// Session recap: rebuilds session totals and a readable timeline from the event ledger.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MRamiBalles/TowerMadness/internal/events"
)

// Reconstructor reads a session back out of the event ledger. It is used for:
// 1. The recap screen after a session ends or reconnects
// 2. Auditing the live scoring against what was persisted
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// SessionTotals are the counters of a session, derived only from its events.
type SessionTotals struct {
	Spawned           int   `json:"spawned"`
	Delivered         int   `json:"delivered"`
	Abandoned         int   `json:"abandoned"`
	Trampled          int   `json:"trampled"`
	Triggered         int   `json:"disasters_triggered"`
	Resolved          int   `json:"disasters_resolved"`
	ForcedResolutions int   `json:"forced_resolutions"`
	RobotsEscaped     int   `json:"robots_escaped"`
	LastSeq           int64 `json:"last_seq"`
}

// RecapEvent is a simplified event for the recap screen.
type RecapEvent struct {
	Seq       int64   `json:"seq"`
	SimTime   float64 `json:"sim_time"`
	GameDay   int     `json:"game_day"`
	EventType string  `json:"event_type"`
	Summary   string  `json:"summary"` // Human-readable description
	Impact    string  `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// RebuildTotals replays every event of the session.
func (r *Reconstructor) RebuildTotals(ctx context.Context, sessionID string) (*SessionTotals, error) {
	evs, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session events: %w", err)
	}

	var t SessionTotals
	for _, e := range evs {
		t.LastSeq = max(t.LastSeq, e.Seq)
		switch events.EventType(e.EventType) {
		case events.EventTypePassengerSpawned:
			t.Spawned++
		case events.EventTypePassengerDelivered:
			t.Delivered++
		case events.EventTypePassengerAbandoned:
			t.Abandoned++
			var p events.AbandonPayload
			if json.Unmarshal(e.Payload, &p) == nil && p.Trampling {
				t.Trampled++
			}
		case events.EventTypeDisasterTriggered:
			t.Triggered++
		case events.EventTypeDisasterResolved:
			t.Resolved++
			var p events.DisasterPayload
			if json.Unmarshal(e.Payload, &p) == nil && p.Forced {
				t.ForcedResolutions++
			}
		case events.EventTypeRobotsEscaped:
			var n int
			if json.Unmarshal(e.Payload, &n) == nil {
				t.RobotsEscaped += n
			}
		}
	}
	return &t, nil
}

// GenerateRecap creates the recap timeline from the requested day onwards. Routine
// events (spawns, floor arrivals, door toggles) are left out.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sessionID string, sinceDay int) ([]RecapEvent, error) {
	evs, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var recap []RecapEvent
	for _, e := range evs {
		if e.GameDay < sinceDay {
			continue
		}
		summary, ok := r.summarizeEvent(e)
		if !ok {
			continue
		}
		recap = append(recap, RecapEvent{
			Seq:       e.Seq,
			SimTime:   e.SimTime,
			GameDay:   e.GameDay,
			EventType: e.EventType,
			Summary:   summary,
			Impact:    r.determineImpact(e),
		})
	}
	return recap, nil
}

// summarizeEvent creates a human-readable summary. It reports false for events the
// recap skips.
func (r *Reconstructor) summarizeEvent(e StoredEvent) (string, bool) {
	switch events.EventType(e.EventType) {
	case events.EventTypePassengerDelivered:
		var p events.DeliveryPayload
		if json.Unmarshal(e.Payload, &p) != nil {
			return "A passenger arrived.", true
		}
		if p.Escaped {
			return fmt.Sprintf("An escaped robot made it to floor %d.", p.Destination), true
		}
		return fmt.Sprintf("A %s passenger rode from floor %d to %d.", humanize(p.PassengerType), p.Origin, p.Destination), true
	case events.EventTypePassengerAbandoned:
		var p events.AbandonPayload
		if json.Unmarshal(e.Payload, &p) != nil {
			return "A passenger gave up.", true
		}
		if p.Trampling {
			return fmt.Sprintf("A %s passenger was trampled on floor %d.", humanize(p.PassengerType), p.Floor), true
		}
		return fmt.Sprintf("A %s passenger gave up on floor %d (%s).", humanize(p.PassengerType), p.Floor, p.Cause), true
	case events.EventTypeDisasterTriggered:
		var p events.DisasterPayload
		_ = json.Unmarshal(e.Payload, &p)
		kind := humanize(p.Kind)
		return fmt.Sprintf("%s struck the tower.", strings.ToUpper(kind[:1])+kind[1:]), true
	case events.EventTypeDisasterResolved:
		var p events.DisasterPayload
		_ = json.Unmarshal(e.Payload, &p)
		if p.Forced {
			return fmt.Sprintf("The Resolver made the %s go away.", humanize(p.Kind)), true
		}
		return fmt.Sprintf("The %s is over.", humanize(p.Kind)), true
	case events.EventTypeResolverOverride:
		return "The Resolver boarded and everything was fine again.", true
	case events.EventTypeRobotsEscaped:
		return "Evil robots broke out of the basement.", true
	case events.EventTypeUprisingDecision:
		return fmt.Sprintf("The operator answered the uprising: %s.", strings.ToLower(e.TargetID)), true
	case events.EventTypeSessionRestored:
		return "The session was restored from a save.", true
	default:
		return "", false
	}
}

// determineImpact classifies the event impact.
func (r *Reconstructor) determineImpact(e StoredEvent) string {
	switch events.EventType(e.EventType) {
	case events.EventTypePassengerAbandoned, events.EventTypeDisasterTriggered, events.EventTypeRobotsEscaped:
		return "NEGATIVE"
	case events.EventTypePassengerDelivered:
		var p events.DeliveryPayload
		if json.Unmarshal(e.Payload, &p) == nil && p.Escaped {
			return "NEGATIVE"
		}
		return "POSITIVE"
	case events.EventTypeDisasterResolved, events.EventTypeResolverOverride:
		return "POSITIVE"
	default:
		return "NEUTRAL"
	}
}

// humanize turns GOOD_ROBOT into "good robot".
func humanize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}
