package events

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

type memPersister struct {
	mu   sync.Mutex
	seen []int64
}

func (m *memPersister) Append(e GameEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, e.Seq)
	return nil
}

func TestSinceUsesSequenceCursor(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypePassengerSpawned, ActorID: "p1"})
	cursor := el.LastSeq()
	el.Append(GameEvent{Type: EventTypePassengerDelivered, ActorID: "p1"})
	el.Append(GameEvent{Type: EventTypePassengerAbandoned, ActorID: "p2"})

	got := el.Since(cursor)
	if len(got) != 2 || got[0].Type != EventTypePassengerDelivered {
		t.Fatalf("Since(%d) = %+v", cursor, got)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Errorf("Append did not stamp the event")
	}
	if len(el.Since(el.LastSeq())) != 0 {
		t.Errorf("nothing should follow the last sequence")
	}
}

func TestRetentionKeepsSequence(t *testing.T) {
	el := NewEventLog(nil)
	el.SetRetention(3)
	for i := 0; i < 10; i++ {
		el.Append(GameEvent{Type: EventTypeFloorReached})
	}
	all := el.Replay()
	if len(all) != 3 || all[0].Seq != 8 || all[2].Seq != 10 {
		t.Fatalf("retained %+v", all)
	}
	if got := el.Since(0); len(got) != 3 {
		t.Errorf("Since(0) = %d events", len(got))
	}
}

func TestPersisterReceivesEventsInOrder(t *testing.T) {
	p := &memPersister{}
	el := NewEventLog(p)
	for i := 0; i < 20; i++ {
		el.Append(GameEvent{Type: EventTypeDoorsToggled})
	}
	el.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seen) != 20 {
		t.Fatalf("persisted %d events", len(p.seen))
	}
	for i, seq := range p.seen {
		if seq != int64(i+1) {
			t.Fatalf("event %d persisted out of order: seq %d", i, seq)
		}
	}
}

func TestGetByActorAndType(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypePassengerBoarded, ActorID: "p3"})
	el.Append(GameEvent{Type: EventTypeDisasterTriggered, ActorID: "flood"})
	el.Append(GameEvent{Type: EventTypePassengerDelivered, ActorID: "p3"})

	if got := el.GetByActor("p3"); len(got) != 2 {
		t.Errorf("GetByActor = %d", len(got))
	}
	if got := el.GetByType(EventTypeDisasterTriggered); len(got) != 1 || got[0].ActorID != "flood" {
		t.Errorf("GetByType = %+v", got)
	}
}

type failingPersister struct{}

func (failingPersister) Append(GameEvent) error { return errors.New("disk I/O error") }

// blockingPersister holds the writer on its first event until release is closed.
type blockingPersister struct {
	release chan struct{}
	mu      sync.Mutex
	stored  int
}

func (b *blockingPersister) Append(GameEvent) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored++
	return nil
}

func TestPersisterFailuresAreReported(t *testing.T) {
	var buf bytes.Buffer
	before := atomic.LoadInt64(&metrics.Get().EventPersistErrs)

	el := NewEventLog(failingPersister{})
	el.SetLogger(logger.NewWriterLogger(&buf))
	for i := 0; i < 5; i++ {
		el.Append(GameEvent{Type: EventTypePassengerDelivered})
	}
	el.Close()

	if el.Failed() != 5 {
		t.Errorf("Failed() = %d, want 5", el.Failed())
	}
	if got := atomic.LoadInt64(&metrics.Get().EventPersistErrs) - before; got != 5 {
		t.Errorf("metric counted %d failures", got)
	}
	out := buf.String()
	if strings.Count(out, "failed to persist event") != 1 || !strings.Contains(out, "disk I/O error") {
		t.Errorf("want one rate-limited warning, got:\n%s", out)
	}
	if !strings.Contains(out, "4 storage warnings suppressed") {
		t.Errorf("suppressed warnings not summarized on close:\n%s", out)
	}
}

func TestFullQueueDropsAreReported(t *testing.T) {
	var buf bytes.Buffer
	before := atomic.LoadInt64(&metrics.Get().EventsDropped)

	p := &blockingPersister{release: make(chan struct{})}
	el := newEventLog(p, 2)
	el.SetLogger(logger.NewWriterLogger(&buf))
	for i := 0; i < 10; i++ {
		el.Append(GameEvent{Type: EventTypeFloorReached})
	}
	dropped := el.Dropped()
	// at most the queue plus the event held by the writer got through
	if dropped < 7 {
		t.Errorf("Dropped() = %d, want at least 7", dropped)
	}
	close(p.release)
	el.Close()

	if int64(p.stored)+dropped != 10 {
		t.Errorf("stored %d + dropped %d != 10", p.stored, dropped)
	}
	if got := atomic.LoadInt64(&metrics.Get().EventsDropped) - before; got != dropped {
		t.Errorf("metric counted %d drops, log says %d", got, dropped)
	}
	if !strings.Contains(buf.String(), "persist queue full") {
		t.Errorf("drop not logged:\n%s", buf.String())
	}
}

func TestWarnLimiterSpacesWarnings(t *testing.T) {
	var buf bytes.Buffer
	now := time.Unix(0, 0)
	w := warnLimiter{log: logger.NewWriterLogger(&buf), now: func() time.Time { return now }}

	w.warnf("first")
	w.warnf("second")
	now = now.Add(warnInterval)
	w.warnf("third")

	out := buf.String()
	if strings.Contains(out, "second") || !strings.Contains(out, "third (1 similar warnings suppressed)") {
		t.Errorf("limiter output:\n%s", out)
	}
}
