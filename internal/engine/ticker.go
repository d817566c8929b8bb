package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

const (
	// GameMinutesPerSecond is how fast the tower clock runs against simulated time.
	GameMinutesPerSecond = 2.0
	// StartHour is the tower clock at the start of a session.
	StartHour = 8
	// maxFrame caps dt after a stall so one late frame cannot skip a whole disaster.
	maxFrame = 250 * time.Millisecond
)

// Clock is the tower's time of day. It only moves when the simulation ticks.
type Clock struct {
	Elapsed   float64 `json:"elapsed"` // simulated seconds
	StartHour int     `json:"start_hour"`
}

// NewClock starts at StartHour.
func NewClock() Clock {
	return Clock{StartHour: StartHour}
}

// Advance moves the clock forward by dt simulated seconds.
func (c *Clock) Advance(dt float64) {
	if dt > 0 {
		c.Elapsed += dt
	}
}

func (c Clock) totalMinutes() int {
	return c.StartHour*60 + int(c.Elapsed*GameMinutesPerSecond)
}

// Day is 1-based.
func (c Clock) Day() int    { return c.totalMinutes()/(24*60) + 1 }
func (c Clock) Hour() int   { return c.totalMinutes() / 60 % 24 }
func (c Clock) Minute() int { return c.totalMinutes() % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("Day %d %02d:%02d", c.Day(), c.Hour(), c.Minute())
}

// Night reports the quiet hours, 22:00 to 06:00.
func (c Clock) Night() bool {
	h := c.Hour()
	return h >= 22 || h < 6
}

// SpawnWeight is the time-of-day traffic factor: morning and evening rush, lunch,
// and a quiet night.
func (c Clock) SpawnWeight() float64 {
	switch h := c.Hour(); {
	case h >= 8 && h < 10, h >= 17 && h < 19:
		return 1.8
	case h >= 12 && h < 14:
		return 1.4
	case c.Night():
		return 0.4
	default:
		return 1
	}
}

// Ticker drives an Engine in real time.
type Ticker struct {
	engine   *Engine
	logger   *logger.Logger
	rate     time.Duration
	onTick   func(Snapshot)
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a ticker that calls onTick with every snapshot. onTick may be nil.
func NewTicker(e *Engine, rate time.Duration, log *logger.Logger, onTick func(Snapshot)) *Ticker {
	if rate <= 0 {
		rate = 50 * time.Millisecond
	}
	return &Ticker{
		engine:   e,
		logger:   log,
		rate:     rate,
		onTick:   onTick,
		stopChan: make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled or Stop is called. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Infof("Tower ticker started at %s per frame", t.rate)

	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Tower ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Tower ticker stopped manually.")
			return
		case now := <-ticker.C:
			frame := min(now.Sub(last), maxFrame)
			last = now

			started := time.Now()
			snap := t.engine.Tick(frame.Seconds())
			metrics.Get().RecordTick(time.Since(started))

			if t.onTick != nil {
				t.onTick(snap)
			}
		}
	}
}

// Stop gracefully stops the ticker. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}
