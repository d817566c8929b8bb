// Package metrics provides observability for the tower server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and gameplay metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Gameplay
	Spawned            int64
	Delivered          int64
	Abandoned          int64
	RejectedInputs     int64
	DisastersTriggered int64
	DisastersResolved  int64
	ResolverOverrides  int64

	// Event store metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteErrors int64
	EventsDropped    int64
	EventPersistErrs int64
	SessionSaves     int64
	SessionSaveErrs  int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// Content generation
	AssetRequests int64
	AssetFailures int64
	AssetCacheHit int64
	AICostUSD     float64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	for {
		cur := atomic.LoadInt64(&c.TickLatencyMax)
		if int64(latency) <= cur || atomic.CompareAndSwapInt64(&c.TickLatencyMax, cur, int64(latency)) {
			break
		}
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

func (c *Collector) RecordSpawn()          { atomic.AddInt64(&c.Spawned, 1) }
func (c *Collector) RecordDelivery()       { atomic.AddInt64(&c.Delivered, 1) }
func (c *Collector) RecordAbandonment()    { atomic.AddInt64(&c.Abandoned, 1) }
func (c *Collector) RecordRejectedInput()  { atomic.AddInt64(&c.RejectedInputs, 1) }
func (c *Collector) RecordDisaster()       { atomic.AddInt64(&c.DisastersTriggered, 1) }
func (c *Collector) RecordResolution()     { atomic.AddInt64(&c.DisastersResolved, 1) }
func (c *Collector) RecordResolverPickup() { atomic.AddInt64(&c.ResolverOverrides, 1) }

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordEventDropped records an event the persister queue had no room for.
func (c *Collector) RecordEventDropped() { atomic.AddInt64(&c.EventsDropped, 1) }

// RecordEventPersistFailure records an event the persister refused.
func (c *Collector) RecordEventPersistFailure() { atomic.AddInt64(&c.EventPersistErrs, 1) }

// RecordSessionSave records an autosave or manual save.
func (c *Collector) RecordSessionSave(err error) {
	atomic.AddInt64(&c.SessionSaves, 1)
	if err != nil {
		atomic.AddInt64(&c.SessionSaveErrs, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordAsset records a content generation outcome.
func (c *Collector) RecordAsset(cacheHit bool, err error, costUSD float64) {
	if cacheHit {
		atomic.AddInt64(&c.AssetCacheHit, 1)
		return
	}
	atomic.AddInt64(&c.AssetRequests, 1)
	if err != nil {
		atomic.AddInt64(&c.AssetFailures, 1)
	}
	c.mu.Lock()
	c.AICostUSD += costUSD
	c.mu.Unlock()
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"gameplay": map[string]interface{}{
			"spawned":             atomic.LoadInt64(&c.Spawned),
			"delivered":           atomic.LoadInt64(&c.Delivered),
			"abandoned":           atomic.LoadInt64(&c.Abandoned),
			"rejected_inputs":     atomic.LoadInt64(&c.RejectedInputs),
			"disasters_triggered": atomic.LoadInt64(&c.DisastersTriggered),
			"disasters_resolved":  atomic.LoadInt64(&c.DisastersResolved),
			"resolver_overrides":  atomic.LoadInt64(&c.ResolverOverrides),
		},

		"storage": map[string]interface{}{
			"events_written":   eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"write_errors":     atomic.LoadInt64(&c.EventWriteErrors),
			"events_dropped":   atomic.LoadInt64(&c.EventsDropped),
			"persist_failures": atomic.LoadInt64(&c.EventPersistErrs),
			"session_saves":    atomic.LoadInt64(&c.SessionSaves),
			"save_errors":      atomic.LoadInt64(&c.SessionSaveErrs),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},

		"assets": map[string]interface{}{
			"requests":   atomic.LoadInt64(&c.AssetRequests),
			"failures":   atomic.LoadInt64(&c.AssetFailures),
			"cache_hits": atomic.LoadInt64(&c.AssetCacheHit),
			"cost_usd":   c.AICostUSD,
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(collector.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c := collector

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP tower_%s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE tower_%s counter\n", name)
			fmt.Fprintf(w, "tower_%s %d\n\n", name, v)
		}

		counter("tick_count", "Total tick cycles", atomic.LoadInt64(&c.TickCount))
		fmt.Fprintf(w, "# HELP tower_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE tower_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "tower_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		counter("passengers_delivered", "Passengers delivered", atomic.LoadInt64(&c.Delivered))
		counter("passengers_abandoned", "Passengers who gave up", atomic.LoadInt64(&c.Abandoned))
		counter("disasters_triggered", "Disasters instantiated", atomic.LoadInt64(&c.DisastersTriggered))
		counter("disasters_resolved", "Disasters resolved", atomic.LoadInt64(&c.DisastersResolved))
		counter("events_written", "Events persisted", atomic.LoadInt64(&c.EventsWritten))
		counter("event_write_errors", "Event write errors", atomic.LoadInt64(&c.EventWriteErrors))
		counter("events_dropped", "Events not persisted because the queue was full", atomic.LoadInt64(&c.EventsDropped))
		counter("event_persist_failures", "Events the persister refused", atomic.LoadInt64(&c.EventPersistErrs))

		fmt.Fprintf(w, "# HELP tower_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE tower_ws_connections gauge\n")
		fmt.Fprintf(w, "tower_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP tower_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE tower_ws_messages_total counter\n")
		fmt.Fprintf(w, "tower_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "tower_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		counter("asset_requests", "Content generation requests", atomic.LoadInt64(&c.AssetRequests))
		counter("asset_failures", "Content generation failures", atomic.LoadInt64(&c.AssetFailures))

		c.mu.RLock()
		fmt.Fprintf(w, "# HELP tower_ai_cost_usd Total content generation cost in USD\n")
		fmt.Fprintf(w, "# TYPE tower_ai_cost_usd counter\n")
		fmt.Fprintf(w, "tower_ai_cost_usd %.4f\n", c.AICostUSD)
		c.mu.RUnlock()
	}
}
