// Package network is the outer surface of the tower: the WebSocket hub that streams
// snapshots to the two operators and to spectators, and the REST endpoints for the
// audience, replays and recaps.
package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/platform/config"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

// Tower is what the network layer needs from the engine.
type Tower interface {
	SubmitInput(in engine.Input) error
	Latest() engine.Snapshot
}

// MessageType tags every frame sent to clients.
type MessageType string

const (
	MsgTypeWelcome  MessageType = "WELCOME"
	MsgTypeSnapshot MessageType = "SNAPSHOT"
	MsgTypeEvent    MessageType = "EVENT"
	MsgTypeError    MessageType = "ERROR"
)

// Message is the envelope of every outgoing frame.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SourceSpectator marks a client without a seat; it only watches.
const SourceSpectator engine.Source = "spectator"

// seatOrder is the order operators are seated in.
var seatOrder = []engine.Source{engine.SourcePlayer1, engine.SourcePlayer2}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	seats      map[engine.Source]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	tower      Tower
	tuning     *config.Tuning
	logger     *logger.Logger
}

// NewHub initializes a new WebSocket Hub in front of tower. A nil tuning means
// config.DefaultTuning.
func NewHub(tower Tower, tuning *config.Tuning, log *logger.Logger) *Hub {
	if tuning == nil {
		tuning = config.DefaultTuning()
	}
	return &Hub{
		broadcast:  make(chan []byte, tuning.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		seats:      make(map[engine.Source]*Client),
		tower:      tower,
		tuning:     tuning,
		logger:     log,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Get().RecordWSConnection(1)
			h.logger.Infof("WebSocket client connected as %s", client.source)
		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.dropLocked(client)
				h.logger.Infof("WebSocket client %s disconnected", client.source)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.Get().RecordWSMessage(false)
				default:
					// too slow to keep up; it reconnects and gets a fresh snapshot
					h.dropLocked(client)
					metrics.Get().RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// dropLocked forgets a client and frees its seat. Callers hold mu.
func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c)
	if h.seats[c.source] == c {
		delete(h.seats, c.source)
	}
	close(c.send)
	metrics.Get().RecordWSConnection(-1)
}

// claimSeat gives c the first free operator seat, or makes it a spectator.
func (h *Hub) claimSeat(c *Client) engine.Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range seatOrder {
		if _, taken := h.seats[s]; !taken {
			h.seats[s] = c
			return s
		}
	}
	return SourceSpectator
}

// Seats reports which operator seats are taken.
func (h *Hub) Seats() []engine.Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []engine.Source
	for _, s := range seatOrder {
		if _, ok := h.seats[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Online reports how many clients are connected.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// reply sends msg to one client if it is still registered. It never blocks.
func (h *Hub) reply(c *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- payload:
		metrics.Get().RecordWSMessage(false)
	default:
	}
}

// Broadcast serializes msg and queues it for every client. When the queue is full the
// frame is dropped; the next snapshot supersedes it.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Failed to serialize %s frame: %v", msg.Type, err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		metrics.Get().RecordWSError()
	}
}

// BroadcastSnapshot is the ticker callback.
func (h *Hub) BroadcastSnapshot(snap engine.Snapshot) {
	h.Broadcast(Message{Type: MsgTypeSnapshot, Timestamp: time.Now().Unix(), Payload: snap})
}

// BroadcastEvent sends a single event to all connected clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	h.Broadcast(Message{Type: MsgTypeEvent, Timestamp: event.Timestamp.Unix(), Payload: event})
}

// noisyEvents are left out of the event stream; snapshots already carry them.
var noisyEvents = map[events.EventType]bool{
	events.EventTypeFloorReached:     true,
	events.EventTypePassengerSpawned: true,
}

// StartEventPoller spawns a goroutine that follows the EventLog and pushes new events
// to the Hub, so the hub never runs inside the tick.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	go func() {
		poll := time.NewTicker(interval)
		defer poll.Stop()

		lastSeq := eventLog.LastSeq()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				for _, event := range eventLog.Since(lastSeq) {
					lastSeq = event.Seq
					if !noisyEvents[event.Type] {
						h.BroadcastEvent(event)
					}
				}
			}
		}
	}()
}
