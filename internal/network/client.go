package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the tower is played from local front-ends on any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// InputMessage is an operator command as sent by the front-end.
type InputMessage struct {
	Action string `json:"action"` // "MOVE_UP", "TOGGLE_DOORS", "UPRISING_DECISION", ...
	Kind   string `json:"kind,omitempty"`
	Choice string `json:"choice,omitempty"`
}

// Welcome is the first frame a client receives.
type Welcome struct {
	Seat     engine.Source   `json:"seat"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// Client is one WebSocket connection, seated as an operator or watching.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	source    engine.Source
	minGap    time.Duration // key repeat faster than this is dropped
	lastInput time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.tuning.ClientSendBuffer),
		minGap: time.Second / time.Duration(max(1, hub.tuning.MaxMessagesPerSecond)),
	}
}

// ServeWS upgrades the request, seats the client and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.Online() >= h.tuning.MaxClients {
		http.Error(w, "tower is full", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		metrics.Get().RecordWSError()
		return
	}

	c := NewClient(h, conn)
	c.source = h.claimSeat(c)

	// queued before register, so nothing else can close send yet
	if hello, err := json.Marshal(Message{
		Type:      MsgTypeWelcome,
		Timestamp: time.Now().Unix(),
		Payload:   Welcome{Seat: c.source, Snapshot: h.tower.Latest()},
	}); err == nil {
		c.send <- hello
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump pumps commands from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("websocket read from %s: %v", c.source, err)
				metrics.Get().RecordWSError()
			}
			break
		}
		metrics.Get().RecordWSMessage(true)

		var msg InputMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.fail("malformed input: " + err.Error())
			continue
		}
		c.handleInput(msg)
	}
}

func (c *Client) handleInput(msg InputMessage) {
	if c.source == SourceSpectator {
		c.fail("spectators cannot operate the elevator")
		return
	}
	if time.Since(c.lastInput) < c.minGap {
		return
	}
	c.lastInput = time.Now()

	in := engine.Input{
		Action: engine.Action(msg.Action),
		Kind:   disaster.Kind(msg.Kind),
		Choice: disaster.Choice(msg.Choice),
		Source: c.source,
	}
	if err := c.hub.tower.SubmitInput(in); err != nil {
		c.fail(err.Error())
	}
}

// fail tells this client why its input was dropped. Rejections decided at tick time
// arrive later as INPUT_REJECTED events.
func (c *Client) fail(reason string) {
	c.hub.reply(c, Message{
		Type:      MsgTypeError,
		Timestamp: time.Now().Unix(),
		Payload:   map[string]string{"error": reason},
	})
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one frame per message: clients parse each as a JSON document
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
