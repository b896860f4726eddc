package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/scripting"
	"github.com/MJE43/craps-pf-go/internal/table"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Envelope is the websocket wire format: a type tag and its payload.
type Envelope struct {
	T string `json:"t"`
	P any    `json:"p"`
}

// MessagePayload is a transient table message.
type MessagePayload struct {
	Text     string `json:"text"`
	RevertMs int64  `json:"revert_ms"`
}

// RoundOverPayload announces a decided round.
type RoundOverPayload struct {
	Outcome     craps.Outcome `json:"outcome"`
	AmountDelta int           `json:"amount_delta"`
}

// Hub fans table events out to websocket clients. It implements
// table.Listener and scripting.EventEmitter and never blocks the caller:
// a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	frameStride int
	logger      *log.Logger
	upgrader    websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

var (
	_ table.Listener         = (*Hub)(nil)
	_ scripting.EventEmitter = (*Hub)(nil)
)

// NewHub creates a hub that forwards every n-th physics frame so that frames
// reach clients at about broadcastHz.
func NewHub(tickHz, broadcastHz int) *Hub {
	stride := 1
	if broadcastHz > 0 && tickHz > broadcastHz {
		stride = tickHz / broadcastHz
	}
	return &Hub{
		clients:     make(map[*client]struct{}),
		frameStride: stride,
		logger:      log.New(os.Stdout, "[WS] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			// The table is served to any origin, like the REST API's CORS policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and streams events until the client leaves.
// The client is registered before greet runs, so no event emitted while the
// greeting is built is missed; at worst the client sees it twice.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, greet func() []Envelope) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed remote_addr=%s err=%v", r.RemoteAddr, err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("client connected remote_addr=%s clients=%d", r.RemoteAddr, n)

	go h.writePump(c)
	if greet != nil {
		for _, e := range greet() {
			h.deliver(c, e)
		}
	}
	h.readPump(c)

	h.remove(c)
	h.logger.Printf("client disconnected remote_addr=%s", r.RemoteAddr)
}

// deliver queues e for one client if it is still connected.
func (h *Hub) deliver(c *client, e Envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Printf("encode failed type=%s err=%v", e.T, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump discards inbound messages; it exists to process pongs and notice
// closed connections.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unregisters c and closes its send channel once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(t string, p any) {
	data, err := json.Marshal(Envelope{T: t, P: p})
	if err != nil {
		h.logger.Printf("encode failed type=%s err=%v", t, err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Printf("dropping slow client remote_addr=%s", c.conn.RemoteAddr())
		h.remove(c)
	}
}

func (h *Hub) StateChanged(s table.State) {
	h.broadcast("state", s)
}

func (h *Hub) Message(text string, revertAfter time.Duration) {
	h.broadcast("message", MessagePayload{Text: text, RevertMs: revertAfter.Milliseconds()})
}

func (h *Hub) RoundOver(outcome craps.Outcome, amountDelta int) {
	h.broadcast("round_over", RoundOverPayload{Outcome: outcome, AmountDelta: amountDelta})
}

// Frame forwards every frameStride-th frame and the resting frame.
func (h *Hub) Frame(f table.Frame) {
	if f.Index%h.frameStride != 0 && !resting(f) {
		return
	}
	h.broadcast("frame", f)
}

func (h *Hub) EmitScriptState(s scripting.EngineSnapshot) {
	h.broadcast("autoplay", s)
}

func resting(f table.Frame) bool {
	for _, d := range f.Dice {
		if !d.Sleeping {
			return false
		}
	}
	return len(f.Dice) > 0
}
