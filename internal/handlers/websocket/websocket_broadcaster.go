package websocket

import (
	"encoding/json"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/useCases"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many messages a client may lag behind before it is dropped.
	sendBuffer = 256
)

// Message is the envelope pushed to every client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Message types.
const (
	TypeSnapshot = "snapshot"
	TypeRecord   = "record"
	TypeDelete   = "delete"
	TypeStatus   = "status"
	// TypeBookrunnersInvalidated carries no data: clients refetch /bookrunners
	// with their own range and currency filter.
	TypeBookrunnersInvalidated = "bookrunners_invalidated"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketBroadcaster implements Broadcaster interface for store updates.
// A client receives the full snapshot on connect, then every change. Each
// client has its own buffered queue and writer goroutine, so broadcasting
// never waits on the network; a client whose queue fills up is disconnected.
type WebSocketBroadcaster struct {
	clients  map[*client]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	snapshot func() []model.BondRecord
	log      *slog.Logger
}

var _ useCases.Broadcaster = (*WebSocketBroadcaster)(nil)

func NewWebSocketBroadcaster(snapshot func() []model.BondRecord, log *slog.Logger) *WebSocketBroadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketBroadcaster{
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		snapshot: snapshot,
		log:      log.With(slog.String("component", "websocket")),
	}
}

func (b *WebSocketBroadcaster) BroadcastChange(change model.StoreChange) {
	switch change.Kind {
	case model.ChangeReplace:
		b.broadcast(Message{Type: TypeSnapshot, Data: change.Records})
	case model.ChangeUpsert:
		b.broadcast(Message{Type: TypeRecord, Data: change.Record})
	case model.ChangeDelete:
		b.broadcast(Message{Type: TypeDelete, Data: map[string]string{"id": change.ID}})
	}
}

func (b *WebSocketBroadcaster) BroadcastStatus(status model.SyncStatus) {
	b.broadcast(Message{Type: TypeStatus, Data: status})
}

// BroadcastAggregates only tells clients the roll-up changed. The recomputed
// aggregates are unfiltered and would overwrite a client's own view.
func (b *WebSocketBroadcaster) BroadcastAggregates([]model.BookrunnerAggregate) {
	b.broadcast(Message{Type: TypeBookrunnersInvalidated})
}

func (b *WebSocketBroadcaster) broadcast(m Message) {
	msg, err := json.Marshal(m)
	if err != nil {
		b.log.Error("failed to marshal message", slog.String("type", m.Type), slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.log.Warn("websocket client too slow, disconnecting", slog.String("remote", c.conn.RemoteAddr().String()))
			b.removeLocked(c)
		}
	}
}

// removeLocked unregisters c and closes its queue; the writer then closes the
// connection. b.mu must be held.
func (b *WebSocketBroadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
}

func (b *WebSocketBroadcaster) remove(c *client) {
	b.mu.Lock()
	b.removeLocked(c)
	b.mu.Unlock()
}

// Clients returns the number of connected clients.
func (b *WebSocketBroadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler returns an http handler func to accept websocket connections.
func (b *WebSocketBroadcaster) Handler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade error", slog.String("error", err.Error()))
			return
		}
		c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

		// registering and snapshotting under one lock means every change
		// committed after the snapshot reaches this client's queue behind it
		b.mu.Lock()
		b.clients[c] = struct{}{}
		if b.snapshot != nil {
			initial, err := json.Marshal(Message{Type: TypeSnapshot, Data: b.snapshot()})
			if err != nil {
				b.log.Error("failed to marshal snapshot", slog.String("error", err.Error()))
			} else {
				c.send <- initial
			}
		}
		b.mu.Unlock()

		go b.writeLoop(c)
		go b.readLoop(c)
	}
}

func (b *WebSocketBroadcaster) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.log.Warn("websocket write error", slog.String("error", err.Error()))
			b.remove(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop only detects disconnects.
func (b *WebSocketBroadcaster) readLoop(c *client) {
	defer func() {
		b.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
