package collab

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/observability"
)

const (
	writeWait     = 10 * time.Second
	readWait      = 120 * time.Second
	maxMessage    = 1 << 20
	outboundDepth = 64
)

type client struct {
	userID   string
	name     string
	room     string
	outbound chan any
}

// Hub tracks room membership and fans messages out to connected clients.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]map[*client]bool
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*client]bool),
		metrics: metrics,
	}
}

func (h *Hub) join(room, userID, name string) *client {
	c := &client{
		userID:   userID,
		name:     name,
		room:     room,
		outbound: make(chan any, outboundDepth),
	}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.CollabClients.Inc()
	}
	h.broadcast(room, h.presence(room, "joined", userID), nil)
	return c
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	peers, ok := h.rooms[c.room]
	if ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.CollabClients.Dec()
	}
	h.broadcast(c.room, h.presence(c.room, "left", c.userID), nil)
}

// presence builds a membership snapshot for the room.
func (h *Hub) presence(room, event, userID string) Presence {
	h.mu.Lock()
	defer h.mu.Unlock()

	var members []Member
	for c := range h.rooms[room] {
		members = append(members, Member{UserID: c.userID, Name: c.name})
	}
	return Presence{
		Type:    TypePresence,
		Room:    room,
		Event:   event,
		UserID:  userID,
		Members: members,
	}
}

// broadcast queues msg to every room member except skip. Slow clients
// lose messages rather than stalling the room.
func (h *Hub) broadcast(room string, msg any, skip *client) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.outbound <- msg:
		default:
			log.Printf("collab: dropping message for %s in %s, queue full", c.userID, room)
		}
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) countMessage(direction string, t MessageType) {
	if h.metrics != nil {
		h.metrics.CollabMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

// ServeConn runs the read and write pumps for one websocket connection
// until the client disconnects or ctx is cancelled.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, room, userID, name string) {
	c := h.join(room, userID, name)
	defer h.leave(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					h.countMessage("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := ParseClientMessage(data)
		if err != nil {
			errEvent := ErrorEvent{
				Type:   TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}
			select {
			case c.outbound <- errEvent:
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			break readLoop
		default:
		}

		switch msg := parsed.(type) {
		case Chat:
			msg.Room = room
			msg.UserID = userID
			msg.Name = name
			if msg.TSMs == 0 {
				msg.TSMs = time.Now().UnixMilli()
			}
			h.countMessage("inbound", TypeChat)
			h.broadcast(room, msg, c)
		case Cursor:
			msg.Room = room
			msg.UserID = userID
			h.countMessage("inbound", TypeCursor)
			h.broadcast(room, msg, c)
		}
	}

	cancel()
	<-writerDone
}
