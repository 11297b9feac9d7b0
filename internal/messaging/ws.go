package messaging

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/events"
	mware "github.com/sudo-init-do/skygig/internal/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	userID string
	convID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans conversation events out to connected websocket clients and
// tracks which users currently have a session open.
type Hub struct {
	store *Store

	mu       sync.RWMutex
	rooms    map[string]map[*client]bool
	presence map[string]int
}

func NewHub(store *Store) *Hub {
	return &Hub{
		store:    store,
		rooms:    make(map[string]map[*client]bool),
		presence: make(map[string]int),
	}
}

// Reachable reports whether userID has at least one open session.
func (h *Hub) Reachable(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence[userID] > 0
}

// Subscribe registers the hub for conversation events. Delivery to sockets
// runs on its own queue so a slow client never holds up a sender.
func (h *Hub) Subscribe(b *events.Bus) {
	b.Subscribe("ws", h.HandleEvent,
		events.MessageSent, events.MessagesDelivered, events.ConversationRead, events.ConversationClosed)
}

// HandleEvent forwards one event to the clients of its conversation.
func (h *Hub) HandleEvent(_ context.Context, ev events.Event) {
	var convID string
	switch p := ev.Payload.(type) {
	case events.MessagePayload:
		convID = p.ConversationID
	case events.ConversationPayload:
		convID = p.ConversationID
	default:
		return
	}
	h.broadcast(convID, wsEvent{Type: ev.Type, Data: ev.Payload})
}

func (h *Hub) broadcast(convID string, evt wsEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[ws] marshal %s: %v", evt.Type, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[convID] {
		select {
		case c.send <- payload:
		default:
			log.Printf("[ws] dropping %s for slow client %s", evt.Type, c.userID)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.convID]
	if !ok {
		room = make(map[*client]bool)
		h.rooms[c.convID] = room
	}
	room[c] = true
	h.presence[c.userID]++
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.convID]; ok {
		if room[c] {
			delete(room, c)
			close(c.send)
			h.presence[c.userID]--
			if h.presence[c.userID] <= 0 {
				delete(h.presence, c.userID)
			}
		}
		if len(room) == 0 {
			delete(h.rooms, c.convID)
		}
	}
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS - websocket for realtime updates on a conversation. Connecting
// marks pending messages to the caller as delivered; a {"type":"read"} frame
// from the client marks the conversation read.
func (h *Hub) ServeWS(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	convID := c.Param("id")
	if _, err := h.store.Get(c.Request().Context(), convID, userID); err != nil {
		return apperr.Respond(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := &client{userID: userID, convID: convID, conn: ws, send: make(chan []byte, sendBuffer)}
	h.register(cl)
	go cl.writePump()

	// detached from the request so the upgrade's context cannot cancel it
	ctx := context.Background()
	h.store.DeliverPending(ctx, userID)
	h.broadcast(convID, wsEvent{Type: "presence_join", Data: echo.Map{"user_id": userID}})

	h.readPump(ctx, cl)
	h.broadcast(convID, wsEvent{Type: "presence_leave", Data: echo.Map{"user_id": userID}})
	return nil
}

func (h *Hub) readPump(ctx context.Context, cl *client) {
	defer func() {
		h.unregister(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(4096)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame struct {
			Type string `json:"type"`
		}
		if err := cl.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read %s/%s: %v", cl.convID, cl.userID, err)
			}
			return
		}
		if frame.Type == "read" {
			if _, err := h.store.MarkRead(ctx, cl.convID, cl.userID); err != nil {
				log.Printf("[ws] mark read %s/%s: %v", cl.convID, cl.userID, err)
			}
		}
	}
}

func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
