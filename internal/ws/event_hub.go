package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var log = logger.New("ws")

// Envelope is the frame pushed to dashboards.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type hubMessage struct {
	// roomIDs scopes the message; empty means only unfiltered clients get it.
	roomIDs []string
	payload []byte
}

// EventHub fans scheduling and grading events out to websocket clients.
type EventHub struct {
	register   chan *eventClient
	unregister chan *eventClient
	broadcast  chan hubMessage
	clients    map[*eventClient]struct{}
	count      atomic.Int64
	done       chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		broadcast:  make(chan hubMessage, 256),
		clients:    make(map[*eventClient]struct{}),
		done:       make(chan struct{}),
	}
}

// Clients reports the number of connected clients.
func (h *EventHub) Clients() int { return int(h.count.Load()) }

// Run owns the client set until ctx is done.
func (h *EventHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.roomIDs) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					h.drop(client)
				}
			}
		}
	}
}

// attach registers client unless the hub has stopped.
func (h *EventHub) attach(client *eventClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *EventHub) drop(client *eventClient) {
	delete(h.clients, client)
	close(client.send)
	client.conn.Close()
	h.count.Store(int64(len(h.clients)))
}

// Forward subscribes to bus right away and relays its events to the hub in
// the background until ctx is done or the bus closes.
func (h *EventHub) Forward(ctx context.Context, bus *eventbus.Bus) {
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				h.Publish(ev)
			}
		}
	}()
}

// Publish encodes a known event and queues it. Unknown events are ignored.
func (h *EventHub) Publish(ev eventbus.Event) {
	if h == nil {
		return
	}
	var (
		env   Envelope
		rooms []string
	)
	switch e := ev.(type) {
	case eventbus.SimulationEvent:
		env = Envelope{Event: e.Type, Data: e}
		rooms = e.RoomIDs
	case eventbus.GradeEvent:
		env = Envelope{Event: e.Type, Data: e}
	default:
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Errorf("failed to marshal %s: %v", env.Event, err)
		return
	}
	select {
	case h.broadcast <- hubMessage{roomIDs: rooms, payload: data}:
	default:
		log.Warnf("event hub backlog full, dropped %s", env.Event)
	}
}

type eventClient struct {
	hub          *EventHub
	conn         *websocket.Conn
	send         chan []byte
	allowedRooms map[string]struct{}
	allowAll     bool
}

func newEventClient(hub *EventHub, conn *websocket.Conn, allowed map[string]struct{}) *eventClient {
	return &eventClient{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		allowedRooms: allowed,
		allowAll:     len(allowed) == 0,
	}
}

func (c *eventClient) wants(roomIDs []string) bool {
	if c.allowAll {
		return true
	}
	for _, id := range roomIDs {
		if _, ok := c.allowedRooms[id]; ok {
			return true
		}
	}
	return false
}

func (c *eventClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
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
