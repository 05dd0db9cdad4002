package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/run"
	"engine-arena/arena/stats"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
)

// event is what /ws/events streams, one JSON text frame each.
type event struct {
	Type   string          `json:"type"`
	Game   *game.Record    `json:"game,omitempty"`
	Status *match.Snapshot `json:"status,omitempty"`
	Report *run.Report     `json:"report,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed games out to websocket subscribers. Slow subscribers
// are dropped rather than allowed to hold up the run.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	final   []byte // encoded report, set once the run has ended
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Record(_ context.Context, rec game.Record, snap match.Snapshot) error {
	h.broadcast(event{Type: "game", Game: &rec, Status: &snap})
	return nil
}

func (h *Hub) Begin(context.Context, string, stats.Params) error { return nil }

// End tells subscribers the run is over and closes their streams. Clients
// connecting afterwards get the same report and a close frame.
func (h *Hub) End(_ context.Context, rep *run.Report) error {
	data, err := json.Marshal(event{Type: "report", Report: rep})
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.final = data
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("client", id).Msg("websocket client too slow for the report")
		}
		delete(h.clients, id)
		close(c.send)
	}
	return nil
}

// Subscribers is the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("encode event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("client", id).Msg("websocket client too slow, dropping it")
			delete(h.clients, id)
			close(c.send)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	final := h.final
	if final == nil {
		h.clients[c.id] = c
	}
	h.mu.Unlock()
	if final != nil {
		farewell(conn, final)
		return
	}
	log.Debug().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go h.writePump(c)
	h.readPump(c)
}

// farewell sends the final report to a client that arrived after the run
// and closes the connection.
func farewell(conn *websocket.Conn, report []byte) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, report); err != nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// readPump discards client frames and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
