// Package signaling relays offers, answers and ICE candidates between the
// streamer and browsers over a websocket. Each websocket is one viewer; the
// hub assigns its id, asks the streamer for an offer and routes everything the
// browser sends back to that viewer only.
package signaling

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"screencast/internal/logging"
	"screencast/internal/stream"
)

const (
	writeTimeout = 5 * time.Second
	offerTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Controller is the part of the streamer the hub drives.
type Controller interface {
	NewConnection(viewerID string, onCandidate func(stream.ICECandidate)) error
	CreateOffer(ctx context.Context, viewerID string) (string, error)
	HandleAnswer(viewerID, sdp string) error
	HandleICECandidate(viewerID string, c stream.ICECandidate) error
	CloseConnection(viewerID string) error
}

// Hub is an http.Handler that upgrades requests to signaling websockets.
type Hub struct {
	ctrl     Controller
	log      *slog.Logger
	upgrader websocket.Upgrader
	newID    func() string

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub returns a hub driving ctrl.
func NewHub(ctrl Controller, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		ctrl: ctrl,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		newID:   func() string { return uuid.New().String() },
		clients: make(map[string]*client),
	}
}

// Clients returns the number of connected websockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every websocket.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
		return
	}
	c := newClient(h.newID(), ws)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log := h.log.With("viewer", c.id)
	log.Info("signaling client connected", "remote", r.RemoteAddr)

	go c.writeLoop(log)
	defer func() {
		if err := h.ctrl.CloseConnection(c.id); err != nil {
			log.Debug("close connection", "err", err)
		}
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		c.close()
		log.Info("signaling client disconnected")
	}()

	c.send(Message{Type: TypeWelcome, ClientID: c.id})
	if err := h.ctrl.NewConnection(c.id, func(cand stream.ICECandidate) {
		c.send(Message{Type: TypeCandidate, Candidate: &cand})
	}); err != nil {
		c.send(Message{Type: TypeError, Message: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), offerTimeout)
	offer, err := h.ctrl.CreateOffer(ctx, c.id)
	cancel()
	if err != nil {
		log.Error("create offer", "err", err)
		c.send(Message{Type: TypeError, Message: err.Error()})
		return
	}
	c.send(Message{Type: TypeOffer, ClientID: c.id, SDP: offer})

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read", "err", err)
			}
			return
		}
		h.dispatch(c, log, msg)
	}
}

// dispatch routes one inbound message. Failures are reported to the client
// and logged; they never end the read loop.
func (h *Hub) dispatch(c *client, log *slog.Logger, msg Message) {
	var err error
	switch msg.Type {
	case TypeAnswer:
		err = h.ctrl.HandleAnswer(c.id, msg.SDP)
	case TypeCandidate:
		if msg.Candidate == nil || msg.Candidate.Candidate == "" {
			log.Debug("end of remote candidates")
			return
		}
		err = h.ctrl.HandleICECandidate(c.id, *msg.Candidate)
	default:
		log.Warn("unexpected signaling message", "type", msg.Type)
		return
	}
	if err != nil {
		log.Warn("signaling message rejected", "type", msg.Type, "err", err)
		c.send(Message{Type: TypeError, Message: err.Error()})
	}
}

type client struct {
	id       string
	ws       *websocket.Conn
	out      chan Message
	finished chan struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(id string, ws *websocket.Conn) *client {
	return &client{id: id, ws: ws, out: make(chan Message, sendBuffer), finished: make(chan struct{})}
}

// send queues msg for the writer goroutine. Messages to a closed or
// hopelessly backlogged client are dropped.
func (c *client) send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// writeLoop is the only goroutine writing to the websocket. It exits once
// the queue is closed and flushed.
func (c *client) writeLoop(log *slog.Logger) {
	defer close(c.finished)
	for msg := range c.out {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Debug("websocket write", "err", err)
			_ = c.ws.Close()
			for range c.out {
			}
			return
		}
	}
}

// close flushes pending messages and closes the websocket.
func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.out)
	c.mu.Unlock()

	select {
	case <-c.finished:
	case <-time.After(writeTimeout):
	}
	_ = c.ws.Close()
}
