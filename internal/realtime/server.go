// Package realtime carries the WebSocket subscriber registry and the HTTP
// control surface for the camera session.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"plantify-cam/internal/protocol"
	"plantify-cam/internal/store"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboard may be served from another origin.
	},
}

// Controller is the camera lifecycle as the handlers see it.
type Controller interface {
	SetActive(desired bool) (changed, active bool)
	Active() bool
	Restart(grace time.Duration) (active bool)
	DetectorReady() bool
}

// AlertLister reads back persisted alerts for the REST surface.
type AlertLister interface {
	RecentAlerts(limit int) ([]store.Alert, error)
}

// Server tracks connected subscribers and routes control requests to the
// camera session.
type Server struct {
	logger *zap.Logger
	alerts AlertLister

	clients   map[string]*client // client id → connection
	clientsMu sync.RWMutex

	// ctrl is attached after construction; the session needs the server
	// as its broadcaster first.
	ctrl   Controller
	ctrlMu sync.RWMutex
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a realtime server with no subscribers.
func New(alerts AlertLister, logger *zap.Logger) *Server {
	return &Server{
		logger:  logger,
		alerts:  alerts,
		clients: make(map[string]*client),
	}
}

// AttachController wires the camera session in. Called once during startup.
func (s *Server) AttachController(ctrl Controller) {
	s.ctrlMu.Lock()
	s.ctrl = ctrl
	s.ctrlMu.Unlock()
}

func (s *Server) controller() Controller {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.ctrl
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Control endpoints.
	mux.HandleFunc("POST /toggle_camera", s.handleToggle)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /check-connection", s.handleCheckConnection)
	mux.HandleFunc("POST /restart-camera", s.handleRestart)
	mux.HandleFunc("GET /alerts", s.handleAlerts)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection and registers the subscriber.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 64),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	total := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Info("subscriber connected", zap.String("client", c.id), zap.Int("total", total))

	// One-time status push to this subscriber only.
	s.sendStatus(c)

	go c.writePump()
	go c.readPump()
}

// sendStatus pushes the current session state to a single client.
func (s *Server) sendStatus(c *client) {
	active := false
	if ctrl := s.controller(); ctrl != nil {
		active = ctrl.Active()
	}

	msg, err := protocol.NewMessage(protocol.TypeServerStatus, protocol.ServerStatusPayload{
		Status: "connected",
		Active: active,
	})
	if err != nil {
		return
	}
	c.trySend(msg)
}

// removeClient cleans up a disconnected subscriber.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	_, ok := s.clients[c.id]
	if ok {
		delete(s.clients, c.id)
		// Closed under the lock so a concurrent Broadcast can never see a
		// closed send channel.
		close(c.send)
	}
	remaining := len(s.clients)
	s.clientsMu.Unlock()

	if ok {
		s.logger.Info("subscriber disconnected", zap.String("client", c.id), zap.Int("remaining", remaining))
	}
}

// Broadcast attempts delivery of a message to every current subscriber.
// A slow or dead subscriber is skipped; it never blocks the others, and
// nothing escapes the registry boundary.
func (s *Server) Broadcast(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("broadcast message not marshalable", zap.Error(err))
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, skip.
		}
	}
}

// Size returns the current subscriber count.
func (s *Server) Size() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// IsEmpty reports whether nobody is subscribed.
func (s *Server) IsEmpty() bool {
	return s.Size() == 0
}

// Shutdown closes every subscriber connection.
func (s *Server) Shutdown() {
	s.clientsMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeStatusRequest:
		s.sendStatus(c)
	}
}

func (s *Server) sendError(c *client, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	c.trySend(msg)
}

func (c *client) trySend(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
