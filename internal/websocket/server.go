package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/autovector/internal/controller"
	"github.com/yegors/autovector/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Queued outbound messages per client before it is dropped.
	sendBuffer = 64
)

// Server is a websocket fan-out hub. Controller events are published
// into the hub and broadcast as JSON to every connected client. Publish
// never blocks the tick loop: when the hub or a client falls behind,
// events are dropped.
type Server struct {
	upgrader  websocket.Upgrader
	logger    *logger.Logger
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewServer(log *logger.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the UI origin during
			// development, so cross-origin upgrades are allowed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		clients:   make(map[*client]struct{}),
		logger:    log.Named("websocket"),
	}
}

// Run drains the broadcast channel and fans messages out to clients.
// It returns when the broadcast channel is closed by Stop.
func (s *Server) Run() {
	for msg := range s.broadcast {
		s.mu.Lock()
		for c := range s.clients {
			select {
			case c.send <- msg:
			default:
				// Slow client: disconnect rather than stall the hub.
				close(c.send)
				delete(s.clients, c)
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
}

// Stop closes the broadcast channel; Run then disconnects all clients.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.broadcast)
	}
}

// Publish implements controller.EventSink
func (s *Server) Publish(evt controller.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("Failed to marshal event", logger.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Debug("Broadcast queue full, event dropped",
			logger.String("type", evt.Type),
		)
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// HandleConnection upgrades an HTTP request and services the client
// until it disconnects
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("Client connected",
		logger.String("remote", r.RemoteAddr),
		logger.Int("clients", count),
	)

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards inbound frames and tears the client down on error.
// The stream is one-way; reads exist to react to close frames and pongs.
func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[c]; ok {
			close(c.send)
			delete(s.clients, c)
		}
		s.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Client read error", logger.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(c *client) {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
