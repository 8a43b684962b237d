package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Server is a WebSocket broadcast hub implementing Sink. UI clients connect
// to its HTTP handler and receive every notified event as a JSON text frame.
//
// Each client gets a small buffered outbox drained by a dedicated writer
// goroutine; a client that stops reading has its oldest events dropped and
// is eventually disconnected by write timeouts, never blocking Notify.
type Server struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	outbox chan Event
}

// NewServer creates an empty broadcast hub.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket connection, registers the
// client and streams events to it until the connection drops or the server
// shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("notify: websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:   conn,
		outbox: make(chan Event, 64),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.clients[c] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()

	s.log.Info("notify: client connected", "remote", r.RemoteAddr, "clients", total)

	// Greet the client so the UI can flip to ready immediately.
	c.outbox <- Status("Backend Ready")

	ctx := r.Context()
	go s.readLoop(ctx, c)
	s.writeLoop(ctx, c)

	s.unregister(c)
	conn.Close(websocket.StatusNormalClosure, "done")
	s.log.Info("notify: client disconnected", "remote", r.RemoteAddr)
}

// Notify implements Sink: the event is queued to every connected client.
// When a client's outbox is full its oldest event is dropped so the caller
// never blocks.
func (s *Server) Notify(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.outbox <- ev:
		default:
			select {
			case <-c.outbox:
			default:
			}
			select {
			case c.outbox <- ev:
			default:
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects all clients and rejects future connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

// writeLoop drains the client's outbox into the connection. It returns on
// the first write error or when ctx ends.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.outbox:
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Error("notify: marshal event", "type", ev.Type, "error", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.log.Warn("notify: write to client failed", "error", err)
				return
			}
		}
	}
}

// readLoop consumes and discards inbound frames so pings are answered and
// connection loss is detected promptly.
func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

var _ Sink = (*Server)(nil)
