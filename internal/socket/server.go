// ABOUTME: WebSocket upgrade handler and connection registry
// ABOUTME: Routes inbound events to rooms, the orchestrator and the tool gateway

package socket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/room"
	"github.com/2389/coven-chat/internal/toolgw"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 64
	defaultDedupeWindow = 2 * time.Minute
	dedupeCapacity      = 10000
	maxFrameSize        = 1 << 20
)

// Rooms is the membership side of room.Manager.
type Rooms interface {
	Join(m room.Member, roomID string)
	Leave(memberID, roomID string)
	LeaveAll(memberID string) int
}

// Orchestrator accepts turns and test prompts.
type Orchestrator interface {
	Send(ctx context.Context, req conversation.SendRequest) (chat.Turn, error)
	TestPrompt(ctx context.Context, req conversation.TestRequest) (string, error)
}

// ToolInvoker calls a capability on an external tool server.
type ToolInvoker interface {
	InvokeCapability(ctx context.Context, target toolgw.Target, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Config tunes connection handling. Zero values use defaults.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
	// DedupeWindow is how long a send-message clientMessageId is remembered.
	DedupeWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = defaultDedupeWindow
	}
	return c
}

// Server upgrades HTTP requests and serves one client per connection.
type Server struct {
	rooms    Rooms
	orch     Orchestrator
	tools    ToolInvoker
	cfg      Config
	upgrader websocket.Upgrader
	seen     *dedupe.Window
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

// NewServer creates a Server. tools may be nil, in which case invoke-tool
// is rejected.
func NewServer(rooms Rooms, orch Orchestrator, tools ToolInvoker, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Server{
		rooms: rooms,
		orch:  orch,
		tools: tools,
		cfg:   cfg,
		seen:  dedupe.New(cfg.DedupeWindow, dedupeCapacity),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin is not checked; auth middleware gates the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		logger:  logger.With("component", "socket"),
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	c := newClient(s, conn, uuid.NewString(), principal)
	if !s.add(c) {
		c.close()
		_ = conn.Close()
		return
	}
	c.logger.Info("client connected", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		left := s.rooms.LeaveAll(c.id)
		s.remove(c.id)
		c.close()
		c.logger.Info("client disconnected", "rooms_left", left)
	}()

	go c.writePump()
	c.readPump(ctx)
}

// Connections reports the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close sends a close frame to every connection and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) add(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}
