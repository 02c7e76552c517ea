package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/pokertable/internal/auth"
	"github.com/lox/pokertable/internal/ledger"
	"github.com/lox/pokertable/internal/table"
)

const shutdownTimeout = 5 * time.Second

// Server represents the WebSocket server
type Server struct {
	addr           string
	upgrader       websocket.Upgrader
	validator      auth.Validator
	store          ledger.Store
	defaultBalance int
	logger         *log.Logger

	mu          sync.RWMutex
	tables      map[string]*table.Table
	hubs        map[string]*Hub
	connections map[*Connection]bool
	seats       map[string]string // player ID to the table they sit at
}

// Option configures a Server.
type Option func(*Server)

// WithLedger answers balance requests from players who are not seated.
func WithLedger(store ledger.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithDefaultBalance sets the chips a player sits down with when neither the
// ledger nor their identity says otherwise.
func WithDefaultBalance(balance int) Option {
	return func(s *Server) { s.defaultBalance = balance }
}

// NewServer creates a new WebSocket server
func NewServer(addr string, validator auth.Validator, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Players connect from anywhere; the token is the gate.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		validator:      validator,
		defaultBalance: defaultBalance,
		logger:         logger.WithPrefix("server"),
		tables:         make(map[string]*table.Table),
		hubs:           make(map[string]*Hub),
		connections:    make(map[*Connection]bool),
		seats:          make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the listener for a table's events, creating it on first use.
// Pass it to table.WithListener before registering the table with AddTable.
func (s *Server) Hub(tableName string) *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[tableName]
	if !ok {
		h = newHub(tableName, s.logger, func(playerID string) { s.releaseSeat(playerID, tableName) })
		s.hubs[tableName] = h
	}
	return h
}

// AddTable makes a table available to connecting players.
func (s *Server) AddTable(t *table.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name()] = t
}

// claimSeat reserves the player's one seat across all tables. Every table
// shares the player's ledger balance, so sitting at two would let them
// overwrite each other.
func (s *Server) claimSeat(playerID, tableName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.seats[playerID]; ok {
		return fmt.Errorf("%w: %s at table %s", table.ErrAlreadySeated, playerID, at)
	}
	s.seats[playerID] = tableName
	return nil
}

func (s *Server) releaseSeat(playerID, tableName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seats[playerID] == tableName {
		delete(s.seats, playerID)
	}
}

func (s *Server) lookup(name string) (*table.Table, *Hub, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, nil, false
	}
	h, ok := s.hubs[name]
	return t, h, ok
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeConnections()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close() // Ignore close errors during shutdown
	}
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	_, ok := s.connections[conn]
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()
	if !ok {
		return
	}

	conn.leaveTable()
	_ = conn.Close() // Ignore close errors during unregistration
	s.logger.Info("Client disconnected", "total", total)
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s, s.logger)
	s.register(client)
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister(client)
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

// ConnectedPlayers returns the IDs of authenticated players.
func (s *Server) ConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var players []string
	for conn := range s.connections {
		if id := conn.PlayerID(); id != "" {
			players = append(players, id)
		}
	}
	return players
}
