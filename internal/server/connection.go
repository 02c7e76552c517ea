package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/pokertable/internal/auth"
	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/ledger"
	"github.com/lox/pokertable/internal/table"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.RWMutex
	identity *auth.Identity
	table    *table.Table
	hub      *Hub
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client without blocking.
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.PlayerID())
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// PlayerID returns the authenticated player, or "" before auth.
func (c *Connection) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return ""
	}
	return c.identity.PlayerID
}

func (c *Connection) session() (*auth.Identity, *table.Table) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.table
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Time allowed for the validator to answer
	authTimeout = 5 * time.Second
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.PlayerID())

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse auth data")
			return
		}
		c.handleAuth(msg, data)
		return
	}

	identity, tbl := c.session()
	if identity == nil {
		c.sendError(msg, ErrCodeNotAuthenticated, "Must authenticate first")
		return
	}

	switch msg.Type {
	case MessageTypeSit:
		var data SitData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse sit data")
				return
			}
		}
		c.handleSit(msg, identity, tbl, data)

	case MessageTypeStand:
		c.handleStand(msg, identity, tbl)

	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse action data")
			return
		}
		c.handleAction(msg, identity, tbl, data)

	case MessageTypeBalance:
		c.handleBalance(msg, identity, tbl)

	case MessageTypeState:
		c.reply(msg, MessageTypeTableState, tbl.Snapshot())

	default:
		c.sendError(msg, ErrCodeUnknownType, "Unknown message type: "+msg.Type.String())
	}
}

// reply sends a response carrying the request's ID.
func (c *Connection) reply(req *Message, messageType MessageType, data any) {
	resp, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	if req != nil {
		resp.RequestID = req.RequestID
	}
	_ = c.SendMessage(resp) // Ignore send errors
}

// sendError sends an error message to the client
func (c *Connection) sendError(req *Message, code, message string) {
	c.reply(req, MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
}

func (c *Connection) handleAuth(msg *Message, data AuthData) {
	if identity, _ := c.session(); identity != nil {
		c.sendError(msg, ErrCodeAlreadyAuthed, "Already authenticated as "+identity.PlayerID)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, authTimeout)
	defer cancel()

	identity, err := c.server.validator.Validate(ctx, data.Token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		c.sendError(msg, ErrCodeInvalidToken, "Invalid token")
		return
	case err != nil:
		c.logger.Warn("Token validation failed", "error", err)
		c.sendError(msg, ErrCodeAuthUnavailable, "Authentication unavailable, try again")
		return
	}

	tbl, hub, ok := c.server.lookup(data.Table)
	if !ok {
		c.sendError(msg, ErrCodeUnknownTable, "Unknown table: "+data.Table)
		return
	}
	if !hub.join(identity.PlayerID, c) {
		c.sendError(msg, ErrCodeAlreadyConnected, "Player already connected to "+data.Table)
		return
	}

	c.mu.Lock()
	c.identity = identity
	c.table = tbl
	c.hub = hub
	c.mu.Unlock()

	c.logger.Info("Player authenticated", "player", identity.PlayerID, "table", data.Table)
	c.reply(msg, MessageTypeAuthResponse, AuthResponseData{
		PlayerID: identity.PlayerID,
		Name:     identity.Name,
		Table:    tbl.Snapshot(),
	})
}

func (c *Connection) handleSit(msg *Message, identity *auth.Identity, tbl *table.Table, data SitData) {
	balance := identity.Balance
	if balance == 0 {
		balance = data.Balance
	}
	if balance == 0 {
		balance = c.server.defaultBalance
	}

	if err := c.server.claimSeat(identity.PlayerID, tbl.Name()); err != nil {
		c.sendError(msg, ErrCodeSitFailed, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, authTimeout)
	defer cancel()

	seated, err := tbl.Sit(ctx, identity.PlayerID, identity.Name, balance)
	if err != nil {
		c.server.releaseSeat(identity.PlayerID, tbl.Name())
		c.sendError(msg, ErrCodeSitFailed, err.Error())
		return
	}
	c.reply(msg, MessageTypeSeated, seated)
}

func (c *Connection) handleStand(msg *Message, identity *auth.Identity, tbl *table.Table) {
	if err := tbl.Stand(identity.PlayerID); err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	c.reply(msg, MessageTypeStood, map[string]string{"playerId": identity.PlayerID})
}

func (c *Connection) handleAction(msg *Message, identity *auth.Identity, tbl *table.Table, data ActionData) {
	action, err := game.ParseAction(data.Action)
	if err != nil {
		c.sendError(msg, ErrCodeInvalidAction, err.Error())
		return
	}
	if err := tbl.Act(identity.PlayerID, action, data.Amount); err != nil {
		c.sendError(msg, errorCode(err), err.Error())
	}
	// The table broadcasts the result.
}

func (c *Connection) handleBalance(msg *Message, identity *auth.Identity, tbl *table.Table) {
	balance, err := tbl.Balance(identity.PlayerID)
	if err == nil {
		c.reply(msg, MessageTypeBalance, BalanceData{PlayerID: identity.PlayerID, Balance: balance, Seated: true})
		return
	}
	if !errors.Is(err, table.ErrNotSeated) || c.server.store == nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}

	balance, err = c.server.store.Balance(c.ctx, identity.PlayerID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.sendError(msg, ErrCodeNotSeated, "No balance recorded")
	case err != nil:
		c.sendError(msg, ErrCodeBalanceFailed, err.Error())
	default:
		c.reply(msg, MessageTypeBalance, BalanceData{PlayerID: identity.PlayerID, Balance: balance})
	}
}

// leaveTable detaches the connection from its table and stands the player up.
func (c *Connection) leaveTable() {
	c.mu.Lock()
	identity, tbl, hub := c.identity, c.table, c.hub
	c.table, c.hub = nil, nil
	c.mu.Unlock()
	if identity == nil || tbl == nil {
		return
	}

	hub.leave(identity.PlayerID, c)
	if err := tbl.Stand(identity.PlayerID); err != nil && !errors.Is(err, table.ErrNotSeated) {
		c.logger.Warn("Failed to stand disconnected player", "player", identity.PlayerID, "error", err)
		return
	}
	c.logger.Info("Cleaned up disconnected player", "player", identity.PlayerID, "table", tbl.Name())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return ErrCodeNotYourTurn
	case errors.Is(err, game.ErrRoundEnded), errors.Is(err, table.ErrNoRound):
		return ErrCodeNoHand
	case errors.Is(err, table.ErrNotInHand):
		return ErrCodeNotInHand
	case errors.Is(err, table.ErrNotSeated):
		return ErrCodeNotSeated
	case errors.Is(err, game.ErrInvalidSeat):
		return ErrCodeInvalidAction
	default:
		return ErrCodeActionFailed
	}
}
