// Package client speaks the table server's websocket protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/server" // Reuse message types
)

// ErrServerError wraps error messages sent by the server.
var ErrServerError = errors.New("server error")

// Client represents a WebSocket client for a poker table
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.RWMutex
	playerID string
	handlers map[server.MessageType][]Handler
	events   []EventHandler
	waiters  map[server.MessageType][]chan *server.Message
}

// Handler handles an incoming message. Handlers run in arrival order on the
// client's read goroutine and must not block.
type Handler func(*server.Message)

// EventHandler handles a round event decoded from an incoming message.
type EventHandler func(game.Event)

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL: serverURL,
		send:      make(chan *server.Message, 256),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
		handlers:  make(map[server.MessageType][]Handler),
		waiters:   make(map[server.MessageType][]chan *server.Message),
	}
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	go c.readPump()
	go c.writePump()

	c.logger.Info("Connected to server")
	return nil
}

// Close closes the WebSocket connection
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
		}
		c.logger.Debug("Disconnected from server")
	})
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// PlayerID returns the identity the server confirmed, or "" before auth.
func (c *Client) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// Send sends a message to the server
func (c *Client) Send(messageType server.MessageType, data any) error {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return err
	}
	if err := c.ctx.Err(); err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return fmt.Errorf("send buffer full")
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() { _ = c.Close() }()

	for {
		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type)
		c.dispatch(&msg)
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch hands a message to its waiters and handlers, in that order.
func (c *Client) dispatch(msg *server.Message) {
	c.mu.Lock()
	waiters := c.waiters[msg.Type]
	delete(c.waiters, msg.Type)
	handlers := c.handlers[msg.Type]
	events := c.events
	c.mu.Unlock()

	for _, w := range waiters {
		w <- msg
	}
	for _, h := range handlers {
		h(msg)
	}

	if len(events) == 0 {
		return
	}
	ev, err := game.DecodeEvent(game.EventType(msg.Type), msg.Data)
	if err != nil {
		// Protocol replies are not round events.
		return
	}
	for _, h := range events {
		h(ev)
	}
}

// AddHandler adds a handler for a specific message type
func (c *Client) AddHandler(messageType server.MessageType, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[messageType] = append(c.handlers[messageType], handler)
}

// OnEvent adds a handler for every round event the server forwards.
func (c *Client) OnEvent(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, handler)
}

// Wait returns the next message of the given type. An error message from
// the server also ends the wait, returned as ErrServerError.
func (c *Client) Wait(ctx context.Context, messageType server.MessageType) (*server.Message, error) {
	return c.await(ctx, messageType, c.waiter(messageType))
}

// waiter registers for the next message of messageType or the next error.
func (c *Client) waiter(messageType server.MessageType) chan *server.Message {
	ch := make(chan *server.Message, 2)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[messageType] = append(c.waiters[messageType], ch)
	if messageType != server.MessageTypeError {
		c.waiters[server.MessageTypeError] = append(c.waiters[server.MessageTypeError], ch)
	}
	return ch
}

func (c *Client) await(ctx context.Context, messageType server.MessageType, ch chan *server.Message) (*server.Message, error) {
	defer c.forget(ch)
	select {
	case msg := <-ch:
		if msg.Type == server.MessageTypeError && messageType != server.MessageTypeError {
			return nil, serverError(msg)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout waiting for %s: %w", messageType, ctx.Err())
	case <-c.ctx.Done():
		return nil, fmt.Errorf("connection closed waiting for %s", messageType)
	}
}

func (c *Client) forget(ch chan *server.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, list := range c.waiters {
		c.waiters[t] = slices.DeleteFunc(list, func(w chan *server.Message) bool { return w == ch })
	}
}

func serverError(msg *server.Message) error {
	data, err := decode[server.ErrorData](msg)
	if err != nil {
		return fmt.Errorf("%w: undecodable error message", ErrServerError)
	}
	return fmt.Errorf("%w: %s: %s", ErrServerError, data.Code, data.Message)
}

// request sends a message and waits for its reply.
func (c *Client) request(ctx context.Context, messageType server.MessageType, data any, reply server.MessageType) (*server.Message, error) {
	ch := c.waiter(reply)
	if err := c.Send(messageType, data); err != nil {
		return nil, err
	}
	return c.await(ctx, reply, ch)
}

// Auth authenticates with the server and joins a table's event stream.
func (c *Client) Auth(ctx context.Context, token, table string) (*server.AuthResponseData, error) {
	msg, err := c.request(ctx, server.MessageTypeAuth, server.AuthData{Token: token, Table: table}, server.MessageTypeAuthResponse)
	if err != nil {
		return nil, err
	}
	resp, err := decode[server.AuthResponseData](msg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.playerID = resp.PlayerID
	c.mu.Unlock()
	return &resp, nil
}

// Sit takes a seat. The balance only applies to a player the server has no
// chips on record for.
func (c *Client) Sit(ctx context.Context, balance int) (int, error) {
	msg, err := c.request(ctx, server.MessageTypeSit, server.SitData{Balance: balance}, server.MessageTypeSeated)
	if err != nil {
		return 0, err
	}
	seated, err := decode[struct {
		Balance int `json:"balance"`
	}](msg)
	return seated.Balance, err
}

// Stand leaves the table, folding any hand in progress.
func (c *Client) Stand(ctx context.Context) error {
	_, err := c.request(ctx, server.MessageTypeStand, nil, server.MessageTypeStood)
	return err
}

// Balance asks the server for the player's chips.
func (c *Client) Balance(ctx context.Context) (server.BalanceData, error) {
	msg, err := c.request(ctx, server.MessageTypeBalance, nil, server.MessageTypeBalance)
	if err != nil {
		return server.BalanceData{}, err
	}
	return decode[server.BalanceData](msg)
}

// Act sends an action. The table answers by broadcasting the result, or with
// an error message that reaches handlers registered for it.
func (c *Client) Act(action game.Action, amount int) error {
	return c.Send(server.MessageTypeAction, server.ActionData{Action: action.String(), Amount: amount})
}

func decode[T any](msg *server.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return v, nil
}
