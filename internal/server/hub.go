package server

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/pokertable/internal/game"
)

// Hub fans a table's events out to the connections at that table. It
// implements table.Listener.
type Hub struct {
	table  string
	logger *log.Logger
	onLeft func(playerID string)

	mu       sync.RWMutex
	byPlayer map[string]*Connection
}

func newHub(tableName string, logger *log.Logger, onLeft func(playerID string)) *Hub {
	return &Hub{
		table:    tableName,
		logger:   logger.WithPrefix("hub").With("table", tableName),
		onLeft:   onLeft,
		byPlayer: make(map[string]*Connection),
	}
}

// PlayerLeft is called by the table once a player is gone from it.
func (h *Hub) PlayerLeft(playerID string) {
	if h.onLeft != nil {
		h.onLeft(playerID)
	}
}

// join attaches an authenticated connection. A player may hold only one
// connection per table.
func (h *Hub) join(playerID string, c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byPlayer[playerID]; ok {
		return false
	}
	h.byPlayer[playerID] = c
	return true
}

func (h *Hub) leave(playerID string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byPlayer[playerID] == c {
		delete(h.byPlayer, playerID)
	}
}

// Broadcast sends a public event to every connection at the table.
func (h *Hub) Broadcast(e game.Event) {
	msg, err := EventMessage(e)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", e.EventType(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for id, conn := range h.byPlayer {
		if err := conn.SendMessage(msg); err != nil {
			h.logger.Error("Failed to send message to client", "error", err, "player", id)
			continue
		}
		count++
	}
	h.logger.Debug("Broadcasted event", "type", msg.Type, "recipients", count)
}

// SendTo sends a private event to one player's connection, if any.
func (h *Hub) SendTo(playerID string, e game.Event) {
	msg, err := EventMessage(e)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", e.EventType(), "error", err)
		return
	}

	h.mu.RLock()
	conn, ok := h.byPlayer[playerID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("Dropping private event for disconnected player", "player", playerID, "type", msg.Type)
		return
	}
	if err := conn.SendMessage(msg); err != nil {
		h.logger.Error("Failed to send message to client", "error", err, "player", playerID)
	}
}
