package server

import (
	"encoding/json"
	"time"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/table"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// EventMessage wraps a round event, using its event type as the message type.
func EventMessage(e game.Event) (*Message, error) {
	return NewMessage(MessageType(e.EventType()), e)
}

// Client → Server Messages

type AuthData struct {
	Token string `json:"token"`
	Table string `json:"table"`
}

type SitData struct {
	// Balance applies only when neither the ledger nor the identity knows the
	// player's chips.
	Balance int `json:"balance,omitempty"`
}

type ActionData struct {
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

// Server → Client Messages

type AuthResponseData struct {
	PlayerID string      `json:"playerId"`
	Name     string      `json:"name"`
	Table    table.State `json:"table"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BalanceData struct {
	PlayerID string `json:"playerId"`
	Balance  int    `json:"balance"`
	Seated   bool   `json:"seated"`
}
