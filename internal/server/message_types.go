package server

// Note: round events (round_start, hole_cards, turn, ...) are defined in
// internal/game/events.go and are forwarded with their event type as the
// message type.

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAuth    MessageType = "auth"
	MessageTypeSit     MessageType = "sit"
	MessageTypeStand   MessageType = "stand"
	MessageTypeAction  MessageType = "action"
	MessageTypeBalance MessageType = "balance"
	MessageTypeState   MessageType = "state"

	// Server to client messages
	MessageTypeError        MessageType = "error"
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeSeated       MessageType = "seated"
	MessageTypeStood        MessageType = "stood"
	MessageTypeTableState   MessageType = "table_state"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Error codes carried in ErrorData.
const (
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeUnknownType      = "unknown_message_type"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeAlreadyAuthed    = "already_authenticated"
	ErrCodeAlreadyConnected = "already_connected"
	ErrCodeInvalidToken     = "invalid_token"
	ErrCodeAuthUnavailable  = "auth_unavailable"
	ErrCodeUnknownTable     = "unknown_table"
	ErrCodeSitFailed        = "sit_failed"
	ErrCodeNotSeated        = "not_seated"
	ErrCodeInvalidAction    = "invalid_action"
	ErrCodeNotYourTurn      = "not_your_turn"
	ErrCodeNoHand           = "no_hand"
	ErrCodeNotInHand        = "not_in_hand"
	ErrCodeActionFailed     = "action_failed"
	ErrCodeBalanceFailed    = "balance_failed"
)
