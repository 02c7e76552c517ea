package game

import (
	"encoding/json"
	"fmt"

	"github.com/lox/pokertable/poker"
)

// EventType identifies a round notification.
type EventType string

const (
	EventTypeRoundStart EventType = "round_start"
	EventTypeHoleCards  EventType = "hole_cards"
	EventTypeAction     EventType = "action"
	EventTypeTurn       EventType = "turn"
	EventTypeStage      EventType = "stage"
	EventTypeRoundInfo  EventType = "round_info"
	EventTypeLeave      EventType = "leave"
	EventTypeRoundEnd   EventType = "round_end"
)

func (et EventType) String() string {
	return string(et)
}

// Event is anything a round reports to its observers.
type Event interface {
	EventType() EventType
}

// Notifier receives round events on two explicit channels: Broadcast for the
// whole table and Send for a single seat. Implementations must not block and
// must not call back into the round.
type Notifier interface {
	Broadcast(e Event)
	Send(seat int, e Event)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(Event) {}
func (nopNotifier) Send(int, Event) {}

// PlayerView is the public state of a seat.
type PlayerView struct {
	Seat     int    `json:"seat"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Balance  int    `json:"balance"`
	StageBet int    `json:"stageBet"`
	PotStake int    `json:"potStake"`
	Folded   bool   `json:"folded"`
	AllIn    bool   `json:"allIn"`
	Departed bool   `json:"departed,omitempty"`
}

func viewOf(p *Player) PlayerView {
	return PlayerView{
		Seat:     p.Seat,
		ID:       p.ID,
		Name:     p.Name,
		Balance:  p.Balance,
		StageBet: p.StageBet,
		PotStake: p.PotStake,
		Folded:   p.Folded,
		AllIn:    p.AllIn,
		Departed: p.Departed,
	}
}

// RoundStartEvent is broadcast once blinds are posted.
type RoundStartEvent struct {
	HandID     string       `json:"handId"`
	Players    []PlayerView `json:"players"`
	SmallBlind int          `json:"smallBlind"`
	BigBlind   int          `json:"bigBlind"`
}

func (RoundStartEvent) EventType() EventType { return EventTypeRoundStart }

// HoleCardsEvent is sent privately to the seat holding the cards.
type HoleCardsEvent struct {
	Seat  int           `json:"seat"`
	Cards [2]poker.Card `json:"cards"`
}

func (HoleCardsEvent) EventType() EventType { return EventTypeHoleCards }

// ActionEvent is broadcast for every applied player action.
type ActionEvent struct {
	Action Action `json:"type"`
	Seat   int    `json:"seatIndex"`
	Amount int    `json:"amount,omitempty"` // chips committed by this action
	Bet    int    `json:"bet"`              // seat's stage bet afterwards
	AllIn  bool   `json:"allIn,omitempty"`
}

func (ActionEvent) EventType() EventType { return EventTypeAction }

// TurnEvent is broadcast when a seat is handed the action.
type TurnEvent struct {
	Seat   int `json:"seatIndex"`
	ToCall int `json:"toCall"`
}

func (TurnEvent) EventType() EventType { return EventTypeTurn }

// StageEvent is broadcast when a stage opens and its community cards are revealed.
type StageEvent struct {
	Stage Stage        `json:"stage"`
	Board []poker.Card `json:"communityCards"`
	Pot   int          `json:"pot"`
}

func (StageEvent) EventType() EventType { return EventTypeStage }

// RoundInfoEvent is a public snapshot of the round.
type RoundInfoEvent struct {
	HandID      string       `json:"handId"`
	Stage       Stage        `json:"stage"`
	Pot         int          `json:"pot"`
	NewMoneyIn  int          `json:"newMoneyIn"`
	CurrentBet  int          `json:"currentBet"`
	Board       []poker.Card `json:"communityCards"`
	ActionIndex int          `json:"actionIndex"`
	Players     []PlayerView `json:"players"`
	Ended       bool         `json:"ended,omitempty"`
}

func (RoundInfoEvent) EventType() EventType { return EventTypeRoundInfo }

// LeaveEvent is broadcast when a seat departs mid-hand.
type LeaveEvent struct {
	Seat int `json:"seatIndex"`
}

func (LeaveEvent) EventType() EventType { return EventTypeLeave }

// RoundEndEvent is broadcast once the pot has been distributed (or refunded).
type RoundEndEvent struct {
	HandID  string       `json:"handId"`
	Winners []Winner     `json:"winners"`
	Board   []poker.Card `json:"communityCards"`
	Pots    []Pot        `json:"pots,omitempty"`
	Players []PlayerView `json:"players"`
	Aborted bool         `json:"aborted,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

func (RoundEndEvent) EventType() EventType { return EventTypeRoundEnd }

// DecodeEvent decodes the JSON form of an event of type et.
func DecodeEvent(et EventType, data []byte) (Event, error) {
	var ev Event
	var err error
	switch et {
	case EventTypeRoundStart:
		ev, err = decodeAs[RoundStartEvent](data)
	case EventTypeHoleCards:
		ev, err = decodeAs[HoleCardsEvent](data)
	case EventTypeAction:
		ev, err = decodeAs[ActionEvent](data)
	case EventTypeTurn:
		ev, err = decodeAs[TurnEvent](data)
	case EventTypeStage:
		ev, err = decodeAs[StageEvent](data)
	case EventTypeRoundInfo:
		ev, err = decodeAs[RoundInfoEvent](data)
	case EventTypeLeave:
		ev, err = decodeAs[LeaveEvent](data)
	case EventTypeRoundEnd:
		ev, err = decodeAs[RoundEndEvent](data)
	default:
		return nil, fmt.Errorf("unknown event type %q", et)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", et, err)
	}
	return ev, nil
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
