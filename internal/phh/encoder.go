package phh

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/handlog"
	"github.com/lox/pokertable/poker"
)

// ErrNoRoundStart is returned for logs that were attached mid-hand.
var ErrNoRoundStart = errors.New("phh: hand log has no round start")

// Encode writes the hand history to the provided writer in PHH TOML format.
func Encode(w io.Writer, hand *HandHistory) error {
	if hand == nil {
		return fmt.Errorf("phh: hand history is nil")
	}

	enc := toml.NewEncoder(w)
	// Use tabs for arrays to match human expectations
	enc.Indent = "\t"
	return enc.Encode(hand)
}

// FromLog converts a recorded hand. Hole cards never reach the log, so every
// player is dealt "????" and only winners shown at showdown reveal theirs.
func FromLog(l *handlog.Log) (*HandHistory, error) {
	c := &converter{
		hand: &HandHistory{
			Variant: "NT",
			Table:   l.Table,
			HandID:  l.HandID,
		},
	}
	if !l.Started.IsZero() {
		ts := l.Started.UTC()
		c.hand.Time = ts.Format("15:04:05")
		c.hand.TimeZone = "UTC"
		c.hand.Day, c.hand.Month, c.hand.Year = ts.Day(), int(ts.Month()), ts.Year()
	}

	for _, e := range l.Events {
		ev, err := e.Decode()
		if err != nil {
			return nil, err
		}
		if err := c.apply(ev); err != nil {
			return nil, err
		}
	}
	if c.players == nil {
		return nil, ErrNoRoundStart
	}
	return c.hand, nil
}

type converter struct {
	hand    *HandHistory
	players map[int]int // seat to PHH player index
	dealt   int
}

func (c *converter) player(seat int) string {
	return fmt.Sprintf("p%d", c.players[seat]+1)
}

func (c *converter) apply(ev game.Event) error {
	if _, ok := ev.(game.RoundStartEvent); !ok && c.players == nil {
		return ErrNoRoundStart
	}
	h := c.hand

	switch e := ev.(type) {
	case game.RoundStartEvent:
		n := len(e.Players)
		c.players = make(map[int]int, n)
		h.SeatCount = n
		h.MinBet = e.BigBlind
		h.Antes = make([]int, n)
		h.Seats = make([]int, n)
		h.BlindsOrStraddles = make([]int, n)
		h.StartingStacks = make([]int, n)
		h.Players = make([]string, n)
		for i, p := range e.Players {
			c.players[p.Seat] = i
			h.Seats[i] = p.Seat + 1
			h.BlindsOrStraddles[i] = p.StageBet
			h.StartingStacks[i] = p.Balance + p.StageBet
			h.Players[i] = p.Name
			if p.Name == "" {
				h.Players[i] = p.ID
			}
		}
		for i := range e.Players {
			h.Actions = append(h.Actions, fmt.Sprintf("d dh p%d ????", i+1))
		}

	case game.ActionEvent:
		h.Actions = append(h.Actions, formatAction(c.player(e.Seat), e))

	case game.StageEvent:
		if len(e.Board) > c.dealt {
			h.Actions = append(h.Actions, "d db "+cards(e.Board[c.dealt:]))
			c.dealt = len(e.Board)
		}

	case game.LeaveEvent:
		h.Actions = append(h.Actions, fmt.Sprintf("# %s leaves", c.player(e.Seat)))

	case game.RoundEndEvent:
		c.finish(e)
	}
	return nil
}

func (c *converter) finish(e game.RoundEndEvent) {
	h := c.hand
	n := len(c.players)
	h.Winnings = make([]int, n)
	h.FinishingStacks = append([]int(nil), h.StartingStacks...)

	if len(e.Board) > c.dealt {
		h.Actions = append(h.Actions, "d db "+cards(e.Board[c.dealt:]))
		c.dealt = len(e.Board)
	}
	for _, w := range e.Winners {
		i, ok := c.players[w.Seat]
		if !ok {
			continue
		}
		h.Winnings[i] += w.Won
		if w.Description != "" {
			h.Actions = append(h.Actions, fmt.Sprintf("p%d sm %s", i+1, cards(w.Cards[:])))
		}
	}
	for _, p := range e.Players {
		if i, ok := c.players[p.Seat]; ok {
			h.FinishingStacks[i] = p.Balance
		}
	}
	if e.Aborted {
		h.Metadata = map[string]any{"aborted": e.Reason}
	}
}

// formatAction converts a table action to a PHH action string. Raises carry
// the seat's total bet for the street.
func formatAction(player string, e game.ActionEvent) string {
	switch e.Action {
	case game.Fold:
		return player + " f"
	case game.Check, game.Call:
		return player + " cc"
	case game.Raise:
		return fmt.Sprintf("%s cbr %d", player, e.Bet)
	default:
		return fmt.Sprintf("# %s %s %d", player, e.Action, e.Bet)
	}
}

func cards(cs []poker.Card) string {
	var b strings.Builder
	for _, c := range cs {
		if c.Valid() {
			b.WriteString(c.String())
		}
	}
	return b.String()
}
