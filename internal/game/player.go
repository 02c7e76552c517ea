package game

import (
	"github.com/lox/pokertable/poker"
)

// Seat describes a player being dealt into a round.
type Seat struct {
	ID      string // durable identity used for balance persistence
	Name    string
	Balance int
}

// Player is the per-seat ledger of a round.
type Player struct {
	Seat      int
	ID        string
	Name      string
	Balance   int
	StageBet  int // committed in the current stage
	PotStake  int // committed over the whole hand
	Folded    bool
	AllIn     bool
	Departed  bool
	HoleCards [2]poker.Card
}

// CanAct reports whether the player can still be handed the action.
func (p *Player) CanAct() bool {
	return !p.Folded && !p.AllIn
}

// Live reports whether the player still contests the pot.
func (p *Player) Live() bool {
	return !p.Folded
}

// commit moves up to amount chips from the balance into the current stage and
// returns what was actually moved. A player left with nothing is all-in.
func (p *Player) commit(amount int) int {
	if amount > p.Balance {
		amount = p.Balance
	}
	if amount < 0 {
		amount = 0
	}
	p.Balance -= amount
	p.StageBet += amount
	p.PotStake += amount
	if p.Balance == 0 {
		p.AllIn = true
	}
	return amount
}
