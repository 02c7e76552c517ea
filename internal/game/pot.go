package game

import (
	"slices"

	"github.com/lox/pokertable/poker"
)

// Pot is one tier of the settlement: the main pot or a side pot.
type Pot struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"` // seats that can win this pot
	Winners  []int `json:"winners,omitempty"`
}

// Winner summarises what a seat collected at the end of a round.
type Winner struct {
	Seat        int           `json:"seatIndex"`
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Won         int           `json:"won"`
	Balance     int           `json:"balance"`
	Cards       [2]poker.Card `json:"cards"`
	Description string        `json:"description,omitempty"`
}

// splitPots partitions every seat's pot stake into tiers.
//
// Each tier is capped at the smallest remaining stake among the seats that still
// have chips in play, so a short all-in can only win up to its own level. Folded
// seats pay into the tiers they reached but are never eligible. Adjacent tiers
// with the same eligible seats are merged. A tier nobody can win (folded money
// above every contender) is added to the tier below it.
func splitPots(players []*Player) []Pot {
	remaining := make([]int, len(players))
	for i, p := range players {
		remaining[i] = p.PotStake
	}

	var pots []Pot
	for {
		level := 0
		for _, r := range remaining {
			if r > 0 && (level == 0 || r < level) {
				level = r
			}
		}
		if level == 0 {
			break
		}

		var tier Pot
		var contributors []int
		for i, r := range remaining {
			if r == 0 {
				continue
			}
			tier.Amount += level
			remaining[i] -= level
			contributors = append(contributors, i)
			if players[i].Live() {
				tier.Eligible = append(tier.Eligible, i)
			}
		}

		switch {
		case len(tier.Eligible) == 0 && len(pots) > 0:
			pots[len(pots)-1].Amount += tier.Amount
		case len(tier.Eligible) == 0:
			// Nobody live contributed at all; give the chips back to whoever paid them.
			tier.Eligible = contributors
			pots = append(pots, tier)
		case len(pots) > 0 && slices.Equal(pots[len(pots)-1].Eligible, tier.Eligible):
			pots[len(pots)-1].Amount += tier.Amount
		default:
			pots = append(pots, tier)
		}
	}
	return pots
}

// shares divides amount among winners. Every winner gets the integer share and
// the odd chips go one each to the winners with the lowest seat numbers.
func shares(amount int, winners []int) map[int]int {
	out := make(map[int]int, len(winners))
	if len(winners) == 0 {
		return out
	}
	seats := slices.Clone(winners)
	slices.Sort(seats)

	share := amount / len(seats)
	rem := amount % len(seats)
	for i, seat := range seats {
		out[seat] = share
		if i < rem {
			out[seat]++
		}
	}
	return out
}
