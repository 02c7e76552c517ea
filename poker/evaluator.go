package poker

import (
	"fmt"

	ph "github.com/paulhankin/poker"
)

// Evaluator ranks 7-card hands with github.com/paulhankin/poker.
// Scores are comparable across calls: higher is better, equal scores tie.
type Evaluator struct{}

// Rank scores the best 5-card hand found in the 7 cards.
func (Evaluator) Rank(cards [7]Card) int {
	hand := toEvalCards(cards)
	return int(ph.Eval7(&hand))
}

// Describe returns a human readable name for the best hand, e.g. "pair of kings".
func (Evaluator) Describe(cards [7]Card) string {
	hand := toEvalCards(cards)
	desc, err := ph.Describe(hand[:])
	if err != nil {
		return ""
	}
	return desc
}

func toEvalCards(cards [7]Card) [7]ph.Card {
	var out [7]ph.Card
	for i, c := range cards {
		pc, err := toEvalCard(c)
		if err != nil {
			panic(err)
		}
		out[i] = pc
	}
	return out
}

// toEvalCard maps our 0-12 (two..ace) ranks onto the evaluator's 1-13 with ace low.
func toEvalCard(c Card) (ph.Card, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("poker: invalid card %#x", uint64(c))
	}
	rank := ph.Rank(c.Rank() + 2)
	if c.Rank() == Ace {
		rank = 1
	}
	var suit ph.Suit
	switch c.Suit() {
	case Clubs:
		suit = ph.Club
	case Diamonds:
		suit = ph.Diamond
	case Hearts:
		suit = ph.Heart
	default:
		suit = ph.Spade
	}
	return ph.MakeCard(suit, rank)
}
