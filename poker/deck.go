package poker

import (
	"errors"
	"math/bits"
	rand "math/rand/v2"
)

// ErrDeckExhausted is returned when every card of the deck has been issued.
var ErrDeckExhausted = errors.New("poker: all cards have been dealt")

// Deck issues cards without replacement for a single hand.
//
// Each draw is uniform over the cards that have not been issued yet. The set of
// issued cards only grows; there is no reshuffle within a hand.
type Deck struct {
	dealt Hand
	rng   *rand.Rand
	// stacked cards are issued first, in order, before random draws. Tests use
	// this to script boards.
	stacked []Card
}

// NewDeck creates a full deck drawing from rng.
func NewDeck(rng *rand.Rand) *Deck {
	return &Deck{rng: rng}
}

// NewStackedDeck creates a deck that issues cards in the given order and then
// falls back to random draws from rng.
func NewStackedDeck(rng *rand.Rand, cards ...Card) *Deck {
	stacked := make([]Card, len(cards))
	copy(stacked, cards)
	return &Deck{rng: rng, stacked: stacked}
}

// Draw issues one card.
func (d *Deck) Draw() (Card, error) {
	for len(d.stacked) > 0 {
		c := d.stacked[0]
		d.stacked = d.stacked[1:]
		if c.Valid() && !d.dealt.HasCard(c) {
			d.dealt.AddCard(c)
			return c, nil
		}
	}

	remaining := d.Remaining()
	if remaining == 0 {
		return 0, ErrDeckExhausted
	}

	// Pick the k-th card that has not been issued.
	k := d.rng.IntN(remaining)
	free := ^uint64(d.dealt) & (1<<DeckSize - 1)
	for ; k > 0; k-- {
		free &= free - 1
	}
	c := Card(1) << uint(bits.TrailingZeros64(free))
	d.dealt.AddCard(c)
	return c, nil
}

// DrawN issues n cards. On exhaustion it returns the cards drawn so far and the error.
func (d *Deck) DrawN(n int) ([]Card, error) {
	cards := make([]Card, 0, n)
	for range n {
		c, err := d.Draw()
		if err != nil {
			return cards, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Remaining returns the number of cards that can still be drawn.
func (d *Deck) Remaining() int {
	return DeckSize - d.dealt.CountCards()
}

// Dealt returns the set of cards issued so far.
func (d *Deck) Dealt() Hand {
	return d.dealt
}
