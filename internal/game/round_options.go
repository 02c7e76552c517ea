package game

import (
	"io"
	rand "math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/pokertable/internal/randutil"
	"github.com/lox/pokertable/poker"
)

// HandRanker scores a 7-card hand. Higher is better and equal scores tie.
type HandRanker interface {
	Rank(cards [7]poker.Card) int
}

// HandDescriber optionally names a hand for end-of-round summaries.
type HandDescriber interface {
	Describe(cards [7]poker.Card) string
}

// BalanceSink receives every balance change of a round. It must not block;
// the in-memory balance stays authoritative whatever the sink does.
type BalanceSink interface {
	PersistBalance(playerID string, balance int)
}

type nopSink struct{}

func (nopSink) PersistBalance(string, int) {}

// Blinds are the forced bets posted by the first two seats.
type Blinds struct {
	Small int
	Big   int
}

// RoundOption configures a Round during creation.
type RoundOption func(*roundConfig)

type roundConfig struct {
	rng    *rand.Rand
	deck   *poker.Deck
	ranker HandRanker
	sink   BalanceSink
	logger *log.Logger
	handID string
}

func defaultRoundConfig() *roundConfig {
	return &roundConfig{
		ranker: poker.Evaluator{},
		sink:   nopSink{},
		logger: log.New(io.Discard),
	}
}

// WithRNG draws cards from rng. Tests pass a seeded source for repeatable hands.
func WithRNG(rng *rand.Rand) RoundOption {
	return func(c *roundConfig) {
		c.rng = rng
	}
}

// WithDeck deals from a prepared deck. Overrides WithRNG.
func WithDeck(deck *poker.Deck) RoundOption {
	return func(c *roundConfig) {
		c.deck = deck
	}
}

// WithRanker replaces the default evaluator.
func WithRanker(r HandRanker) RoundOption {
	return func(c *roundConfig) {
		c.ranker = r
	}
}

// WithBalanceSink persists balance changes.
func WithBalanceSink(s BalanceSink) RoundOption {
	return func(c *roundConfig) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) RoundOption {
	return func(c *roundConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHandID tags events and the result with an identifier.
func WithHandID(id string) RoundOption {
	return func(c *roundConfig) {
		c.handID = id
	}
}

func (c *roundConfig) newDeck() *poker.Deck {
	if c.deck != nil {
		return c.deck
	}
	rng := c.rng
	if rng == nil {
		rng = randutil.New(time.Now().UnixNano())
	}
	return poker.NewDeck(rng)
}
