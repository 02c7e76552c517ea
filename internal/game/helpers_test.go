package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/pokertable/internal/randutil"
	"github.com/lox/pokertable/poker"
)

// recordingNotifier keeps every event for assertions.
type recordingNotifier struct {
	broadcasts []Event
	sent       map[int][]Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[int][]Event)}
}

func (n *recordingNotifier) Broadcast(e Event) {
	n.broadcasts = append(n.broadcasts, e)
}

func (n *recordingNotifier) Send(seat int, e Event) {
	n.sent[seat] = append(n.sent[seat], e)
}

func (n *recordingNotifier) ofType(et EventType) []Event {
	var out []Event
	for _, e := range n.broadcasts {
		if e.EventType() == et {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) actions() []ActionEvent {
	var out []ActionEvent
	for _, e := range n.ofType(EventTypeAction) {
		out = append(out, e.(ActionEvent))
	}
	return out
}

// recordingSink keeps the last persisted balance per player.
type recordingSink map[string]int

func (s recordingSink) PersistBalance(id string, balance int) { s[id] = balance }

func testSeats(balances ...int) []Seat {
	seats := make([]Seat, len(balances))
	for i, b := range balances {
		seats[i] = Seat{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Player%d", i), Balance: b}
	}
	return seats
}

type testRound struct {
	*Round
	events  *recordingNotifier
	results []Result
}

func newTestRound(t *testing.T, balances []int, opts ...RoundOption) *testRound {
	t.Helper()
	tr := &testRound{events: newRecordingNotifier()}
	opts = append([]RoundOption{WithRNG(randutil.New(42)), WithHandID("test-hand")}, opts...)
	r, err := NewRound(testSeats(balances...), Blinds{Small: 5, Big: 10}, tr.events, func(res Result) {
		tr.results = append(tr.results, res)
	}, opts...)
	require.NoError(t, err)
	tr.Round = r
	return tr
}

// stacked deals the given cards in order: two per seat from seat 0, then the board.
func stacked(cards string) RoundOption {
	return WithDeck(poker.NewStackedDeck(randutil.New(7), poker.MustParseCards(cards)...))
}

// chips is every chip the round accounts for.
func chips(r *Round) int {
	total := r.Pot() + r.NewMoneyIn()
	for _, p := range r.Players() {
		total += p.Balance
	}
	return total
}

func balances(r *Round) []int {
	var out []int
	for _, p := range r.Players() {
		out = append(out, p.Balance)
	}
	return out
}

func mustAct(t *testing.T, r *Round, seat int, action Action, amount int) {
	t.Helper()
	require.Equal(t, seat, r.ActionIndex(), "expected seat %d to act", seat)
	require.NoError(t, r.Act(seat, action, amount))
}
