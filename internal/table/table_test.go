package table

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/handlog"
	"github.com/lox/pokertable/internal/ledger"
)

const (
	handDelay   = time.Second
	turnTimeout = 10 * time.Second
)

type recordingListener struct {
	mu         sync.Mutex
	broadcasts []game.Event
	private    map[string][]game.Event
	left       []string
}

func (l *recordingListener) PlayerLeft(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.left = append(l.left, id)
}

func (l *recordingListener) departed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.left...)
}

func (l *recordingListener) Broadcast(e game.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcasts = append(l.broadcasts, e)
}

func (l *recordingListener) SendTo(id string, e game.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.private == nil {
		l.private = make(map[string][]game.Event)
	}
	l.private[id] = append(l.private[id], e)
}

func (l *recordingListener) count(et game.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.broadcasts {
		if e.EventType() == et {
			n++
		}
	}
	return n
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *quartz.Mock
	listener *recordingListener
	table    *Table
}

func newFixture(t *testing.T, timeout time.Duration, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    quartz.NewMock(t),
		listener: &recordingListener{},
	}
	logger := log.NewWithOptions(io.Discard, log.Options{})
	opts = append([]Option{
		WithClock(f.clock),
		WithLogger(logger),
		WithListener(f.listener),
		WithSeed(42),
	}, opts...)

	tbl, err := New(Config{
		Name:          "main",
		Blinds:        game.Blinds{Small: 5, Big: 10},
		MaxPlayers:    3,
		NextHandDelay: handDelay,
		ActionTimeout: timeout,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(tbl.Close)
	f.table = tbl
	return f
}

func (f *fixture) sit(id string, balance int) {
	f.t.Helper()
	_, err := f.table.Sit(f.ctx, id, id, balance)
	require.NoError(f.t, err)
}

func (f *fixture) advance(d time.Duration) {
	f.t.Helper()
	f.clock.Advance(d).MustWait(f.ctx)
}

func (f *fixture) round() *game.RoundInfoEvent {
	return f.table.Snapshot().Round
}

func (f *fixture) toAct() string {
	f.t.Helper()
	r := f.round()
	require.NotNil(f.t, r, "no hand running")
	return r.Players[r.ActionIndex].ID
}

func TestHandStartsAfterDelay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	assert.Nil(t, f.round())
	f.sit("bob", 1000)
	assert.Nil(t, f.round(), "waits for the next-hand delay")

	f.advance(handDelay)
	r := f.round()
	require.NotNil(t, r)
	assert.Equal(t, game.PreFlop, r.Stage)
	assert.Equal(t, "alice", r.Players[0].ID, "first seated posts the small blind")
	assert.Equal(t, "alice", f.toAct())
	assert.NotEmpty(t, r.HandID)

	f.listener.mu.Lock()
	defer f.listener.mu.Unlock()
	require.Len(t, f.listener.private["alice"], 1)
	assert.IsType(t, game.HoleCardsEvent{}, f.listener.private["alice"][0])
	require.Len(t, f.listener.private["bob"], 1)
}

func TestNoHandWithOnePlayer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	f.advance(handDelay)
	assert.Nil(t, f.round())
	assert.ErrorIs(t, f.table.Act("alice", game.Call, 0), ErrNoRound)

	// Another arrival schedules the hand again.
	f.sit("bob", 1000)
	f.advance(handDelay)
	assert.NotNil(t, f.round())
}

func TestButtonRotatesBetweenHands(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)

	require.NoError(t, f.table.Act("alice", game.Fold, 0))
	assert.Nil(t, f.round())

	bal, err := f.table.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 995, bal)
	bal, err = f.table.Balance("bob")
	require.NoError(t, err)
	assert.Equal(t, 1005, bal)
	assert.Equal(t, 1, f.table.Snapshot().HandsPlayed)

	f.advance(handDelay)
	r := f.round()
	require.NotNil(t, r)
	assert.Equal(t, "bob", r.Players[0].ID, "small blind moves on")
	assert.Equal(t, 1005-5, r.Players[0].Balance)
}

func TestShortStackSitsOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.sit("carol", 14)
	f.advance(handDelay)

	r := f.round()
	require.NotNil(t, r)
	assert.Len(t, r.Players, 2)
	for _, p := range f.table.Snapshot().Players {
		assert.Equal(t, p.ID != "carol", p.InHand, p.ID)
	}
	assert.ErrorIs(t, f.table.Act("carol", game.Call, 0), ErrNotInHand)
}

func TestActOutOfTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)

	assert.ErrorIs(t, f.table.Act("bob", game.Check, 0), game.ErrNotYourTurn)
	assert.ErrorIs(t, f.table.Act("mallory", game.Check, 0), ErrNotSeated)
}

func TestTimeoutFoldsFacingBet(t *testing.T) {
	t.Parallel()
	f := newFixture(t, turnTimeout)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)
	require.Equal(t, "alice", f.toAct())

	f.advance(turnTimeout)
	assert.Nil(t, f.round(), "alice folded the small blind")
	bal, err := f.table.Balance("bob")
	require.NoError(t, err)
	assert.Equal(t, 1005, bal)
}

func TestTimeoutChecksWhenFree(t *testing.T) {
	t.Parallel()
	f := newFixture(t, turnTimeout)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)

	require.NoError(t, f.table.Act("alice", game.Call, 0))
	require.Equal(t, "bob", f.toAct())

	f.advance(turnTimeout)
	r := f.round()
	require.NotNil(t, r)
	assert.Equal(t, game.Flop, r.Stage, "big blind checked its option")
	assert.Equal(t, "bob", f.toAct())
}

func TestIgnoredCheckKeepsTimer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, turnTimeout)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)

	f.advance(turnTimeout / 2)
	require.NoError(t, f.table.Act("alice", game.Check, 0), "ignored check")
	f.advance(turnTimeout / 2)
	assert.Nil(t, f.round(), "timer was not restarted")
}

func TestStandDuringHand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.sit("carol", 1000)
	f.advance(handDelay)

	require.NoError(t, f.table.Stand("alice"))
	assert.NotNil(t, f.round(), "two players remain")
	assert.Equal(t, 1, f.listener.count(game.EventTypeLeave))
	assert.Empty(t, f.listener.departed(), "still in the hand")

	var leaving bool
	for _, p := range f.table.Snapshot().Players {
		if p.ID == "alice" {
			leaving = p.Leaving
		}
	}
	assert.True(t, leaving)

	require.NoError(t, f.table.Act("carol", game.Fold, 0))
	assert.Nil(t, f.round())
	_, err := f.table.Balance("alice")
	assert.ErrorIs(t, err, ErrNotSeated)
	assert.Len(t, f.table.Snapshot().Players, 2)
	assert.Equal(t, []string{"alice"}, f.listener.departed())
}

func TestStandBetweenHands(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	require.NoError(t, f.table.Stand("alice"))
	assert.Empty(t, f.table.Snapshot().Players)
	assert.Equal(t, []string{"alice"}, f.listener.departed())
	assert.ErrorIs(t, f.table.Stand("alice"), ErrNotSeated)
}

func TestSitErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.sit("alice", 1000)
	_, err := f.table.Sit(f.ctx, "alice", "alice", 1000)
	assert.ErrorIs(t, err, ErrAlreadySeated)

	f.sit("bob", 1000)
	f.sit("carol", 1000)
	_, err = f.table.Sit(f.ctx, "dave", "dave", 1000)
	assert.ErrorIs(t, err, ErrTableFull)

	f.table.Close()
	require.NoError(t, f.table.Stand("carol"))
	_, err = f.table.Sit(f.ctx, "dave", "dave", 1000)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Name: "x", Blinds: game.Blinds{Small: 5, Big: 10}, MaxPlayers: 11})
	assert.Error(t, err)
	_, err = New(Config{Name: "x", Blinds: game.Blinds{Small: 0, Big: 10}})
	assert.ErrorIs(t, err, game.ErrInvalidBlinds)
}

func TestLedgerBalances(t *testing.T) {
	t.Parallel()
	store := ledger.NewMemStore()
	require.NoError(t, store.SetBalance(context.Background(), "bob", 500))
	sink := ledger.NewPersister(store, log.NewWithOptions(io.Discard, log.Options{}))

	f := newFixture(t, 0, WithLedger(store), WithBalanceSink(sink))
	seatedBob, err := f.table.Sit(f.ctx, "bob", "Bob", 1000)
	require.NoError(t, err)
	assert.Equal(t, 500, seatedBob.Balance, "stored balance wins")

	f.sit("alice", 800)
	stored, err := store.Balance(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 800, stored, "new players are recorded")

	f.advance(handDelay)
	require.NoError(t, f.table.Act("bob", game.Fold, 0))
	require.NoError(t, sink.Flush(f.ctx))

	stored, err = store.Balance(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 495, stored)
	stored, err = store.Balance(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 805, stored)
}

func TestResitBeforeFlushKeepsBalance(t *testing.T) {
	t.Parallel()
	store := ledger.NewMemStore()
	persister := ledger.NewPersister(store, log.NewWithOptions(io.Discard, log.Options{}))

	f := newFixture(t, 0, WithLedger(persister), WithBalanceSink(persister))
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)
	require.NoError(t, f.table.Act("alice", game.Fold, 0))
	require.NoError(t, f.table.Stand("alice"))

	_, err := store.Balance(f.ctx, "alice")
	require.ErrorIs(t, err, ledger.ErrNotFound, "nothing flushed yet")

	back, err := f.table.Sit(f.ctx, "alice", "alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, 995, back.Balance)

	require.NoError(t, persister.Flush(f.ctx))
	stored, err := store.Balance(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 995, stored)
}

func TestHandLogObserver(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec := handlog.NewRecorder(dir, "main", nil, handlog.WithLogger(log.NewWithOptions(io.Discard, log.Options{})))

	f := newFixture(t, 0, WithObserver(rec))
	f.sit("alice", 1000)
	f.sit("bob", 1000)
	f.advance(handDelay)
	handID := f.round().HandID
	require.NoError(t, f.table.Act("alice", game.Fold, 0))

	written := rec.Written()
	require.Len(t, written, 1)
	l, err := handlog.Load(written[0])
	require.NoError(t, err)
	assert.Equal(t, handID, l.HandID)
}
