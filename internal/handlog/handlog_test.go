package handlog

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/randutil"
)

type countingNotifier struct {
	broadcasts int
	private    int
}

func (n *countingNotifier) Broadcast(game.Event) { n.broadcasts++ }
func (n *countingNotifier) Send(int, game.Event) { n.private++ }

func playHand(t *testing.T, rec *Recorder, handID string) {
	t.Helper()
	seats := []game.Seat{
		{ID: "alice", Name: "Alice", Balance: 1000},
		{ID: "bob", Name: "Bob", Balance: 1000},
		{ID: "carol", Name: "Carol", Balance: 1000},
	}
	r, err := game.NewRound(seats, game.Blinds{Small: 5, Big: 10}, rec, nil,
		game.WithRNG(randutil.New(11)), game.WithHandID(handID))
	require.NoError(t, err)
	require.NoError(t, r.Act(2, game.Raise, 20))
	require.NoError(t, r.Act(0, game.Fold, 0))
	require.NoError(t, r.Act(1, game.Fold, 0))
	require.True(t, r.Ended())
}

func newTestRecorder(t *testing.T, next game.Notifier) (*Recorder, string) {
	dir := t.TempDir()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return NewRecorder(dir, "main", next, WithClock(quartz.NewMock(t)), WithLogger(logger)), dir
}

func TestRecorderWritesPublicEvents(t *testing.T) {
	t.Parallel()
	next := &countingNotifier{}
	rec, dir := newTestRecorder(t, next)

	playHand(t, rec, "hand-one")

	path := filepath.Join(dir, "hand-one.json")
	assert.Equal(t, []string{path}, rec.Written())
	assert.Equal(t, 3, next.private, "hole cards are still delivered")

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hand-one", l.HandID)
	assert.Equal(t, "main", l.Table)
	assert.Len(t, l.Events, next.broadcasts)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), string(game.EventTypeHoleCards)))

	assert.Equal(t, game.EventTypeRoundStart, l.Events[0].Type)
	assert.Equal(t, game.EventTypeRoundEnd, l.Events[len(l.Events)-1].Type)
	for i, e := range l.Events {
		assert.Equal(t, i, e.Seq)
	}
}

func TestEntriesDecodeToEvents(t *testing.T) {
	t.Parallel()
	rec, dir := newTestRecorder(t, nil)
	playHand(t, rec, "hand-two")

	l, err := Load(filepath.Join(dir, "hand-two.json"))
	require.NoError(t, err)

	var actions []game.ActionEvent
	var end game.RoundEndEvent
	for _, e := range l.Events {
		ev, err := e.Decode()
		require.NoError(t, err)
		assert.Equal(t, e.Type, ev.EventType())
		switch v := ev.(type) {
		case game.ActionEvent:
			actions = append(actions, v)
		case game.RoundEndEvent:
			end = v
		}
	}

	require.Len(t, actions, 3)
	assert.Equal(t, game.ActionEvent{Action: game.Raise, Seat: 2, Amount: 30, Bet: 30}, actions[0])
	assert.Equal(t, game.Fold, actions[2].Action)

	require.Len(t, end.Winners, 1)
	assert.Equal(t, "carol", end.Winners[0].ID)
	assert.Equal(t, 45, end.Winners[0].Won)
}

func TestRecorderKeepsHandsApart(t *testing.T) {
	t.Parallel()
	rec, dir := newTestRecorder(t, nil)
	playHand(t, rec, "first")
	playHand(t, rec, "second")

	assert.Len(t, rec.Written(), 2)
	first, err := Load(filepath.Join(dir, "first.json"))
	require.NoError(t, err)
	second, err := Load(filepath.Join(dir, "second.json"))
	require.NoError(t, err)
	assert.Equal(t, len(first.Events), len(second.Events))
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	t.Parallel()
	_, err := Entry{Type: "chat", Data: []byte(`{}`)}.Decode()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
