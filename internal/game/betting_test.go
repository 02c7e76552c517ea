package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokertable/poker"
)

func TestParseAction(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"fold", "check", "call", "raise"} {
		a, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, name, a.String())
	}

	a, err := ParseAction("bet")
	require.NoError(t, err)
	assert.Equal(t, Raise, a)

	_, err = ParseAction("allin")
	assert.Error(t, err)
}

func TestParseStage(t *testing.T) {
	t.Parallel()
	for s := AwaitingBlinds; s <= Showdown; s++ {
		parsed, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStage("pre-flop")
	assert.Error(t, err)
	assert.Equal(t, "stage(9)", Stage(9).String())
}

func TestEventJSONUsesNames(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(ActionEvent{Action: Raise, Seat: 2, Amount: 30, Bet: 30})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"raise","seatIndex":2,"amount":30,"bet":30}`, string(data))

	data, err = json.Marshal(StageEvent{Stage: Flop, Pot: 30})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"flop","communityCards":null,"pot":30}`, string(data))
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()
	hole := HoleCardsEvent{Seat: 1, Cards: [2]poker.Card{poker.MustParseCards("Ah")[0], poker.MustParseCards("Kd")[0]}}
	data, err := json.Marshal(hole)
	require.NoError(t, err)

	ev, err := DecodeEvent(EventTypeHoleCards, data)
	require.NoError(t, err)
	assert.Equal(t, hole, ev)

	_, err = DecodeEvent(EventTypeAction, []byte(`{"type":"shove"}`))
	assert.ErrorContains(t, err, "decode action event")
	_, err = DecodeEvent("chat", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown event type")
}
