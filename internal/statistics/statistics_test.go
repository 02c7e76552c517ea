package statistics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/handlog"
	"github.com/lox/pokertable/poker"
)

func TestStatisticsEmpty(t *testing.T) {
	t.Parallel()
	s := &Statistics{}
	assert.Zero(t, s.Mean())
	assert.Zero(t, s.Variance())
	assert.Zero(t, s.StdDev())
	assert.Zero(t, s.StdError())
	assert.Zero(t, s.Median())
	assert.Zero(t, s.Percentile(0.5))
	assert.Error(t, s.Validate())
}

func TestStatisticsAccumulates(t *testing.T) {
	t.Parallel()
	s := &Statistics{}
	s.Add(HandResult{NetBB: 2.5, WentToShowdown: true, FinalPotSize: 50, BigBlind: 10, StreetReached: game.Showdown})
	s.Add(HandResult{NetBB: -1, FinalPotSize: 15, BigBlind: 10, StreetReached: game.PreFlop})
	s.Add(HandResult{NetBB: 1.5, FinalPotSize: 600, BigBlind: 10, StreetReached: game.Turn})
	s.Add(HandResult{NetBB: -3, WentToShowdown: true, FinalPotSize: 80, BigBlind: 10, StreetReached: game.Showdown})

	assert.Equal(t, 4, s.Hands)
	assert.InDelta(t, 0, s.Mean(), 1e-9)
	assert.InDelta(t, 0.25, s.Median(), 1e-9)
	assert.Equal(t, 1, s.ShowdownWins)
	assert.Equal(t, 1, s.NonShowdownWins)
	assert.InDelta(t, -0.5, s.ShowdownBB, 1e-9)
	assert.InDelta(t, 0.5, s.NonShowdownBB, 1e-9)
	assert.Equal(t, map[game.Stage]int{game.Showdown: 2, game.PreFlop: 1, game.Turn: 1}, s.Streets)

	assert.Equal(t, 600, s.MaxPotChips)
	assert.InDelta(t, 60, s.MaxPotBB, 1e-9)
	assert.Equal(t, 1, s.BigPots)
	assert.InDelta(t, 1.5, s.BigPotsBB, 1e-9)

	// values 2.5, -1, 1.5, -3: sum of squares 18.5, n-1 = 3
	assert.InDelta(t, 18.5/3, s.Variance(), 1e-9)
	lo, hi := s.ConfidenceInterval95()
	assert.InDelta(t, -hi, lo, 1e-9)
	assert.NoError(t, s.Validate())
}

func TestStatisticsPercentiles(t *testing.T) {
	t.Parallel()
	s := &Statistics{}
	for i := 1; i <= 5; i++ {
		s.Add(HandResult{NetBB: float64(i), BigBlind: 2})
	}
	assert.InDelta(t, 1, s.Percentile(0), 1e-9)
	assert.InDelta(t, 3, s.Percentile(0.5), 1e-9)
	assert.InDelta(t, 5, s.Percentile(1), 1e-9)
	assert.InDelta(t, 2, s.Percentile(0.25), 1e-9)
}

func TestStatisticsValidate(t *testing.T) {
	t.Parallel()
	valid := func() *Statistics {
		s := &Statistics{}
		s.Add(HandResult{NetBB: 1, BigBlind: 2})
		s.Add(HandResult{NetBB: -1, WentToShowdown: true, BigBlind: 2})
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Statistics)
		want   string
	}{
		{"ledger", func(s *Statistics) { s.AllBB += 5 }, "ledger mismatch"},
		{"values", func(s *Statistics) { s.Values = s.Values[:1] }, "values array length"},
		{"wins", func(s *Statistics) { s.ShowdownWins = 3 }, "total wins"},
		{"streets", func(s *Statistics) { s.Streets[game.River] = 4 }, "street total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			require.NoError(t, s.Validate())
			tt.mutate(s)
			assert.ErrorContains(t, s.Validate(), tt.want)
		})
	}
}

func logOf(t *testing.T, handID string, events ...game.Event) *handlog.Log {
	t.Helper()
	l := &handlog.Log{HandID: handID, Table: "main"}
	for i, e := range events {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		l.Events = append(l.Events, handlog.Entry{Seq: i, Type: e.EventType(), Data: data})
	}
	return l
}

func start() game.RoundStartEvent {
	return game.RoundStartEvent{
		Players: []game.PlayerView{
			{Seat: 0, ID: "alice", Balance: 995, StageBet: 5},
			{Seat: 1, ID: "bob", Balance: 990, StageBet: 10},
		},
		SmallBlind: 5,
		BigBlind:   10,
	}
}

func TestResultsFoldWin(t *testing.T) {
	t.Parallel()
	l := logOf(t, "h1",
		start(),
		game.ActionEvent{Action: game.Fold, Seat: 0},
		game.RoundEndEvent{
			Winners: []game.Winner{{Seat: 1, ID: "bob", Won: 15}},
			Players: []game.PlayerView{{Seat: 0, ID: "alice", Balance: 995}, {Seat: 1, ID: "bob", Balance: 1005}},
		},
	)

	results, err := Results(l)
	require.NoError(t, err)
	assert.Equal(t, map[string]HandResult{
		"alice": {NetBB: -0.5, FinalPotSize: 15, BigBlind: 10, StreetReached: game.PreFlop},
		"bob":   {NetBB: 0.5, FinalPotSize: 15, BigBlind: 10, StreetReached: game.PreFlop},
	}, results)
}

func TestResultsShowdown(t *testing.T) {
	t.Parallel()
	board := poker.MustParseCards("As Kd 2c 7h 9s")
	l := logOf(t, "h2",
		start(),
		game.StageEvent{Stage: game.Flop, Board: board[:3], Pot: 20},
		game.StageEvent{Stage: game.River, Board: board, Pot: 20},
		game.RoundEndEvent{
			Board:   board,
			Winners: []game.Winner{{Seat: 0, ID: "alice", Won: 20, Description: "pair"}},
			Players: []game.PlayerView{{Seat: 0, ID: "alice", Balance: 1010}, {Seat: 1, ID: "bob", Balance: 990}},
		},
	)

	results, err := Results(l)
	require.NoError(t, err)
	assert.True(t, results["alice"].WentToShowdown)
	assert.Equal(t, game.Showdown, results["bob"].StreetReached)
	assert.InDelta(t, 1, results["alice"].NetBB, 1e-9)
	assert.InDelta(t, -1, results["bob"].NetBB, 1e-9)
}

func TestResultsErrors(t *testing.T) {
	t.Parallel()
	_, err := Results(logOf(t, "h3", start()))
	assert.ErrorContains(t, err, "no round end")

	_, err = Results(logOf(t, "h4", game.RoundEndEvent{}))
	assert.ErrorContains(t, err, "without round start")
}

func TestReport(t *testing.T) {
	t.Parallel()
	r := NewReport()
	require.NoError(t, r.Add(logOf(t, "h1",
		start(),
		game.RoundEndEvent{
			Winners: []game.Winner{{Seat: 1, ID: "bob", Won: 15}},
			Players: []game.PlayerView{{Seat: 0, ID: "alice", Balance: 995}, {Seat: 1, ID: "bob", Balance: 1005}},
		},
	)))
	require.NoError(t, r.Add(logOf(t, "h2",
		start(),
		game.RoundEndEvent{Aborted: true, Reason: "table closed"},
	)))

	assert.Equal(t, 1, r.Hands)
	assert.Equal(t, 1, r.Aborted)
	assert.Equal(t, []string{"bob", "alice"}, r.PlayerIDs())
	assert.Equal(t, 1, r.Players["bob"].NonShowdownWins)
	assert.NoError(t, r.Players["alice"].Validate())
}
