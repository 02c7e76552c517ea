// Package statistics summarises player results across recorded hands.
package statistics

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/handlog"
)

// bigPotBB is the pot size, in big blinds, above which a hand counts as a big pot.
const bigPotBB = 50

// HandResult is one player's outcome in a single hand.
type HandResult struct {
	NetBB          float64    // Net big blinds won or lost
	WentToShowdown bool       // Did the hand reach a showdown?
	FinalPotSize   int        // Chips distributed at the end of the hand
	BigBlind       int        // Big blind the hand was played at
	StreetReached  game.Stage // Furthest street dealt
}

// Statistics accumulates one player's results.
type Statistics struct {
	Hands  int
	SumBB  float64
	SumBB2 float64   // Sum of squares for variance calculation
	Values []float64 // Every result, for median and percentiles

	ShowdownWins    int     // Hands won at showdown
	NonShowdownWins int     // Hands won without showdown (fold equity)
	ShowdownBB      float64 // BB from showdown (wins AND losses)
	NonShowdownBB   float64 // BB from fold equity (wins AND losses)
	AllBB           float64

	// Hands that ended on each street
	Streets map[game.Stage]int

	MaxPotChips int
	MaxPotBB    float64
	BigPots     int     // Pots >= 50bb
	BigPotsBB   float64 // BB from big pots
}

// Mean returns the arithmetic mean of all results in big blinds per hand
func (s *Statistics) Mean() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.SumBB / float64(s.Hands)
}

// Variance returns the sample variance of all results
func (s *Statistics) Variance() float64 {
	if s.Hands < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumBB2 - float64(s.Hands)*mean*mean) / float64(s.Hands-1)
}

// StdDev returns the sample standard deviation of all results
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Hands))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Add incorporates a new hand result into the statistics
func (s *Statistics) Add(result HandResult) {
	netBB := result.NetBB
	s.Hands++
	s.SumBB += netBB
	s.SumBB2 += netBB * netBB
	s.Values = append(s.Values, netBB)

	if netBB > 0 {
		if result.WentToShowdown {
			s.ShowdownWins++
		} else {
			s.NonShowdownWins++
		}
	}
	if result.WentToShowdown {
		s.ShowdownBB += netBB
	} else {
		s.NonShowdownBB += netBB
	}
	s.AllBB += netBB

	if s.Streets == nil {
		s.Streets = make(map[game.Stage]int)
	}
	s.Streets[result.StreetReached]++

	potChips := result.FinalPotSize
	var potBB float64
	if result.BigBlind > 0 {
		potBB = float64(potChips) / float64(result.BigBlind)
	}
	if potChips > s.MaxPotChips {
		s.MaxPotChips = potChips
		s.MaxPotBB = potBB
	}
	if potBB >= bigPotBB {
		s.BigPots++
		s.BigPotsBB += netBB
	}
}

// Median returns the median value of all results
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := slices.Clone(s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// IsLedgerBalanced checks that showdown and non-showdown results add up.
func (s *Statistics) IsLedgerBalanced() bool {
	return math.Abs(s.AllBB-s.ShowdownBB-s.NonShowdownBB) <= 1e-6
}

// Validate checks the accumulated data is internally consistent.
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: AllBB=%.6f, ShowdownBB=%.6f, NonShowdownBB=%.6f",
			s.AllBB, s.ShowdownBB, s.NonShowdownBB)
	}
	if s.Hands <= 0 {
		return fmt.Errorf("invalid hands count: %d", s.Hands)
	}
	if len(s.Values) != s.Hands {
		return fmt.Errorf("values array length (%d) does not match hands count (%d)",
			len(s.Values), s.Hands)
	}
	if wins := s.ShowdownWins + s.NonShowdownWins; wins > s.Hands {
		return fmt.Errorf("total wins (%d) exceeds total hands (%d)", wins, s.Hands)
	}
	streets := 0
	for _, n := range s.Streets {
		streets += n
	}
	if streets != s.Hands {
		return fmt.Errorf("street total (%d) does not match total hands (%d)", streets, s.Hands)
	}
	return nil
}

// Results extracts every player's outcome from a hand log, keyed by player
// ID. Aborted hands refund every stake and yield no results.
func Results(l *handlog.Log) (map[string]HandResult, error) {
	var (
		start  *game.RoundStartEvent
		stacks = make(map[int]int)
		street = game.PreFlop
	)
	for _, e := range l.Events {
		ev, err := e.Decode()
		if err != nil {
			return nil, err
		}
		switch ev := ev.(type) {
		case game.RoundStartEvent:
			start = &ev
			for _, p := range ev.Players {
				stacks[p.Seat] = p.Balance + p.StageBet
			}
		case game.StageEvent:
			street = ev.Stage
		case game.RoundEndEvent:
			if start == nil {
				return nil, fmt.Errorf("hand %s: round end without round start", l.HandID)
			}
			if ev.Aborted {
				return nil, nil
			}
			return endResults(start, stacks, street, ev), nil
		}
	}
	return nil, fmt.Errorf("hand %s: no round end", l.HandID)
}

func endResults(start *game.RoundStartEvent, stacks map[int]int, street game.Stage, end game.RoundEndEvent) map[string]HandResult {
	showdown := false
	pot := 0
	for _, w := range end.Winners {
		pot += w.Won
		if w.Description != "" {
			showdown = true
		}
	}
	if showdown {
		street = game.Showdown
	}

	ids := make(map[int]string, len(start.Players))
	for _, p := range start.Players {
		ids[p.Seat] = p.ID
	}
	results := make(map[string]HandResult, len(end.Players))
	for _, p := range end.Players {
		id, ok := ids[p.Seat]
		if !ok {
			continue
		}
		net := float64(p.Balance - stacks[p.Seat])
		if start.BigBlind > 0 {
			net /= float64(start.BigBlind)
		}
		results[id] = HandResult{
			NetBB:          net,
			WentToShowdown: showdown,
			FinalPotSize:   pot,
			BigBlind:       start.BigBlind,
			StreetReached:  street,
		}
	}
	return results
}

// Report collects per-player statistics over many hands.
type Report struct {
	Hands   int
	Aborted int
	Players map[string]*Statistics
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Players: make(map[string]*Statistics)}
}

// Add folds one hand log into the report.
func (r *Report) Add(l *handlog.Log) error {
	results, err := Results(l)
	if err != nil {
		return err
	}
	if results == nil {
		r.Aborted++
		return nil
	}
	r.Hands++
	for id, res := range results {
		s, ok := r.Players[id]
		if !ok {
			s = &Statistics{}
			r.Players[id] = s
		}
		s.Add(res)
	}
	return nil
}

// PlayerIDs returns the players in the report ordered by mean result, best first.
func (r *Report) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		mi, mj := r.Players[ids[i]].Mean(), r.Players[ids[j]].Mean()
		if mi != mj {
			return mi > mj
		}
		return ids[i] < ids[j]
	})
	return ids
}
