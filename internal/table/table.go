// Package table seats players and runs one hand after another at a single
// table.
package table

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/handid"
	"github.com/lox/pokertable/internal/ledger"
	"github.com/lox/pokertable/internal/randutil"
)

var (
	ErrNotSeated     = errors.New("table: player not seated")
	ErrAlreadySeated = errors.New("table: player already seated")
	ErrTableFull     = errors.New("table: no free seat")
	ErrNoRound       = errors.New("table: no hand in progress")
	ErrNotInHand     = errors.New("table: player not dealt in")
	ErrClosed        = errors.New("table: closed")
)

// Config describes a table.
type Config struct {
	Name          string
	Blinds        game.Blinds
	MaxPlayers    int
	NextHandDelay time.Duration
	// ActionTimeout auto-plays a seat that does not act in time. Zero disables it.
	ActionTimeout time.Duration
}

// Listener receives the events of every hand at the table. Private events are
// addressed by player ID. Implementations must not block or call back into the
// table.
type Listener interface {
	Broadcast(e game.Event)
	SendTo(playerID string, e game.Event)
}

// LeaveListener is implemented by listeners that want to know when a player
// has left the table for good, after any hand they were in has ended.
type LeaveListener interface {
	PlayerLeft(playerID string)
}

// SeatedPlayer is a player sitting at the table.
type SeatedPlayer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
	InHand  bool   `json:"inHand"`
	Leaving bool   `json:"leaving,omitempty"`
}

// State is a snapshot of the table.
type State struct {
	Name        string               `json:"name"`
	Blinds      game.Blinds          `json:"blinds"`
	Players     []SeatedPlayer       `json:"players"`
	Round       *game.RoundInfoEvent `json:"round,omitempty"`
	HandsPlayed int                  `json:"handsPlayed"`
}

type seated struct {
	id      string
	name    string
	balance int
	leaving bool
}

// Table runs hands for the players seated at it. It is safe for concurrent use.
type Table struct {
	cfg       Config
	clock     quartz.Clock
	logger    *log.Logger
	listener  Listener
	observers []game.Notifier
	store     ledger.Store
	sink      game.BalanceSink
	ids       *handid.Generator
	rng       *rand.Rand

	mu          sync.Mutex
	players     []*seated // rotation order; the first player posts the small blind
	round       *game.Round
	handSeats   []string // player ID per seat of the current hand
	nextHand    *quartz.Timer
	turnTimer   *quartz.Timer
	turnSeq     uint64
	handsPlayed int
	closed      bool
}

// Option configures a Table.
type Option func(*Table)

// WithClock drives hand scheduling and action timeouts from c.
func WithClock(c quartz.Clock) Option {
	return func(t *Table) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithListener delivers hand events to l.
func WithListener(l Listener) Option {
	return func(t *Table) { t.listener = l }
}

// WithObserver also feeds every hand's events to n, for example a hand log.
func WithObserver(n game.Notifier) Option {
	return func(t *Table) { t.observers = append(t.observers, n) }
}

// WithLedger loads balances of arriving players from store. Pass the
// ledger.Persister that also receives balance changes, so a player who returns
// before the next flush gets the balance they left with.
func WithLedger(store ledger.Store) Option {
	return func(t *Table) { t.store = store }
}

// WithBalanceSink persists every balance change.
func WithBalanceSink(s game.BalanceSink) Option {
	return func(t *Table) { t.sink = s }
}

// WithSeed makes shuffles and hand IDs repeatable.
func WithSeed(seed int64) Option {
	return func(t *Table) { t.rng = randutil.New(seed) }
}

// New creates a table. Hands start once enough players are seated.
func New(cfg Config, opts ...Option) (*Table, error) {
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = game.MaxSeats
	}
	if cfg.MaxPlayers < game.MinSeats || cfg.MaxPlayers > game.MaxSeats {
		return nil, fmt.Errorf("table %s: max players must be %d-%d", cfg.Name, game.MinSeats, game.MaxSeats)
	}
	if cfg.Blinds.Small <= 0 || cfg.Blinds.Big < cfg.Blinds.Small {
		return nil, fmt.Errorf("table %s: %w: %d/%d", cfg.Name, game.ErrInvalidBlinds, cfg.Blinds.Small, cfg.Blinds.Big)
	}

	t := &Table{
		cfg:    cfg,
		clock:  quartz.NewReal(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		t.rng = randutil.New(t.clock.Now().UnixNano())
	}
	t.ids = handid.NewGenerator(t.clock, randutil.Derive(int64(t.rng.Uint64()), 1))
	t.logger = t.logger.WithPrefix("table").With("table", cfg.Name)
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.cfg.Name }

// Sit seats a player. A balance stored in the ledger takes precedence over the
// balance given here, which only applies to players the ledger has not seen.
func (t *Table) Sit(ctx context.Context, id, name string, balance int) (SeatedPlayer, error) {
	if t.store != nil {
		stored, err := t.store.Balance(ctx, id)
		switch {
		case err == nil:
			balance = stored
		case errors.Is(err, ledger.ErrNotFound):
			if err := t.store.SetBalance(ctx, id, balance); err != nil {
				return SeatedPlayer{}, fmt.Errorf("record balance of %s: %w", id, err)
			}
		default:
			return SeatedPlayer{}, fmt.Errorf("load balance of %s: %w", id, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return SeatedPlayer{}, ErrClosed
	}
	if t.find(id) != nil {
		return SeatedPlayer{}, fmt.Errorf("%w: %s", ErrAlreadySeated, id)
	}
	if len(t.players) >= t.cfg.MaxPlayers {
		return SeatedPlayer{}, ErrTableFull
	}

	p := &seated{id: id, name: name, balance: balance}
	t.players = append(t.players, p)
	t.logger.Info("player seated", "player", id, "balance", balance, "seated", len(t.players))

	t.scheduleNextHand()
	return t.view(p), nil
}

// Stand removes a player. A player in the current hand leaves it, forfeiting
// what they have committed, and is removed once the hand ends.
func (t *Table) Stand(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.find(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotSeated, id)
	}

	if seat := t.seatOf(id); seat >= 0 && t.round != nil {
		p.leaving = true
		before := t.turnState()
		if err := t.round.Leave(seat); err != nil && !errors.Is(err, game.ErrRoundEnded) {
			return err
		}
		// Removed by endHand, possibly already.
		t.afterAction(before)
		return nil
	}

	t.remove(id)
	return nil
}

// Act applies a player's action to the current hand.
func (t *Table) Act(id string, action game.Action, amount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.round == nil {
		return ErrNoRound
	}
	seat := t.seatOf(id)
	if seat < 0 {
		if t.find(id) == nil {
			return fmt.Errorf("%w: %s", ErrNotSeated, id)
		}
		return fmt.Errorf("%w: %s", ErrNotInHand, id)
	}

	before := t.turnState()
	err := t.round.Act(seat, action, amount)
	t.afterAction(before)
	return err
}

// Balance returns a seated player's chips, including live changes from the
// current hand.
func (t *Table) Balance(id string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.find(id)
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotSeated, id)
	}
	if seat := t.seatOf(id); seat >= 0 && t.round != nil {
		return t.round.Player(seat).Balance, nil
	}
	return p.balance, nil
}

// Snapshot returns the public state of the table.
func (t *Table) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := State{
		Name:        t.cfg.Name,
		Blinds:      t.cfg.Blinds,
		HandsPlayed: t.handsPlayed,
	}
	for _, p := range t.players {
		sp := t.view(p)
		if seat := t.seatOf(p.id); seat >= 0 && t.round != nil {
			sp.Balance = t.round.Player(seat).Balance
		}
		st.Players = append(st.Players, sp)
	}
	if t.round != nil {
		info := t.round.Info()
		st.Round = &info
	}
	return st
}

// Close stops scheduling hands. A hand in progress is left as it is.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.nextHand != nil {
		t.nextHand.Stop()
		t.nextHand = nil
	}
	t.stopTurnTimer()
}

func (t *Table) find(id string) *seated {
	for _, p := range t.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (t *Table) remove(id string) {
	t.players = slices.DeleteFunc(t.players, func(p *seated) bool { return p.id == id })
	t.logger.Info("player left", "player", id, "seated", len(t.players))
	if l, ok := t.listener.(LeaveListener); ok {
		l.PlayerLeft(id)
	}
}

// seatOf returns the seat of id in the current hand, or -1.
func (t *Table) seatOf(id string) int {
	if t.round == nil {
		return -1
	}
	return slices.Index(t.handSeats, id)
}

func (t *Table) view(p *seated) SeatedPlayer {
	return SeatedPlayer{
		ID:      p.id,
		Name:    p.name,
		Balance: p.balance,
		InHand:  t.seatOf(p.id) >= 0,
		Leaving: p.leaving,
	}
}

// qualifies reports whether p can post both blinds.
func (t *Table) qualifies(p *seated) bool {
	return !p.leaving && p.balance >= t.cfg.Blinds.Small+t.cfg.Blinds.Big
}

func (t *Table) scheduleNextHand() {
	if t.closed || t.round != nil || t.nextHand != nil {
		return
	}
	t.nextHand = t.clock.AfterFunc(t.cfg.NextHandDelay, t.startHand, "table", "next-hand")
}

func (t *Table) startHand() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextHand = nil
	if t.closed || t.round != nil {
		return
	}

	var seats []game.Seat
	var ids []string
	for _, p := range t.players {
		if t.qualifies(p) {
			seats = append(seats, game.Seat{ID: p.id, Name: p.name, Balance: p.balance})
			ids = append(ids, p.id)
		}
	}
	if len(seats) < game.MinSeats {
		t.logger.Debug("waiting for players", "qualifying", len(seats))
		return
	}

	handID := t.ids.Next()
	t.handSeats = ids
	opts := []game.RoundOption{
		game.WithHandID(handID),
		game.WithRNG(randutil.Derive(int64(t.rng.Uint64()), uint64(t.handsPlayed))),
		game.WithLogger(t.logger),
	}
	if t.sink != nil {
		opts = append(opts, game.WithBalanceSink(t.sink))
	}

	t.logger.Info("starting hand", "hand", handID, "players", len(seats))
	r, err := game.NewRound(seats, t.cfg.Blinds, t.notifier(ids), t.endHand, opts...)
	if err != nil {
		t.logger.Error("failed to start hand", "hand", handID, "error", err)
		t.handSeats = nil
		t.scheduleNextHand()
		return
	}
	if r.Ended() {
		// Everyone was all-in on the blinds; endHand has already run.
		return
	}
	t.round = r
	t.armTurnTimer()
}

// endHand runs inside the round call that finished the hand, with t.mu held.
func (t *Table) endHand(res game.Result) {
	for _, p := range res.Players {
		if s := t.find(p.ID); s != nil {
			s.balance = p.Balance
		}
	}
	for _, p := range slices.Clone(t.players) {
		if p.leaving {
			t.remove(p.id)
		}
	}

	// The button moves: next hand the second player posts the small blind.
	if len(t.players) > 1 {
		t.players = append(t.players[1:], t.players[0])
	}

	t.round = nil
	t.handSeats = nil
	t.handsPlayed++
	t.stopTurnTimer()

	t.logger.Info("hand finished", "hand", res.HandID, "winners", len(res.Winners), "aborted", res.Aborted)
	t.scheduleNextHand()
}

type turnState struct {
	round *game.Round
	seat  int
	stage game.Stage
}

func (t *Table) turnState() turnState {
	if t.round == nil {
		return turnState{}
	}
	return turnState{round: t.round, seat: t.round.ActionIndex(), stage: t.round.Stage()}
}

// afterAction restarts the action timer when the turn has moved on. An ignored
// action leaves the running timer alone.
func (t *Table) afterAction(before turnState) {
	if t.round == nil {
		return
	}
	now := t.turnState()
	if now.round != before.round || now.seat != before.seat || now.stage != before.stage {
		t.armTurnTimer()
	}
}

func (t *Table) armTurnTimer() {
	t.stopTurnTimer()
	if t.cfg.ActionTimeout <= 0 || t.round == nil {
		return
	}
	t.turnSeq++
	seq := t.turnSeq
	t.turnTimer = t.clock.AfterFunc(t.cfg.ActionTimeout, func() { t.timeout(seq) }, "table", "action-timeout")
}

func (t *Table) stopTurnTimer() {
	if t.turnTimer != nil {
		t.turnTimer.Stop()
		t.turnTimer = nil
	}
}

// timeout plays for a seat that ran out of time: check when possible, fold
// otherwise.
func (t *Table) timeout(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seq != t.turnSeq || t.round == nil {
		return
	}
	t.turnTimer = nil

	seat := t.round.ActionIndex()
	action := game.Fold
	if t.round.ToCall(seat) == 0 {
		action = game.Check
	}
	t.logger.Warn("action timed out", "player", t.handSeats[seat], "seat", seat, "action", action)

	before := t.turnState()
	if err := t.round.Act(seat, action, 0); err != nil {
		t.logger.Error("timeout action failed", "seat", seat, "error", err)
	}
	t.afterAction(before)
}

// notifier adapts the table listener and observers to a round's seat numbering.
func (t *Table) notifier(ids []string) game.Notifier {
	return handNotifier{listener: t.listener, observers: t.observers, ids: ids}
}

type handNotifier struct {
	listener  Listener
	observers []game.Notifier
	ids       []string
}

func (n handNotifier) Broadcast(e game.Event) {
	for _, o := range n.observers {
		o.Broadcast(e)
	}
	if n.listener != nil {
		n.listener.Broadcast(e)
	}
}

func (n handNotifier) Send(seat int, e game.Event) {
	for _, o := range n.observers {
		o.Send(seat, e)
	}
	if n.listener != nil && seat >= 0 && seat < len(n.ids) {
		n.listener.SendTo(n.ids[seat], e)
	}
}
