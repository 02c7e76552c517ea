package game

import (
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/lox/pokertable/poker"
)

const (
	MinSeats = 2
	MaxSeats = 10
)

var (
	// ErrRoundEnded is returned by every action once the pot has been distributed.
	ErrRoundEnded = errors.New("round has ended")
	// ErrNotYourTurn is returned when a seat acts while another seat holds the action.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrInvalidSeat is returned for seat indexes or seat lists the round cannot use.
	ErrInvalidSeat = errors.New("invalid seat")
	// ErrInvalidBlinds is returned when the blind amounts are unusable.
	ErrInvalidBlinds = errors.New("invalid blinds")
)

// Result is handed to the end-of-round callback.
type Result struct {
	HandID  string
	Stage   Stage // stage in which the round ended
	Winners []Winner
	Pots    []Pot
	Board   []poker.Card
	Players []Player
	Aborted bool
	Reason  string
}

// Round is a single hand: blinds, four betting stages and the settlement.
//
// A Round is not safe for concurrent use; the owner serializes calls. Seats are
// addressed by their index in the list given to NewRound, and the list never
// changes size: a player who leaves is marked departed and folded.
type Round struct {
	handID   string
	players  []*Player
	blinds   Blinds
	deck     *poker.Deck
	ranker   HandRanker
	sink     BalanceSink
	notifier Notifier
	onEnd    func(Result)
	logger   *log.Logger

	stage       Stage
	pot         int // chips from closed stages
	newMoneyIn  int // chips committed in the live stage
	currentBet  int
	actionIndex int
	aggressor   int // reaching this seat again closes the stage
	board       []poker.Card

	started bool
	ended   bool
	result  Result
}

// NewRound posts blinds from seats 0 and 1, deals two hole cards to every seat
// and hands the action to the first seat after the big blind.
//
// Seats must be in rotation order, small blind first. onEnd is called exactly
// once, after the pot has been distributed. If dealing fails the blinds are
// refunded and an error is returned without calling onEnd.
func NewRound(seats []Seat, blinds Blinds, notifier Notifier, onEnd func(Result), opts ...RoundOption) (*Round, error) {
	if len(seats) < MinSeats || len(seats) > MaxSeats {
		return nil, fmt.Errorf("%w: need %d-%d seats, got %d", ErrInvalidSeat, MinSeats, MaxSeats, len(seats))
	}
	if blinds.Small < 0 || blinds.Big <= 0 || blinds.Big < blinds.Small {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidBlinds, blinds.Small, blinds.Big)
	}

	cfg := defaultRoundConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	players := make([]*Player, len(seats))
	for i, s := range seats {
		if s.Balance <= 0 {
			return nil, fmt.Errorf("%w: seat %d (%s) has no chips", ErrInvalidSeat, i, s.ID)
		}
		players[i] = &Player{Seat: i, ID: s.ID, Name: s.Name, Balance: s.Balance}
	}

	if notifier == nil {
		notifier = nopNotifier{}
	}
	if onEnd == nil {
		onEnd = func(Result) {}
	}

	r := &Round{
		handID:   cfg.handID,
		players:  players,
		blinds:   blinds,
		deck:     cfg.newDeck(),
		ranker:   cfg.ranker,
		sink:     cfg.sink,
		notifier: notifier,
		onEnd:    onEnd,
		logger:   cfg.logger.With("hand", cfg.handID),
		stage:    AwaitingBlinds,
	}

	if err := r.start(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Round) start() error {
	r.stage = PreFlop

	sb, bb := r.players[0], r.players[1]
	r.commit(sb, r.blinds.Small)
	r.commit(bb, r.blinds.Big)
	r.currentBet = r.blinds.Big

	r.notifier.Broadcast(RoundStartEvent{
		HandID:     r.handID,
		Players:    r.views(),
		SmallBlind: sb.StageBet,
		BigBlind:   bb.StageBet,
	})

	for _, p := range r.players {
		cards, err := r.deck.DrawN(2)
		if err != nil {
			r.abort(fmt.Sprintf("dealing hole cards: %v", err))
			return fmt.Errorf("deal hole cards: %w", err)
		}
		p.HoleCards = [2]poker.Card{cards[0], cards[1]}
		r.notifier.Send(p.Seat, HoleCardsEvent{Seat: p.Seat, Cards: p.HoleCards})
	}

	r.started = true
	r.logger.Debug("round started", "seats", len(r.players), "sb", r.blinds.Small, "bb", r.blinds.Big)

	if err := r.openStage(1); err != nil {
		return err
	}
	if !r.ended {
		r.notifier.Broadcast(r.Info())
	}
	return nil
}

// Raise puts in enough to match the current bet plus amount more. A raise the
// player cannot afford becomes a call; amount <= 0 is a call.
func (r *Round) Raise(amount int) error {
	if r.ended {
		return ErrRoundEnded
	}
	p := r.players[r.actionIndex]
	if amount <= 0 {
		return r.Call()
	}

	// Compared against what is left after calling so that amount is never
	// added to anything before it is known to fit in the balance.
	toCall := r.currentBet - p.StageBet
	if amount > p.Balance-toCall {
		return r.Call()
	}
	required := toCall + amount

	r.currentBet += amount
	paid := r.commit(p, required)
	r.aggressor = p.Seat

	r.notifier.Broadcast(ActionEvent{Action: Raise, Seat: p.Seat, Amount: paid, Bet: p.StageBet, AllIn: p.AllIn})
	return r.advanceTurn(false)
}

// Call matches the current bet, or puts in everything the player has left.
// With nothing to call it is a check.
func (r *Round) Call() error {
	if r.ended {
		return ErrRoundEnded
	}
	p := r.players[r.actionIndex]

	toCall := r.currentBet - p.StageBet
	if toCall <= 0 {
		return r.Check()
	}

	paid := r.commit(p, toCall)
	r.notifier.Broadcast(ActionEvent{Action: Call, Seat: p.Seat, Amount: paid, Bet: p.StageBet, AllIn: p.AllIn})
	return r.advanceTurn(false)
}

// Check passes the action. Checking while facing a bet is ignored: nothing
// changes and the same seat keeps the action.
func (r *Round) Check() error {
	if r.ended {
		return ErrRoundEnded
	}
	p := r.players[r.actionIndex]
	if p.StageBet < r.currentBet {
		r.logger.Debug("ignoring check facing a bet", "seat", p.Seat, "toCall", r.currentBet-p.StageBet)
		return nil
	}

	r.notifier.Broadcast(ActionEvent{Action: Check, Seat: p.Seat, Bet: p.StageBet})
	return r.advanceTurn(false)
}

// Fold gives up the hand. Chips already committed stay in the pot.
func (r *Round) Fold() error {
	if r.ended {
		return ErrRoundEnded
	}
	p := r.players[r.actionIndex]
	p.Folded = true

	r.notifier.Broadcast(ActionEvent{Action: Fold, Seat: p.Seat, Bet: p.StageBet})
	return r.advanceTurn(false)
}

// Act applies an action on behalf of seat, rejecting it when seat is not the
// one to act.
func (r *Round) Act(seat int, action Action, amount int) error {
	if r.ended {
		return ErrRoundEnded
	}
	if seat < 0 || seat >= len(r.players) {
		return fmt.Errorf("%w: %d", ErrInvalidSeat, seat)
	}
	if seat != r.actionIndex {
		return fmt.Errorf("%w: seat %d acted, seat %d to act", ErrNotYourTurn, seat, r.actionIndex)
	}

	switch action {
	case Fold:
		return r.Fold()
	case Check:
		return r.Check()
	case Call:
		return r.Call()
	case Raise:
		return r.Raise(amount)
	default:
		return fmt.Errorf("unknown action %v", action)
	}
}

// Leave marks seat as departed and folded. It may be called out of turn; the
// seat list keeps its shape so turn order of everyone else is unaffected.
func (r *Round) Leave(seat int) error {
	if r.ended {
		return ErrRoundEnded
	}
	if seat < 0 || seat >= len(r.players) {
		return fmt.Errorf("%w: %d", ErrInvalidSeat, seat)
	}

	p := r.players[seat]
	if p.Departed {
		return nil
	}
	p.Departed = true
	p.Folded = true
	r.notifier.Broadcast(LeaveEvent{Seat: seat})

	if seat == r.actionIndex {
		return r.advanceTurn(false)
	}
	if live, _ := r.counts(); live <= 1 {
		return r.finish()
	}
	return nil
}

// commit moves chips from a player into the live stage and persists the balance.
func (r *Round) commit(p *Player, amount int) int {
	paid := p.commit(amount)
	r.newMoneyIn += paid
	if paid > 0 {
		r.sink.PersistBalance(p.ID, p.Balance)
	}
	return paid
}

// counts returns how many seats have not folded and how many can still act.
func (r *Round) counts() (live, contestable int) {
	for _, p := range r.players {
		if p.Live() {
			live++
			if !p.AllIn {
				contestable++
			}
		}
	}
	return live, contestable
}

// betsSettled reports whether no seat that can act still owes chips this stage.
func (r *Round) betsSettled() bool {
	for _, p := range r.players {
		if p.CanAct() && p.StageBet < r.currentBet {
			return false
		}
	}
	return true
}

// seek returns the first seat after from, going round once, that can act.
func (r *Round) seek(from int) int {
	n := len(r.players)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if r.players[idx].CanAct() {
			return idx
		}
	}
	return -1
}

// openStage starts the action of a stage with the first eligible seat after
// from. That seat is also the aggressor, so the stage closes once the action
// comes back round to it.
func (r *Round) openStage(from int) error {
	r.aggressor = r.seek(from)
	r.actionIndex = from
	return r.advanceTurn(true)
}

// advanceTurn moves the action to the next seat or closes the stage.
//
// On the opening advancement of a stage (fresh) the scan lands on the aggressor
// by construction and must not close the stage before anyone has acted.
func (r *Round) advanceTurn(fresh bool) error {
	live, contestable := r.counts()
	if live <= 1 {
		return r.finish()
	}
	if contestable <= 1 && r.betsSettled() {
		return r.runOut()
	}

	n := len(r.players)
	from := r.actionIndex
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if idx == r.aggressor && !fresh {
			return r.closeStage()
		}
		if idx == from && !fresh {
			continue
		}
		p := r.players[idx]
		if p.CanAct() {
			r.actionIndex = idx
			r.notifier.Broadcast(TurnEvent{Seat: idx, ToCall: max(0, r.currentBet-p.StageBet)})
			return nil
		}
	}

	r.logger.Error("no seat can act", "stage", r.stage, "from", from, "aggressor", r.aggressor)
	return r.forceEnd()
}

// collectStage folds the live stage into the pot and moves to the next stage,
// revealing its community cards. Entering the showdown settles the round.
func (r *Round) collectStage() error {
	r.pot += r.newMoneyIn
	r.newMoneyIn = 0
	r.currentBet = 0
	for _, p := range r.players {
		p.StageBet = 0
	}

	r.stage++
	if r.stage >= Showdown {
		r.stage = Showdown
		return r.finish()
	}

	cards, err := r.deck.DrawN(r.stage.boardCards())
	if err != nil {
		r.abort(fmt.Sprintf("dealing %s: %v", r.stage, err))
		return fmt.Errorf("deal %s: %w", r.stage, err)
	}
	r.board = append(r.board, cards...)

	r.logger.Debug("stage opened", "stage", r.stage, "board", poker.FormatCards(r.board), "pot", r.pot)
	r.notifier.Broadcast(StageEvent{Stage: r.stage, Board: slices.Clone(r.board), Pot: r.pot})
	return nil
}

// closeStage ends the current stage and opens the next one.
func (r *Round) closeStage() error {
	if err := r.collectStage(); err != nil || r.ended {
		return err
	}

	// After the flop the first seat after the button acts first. Heads-up the
	// button is the small blind, so the big blind opens.
	from := len(r.players) - 1
	if len(r.players) == 2 {
		from = 0
	}
	if err := r.openStage(from); err != nil {
		return err
	}
	if !r.ended {
		r.notifier.Broadcast(r.Info())
	}
	return nil
}

// runOut deals every remaining stage without asking anyone to act.
func (r *Round) runOut() error {
	for !r.ended {
		if err := r.collectStage(); err != nil {
			return err
		}
	}
	return nil
}

// forceEnd ends a round whose turn order can no longer make progress. The board
// is completed so the remaining contenders can still be ranked.
func (r *Round) forceEnd() error {
	if missing := 5 - len(r.board); missing > 0 {
		cards, err := r.deck.DrawN(missing)
		if err != nil {
			r.abort(fmt.Sprintf("completing board: %v", err))
			return fmt.Errorf("complete board: %w", err)
		}
		r.board = append(r.board, cards...)
	}
	return r.finish()
}

// finish distributes the pot and ends the round.
func (r *Round) finish() error {
	if r.ended {
		return nil
	}
	r.pot += r.newMoneyIn
	r.newMoneyIn = 0
	r.currentBet = 0
	for _, p := range r.players {
		p.StageBet = 0
	}

	pots := splitPots(r.players)
	won := make(map[int]int)
	for i := range pots {
		pot := &pots[i]
		pot.Winners = r.bestHands(pot.Eligible)
		for seat, amount := range shares(pot.Amount, pot.Winners) {
			r.players[seat].Balance += amount
			won[seat] += amount
			r.pot -= amount
		}
	}
	if r.pot != 0 {
		r.logger.Error("pot not fully distributed", "left", r.pot)
	}

	var winners []Winner
	for _, p := range r.players {
		amount, ok := won[p.Seat]
		if !ok {
			continue
		}
		if amount > 0 {
			r.sink.PersistBalance(p.ID, p.Balance)
		}
		winners = append(winners, r.winner(p, amount))
	}

	r.end(Result{
		HandID:  r.handID,
		Stage:   r.stage,
		Winners: winners,
		Pots:    pots,
	})
	return nil
}

// bestHands returns the eligible seats holding the best hand, in seat order.
func (r *Round) bestHands(eligible []int) []int {
	var live []int
	for _, seat := range eligible {
		if r.players[seat].Live() {
			live = append(live, seat)
		}
	}
	switch len(live) {
	case 0:
		// Only reachable for chips that no live seat contested: split back.
		return eligible
	case 1:
		return live
	}

	best := 0
	var winners []int
	for _, seat := range live {
		score := r.ranker.Rank(r.sevenCards(seat))
		switch {
		case winners == nil || score > best:
			best = score
			winners = []int{seat}
		case score == best:
			winners = append(winners, seat)
		}
	}
	return winners
}

func (r *Round) sevenCards(seat int) [7]poker.Card {
	var cards [7]poker.Card
	cards[0], cards[1] = r.players[seat].HoleCards[0], r.players[seat].HoleCards[1]
	copy(cards[2:], r.board)
	return cards
}

func (r *Round) winner(p *Player, amount int) Winner {
	w := Winner{
		Seat:    p.Seat,
		ID:      p.ID,
		Name:    p.Name,
		Won:     amount,
		Balance: p.Balance,
	}
	// Hole cards are only shown when the hand was contested to the end.
	if r.stage != Showdown || len(r.board) != 5 || p.Folded {
		return w
	}
	w.Cards = p.HoleCards
	if d, ok := r.ranker.(HandDescriber); ok {
		w.Description = d.Describe(r.sevenCards(p.Seat))
	}
	return w
}

// abort refunds every stake and ends the round without a winner.
func (r *Round) abort(reason string) {
	if r.ended {
		return
	}
	r.logger.Error("aborting round", "reason", reason)
	for _, p := range r.players {
		if p.PotStake == 0 {
			continue
		}
		p.Balance += p.PotStake
		r.sink.PersistBalance(p.ID, p.Balance)
	}
	r.pot, r.newMoneyIn, r.currentBet = 0, 0, 0
	for _, p := range r.players {
		p.StageBet = 0
	}
	r.end(Result{HandID: r.handID, Stage: r.stage, Aborted: true, Reason: reason})
}

func (r *Round) end(res Result) {
	r.ended = true
	res.Board = slices.Clone(r.board)
	res.Players = r.snapshot()
	r.result = res

	r.notifier.Broadcast(RoundEndEvent{
		HandID:  r.handID,
		Winners: res.Winners,
		Board:   res.Board,
		Pots:    res.Pots,
		Players: r.views(),
		Aborted: res.Aborted,
		Reason:  res.Reason,
	})
	r.logger.Debug("round ended", "stage", r.stage, "winners", len(res.Winners), "aborted", res.Aborted)

	// A round that fails while dealing is reported through NewRound's error.
	if r.started {
		r.onEnd(res)
	}
}

// Ended reports whether the pot has been distributed.
func (r *Round) Ended() bool { return r.ended }

// Result returns the outcome once the round has ended.
func (r *Round) Result() (Result, bool) { return r.result, r.ended }

// HandID returns the identifier given with WithHandID.
func (r *Round) HandID() string { return r.handID }

// ActionIndex returns the seat whose turn it is.
func (r *Round) ActionIndex() int { return r.actionIndex }

// Stage returns the current stage.
func (r *Round) Stage() Stage { return r.stage }

// Pot returns the chips collected from closed stages.
func (r *Round) Pot() int { return r.pot }

// NewMoneyIn returns the chips committed in the current stage.
func (r *Round) NewMoneyIn() int { return r.newMoneyIn }

// CurrentBet returns the stage bet every live seat must match.
func (r *Round) CurrentBet() int { return r.currentBet }

// Board returns the community cards revealed so far.
func (r *Round) Board() []poker.Card { return slices.Clone(r.board) }

// NumSeats returns the number of seats dealt in.
func (r *Round) NumSeats() int { return len(r.players) }

// Player returns a copy of the ledger of seat.
func (r *Round) Player(seat int) Player { return *r.players[seat] }

// Players returns a copy of every seat's ledger.
func (r *Round) Players() []Player { return r.snapshot() }

// ToCall returns what seat must put in to stay in the hand.
func (r *Round) ToCall(seat int) int {
	return max(0, r.currentBet-r.players[seat].StageBet)
}

// Info returns a public snapshot of the round.
func (r *Round) Info() RoundInfoEvent {
	return RoundInfoEvent{
		HandID:      r.handID,
		Stage:       r.stage,
		Pot:         r.pot,
		NewMoneyIn:  r.newMoneyIn,
		CurrentBet:  r.currentBet,
		Board:       slices.Clone(r.board),
		ActionIndex: r.actionIndex,
		Players:     r.views(),
		Ended:       r.ended,
	}
}

func (r *Round) snapshot() []Player {
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Round) views() []PlayerView {
	out := make([]PlayerView, len(r.players))
	for i, p := range r.players {
		out[i] = viewOf(p)
	}
	return out
}
