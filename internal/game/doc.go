// Package game implements a single round of Texas Hold'em.
//
// The main type is Round, a state machine that posts blinds, deals, runs the
// four betting stages and settles the pot, including side pots for all-in
// players.
//
// # Basic Usage
//
//	seats := []game.Seat{
//	    {ID: "alice", Name: "Alice", Balance: 1000}, // small blind
//	    {ID: "bob", Name: "Bob", Balance: 1000},     // big blind
//	    {ID: "carol", Name: "Carol", Balance: 1000},
//	}
//	r, err := game.NewRound(seats, game.Blinds{Small: 5, Big: 10}, notifier, func(res game.Result) {
//	    // pot distributed
//	})
//	// Carol acts first preflop.
//	err = r.Act(2, game.Call, 0)
//
// Raise amounts are the chips added on top of the call, so Raise(20) facing a
// bet of 10 puts in 30. A raise the player cannot afford becomes a call and a
// call the player cannot afford is an all-in.
//
// # Turn Order
//
// Each stage records an aggressor seat. The stage closes as soon as the action
// comes back round to that seat, even when the seat has since folded or gone
// all-in. Raising makes the raiser the new aggressor. When no more than one
// player can still bet and nothing is owed, the remaining board is dealt out
// without further action.
//
// # Deterministic Testing
//
// Pass WithRNG(randutil.New(seed)) for repeatable shuffles, or WithDeck with a
// stacked deck for exact cards:
//
//	deck := poker.NewStackedDeck(rng, poker.MustParseCards("As Ah Kd Kc")...)
//	r, err := game.NewRound(seats, blinds, nil, nil, game.WithDeck(deck))
//
// A Round is not safe for concurrent use. The table package serializes access.
package game
