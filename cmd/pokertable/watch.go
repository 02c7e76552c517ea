package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/pokertable/internal/client"
	"github.com/lox/pokertable/internal/game"
)

// WatchCmd follows a table live, optionally taking a seat that checks or
// calls every turn.
type WatchCmd struct {
	Server   string `default:"http://localhost:8080" help:"Server URL"`
	Token    string `required:"" env:"POKERTABLE_TOKEN" help:"Player token"`
	Table    string `default:"main" help:"Table to join"`
	Sit      bool   `help:"Take a seat and check or call every turn"`
	Balance  int    `help:"Chips to sit with when the server has none on record"`
	LogLevel string `default:"warn" help:"Log level"`
}

func (c *WatchCmd) Run() error {
	logger, err := setupLogger(os.Stderr, c.LogLevel)
	if err != nil {
		return err
	}
	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	cl := client.NewClient(c.Server, logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}
	defer cl.Close()

	w := newWatcher(os.Stdout, c.Table, c.Sit, cl.Act)
	cl.OnEvent(w.handle)

	resp, err := cl.Auth(ctx, c.Token, c.Table)
	if err != nil {
		return err
	}
	logger.Info("Watching table", "table", c.Table, "player", resp.PlayerID, "seated", len(resp.Table.Players))

	if c.Sit {
		balance, err := cl.Sit(ctx, c.Balance)
		if err != nil {
			return err
		}
		logger.Info("Seated", "balance", balance)
	}

	select {
	case <-ctx.Done():
	case <-cl.Done():
		return fmt.Errorf("connection to %s closed", c.Server)
	}
	return nil
}

// watcher renders live events and plays the seat it was dealt into.
type watcher struct {
	h        *handRenderer
	table    string
	autoplay bool
	act      func(game.Action, int) error
	seat     int
}

func newWatcher(w io.Writer, tableName string, autoplay bool, act func(game.Action, int) error) *watcher {
	return &watcher{
		h: &handRenderer{
			w:      w,
			styles: newReplayStyles(lipgloss.NewRenderer(w)),
			names:  make(map[int]string),
		},
		table:    tableName,
		autoplay: autoplay,
		act:      act,
		seat:     -1,
	}
}

func (w *watcher) handle(e game.Event) {
	switch e := e.(type) {
	case game.RoundStartEvent:
		w.seat = -1
		clear(w.h.names)
		fmt.Fprintf(w.h.w, "\n%s %s\n",
			w.h.styles.header.Render("Hand "+e.HandID),
			w.h.styles.dim.Render(fmt.Sprintf("table %s, %s", w.table, time.Now().UTC().Format(time.RFC3339))))

	case game.HoleCardsEvent:
		w.seat = e.Seat
		fmt.Fprintf(w.h.w, "Dealt to %s %s\n", w.h.name(e.Seat), w.h.cards(e.Cards[:]))
		return

	case game.TurnEvent:
		if w.autoplay && e.Seat == w.seat {
			_ = w.act(game.Call, 0)
		}
		return
	}
	w.h.render(e)
}
