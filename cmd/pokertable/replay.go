package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/pokertable/internal/game"
	"github.com/lox/pokertable/internal/handlog"
	"github.com/lox/pokertable/internal/phh"
	"github.com/lox/pokertable/poker"
)

// ReplayCmd prints recorded hands in a readable form.
type ReplayCmd struct {
	Files  []string  `arg:"" name:"file" type:"existingfile" help:"Hand log files written by serve --hand-log-dir"`
	Format string    `enum:"text,phh" default:"text" help:"Output format (text, phh)"`
	Out    io.Writer `kong:"-"`
}

func (c *ReplayCmd) Run() error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	for i, path := range c.Files {
		l, err := handlog.Load(path)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		render := renderHand
		if c.Format == "phh" {
			render = renderPHH
		}
		if err := render(out, l); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

type replayStyles struct {
	header lipgloss.Style
	stage  lipgloss.Style
	winner lipgloss.Style
	warn   lipgloss.Style
	dim    lipgloss.Style
	red    lipgloss.Style
	black  lipgloss.Style
}

func newReplayStyles(r *lipgloss.Renderer) replayStyles {
	return replayStyles{
		header: r.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Bold(true).Padding(0, 1),
		stage:  r.NewStyle().Foreground(lipgloss.Color("#96CEB4")).Bold(true),
		winner: r.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		dim:    r.NewStyle().Foreground(lipgloss.Color("#626262")),
		red:    r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		black:  r.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
	}
}

type handRenderer struct {
	w      io.Writer
	styles replayStyles
	names  map[int]string
}

// renderHand writes one hand log, one line per public event.
func renderHand(w io.Writer, l *handlog.Log) error {
	h := &handRenderer{
		w:      w,
		styles: newReplayStyles(lipgloss.NewRenderer(w)),
		names:  make(map[int]string),
	}

	fmt.Fprintf(w, "%s %s\n",
		h.styles.header.Render("Hand "+l.HandID),
		h.styles.dim.Render(fmt.Sprintf("table %s, %s", l.Table, l.Started.UTC().Format(time.RFC3339))))

	for _, e := range l.Events {
		ev, err := e.Decode()
		if err != nil {
			return err
		}
		h.render(ev)
	}
	return nil
}

// renderPHH writes one hand log as a PHH TOML document.
func renderPHH(w io.Writer, l *handlog.Log) error {
	hand, err := phh.FromLog(l)
	if err != nil {
		return err
	}
	return phh.Encode(w, hand)
}

func (h *handRenderer) name(seat int) string {
	if n, ok := h.names[seat]; ok {
		return n
	}
	return fmt.Sprintf("seat %d", seat)
}

func (h *handRenderer) cards(cards []poker.Card) string {
	parts := make([]string, 0, len(cards))
	for _, c := range cards {
		if !c.Valid() {
			continue
		}
		style := h.styles.black
		if c.Suit() == poker.Hearts || c.Suit() == poker.Diamonds {
			style = h.styles.red
		}
		parts = append(parts, style.Render(c.String()))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (h *handRenderer) render(ev game.Event) {
	switch e := ev.(type) {
	case game.RoundStartEvent:
		fmt.Fprintf(h.w, "Blinds %d/%d\n", e.SmallBlind, e.BigBlind)
		for _, p := range e.Players {
			name := p.Name
			if name == "" {
				name = p.ID
			}
			h.names[p.Seat] = name
			fmt.Fprintf(h.w, "  Seat %d: %s (%d in chips, %d posted)\n", p.Seat, name, p.Balance+p.StageBet, p.StageBet)
		}

	case game.ActionEvent:
		line := h.name(e.Seat) + " " + actionVerb(e)
		if e.AllIn {
			line += " and is all-in"
		}
		fmt.Fprintln(h.w, line)

	case game.StageEvent:
		fmt.Fprintf(h.w, "%s %s %s\n",
			h.styles.stage.Render("*** "+strings.ToUpper(e.Stage.String())+" ***"),
			h.cards(e.Board),
			h.styles.dim.Render(fmt.Sprintf("pot %d", e.Pot)))

	case game.LeaveEvent:
		fmt.Fprintf(h.w, "%s leaves the table\n", h.name(e.Seat))

	case game.RoundEndEvent:
		if e.Aborted {
			fmt.Fprintln(h.w, h.styles.warn.Render("Hand aborted: "+e.Reason))
			return
		}
		if len(e.Board) > 0 {
			fmt.Fprintf(h.w, "Board %s\n", h.cards(e.Board))
		}
		for _, win := range e.Winners {
			line := fmt.Sprintf("%s wins %d", h.name(win.Seat), win.Won)
			if win.Description != "" {
				line += fmt.Sprintf(" with %s %s", h.cards(win.Cards[:]), win.Description)
			}
			fmt.Fprintln(h.w, h.styles.winner.Render(line))
		}

	case game.TurnEvent, game.RoundInfoEvent:
		// State snapshots; the actions already tell the story.
	}
}

func actionVerb(e game.ActionEvent) string {
	switch e.Action {
	case game.Fold:
		return "folds"
	case game.Check:
		return "checks"
	case game.Call:
		return fmt.Sprintf("calls %d", e.Amount)
	case game.Raise:
		return fmt.Sprintf("raises to %d", e.Bet)
	default:
		return e.Action.String()
	}
}
