package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/pokertable/internal/handlog"
	"github.com/lox/pokertable/internal/statistics"
)

// StatsCmd summarises player results across recorded hands.
type StatsCmd struct {
	Files []string  `arg:"" name:"file" type:"existingfile" help:"Hand log files written by serve --hand-log-dir"`
	Out   io.Writer `kong:"-"`
}

func (c *StatsCmd) Run() error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}

	report := statistics.NewReport()
	for _, path := range c.Files {
		l, err := handlog.Load(path)
		if err != nil {
			return err
		}
		if err := report.Add(l); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	renderReport(out, report)
	return nil
}

func renderReport(w io.Writer, r *statistics.Report) {
	styles := newReplayStyles(lipgloss.NewRenderer(w))

	fmt.Fprintf(w, "%s %s\n",
		styles.header.Render("Statistics"),
		styles.dim.Render(fmt.Sprintf("%d hands, %d aborted", r.Hands, r.Aborted)))

	for _, id := range r.PlayerIDs() {
		s := r.Players[id]
		lo, hi := s.ConfidenceInterval95()
		style := styles.black
		if s.Mean() > 0 {
			style = styles.winner
		}
		fmt.Fprintf(w, "%s  %d hands  %s bb/hand  %s\n",
			style.Render(fmt.Sprintf("%-12s", id)),
			s.Hands,
			style.Render(fmt.Sprintf("%+.2f", s.Mean())),
			styles.dim.Render(fmt.Sprintf("95%% CI [%+.2f, %+.2f]", lo, hi)))
		fmt.Fprintf(w, "  showdown wins %d (%+.1f bb), non-showdown wins %d (%+.1f bb), biggest pot %d\n",
			s.ShowdownWins, s.ShowdownBB, s.NonShowdownWins, s.NonShowdownBB, s.MaxPotChips)
	}
}
