package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// setupLogger returns a leveled logger with coloured level badges.
func setupLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})

	styles := log.DefaultStyles()
	badge := func(label, color string) lipgloss.Style {
		return lipgloss.NewStyle().
			SetString(label).
			Padding(0, 1).
			Background(lipgloss.Color(color)).
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)
	}
	styles.Levels[log.DebugLevel] = badge("DEBUG", "#626262")
	styles.Levels[log.InfoLevel] = badge("INFO", "#7D56F4")
	styles.Levels[log.WarnLevel] = badge("WARN", "#C9A227")
	styles.Levels[log.ErrorLevel] = badge("ERROR", "#FF6B6B")
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	logger.SetStyles(styles)

	return logger, nil
}

// setupSignalHandler creates a context that is cancelled on interrupt signals and logs
func setupSignalHandler(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down gracefully", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
