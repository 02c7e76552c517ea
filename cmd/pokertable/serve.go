package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/pokertable/internal/handlog"
	"github.com/lox/pokertable/internal/ledger"
	"github.com/lox/pokertable/internal/server"
	"github.com/lox/pokertable/internal/table"
)

// ServeCmd runs the websocket server for the configured tables.
type ServeCmd struct {
	Config        string        `short:"c" default:"pokertable.hcl" help:"Path to HCL configuration file"`
	Addr          string        `short:"a" help:"Address to bind to as host:port (overrides config)"`
	LogLevel      string        `short:"l" help:"Log level: debug, info, warn or error (overrides config)"`
	HandLogDir    string        `help:"Directory to write hand logs to (overrides config)"`
	Seed          *int64        `help:"Deterministic RNG seed for dealing (optional)"`
	FlushInterval time.Duration `default:"5s" help:"How often balances are written to the ledger"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return err
	}
	if err := c.applyOverrides(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := setupLogger(os.Stderr, cfg.Server.LogLevel)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close ledger", "error", err)
		}
	}()
	// Reads go through the persister so queued balances are never missed.
	persister := ledger.NewPersister(store, logger, ledger.WithFlushInterval(c.FlushInterval))

	srv := server.NewServer(cfg.GetServerAddress(), cfg.Validator(), logger,
		server.WithLedger(persister),
		server.WithDefaultBalance(cfg.Server.DefaultBalance),
	)

	for i, tc := range cfg.Tables {
		tcfg, err := tc.TableConfig()
		if err != nil {
			return err
		}
		opts := []table.Option{
			table.WithLogger(logger),
			table.WithListener(srv.Hub(tc.Name)),
			table.WithLedger(persister),
			table.WithBalanceSink(persister),
		}
		if cfg.Server.HandLogDir != "" {
			rec := handlog.NewRecorder(cfg.Server.HandLogDir, tc.Name, nil, handlog.WithLogger(logger))
			opts = append(opts, table.WithObserver(rec))
		}
		if c.Seed != nil {
			opts = append(opts, table.WithSeed(*c.Seed+int64(i)))
		}

		tbl, err := table.New(tcfg, opts...)
		if err != nil {
			return err
		}
		defer tbl.Close()
		srv.AddTable(tbl)

		logger.Info("Created table",
			"name", tc.Name,
			"stakes", fmt.Sprintf("%d/%d", tcfg.Blinds.Small, tcfg.Blinds.Big),
			"maxPlayers", tcfg.MaxPlayers,
			"actionTimeout", tcfg.ActionTimeout)
	}

	logger.Info("Starting pokertable server",
		"addr", cfg.GetServerAddress(),
		"tables", len(cfg.Tables),
		"ledger", cfg.Ledger.Backend,
		"handLogs", cfg.Server.HandLogDir)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return persister.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func (c *ServeCmd) applyOverrides(cfg *server.ServerConfig) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", c.Addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q: %w", port, err)
		}
		if host != "" {
			cfg.Server.Address = host
		}
		cfg.Server.Port = p
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.HandLogDir != "" {
		cfg.Server.HandLogDir = c.HandLogDir
	}
	return nil
}
