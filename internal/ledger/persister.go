package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Persister buffers balance changes and writes them to a Store in the
// background. Only the latest balance per player is kept, so a slow store never
// holds up a hand. It satisfies game.BalanceSink, and as a Store it reads
// through its own queue so callers never see a balance older than one queued.
type Persister struct {
	store    Store
	logger   *log.Logger
	clock    quartz.Clock
	interval time.Duration

	flushMu  sync.Mutex // one Flush at a time
	mu       sync.Mutex
	pending  map[string]int
	inflight map[string]int // taken by the running Flush, not yet written
	flushReq chan struct{}
}

var _ Store = (*Persister)(nil)

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithClock sets the clock driving periodic flushes.
func WithClock(c quartz.Clock) PersisterOption {
	return func(p *Persister) { p.clock = c }
}

// WithFlushInterval flushes at least this often even without new writes.
func WithFlushInterval(d time.Duration) PersisterOption {
	return func(p *Persister) { p.interval = d }
}

// NewPersister creates a persister writing to store.
func NewPersister(store Store, logger *log.Logger, opts ...PersisterOption) *Persister {
	p := &Persister{
		store:    store,
		logger:   logger.WithPrefix("ledger"),
		clock:    quartz.NewReal(),
		interval: 5 * time.Second,
		pending:  make(map[string]int),
		flushReq: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PersistBalance queues balance for playerID. It never blocks.
func (p *Persister) PersistBalance(playerID string, balance int) {
	p.mu.Lock()
	p.pending[playerID] = balance
	p.mu.Unlock()

	select {
	case p.flushReq <- struct{}{}:
	default:
	}
}

// Balance returns the newest known balance: queued, then being written, then
// stored.
func (p *Persister) Balance(ctx context.Context, playerID string) (int, error) {
	p.mu.Lock()
	if b, ok := p.pending[playerID]; ok {
		p.mu.Unlock()
		return b, nil
	}
	if b, ok := p.inflight[playerID]; ok {
		p.mu.Unlock()
		return b, nil
	}
	p.mu.Unlock()
	return p.store.Balance(ctx, playerID)
}

// SetBalance queues balance like PersistBalance. It never fails.
func (p *Persister) SetBalance(_ context.Context, playerID string, balance int) error {
	p.PersistBalance(playerID, balance)
	return nil
}

// Pending returns the number of players with unwritten balances.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run writes queued balances until ctx is cancelled, then flushes whatever is
// left.
func (p *Persister) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval, "ledger", "flush")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown flush gets its own deadline; ctx is already done.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.Flush(flushCtx)
			cancel()
			return err
		case <-p.flushReq:
			_ = p.Flush(ctx)
		case <-ticker.C:
			_ = p.Flush(ctx)
		}
	}
}

// Flush writes every queued balance. Failed writes are logged and requeued
// unless a newer balance arrived in the meantime.
func (p *Persister) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]int, len(batch))
	p.inflight = batch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inflight = nil
		p.mu.Unlock()
	}()

	var errs []error
	for id, balance := range batch {
		if err := p.store.SetBalance(ctx, id, balance); err != nil {
			p.logger.Error("failed to persist balance", "player", id, "balance", balance, "error", err)
			errs = append(errs, err)
			p.requeue(id, balance)
			continue
		}
		p.logger.Debug("persisted balance", "player", id, "balance", balance)
	}
	return errors.Join(errs...)
}

func (p *Persister) requeue(id string, balance int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, newer := p.pending[id]; !newer {
		p.pending[id] = balance
	}
}
