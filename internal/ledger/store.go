// Package ledger persists player balances outside the table process.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	dbm "github.com/cosmos/cosmos-db"
)

// ErrNotFound is returned for players the store has never seen.
var ErrNotFound = errors.New("ledger: player not found")

// Store reads and writes balances keyed by player identity.
type Store interface {
	Balance(ctx context.Context, playerID string) (int, error)
	SetBalance(ctx context.Context, playerID string, balance int) error
}

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// DBStore keeps balances in a key/value database.
type DBStore struct {
	db dbm.DB
}

// NewDBStore wraps an open database.
func NewDBStore(db dbm.DB) *DBStore {
	return &DBStore{db: db}
}

// NewMemStore returns a store that lives only as long as the process.
func NewMemStore() *DBStore {
	return NewDBStore(dbm.NewMemDB())
}

// Open creates a store for backend. The leveldb backend keeps its files in
// dir/balances.db.
func Open(backend, dir string) (*DBStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemStore(), nil
	case BackendLevelDB:
		if dir == "" {
			return nil, errors.New("ledger: leveldb backend needs a path")
		}
		db, err := dbm.NewGoLevelDB("balances", dir, nil)
		if err != nil {
			return nil, fmt.Errorf("open leveldb in %s: %w", dir, err)
		}
		return NewDBStore(db), nil
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", backend)
	}
}

func balanceKey(playerID string) []byte {
	return []byte("balance/" + playerID)
}

// Balance returns the stored balance of playerID.
func (s *DBStore) Balance(_ context.Context, playerID string) (int, error) {
	raw, err := s.db.Get(balanceKey(playerID))
	if err != nil {
		return 0, fmt.Errorf("read balance of %s: %w", playerID, err)
	}
	if raw == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, playerID)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("ledger: corrupt balance for %s (%d bytes)", playerID, len(raw))
	}
	return int(int64(binary.BigEndian.Uint64(raw))), nil
}

// SetBalance stores balance for playerID, durably when the backend supports it.
func (s *DBStore) SetBalance(ctx context.Context, playerID string, balance int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if balance < 0 {
		return fmt.Errorf("ledger: negative balance %d for %s", balance, playerID)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(balance))
	if err := s.db.SetSync(balanceKey(playerID), buf[:]); err != nil {
		return fmt.Errorf("write balance of %s: %w", playerID, err)
	}
	return nil
}

// Close releases the database.
func (s *DBStore) Close() error {
	return s.db.Close()
}
