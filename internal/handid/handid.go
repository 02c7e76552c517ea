// Package handid generates sortable identifiers for hands.
//
// An ID is a UUIDv7 (48-bit millisecond timestamp, version and variant bits,
// random tail) written as 26 characters of Crockford base32, so IDs sort by
// creation time as plain strings.
package handid

import (
	crand "crypto/rand"
	"encoding/base32"
	"fmt"
	rand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Crockford's base32 alphabet, as used by TypeID.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of every generated ID.
const Length = 26

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

// Generator hands out IDs. It is safe for concurrent use.
type Generator struct {
	clock quartz.Clock

	mu  sync.Mutex
	rng *rand.Rand // nil means crypto/rand
}

// NewGenerator creates a generator. A nil rng draws from crypto/rand; tests
// pass a seeded source and a mock clock for repeatable IDs.
func NewGenerator(clock quartz.Clock, rng *rand.Rand) *Generator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Generator{clock: clock, rng: rng}
}

// New returns an ID using the real clock and crypto/rand.
func New() string {
	return NewGenerator(nil, nil).Next()
}

// Next returns a fresh ID.
func (g *Generator) Next() string {
	var uuid [16]byte

	ms := g.clock.Now().UnixMilli()
	for i := range 6 {
		uuid[i] = byte(ms >> (40 - 8*i))
	}

	g.mu.Lock()
	if g.rng != nil {
		for i := 6; i < 16; i++ {
			uuid[i] = byte(g.rng.UintN(256))
		}
	} else if _, err := crand.Read(uuid[6:]); err != nil {
		g.mu.Unlock()
		panic("handid: reading random bytes: " + err.Error())
	}
	g.mu.Unlock()

	uuid[6] = (uuid[6] & 0x0f) | 0x70 // version 7
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // variant 10

	return encoding.EncodeToString(uuid[:])
}

// Time returns the creation time encoded in id.
func Time(id string) (time.Time, error) {
	raw, err := decode(id)
	if err != nil {
		return time.Time{}, err
	}
	var ms int64
	for i := range 6 {
		ms = ms<<8 | int64(raw[i])
	}
	return time.UnixMilli(ms), nil
}

// Validate checks that id is a well-formed version 7 ID.
func Validate(id string) error {
	raw, err := decode(id)
	if err != nil {
		return err
	}
	if raw[6]>>4 != 7 {
		return fmt.Errorf("hand id %q: version %d, want 7", id, raw[6]>>4)
	}
	return nil
}

func decode(id string) ([]byte, error) {
	if len(id) != Length {
		return nil, fmt.Errorf("hand id must be %d characters, got %d", Length, len(id))
	}
	if i := strings.IndexFunc(id, func(r rune) bool { return !strings.ContainsRune(alphabet, r) }); i >= 0 {
		return nil, fmt.Errorf("invalid character %q at position %d", id[i], i)
	}
	raw, err := encoding.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("hand id %q: %w", id, err)
	}
	return raw, nil
}
