// Package handlog records the public events of each hand and writes them to
// disk so a hand can be replayed later.
package handlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/pokertable/internal/fileutil"
	"github.com/lox/pokertable/internal/game"
)

// Entry is one recorded event.
type Entry struct {
	Seq  int             `json:"seq"`
	Type game.EventType  `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Log is the public history of a single hand.
type Log struct {
	HandID  string    `json:"handId"`
	Table   string    `json:"table"`
	Started time.Time `json:"started"`
	Events  []Entry   `json:"events"`
}

// Recorder tees round events: every broadcast is recorded and then passed on,
// private events are passed on without being recorded. When a round ends the log
// is written to dir/<handId>.json.
type Recorder struct {
	dir    string
	table  string
	next   game.Notifier
	clock  quartz.Clock
	logger *log.Logger

	mu      sync.Mutex
	current *Log
	written []string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock timestamps entries from c.
func WithClock(c quartz.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder records hands played at table into dir and forwards events to next.
func NewRecorder(dir, table string, next game.Notifier, opts ...Option) *Recorder {
	r := &Recorder{
		dir:    dir,
		table:  table,
		next:   next,
		clock:  quartz.NewReal(),
		logger: log.New(os.Stderr),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithPrefix("handlog").With("table", table)
	return r
}

// Broadcast records e and forwards it.
func (r *Recorder) Broadcast(e game.Event) {
	r.record(e)
	if r.next != nil {
		r.next.Broadcast(e)
	}
}

// Send forwards a private event. Hole cards never reach the log.
func (r *Recorder) Send(seat int, e game.Event) {
	if r.next != nil {
		r.next.Send(seat, e)
	}
}

// Written returns the paths of every log written so far.
func (r *Recorder) Written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.written...)
}

func (r *Recorder) record(e game.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		r.logger.Error("failed to encode event", "type", e.EventType(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if start, ok := e.(game.RoundStartEvent); ok {
		r.current = &Log{HandID: start.HandID, Table: r.table, Started: now}
	}
	if r.current == nil {
		// Attached mid-hand.
		r.current = &Log{Table: r.table, Started: now}
	}

	r.current.Events = append(r.current.Events, Entry{
		Seq:  len(r.current.Events),
		Type: e.EventType(),
		Time: now,
		Data: data,
	})

	if end, ok := e.(game.RoundEndEvent); ok {
		if r.current.HandID == "" {
			r.current.HandID = end.HandID
		}
		r.flush(r.current)
		r.current = nil
	}
}

func (r *Recorder) flush(l *Log) {
	if r.dir == "" {
		return
	}
	name := l.HandID
	if name == "" {
		name = fmt.Sprintf("hand-%d", l.Started.UnixNano())
	}
	path := filepath.Join(r.dir, name+".json")
	if err := fileutil.WriteJSON(path, l); err != nil {
		r.logger.Error("failed to write hand log", "hand", l.HandID, "error", err)
		return
	}
	r.written = append(r.written, path)
	r.logger.Debug("hand log written", "hand", l.HandID, "path", path, "events", len(l.Events))
}

// Load reads a hand log written by a Recorder.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse hand log %s: %w", path, err)
	}
	return &l, nil
}

// Decode turns an entry back into the event it recorded.
func (e Entry) Decode() (game.Event, error) {
	ev, err := game.DecodeEvent(e.Type, e.Data)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	return ev, nil
}
