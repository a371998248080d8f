package session

import (
	"log/slog"
	"sync"

	"github.com/roach88/specforge/internal/compiler"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. Default: no-op.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithClock sets the wall clock used for timestamps.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDGenerator sets the session id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithGate replaces the designspec/v1 compiler gate.
func WithGate(g *compiler.Gate) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.gate = g.Compile
		}
	}
}

// WithSessionLocks serializes mutating operations per session id within
// this process. Without it, overlapping calls on one session race and the
// last writer wins.
func WithSessionLocks() Option {
	return func(o *Orchestrator) {
		o.locks = &sessionLocks{}
	}
}

// sessionLocks hands out one mutex per session id. Entries are never
// removed; the set is bounded by the sessions touched by this process.
type sessionLocks struct {
	m sync.Map
}

func (l *sessionLocks) lock(id string) func() {
	mu, _ := l.m.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}
