package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/vocepta/internal/observe"
	"github.com/MrWong99/vocepta/pkg/types"
)

// DefaultSweepInterval is how often the reaper scans for abandoned
// sessions.
const DefaultSweepInterval = 30 * time.Second

// Factory builds the session for one call. The registry calls it under its
// lock, so it must only wire structs, not do I/O.
type Factory func(callID, fromNumber string, lang types.Language) (*Session, error)

// Registry tracks the live sessions of the process, one per call SID. The
// telephony vendor does not always deliver a final status callback, so the
// [Registry.Reap] loop ends sessions whose callers went silent.
type Registry struct {
	factory    Factory
	metrics    *observe.Metrics
	maxIdle    time.Duration
	sweepEvery time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOption tunes a [Registry].
type RegistryOption func(*Registry)

// WithMaxIdle sets how long a session may go without caller interaction
// before the reaper ends it. Defaults to [DefaultMaxDuration].
func WithMaxIdle(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.maxIdle = d
		}
	}
}

// WithSweepInterval sets the reaper scan period. Defaults to
// [DefaultSweepInterval].
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sweepEvery = d
		}
	}
}

// WithRegistryMetrics overrides the metrics instance, mainly for tests.
func WithRegistryMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRegistry creates an empty registry around factory.
func NewRegistry(factory Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:    factory,
		metrics:    observe.DefaultMetrics(),
		maxIdle:    DefaultMaxDuration,
		sweepEvery: DefaultSweepInterval,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession builds and starts the session for callID. A second start for
// a live call fails with [ErrSessionActive].
func (r *Registry) StartSession(ctx context.Context, callID, fromNumber string, lang types.Language) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[callID]; exists {
		return nil, fmt.Errorf("registry: call %s: %w", callID, ErrSessionActive)
	}
	s, err := r.factory(callID, fromNumber, lang)
	if err != nil {
		return nil, fmt.Errorf("registry: build session for call %s: %w", callID, err)
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	r.sessions[callID] = s
	r.metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("registry: session started",
		"call_id", callID,
		"active", len(r.sessions),
	)
	return s, nil
}

// Get returns the live session for callID.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EndSession removes and ends the session for callID. The boolean reports
// whether a live session existed; when it did not, the summary's Status is
// [StatusNoActiveSession].
func (r *Registry) EndSession(ctx context.Context, callID string) (Summary, bool) {
	r.mu.Lock()
	s, ok := r.sessions[callID]
	if ok {
		delete(r.sessions, callID)
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return Summary{CallID: callID, Status: StatusNoActiveSession}, false
	}
	sum := s.End()
	r.metrics.ActiveSessions.Add(ctx, -1)

	slog.Info("registry: session ended",
		"call_id", callID,
		"final_state", string(sum.FinalState),
		"active", active,
	)
	return sum, true
}

// Reap scans for abandoned sessions every sweep interval until ctx is
// cancelled. Run it from the application's run group.
func (r *Registry) Reap(ctx context.Context) {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep ends every session idle past maxIdle.
func (r *Registry) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.maxIdle)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		sum := s.End()
		r.metrics.ActiveSessions.Add(ctx, -1)
		slog.Warn("registry: reaped idle session",
			"call_id", sum.CallID,
			"final_state", string(sum.FinalState),
			"turns", sum.TurnsCount,
		)
	}
}

// Shutdown ends every live session, flushing their transcripts and costs.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		remaining = append(remaining, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range remaining {
		s.End()
		r.metrics.ActiveSessions.Add(ctx, -1)
	}
	if len(remaining) > 0 {
		slog.Info("registry: shut down", "sessions_ended", len(remaining))
	}
}
