// Package memstore provides an in-memory [callstore.Store] used by tests
// and local development. It mirrors the postgres implementation's semantics
// exactly: generated ids, managed timestamps, the status allow-list graph
// and the one-task-per-call rule.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vocepta/pkg/callstore"
)

// Store is a map-backed call store. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	calls map[string]*callstore.Call
	tasks map[string]*callstore.CallbackTask // keyed by task id
}

// Compile-time interface check.
var _ callstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		calls: make(map[string]*callstore.Call),
		tasks: make(map[string]*callstore.CallbackTask),
	}
}

// CreateCall implements [callstore.Store].
func (s *Store) CreateCall(ctx context.Context, call *callstore.Call) error {
	if err := call.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Status == "" {
		call.Status = callstore.StatusInit
	}
	now := time.Now().UTC()
	call.CreatedAt = now
	call.UpdatedAt = now

	stored := cloneCall(call)
	s.calls[call.ID] = stored
	return nil
}

// GetCall implements [callstore.Store].
func (s *Store) GetCall(ctx context.Context, id string) (*callstore.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, callstore.ErrNotFound
	}
	return cloneCall(c), nil
}

// UpdateCall implements [callstore.Store].
func (s *Store) UpdateCall(ctx context.Context, id string, upd callstore.CallUpdate) (*callstore.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, callstore.ErrNotFound
	}

	updated := cloneCall(c)
	if err := upd.Apply(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	s.calls[id] = updated
	return cloneCall(updated), nil
}

// SaveTranscript implements [callstore.Store].
func (s *Store) SaveTranscript(ctx context.Context, callID, transcriptJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return callstore.ErrNotFound
	}
	c.Transcript = transcriptJSON
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateCallbackTask implements [callstore.Store].
func (s *Store) CreateCallbackTask(ctx context.Context, task *callstore.CallbackTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[task.CallID]; !ok {
		return callstore.ErrNotFound
	}
	for _, t := range s.tasks {
		if t.CallID == task.CallID {
			return callstore.ErrTaskExists
		}
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = callstore.TaskPending
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

// GetCallbackTaskByCall implements [callstore.Store].
func (s *Store) GetCallbackTaskByCall(ctx context.Context, callID string) (*callstore.CallbackTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.CallID == callID {
			out := *t
			return &out, nil
		}
	}
	return nil, callstore.ErrNotFound
}

// UpdateCallbackTask implements [callstore.Store].
func (s *Store) UpdateCallbackTask(ctx context.Context, id string, upd callstore.TaskUpdate) (*callstore.CallbackTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, callstore.ErrNotFound
	}

	updated := *t
	if err := upd.Apply(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	s.tasks[id] = &updated
	out := updated
	return &out, nil
}

// Close implements [callstore.Store]. It is a no-op for the in-memory store.
func (s *Store) Close() {}

// cloneCall deep-copies a call so callers cannot alias the stored map.
func cloneCall(c *callstore.Call) *callstore.Call {
	out := *c
	if c.Costs != nil {
		out.Costs = make(map[string]float64, len(c.Costs))
		for k, v := range c.Costs {
			out.Costs[k] = v
		}
	}
	return &out
}
