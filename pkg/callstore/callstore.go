// Package callstore defines the receptionist's persistent entities (calls
// and callback tasks) and the [Store] interface over them.
//
// Two implementations exist: pkg/callstore/postgres (pgx connection pool,
// production) and pkg/callstore/memstore (map-backed, tests and local
// development). Both enforce the same rules: at most one callback task per
// call, and call statuses only advance along the allow-list graph, so a
// late or concurrent writer can never rewind a call's recorded outcome.
//
// Every implementation must be safe for concurrent use.
package callstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/vocepta/pkg/types"
)

// ErrNotFound is returned when the requested call or task does not exist.
var ErrNotFound = errors.New("callstore: not found")

// ErrTaskExists is returned by CreateCallbackTask when the call already has
// a task. A call carries at most one callback task.
var ErrTaskExists = errors.New("callstore: callback task already exists for call")

// ErrInvalidStatusChange is returned by UpdateCall when the requested status
// move is not in the allow-list graph.
var ErrInvalidStatusChange = errors.New("callstore: invalid status change")

// Store persists calls and callback tasks.
type Store interface {
	// CreateCall inserts call. When call.ID is empty a unique id is
	// generated. The stored record (with timestamps) is written back into
	// call.
	CreateCall(ctx context.Context, call *Call) error

	// GetCall returns the call with the given id, or [ErrNotFound].
	GetCall(ctx context.Context, id string) (*Call, error)

	// UpdateCall applies the set fields of upd to the call and returns the
	// updated record. Status moves outside the allow-list graph fail with
	// [ErrInvalidStatusChange]; a missing call fails with [ErrNotFound].
	UpdateCall(ctx context.Context, id string, upd CallUpdate) (*Call, error)

	// SaveTranscript replaces the call's stored transcript document.
	SaveTranscript(ctx context.Context, callID, transcriptJSON string) error

	// CreateCallbackTask inserts task. The generated id and timestamps are
	// written back into task. Fails with [ErrTaskExists] when the call
	// already has a task and [ErrNotFound] when the call does not exist.
	CreateCallbackTask(ctx context.Context, task *CallbackTask) error

	// GetCallbackTaskByCall returns the task belonging to callID, or
	// [ErrNotFound].
	GetCallbackTaskByCall(ctx context.Context, callID string) (*CallbackTask, error)

	// UpdateCallbackTask applies the set fields of upd to the task with the
	// given id and returns the updated record.
	UpdateCallbackTask(ctx context.Context, id string, upd TaskUpdate) (*CallbackTask, error)

	// Close releases the store's resources.
	Close()
}

// CallUpdate is a partial update of a [Call]. Nil fields are left untouched;
// Costs entries are merged key-by-key into the stored map.
type CallUpdate struct {
	Language     *types.Language
	CustomerType *CustomerType
	Intent       *string
	Status       *CallStatus
	Summary      *string
	Transcript   *string
	Costs        map[string]float64
}

// Apply copies the set fields onto c, enforcing the status graph and field
// constraints. Implementations call it inside their own locking or
// transaction scope.
func (u CallUpdate) Apply(c *Call) error {
	if u.Status != nil {
		if !CanChangeStatus(c.Status, *u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, c.Status, *u.Status)
		}
		c.Status = *u.Status
	}
	if u.Language != nil {
		c.Language = *u.Language
	}
	if u.CustomerType != nil {
		c.CustomerType = *u.CustomerType
	}
	if u.Intent != nil {
		c.Intent = *u.Intent
	}
	if u.Summary != nil {
		c.Summary = *u.Summary
	}
	if u.Transcript != nil {
		c.Transcript = *u.Transcript
	}
	if len(u.Costs) > 0 {
		if c.Costs == nil {
			c.Costs = make(map[string]float64, len(u.Costs))
		}
		for k, v := range u.Costs {
			c.Costs[k] = v
		}
	}
	return c.Validate()
}

// TaskUpdate is a partial update of a [CallbackTask]. Nil fields are left
// untouched.
type TaskUpdate struct {
	Priority       *Priority
	Name           *string
	CallbackNumber *string
	BestTimeWindow *string
	Notes          *string
	Assignee       *string
	Status         *TaskStatus
}

// Apply copies the set fields onto t and validates the result.
func (u TaskUpdate) Apply(t *CallbackTask) error {
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.CallbackNumber != nil {
		t.CallbackNumber = *u.CallbackNumber
	}
	if u.BestTimeWindow != nil {
		t.BestTimeWindow = *u.BestTimeWindow
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Assignee != nil {
		t.Assignee = *u.Assignee
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	return t.Validate()
}
