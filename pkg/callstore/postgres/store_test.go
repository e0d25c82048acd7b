package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/callstore/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOCEPTA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOCEPTA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOCEPTA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS callback_tasks CASCADE",
		"DROP TABLE IF EXISTS calls CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// TestStore_CallRoundTrip exercises create, read and partial update against
// a live database.
func TestStore_CallRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	call, err := callstore.NewCall("CA123", "+15551234567")
	if err != nil {
		t.Fatalf("NewCall: %v", err)
	}
	if err := store.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if call.CreatedAt.IsZero() {
		t.Error("CreateCall did not return timestamps")
	}

	status := callstore.StatusGreet
	intent := "billing question"
	updated, err := store.UpdateCall(ctx, "CA123", callstore.CallUpdate{
		Status: &status,
		Intent: &intent,
		Costs:  map[string]float64{"llm_prompt_tokens": 64},
	})
	if err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	if updated.Status != callstore.StatusGreet || updated.Intent != intent {
		t.Errorf("UpdateCall = %+v, want applied fields", updated)
	}

	got, err := store.GetCall(ctx, "CA123")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Costs["llm_prompt_tokens"] != 64 {
		t.Errorf("Costs = %v, want llm_prompt_tokens=64", got.Costs)
	}

	// Illegal status jump is rejected by the row-locked update.
	bad := callstore.StatusConfirmation
	if _, err := store.UpdateCall(ctx, "CA123", callstore.CallUpdate{Status: &bad}); !errors.Is(err, callstore.ErrInvalidStatusChange) {
		t.Errorf("UpdateCall(GREET -> CONFIRMATION) error = %v, want ErrInvalidStatusChange", err)
	}

	if _, err := store.GetCall(ctx, "missing"); !errors.Is(err, callstore.ErrNotFound) {
		t.Errorf("GetCall(missing) error = %v, want ErrNotFound", err)
	}
}

// TestStore_CallbackTaskConstraints exercises the unique call_id and foreign
// key constraints.
func TestStore_CallbackTaskConstraints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	call, _ := callstore.NewCall("CA123", "+15551234567")
	if err := store.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	task, _ := callstore.NewCallbackTask("CA123", "+15551234567", callstore.PriorityUrgent)
	task.Name = "John Smith"
	if err := store.CreateCallbackTask(ctx, task); err != nil {
		t.Fatalf("CreateCallbackTask: %v", err)
	}

	dup, _ := callstore.NewCallbackTask("CA123", "+15550001111", callstore.PriorityLow)
	if err := store.CreateCallbackTask(ctx, dup); !errors.Is(err, callstore.ErrTaskExists) {
		t.Errorf("duplicate CreateCallbackTask error = %v, want ErrTaskExists", err)
	}

	orphan, _ := callstore.NewCallbackTask("CA404", "+15551234567", callstore.PriorityNormal)
	if err := store.CreateCallbackTask(ctx, orphan); !errors.Is(err, callstore.ErrNotFound) {
		t.Errorf("orphan CreateCallbackTask error = %v, want ErrNotFound", err)
	}

	got, err := store.GetCallbackTaskByCall(ctx, "CA123")
	if err != nil {
		t.Fatalf("GetCallbackTaskByCall: %v", err)
	}
	if got.Name != "John Smith" || got.Priority != callstore.PriorityUrgent {
		t.Errorf("GetCallbackTaskByCall = %+v, want created task", got)
	}

	status := callstore.TaskCompleted
	updated, err := store.UpdateCallbackTask(ctx, got.ID, callstore.TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateCallbackTask: %v", err)
	}
	if updated.Status != callstore.TaskCompleted {
		t.Errorf("UpdateCallbackTask status = %s, want COMPLETED", updated.Status)
	}
}

// TestStore_SaveTranscript exercises the transcript column write.
func TestStore_SaveTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	call, _ := callstore.NewCall("CA123", "+15551234567")
	if err := store.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	doc := `{"version":"1.0","turns":[]}`
	if err := store.SaveTranscript(ctx, "CA123", doc); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	got, err := store.GetCall(ctx, "CA123")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Transcript != doc {
		t.Errorf("Transcript = %q, want %q", got.Transcript, doc)
	}

	if err := store.SaveTranscript(ctx, "missing", doc); !errors.Is(err, callstore.ErrNotFound) {
		t.Errorf("SaveTranscript(missing) error = %v, want ErrNotFound", err)
	}
}
