package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	run := &domain.Run{
		RunID:     "r1",
		JobID:     "r1",
		UserID:    "u1",
		Status:    domain.RunStatusQueued,
		Meta:      json.RawMessage(`{"cities":["Lisbon"]}`),
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if err := store.UpdateRunStatus(ctx, "r1", domain.RunStatusRunning); err != nil {
		t.Fatalf("UpdateRunStatus failed: %v", err)
	}
	if err := store.UpdateRunProgress(ctx, "r1", 40, []byte(`{"day_structure":[]}`)); err != nil {
		t.Fatalf("UpdateRunProgress failed: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil || got.Status != domain.RunStatusRunning || got.Percent != 40 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if string(got.Progress) != `{"day_structure":[]}` {
		t.Fatalf("unexpected progress: %s", got.Progress)
	}
	if got.UpdatedAt == nil {
		t.Fatalf("expected updated_at to be set")
	}

	if err := store.FinalizeRun(ctx, "r1", domain.RunStatusDone, []byte(`{"days":[]}`), []byte(`{"errors":[]}`), nil); err != nil {
		t.Fatalf("FinalizeRun failed: %v", err)
	}
	got, err = store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != domain.RunStatusDone || got.Percent != 100 || got.EndedAt == nil {
		t.Fatalf("unexpected finalized run: %+v", got)
	}
	if string(got.Result) != `{"days":[]}` || got.Error != nil {
		t.Fatalf("unexpected result or error: %s %s", got.Result, got.Error)
	}

	missing, err := store.GetRun(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil run, got %+v, %v", missing, err)
	}

	runs, err := store.ListRuns(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestSQLiteStoreFailedRunKeepsProgress(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.CreateRun(ctx, &domain.Run{RunID: "r1", Status: domain.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.UpdateRunProgress(ctx, "r1", 20, nil); err != nil {
		t.Fatalf("UpdateRunProgress failed: %v", err)
	}
	if err := store.FinalizeRun(ctx, "r1", domain.RunStatusFailed, nil, nil, []byte(`{"code":"PHASE_FAILED"}`)); err != nil {
		t.Fatalf("FinalizeRun failed: %v", err)
	}
	got, _ := store.GetRun(ctx, "r1")
	if got.Status != domain.RunStatusFailed || got.Percent != 20 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if string(got.Error) != `{"code":"PHASE_FAILED"}` {
		t.Fatalf("unexpected error payload: %s", got.Error)
	}
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.CreateRun(ctx, &domain.Run{RunID: "r1", Status: domain.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	events := []domain.Event{
		{EventID: "e1", RunID: "r1", Ts: 100, Type: domain.EventTypeRunStarted},
		{EventID: "e2", RunID: "r1", Ts: 200, Type: domain.EventTypePhaseStarted, Payload: json.RawMessage(`{"phase":"structure"}`)},
		{EventID: "e3", RunID: "r1", Ts: 200, Type: domain.EventTypeAgentStarted},
		{EventID: "e4", RunID: "r1", Ts: 300, Type: domain.EventTypeRunDone},
	}
	for i := range events {
		if err := store.CreateEvent(ctx, &events[i]); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	all, err := store.GetEvents(ctx, "r1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(all) != 4 || all[1].EventID != "e2" || all[2].EventID != "e3" {
		t.Fatalf("unexpected events: %+v", all)
	}
	if all[0].Payload != nil {
		t.Fatalf("expected empty payload, got %s", all[0].Payload)
	}

	after, err := store.GetEvents(ctx, "r1", 100, []string{string(domain.EventTypePhaseStarted), string(domain.EventTypeRunDone)}, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(after) != 2 || after[0].EventID != "e2" || after[1].EventID != "e4" {
		t.Fatalf("unexpected filtered events: %+v", after)
	}

	limited, _ := store.GetEvents(ctx, "r1", 0, nil, 1)
	if len(limited) != 1 {
		t.Fatalf("expected 1 event, got %d", len(limited))
	}
}

func TestSQLiteStoreDecisions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.CreateRun(ctx, &domain.Run{RunID: "r1", Status: domain.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	for i := int64(1); i <= 3; i++ {
		d := domain.Decision{
			ID:        i,
			Type:      domain.DecisionSelection,
			Phase:     "activities",
			Agent:     "selection",
			Chosen:    "Miradouro",
			Reasoning: "rating 4.7 (+20)",
			Alternatives: []domain.Alternative{
				{Name: "Museu", Score: 25, Reason: "scored 25.0, 20.0 points below Miradouro"},
			},
			Timestamp: time.Now(),
		}
		if err := store.RecordDecision(ctx, "r1", d); err != nil {
			t.Fatalf("RecordDecision failed: %v", err)
		}
	}
	if err := store.RecordDecision(ctx, "r1", domain.Decision{ID: 1, Type: domain.DecisionError}); err != nil {
		t.Fatalf("duplicate RecordDecision failed: %v", err)
	}

	got, err := store.ListDecisions(ctx, "r1", 1, 0)
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected decisions: %+v", got)
	}
	if len(got[0].Alternatives) != 1 || got[0].Alternatives[0].Name != "Museu" {
		t.Fatalf("alternatives not round-tripped: %+v", got[0].Alternatives)
	}

	first, _ := store.ListDecisions(ctx, "r1", 0, 1)
	if len(first) != 1 || first[0].Type != domain.DecisionSelection {
		t.Fatalf("duplicate insert should keep the first copy: %+v", first)
	}
}
