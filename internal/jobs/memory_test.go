package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantumlink/quantumlink/internal/query"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job, err := store.Create(ctx, CreateInput{
		Principal:  "analyst",
		Plan:       query.ChainPlan{Master: "/d/master.csv"},
		OutputPath: "/r/out.csv",
		Format:     query.OutputCSV,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.ID == "" || job.Status != StatusPending || job.RowsWritten != -1 {
		t.Fatalf("created job = %#v", job)
	}

	if err := store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	finished, err := store.Finish(ctx, FinishInput{
		ID:          job.ID,
		Status:      StatusSucceeded,
		Message:     "chain join completed",
		RowsWritten: 3,
		SizeBytes:   42,
		Duration:    1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if finished.Status != StatusSucceeded || finished.RowsWritten != 3 || finished.DurationMS != 1500 {
		t.Fatalf("finished job = %#v", finished)
	}
	if finished.StartedAt == nil || finished.FinishedAt == nil {
		t.Fatalf("timestamps not set: %#v", finished)
	}

	if err := store.MarkRunning(ctx, job.ID); err == nil {
		t.Fatal("expected error restarting a finished job")
	}
}

func TestMemoryStoreRejectsUnknownAndNonTerminal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
	if err := store.MarkRunning(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if _, err := store.Finish(ctx, FinishInput{ID: "missing", Status: StatusRunning}); err == nil {
		t.Fatal("expected error for non-terminal finish")
	}
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := store.Create(ctx, CreateInput{Plan: query.ChainPlan{Master: "m.csv"}, Format: query.OutputCSV})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, job.ID)
	}

	jobs, err := store.List(ctx, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != ids[2] || jobs[1].ID != ids[1] {
		t.Fatalf("List() = %#v", jobs)
	}

	all, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) returned %d jobs", len(all))
	}
}

func TestMemoryStoreListFiltersByPrincipal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, principal := range []string{"analyst", "ops", "analyst"} {
		if _, err := store.Create(ctx, CreateInput{Principal: principal, Plan: query.ChainPlan{Master: "m.csv"}, Format: query.OutputCSV}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	own, err := store.List(ctx, ListFilter{Principal: "analyst"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("List(analyst) returned %d jobs, want 2", len(own))
	}
	for _, job := range own {
		if job.Principal != "analyst" {
			t.Fatalf("List(analyst) returned job of %q", job.Principal)
		}
	}

	none, err := store.List(ctx, ListFilter{Principal: "nobody"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("List(nobody) = %#v", none)
	}
}
