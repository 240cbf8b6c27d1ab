package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benchfarm/benchfarm/internal/project"
	"github.com/benchfarm/benchfarm/internal/store"
)

func TestSchedulerStop_Idempotent(t *testing.T) {
	s := &Scheduler{
		stop: make(chan struct{}),
	}

	s.Stop()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Stop should be idempotent, panicked on second call: %v", r)
		}
	}()

	s.Stop()
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(store.NewMemStore(), []project.Schedule{
		{Name: "broken", Cron: "not a cron", Script: "true"},
	}, nil, 0)
	if err == nil {
		t.Fatal("New() expected error for bad cron expression")
	}
}

func newNightly(t *testing.T) (*Scheduler, *store.MemStore) {
	t.Helper()
	ms := store.NewMemStore()
	s, err := New(ms, []project.Schedule{
		{Name: "nightly", Cron: "0 2 * * *", Script: "benchfarm builds ensure df\n"},
	}, nil, 0)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s, ms
}

func TestFireDueEnqueuesSlotJob(t *testing.T) {
	s, ms := newNightly(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.prime(base)

	s.FireDue(ctx, base.Add(time.Hour))
	if jobs, _ := ms.ListPending(ctx); len(jobs) != 0 {
		t.Fatalf("fired early: %v", jobs)
	}

	s.FireDue(ctx, time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))
	jobs, err := ms.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("pending = %v, want one job", jobs)
	}
	if jobs[0].Name != "nightly-2026-03-01-0200" {
		t.Errorf("job name = %q", jobs[0].Name)
	}

	job, err := ms.Get(ctx, jobs[0].Name)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if job.Meta["Task"] != "nightly" {
		t.Errorf("meta = %v, want Task nightly", job.Meta)
	}
	if !strings.Contains(job.Script, "benchfarm builds ensure df") {
		t.Errorf("script = %q", job.Script)
	}

	// The same slot does not fire twice.
	s.FireDue(ctx, time.Date(2026, 3, 1, 2, 0, 30, 0, time.UTC))
	if jobs, _ := ms.ListPending(ctx); len(jobs) != 1 {
		t.Errorf("pending = %v, want still one job", jobs)
	}
}

func TestFireDueSlotConflictIsQuiet(t *testing.T) {
	s, ms := newNightly(t)
	ctx := context.Background()

	// A previous incarnation enqueued this slot before crashing.
	if _, err := ms.Put(ctx, "nightly-2026-03-01-0200", "true\n"); err != nil {
		t.Fatal(err)
	}
	s.prime(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s.FireDue(ctx, time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))

	jobs, err := ms.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("pending = %v, want the original job only", jobs)
	}
}

func TestFireDueSkipsMissedBacklog(t *testing.T) {
	s, ms := newNightly(t)
	ctx := context.Background()
	s.prime(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	// Three days pass while the farm is down: one catch-up fire, no replay.
	s.FireDue(ctx, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	jobs, err := ms.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("pending = %v, want exactly one catch-up job", jobs)
	}
	if jobs[0].Name != "nightly-2026-03-01-0200" {
		t.Errorf("job name = %q, want the earliest missed slot", jobs[0].Name)
	}

	s.FireDue(ctx, time.Date(2026, 3, 4, 12, 0, 30, 0, time.UTC))
	if jobs, _ := ms.ListPending(ctx); len(jobs) != 1 {
		t.Errorf("pending = %v, want no further fires until the next slot", jobs)
	}
}

func TestStartWithoutSchedules(t *testing.T) {
	s, err := New(store.NewMemStore(), nil, nil, 0)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	s.Start()
	s.Stop()
}
