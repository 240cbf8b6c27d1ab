// Package scheduler turns cron schedules into job descriptors.
//
// Each configured schedule carries a cron expression and a script body.
// When a slot comes due the scheduler enqueues the script under a name
// derived from the schedule and the slot time, so a restarted farm that
// re-fires the same slot hits a name conflict instead of a duplicate
// run. Slots missed while the farm was down are skipped, not replayed;
// only the most recently due slot fires on catch-up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/metrics"
	"github.com/benchfarm/benchfarm/internal/project"
	"github.com/benchfarm/benchfarm/internal/store"
)

// DefaultInterval is how often schedules are checked against the clock.
const DefaultInterval = 30 * time.Second

// slotFormat stamps the fired slot into the job name.
const slotFormat = "2006-01-02-1504"

type entry struct {
	schedule project.Schedule
	cron     cron.Schedule
	next     time.Time
}

// Scheduler fires configured schedules into the job store. Create with
// New, then Start; Stop is safe to call more than once.
type Scheduler struct {
	store    store.Store
	clock    core.Clock
	interval time.Duration
	entries  []*entry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(st store.Store, schedules []project.Schedule, clock core.Clock, interval time.Duration) (*Scheduler, error) {
	if clock == nil {
		clock = core.SystemClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		store:    st,
		clock:    clock,
		interval: interval,
		stop:     make(chan struct{}),
	}
	for _, sched := range schedules {
		cs, err := project.CronParser.Parse(sched.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sched.Name, err)
		}
		s.entries = append(s.entries, &entry{schedule: sched, cron: cs})
	}
	return s, nil
}

// Start begins checking schedules in the background. Slots already in
// the past at startup do not fire.
func (s *Scheduler) Start() {
	if len(s.entries) == 0 {
		slog.Info("scheduler idle, no schedules configured")
		return
	}
	s.prime(s.clock.Now())
	s.wg.Add(1)
	go s.run()
	slog.Info("scheduler started",
		"schedules", len(s.entries),
		"check_interval", s.interval.String())
}

// Stop halts schedule checks and waits for the loop to exit. Calling
// it again is a no-op.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		slog.Info("scheduler stopped")
	})
}

func (s *Scheduler) prime(now time.Time) {
	for _, e := range s.entries {
		e.next = e.cron.Next(now)
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.FireDue(context.Background(), s.clock.Now())
		}
	}
}

// FireDue enqueues a job for every schedule whose slot has come due.
// When several slots of one schedule are overdue, only the earliest
// fires and the rest are skipped by advancing past now.
func (s *Scheduler) FireDue(ctx context.Context, now time.Time) {
	for _, e := range s.entries {
		if e.next.IsZero() || e.next.After(now) {
			continue
		}
		s.fire(ctx, e.schedule, e.next)
		e.next = e.cron.Next(now)
	}
}

func (s *Scheduler) fire(ctx context.Context, sched project.Schedule, slot time.Time) {
	name := fmt.Sprintf("%s-%s", sched.Name, slot.UTC().Format(slotFormat))
	script := core.ComposeScript(map[string]string{
		"Task":      sched.Name,
		"Scheduled": core.FormatTime(slot),
	}, sched.Script)

	_, err := s.store.Put(ctx, name, script)
	var farmErr *core.FarmError
	switch {
	case err == nil:
		slog.Info("schedule fired", "schedule", sched.Name, "job", name)
		metrics.SchedulesFired.WithLabelValues("ok").Inc()
	case errors.As(err, &farmErr) && farmErr.Code == core.ErrCodeConflict:
		// Another incarnation already enqueued this slot.
		slog.Debug("schedule slot already enqueued", "schedule", sched.Name, "job", name)
		metrics.SchedulesFired.WithLabelValues("conflict").Inc()
	default:
		slog.Error("failed to enqueue scheduled job",
			"schedule", sched.Name, "job", name, "error", err)
		metrics.SchedulesFired.WithLabelValues("error").Inc()
	}
}
