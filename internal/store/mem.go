package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benchfarm/benchfarm/internal/core"
)

// MemStore is an in-memory Store used by tests and dry runs. Enqueue order
// is tracked with a sequence number so FIFO behavior is deterministic even
// when entries are created within the same clock tick.
type MemStore struct {
	mu      sync.Mutex
	seq     int64
	entries map[string]*memEntry
}

type memEntry struct {
	script string
	seq    int64
	enq    time.Time
	mark   *core.StartMark
	done   bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]*memEntry)}
}

func (s *MemStore) Put(ctx context.Context, name, script string) (*core.Job, error) {
	if err := core.ValidateJobName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		status := core.StatusPending
		if e.done {
			status = core.StatusDone
		}
		return nil, core.NewConflictError(
			fmt.Sprintf("Job '%s' already exists.", name),
			map[string]any{"name": name, "status": status},
		)
	}
	s.seq++
	e := &memEntry{script: script, seq: s.seq, enq: time.Now()}
	s.entries[name] = e
	return s.jobLocked(name, e, false), nil
}

func (s *MemStore) ListPending(ctx context.Context) ([]*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		name string
		e    *memEntry
	}
	var rows []row
	for name, e := range s.entries {
		if !e.done {
			rows = append(rows, row{name, e})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].e.seq < rows[j].e.seq })

	jobs := make([]*core.Job, len(rows))
	for i, r := range rows {
		jobs[i] = s.jobLocked(r.name, r.e, false)
	}
	return jobs, nil
}

func (s *MemStore) ListDone(ctx context.Context) ([]*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		name string
		e    *memEntry
	}
	var rows []row
	for name, e := range s.entries {
		if e.done {
			rows = append(rows, row{name, e})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].e.seq > rows[j].e.seq })

	jobs := make([]*core.Job, len(rows))
	for i, r := range rows {
		jobs[i] = s.jobLocked(r.name, r.e, false)
	}
	return jobs, nil
}

func (s *MemStore) Get(ctx context.Context, name string) (*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, core.NewNotFoundError("Job", name)
	}
	return s.jobLocked(name, e, true), nil
}

func (s *MemStore) Claim(ctx context.Context, name string, mark core.StartMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || e.done {
		return core.NewNotFoundError("Job", name)
	}
	m := mark
	e.mark = &m
	return nil
}

func (s *MemStore) Complete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		// Entry removed while running: cancellation.
		return true, nil
	}
	e.done = true
	e.mark = nil
	return false, nil
}

func (s *MemStore) Mark(ctx context.Context, name string) (*core.StartMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || e.mark == nil {
		return nil, nil
	}
	m := *e.mark
	return &m, nil
}

func (s *MemStore) DropMark(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.mark = nil
	}
	return nil
}

func (s *MemStore) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || e.done {
		return core.NewNotFoundError("Job", name)
	}
	delete(s.entries, name)
	return nil
}

func (s *MemStore) jobLocked(name string, e *memEntry, withScript bool) *core.Job {
	status := core.StatusPending
	if e.done {
		status = core.StatusDone
	} else if e.mark != nil {
		status = core.StatusRunning
	}
	job := &core.Job{
		Name:       name,
		Status:     status,
		EnqueuedAt: core.FormatTime(e.enq),
		Meta:       core.ParseScriptMeta(e.script),
		Benchmarks: core.ScriptBenchmarks(e.script),
	}
	if e.mark != nil {
		m := *e.mark
		job.Started = &m
	}
	if withScript {
		job.Script = e.script
	}
	return job
}
