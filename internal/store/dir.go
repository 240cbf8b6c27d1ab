package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/benchfarm/benchfarm/internal/core"
)

// DirStore is the filesystem implementation of Store. All state lives in
// one directory; transitions are same-directory renames, which are atomic
// on POSIX filesystems. Enqueue order is carried by file modification
// times, with the name as tiebreak for equal timestamps.
type DirStore struct {
	dir string
}

// NewDirStore opens (creating if needed) the job store at dir.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job store %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the store's directory path.
func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) scriptPath(name string) string {
	return filepath.Join(s.dir, name+core.ScriptSuffix)
}

func (s *DirStore) donePath(name string) string {
	return filepath.Join(s.dir, name+core.DoneSuffix)
}

func (s *DirStore) markPath(name string) string {
	return filepath.Join(s.dir, name+core.StartSuffix)
}

// ScriptPath returns the on-disk path of a pending descriptor. The runner
// needs it to hand the file to the shell.
func (s *DirStore) ScriptPath(name string) string { return s.scriptPath(name) }

func (s *DirStore) Put(ctx context.Context, name, script string) (*core.Job, error) {
	if err := core.ValidateJobName(name); err != nil {
		return nil, err
	}
	if exists(s.scriptPath(name)) {
		return nil, core.NewConflictError(
			fmt.Sprintf("Job '%s' is already pending.", name),
			map[string]any{"name": name, "status": core.StatusPending},
		)
	}
	if exists(s.donePath(name)) {
		return nil, core.NewConflictError(
			fmt.Sprintf("Job '%s' already ran.", name),
			map[string]any{"name": name, "status": core.StatusDone},
		)
	}

	// Write to a hidden temp file first so a half-written descriptor can
	// never be claimed, then rename into place.
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create descriptor for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write descriptor for %s: %w", name, err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("chmod descriptor for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close descriptor for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.scriptPath(name)); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("publish descriptor for %s: %w", name, err)
	}

	return &core.Job{
		Name:       name,
		Status:     core.StatusPending,
		EnqueuedAt: core.NowFormatted(),
		Meta:       core.ParseScriptMeta(script),
		Benchmarks: core.ScriptBenchmarks(script),
	}, nil
}

func (s *DirStore) ListPending(ctx context.Context) ([]*core.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list job store: %w", err)
	}

	type pending struct {
		job   *core.Job
		mtime time.Time
	}
	var found []pending
	for _, entry := range entries {
		name, ok := pendingName(entry)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Raced with a rename or removal; the entry is gone.
			continue
		}
		job := s.loadJob(name, s.scriptPath(name), core.StatusPending, info.ModTime(), false)
		if job == nil {
			continue
		}
		if mark, _ := s.Mark(ctx, name); mark != nil {
			job.Status = core.StatusRunning
			job.Started = mark
		}
		found = append(found, pending{job: job, mtime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].mtime.Equal(found[j].mtime) {
			return found[i].mtime.Before(found[j].mtime)
		}
		return found[i].job.Name < found[j].job.Name
	})

	jobs := make([]*core.Job, len(found))
	for i, p := range found {
		jobs[i] = p.job
	}
	return jobs, nil
}

func (s *DirStore) ListDone(ctx context.Context) ([]*core.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list job store: %w", err)
	}

	type done struct {
		job   *core.Job
		mtime time.Time
	}
	var found []done
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), core.DoneSuffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), core.DoneSuffix)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		job := s.loadJob(name, s.donePath(name), core.StatusDone, info.ModTime(), false)
		if job == nil {
			continue
		}
		found = append(found, done{job: job, mtime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].mtime.Equal(found[j].mtime) {
			return found[i].mtime.After(found[j].mtime)
		}
		return found[i].job.Name < found[j].job.Name
	})

	jobs := make([]*core.Job, len(found))
	for i, d := range found {
		jobs[i] = d.job
	}
	return jobs, nil
}

func (s *DirStore) Get(ctx context.Context, name string) (*core.Job, error) {
	if err := core.ValidateJobName(name); err != nil {
		return nil, err
	}
	if info, err := os.Stat(s.scriptPath(name)); err == nil {
		job := s.loadJob(name, s.scriptPath(name), core.StatusPending, info.ModTime(), true)
		if job == nil {
			return nil, core.NewNotFoundError("Job", name)
		}
		if mark, _ := s.Mark(ctx, name); mark != nil {
			job.Status = core.StatusRunning
			job.Started = mark
		}
		return job, nil
	}
	if info, err := os.Stat(s.donePath(name)); err == nil {
		job := s.loadJob(name, s.donePath(name), core.StatusDone, info.ModTime(), true)
		if job == nil {
			return nil, core.NewNotFoundError("Job", name)
		}
		return job, nil
	}
	return nil, core.NewNotFoundError("Job", name)
}

func (s *DirStore) Claim(ctx context.Context, name string, mark core.StartMark) error {
	if !exists(s.scriptPath(name)) {
		return core.NewNotFoundError("Job", name)
	}
	data, err := json.Marshal(&mark)
	if err != nil {
		return fmt.Errorf("encode start marker for %s: %w", name, err)
	}
	if err := os.WriteFile(s.markPath(name), data, 0o644); err != nil {
		return fmt.Errorf("write start marker for %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Complete(ctx context.Context, name string) (bool, error) {
	cancelled := false
	if err := os.Rename(s.scriptPath(name), s.donePath(name)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(s.markPath(name))
			return false, fmt.Errorf("complete %s: %w", name, err)
		}
		// Descriptor removed while running: external cancellation.
		cancelled = true
	}
	if err := os.Remove(s.markPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cancelled, fmt.Errorf("remove start marker for %s: %w", name, err)
	}
	return cancelled, nil
}

func (s *DirStore) Mark(ctx context.Context, name string) (*core.StartMark, error) {
	data, err := os.ReadFile(s.markPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read start marker for %s: %w", name, err)
	}
	var mark core.StartMark
	if err := json.Unmarshal(data, &mark); err != nil {
		return nil, fmt.Errorf("decode start marker for %s: %w", name, err)
	}
	return &mark, nil
}

func (s *DirStore) DropMark(ctx context.Context, name string) error {
	if err := os.Remove(s.markPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("drop start marker for %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Remove(ctx context.Context, name string) error {
	if err := core.ValidateJobName(name); err != nil {
		return err
	}
	if err := os.Remove(s.scriptPath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.NewNotFoundError("Job", name)
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// loadJob reads a descriptor into a Job. Returns nil if the file vanished
// between listing and reading.
func (s *DirStore) loadJob(name, path string, status core.Status, mtime time.Time, withScript bool) *core.Job {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	script := string(data)
	job := &core.Job{
		Name:       name,
		Status:     status,
		EnqueuedAt: core.FormatTime(mtime),
		Meta:       core.ParseScriptMeta(script),
		Benchmarks: core.ScriptBenchmarks(script),
	}
	if withScript {
		job.Script = script
	}
	return job
}

// pendingName extracts the job name from a directory entry if it is a
// pending descriptor. Temp files, markers, done entries and stray files
// are skipped.
func pendingName(entry fs.DirEntry) (string, bool) {
	n := entry.Name()
	if entry.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, core.ScriptSuffix) {
		return "", false
	}
	return strings.TrimSuffix(n, core.ScriptSuffix), true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
