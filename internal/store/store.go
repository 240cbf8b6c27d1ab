// Package store implements the durable job queue: a directory of
// executable descriptors where lifecycle transitions are filesystem
// renames. A job named "nightly" is "nightly.sh" while pending,
// gains a "nightly.sh.started" marker while running, and becomes
// "nightly.sh.done" once executed. Cancellation is the removal of the
// descriptor by an external actor; the store never deletes done entries.
package store

import (
	"context"

	"github.com/benchfarm/benchfarm/internal/core"
)

// Store is the queue abstraction the poller, API and CLI share. The
// directory implementation is the system of record; MemStore substitutes
// for it in tests.
//
// The contract assumes a single claiming worker per store. Producers and
// cancellers may act concurrently with it; the claim/complete transitions
// themselves are never raced.
type Store interface {
	// Put enqueues a new descriptor. It fails with a conflict error when a
	// pending or done entry with the same name exists, so re-submitted
	// work is dropped rather than rerun.
	Put(ctx context.Context, name, script string) (*core.Job, error)

	// ListPending returns every descriptor still in the store, oldest
	// first (enqueue order). Jobs with a start marker report StatusRunning.
	// An empty store yields an empty slice, not an error.
	ListPending(ctx context.Context) ([]*core.Job, error)

	// ListDone returns completed jobs, newest first.
	ListDone(ctx context.Context) ([]*core.Job, error)

	// Get returns one job in any state, with its script populated.
	Get(ctx context.Context, name string) (*core.Job, error)

	// Claim records the start marker for a job about to run.
	Claim(ctx context.Context, name string, mark core.StartMark) error

	// Complete performs the done-transition: the descriptor is renamed to
	// the done convention and the start marker is removed regardless of
	// outcome. If the descriptor vanished while running, Complete reports
	// cancelled=true and writes no done entry.
	Complete(ctx context.Context, name string) (cancelled bool, err error)

	// Mark returns the start marker for name, or (nil, nil) if there is
	// none.
	Mark(ctx context.Context, name string) (*core.StartMark, error)

	// DropMark removes a start marker, e.g. one orphaned by a crash.
	// Removing a missing marker is not an error.
	DropMark(ctx context.Context, name string) error

	// Remove deletes a pending descriptor (operator cancellation).
	Remove(ctx context.Context, name string) error
}
