package core

import "time"

// Job store naming conventions. A job named "nightly" lives in the store as
// "nightly.sh" while pending and running, "nightly.sh.done" after the
// done-transition, with a "nightly.sh.started" marker while running.
const (
	ScriptSuffix = ".sh"
	DoneSuffix   = ".sh.done"
	StartSuffix  = ".sh.started"
)

// Status is the lifecycle state of a job. There is no failed state: a job
// whose payload exits non-zero is still done, and a cancelled job is
// removed from the store entirely.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Job describes one entry in the job store. Script is only populated on
// detail views; listings stay light.
type Job struct {
	Name       string            `json:"name"`
	Status     Status            `json:"status"`
	EnqueuedAt string            `json:"enqueued_at,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	Benchmarks []string          `json:"benchmarks,omitempty"`
	Started    *StartMark        `json:"started,omitempty"`
	Script     string            `json:"script,omitempty"`
}

// StartMark is the JSON document written to a job's .started marker: the
// pid of the spawned process group and the UTC start time.
type StartMark struct {
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
}

// Age returns how long the marked job has been running as of now, or zero
// if the timestamp does not parse.
func (m *StartMark) Age(now time.Time) time.Duration {
	started, err := ParseTime(m.StartedAt)
	if err != nil {
		return 0
	}
	return now.Sub(started)
}
