// Package api implements the HTTP surface of the farm: job enqueue and
// inspection, build listings, benchmark results and health. Handlers are
// thin adapters over the store and the build/bench packages; all queue
// semantics live behind the store interface.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/benchfarm/benchfarm/internal/bench"
	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/project"
	"github.com/benchfarm/benchfarm/internal/runner"
	"github.com/benchfarm/benchfarm/internal/store"
)

// JobListResponse is the envelope for job listings.
type JobListResponse struct {
	Jobs  []*core.Job `json:"jobs"`
	Count int         `json:"count"`
}

// CancelResponse reports the outcome of a job cancellation.
type CancelResponse struct {
	Name      string `json:"name"`
	Cancelled bool   `json:"cancelled"`
	Killed    bool   `json:"killed,omitempty"`
}

// JobHandler serves the job queue endpoints.
type JobHandler struct {
	store store.Store

	// kill delivers SIGTERM to a running job's process group, alive probes
	// a marker's recorded pid. Both are swapped out in tests.
	kill  func(pid int) error
	alive func(pid int) bool
}

// NewJobHandler creates a JobHandler backed by st.
func NewJobHandler(st store.Store) *JobHandler {
	return &JobHandler{
		store: st,
		kill:  func(pid int) error { return runner.SignalGroup(pid, syscall.SIGTERM) },
		alive: runner.Alive,
	}
}

// Create handles POST /farm/v1/jobs. The descriptor is composed from the
// request and enqueued; a duplicate name is a conflict, not a rerun.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req core.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("Invalid JSON body.", nil))
		return
	}
	name, script, ferr := core.NewDescriptor(&req)
	if ferr != nil {
		WriteError(w, http.StatusBadRequest, ferr)
		return
	}

	job, err := h.store.Put(r.Context(), name, script)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("job enqueued", "job", job.Name)
	w.Header().Set("Location", "/farm/v1/jobs/"+job.Name)
	WriteJSON(w, http.StatusCreated, job)
}

// List handles GET /farm/v1/jobs. The state query selects pending (default,
// queue order), done (newest first) or all.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	var jobs []*core.Job
	var err error
	switch state := r.URL.Query().Get("state"); state {
	case "", "pending":
		jobs, err = h.store.ListPending(r.Context())
	case "done":
		jobs, err = h.store.ListDone(r.Context())
	case "all":
		jobs, err = h.store.ListPending(r.Context())
		if err == nil {
			var done []*core.Job
			done, err = h.store.ListDone(r.Context())
			jobs = append(jobs, done...)
		}
	default:
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError(
			"Query parameter 'state' must be 'pending', 'done' or 'all'.",
			map[string]any{"state": state},
		))
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*core.Job{}
	}
	WriteJSON(w, http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}

// Get handles GET /farm/v1/jobs/{name}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Cancel handles DELETE /farm/v1/jobs/{name}. Removing the descriptor is the
// cancellation; the worker notices the file is gone when the job finishes
// and records nothing. With kill=true the job's process group is also
// signalled so it stops now rather than at its own pace.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, err := h.store.Get(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if job.Status == core.StatusDone {
		WriteError(w, http.StatusConflict, core.NewConflictError(
			fmt.Sprintf("Job '%s' is already done.", name), nil))
		return
	}

	mark, err := h.store.Mark(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.Remove(r.Context(), name); err != nil {
		writeStoreError(w, err)
		return
	}

	resp := CancelResponse{Name: name, Cancelled: true}
	if kill, _ := strconv.ParseBool(r.URL.Query().Get("kill")); kill && mark != nil && mark.PID > 0 {
		if err := h.kill(mark.PID); err != nil {
			slog.Warn("failed to signal job process group", "job", name, "pid", mark.PID, "error", err)
		} else {
			resp.Killed = true
		}
	}
	if mark != nil && !h.alive(mark.PID) {
		// A marker whose process is gone has no worker left to clean it up.
		if err := h.store.DropMark(r.Context(), name); err != nil {
			slog.Warn("failed to drop start marker", "job", name, "error", err)
		}
	}
	slog.Info("job cancelled", "job", name, "killed", resp.Killed)
	WriteJSON(w, http.StatusOK, resp)
}

// BuildListResponse is the envelope for build listings.
type BuildListResponse struct {
	Tool   string        `json:"tool"`
	Builds []build.Build `json:"builds"`
	Count  int           `json:"count"`
}

// BuildHandler serves build inventory and sweep-trigger endpoints.
type BuildHandler struct {
	store  store.Store
	builds *build.Manager
	cfg    *project.Config
	clock  core.Clock
}

// NewBuildHandler creates a BuildHandler.
func NewBuildHandler(st store.Store, mgr *build.Manager, cfg *project.Config) *BuildHandler {
	return &BuildHandler{store: st, builds: mgr, cfg: cfg, clock: core.SystemClock()}
}

// List handles GET /farm/v1/builds. The tool query is required; build names are
// tool-scoped.
func (h *BuildHandler) List(w http.ResponseWriter, r *http.Request) {
	tool := r.URL.Query().Get("tool")
	if tool == "" {
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError(
			"Query parameter 'tool' is required.", nil))
		return
	}
	builds, err := h.builds.List(tool)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, BuildListResponse{Tool: tool, Builds: builds, Count: len(builds)})
}

// Ensure handles POST /farm/v1/projects/{project}/builds. The sweep runs as a
// queued job so it obeys the one-job-at-a-time rule like everything else;
// if a sweep for the project is already pending that job is returned
// instead of enqueueing another.
func (h *BuildHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "project")
	p, ok := h.cfg.Project(name)
	if !ok {
		WriteError(w, http.StatusNotFound, core.NewNotFoundError("project", name))
		return
	}

	pending, err := h.store.ListPending(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, j := range pending {
		if j.Meta["Task"] == "build" && j.Meta["Project"] == p.Name {
			WriteJSON(w, http.StatusAccepted, j)
			return
		}
	}

	jobName := fmt.Sprintf("build-%s-%d", p.Name, h.clock.Now().Unix())
	script := core.ComposeScript(
		map[string]string{"Task": "build", "Project": p.Name},
		"benchfarm build "+p.Name+"\n",
	)
	job, err := h.store.Put(r.Context(), jobName, script)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("build sweep enqueued", "project", p.Name, "job", job.Name)
	w.Header().Set("Location", "/farm/v1/jobs/"+job.Name)
	WriteJSON(w, http.StatusAccepted, job)
}

// projectSummary is the listing view of a configured project.
type projectSummary struct {
	Name   string   `json:"name"`
	Repo   string   `json:"repo"`
	Branch string   `json:"branch"`
	Tool   string   `json:"tool"`
	Suites []string `json:"suites"`
}

// Projects handles GET /farm/v1/projects.
func (h *BuildHandler) Projects(w http.ResponseWriter, r *http.Request) {
	out := make([]projectSummary, 0, len(h.cfg.Projects))
	for i := range h.cfg.Projects {
		p := &h.cfg.Projects[i]
		suites := make([]string, 0, len(p.Suites))
		for _, s := range p.Suites {
			suites = append(suites, s.Name)
		}
		out = append(out, projectSummary{
			Name:   p.Name,
			Repo:   p.Repo,
			Branch: p.Branch,
			Tool:   p.Tool,
			Suites: suites,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"projects": out, "count": len(out)})
}

// ResultHandler serves benchmark result endpoints.
type ResultHandler struct {
	results *bench.ResultStore
}

// NewResultHandler creates a ResultHandler reading from rs.
func NewResultHandler(rs *bench.ResultStore) *ResultHandler {
	return &ResultHandler{results: rs}
}

// Suites handles GET /farm/v1/results.
func (h *ResultHandler) Suites(w http.ResponseWriter, r *http.Request) {
	suites, err := h.results.Suites()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"suites": suites, "count": len(suites)})
}

// Summary handles GET /farm/v1/results/{suite}. The default view aggregates
// min and mean per query; raw=true returns every recorded row. A revision
// query narrows either view to one build.
func (h *ResultHandler) Summary(w http.ResponseWriter, r *http.Request) {
	suite := chi.URLParam(r, "suite")
	rows, err := h.results.Load(suite)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if len(rows) == 0 {
		WriteError(w, http.StatusNotFound, core.NewNotFoundError("results", suite))
		return
	}

	revision := r.URL.Query().Get("revision")
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		if revision != "" {
			kept := rows[:0]
			for _, row := range rows {
				if row.Revision == revision {
					kept = append(kept, row)
				}
			}
			rows = kept
		}
		WriteJSON(w, http.StatusOK, map[string]any{"suite": suite, "rows": rows, "count": len(rows)})
		return
	}

	summaries := bench.Summarize(rows, revision)
	WriteJSON(w, http.StatusOK, map[string]any{
		"suite":    suite,
		"revision": revision,
		"queries":  summaries,
	})
}

// SystemHandler serves health and manifest endpoints.
type SystemHandler struct {
	store store.Store
}

// NewSystemHandler creates a SystemHandler probing st.
func NewSystemHandler(st store.Store) *SystemHandler {
	return &SystemHandler{store: st}
}

// Health handles GET /farm/v1/health. The store probe is the only dependency
// worth checking; if the job directory is unreadable the farm is down.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.ListPending(r.Context())
	if err != nil {
		slog.Error("health probe failed", "error", err)
		WriteError(w, http.StatusServiceUnavailable, core.NewInternalError("Job store unavailable."))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": core.Version,
		"pending": len(pending),
	})
}

// Manifest handles GET /farm/v1/manifest: static service identity for clients.
func (h *SystemHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"name":         "benchfarm",
		"version":      core.Version,
		"api_versions": []string{"v1"},
		"capabilities": []string{"jobs", "builds", "results", "schedules"},
	})
}
