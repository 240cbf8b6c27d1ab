package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benchfarm/benchfarm/internal/bench"
	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/poller"
	"github.com/benchfarm/benchfarm/internal/project"
	"github.com/benchfarm/benchfarm/internal/runner"
	"github.com/benchfarm/benchfarm/internal/store"
)

func TestRouterEndToEnd_JobLifecycle(t *testing.T) {
	tsURL := newIntegrationServer(t, true)
	name := "it-echo-" + core.NewUUIDv7()

	createResp := postJSON(t, tsURL+"/farm/v1/jobs", map[string]any{
		"name":    name,
		"command": "echo integration",
		"meta":    map[string]string{"User": "it"},
	})
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", createResp.StatusCode, http.StatusCreated)
	}
	created := decodeJSONBody(t, createResp.Body)
	if created["name"] != name {
		t.Fatalf("create response name = %v, want %q", created["name"], name)
	}

	job := getJobEventually(t, tsURL, name, string(core.StatusDone))
	if job == nil {
		t.Fatalf("job %s never reached done", name)
	}
	if meta, ok := job["meta"].(map[string]any); !ok || meta["User"] != "it" {
		t.Errorf("done job meta = %v, want User=it", job["meta"])
	}

	doneResp, err := http.Get(tsURL + "/farm/v1/jobs?state=done")
	if err != nil {
		t.Fatalf("GET done jobs: %v", err)
	}
	doneBody := decodeJSONBody(t, doneResp.Body)
	if !listingContains(doneBody, name) {
		t.Errorf("done listing missing %s: %v", name, doneBody)
	}
}

func TestRouterEndToEnd_SerialExecution(t *testing.T) {
	tsURL := newIntegrationServer(t, true)
	first := "it-order-a-" + core.NewUUIDv7()
	second := "it-order-b-" + core.NewUUIDv7()

	// The first job sleeps long enough that both are listed in one pass;
	// the pass must still run them one after the other, oldest first.
	resp := postJSON(t, tsURL+"/farm/v1/jobs", map[string]any{
		"name":    first,
		"command": "sleep 0.3",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = postJSON(t, tsURL+"/farm/v1/jobs", map[string]any{
		"name":    second,
		"command": "true",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	if job := getJobEventually(t, tsURL, second, string(core.StatusDone)); job == nil {
		t.Fatalf("job %s never reached done", second)
	}
	// By the time the later job is done the earlier one must be too.
	firstJob := getJob(t, tsURL, first)
	if firstJob["status"] != string(core.StatusDone) {
		t.Errorf("first job status = %v, want done before second finishes", firstJob["status"])
	}
}

func TestRouterEndToEnd_CancelPending(t *testing.T) {
	tsURL := newIntegrationServer(t, false)
	name := "it-cancel-" + core.NewUUIDv7()

	createResp := postJSON(t, tsURL+"/farm/v1/jobs", map[string]any{
		"name":    name,
		"command": "echo never runs",
	})
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", createResp.StatusCode, http.StatusCreated)
	}
	createResp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, tsURL+"/farm/v1/jobs/"+name, nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE job: %v", err)
	}
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", delResp.StatusCode, http.StatusOK)
	}
	delBody := decodeJSONBody(t, delResp.Body)
	if delBody["cancelled"] != true {
		t.Errorf("delete response = %v, want cancelled=true", delBody)
	}

	getResp, err := http.Get(tsURL + "/farm/v1/jobs/" + name)
	if err != nil {
		t.Fatalf("GET job: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("get after cancel status = %d, want %d", getResp.StatusCode, http.StatusNotFound)
	}
}

func TestRouterEndToEnd_BuildSweepEnqueues(t *testing.T) {
	tsURL := newIntegrationServer(t, false)

	resp := postJSON(t, tsURL+"/farm/v1/projects/datafusion/builds", map[string]any{})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ensure status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	job := decodeJSONBody(t, resp.Body)
	jobName, _ := job["name"].(string)
	if !strings.HasPrefix(jobName, "build-datafusion-") {
		t.Fatalf("sweep job name = %q, want build-datafusion- prefix", jobName)
	}

	pendingResp, err := http.Get(tsURL + "/farm/v1/jobs")
	if err != nil {
		t.Fatalf("GET pending jobs: %v", err)
	}
	pendingBody := decodeJSONBody(t, pendingResp.Body)
	if !listingContains(pendingBody, jobName) {
		t.Errorf("pending listing missing sweep job: %v", pendingBody)
	}
}

func TestRouterEndToEnd_HealthManifestMetrics(t *testing.T) {
	tsURL := newIntegrationServer(t, false)

	healthResp, err := http.Get(tsURL + "/farm/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", healthResp.StatusCode, http.StatusOK)
	}
	if got := healthResp.Header.Get(core.VersionHeader); got != core.Version {
		t.Errorf("%s = %q, want %q", core.VersionHeader, got, core.Version)
	}
	health := decodeJSONBody(t, healthResp.Body)
	if health["status"] != "ok" {
		t.Errorf("health status = %v, want ok", health["status"])
	}

	manifestResp, err := http.Get(tsURL + "/farm/v1/manifest")
	if err != nil {
		t.Fatalf("GET manifest: %v", err)
	}
	manifest := decodeJSONBody(t, manifestResp.Body)
	if manifest["name"] != "benchfarm" {
		t.Errorf("manifest name = %v, want benchfarm", manifest["name"])
	}

	metricsResp, err := http.Get(tsURL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", metricsResp.StatusCode, http.StatusOK)
	}
	raw, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(raw), "benchfarm_pending_jobs") {
		t.Error("metrics output missing benchfarm_pending_jobs")
	}
}

func TestRouterEndToEnd_RejectsWrongContentType(t *testing.T) {
	tsURL := newIntegrationServer(t, false)

	req, err := http.NewRequest(http.MethodPost, tsURL+"/farm/v1/jobs", strings.NewReader("name=x"))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// newIntegrationServer starts an httptest server over a real directory
// store, optionally with a live poller executing descriptors through sh.
func newIntegrationServer(t *testing.T, withPoller bool) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	st, err := store.NewDirStore(filepath.Join(dir, "jobs"))
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	cfg := &project.Config{
		Projects: []project.Project{{
			Name:   "datafusion",
			Repo:   "https://github.com/apache/datafusion.git",
			Branch: "main",
			Tool:   "dfcli",
			Suites: []project.Suite{{Name: "clickbench", Queries: "queries/clickbench"}},
		}},
	}
	ts := httptest.NewServer(NewRouter(Deps{
		Store:   st,
		Builds:  build.NewManager(dir, nil),
		Results: bench.NewResultStore(filepath.Join(dir, "results")),
		Config:  cfg,
	}))
	t.Cleanup(ts.Close)

	if withPoller {
		ctx, cancel := context.WithCancel(context.Background())
		p := poller.New(poller.Options{
			Store:      st,
			Launcher:   &runner.OSLauncher{Shell: "sh"},
			Interval:   50 * time.Millisecond,
			WorkDir:    dir,
			ScriptPath: st.ScriptPath,
			Stdout:     io.Discard,
			Stderr:     io.Discard,
		})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = p.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	return ts.URL
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json marshal error: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request build error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP POST error: %v", err)
	}
	return resp
}

func decodeJSONBody(t *testing.T, body io.ReadCloser) map[string]any {
	t.Helper()
	defer body.Close()

	var out map[string]any
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode body error: %v", err)
	}
	return out
}

func getJob(t *testing.T, baseURL, name string) map[string]any {
	t.Helper()
	resp, err := http.Get(baseURL + "/farm/v1/jobs/" + name)
	if err != nil {
		t.Fatalf("GET job error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		t.Fatalf("get status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	return decodeJSONBody(t, resp.Body)
}

// getJobEventually polls until the job reports the wanted status, or
// gives up after a few seconds.
func getJobEventually(t *testing.T, baseURL, name, status string) map[string]any {
	t.Helper()
	for i := 0; i < 80; i++ {
		resp, err := http.Get(baseURL + "/farm/v1/jobs/" + name)
		if err != nil {
			t.Fatalf("GET job error: %v", err)
		}
		if resp.StatusCode == http.StatusOK {
			job := decodeJSONBody(t, resp.Body)
			if job["status"] == status {
				return job
			}
		} else {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func listingContains(body map[string]any, name string) bool {
	raw, ok := body["jobs"].([]any)
	if !ok {
		return false
	}
	for _, item := range raw {
		if job, ok := item.(map[string]any); ok && job["name"] == name {
			return true
		}
	}
	return false
}
