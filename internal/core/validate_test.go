package core

import "testing"

func TestValidateJobName_Valid(t *testing.T) {
	names := []string{
		"nightly",
		"pr-1234-5678",
		"adhoc-0192e5c0-a1b2-7c8d-8e9f-001122334455",
		"bench_q1.retry",
		"2026-01-15-builds",
	}
	for _, name := range names {
		if err := ValidateJobName(name); err != nil {
			t.Errorf("ValidateJobName(%q) unexpected error: %v", name, err)
		}
	}
}

func TestValidateJobName_Invalid(t *testing.T) {
	names := []string{
		"",
		"UPPER",
		".hidden",
		"-leading-dash",
		"has spaces",
		"sub/dir",
		"../escape",
	}
	for _, name := range names {
		if err := ValidateJobName(name); err == nil {
			t.Errorf("ValidateJobName(%q) expected error", name)
		}
	}
}

func TestValidateJobName_RejectsStoreSuffixes(t *testing.T) {
	for _, name := range []string{"job.sh", "job.done", "job.started"} {
		err := ValidateJobName(name)
		if err == nil {
			t.Errorf("ValidateJobName(%q) expected error", name)
			continue
		}
		if err.Code != ErrCodeInvalidRequest {
			t.Errorf("ValidateJobName(%q) code = %q, want %q", name, err.Code, ErrCodeInvalidRequest)
		}
	}
}

func TestValidateJobName_TooLong(t *testing.T) {
	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateJobName(string(long)); err == nil {
		t.Error("expected error for 129-character name")
	}
}

func TestValidateEnqueueRequest_Valid(t *testing.T) {
	req := &EnqueueRequest{
		Name:    "pr-1234-5678",
		Command: `BENCHMARKS="tpch10" ./gh_compare_branch.sh https://example.com/pull/1234`,
		Meta:    map[string]string{"User": "alice", "PR": "https://example.com/pull/1234"},
	}
	if err := ValidateEnqueueRequest(req); err != nil {
		t.Errorf("ValidateEnqueueRequest() unexpected error: %v", err)
	}
}

func TestValidateEnqueueRequest_MissingPayload(t *testing.T) {
	req := &EnqueueRequest{Name: "empty"}
	err := ValidateEnqueueRequest(req)
	if err == nil {
		t.Fatal("expected error when both script and command are empty")
	}
	if err.Code != ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", err.Code, ErrCodeInvalidRequest)
	}
}

func TestValidateEnqueueRequest_ScriptAndCommandExclusive(t *testing.T) {
	req := &EnqueueRequest{
		Script:  "echo one\n",
		Command: "echo two",
	}
	if err := ValidateEnqueueRequest(req); err == nil {
		t.Fatal("expected error when both script and command are set")
	}
}

func TestValidateEnqueueRequest_BlankScript(t *testing.T) {
	req := &EnqueueRequest{Script: "   \n\t"}
	if err := ValidateEnqueueRequest(req); err == nil {
		t.Fatal("expected error for whitespace-only script")
	}
}

func TestValidateEnqueueRequest_BadMetaKey(t *testing.T) {
	keys := []string{"1st", "has space", "ends:colon", ""}
	for _, key := range keys {
		req := &EnqueueRequest{
			Command: "true",
			Meta:    map[string]string{key: "v"},
		}
		if err := ValidateEnqueueRequest(req); err == nil {
			t.Errorf("expected error for meta key %q", key)
		}
	}
}

func TestValidateEnqueueRequest_BadName(t *testing.T) {
	req := &EnqueueRequest{Name: "No Spaces Allowed", Command: "true"}
	if err := ValidateEnqueueRequest(req); err == nil {
		t.Fatal("expected error for invalid name")
	}
}
