package core

import (
	"regexp"
	"strings"
)

// maxJobNameLen bounds job names so descriptor filenames stay well under
// filesystem limits even with suffixes attached.
const maxJobNameLen = 128

var (
	jobNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	metaKeyRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
)

// ValidateJobName checks that name is usable as a job identity. Names
// become filenames, so they are restricted to lowercase alphanumerics plus
// dot, dash and underscore, and must not carry a store suffix themselves.
func ValidateJobName(name string) *FarmError {
	if name == "" {
		return NewInvalidRequestError("Job name is required.", nil)
	}
	if len(name) > maxJobNameLen {
		return NewInvalidRequestError("Job name exceeds 128 characters.", map[string]any{"name": name})
	}
	if !jobNameRE.MatchString(name) {
		return NewInvalidRequestError(
			"Job name must start with a lowercase letter or digit and contain only lowercase letters, digits, '.', '_' or '-'.",
			map[string]any{"name": name},
		)
	}
	for _, suffix := range []string{ScriptSuffix, ".done", ".started"} {
		if strings.HasSuffix(name, suffix) {
			return NewInvalidRequestError(
				"Job name must not end with a store suffix; the store appends those itself.",
				map[string]any{"name": name, "suffix": suffix},
			)
		}
	}
	return nil
}

// EnqueueRequest is the payload accepted by the enqueue API and CLI.
// Exactly one of Script (a complete descriptor body) or Command (a single
// line to wrap in a generated descriptor) must be set.
type EnqueueRequest struct {
	Name    string            `json:"name,omitempty"`
	Script  string            `json:"script,omitempty"`
	Command string            `json:"command,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// ValidateEnqueueRequest checks an enqueue payload before it reaches the
// store. A missing name is allowed; the caller generates one.
func ValidateEnqueueRequest(req *EnqueueRequest) *FarmError {
	if req.Name != "" {
		if err := ValidateJobName(req.Name); err != nil {
			return err
		}
	}
	script := strings.TrimSpace(req.Script)
	command := strings.TrimSpace(req.Command)
	if script == "" && command == "" {
		return NewInvalidRequestError("Either 'script' or 'command' is required.", nil)
	}
	if script != "" && command != "" {
		return NewInvalidRequestError("'script' and 'command' are mutually exclusive.", nil)
	}
	for key := range req.Meta {
		if !metaKeyRE.MatchString(key) {
			return NewInvalidRequestError(
				"Metadata keys must start with a letter and contain only letters, digits or '-'.",
				map[string]any{"key": key},
			)
		}
	}
	return nil
}
