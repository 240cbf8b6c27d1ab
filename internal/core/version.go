// Package core defines the benchfarm domain model: jobs and their lifecycle,
// the error taxonomy shared by the store, poller and API, and small helpers
// (time formatting, ids, script metadata) used across the repo.
package core

// Version is the benchfarm release version, reported by the CLI, the
// health endpoint and the Benchfarm-Version response header.
const Version = "0.4.2"

// MediaType is the content type of every API response.
const MediaType = "application/json"

// HTTP header names used by the ops API.
const (
	VersionHeader   = "Benchfarm-Version"
	RequestIDHeader = "X-Request-Id"
)
