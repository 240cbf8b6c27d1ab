package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	metaLineRE  = regexp.MustCompile(`^# ([A-Za-z][A-Za-z0-9-]*): (.*)$`)
	benchSetRE  = regexp.MustCompile(`BENCHMARKS="([^"]+)"`)
	benchNameRE = regexp.MustCompile(`BENCH_NAME="([^"]+)"`)
)

// ComposeScript renders a job descriptor: a provenance comment, one
// "# Key: value" header per metadata entry (sorted for stable output), a
// blank line, then the body. Descriptors carry no shebang; the runner
// hands them to the shell.
func ComposeScript(meta map[string]string, body string) string {
	var b strings.Builder
	b.WriteString("# Created by benchfarm\n")

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "# %s: %s\n", k, meta[k])
	}

	b.WriteString("\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// NewDescriptor validates an enqueue request and renders it into a named
// descriptor. A request without a name gets a generated one; a command is
// wrapped in a composed script, a script is used as the body directly.
func NewDescriptor(req *EnqueueRequest) (name, script string, ferr *FarmError) {
	if ferr := ValidateEnqueueRequest(req); ferr != nil {
		return "", "", ferr
	}
	name = req.Name
	if name == "" {
		name = "job-" + NewUUIDv7()
	}
	body := req.Script
	if strings.TrimSpace(body) == "" {
		body = req.Command + "\n"
	}
	return name, ComposeScript(req.Meta, body), nil
}

// ParseScriptMeta extracts "# Key: value" headers from the leading comment
// block of a descriptor. Parsing stops at the first line that is neither
// blank nor a comment; comments that are not headers are skipped.
func ParseScriptMeta(script string) map[string]string {
	meta := make(map[string]string)
	for i, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(trimmed, "#!") {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		if m := metaLineRE.FindStringSubmatch(trimmed); m != nil {
			meta[m[1]] = m[2]
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// ScriptBenchmarks extracts benchmark names requested by a descriptor from
// BENCHMARKS="..." and BENCH_NAME="..." assignments anywhere in its body.
// Names are returned in first-seen order without duplicates.
func ScriptBenchmarks(script string) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(raw string) {
		for _, name := range strings.Fields(raw) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	for _, line := range strings.Split(script, "\n") {
		if m := benchSetRE.FindStringSubmatch(line); m != nil {
			add(m[1])
		}
		if m := benchNameRE.FindStringSubmatch(line); m != nil {
			add(m[1])
		}
	}
	return names
}
