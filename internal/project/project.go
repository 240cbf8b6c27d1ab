// Package project loads the farm configuration file.
//
// farm.yaml declares the projects whose tools the farm builds and
// benchmarks, plus the cron schedules that enqueue recurring jobs. The
// file is read once at startup; schedules are validated with the same
// cron dialect the scheduler runs them with.
package project

import (
	"bytes"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/benchfarm/benchfarm/internal/core"
)

// CronParser accepts standard five-field cron expressions plus
// descriptors such as @daily.
var CronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const (
	defaultBranch    = "main"
	defaultCheckouts = 2
	defaultRuns      = 3
)

// Config is the parsed farm.yaml.
type Config struct {
	// WorkDir is the root under which checkouts, builds and query files
	// live. Empty means the server's work dir.
	WorkDir   string     `yaml:"workdir"`
	Projects  []Project  `yaml:"projects"`
	Schedules []Schedule `yaml:"schedules"`
}

// Project is one upstream repository whose tool the farm tracks.
type Project struct {
	Name string `yaml:"name"`
	Repo string `yaml:"repo"`
	// Branch is the upstream branch to follow. Defaults to main.
	Branch string `yaml:"branch"`
	// Tool is the binary name produced by a build.
	Tool  string `yaml:"tool"`
	Build Build  `yaml:"build"`
	// Checkouts is the size of the clone pool used for parallel builds.
	Checkouts int `yaml:"checkouts"`
	// Since bounds revision discovery, formatted YYYY-MM-DD.
	Since  string  `yaml:"since"`
	Suites []Suite `yaml:"suites"`
}

// Build describes how to produce the tool binary from a checkout.
type Build struct {
	// Dir is run relative to the checkout root. Empty means the root.
	Dir     string   `yaml:"dir"`
	Command []string `yaml:"command"`
	// Artifact is the built binary, relative to the checkout root.
	Artifact string `yaml:"artifact"`
}

// Suite is a named query workload run against a built tool.
type Suite struct {
	Name string `yaml:"name"`
	// Queries is a directory holding one .sql file per query, relative
	// to the work dir.
	Queries string `yaml:"queries"`
	// Prelude is SQL prepended to every query script, typically the
	// statement that registers the dataset. Its timing is recorded
	// separately from the query timings.
	Prelude string `yaml:"prelude"`
	// Runs is how many times each query executes per benchmark.
	Runs int `yaml:"runs"`
	// Args are extra flags passed to the tool.
	Args []string `yaml:"args"`
}

// Schedule enqueues Script as a job whenever Cron fires.
type Schedule struct {
	Name   string `yaml:"name"`
	Cron   string `yaml:"cron"`
	Script string `yaml:"script"`
}

// Load reads, defaults and validates a farm.yaml. Unknown keys are
// rejected so typos fail at startup instead of silently disabling
// whatever they misspell.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw farm.yaml content.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.Branch == "" {
			p.Branch = defaultBranch
		}
		if p.Checkouts <= 0 {
			p.Checkouts = defaultCheckouts
		}
		for j := range p.Suites {
			if p.Suites[j].Runs <= 0 {
				p.Suites[j].Runs = defaultRuns
			}
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for i := range c.Projects {
		p := &c.Projects[i]
		if err := p.validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate project %q", p.Name)
		}
		seen[p.Name] = true
	}

	slots := make(map[string]bool)
	for _, s := range c.Schedules {
		if err := core.ValidateJobName(s.Name); err != nil {
			return fmt.Errorf("schedule name %q: %w", s.Name, err)
		}
		if slots[s.Name] {
			return fmt.Errorf("duplicate schedule %q", s.Name)
		}
		slots[s.Name] = true
		if _, err := CronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("schedule %q: bad cron expression %q: %w", s.Name, s.Cron, err)
		}
		if s.Script == "" {
			return fmt.Errorf("schedule %q: script is required", s.Name)
		}
	}
	return nil
}

func (p *Project) validate() error {
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}
	// Project names end up in sweep job names and checkout paths.
	if err := core.ValidateJobName(p.Name); err != nil {
		return fmt.Errorf("project name %q: %w", p.Name, err)
	}
	if p.Repo == "" {
		return fmt.Errorf("project %q: repo is required", p.Name)
	}
	if p.Tool == "" {
		return fmt.Errorf("project %q: tool is required", p.Name)
	}
	if len(p.Build.Command) == 0 {
		return fmt.Errorf("project %q: build command is required", p.Name)
	}
	if p.Build.Artifact == "" {
		return fmt.Errorf("project %q: build artifact is required", p.Name)
	}
	names := make(map[string]bool)
	for _, s := range p.Suites {
		if s.Name == "" {
			return fmt.Errorf("project %q: suite name is required", p.Name)
		}
		// Suite names become result file names.
		if err := core.ValidateJobName(s.Name); err != nil {
			return fmt.Errorf("project %q: suite name %q: %w", p.Name, s.Name, err)
		}
		if names[s.Name] {
			return fmt.Errorf("project %q: duplicate suite %q", p.Name, s.Name)
		}
		names[s.Name] = true
		if s.Queries == "" {
			return fmt.Errorf("project %q: suite %q: queries dir is required", p.Name, s.Name)
		}
	}
	return nil
}

// Project returns the named project, or false when it is not configured.
func (c *Config) Project(name string) (*Project, bool) {
	for i := range c.Projects {
		if c.Projects[i].Name == name {
			return &c.Projects[i], true
		}
	}
	return nil, false
}

// Suite returns the named suite, or false when the project lacks it.
func (p *Project) Suite(name string) (*Suite, bool) {
	for i := range p.Suites {
		if p.Suites[i].Name == name {
			return &p.Suites[i], true
		}
	}
	return nil, false
}
