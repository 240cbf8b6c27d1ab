package server

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port         string
	WorkDir      string
	JobsDir      string
	ResultsDir   string
	ConfigPath   string
	PollInterval time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from environment variables with defaults.
// The jobs, results and farm.yaml locations default to paths under the
// work directory so a single FARM_WORK_DIR is enough for most hosts.
func LoadConfig() Config {
	workDir := getEnv("FARM_WORK_DIR", "/var/lib/benchfarm")
	return Config{
		Port:         getEnv("FARM_PORT", "8080"),
		WorkDir:      workDir,
		JobsDir:      getEnv("FARM_JOBS_DIR", filepath.Join(workDir, "jobs")),
		ResultsDir:   getEnv("FARM_RESULTS_DIR", filepath.Join(workDir, "results")),
		ConfigPath:   getEnv("FARM_CONFIG", filepath.Join(workDir, "farm.yaml")),
		PollInterval: time.Duration(getEnvInt("FARM_POLL_INTERVAL_MS", 1000)) * time.Millisecond,

		ReadTimeout:     time.Duration(getEnvInt("FARM_READ_TIMEOUT_S", 10)) * time.Second,
		WriteTimeout:    time.Duration(getEnvInt("FARM_WRITE_TIMEOUT_S", 30)) * time.Second,
		IdleTimeout:     time.Duration(getEnvInt("FARM_IDLE_TIMEOUT_S", 120)) * time.Second,
		ShutdownTimeout: time.Duration(getEnvInt("FARM_SHUTDOWN_TIMEOUT_S", 10)) * time.Second,
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
