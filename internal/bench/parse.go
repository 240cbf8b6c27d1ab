package bench

import (
	"log/slog"
	"strconv"
	"strings"
)

// ParseTimings extracts the per-statement timings a tool prints to
// stdout as lines of the form "Elapsed 0.023 seconds.". Lines that
// mention Elapsed but do not parse are skipped.
func ParseTimings(out string) []float64 {
	var timings []float64
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Elapsed") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		timing, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			slog.Debug("unparseable timing line", "line", line)
			continue
		}
		timings = append(timings, timing)
	}
	return timings
}
