// Package display computes presentation values from the reconciled job status
// and the usage snapshot. Everything here is pure and safe to call per frame.
package display

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// Placeholder is shown where a value cannot be computed.
const Placeholder = "--"

// zonedLayouts carry their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

// naiveLayouts carry no zone and are read in time.Local.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseStartedAt parses the engine's start timestamp. Timestamps without a zone
// are wall-clock times of the local zone (time.Local).
func ParseStartedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start time %q", raw)
}

// Elapsed renders the run time of a running job in whole minutes.
// Non-running jobs, missing or unparsable start times yield Placeholder.
// It runs on every frame, so a bad start time is only logged at debug.
func Elapsed(status models.JobStatus, now time.Time, logger *slog.Logger) string {
	if !status.IsRunning || status.StartedAt == "" {
		return Placeholder
	}

	started, err := ParseStartedAt(status.StartedAt)
	if err != nil {
		if logger != nil {
			logger.Debug("cannot compute elapsed time", "error", err)
		}
		return Placeholder
	}

	return FormatMinutes(now.Sub(started))
}

// FormatMinutes floors d to whole minutes: "< 1min" below one minute.
func FormatMinutes(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if minutes < 1 {
		return "< 1min"
	}
	return fmt.Sprintf("%dmin", minutes)
}

// Progress clamps a progress value to [0,100]. NaN becomes 0.
func Progress(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// ProcessedRecords prefers the cumulative total, then the imported count, then 0.
// Negative counts are reported as 0.
func ProcessedRecords(total, imported *int64) int64 {
	var n int64
	switch {
	case total != nil:
		n = *total
	case imported != nil:
		n = *imported
	}
	if n < 0 {
		return 0
	}
	return n
}

// UsagePercent is used/limit as a percentage. A zero or negative limit yields 0.
func UsagePercent(used, limit int64) float64 {
	if limit <= 0 || used <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}
