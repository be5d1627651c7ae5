package reconcile

import (
	"strings"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/display"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// Status markers reported by the ETL engine in stats.status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// Merge turns a wire snapshot into a JobStatus, applying the per-field defaults:
// missing stats mean an idle job with zero progress and zero records, progress
// is clamped to [0,100], records prefer total_processed over imported_records.
func Merge(snap models.StatusSnapshot, source models.StatusSource, now time.Time) models.JobStatus {
	status := models.JobStatus{
		IsRunning: snap.IsRunning,
		Source:    source,
		UpdatedAt: now,
	}

	if stats := snap.Stats; stats != nil {
		status.StatusText = stats.Status
		status.ProgressPercent = display.Progress(deref(stats.Progress))
		status.RecordsProcessed = display.ProcessedRecords(stats.TotalProcessed, stats.ImportedRecords)
		status.StartedAt = strings.TrimSpace(stats.StartTime)
		status.CurrentStep = stats.CurrentStep
		status.LastError = stats.Error
	}

	status.Phase = DerivePhase(status.IsRunning, status.StatusText)
	return status
}

// DerivePhase maps the running flag and textual status to a JobPhase.
func DerivePhase(isRunning bool, statusText string) models.JobPhase {
	if isRunning {
		return models.JobPhaseRunning
	}
	switch strings.ToLower(strings.TrimSpace(statusText)) {
	case StatusCompleted:
		return models.JobPhaseCompleted
	case StatusFailed, StatusError:
		return models.JobPhaseFailed
	default:
		return models.JobPhaseIdle
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Controls reports which job commands are enabled in phase: start whenever the
// job is not running, stop only while it runs.
func Controls(phase models.JobPhase) (start, stop bool) {
	return phase.Allows(models.JobActionStart), phase.Allows(models.JobActionStop)
}
