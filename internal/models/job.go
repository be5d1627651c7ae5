// Package models provides data models for the ETL status monitor.
package models

import "time"

// JobPhase represents the coarse state of the ETL job as shown in the console.
// It is derived from the running flag and the textual status reported by the engine.
type JobPhase string

const (
	// JobPhaseIdle indicates the job is not running and has no terminal outcome.
	JobPhaseIdle JobPhase = "idle"
	// JobPhaseRunning indicates the job is currently importing.
	JobPhaseRunning JobPhase = "running"
	// JobPhaseCompleted indicates the last run finished successfully.
	JobPhaseCompleted JobPhase = "completed"
	// JobPhaseFailed indicates the last run ended with an error.
	JobPhaseFailed JobPhase = "failed"
)

// JobAction represents a command the console can send to the ETL engine.
type JobAction string

const (
	JobActionStart JobAction = "start"
	JobActionStop  JobAction = "stop"
)

// AvailableActions returns the commands enabled in this phase.
// Start is offered whenever the job is not running; stop only while it runs.
func (p JobPhase) AvailableActions() []JobAction {
	switch p {
	case JobPhaseRunning:
		return []JobAction{JobActionStop}
	case JobPhaseIdle, JobPhaseCompleted, JobPhaseFailed:
		return []JobAction{JobActionStart}
	default:
		return []JobAction{JobActionStart}
	}
}

// Allows reports whether the action is enabled in this phase.
func (p JobPhase) Allows(action JobAction) bool {
	for _, a := range p.AvailableActions() {
		if a == action {
			return true
		}
	}
	return false
}

// String returns the string representation of the phase.
func (p JobPhase) String() string {
	return string(p)
}

// IsValid returns true if the phase is a known phase.
func (p JobPhase) IsValid() bool {
	switch p {
	case JobPhaseIdle, JobPhaseRunning, JobPhaseCompleted, JobPhaseFailed:
		return true
	default:
		return false
	}
}

// StatusSource records which channel delivered the snapshot behind a JobStatus.
type StatusSource string

const (
	StatusSourcePush StatusSource = "push"
	StatusSourcePoll StatusSource = "poll"
)

// RunStats is the statistics block nested in a status snapshot.
// Every field is optional on the wire.
type RunStats struct {
	Status          string   `json:"status,omitempty"`
	Progress        *float64 `json:"progress,omitempty"`
	TotalProcessed  *int64   `json:"total_processed,omitempty"`
	ImportedRecords *int64   `json:"imported_records,omitempty"`
	StartTime       string   `json:"start_time,omitempty"`
	CurrentStep     string   `json:"current_step,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// StatusSnapshot is the status payload delivered by the status endpoint and by
// "status"/"stats_update" stream events.
type StatusSnapshot struct {
	IsRunning bool      `json:"is_running"`
	Stats     *RunStats `json:"stats,omitempty"`
}

// JobStatus is the last known, merged state of the ETL job.
type JobStatus struct {
	IsRunning        bool         `json:"is_running"`
	Phase            JobPhase     `json:"phase"`
	StatusText       string       `json:"status_text,omitempty"`
	ProgressPercent  float64      `json:"progress_percent"`
	RecordsProcessed int64        `json:"records_processed"`
	StartedAt        string       `json:"started_at,omitempty"`
	CurrentStep      string       `json:"current_step,omitempty"`
	LastError        string       `json:"last_error,omitempty"`
	Source           StatusSource `json:"source"`
	Revision         uint64       `json:"revision"`
	UpdatedAt        time.Time    `json:"updated_at"`
}
