package display

import (
	"log/slog"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// JobView is the presentation form of the job status.
type JobView struct {
	Phase        models.JobPhase `json:"phase"`
	Running      bool            `json:"running"`
	Elapsed      string          `json:"elapsed"`
	Progress     float64         `json:"progress"`
	ProgressText string          `json:"progress_text"`
	Records      int64           `json:"records"`
	RecordsText  string          `json:"records_text"`
	Step         string          `json:"step,omitempty"`
	Error        string          `json:"error,omitempty"`
	CanStart     bool            `json:"can_start"`
	CanStop      bool            `json:"can_stop"`
	Known        bool            `json:"known"`
}

// UsageView is the presentation form of the subscription usage gauge.
type UsageView struct {
	Plan      string  `json:"plan"`
	Used      string  `json:"used"`
	Limit     string  `json:"limit"`
	Percent   float64 `json:"percent"`
	Available bool    `json:"available"`
}

// BuildJobView derives everything the console shows about the job.
// known is false before the first status arrives.
func (f *Formatter) BuildJobView(status models.JobStatus, known bool, now time.Time, logger *slog.Logger) JobView {
	phase := status.Phase
	if !known || !phase.IsValid() {
		phase = models.JobPhaseIdle
	}

	progress := Progress(status.ProgressPercent)
	return JobView{
		Phase:        phase,
		Running:      status.IsRunning,
		Elapsed:      Elapsed(status, now, logger),
		Progress:     progress,
		ProgressText: f.Percent(progress),
		Records:      status.RecordsProcessed,
		RecordsText:  f.Count(status.RecordsProcessed),
		Step:         status.CurrentStep,
		Error:        status.LastError,
		CanStart:     phase.Allows(models.JobActionStart),
		CanStop:      phase.Allows(models.JobActionStop),
		Known:        known,
	}
}

// BuildUsageView derives the usage gauge. A nil snapshot is reported unavailable.
func (f *Formatter) BuildUsageView(usage *models.UsageSnapshot) UsageView {
	if usage == nil {
		return UsageView{Plan: Placeholder, Used: Placeholder, Limit: Placeholder}
	}
	return UsageView{
		Plan:      usage.PlanName,
		Used:      f.Count(usage.QueriesUsed),
		Limit:     f.Count(usage.TotalLimit),
		Percent:   UsagePercent(usage.QueriesUsed, usage.TotalLimit),
		Available: true,
	}
}

// View is everything the console and the HTTP view show about the job and
// the subscription.
type View struct {
	Job   JobView   `json:"job"`
	Usage UsageView `json:"usage"`
}

// BuildView derives the job and usage views in one call.
func (f *Formatter) BuildView(status models.JobStatus, known bool, usage *models.UsageSnapshot, now time.Time, logger *slog.Logger) View {
	return View{
		Job:   f.BuildJobView(status, known, now, logger),
		Usage: f.BuildUsageView(usage),
	}
}
