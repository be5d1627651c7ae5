package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }

func TestDerivePhase(t *testing.T) {
	tests := []struct {
		running bool
		status  string
		want    models.JobPhase
	}{
		{true, "", models.JobPhaseRunning},
		{true, "completed", models.JobPhaseRunning},
		{false, "completed", models.JobPhaseCompleted},
		{false, " Completed ", models.JobPhaseCompleted},
		{false, "failed", models.JobPhaseFailed},
		{false, "error", models.JobPhaseFailed},
		{false, "stopped", models.JobPhaseIdle},
		{false, "", models.JobPhaseIdle},
	}

	for _, tt := range tests {
		if got := DerivePhase(tt.running, tt.status); got != tt.want {
			t.Errorf("DerivePhase(%v, %q) = %s, want %s", tt.running, tt.status, got, tt.want)
		}
	}
}

func TestMergeDefaults(t *testing.T) {
	now := time.Now()

	got := Merge(models.StatusSnapshot{}, models.StatusSourcePoll, now)
	if got.Phase != models.JobPhaseIdle || got.ProgressPercent != 0 || got.RecordsProcessed != 0 || got.StartedAt != "" {
		t.Fatalf("empty snapshot merged to %+v", got)
	}
	if !got.UpdatedAt.Equal(now) || got.Source != models.StatusSourcePoll {
		t.Fatalf("metadata not set: %+v", got)
	}
}

func TestMergeRecordsFallback(t *testing.T) {
	tests := []struct {
		name     string
		total    *int64
		imported *int64
		want     int64
	}{
		{"total preferred", int64p(10), int64p(5), 10},
		{"imported fallback", nil, int64p(5), 5},
		{"absent", nil, nil, 0},
		{"negative clamped", int64p(-3), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(models.StatusSnapshot{Stats: &models.RunStats{
				TotalProcessed:  tt.total,
				ImportedRecords: tt.imported,
			}}, models.StatusSourcePush, time.Now())
			if got.RecordsProcessed != tt.want {
				t.Errorf("RecordsProcessed = %d, want %d", got.RecordsProcessed, tt.want)
			}
		})
	}
}

func TestMergeClampsProgress(t *testing.T) {
	got := Merge(models.StatusSnapshot{Stats: &models.RunStats{Progress: float64p(math.NaN())}}, models.StatusSourcePush, time.Now())
	if got.ProgressPercent != 0 {
		t.Errorf("NaN progress merged to %v, want 0", got.ProgressPercent)
	}

	got = Merge(models.StatusSnapshot{Stats: &models.RunStats{Progress: float64p(250)}}, models.StatusSourcePush, time.Now())
	if got.ProgressPercent != 100 {
		t.Errorf("merged progress = %v, want 100", got.ProgressPercent)
	}
}

func TestControls(t *testing.T) {
	tests := []struct {
		phase     models.JobPhase
		wantStart bool
		wantStop  bool
	}{
		{models.JobPhaseIdle, true, false},
		{models.JobPhaseRunning, false, true},
		{models.JobPhaseCompleted, true, false},
		{models.JobPhaseFailed, true, false},
	}
	for _, tt := range tests {
		start, stop := Controls(tt.phase)
		if start != tt.wantStart || stop != tt.wantStop {
			t.Errorf("Controls(%s) = (%v, %v), want (%v, %v)", tt.phase, start, stop, tt.wantStart, tt.wantStop)
		}
	}
}
