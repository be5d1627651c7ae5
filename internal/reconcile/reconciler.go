// Package reconcile holds the single authoritative view of the ETL job, fed by
// both stream pushes and REST polls.
package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// Reconciler owns the current JobStatus. Pushes and polls both replace it
// wholesale; the most recently applied snapshot wins regardless of origin.
type Reconciler struct {
	mu       sync.RWMutex
	current  models.JobStatus
	has      bool
	revision uint64

	listeners []func(models.JobStatus)
	now       func() time.Time
	logger    *slog.Logger
}

// New creates an empty Reconciler.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		now:    time.Now,
		logger: logger,
	}
}

// OnChange registers fn to be called after every apply. Listeners run on the
// applying goroutine and must not block.
func (r *Reconciler) OnChange(fn func(models.JobStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// ApplyPush replaces the current status with a snapshot delivered by the stream.
func (r *Reconciler) ApplyPush(snap models.StatusSnapshot) models.JobStatus {
	return r.apply(snap, models.StatusSourcePush)
}

// ApplyPoll replaces the current status with a snapshot fetched over REST.
func (r *Reconciler) ApplyPoll(snap models.StatusSnapshot) models.JobStatus {
	return r.apply(snap, models.StatusSourcePoll)
}

func (r *Reconciler) apply(snap models.StatusSnapshot, source models.StatusSource) models.JobStatus {
	r.mu.Lock()
	status := Merge(snap, source, r.now())
	r.revision++
	status.Revision = r.revision
	previous := r.current.Phase
	r.current = status
	r.has = true
	listeners := make([]func(models.JobStatus), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if previous != status.Phase {
		r.logger.Info("job phase changed",
			"from", previous,
			"to", status.Phase,
			"source", source,
		)
	}

	for _, fn := range listeners {
		fn(status)
	}
	return status
}

// Current returns the last applied status and whether any has been applied.
func (r *Reconciler) Current() (models.JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.has
}

// Phase returns the current phase, idle before the first apply.
func (r *Reconciler) Phase() models.JobPhase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.has {
		return models.JobPhaseIdle
	}
	return r.current.Phase
}
