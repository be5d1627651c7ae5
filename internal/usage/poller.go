// Package usage polls the subscription usage endpoint on a fixed interval.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// DefaultInterval is the polling period when none is given.
const DefaultInterval = 10 * time.Second

// ErrStopped is returned by Wait when the poller was never started.
var ErrStopped = errors.New("usage poller is not running")

// Fetcher loads the current usage snapshot.
type Fetcher interface {
	FetchUsage(ctx context.Context) (*models.UsageSnapshot, error)
}

// Options configures a Poller.
type Options struct {
	// SessionCheck returns an error once the operator session is over. The
	// poller stops itself the first time it fails. Optional.
	SessionCheck func(now time.Time) error
	// OnUpdate is called after every successful fetch. Optional.
	OnUpdate func(*models.UsageSnapshot)
	Logger   *slog.Logger
}

// Poller fetches usage immediately on Start and then once per interval until
// stopped. A failed fetch keeps the previous snapshot.
type Poller struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	snapshot *models.UsageSnapshot
	lastErr  error
	fetches  int
}

// NewPoller creates a stopped Poller.
func NewPoller(fetcher Fetcher, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "usage"),
	}
}

// Start begins polling in the background. It is a no-op while already polling.
// A non-positive interval selects DefaultInterval.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	p.logger.Info("starting usage poller", "interval", interval)
	go p.loop(ctx, interval, done)
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer p.markStopped()

	if !p.tick(ctx) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("usage poller stopped")
			return
		case <-ticker.C:
			if !p.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one fetch. It returns false when polling should end.
func (p *Poller) tick(ctx context.Context) bool {
	if p.opts.SessionCheck != nil {
		if err := p.opts.SessionCheck(time.Now()); err != nil {
			p.logger.Info("stopping usage poller", "reason", err)
			return false
		}
	}

	snap, err := p.fetcher.FetchUsage(ctx)
	if ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	p.fetches++
	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		p.logger.Warn("usage fetch failed, keeping previous snapshot", "error", err)
		return true
	}
	p.snapshot = snap
	p.lastErr = nil
	p.mu.Unlock()

	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(snap)
	}
	return true
}

func (p *Poller) markStopped() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.running = false
	p.cancel = nil
	p.mu.Unlock()
}

// Stop cancels polling and waits for an in-flight fetch to return. Stopping a
// stopped poller is a no-op. Must not be called from OnUpdate.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current polling run ends or ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Snapshot returns the last successfully fetched usage, nil before the first.
func (p *Poller) Snapshot() *models.UsageSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// LastError returns the error of the most recent fetch, nil after a success.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Fetches returns how many fetches have completed.
func (p *Poller) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}
