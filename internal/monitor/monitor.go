// Package monitor wires the stream connector, status reconciler, log buffer
// and usage poller into one object with a single teardown.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/logs"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
	"github.com/narvanalabs/cnpj-monitor/internal/reconcile"
	"github.com/narvanalabs/cnpj-monitor/internal/stream"
	"github.com/narvanalabs/cnpj-monitor/internal/updater"
	"github.com/narvanalabs/cnpj-monitor/internal/usage"
	"github.com/narvanalabs/cnpj-monitor/pkg/logger"
	"github.com/narvanalabs/cnpj-monitor/web/api"
)

var (
	// ErrClosed is returned by operations on a closed Monitor.
	ErrClosed = errors.New("monitor is closed")
	// ErrActionNotAllowed is returned when a command is disabled in the current phase.
	ErrActionNotAllowed = errors.New("action not allowed in current phase")
)

// Backend is the subset of the REST client the monitor drives.
type Backend interface {
	GetStatus(ctx context.Context) (*models.StatusSnapshot, error)
	StartJob(ctx context.Context) (*api.CommandResponse, error)
	StopJob(ctx context.Context) (*api.CommandResponse, error)
	CheckUpdates(ctx context.Context) (*models.UpdateInfo, error)
	GetImportStats(ctx context.Context) (*models.ImportStats, error)
	FetchUsage(ctx context.Context) (*models.UsageSnapshot, error)
	CurrentUser(ctx context.Context) (*models.User, error)
}

// Options configures a Monitor.
type Options struct {
	StreamURL       string
	Token           string
	ReconnectDelay  time.Duration
	ReconnectJitter float64
	UsageInterval   time.Duration

	// OperatorTTL bounds how long a resolved operator is reused. Zero uses
	// api.DefaultUserCacheTTL.
	OperatorTTL time.Duration

	// Session gates the usage poller. Nil polls until Close.
	Session *api.Session
	// Dialer overrides the websocket dialer. Used by tests.
	Dialer stream.Dialer
	Logger *slog.Logger
}

// State is a consistent copy of everything the monitor knows.
type State struct {
	Status      models.JobStatus
	Known       bool
	Logs        []models.LogEntry
	Usage       *models.UsageSnapshot
	ImportStats *models.ImportStats
	Updates     *models.UpdateInfo
	Notice      *Notice
	StreamLive  bool
	Attempts    int
}

// Monitor is the single owner of the ETL view. It implements stream.Handler
// and shutdown.Component.
type Monitor struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	connector  *stream.Connector
	reconciler *reconcile.Reconciler
	buffer     *logs.Container
	broker     *logs.Broker
	poller     *usage.Poller
	operators  *api.UserCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	importStats *models.ImportStats
	updates     *models.UpdateInfo
	notice      *Notice
	listeners   []func()
	started     bool
	closed      bool
}

// New creates a Monitor. Nothing connects until Run.
func New(backend Backend, opts Options) *Monitor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		backend:    backend,
		opts:       opts,
		logger:     log,
		reconciler: reconcile.New(log.With("component", "reconcile")),
		buffer:     logs.NewContainer(logs.DefaultMaxLines),
		broker:     logs.NewBroker(log.With("component", "broker")),
		operators:  api.NewUserCache(backend, opts.OperatorTTL),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.connector = stream.NewConnector(stream.Options{
		URL:             opts.StreamURL,
		Token:           opts.Token,
		ReconnectDelay:  opts.ReconnectDelay,
		ReconnectJitter: opts.ReconnectJitter,
		Dialer:          opts.Dialer,
		OnStateChange:   func(bool) { m.changed() },
		Logger:          log,
	}, m)

	usageOpts := usage.Options{
		OnUpdate: func(*models.UsageSnapshot) { m.changed() },
		Logger:   log,
	}
	if opts.Session != nil {
		usageOpts.SessionCheck = opts.Session.Check
	}
	m.poller = usage.NewPoller(backend, usageOpts)

	m.reconciler.OnChange(func(models.JobStatus) { m.changed() })
	return m
}

// Run loads the initial status and import stats, then opens the stream and
// starts the usage poller. Fetch failures are logged and surfaced as notices;
// the stream and poller still start. Calling Run twice is a no-op.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("initial status fetch failed", "error", err)
	}
	m.loadImportStats(ctx)

	// Close may have run during the fetches. Checking under the lock keeps
	// wg.Add ahead of Close's wg.Wait.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.connector.Connect()
	}()

	m.poller.Start(m.ctx, m.opts.UsageInterval)
	return nil
}

func (m *Monitor) loadImportStats(ctx context.Context) {
	stats, err := m.backend.GetImportStats(ctx)
	if err != nil {
		m.logger.Warn("import stats unavailable", "error", err)
		return
	}
	if stats == nil {
		m.logger.Debug("backend has no import stats")
		return
	}
	m.mu.Lock()
	m.importStats = stats
	m.mu.Unlock()
	m.changed()
}

// HandleLog appends a streamed log entry and fans it out to subscribers.
func (m *Monitor) HandleLog(entry models.LogEntry) {
	m.buffer.Add(entry)
	m.broker.Publish(entry)
	m.changed()
}

// HandleStatus applies a pushed status snapshot.
func (m *Monitor) HandleStatus(snap models.StatusSnapshot) {
	m.reconciler.ApplyPush(snap)
}

// Refresh polls the status endpoint and applies the result.
func (m *Monitor) Refresh(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	snap, err := m.backend.GetStatus(ctx)
	if err != nil {
		m.setNotice(NoticeError, "Could not load ETL status: "+err.Error())
		return fmt.Errorf("fetching status: %w", err)
	}
	m.reconciler.ApplyPoll(*snap)
	return nil
}

// StartJob asks the backend to start the ETL job, then refreshes the status.
func (m *Monitor) StartJob(ctx context.Context) error {
	return m.command(ctx, models.JobActionStart, m.backend.StartJob, "ETL started")
}

// StopJob asks the backend to stop the ETL job, then refreshes the status.
func (m *Monitor) StopJob(ctx context.Context) error {
	return m.command(ctx, models.JobActionStop, m.backend.StopJob, "ETL stopped")
}

func (m *Monitor) command(ctx context.Context, action models.JobAction, call func(context.Context) (*api.CommandResponse, error), success string) error {
	if m.isClosed() {
		return ErrClosed
	}
	phase := m.reconciler.Phase()
	if !phase.Allows(action) {
		m.setNotice(NoticeWarning, fmt.Sprintf("Cannot %s while the job is %s", action, phase))
		return fmt.Errorf("%s: %w", action, ErrActionNotAllowed)
	}

	audit := m.logger.With("action", action, "operator", m.operatorName(ctx))
	if m.operators.Stale() {
		audit = audit.With("operator_stale", true)
	}

	resp, err := call(ctx)
	if err != nil {
		audit.Error("job command failed", "error", err)
		m.setNotice(NoticeError, fmt.Sprintf("Failed to %s the ETL: %v", action, err))
		return fmt.Errorf("%s job: %w", action, err)
	}

	text := success
	if resp != nil && resp.Message != "" {
		text = resp.Message
	}
	audit.Info("job command accepted")
	m.setNotice(NoticeSuccess, text)

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("status refresh after command failed", "action", action, "error", err)
	}
	return nil
}

// Operator resolves the operator behind the session token. Lookups are cached;
// during a backend outage the last known operator is returned.
func (m *Monitor) Operator(ctx context.Context) (*models.User, error) {
	return m.operators.Get(ctx)
}

// operatorName is the audit identity of a command: the resolved operator's
// email, else whatever identity ctx carries.
func (m *Monitor) operatorName(ctx context.Context) string {
	user, err := m.operators.Get(ctx)
	if err != nil || user == nil {
		m.logger.Debug("operator lookup failed", "error", err)
		return logger.OperatorFromContext(ctx)
	}
	return user.Email
}

// CheckUpdates asks the backend whether a newer data release is available.
func (m *Monitor) CheckUpdates(ctx context.Context) (*models.UpdateInfo, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	info, err := m.backend.CheckUpdates(ctx)
	if err != nil {
		m.setNotice(NoticeError, "Update check failed: "+err.Error())
		return nil, fmt.Errorf("checking updates: %w", err)
	}
	info = updater.Reconcile(info, m.logger)

	m.mu.Lock()
	m.updates = info
	m.mu.Unlock()

	if info.UpdateAvailable {
		m.setNotice(NoticeInfo, fmt.Sprintf("New data release available: %s", info.LatestRelease))
	} else {
		m.setNotice(NoticeInfo, "Data is up to date")
	}
	return info, nil
}

// OnChange registers fn to run after any state change. fn must not block.
func (m *Monitor) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) changed() {
	m.mu.RLock()
	listeners := make([]func(), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() State {
	status, known := m.reconciler.Current()

	m.mu.RLock()
	state := State{
		Status:      status,
		Known:       known,
		ImportStats: m.importStats,
		Updates:     m.updates,
		Notice:      m.notice,
	}
	m.mu.RUnlock()

	state.Logs = m.buffer.GetAll()
	state.Usage = m.poller.Snapshot()
	state.StreamLive = m.connector.Live()
	state.Attempts = m.connector.Attempts()
	return state
}

// Logs returns the buffered log entries, oldest first.
func (m *Monitor) Logs() []models.LogEntry {
	return m.buffer.GetAll()
}

// LastLogs returns the newest n buffered log entries, oldest first.
func (m *Monitor) LastLogs(n int) []models.LogEntry {
	return m.buffer.GetLast(n)
}

// Broker returns the log fan-out used by streaming HTTP clients.
func (m *Monitor) Broker() *logs.Broker {
	return m.broker
}

// StreamStatus reports stream liveness and the number of connection attempts.
func (m *Monitor) StreamStatus() (live bool, attempts int) {
	return m.connector.Live(), m.connector.Attempts()
}

func (m *Monitor) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Close cancels the usage poll, the pending reconnect and the live stream
// connection. It is idempotent.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.poller.Stop()
	err := m.connector.Close()
	m.wg.Wait()
	m.broker.Close()

	m.logger.Info("monitor closed")
	return err
}

// Name implements shutdown.Component.
func (m *Monitor) Name() string {
	return "monitor"
}

// Shutdown implements shutdown.Component.
func (m *Monitor) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- m.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
