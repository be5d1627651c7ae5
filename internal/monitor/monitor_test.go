package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
	"github.com/narvanalabs/cnpj-monitor/internal/stream"
	"github.com/narvanalabs/cnpj-monitor/pkg/logger"
	"github.com/narvanalabs/cnpj-monitor/web/api"
)

// fakeBackend serves the REST endpoints and the event stream.
type fakeBackend struct {
	mu           sync.Mutex
	running      bool
	startCalls   int
	failStart    bool
	meCalls      int
	failMe       bool
	streamFrames []string

	server *httptest.Server
	done   chan struct{}
}

func newFakeBackend(t *testing.T, frames ...string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{streamFrames: frames, done: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		running := b.running
		b.mu.Unlock()
		status := "idle"
		if running {
			status = "running"
		}
		writeJSON(w, map[string]any{
			"is_running": running,
			"stats":      map[string]any{"status": status, "progress": 40, "total_processed": 1234},
		})
	})
	mux.HandleFunc("POST "+api.PathStart, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.startCalls++
		if b.failStart {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]string{"detail": "engine unavailable"})
			return
		}
		b.running = true
		writeJSON(w, map[string]any{"success": true, "message": "ETL iniciado"})
	})
	mux.HandleFunc("POST "+api.PathStop, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})
	mux.HandleFunc("GET "+api.PathUpdates, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"update_available": true, "current_release": "2026-09", "latest_release": "2026-10"})
	})
	mux.HandleFunc("GET "+api.PathImportStats, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET "+api.PathUsage, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"plan_name": "Pro", "queries_used": 250, "total_limit": 1000})
	})
	mux.HandleFunc("GET "+api.PathCurrentUser, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.meCalls++
		if b.failMe {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"id": "u1", "email": "ops@example.com", "is_admin": true})
	})
	mux.HandleFunc("/ws/monitor", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range b.streamFrames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		<-b.done
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(b.done)
		b.server.Close()
	})
	return b
}

func (b *fakeBackend) streamURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/monitor"
}

func (b *fakeBackend) starts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startCalls
}

func (b *fakeBackend) userLookups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.meCalls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newMonitor(t *testing.T, b *fakeBackend) *Monitor {
	t.Helper()
	m := New(api.NewClient(b.server.URL), Options{
		StreamURL:      b.streamURL(),
		ReconnectDelay: time.Hour,
		UsageInterval:  time.Hour,
		Logger:         logger.Discard().Logger,
	})
	t.Cleanup(func() { m.Close() })
	return m
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunCombinesPollPushAndUsage(t *testing.T) {
	b := newFakeBackend(t,
		`{"type":"log","data":{"level":"error","message":"disk full"}}`,
		`{"type":"status","data":{"is_running":false,"stats":{"status":"completed","progress":100}}}`,
	)
	m := newMonitor(t, b)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	eventually(t, func() bool {
		s := m.Snapshot()
		return s.Status.Phase == models.JobPhaseCompleted && len(s.Logs) == 1 && s.Usage != nil
	}, "stream events and usage were not applied")

	s := m.Snapshot()
	if s.Logs[0].Level != models.LogLevelError || s.Logs[0].Message != "disk full" {
		t.Errorf("log = %+v", s.Logs[0])
	}
	if last := m.LastLogs(10); len(last) != 1 || last[0].Message != "disk full" {
		t.Errorf("LastLogs(10) = %+v", last)
	}
	if s.Status.Source != models.StatusSourcePush {
		t.Errorf("Source = %s, want push", s.Status.Source)
	}
	if s.Status.Revision < 2 {
		t.Errorf("Revision = %d, want the poll and the push applied", s.Status.Revision)
	}
	if s.ImportStats != nil {
		t.Errorf("ImportStats = %+v, want nil for a 404", s.ImportStats)
	}
	if s.Usage.PlanName != "Pro" || s.Usage.QueriesUsed != 250 {
		t.Errorf("Usage = %+v", s.Usage)
	}
	if !s.StreamLive {
		t.Error("stream should be live")
	}
}

func TestStartJobRefreshesStatus(t *testing.T) {
	b := newFakeBackend(t)
	m := newMonitor(t, b)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if err := m.StartJob(context.Background()); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}

	s := m.Snapshot()
	if s.Status.Phase != models.JobPhaseRunning {
		t.Errorf("Phase = %s, want running", s.Status.Phase)
	}
	if s.Notice == nil || s.Notice.Level != NoticeSuccess || s.Notice.Text != "ETL iniciado" {
		t.Errorf("Notice = %+v", s.Notice)
	}

	err := m.StartJob(context.Background())
	if !errors.Is(err, ErrActionNotAllowed) {
		t.Fatalf("second StartJob() error = %v, want ErrActionNotAllowed", err)
	}
	if n := b.starts(); n != 1 {
		t.Errorf("start endpoint called %d times, want 1", n)
	}
	if m.Notice().Level != NoticeWarning {
		t.Errorf("Notice level = %s, want warning", m.Notice().Level)
	}

	if err := m.StopJob(context.Background()); err != nil {
		t.Fatalf("StopJob() error = %v", err)
	}
	if m.Snapshot().Status.Phase != models.JobPhaseIdle {
		t.Errorf("Phase after stop = %s, want idle", m.Snapshot().Status.Phase)
	}
}

// auditLines decodes the JSON log records written for job commands.
func auditLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if rec["msg"] == "job command accepted" {
			out = append(out, rec)
		}
	}
	return out
}

func TestCommandsAuditCachedOperator(t *testing.T) {
	b := newFakeBackend(t)
	var buf bytes.Buffer
	m := New(api.NewClient(b.server.URL), Options{
		StreamURL:      b.streamURL(),
		ReconnectDelay: time.Hour,
		UsageInterval:  time.Hour,
		OperatorTTL:    200 * time.Millisecond,
		Logger:         logger.NewWithWriter(&buf, slog.LevelInfo, true).Logger,
	})
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	user, err := m.Operator(ctx)
	if err != nil || user.Email != "ops@example.com" {
		t.Fatalf("Operator() = %v, %v", user, err)
	}
	if err := m.StartJob(ctx); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if n := b.userLookups(); n != 1 {
		t.Fatalf("user lookups = %d, want the cached operator reused", n)
	}

	// The entry expires during an outage: the last known operator is kept.
	b.mu.Lock()
	b.failMe = true
	b.mu.Unlock()
	time.Sleep(250 * time.Millisecond)
	if err := m.StopJob(ctx); err != nil {
		t.Fatalf("StopJob() error = %v", err)
	}
	if n := b.userLookups(); n != 2 {
		t.Fatalf("user lookups = %d, want a refresh after expiry", n)
	}

	lines := auditLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("audit lines = %d, want 2: %s", len(lines), buf.String())
	}
	for i, rec := range lines {
		if rec["operator"] != "ops@example.com" {
			t.Errorf("line %d operator = %v", i, rec["operator"])
		}
	}
	if _, ok := lines[0]["operator_stale"]; ok {
		t.Error("fresh operator marked stale")
	}
	if lines[1]["operator_stale"] != true {
		t.Errorf("outage line = %v, want operator_stale", lines[1])
	}
}

func TestStartJobFailureRaisesNotice(t *testing.T) {
	b := newFakeBackend(t)
	b.failStart = true
	m := newMonitor(t, b)

	err := m.StartJob(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Errorf("error = %v, want wrapped APIError 500", err)
	}
	n := m.Notice()
	if n == nil || n.Level != NoticeError || !strings.Contains(n.Text, "engine unavailable") {
		t.Errorf("Notice = %+v", n)
	}
}

func TestCheckUpdates(t *testing.T) {
	b := newFakeBackend(t)
	m := newMonitor(t, b)

	info, err := m.CheckUpdates(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdates() error = %v", err)
	}
	if !info.UpdateAvailable || info.LatestRelease != "2026-10" {
		t.Errorf("info = %+v", info)
	}
	if s := m.Snapshot(); s.Updates == nil || s.Notice == nil || !strings.Contains(s.Notice.Text, "2026-10") {
		t.Errorf("snapshot = %+v", s)
	}
}

// refusingDialer always fails so the connector keeps rescheduling.
type refusingDialer struct {
	mu    sync.Mutex
	calls int
}

func (d *refusingDialer) Dial(ctx context.Context, url string, header http.Header) (stream.Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return nil, errors.New("connection refused")
}

func (d *refusingDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestCloseStopsEverything(t *testing.T) {
	b := newFakeBackend(t)
	dialer := &refusingDialer{}
	m := New(api.NewClient(b.server.URL), Options{
		StreamURL:      "ws://unused",
		ReconnectDelay: 10 * time.Millisecond,
		UsageInterval:  10 * time.Millisecond,
		Dialer:         dialer,
		Logger:         logger.Discard().Logger,
	})

	if err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return dialer.count() >= 2 }, "connector did not retry")

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	calls := dialer.count()
	time.Sleep(50 * time.Millisecond)
	if dialer.count() != calls {
		t.Errorf("dials after Close: %d -> %d", calls, dialer.count())
	}
	if m.poller.Running() {
		t.Error("usage poller still running after Close")
	}
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh after Close error = %v, want ErrClosed", err)
	}
	if err := m.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close error = %v, want ErrClosed", err)
	}
}

func TestLogBufferKeepsNewestHundred(t *testing.T) {
	m := newMonitor(t, newFakeBackend(t))
	for i := 0; i < 150; i++ {
		m.HandleLog(models.LogEntry{Message: fmt.Sprintf("line %d", i)})
	}

	all := m.Logs()
	if len(all) != 100 {
		t.Fatalf("len(Logs()) = %d, want 100", len(all))
	}
	if all[0].Message != "line 50" || all[99].Message != "line 149" {
		t.Errorf("oldest/newest = %q/%q", all[0].Message, all[99].Message)
	}
}

func TestCloseDuringRunStartsNothing(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == api.PathStatus {
			close(entered)
			<-gate
			writeJSON(w, map[string]any{"is_running": false})
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	dialer := &refusingDialer{}
	m := New(api.NewClient(server.URL), Options{
		StreamURL:      "ws://unused",
		ReconnectDelay: 10 * time.Millisecond,
		UsageInterval:  10 * time.Millisecond,
		Dialer:         dialer,
		Logger:         logger.Discard().Logger,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(context.Background()) }()

	<-entered
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	close(gate)

	if err := <-runErr; !errors.Is(err, ErrClosed) {
		t.Fatalf("Run() error = %v, want ErrClosed", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := dialer.count(); n != 0 {
		t.Errorf("dialed %d times after Close", n)
	}
	if m.poller.Running() {
		t.Error("poller started after Close")
	}
}

func TestOnChangeAndBroker(t *testing.T) {
	b := newFakeBackend(t)
	m := newMonitor(t, b)

	changes := make(chan struct{}, 8)
	m.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	sub := m.Broker().Subscribe(models.LogLevelWarning)

	m.HandleLog(models.LogEntry{Level: models.LogLevelInfo, Message: "step 1"})
	m.HandleLog(models.LogEntry{Level: models.LogLevelError, Message: "failed"})

	select {
	case e := <-sub.Ch:
		if e.Message != "failed" {
			t.Errorf("subscriber got %q, want only the error", e.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber got nothing")
	}
	if len(changes) == 0 {
		t.Error("OnChange listener was not notified")
	}
	if got := len(m.Logs()); got != 2 {
		t.Errorf("Logs() len = %d, want 2", got)
	}
}

func TestShutdownComponent(t *testing.T) {
	b := newFakeBackend(t)
	m := newMonitor(t, b)

	if m.Name() != "monitor" {
		t.Errorf("Name() = %q", m.Name())
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !m.isClosed() {
		t.Error("Shutdown should close the monitor")
	}
}
