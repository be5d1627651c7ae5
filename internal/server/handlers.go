package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/display"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
	"github.com/narvanalabs/cnpj-monitor/internal/monitor"
)

// ViewResponse is the body of GET /v1/monitor.
type ViewResponse struct {
	display.View
	ImportStats *models.ImportStats `json:"import_stats,omitempty"`
	Updates     *models.UpdateInfo  `json:"updates,omitempty"`
	Notice      *monitor.Notice     `json:"notice,omitempty"`
	Stream      StreamState         `json:"stream"`
}

// StreamState reports the push connection.
type StreamState struct {
	Live     bool `json:"live"`
	Attempts int  `json:"attempts"`
}

func (s *Server) buildView() ViewResponse {
	state := s.monitor.Snapshot()
	return ViewResponse{
		View:        s.formatter.BuildView(state.Status, state.Known, state.Usage, time.Now(), s.logger),
		ImportStats: state.ImportStats,
		Updates:     state.Updates,
		Notice:      state.Notice,
		Stream:      StreamState{Live: state.StreamLive, Attempts: state.Attempts},
	}
}

// getView handles GET /v1/monitor.
func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.buildView())
}

// listLogs handles GET /v1/monitor/logs?last=n.
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	var entries []models.LogEntry
	if raw := r.URL.Query().Get("last"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteBadRequest(w, "last must be a non-negative integer")
			return
		}
		entries = s.monitor.LastLogs(n)
	} else {
		entries = s.monitor.Logs()
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "start", s.monitor.StartJob)
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "stop", s.monitor.StopJob)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, "refresh", s.monitor.Refresh)
}

// runCommand maps monitor errors onto status codes and answers with the new view.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context) error) {
	err := fn(r.Context())
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, s.buildView())
	case errors.Is(err, monitor.ErrActionNotAllowed):
		WriteConflict(w, err.Error())
	case errors.Is(err, monitor.ErrClosed):
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "monitor is shutting down")
	default:
		s.logger.Warn("monitor command failed", "command", name, "error", err)
		WriteError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	}
}

// streamLogs handles GET /v1/monitor/logs/stream - new log entries via SSE.
// An optional level query parameter sets the minimum severity.
func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request) {
	level := models.LogLevel(r.URL.Query().Get("level"))
	switch level {
	case "", models.LogLevelDebug, models.LogLevelInfo, models.LogLevelWarning, models.LogLevelError:
	default:
		WriteBadRequest(w, fmt.Sprintf("unknown level %q", level))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.monitor.Broker().Subscribe(level)
	defer s.monitor.Broker().Unsubscribe(sub)

	s.logger.Info("log stream started", "subscriber_id", sub.ID, "min_level", level)
	s.sendEvent(w, "connected", map[string]string{"subscriber_id": sub.ID})

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("log stream closed by client", "subscriber_id", sub.ID)
			return
		case <-ping.C:
			s.sendEvent(w, "ping", map[string]int64{"time": time.Now().Unix()})
		case entry, ok := <-sub.Ch:
			if !ok {
				s.sendEvent(w, "closed", map[string]string{"reason": "monitor shutting down"})
				return
			}
			s.sendEvent(w, "log", entry)
		}
	}
}

// sendEvent sends a Server-Sent Event.
func (s *Server) sendEvent(w http.ResponseWriter, event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal event data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
