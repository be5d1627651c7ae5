package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		api        APIChecker
		stream     StreamProbe
		want       Status
		wantStream Status
	}{
		{"all up", ok, func() (bool, int) { return true, 1 }, StatusHealthy, StatusHealthy},
		{"stream reconnecting", ok, func() (bool, int) { return false, 3 }, StatusDegraded, StatusDegraded},
		{"stream never connected", ok, func() (bool, int) { return false, 0 }, StatusDegraded, StatusDegraded},
		{"api down", down, func() (bool, int) { return true, 1 }, StatusUnhealthy, StatusHealthy},
		{"no stream probe", ok, nil, StatusHealthy, ""},
		{"no api checker", nil, nil, StatusUnhealthy, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewChecker(tt.api, tt.stream, "test").Check(context.Background())
			if resp.Status != tt.want {
				t.Errorf("Status = %s, want %s", resp.Status, tt.want)
			}
			if got := resp.Components["stream"].Status; got != tt.wantStream {
				t.Errorf("stream = %q, want %q", got, tt.wantStream)
			}
		})
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		api  APIChecker
		want int
	}{
		{"healthy", func(context.Context) error { return nil }, http.StatusOK},
		{"unhealthy", func(context.Context) error { return errors.New("boom") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.api, func() (bool, int) { return false, 2 }, "v1.2.3")
			rec := httptest.NewRecorder()
			c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d", rec.Code, tt.want)
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Version != "v1.2.3" {
				t.Errorf("Version = %q", resp.Version)
			}
		})
	}
}
