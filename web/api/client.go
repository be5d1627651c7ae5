// Package api provides a client for the SaaS backend endpoints the monitor consumes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// Endpoint paths on the backend.
const (
	PathStatus      = "/api/etl/status"
	PathStart       = "/api/etl/start"
	PathStop        = "/api/etl/stop"
	PathUpdates     = "/api/etl/updates"
	PathImportStats = "/api/etl/import-stats"
	PathUsage       = "/api/subscription/usage"
	PathCurrentUser = "/api/auth/me"
)

// ErrNoContent is returned by requests whose resource does not exist yet.
var ErrNoContent = errors.New("no content")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client is an API client for the monitoring endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithToken returns a new client with the specified auth token.
func (c *Client) WithToken(token string) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		token:      token,
	}
}

// CommandResponse is the acknowledgement returned by start/stop commands.
type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// GetStatus fetches the current ETL status snapshot.
func (c *Client) GetStatus(ctx context.Context) (*models.StatusSnapshot, error) {
	var snap models.StatusSnapshot
	if err := c.do(ctx, http.MethodGet, PathStatus, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// StartJob asks the engine to start an ETL run.
func (c *Client) StartJob(ctx context.Context) (*CommandResponse, error) {
	return c.command(ctx, PathStart)
}

// StopJob asks the engine to stop the current ETL run.
func (c *Client) StopJob(ctx context.Context) (*CommandResponse, error) {
	return c.command(ctx, PathStop)
}

func (c *Client) command(ctx context.Context, path string) (*CommandResponse, error) {
	var resp CommandResponse
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success && resp.Message != "" {
		return &resp, fmt.Errorf("command rejected: %s", resp.Message)
	}
	return &resp, nil
}

// CheckUpdates asks whether a newer registry release is available.
func (c *Client) CheckUpdates(ctx context.Context) (*models.UpdateInfo, error) {
	var info models.UpdateInfo
	if err := c.do(ctx, http.MethodGet, PathUpdates, nil, &info); err != nil {
		return nil, err
	}
	if info.CheckedAt.IsZero() {
		info.CheckedAt = time.Now()
	}
	return &info, nil
}

// GetImportStats fetches per-table import statistics. Statistics are optional:
// a missing resource returns (nil, nil).
func (c *Client) GetImportStats(ctx context.Context) (*models.ImportStats, error) {
	var stats models.ImportStats
	err := c.do(ctx, http.MethodGet, PathImportStats, nil, &stats)
	if errors.Is(err, ErrNoContent) || IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// usageResponse mirrors the ledger payload; field names differ from the model.
type usageResponse struct {
	PlanName    string     `json:"plan_name"`
	QueriesUsed int64      `json:"queries_used"`
	TotalLimit  int64      `json:"total_limit"`
	RenewsAt    *time.Time `json:"renewal_date,omitempty"`
}

// FetchUsage fetches the subscription usage snapshot.
func (c *Client) FetchUsage(ctx context.Context) (*models.UsageSnapshot, error) {
	var resp usageResponse
	if err := c.do(ctx, http.MethodGet, PathUsage, nil, &resp); err != nil {
		return nil, err
	}
	used, limit := resp.QueriesUsed, resp.TotalLimit
	if used < 0 {
		used = 0
	}
	if limit < 0 {
		limit = 0
	}
	return &models.UsageSnapshot{
		PlanName:    resp.PlanName,
		QueriesUsed: used,
		TotalLimit:  limit,
		RenewsAt:    resp.RenewsAt,
		FetchedAt:   time.Now(),
	}, nil
}

// CurrentUser fetches the authenticated operator.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, PathCurrentUser, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Ping checks backend reachability using the status endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetStatus(ctx)
	return err
}

// do performs a request and unmarshals the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return ErrNoContent
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
