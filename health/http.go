package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	labdojo "github.com/labdojo/labdojo-go"
)

// HTTPBackend talks to the system/health service over
// cookie-credentialed JSON endpoints.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

var _ Backend = (*HTTPBackend)(nil)

// HTTPOption configures the HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.httpClient = c }
}

// NewHTTPBackend creates a telemetry backend for the given management
// base URL.
func NewHTTPBackend(baseURL string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (b *HTTPBackend) FetchHealth(ctx context.Context) (*labdojo.Health, error) {
	var h labdojo.Health
	if err := b.get(ctx, "/system/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (b *HTTPBackend) FetchCacheStats(ctx context.Context) (*labdojo.CacheStats, error) {
	// The backend nests the lab cache block inside the statistics
	// payload; only that block feeds the analyzer.
	var payload struct {
		LabCache labdojo.CacheStats `json:"lab_cache"`
	}
	if err := b.get(ctx, "/system/cache/statistics", &payload); err != nil {
		return nil, err
	}
	return &payload.LabCache, nil
}

func (b *HTTPBackend) FetchGlobalLogout(ctx context.Context) (*labdojo.GlobalLogoutStatus, error) {
	var g labdojo.GlobalLogoutStatus
	if err := b.get(ctx, "/system/global-logout", &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (b *HTTPBackend) FetchAlerts(ctx context.Context) ([]labdojo.Alert, error) {
	var payload struct {
		Alerts []labdojo.Alert `json:"alerts"`
	}
	if err := b.get(ctx, "/system/alerts", &payload); err != nil {
		return nil, err
	}
	return payload.Alerts, nil
}

func (b *HTTPBackend) AcknowledgeAlert(ctx context.Context, alertID string) error {
	return b.post(ctx, "/system/alerts/"+url.PathEscape(alertID)+"/acknowledge")
}

func (b *HTTPBackend) ClearCache(ctx context.Context, cacheType string) error {
	return b.post(ctx, "/system/cache/"+url.PathEscape(cacheType)+"/clear")
}

func (b *HTTPBackend) TriggerGlobalLogout(ctx context.Context) error {
	return b.post(ctx, "/system/global-logout/trigger")
}

func (b *HTTPBackend) ClearGlobalLogout(ctx context.Context) error {
	return b.post(ctx, "/system/global-logout/clear")
}

func (b *HTTPBackend) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		if env.Message != "" {
			return fmt.Errorf("%s rejected: %s", path, env.Message)
		}
		return fmt.Errorf("%s rejected", path)
	}
	return json.Unmarshal(env.Data, out)
}

func (b *HTTPBackend) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}
