package roles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	labdojo "github.com/labdojo/labdojo-go"
)

// HTTPBackend talks to the role service over cookie-credentialed
// JSON endpoints.
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

// NewHTTPBackend creates a role service backend for the given
// management base URL.
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

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (b *HTTPBackend) FetchHierarchy(ctx context.Context) (*labdojo.Hierarchy, error) {
	var h labdojo.Hierarchy
	if err := b.get(ctx, "/roles", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (b *HTTPBackend) FetchManageableRoles(ctx context.Context) (*labdojo.ManageableRoles, error) {
	var m labdojo.ManageableRoles
	if err := b.get(ctx, "/roles/manageable", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (b *HTTPBackend) FetchUserPermissions(ctx context.Context, userID string) (*labdojo.UserPermissions, error) {
	var p labdojo.UserPermissions
	if err := b.get(ctx, "/permissions/"+url.PathEscape(userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *HTTPBackend) SubmitRoleChange(ctx context.Context, userID, role, reason string) error {
	payload := struct {
		Role   string `json:"role"`
		Reason string `json:"reason,omitempty"`
	}{Role: role, Reason: reason}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	path := "/users/" + url.PathEscape(userID) + "/role"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		if env.Message != "" {
			return fmt.Errorf("role change rejected: %s", env.Message)
		}
		return fmt.Errorf("role change returned status %d", resp.StatusCode)
	}
	return nil
}

// get issues a GET and unmarshals the envelope's data field into out.
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
