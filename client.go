// Package labdojo provides a Go client SDK for the LabDojo
// learning-platform management backend.
//
// The SDK covers the management and access-control core: the OAuth
// session lifecycle (token storage, CSRF state, background refresh),
// role-hierarchy authorization, bulk administrative operations over
// user collections, and derived system-health analysis. Concrete
// service implementations are injected via Option functions, so the
// SDK stays independent of any particular transport or storage.
//
// Example usage:
//
//	client, err := labdojo.NewClient(
//	    labdojo.Config{AuthBaseURL: "https://api.labdojo.io/auth"},
//	    labdojo.WithSession(sessionController),
//	    labdojo.WithRoles(roleService),
//	)
package labdojo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Client is the main entry point for LabDojo management operations.
// Service implementations are injected via Option functions.
type Client struct {
	config Config
	logger *slog.Logger

	tokens TokenStore
	auth   SessionController
	roles  RoleService
	bulk   BulkExecutor
	health HealthMonitor
}

// Config holds connection and behavior configuration.
type Config struct {
	// AuthBaseURL is the base URL of the auth backend
	// (e.g. "https://api.labdojo.io/auth").
	AuthBaseURL string

	// ManagementBaseURL is the base URL of the management backend.
	// If empty, defaults to AuthBaseURL with the trailing path
	// segment replaced by "/management".
	ManagementBaseURL string

	// TokenStorageKey is the key under which the session token is
	// persisted. Default: "labdojo_auth_token".
	TokenStorageKey string

	// RefreshCheckInterval is how often the background scheduler
	// inspects token expiry. Default: 1 minute.
	RefreshCheckInterval time.Duration

	// RefreshWindow is the time-to-expiry threshold below which a
	// refresh is triggered. Default: 5 minutes.
	RefreshWindow time.Duration

	// HealthPollInterval is how often health telemetry is polled
	// when polling is enabled. Default: 30 seconds.
	HealthPollInterval time.Duration
}

// Defaults applied by NewClient.
const (
	DefaultTokenStorageKey      = "labdojo_auth_token"
	DefaultRefreshCheckInterval = 1 * time.Minute
	DefaultRefreshWindow        = 5 * time.Minute
	DefaultHealthPollInterval   = 30 * time.Second
)

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokenStore sets the token persistence implementation.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// WithSession sets the auth session controller implementation.
func WithSession(s SessionController) Option {
	return func(c *Client) { c.auth = s }
}

// WithRoles sets the role service implementation.
func WithRoles(r RoleService) Option {
	return func(c *Client) { c.roles = r }
}

// WithBulkExecutor sets the bulk operation executor implementation.
func WithBulkExecutor(b BulkExecutor) Option {
	return func(c *Client) { c.bulk = b }
}

// WithHealthMonitor sets the health monitor implementation.
func WithHealthMonitor(h HealthMonitor) Option {
	return func(c *Client) { c.health = h }
}

// NewClient creates a new LabDojo client with the given configuration
// and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.AuthBaseURL == "" {
		return nil, fmt.Errorf("labdojo: AuthBaseURL is required")
	}
	if cfg.TokenStorageKey == "" {
		cfg.TokenStorageKey = DefaultTokenStorageKey
	}
	if cfg.RefreshCheckInterval == 0 {
		cfg.RefreshCheckInterval = DefaultRefreshCheckInterval
	}
	if cfg.RefreshWindow == 0 {
		cfg.RefreshWindow = DefaultRefreshWindow
	}
	if cfg.HealthPollInterval == 0 {
		cfg.HealthPollInterval = DefaultHealthPollInterval
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Tokens returns the token store, or nil if not configured.
func (c *Client) Tokens() TokenStore { return c.tokens }

// Auth returns the session controller, or nil if not configured.
func (c *Client) Auth() SessionController { return c.auth }

// Roles returns the role service, or nil if not configured.
func (c *Client) Roles() RoleService { return c.roles }

// Bulk returns the bulk executor, or nil if not configured.
func (c *Client) Bulk() BulkExecutor { return c.bulk }

// Health returns the health monitor, or nil if not configured.
func (c *Client) Health() HealthMonitor { return c.health }

// Init establishes the session lifecycle at application start: it
// attempts a silent CurrentUser lookup and, when a user is present,
// starts the background refresh scheduler. A nil user is not an
// error; it simply means the visitor is unauthenticated.
func (c *Client) Init(ctx context.Context) (*User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("labdojo: no session controller configured")
	}
	user, err := c.auth.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user != nil {
		c.auth.StartAutoRefresh()
	}
	return user, nil
}

// Close stops background tasks and releases resources held by any
// injected service that implements io.Closer.
func (c *Client) Close() error {
	if c.auth != nil {
		c.auth.StopAutoRefresh()
	}
	services := []interface{}{c.tokens, c.auth, c.roles, c.bulk, c.health}
	var firstErr error
	for _, svc := range services {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
