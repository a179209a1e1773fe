// Package authsession implements the OAuth session lifecycle against
// the LabDojo auth backend.
//
// A login attempt moves through Idle → Redirecting → Callback →
// Authenticated or Failed. The controller owns the CSRF state nonce
// written before the redirect and consumed exactly once on callback,
// the persisted session token, and a cancellable background scheduler
// that refreshes the token shortly before expiry.
package authsession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/audit"
	"github.com/labdojo/labdojo-go/metrics"
	"github.com/labdojo/labdojo-go/tokenstore"
)

// Controller implements labdojo.SessionController.
type Controller struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	tokens      labdojo.TokenStore
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     *audit.Logger

	checkInterval time.Duration
	refreshWindow time.Duration
	now           func() time.Time

	mu      sync.Mutex
	stopRef chan struct{} // nil when the scheduler is not running
}

// compile-time check
var _ labdojo.SessionController = (*Controller)(nil)

// Option configures the Controller.
type Option func(*Controller)

// WithHTTPClient sets a custom HTTP client. The client's cookie jar
// carries the session cookie for /me, /refresh and /logout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Controller) { s.httpClient = c }
}

// WithCallbackURL sets the redirect_uri presented to the provider.
func WithCallbackURL(u string) Option {
	return func(s *Controller) { s.callbackURL = u }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Controller) { s.logger = l }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Controller) { s.metrics = m }
}

// WithAudit attaches an audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(s *Controller) { s.auditor = a }
}

// WithRefreshSchedule overrides the scheduler's check interval and
// the time-to-expiry window that triggers a refresh.
func WithRefreshSchedule(checkInterval, refreshWindow time.Duration) Option {
	return func(s *Controller) {
		s.checkInterval = checkInterval
		s.refreshWindow = refreshWindow
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Controller) { s.now = now }
}

// New creates a session controller for the given auth base URL.
func New(baseURL string, tokens labdojo.TokenStore, opts ...Option) *Controller {
	s := &Controller{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		tokens:        tokens,
		logger:        slog.Default(),
		checkInterval: labdojo.DefaultRefreshCheckInterval,
		refreshWindow: labdojo.DefaultRefreshWindow,
		now:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoginURL builds the provider redirect URL for a new login attempt.
// A fresh 32-byte state nonce is generated and stored before the URL
// is returned, so the nonce always exists by the time the provider
// redirects back.
func (s *Controller) LoginURL(provider, returnPath string) (string, error) {
	switch provider {
	case labdojo.ProviderGoogle, labdojo.ProviderGitHub:
	default:
		return "", fmt.Errorf("authsession: unsupported provider %q", provider)
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("authsession: generate state: %w", err)
	}
	s.tokens.SetState(state)

	params := url.Values{
		"state":        {state},
		"redirect_url": {returnPath},
	}
	if s.callbackURL != "" {
		params.Set("redirect_uri", s.callbackURL)
	}
	return s.baseURL + "/" + provider + "?" + params.Encode(), nil
}

// HandleCallback validates the OAuth callback, persists the session
// token, and returns the user projection built from its claims.
//
// When a state value is supplied it must equal the stored nonce; the
// nonce is consumed regardless of the outcome, so a callback can
// never be replayed. A missing token fails with labdojo.ErrNoToken.
func (s *Controller) HandleCallback(ctx context.Context, token, state string) (*labdojo.User, error) {
	if state != "" {
		stored, ok := s.tokens.ConsumeState()
		if !ok || stored != state {
			s.recordLoginFailure("state_mismatch", labdojo.ErrStateMismatch)
			return nil, fmt.Errorf("authsession: %w", labdojo.ErrStateMismatch)
		}
	}

	if token == "" {
		s.recordLoginFailure("missing_token", labdojo.ErrNoToken)
		return nil, fmt.Errorf("authsession: %w", labdojo.ErrNoToken)
	}

	claims, err := tokenstore.Decode(token)
	if err != nil {
		s.recordLoginFailure("malformed_token", err)
		return nil, fmt.Errorf("authsession: decode token: %w", err)
	}
	s.tokens.SetToken(token)

	user := &labdojo.User{
		ID:        claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		Avatar:    claims.Avatar,
		Provider:  claims.Provider,
		CreatedAt: claims.IssuedAt.UTC().Format(time.RFC3339),
	}

	if s.metrics != nil {
		s.metrics.RecordLogin(claims.Provider)
	}
	if s.auditor != nil {
		s.auditor.Log(audit.Event{
			ActorID: user.ID,
			Action:  "auth.callback",
			Result:  "success",
			Details: "provider=" + claims.Provider,
		})
	}
	return user, nil
}

// Logout performs a best-effort backend logout and then clears local
// session state unconditionally. Local security posture must not
// depend on backend reachability, so transport failures are logged
// and swallowed.
func (s *Controller) Logout(ctx context.Context) error {
	if err := s.post(ctx, "/logout"); err != nil {
		s.logger.Error("backend logout failed", "error", err)
	}

	s.tokens.ConsumeState()
	s.tokens.RemoveToken()
	s.StopAutoRefresh()

	if s.auditor != nil {
		s.auditor.Log(audit.Event{Action: "auth.logout", Result: "success"})
	}
	return nil
}

// loginResponse is the JSON body of GET /me.
type loginResponse struct {
	User *labdojo.User `json:"user"`
}

// CurrentUser returns the authenticated user via the cookie session.
// A 401 means "no user", not an error; network failures also map to
// no user with the cause logged, so app start never hard-fails on an
// unreachable backend.
func (s *Controller) CurrentUser(ctx context.Context) (*labdojo.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("authsession: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("failed to get current user", "error", err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("authsession: get user returned status %d", resp.StatusCode)
	}

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("authsession: decode user: %w", err)
	}
	return body.User, nil
}

// RefreshToken asks the backend to extend the session. Returns
// success only; callers that need the cause can inspect the logs.
func (s *Controller) RefreshToken(ctx context.Context) bool {
	err := s.post(ctx, "/refresh")
	success := err == nil
	if !success {
		s.logger.Error("token refresh failed", "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordRefresh(success)
	}
	return success
}

// IsAuthenticated verifies the cookie session against the backend.
func (s *Controller) IsAuthenticated(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/verify", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("auth verification failed", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// StartAutoRefresh launches the background refresh scheduler: an
// immediate expiry check, then one per check interval. Idempotent.
func (s *Controller) StartAutoRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRef != nil {
		return
	}
	stop := make(chan struct{})
	s.stopRef = stop

	go func() {
		s.checkTokenExpiry()
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.checkTokenExpiry()
			case <-stop:
				return
			}
		}
	}()
}

// StopAutoRefresh cancels the scheduler. Idempotent.
func (s *Controller) StopAutoRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRef == nil {
		return
	}
	close(s.stopRef)
	s.stopRef = nil
}

// Close stops background tasks.
func (s *Controller) Close() error {
	s.StopAutoRefresh()
	return nil
}

// checkTokenExpiry triggers a fire-and-forget refresh when the token
// expires within the refresh window. Absent or already-expired tokens
// are left alone: the user must re-authenticate.
func (s *Controller) checkTokenExpiry() {
	claims := s.tokens.DecodeClaims()
	if claims == nil {
		return
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 || ttl > s.refreshWindow {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if !s.RefreshToken(ctx) {
			s.logger.Error("auto token refresh failed")
		}
	}()
}

// post issues a cookie-credentialed POST with an empty JSON body and
// treats any non-2xx status as an error.
func (s *Controller) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (s *Controller) recordLoginFailure(reason string, err error) {
	if s.metrics != nil {
		s.metrics.RecordLoginFailure(reason)
	}
	if s.auditor != nil {
		s.auditor.Log(audit.Event{
			Action: "auth.callback",
			Result: "failure",
			Error:  err.Error(),
		})
	}
}

// generateState returns a 32-byte random nonce as 64 hex characters.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
