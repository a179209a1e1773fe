// Package fake provides in-memory implementations of the labdojo
// interfaces for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and
// external dependencies. MintToken produces decodable session tokens
// for callback and token-store tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/bulk"
	"github.com/labdojo/labdojo-go/health"
	"github.com/labdojo/labdojo-go/roles"
	"github.com/labdojo/labdojo-go/tokenstore"
)

// mintKey signs fake tokens. The signature is never verified; it only
// keeps the token structurally valid for unverified decoding.
var mintKey = []byte("fake-signing-key")

// MintToken returns a decodable session token for the given user,
// expiring at exp.
func MintToken(user labdojo.User, exp time.Time) string {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"email":    user.Email,
		"name":     user.Name,
		"avatar":   user.Avatar,
		"provider": user.Provider,
		"iat":      time.Now().Unix(),
		"exp":      exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(mintKey)
	if err != nil {
		panic(fmt.Sprintf("fake: mint token: %v", err))
	}
	return token
}

// Option configures the fake client.
type Option func(*state)

type state struct {
	currentUser *labdojo.User
	hierarchy   *labdojo.Hierarchy
	manageable  *labdojo.ManageableRoles
	perms       map[string]*labdojo.UserPermissions
	failUsers   map[string]string // userID → bulk error message

	healthStatus *labdojo.Health
	cacheStats   *labdojo.CacheStats
	logoutActive bool
	alerts       map[string]*labdojo.Alert
	alertOrder   []string
}

// WithCurrentUser sets the user returned by CurrentUser.
func WithCurrentUser(u labdojo.User) Option {
	return func(s *state) { s.currentUser = &u }
}

// WithHierarchy sets the role hierarchy snapshot.
func WithHierarchy(h labdojo.Hierarchy) Option {
	return func(s *state) { s.hierarchy = &h }
}

// WithManageableRoles sets the manageable-role set.
func WithManageableRoles(m labdojo.ManageableRoles) Option {
	return func(s *state) { s.manageable = &m }
}

// WithPermissions sets the resolved permissions for a user.
func WithPermissions(userID, role string, perms []string) Option {
	return func(s *state) {
		s.perms[userID] = &labdojo.UserPermissions{
			UserID:      userID,
			Role:        role,
			Permissions: perms,
		}
	}
}

// WithFailingUser makes bulk operations fail for the given target.
func WithFailingUser(userID, message string) Option {
	return func(s *state) { s.failUsers[userID] = message }
}

// WithHealth sets the backend health report.
func WithHealth(status string) Option {
	return func(s *state) { s.healthStatus = &labdojo.Health{Status: status} }
}

// WithCacheStats sets the cache statistics.
func WithCacheStats(entries, available int) Option {
	return func(s *state) {
		s.cacheStats = &labdojo.CacheStats{
			TotalEntries:          entries,
			TotalAvailableEntries: available,
		}
	}
}

// WithGlobalLogoutActive marks a platform-wide logout in effect.
func WithGlobalLogoutActive() Option {
	return func(s *state) { s.logoutActive = true }
}

// WithAlert adds a system alert.
func WithAlert(id, alertType string, acknowledged bool) Option {
	return func(s *state) {
		s.alerts[id] = &labdojo.Alert{ID: id, Type: alertType, Acknowledged: acknowledged}
		s.alertOrder = append(s.alertOrder, id)
	}
}

// NewClient creates a *labdojo.Client with every service wired to
// in-memory fakes.
func NewClient(opts ...Option) *labdojo.Client {
	s := &state{
		perms:     make(map[string]*labdojo.UserPermissions),
		failUsers: make(map[string]string),
		alerts:    make(map[string]*labdojo.Alert),
	}
	for _, o := range opts {
		o(s)
	}

	tokens := tokenstore.New(tokenstore.NewMemory(), labdojo.DefaultTokenStorageKey)

	c, _ := labdojo.NewClient(
		labdojo.Config{AuthBaseURL: "fake://localhost/auth"},
		labdojo.WithTokenStore(tokens),
		labdojo.WithSession(&fakeSession{s: s, tokens: tokens}),
		labdojo.WithRoles(roles.New(&rolesBackend{s: s})),
		labdojo.WithBulkExecutor(bulk.New(&bulkBackend{s: s})),
		labdojo.WithHealthMonitor(health.New(&healthBackend{s: s})),
	)
	return c
}

// --- SessionController fake ---

type fakeSession struct {
	s      *state
	tokens labdojo.TokenStore
}

var _ labdojo.SessionController = (*fakeSession)(nil)

func (f *fakeSession) LoginURL(provider, returnPath string) (string, error) {
	switch provider {
	case labdojo.ProviderGoogle, labdojo.ProviderGitHub:
	default:
		return "", fmt.Errorf("fake: unsupported provider %q", provider)
	}
	state := "fake-state"
	f.tokens.SetState(state)
	return "fake://localhost/auth/" + provider + "?state=" + state + "&redirect_url=" + returnPath, nil
}

func (f *fakeSession) HandleCallback(ctx context.Context, token, state string) (*labdojo.User, error) {
	if state != "" {
		stored, ok := f.tokens.ConsumeState()
		if !ok || stored != state {
			return nil, fmt.Errorf("fake: %w", labdojo.ErrStateMismatch)
		}
	}
	if token == "" {
		return nil, fmt.Errorf("fake: %w", labdojo.ErrNoToken)
	}
	claims, err := tokenstore.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("fake: decode token: %w", err)
	}
	f.tokens.SetToken(token)
	return &labdojo.User{
		ID:        claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		Avatar:    claims.Avatar,
		Provider:  claims.Provider,
		CreatedAt: claims.IssuedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (f *fakeSession) Logout(ctx context.Context) error {
	f.tokens.ConsumeState()
	f.tokens.RemoveToken()
	return nil
}

func (f *fakeSession) CurrentUser(ctx context.Context) (*labdojo.User, error) {
	return f.s.currentUser, nil
}

func (f *fakeSession) RefreshToken(ctx context.Context) bool { return true }

func (f *fakeSession) IsAuthenticated(ctx context.Context) bool {
	return f.s.currentUser != nil
}

func (f *fakeSession) StartAutoRefresh() {}
func (f *fakeSession) StopAutoRefresh() {}

// --- roles.Backend fake ---

type rolesBackend struct {
	s *state
}

var _ roles.Backend = (*rolesBackend)(nil)

func (b *rolesBackend) FetchHierarchy(ctx context.Context) (*labdojo.Hierarchy, error) {
	if b.s.hierarchy == nil {
		return nil, errors.New("fake: no hierarchy configured")
	}
	return b.s.hierarchy, nil
}

func (b *rolesBackend) FetchManageableRoles(ctx context.Context) (*labdojo.ManageableRoles, error) {
	if b.s.manageable == nil {
		return &labdojo.ManageableRoles{}, nil
	}
	return b.s.manageable, nil
}

func (b *rolesBackend) FetchUserPermissions(ctx context.Context, userID string) (*labdojo.UserPermissions, error) {
	perms, ok := b.s.perms[userID]
	if !ok {
		return nil, fmt.Errorf("fake: no permissions for user %q", userID)
	}
	return perms, nil
}

func (b *rolesBackend) SubmitRoleChange(ctx context.Context, userID, role, reason string) error {
	if perms, ok := b.s.perms[userID]; ok {
		perms.Role = role
	}
	return nil
}

// --- bulk.Backend fake ---

type bulkBackend struct {
	s *state
}

var _ bulk.Backend = (*bulkBackend)(nil)

func (b *bulkBackend) Submit(ctx context.Context, req labdojo.BulkRequest, report func(bulk.ItemOutcome)) error {
	for _, id := range req.UserIDs {
		if msg, ok := b.s.failUsers[id]; ok {
			report(bulk.ItemOutcome{UserID: id, Err: errors.New(msg)})
			continue
		}
		report(bulk.ItemOutcome{UserID: id})
	}
	return nil
}

// --- health.Backend fake ---

type healthBackend struct {
	s *state
}

var _ health.Backend = (*healthBackend)(nil)

func (b *healthBackend) FetchHealth(ctx context.Context) (*labdojo.Health, error) {
	if b.s.healthStatus == nil {
		return nil, errors.New("fake: health unavailable")
	}
	return b.s.healthStatus, nil
}

func (b *healthBackend) FetchCacheStats(ctx context.Context) (*labdojo.CacheStats, error) {
	if b.s.cacheStats == nil {
		return nil, errors.New("fake: cache statistics unavailable")
	}
	return b.s.cacheStats, nil
}

func (b *healthBackend) FetchGlobalLogout(ctx context.Context) (*labdojo.GlobalLogoutStatus, error) {
	return &labdojo.GlobalLogoutStatus{Active: b.s.logoutActive}, nil
}

func (b *healthBackend) FetchAlerts(ctx context.Context) ([]labdojo.Alert, error) {
	alerts := make([]labdojo.Alert, 0, len(b.s.alertOrder))
	for _, id := range b.s.alertOrder {
		alerts = append(alerts, *b.s.alerts[id])
	}
	return alerts, nil
}

func (b *healthBackend) AcknowledgeAlert(ctx context.Context, alertID string) error {
	alert, ok := b.s.alerts[alertID]
	if !ok {
		return fmt.Errorf("fake: unknown alert %q", alertID)
	}
	alert.Acknowledged = true
	return nil
}

func (b *healthBackend) ClearCache(ctx context.Context, cacheType string) error {
	b.s.cacheStats = &labdojo.CacheStats{}
	return nil
}

func (b *healthBackend) TriggerGlobalLogout(ctx context.Context) error {
	b.s.logoutActive = true
	return nil
}

func (b *healthBackend) ClearGlobalLogout(ctx context.Context) error {
	b.s.logoutActive = false
	return nil
}
