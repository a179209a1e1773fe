package labdojo

import "context"

// TokenStore persists the local session token and the transient OAuth
// state nonce, and decodes token claims without verifying signatures.
// Implementations: tokenstore/ (memory or file backed).
type TokenStore interface {
	// SetToken persists the token. Storage failure is logged and the
	// prior state is left unchanged.
	SetToken(token string)

	// Token returns the persisted token, or false if absent.
	Token() (string, bool)

	// RemoveToken deletes the persisted token.
	RemoveToken()

	// IsTokenValid reports whether a token is present, well formed,
	// and not yet expired. Malformed tokens are treated as absent.
	IsTokenValid() bool

	// DecodeClaims returns the structured claims of the persisted
	// token, or nil when the token is absent or malformed.
	DecodeClaims() *Claims

	// SetState stores the single-use OAuth state nonce for the
	// in-flight login attempt, replacing any previous one.
	SetState(state string)

	// ConsumeState returns the stored state nonce and deletes it
	// atomically. The second return is false when no state was set.
	ConsumeState() (string, bool)
}

// SessionController owns the OAuth login lifecycle: login initiation,
// callback handling, logout, current-user retrieval and background
// token refresh. Implementations: authsession/.
type SessionController interface {
	// LoginURL builds the provider redirect URL for a new login
	// attempt, generating and storing a fresh state nonce.
	LoginURL(provider, returnPath string) (string, error)

	// HandleCallback validates the OAuth callback and persists the
	// session token, returning the user projection from its claims.
	HandleCallback(ctx context.Context, token, state string) (*User, error)

	// Logout clears local session state after a best-effort backend
	// logout. Backend failure never blocks local cleanup.
	Logout(ctx context.Context) error

	// CurrentUser returns the authenticated user, or nil (without
	// error) when the backend reports 401 or is unreachable.
	CurrentUser(ctx context.Context) (*User, error)

	// RefreshToken asks the backend to extend the session cookie.
	RefreshToken(ctx context.Context) bool

	// IsAuthenticated checks the session against the backend.
	IsAuthenticated(ctx context.Context) bool

	// StartAutoRefresh launches the background refresh scheduler.
	// StopAutoRefresh cancels it; both are idempotent.
	StartAutoRefresh()
	StopAutoRefresh()
}

// RoleService fetches and caches the role hierarchy and manageable
// roles, and performs role changes. Implementations: roles/.
type RoleService interface {
	// Hierarchy returns the cached hierarchy snapshot, fetching it
	// from the backend on first use.
	Hierarchy(ctx context.Context) (*Hierarchy, error)

	// ManageableRoles returns the server-computed set of roles the
	// current actor may assign.
	ManageableRoles(ctx context.Context) (*ManageableRoles, error)

	// UserPermissions returns the resolved permissions for one user.
	UserPermissions(ctx context.Context, userID string) (*UserPermissions, error)

	// ChangeUserRole assigns a new role to the user.
	ChangeUserRole(ctx context.Context, userID, role, reason string) error

	// Invalidate drops the cached hierarchy so the next call refetches.
	Invalidate()
}

// BulkExecutor runs one bulk administrative operation at a time
// against a set of target users. Implementations: bulk/.
type BulkExecutor interface {
	// Execute validates and runs the request, reporting progress as
	// results arrive. A second call while one is in flight fails with
	// ErrOperationInFlight before any side effect.
	Execute(ctx context.Context, req BulkRequest) (*BulkResult, error)

	// InProgress reports whether a submission is currently running.
	InProgress() bool

	// Progress returns the latest progress snapshot of the current
	// or most recent run.
	Progress() (BulkProgress, bool)

	// Results returns the frozen result of the last completed run.
	Results() (*BulkResult, bool)

	// ClearResults resets to the pre-submission state.
	ClearResults()
}

// HealthMonitor polls backend telemetry and derives the health score.
// Implementations: health/.
type HealthMonitor interface {
	// Snapshot fetches the current telemetry from the backend.
	// Individual endpoint failures yield nil fields, not an error.
	Snapshot(ctx context.Context) (*HealthSnapshot, error)

	// Metrics returns the analysis of the most recent snapshot.
	Metrics() HealthMetrics

	// AcknowledgeAlert marks one alert acknowledged (one-way).
	AcknowledgeAlert(ctx context.Context, alertID string) bool

	// AcknowledgeAll acknowledges every pending alert.
	AcknowledgeAll(ctx context.Context) bool

	// UnacknowledgedCount counts pending alerts in the last snapshot.
	UnacknowledgedCount() int

	// ExportReport serializes the last snapshot and its analysis as
	// indented JSON. Parsing it reproduces the analysis fields.
	ExportReport() (string, error)
}
