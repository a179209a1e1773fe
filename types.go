package labdojo

import "time"

// Claims represents the fields decoded from a session token.
//
// The token is an opaque signed string issued by the auth backend;
// signature verification happens server-side. Clients only read the
// claims to build a user projection and to schedule refreshes.
type Claims struct {
	UserID    string
	Email     string
	Name      string
	Avatar    string
	Provider  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// User represents an authenticated platform user.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// OAuth providers supported for login initiation.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// Hierarchy is an immutable snapshot of role levels and permission
// grants fetched from the backend. A higher level means strictly more
// seniority for hierarchy comparisons; permissions are explicit per
// role and are not implied by level.
type Hierarchy struct {
	Levels      map[string]int      `json:"levels"`
	Permissions map[string][]string `json:"permissions"`
}

// RoleInfo carries per-role metadata alongside the manageable set.
type RoleInfo struct {
	Name        string `json:"name"`
	Level       int    `json:"level"`
	Description string `json:"description,omitempty"`
}

// ManageableRoles is the server-computed set of roles the current
// actor may assign to others.
type ManageableRoles struct {
	Roles    []string   `json:"manageable_roles"`
	Detailed []RoleInfo `json:"detailed_roles,omitempty"`
}

// UserPermissions holds the resolved role and permission set for one user.
type UserPermissions struct {
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Health status values reported by the backend health endpoint.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is the backend's own health report.
type Health struct {
	Status string `json:"status"`
}

// CacheStats describes the lab-content cache occupancy.
type CacheStats struct {
	TotalEntries          int `json:"total_entries"`
	TotalAvailableEntries int `json:"total_available_entries"`
}

// Alert severity values.
const (
	AlertError   = "error"
	AlertWarning = "warning"
	AlertInfo    = "info"
)

// Alert is a single system alert. Acknowledged transitions false→true
// exactly once; alerts are otherwise immutable.
type Alert struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Message      string `json:"message,omitempty"`
	Acknowledged bool   `json:"acknowledged"`
}

// GlobalLogoutStatus reports whether a platform-wide session
// invalidation is in effect.
type GlobalLogoutStatus struct {
	Active bool `json:"global_logout_active"`
}

// Operation identifies one kind of bulk administrative action.
type Operation string

// Bulk operation kinds. OpRoleChange additionally requires a target
// role; OpDelete additionally requires a reason.
const (
	OpActivate   Operation = "ACTIVATE"
	OpDeactivate Operation = "DEACTIVATE"
	OpRoleChange Operation = "ROLE_CHANGE"
	OpDelete     Operation = "DELETE"
)

// BulkRequest describes one bulk administrative action over a set of
// target users. Immutable once submitted.
type BulkRequest struct {
	Operation Operation `json:"operation"`
	UserIDs   []string  `json:"userIds"`
	Role      string    `json:"role,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// BulkProgress is a point-in-time view of a running bulk operation.
// Total is fixed at submission; Completed and Failed only grow.
type BulkProgress struct {
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Current   string `json:"current_operation,omitempty"`
}

// BulkFailure records one per-item failure inside an otherwise
// continuing bulk run.
type BulkFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BulkSummary aggregates a finished bulk run. SuccessRate is an
// unrounded percentage; rounding is a presentation concern.
type BulkSummary struct {
	SuccessfulCount int     `json:"successful_count"`
	FailedCount     int     `json:"failed_count"`
	SuccessRate     float64 `json:"success_rate"`
}

// BulkResult is the frozen outcome of one bulk submission.
type BulkResult struct {
	SubmissionID string        `json:"submission_id"`
	Succeeded    []string      `json:"succeeded"`
	Failed       []BulkFailure `json:"failed"`
	Summary      BulkSummary   `json:"summary"`
}

// HealthSnapshot bundles the telemetry polled from the backend. Nil
// pointers mean the corresponding endpoint was unavailable, which the
// analyzer folds into the score rather than treating as an error.
type HealthSnapshot struct {
	Health       *Health             `json:"system_health"`
	CacheStats   *CacheStats         `json:"cache_statistics"`
	Alerts       []Alert             `json:"alerts"`
	GlobalLogout *GlobalLogoutStatus `json:"global_logout_status"`
}

// HealthMetrics is the derived health analysis of one snapshot.
type HealthMetrics struct {
	IsHealthy       bool     `json:"is_healthy"`
	HealthScore     int      `json:"health_score"`
	CriticalIssues  []string `json:"critical_issues"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}
