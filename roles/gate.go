package roles

import (
	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/metrics"
)

// Gate makes client-side authorization decisions for one actor over
// an immutable hierarchy snapshot. The gate can only narrow what the
// server granted: the manageable-role set and the permission set both
// come from the backend and are never widened locally.
type Gate struct {
	hierarchy      *labdojo.Hierarchy
	manageable     map[string]bool
	manageableList []string // server order, preserved for AvailableRoles
	actorRole      string
	actorPerms     map[string]bool
	metrics        *metrics.Metrics
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateMetrics attaches Prometheus metrics. A nil value is allowed
// and disables recording.
func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// NewGate builds a gate for the actor described by perms. A nil
// hierarchy or nil perms produces a gate that denies everything.
func NewGate(hierarchy *labdojo.Hierarchy, manageable *labdojo.ManageableRoles, actor *labdojo.UserPermissions, opts ...GateOption) *Gate {
	g := &Gate{
		hierarchy:  hierarchy,
		manageable: make(map[string]bool),
		actorPerms: make(map[string]bool),
	}
	if manageable != nil {
		g.manageableList = append(g.manageableList, manageable.Roles...)
		for _, r := range manageable.Roles {
			g.manageable[r] = true
		}
	}
	if actor != nil {
		g.actorRole = actor.Role
		for _, p := range actor.Permissions {
			g.actorPerms[p] = true
		}
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// RoleLevel returns the hierarchy level of a role, or 0 when the
// hierarchy is unavailable or the role is unknown. Unknown roles are
// the lowest authority, never privileged by default.
func (g *Gate) RoleLevel(role string) int {
	if g.hierarchy == nil {
		return 0
	}
	return g.hierarchy.Levels[role]
}

// RolePermissions returns the explicit permission grants of a role,
// or nil when the hierarchy is unavailable or the role is unknown.
func (g *Gate) RolePermissions(role string) []string {
	if g.hierarchy == nil {
		return nil
	}
	return g.hierarchy.Permissions[role]
}

// IsRoleHigher reports whether role a sits strictly above role b.
func (g *Gate) IsRoleHigher(a, b string) bool {
	return g.RoleLevel(a) > g.RoleLevel(b)
}

// CanManageRole reports whether the actor may assign the target role:
// the actor's level must strictly exceed the target's, and the target
// must appear in the server-computed manageable set.
func (g *Gate) CanManageRole(target string) bool {
	allowed := g.RoleLevel(g.actorRole) > g.RoleLevel(target) && g.manageable[target]
	g.record(allowed)
	return allowed
}

// CanPerformOperation reports whether the actor holds the given
// permission key. Unknown keys are denied.
func (g *Gate) CanPerformOperation(permissionKey string) bool {
	allowed := g.actorPerms[permissionKey]
	g.record(allowed)
	return allowed
}

// AvailableRoles returns the roles the actor may assign. When forRole
// is non-empty and is itself a role the actor cannot manage, the set
// is narrowed to roles the actor can still manage: assigning an
// intermediate role must not launder authority the actor lacks.
func (g *Gate) AvailableRoles(forRole string) []string {
	if g.hierarchy == nil {
		return nil
	}
	available := make([]string, 0, len(g.manageableList))
	narrow := forRole != "" && !g.CanManageRole(forRole)
	for _, role := range g.manageableList {
		if narrow && !g.CanManageRole(role) {
			continue
		}
		available = append(available, role)
	}
	return available
}

// ActorRole returns the role the gate was built for.
func (g *Gate) ActorRole() string { return g.actorRole }

func (g *Gate) record(allowed bool) {
	if g.metrics != nil {
		g.metrics.RecordAuthzDecision(allowed)
	}
}
