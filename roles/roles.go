// Package roles provides the role hierarchy model, the authorization
// gate, and the role service client.
//
// The hierarchy snapshot is fetched once and cached process-wide;
// concurrent first fetches are collapsed with singleflight. All gate
// decisions fail closed: unknown roles sit at level 0 and unknown
// permission keys are denied.
package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/metrics"
	"golang.org/x/sync/singleflight"
)

// Backend defines the contract for pluggable role service backends.
type Backend interface {
	// FetchHierarchy returns the full role hierarchy snapshot.
	FetchHierarchy(ctx context.Context) (*labdojo.Hierarchy, error)

	// FetchManageableRoles returns the roles the current actor may
	// assign, as computed by the server.
	FetchManageableRoles(ctx context.Context) (*labdojo.ManageableRoles, error)

	// FetchUserPermissions returns the resolved permissions for a user.
	FetchUserPermissions(ctx context.Context, userID string) (*labdojo.UserPermissions, error)

	// SubmitRoleChange assigns a new role to the user.
	SubmitRoleChange(ctx context.Context, userID, role, reason string) error
}

// Service implements labdojo.RoleService with a cached hierarchy.
type Service struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	hierarchy  *labdojo.Hierarchy
	manageable *labdojo.ManageableRoles

	sf singleflight.Group
}

// compile-time check
var _ labdojo.RoleService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a role service with the given backend.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Hierarchy returns the cached hierarchy snapshot, fetching it from
// the backend on first use. Concurrent callers share one fetch.
func (s *Service) Hierarchy(ctx context.Context) (*labdojo.Hierarchy, error) {
	s.mu.RLock()
	cached := s.hierarchy
	s.mu.RUnlock()
	if cached != nil {
		if s.metrics != nil {
			s.metrics.RecordHierarchyFetch("hit")
		}
		return cached, nil
	}

	result, err, _ := s.sf.Do("hierarchy", func() (interface{}, error) {
		h, err := s.backend.FetchHierarchy(ctx)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, labdojo.ErrNoHierarchy
		}
		s.mu.Lock()
		s.hierarchy = h
		s.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("labdojo/roles: fetch hierarchy: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordHierarchyFetch("miss")
	}
	return result.(*labdojo.Hierarchy), nil
}

// ManageableRoles returns the server-computed manageable-role set,
// cached alongside the hierarchy.
func (s *Service) ManageableRoles(ctx context.Context) (*labdojo.ManageableRoles, error) {
	s.mu.RLock()
	cached := s.manageable
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	result, err, _ := s.sf.Do("manageable", func() (interface{}, error) {
		m, err := s.backend.FetchManageableRoles(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.manageable = m
		s.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("labdojo/roles: fetch manageable roles: %w", err)
	}
	return result.(*labdojo.ManageableRoles), nil
}

// UserPermissions returns the resolved permissions for one user.
func (s *Service) UserPermissions(ctx context.Context, userID string) (*labdojo.UserPermissions, error) {
	if userID == "" {
		return nil, fmt.Errorf("labdojo/roles: userID cannot be empty")
	}
	perms, err := s.backend.FetchUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("labdojo/roles: %w", err)
	}
	return perms, nil
}

// ChangeUserRole assigns a new role to the user.
func (s *Service) ChangeUserRole(ctx context.Context, userID, role, reason string) error {
	if userID == "" {
		return fmt.Errorf("labdojo/roles: userID cannot be empty")
	}
	if role == "" {
		return fmt.Errorf("labdojo/roles: role cannot be empty")
	}
	if err := s.backend.SubmitRoleChange(ctx, userID, role, reason); err != nil {
		return fmt.Errorf("labdojo/roles: change role: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshots so the next call refetches.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.hierarchy = nil
	s.manageable = nil
	s.mu.Unlock()
}

// Gate builds an authorization gate for the given actor from the
// cached hierarchy and manageable-role set.
func (s *Service) Gate(ctx context.Context, actor *labdojo.UserPermissions) (*Gate, error) {
	hierarchy, err := s.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	manageable, err := s.ManageableRoles(ctx)
	if err != nil {
		return nil, err
	}
	return NewGate(hierarchy, manageable, actor, WithGateMetrics(s.metrics)), nil
}
