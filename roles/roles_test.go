package roles

import (
	"context"
	"errors"
	"sync"
	"testing"

	labdojo "github.com/labdojo/labdojo-go"
)

// mockBackend implements Backend for testing
type mockBackend struct {
	mu              sync.Mutex
	hierarchy       *labdojo.Hierarchy
	manageable      *labdojo.ManageableRoles
	perms           map[string]*labdojo.UserPermissions
	hierarchyCalls  int
	manageableCalls int
	roleChanges     []string
	shouldFailFetch bool
}

func (m *mockBackend) FetchHierarchy(ctx context.Context) (*labdojo.Hierarchy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hierarchyCalls++
	if m.shouldFailFetch {
		return nil, errors.New("fetch hierarchy failed")
	}
	return m.hierarchy, nil
}

func (m *mockBackend) FetchManageableRoles(ctx context.Context) (*labdojo.ManageableRoles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manageableCalls++
	if m.shouldFailFetch {
		return nil, errors.New("fetch manageable roles failed")
	}
	return m.manageable, nil
}

func (m *mockBackend) FetchUserPermissions(ctx context.Context, userID string) (*labdojo.UserPermissions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms, ok := m.perms[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return perms, nil
}

func (m *mockBackend) SubmitRoleChange(ctx context.Context, userID, role, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleChanges = append(m.roleChanges, userID+":"+role)
	return nil
}

func testHierarchy() *labdojo.Hierarchy {
	return &labdojo.Hierarchy{
		Levels: map[string]int{
			"student":     1,
			"instructor":  2,
			"admin":       3,
			"super_admin": 4,
		},
		Permissions: map[string][]string{
			"admin":       {"delete_user", "view_users"},
			"super_admin": {"delete_user", "bulk_operations", "view_users"},
		},
	}
}

func TestHierarchy_CachedAfterFirstFetch(t *testing.T) {
	backend := &mockBackend{hierarchy: testHierarchy()}
	svc := New(backend)

	first, err := svc.Hierarchy(context.Background())
	if err != nil {
		t.Fatalf("Hierarchy returned error: %v", err)
	}
	second, err := svc.Hierarchy(context.Background())
	if err != nil {
		t.Fatalf("Hierarchy returned error: %v", err)
	}

	if first != second {
		t.Error("expected the same cached snapshot")
	}
	if backend.hierarchyCalls != 1 {
		t.Errorf("expected 1 backend call, got %d", backend.hierarchyCalls)
	}
}

func TestHierarchy_ConcurrentFetchCollapsed(t *testing.T) {
	backend := &mockBackend{hierarchy: testHierarchy()}
	svc := New(backend)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Hierarchy(context.Background()); err != nil {
				t.Errorf("Hierarchy returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if backend.hierarchyCalls > 1 {
		t.Errorf("concurrent first fetches should collapse, got %d calls", backend.hierarchyCalls)
	}
}

func TestHierarchy_Failed(t *testing.T) {
	backend := &mockBackend{shouldFailFetch: true}
	svc := New(backend)

	_, err := svc.Hierarchy(context.Background())

	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHierarchy_NilSnapshot(t *testing.T) {
	svc := New(&mockBackend{})

	_, err := svc.Hierarchy(context.Background())

	if !errors.Is(err, labdojo.ErrNoHierarchy) {
		t.Fatalf("expected ErrNoHierarchy, got %v", err)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	backend := &mockBackend{hierarchy: testHierarchy(), manageable: &labdojo.ManageableRoles{}}
	svc := New(backend)

	_, _ = svc.Hierarchy(context.Background())
	svc.Invalidate()
	_, _ = svc.Hierarchy(context.Background())

	if backend.hierarchyCalls != 2 {
		t.Errorf("expected refetch after Invalidate, got %d calls", backend.hierarchyCalls)
	}
}

func TestManageableRoles_Cached(t *testing.T) {
	backend := &mockBackend{
		manageable: &labdojo.ManageableRoles{Roles: []string{"student", "instructor"}},
	}
	svc := New(backend)

	first, err := svc.ManageableRoles(context.Background())
	if err != nil {
		t.Fatalf("ManageableRoles returned error: %v", err)
	}
	_, _ = svc.ManageableRoles(context.Background())

	if len(first.Roles) != 2 {
		t.Errorf("expected 2 roles, got %d", len(first.Roles))
	}
	if backend.manageableCalls != 1 {
		t.Errorf("expected 1 backend call, got %d", backend.manageableCalls)
	}
}

func TestUserPermissions_Success(t *testing.T) {
	backend := &mockBackend{
		perms: map[string]*labdojo.UserPermissions{
			"user1": {UserID: "user1", Role: "admin", Permissions: []string{"delete_user"}},
		},
	}
	svc := New(backend)

	perms, err := svc.UserPermissions(context.Background(), "user1")

	if err != nil {
		t.Fatalf("UserPermissions returned error: %v", err)
	}
	if perms.Role != "admin" {
		t.Errorf("expected admin, got %s", perms.Role)
	}
}

func TestUserPermissions_EmptyUserID(t *testing.T) {
	svc := New(&mockBackend{})

	_, err := svc.UserPermissions(context.Background(), "")

	if err == nil {
		t.Fatal("expected error for empty userID")
	}
}

func TestChangeUserRole_Success(t *testing.T) {
	backend := &mockBackend{}
	svc := New(backend)

	err := svc.ChangeUserRole(context.Background(), "user1", "instructor", "promotion")

	if err != nil {
		t.Fatalf("ChangeUserRole returned error: %v", err)
	}
	if len(backend.roleChanges) != 1 || backend.roleChanges[0] != "user1:instructor" {
		t.Errorf("unexpected role changes %v", backend.roleChanges)
	}
}

func TestChangeUserRole_EmptyRole(t *testing.T) {
	svc := New(&mockBackend{})

	err := svc.ChangeUserRole(context.Background(), "user1", "", "reason")

	if err == nil {
		t.Fatal("expected error for empty role")
	}
}

func TestGate_FromService(t *testing.T) {
	backend := &mockBackend{
		hierarchy:  testHierarchy(),
		manageable: &labdojo.ManageableRoles{Roles: []string{"student", "instructor"}},
	}
	svc := New(backend)
	actor := &labdojo.UserPermissions{UserID: "u1", Role: "admin", Permissions: []string{"delete_user"}}

	gate, err := svc.Gate(context.Background(), actor)

	if err != nil {
		t.Fatalf("Gate returned error: %v", err)
	}
	if !gate.CanManageRole("student") {
		t.Error("admin should manage student")
	}
}
