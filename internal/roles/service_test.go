package roles

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu   sync.Mutex
	rows map[string]map[string]time.Time
	err  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[string]map[string]time.Time)}
}

func (m *memoryRepo) RolesFor(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for role := range m.rows[userID] {
		out = append(out, role)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryRepo) Grant(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.rows[userID] == nil {
		m.rows[userID] = make(map[string]time.Time)
	}
	if _, ok := m.rows[userID][role]; !ok {
		m.rows[userID][role] = time.Now()
	}
	return nil
}

func (m *memoryRepo) Revoke(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.rows[userID], role)
	return nil
}

func (m *memoryRepo) ListAssignments(ctx context.Context) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for user, roles := range m.rows {
		for role, at := range roles {
			out = append(out, Assignment{UserID: user, Role: role, CreatedAt: at})
		}
	}
	return out, nil
}

type recordingNotifier struct {
	users []string
	err   error
}

func (n *recordingNotifier) NotifyUserUpdated(ctx context.Context, userID string) error {
	n.users = append(n.users, userID)
	return n.err
}

func TestSetRoleGrantIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetRole(ctx, "u1", "admin"))
	require.NoError(t, svc.SetRole(ctx, "u1", "ADMIN "))

	roles, err := svc.RolesFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin}, roles)
	assignments, err := svc.ListAssignments(ctx)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
	assert.Equal(t, []string{"u1", "u1"}, notifier.users)
}

func TestSetRoleRevokeReflectsOnNextLookup(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetRole(ctx, "u1", RoleAdmin))
	roles, _ := svc.RolesFor(ctx, "u1")
	assert.True(t, HasAdmin(roles))

	require.NoError(t, svc.SetRole(ctx, "u1", RoleUser))
	roles, _ = svc.RolesFor(ctx, "u1")
	assert.False(t, HasAdmin(roles))
	assert.Equal(t, RoleUser, Display(roles))
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil)

	err := svc.SetRole(context.Background(), "u1", "owner")
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Empty(t, notifier.users)
}

func TestSetRoleSurfacesRepositoryFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = errors.New("connection reset")
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil)

	assert.Error(t, svc.SetRole(context.Background(), "u1", RoleAdmin))
	assert.Empty(t, notifier.users)
}

func TestSetRoleIgnoresNotifierFailure(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("redis down")}
	svc := NewService(newMemoryRepo(), notifier, nil)
	assert.NoError(t, svc.SetRole(context.Background(), "u1", RoleAdmin))
}
