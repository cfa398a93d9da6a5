package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnexa/learnexa/internal/profiles"
	"github.com/learnexa/learnexa/internal/roles"
	"github.com/learnexa/learnexa/internal/shared"
)

type stubProfiles struct {
	list []profiles.Profile
	err  error
}

func (s *stubProfiles) List(ctx context.Context) ([]profiles.Profile, error) {
	return s.list, s.err
}

type stubRoles struct {
	assignments []roles.Assignment
	err         error
	setErr      error
	set         map[string]string
}

func (s *stubRoles) ListAssignments(ctx context.Context) ([]roles.Assignment, error) {
	return s.assignments, s.err
}

func (s *stubRoles) SetRole(ctx context.Context, userID, role string) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.set == nil {
		s.set = make(map[string]string)
	}
	s.set[userID] = role
	return nil
}

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixtures() (*stubProfiles, *stubRoles) {
	p := &stubProfiles{list: []profiles.Profile{
		{UserID: "u1", FullName: "Ahmed Nour", Phone: "+201014812328", CreatedAt: now.AddDate(0, -2, 0)},
		{UserID: "u3", FullName: "Sara Ali", Phone: "01099999999", CreatedAt: now.AddDate(0, 0, -1)},
		{UserID: "u2", FullName: "منى حسن", CreatedAt: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}}
	r := &stubRoles{assignments: []roles.Assignment{
		{UserID: "u1", Role: roles.RoleAdmin},
		{UserID: "u1", Role: roles.RoleAdmin},
		{UserID: "u2", Role: roles.RoleUser},
	}}
	return p, r
}

func TestOverviewJoinsRolesNewestFirst(t *testing.T) {
	p, r := fixtures()
	svc := NewService(p, r)
	svc.now = func() time.Time { return now }

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview.Users, 3)
	assert.Equal(t, "u3", overview.Users[0].Profile.UserID)
	assert.Equal(t, "u2", overview.Users[1].Profile.UserID)
	assert.Equal(t, "u1", overview.Users[2].Profile.UserID)
	assert.Equal(t, roles.RoleUser, overview.Users[1].Role)
	assert.True(t, overview.Users[2].IsAdmin())
	assert.Equal(t, Stats{Total: 3, Admins: 1, NewThisMonth: 2}, overview.Stats)
}

func TestOverviewFailureMapsToLoadUsers(t *testing.T) {
	p, r := fixtures()
	r.err = errors.New("relation does not exist")
	_, err := NewService(p, r).Overview(context.Background())
	require.Error(t, err)
	assert.Equal(t, "errors.loadUsers", shared.MessageKey(err))

	p.err = errors.New("timeout")
	r.err = nil
	_, err = NewService(p, r).Overview(context.Background())
	assert.Equal(t, "errors.loadUsers", shared.MessageKey(err))
}

func TestFilter(t *testing.T) {
	p, r := fixtures()
	svc := NewService(p, r)
	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)

	assert.Len(t, Filter(overview.Users, ""), 3)
	assert.Len(t, Filter(overview.Users, "  "), 3)

	byName := Filter(overview.Users, "ahmed")
	require.Len(t, byName, 1)
	assert.Equal(t, "u1", byName[0].Profile.UserID)

	byPhone := Filter(overview.Users, "0109")
	require.Len(t, byPhone, 1)
	assert.Equal(t, "u3", byPhone[0].Profile.UserID)

	assert.Len(t, Filter(overview.Users, "منى"), 1)
	assert.Empty(t, Filter(overview.Users, "nobody"))
}

func TestSetRole(t *testing.T) {
	p, r := fixtures()
	svc := NewService(p, r)
	ctx := context.Background()

	require.NoError(t, svc.SetRole(ctx, "u2", "admin"))
	assert.Equal(t, "admin", r.set["u2"])

	err := svc.SetRole(ctx, "u2", "superuser")
	assert.Equal(t, "validation.role", shared.MessageKey(err))

	r.setErr = errors.New("deadlock detected")
	err = svc.SetRole(ctx, "u2", "user")
	assert.Equal(t, "errors.updateRole", shared.MessageKey(err))
	assert.NotContains(t, shared.MessageKey(err), "deadlock")
}
