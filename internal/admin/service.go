// Package admin serves the administrator dashboard: user list with roles,
// headline numbers and role changes.
package admin

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/learnexa/learnexa/internal/profiles"
	"github.com/learnexa/learnexa/internal/roles"
	"github.com/learnexa/learnexa/internal/shared"
)

// ProfileLister lists every profile.
type ProfileLister interface {
	List(ctx context.Context) ([]profiles.Profile, error)
}

// RoleManager reads and changes role assignments.
type RoleManager interface {
	ListAssignments(ctx context.Context) ([]roles.Assignment, error)
	SetRole(ctx context.Context, userID, role string) error
}

// UserRow is one line of the user table.
type UserRow struct {
	Profile profiles.Profile
	Role    string
}

// IsAdmin reports whether the row shows an administrator.
func (u UserRow) IsAdmin() bool {
	return u.Role == roles.RoleAdmin
}

// Stats are the dashboard headline numbers.
type Stats struct {
	Total        int
	Admins       int
	NewThisMonth int
}

// Overview is everything the dashboard renders.
type Overview struct {
	Users []UserRow
	Stats Stats
}

// Service assembles dashboard data.
type Service struct {
	profiles ProfileLister
	roles    RoleManager
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(profiles ProfileLister, roles RoleManager) *Service {
	return &Service{profiles: profiles, roles: roles, now: time.Now}
}

// Overview loads profiles and role assignments concurrently and joins
// them, newest profile first.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var (
		list        []profiles.Profile
		assignments []roles.Assignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.profiles.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		assignments, err = s.roles.ListAssignments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, &shared.DataAccessError{Op: "admin.overview", Key: "errors.loadUsers", Err: err}
	}

	byUser := make(map[string][]string, len(assignments))
	for _, a := range assignments {
		byUser[a.UserID] = append(byUser[a.UserID], a.Role)
	}
	users := make([]UserRow, 0, len(list))
	for _, p := range list {
		users = append(users, UserRow{Profile: p, Role: roles.Display(byUser[p.UserID])})
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Profile.CreatedAt.After(users[j].Profile.CreatedAt)
	})
	return Overview{Users: users, Stats: ComputeStats(users, s.now())}, nil
}

// SetRole grants or revokes administrator access for userID.
func (s *Service) SetRole(ctx context.Context, userID, role string) error {
	if _, err := roles.ParseRole(role); err != nil {
		return &shared.ValidationError{Field: "role", Key: "validation.role"}
	}
	if strings.TrimSpace(userID) == "" {
		return &shared.ValidationError{Field: "user", Key: shared.GenericMessageKey}
	}
	if err := s.roles.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, roles.ErrUnknownRole) {
			return &shared.ValidationError{Field: "role", Key: "validation.role"}
		}
		return &shared.DataAccessError{Op: "admin.setRole", Key: "errors.updateRole", Err: err}
	}
	return nil
}

// ComputeStats counts users, administrators and users created in the
// calendar month of now.
func ComputeStats(users []UserRow, now time.Time) Stats {
	stats := Stats{Total: len(users)}
	year, month, _ := now.Date()
	for _, u := range users {
		if u.IsAdmin() {
			stats.Admins++
		}
		created := u.Profile.CreatedAt.In(now.Location())
		if y, m, _ := created.Date(); y == year && m == month {
			stats.NewThisMonth++
		}
	}
	return stats
}

// Filter keeps users whose full name or phone contains query, ignoring
// case. An empty query keeps everyone.
func Filter(users []UserRow, query string) []UserRow {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return users
	}
	out := make([]UserRow, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Profile.FullName), query) || strings.Contains(strings.ToLower(u.Profile.Phone), query) {
			out = append(out, u)
		}
	}
	return out
}
