package roles

import (
	"context"
	"log/slog"
)

// RepositoryPort defines data access methods for role assignments.
type RepositoryPort interface {
	RolesFor(ctx context.Context, userID string) ([]string, error)
	Grant(ctx context.Context, userID, role string) error
	Revoke(ctx context.Context, userID, role string) error
	ListAssignments(ctx context.Context) ([]Assignment, error)
}

// Notifier tells a user's open sessions that their identity record changed
// so they re-resolve roles.
type Notifier interface {
	NotifyUserUpdated(ctx context.Context, userID string) error
}

// Service handles role business logic.
type Service struct {
	repo     RepositoryPort
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds Service instance. notifier may be nil.
func NewService(repo RepositoryPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// RolesFor returns the roles assigned to userID. The result is never
// cached.
func (s *Service) RolesFor(ctx context.Context, userID string) ([]string, error) {
	return s.repo.RolesFor(ctx, userID)
}

// ListAssignments returns every role assignment.
func (s *Service) ListAssignments(ctx context.Context) ([]Assignment, error) {
	return s.repo.ListAssignments(ctx)
}

// SetRole makes userID an administrator (RoleAdmin) or demotes them to
// the default role (RoleUser). Granting twice is harmless.
func (s *Service) SetRole(ctx context.Context, userID, role string) error {
	role, err := ParseRole(role)
	if err != nil {
		return err
	}
	if role == RoleAdmin {
		err = s.repo.Grant(ctx, userID, RoleAdmin)
	} else {
		err = s.repo.Revoke(ctx, userID, RoleAdmin)
	}
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyUserUpdated(ctx, userID); err != nil {
			s.logger.Warn("notify role change", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return nil
}
