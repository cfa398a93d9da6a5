package profiles

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/learnexa/learnexa/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	Create(ctx context.Context, userID, fullName, phone string) error
	Update(ctx context.Context, userID string, in UpdateInput) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
}

// Service handles profile business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: shared.NewValidator()}
}

var fieldKeys = map[string]string{
	"FullName": "validation.fullName",
	"Phone":    "validation.phone",
	"Bio":      "validation.bio",
}

// Get returns the profile of userID. A missing row yields ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, err
		}
		return Profile{}, &shared.DataAccessError{Op: "profiles.get", Key: "errors.loadProfile", Err: err}
	}
	return p, nil
}

// Update validates in and writes it as a single statement. On any failure
// the stored row is unchanged.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (Profile, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Bio = strings.TrimSpace(in.Bio)
	if err := shared.ValidateStruct(s.validate, in, fieldKeys); err != nil {
		return Profile{}, err
	}
	p, err := s.repo.Update(ctx, userID, in)
	if err != nil {
		return Profile{}, &shared.DataAccessError{Op: "profiles.update", Key: "errors.saveProfile", Err: err}
	}
	return p, nil
}

// Provision creates the profile row for a newly registered user. Running
// it twice is harmless.
func (s *Service) Provision(ctx context.Context, userID, fullName, phone string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("profiles: user id required")
	}
	if err := s.repo.Create(ctx, userID, strings.TrimSpace(fullName), strings.TrimSpace(phone)); err != nil {
		return &shared.DataAccessError{Op: "profiles.create", Err: err}
	}
	return nil
}

// List returns every profile, newest first.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, &shared.DataAccessError{Op: "profiles.list", Key: "errors.loadUsers", Err: err}
	}
	return list, nil
}
