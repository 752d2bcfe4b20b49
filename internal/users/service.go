package users

import (
	"context"
	"errors"
	"strings"
)

var errNotConfigured = errors.New("users service not configured")

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, user User) error {
	if s == nil || s.Repo == nil {
		return errNotConfigured
	}
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return errors.New("user id and email are required")
	}
	user.Email = emailKey(user.Email)
	return s.Repo.Create(ctx, user)
}

// UpsertFromAuth persists an OAuth identity so history and credits stay attached to one account.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return User{}, errors.New("user id and email are required")
	}
	return s.Repo.Upsert(ctx, user)
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	return s.Repo.GetByEmail(ctx, email)
}
