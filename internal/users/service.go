package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

// SyncTimeout bounds the sign-in sync call.
const SyncTimeout = 5 * time.Second

var (
	ErrNotConfigured   = errors.New("users service not configured")
	ErrMissingIdentity = errors.New("user id and email are required")
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// UpsertFromAuth stores the signed-in identity. Callers treat failure as
// non-fatal.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) error {
	if s == nil || s.Repo == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return ErrMissingIdentity
	}
	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()
	return s.Repo.Upsert(ctx, user)
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, ErrNotConfigured
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrMissingIdentity
	}
	return s.Repo.GetByID(ctx, userID)
}
