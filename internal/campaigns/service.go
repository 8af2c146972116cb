package campaigns

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"applypilot-backend/internal/dispatch"
	"applypilot-backend/internal/shared/telemetry"
)

var ErrMissingUser = errors.New("user id is required")

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Record stores a history row for a finished batch. Errors are logged and
// returned, but callers never let them change the dispatch result.
func (s *Service) Record(ctx context.Context, userID, resumeName string, sum dispatch.Summary) (Campaign, error) {
	c := Campaign{
		ID:         uuid.NewString(),
		UserID:     userID,
		Total:      sum.Total,
		Sent:       sum.Sent,
		Failed:     sum.Failed,
		ResumeName: resumeName,
		StartedAt:  sum.StartedAt,
		FinishedAt: sum.FinishedAt,
	}
	if strings.TrimSpace(userID) == "" {
		return Campaign{}, ErrMissingUser
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		telemetry.Error("campaigns.record_failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return Campaign{}, err
	}
	return c, nil
}

// List returns the newest campaigns first. limit is clamped to MaxList.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Campaign, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	if limit <= 0 || limit > MaxList {
		limit = MaxList
	}
	out, err := s.Repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Campaign{}
	}
	return out, nil
}
