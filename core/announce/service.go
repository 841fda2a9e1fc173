package announce

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrNotFound = errors.New("announcement not found")
)

// Service is the authoring side of the feed.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, postedBy string, na NewAnnouncement) (Announcement, error) {
	ann := Announcement{
		ID:          uuid.New().String(),
		Title:       na.Title,
		Body:        na.Body,
		PostedBy:    postedBy,
		PostedAt:    time.Now().UTC(),
		Type:        na.Type,
		Priority:    na.Priority,
		Attachments: na.Attachments,
		Audience:    na.Audience,
	}
	if na.ExpiresAt != nil {
		ann.ExpiresAt = null.TimeFrom(na.ExpiresAt.UTC())
	}
	return svc.repo.CreateAnnouncement(ctx, ann)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Announcement, error) {
	return svc.repo.GetAnnouncementByID(ctx, id)
}

// QueryAll returns the full feed, newest first.
func (svc *Service) QueryAll(ctx context.Context) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, QueryFilter{})
}

// QueryForViewer narrows server-side on role and expiry, then applies the
// full audience predicate locally.
func (svc *Service) QueryForViewer(ctx context.Context, v Viewer) ([]Announcement, error) {
	now := nowFunc()
	items, err := svc.repo.QueryAnnouncements(ctx, QueryFilter{Role: v.Role, NotExpiredAt: now})
	if err != nil {
		return nil, err
	}
	return FilterVisible(items, v, now), nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteAnnouncementsByID(ctx, ids...)
}
