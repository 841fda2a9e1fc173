package announce

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/session"
	"github.com/unihub/campus/core/user"
)

type (
	Type     string
	Priority string
)

const (
	TypeGeneral  Type = "general"
	TypeAcademic Type = "academic"
	TypeEvent    Type = "event"

	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Audience is the predicate attached to an announcement describing which
// viewers may see it. Roles is mandatory and non-empty; Departments and
// Batch narrow further when present.
type Audience struct {
	Roles       []user.Role `json:"roles" validate:"required,min=1,dive,role"`
	Departments []string    `json:"departments,omitempty"`
	Batch       string      `json:"batch,omitempty"`
}

// Announcement is a content item on the portal feed. Read-only to the
// filtering core; authored via the Service.
type Announcement struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title" validate:"required"`
	Body        string    `json:"body" db:"body" validate:"required"`
	PostedBy    string    `json:"posted_by" db:"posted_by"`
	PostedAt    time.Time `json:"posted_at" db:"posted_at"` // UTC
	Type        Type      `json:"type" db:"type"`
	Priority    Priority  `json:"priority" db:"priority"`
	Attachments []string  `json:"attachments,omitempty" db:"-"`
	Audience    Audience  `json:"audience" db:"-"`
	ExpiresAt   null.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// Viewer is the subset of a profile used as filter input.
type Viewer struct {
	Role       user.Role
	Department string
	Batch      string
}

// ViewerFromProfile builds filter input from a profile record.
func ViewerFromProfile(usr user.User) Viewer {
	return Viewer{
		Role:       usr.Role,
		Department: usr.Department.String,
		Batch:      usr.Batch.String,
	}
}

// ViewerFromSession builds filter input from a session snapshot plus the
// profile attributes the session does not carry.
func ViewerFromSession(s session.Session, department, batch string) Viewer {
	return Viewer{Role: s.Role, Department: department, Batch: batch}
}

// NewAnnouncement contains information needed to post an announcement.
type NewAnnouncement struct {
	Title       string   `json:"title" validate:"required"`
	Body        string   `json:"body" validate:"required"`
	Type        Type     `json:"type"`
	Priority    Priority `json:"priority"`
	Attachments []string `json:"attachments"`
	Audience    Audience `json:"audience"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Body = core.CleanString(na.Body)
	if na.Type == "" {
		na.Type = TypeGeneral
	}
	if na.Priority == "" {
		na.Priority = PriorityMedium
	}
	return validate.Struct(na)
}

type (
	// QueryFilter narrows the feed server-side where the store supports it.
	// Role restricts to items whose audience roles contain it; NotExpiredAt
	// drops items already expired at that instant.
	QueryFilter struct {
		Role         user.Role
		NotExpiredAt time.Time
	}

	// Repository is the document-store surface for the announcement
	// collection: point CRUD, predicate queries with compound ordering, and
	// a live-subscription mode delivering full ordered snapshots
	// (postedAt descending).
	Repository interface {
		CreateAnnouncement(ctx context.Context, ann Announcement) (Announcement, error)
		GetAnnouncementByID(ctx context.Context, id string) (Announcement, error)
		// QueryAnnouncements returns matches ordered by postedAt descending.
		QueryAnnouncements(ctx context.Context, filter QueryFilter) ([]Announcement, error)
		DeleteAnnouncementsByID(ctx context.Context, ids ...string) error
		// SubscribeAnnouncements delivers an ordered snapshot on every
		// change to the collection, and once on subscription. A delivery
		// error is reported through the same callback with a nil snapshot.
		// The returned function unsubscribes; no callback fires after it
		// returns.
		SubscribeAnnouncements(filter QueryFilter, fn func([]Announcement, error)) (unsubscribe func())
	}
)

func (qf QueryFilter) IsEmpty() bool {
	return qf.Role == "" && qf.NotExpiredAt.IsZero()
}
