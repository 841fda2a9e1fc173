package pgrepos

import (
	"context"
	"database/sql"
	"reflect"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unihub/campus/core/announce"
	"github.com/unihub/campus/core/user"
)

// pollInterval approximates the live-subscription mode on a store without
// native change feeds.
var pollInterval = 5 * time.Second

func pqStringArray(ss []string) pq.StringArray {
	return pq.StringArray(ss)
}

type announcementRepository struct {
	db *sqlx.DB
}

func NewAnnouncementRepository(db *sqlx.DB) announce.Repository {
	return &announcementRepository{db: db}
}

// annRow flattens the audience spec into array columns.
type annRow struct {
	ID                  string         `db:"id"`
	Title               string         `db:"title"`
	Body                string         `db:"body"`
	PostedBy            string         `db:"posted_by"`
	PostedAt            time.Time      `db:"posted_at"`
	Type                string         `db:"type"`
	Priority            string         `db:"priority"`
	Attachments         pq.StringArray `db:"attachments"`
	AudienceRoles       pq.StringArray `db:"audience_roles"`
	AudienceDepartments pq.StringArray `db:"audience_departments"`
	AudienceBatch       null.String    `db:"audience_batch"`
	ExpiresAt           null.Time      `db:"expires_at"`
}

func toRow(ann announce.Announcement) annRow {
	roles := make([]string, 0, len(ann.Audience.Roles))
	for _, r := range ann.Audience.Roles {
		roles = append(roles, r.String())
	}
	return annRow{
		ID:                  ann.ID,
		Title:               ann.Title,
		Body:                ann.Body,
		PostedBy:            ann.PostedBy,
		PostedAt:            ann.PostedAt,
		Type:                string(ann.Type),
		Priority:            string(ann.Priority),
		Attachments:         pqStringArray(ann.Attachments),
		AudienceRoles:       pqStringArray(roles),
		AudienceDepartments: pqStringArray(ann.Audience.Departments),
		AudienceBatch:       null.NewString(ann.Audience.Batch, ann.Audience.Batch != ""),
		ExpiresAt:           ann.ExpiresAt,
	}
}

func (row annRow) toAnnouncement() announce.Announcement {
	roles := make([]user.Role, 0, len(row.AudienceRoles))
	for _, r := range row.AudienceRoles {
		roles = append(roles, user.Role(r))
	}
	return announce.Announcement{
		ID:          row.ID,
		Title:       row.Title,
		Body:        row.Body,
		PostedBy:    row.PostedBy,
		PostedAt:    row.PostedAt,
		Type:        announce.Type(row.Type),
		Priority:    announce.Priority(row.Priority),
		Attachments: row.Attachments,
		Audience: announce.Audience{
			Roles:       roles,
			Departments: row.AudienceDepartments,
			Batch:       row.AudienceBatch.String,
		},
		ExpiresAt: row.ExpiresAt,
	}
}

func (repo *announcementRepository) CreateAnnouncement(ctx context.Context, ann announce.Announcement) (announce.Announcement, error) {
	query := `
		INSERT INTO announcements (id, title, body, posted_by, posted_at, type, priority,
			attachments, audience_roles, audience_departments, audience_batch, expires_at)
		VALUES (:id, :title, :body, :posted_by, :posted_at, :type, :priority,
			:attachments, :audience_roles, :audience_departments, :audience_batch, :expires_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, toRow(ann)); err != nil {
		return announce.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return ann, nil
}

func (repo *announcementRepository) GetAnnouncementByID(ctx context.Context, id string) (announce.Announcement, error) {
	var row annRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM announcements WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return announce.Announcement{}, announce.ErrNotFound
	}
	if err != nil {
		return announce.Announcement{}, errors.Wrap(err, "getting announcement by ID")
	}
	return row.toAnnouncement(), nil
}

func (repo *announcementRepository) QueryAnnouncements(ctx context.Context, filter announce.QueryFilter) ([]announce.Announcement, error) {
	query := `SELECT * FROM announcements`
	args := make([]interface{}, 0, 2)

	// role membership and non-expiry are pushed into the query
	where := ""
	if filter.Role != "" {
		args = append(args, filter.Role.String())
		where = ` WHERE $1 = ANY(audience_roles)`
	}
	if !filter.NotExpiredAt.IsZero() {
		args = append(args, filter.NotExpiredAt)
		if where == "" {
			where = ` WHERE (expires_at IS NULL OR expires_at > $1)`
		} else {
			where += ` AND (expires_at IS NULL OR expires_at > $2)`
		}
	}
	query += where + ` ORDER BY posted_at DESC, id`

	rows := make([]annRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	anns := make([]announce.Announcement, 0, len(rows))
	for _, row := range rows {
		anns = append(anns, row.toAnnouncement())
	}
	return anns, nil
}

func (repo *announcementRepository) DeleteAnnouncementsByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = ANY($1)`, pqStringArray(ids))
	return errors.Wrap(err, "deleting announcements")
}

// SubscribeAnnouncements polls the collection and delivers a fresh ordered
// snapshot whenever it changes, and once on subscription. Unsubscribe blocks
// until the poller has stopped: no callback fires after it returns.
func (repo *announcementRepository) SubscribeAnnouncements(filter announce.QueryFilter, fn func([]announce.Announcement, error)) (unsubscribe func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		var last []announce.Announcement
		var delivered bool
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			anns, err := repo.QueryAnnouncements(context.Background(), filter)
			select {
			case <-done:
				return
			default:
			}
			if err != nil {
				fn(nil, err)
			} else if !delivered || !reflect.DeepEqual(anns, last) {
				last = anns
				delivered = true
				fn(anns, nil)
			}

			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
