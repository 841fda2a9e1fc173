package inmemdb

import (
	"context"
	"sort"

	"github.com/unihub/campus/core/announce"
)

type announcementRepository struct {
	db *announcementTable
}

func NewAnnouncementRepository(db *DB) announce.Repository {
	return &announcementRepository{db: db.anns}
}

// query returns matches ordered by postedAt descending (ID as tie-break for
// deterministic snapshots). Callers hold at least a read lock.
func (repo *announcementRepository) query(filter announce.QueryFilter) []announce.Announcement {
	anns := make([]announce.Announcement, 0, len(repo.db.table))
	for _, ann := range repo.db.table {
		if !matches(*ann, filter) {
			continue
		}
		anns = append(anns, *ann)
	}
	sort.Slice(anns, func(i, j int) bool {
		if anns[i].PostedAt.Equal(anns[j].PostedAt) {
			return anns[i].ID < anns[j].ID
		}
		return anns[i].PostedAt.After(anns[j].PostedAt)
	})
	return anns
}

func matches(ann announce.Announcement, filter announce.QueryFilter) bool {
	if filter.Role != "" {
		var found bool
		for _, r := range ann.Audience.Roles {
			if r == filter.Role {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.NotExpiredAt.IsZero() && ann.ExpiresAt.Valid && !filter.NotExpiredAt.Before(ann.ExpiresAt.Time) {
		return false
	}
	return true
}

// notify delivers fresh snapshots to all feed subscribers. Callers hold the
// write lock, so no delivery can race an unsubscribe.
func (repo *announcementRepository) notify() {
	for _, sub := range repo.db.subs {
		sub.fn(repo.query(sub.filter), nil)
	}
}

func (repo *announcementRepository) CreateAnnouncement(ctx context.Context, ann announce.Announcement) (announce.Announcement, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[ann.ID] = &ann
	repo.notify()
	return ann, nil
}

func (repo *announcementRepository) GetAnnouncementByID(ctx context.Context, id string) (announce.Announcement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ann, ok := repo.db.table[id]; ok {
		return *ann, nil
	}
	return announce.Announcement{}, announce.ErrNotFound
}

func (repo *announcementRepository) QueryAnnouncements(ctx context.Context, filter announce.QueryFilter) ([]announce.Announcement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(filter), nil
}

func (repo *announcementRepository) DeleteAnnouncementsByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	repo.notify()
	return nil
}

// SubscribeAnnouncements registers fn for ordered snapshots: once
// immediately, then on every collection change. Callbacks run with the
// table's write lock held, so none fires after unsubscribe returns;
// callbacks must not call back into the repository synchronously.
func (repo *announcementRepository) SubscribeAnnouncements(filter announce.QueryFilter, fn func([]announce.Announcement, error)) (unsubscribe func()) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	id := repo.db.nextSubID
	repo.db.nextSubID++
	repo.db.subs[id] = &feedSub{filter: filter, fn: fn}
	fn(repo.query(filter), nil)

	return func() {
		repo.db.mutex.Lock()
		delete(repo.db.subs, id)
		repo.db.mutex.Unlock()
	}
}
