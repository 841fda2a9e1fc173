package inmemdb

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/unihub/campus/core/announce"
	"github.com/unihub/campus/core/user"
)

var annNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newAnn(id string, postedAt time.Time, roles ...user.Role) announce.Announcement {
	return announce.Announcement{
		ID:       id,
		Title:    "title " + id,
		Body:     "body " + id,
		PostedBy: "admin-1",
		PostedAt: postedAt,
		Type:     announce.TypeGeneral,
		Priority: announce.PriorityMedium,
		Audience: announce.Audience{Roles: roles},
	}
}

func annIDs(items []announce.Announcement) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.ID
	}
	return out
}

func TestAnnouncementRepository_Query(t *testing.T) {
	db, _ := Open()
	repo := NewAnnouncementRepository(db)
	ctx := context.Background()

	oldest := newAnn("a", annNow.Add(-2*time.Hour), user.RoleStudent)
	middle := newAnn("b", annNow.Add(-time.Hour), user.RoleStudent, user.RoleFaculty)
	newest := newAnn("c", annNow, user.RoleFaculty)
	expired := newAnn("d", annNow.Add(-30*time.Minute), user.RoleStudent)
	expired.ExpiresAt = null.TimeFrom(annNow.Add(-time.Minute))

	for _, ann := range []announce.Announcement{oldest, middle, newest, expired} {
		if _, err := repo.CreateAnnouncement(ctx, ann); err != nil {
			t.Fatalf("CreateAnnouncement(%s) error = %v", ann.ID, err)
		}
	}

	t.Run("empty filter returns everything newest first", func(t *testing.T) {
		got, err := repo.QueryAnnouncements(ctx, announce.QueryFilter{})
		if err != nil {
			t.Fatalf("QueryAnnouncements() error = %v", err)
		}
		if want := []string{"c", "d", "b", "a"}; !reflect.DeepEqual(annIDs(got), want) {
			t.Errorf("QueryAnnouncements() = %v, want %v", annIDs(got), want)
		}
	})

	t.Run("role filter restricts to audience members", func(t *testing.T) {
		got, err := repo.QueryAnnouncements(ctx, announce.QueryFilter{Role: user.RoleFaculty})
		if err != nil {
			t.Fatalf("QueryAnnouncements() error = %v", err)
		}
		if want := []string{"c", "b"}; !reflect.DeepEqual(annIDs(got), want) {
			t.Errorf("QueryAnnouncements() = %v, want %v", annIDs(got), want)
		}
	})

	t.Run("expiry cut drops expired items", func(t *testing.T) {
		got, err := repo.QueryAnnouncements(ctx, announce.QueryFilter{Role: user.RoleStudent, NotExpiredAt: annNow})
		if err != nil {
			t.Fatalf("QueryAnnouncements() error = %v", err)
		}
		if want := []string{"b", "a"}; !reflect.DeepEqual(annIDs(got), want) {
			t.Errorf("QueryAnnouncements() = %v, want %v", annIDs(got), want)
		}
	})

	t.Run("postedAt ties break on ID", func(t *testing.T) {
		db, _ := Open()
		repo := NewAnnouncementRepository(db)
		for _, id := range []string{"z", "x", "y"} {
			if _, err := repo.CreateAnnouncement(ctx, newAnn(id, annNow, user.RoleStudent)); err != nil {
				t.Fatalf("CreateAnnouncement(%s) error = %v", id, err)
			}
		}
		got, _ := repo.QueryAnnouncements(ctx, announce.QueryFilter{})
		if want := []string{"x", "y", "z"}; !reflect.DeepEqual(annIDs(got), want) {
			t.Errorf("QueryAnnouncements() = %v, want %v", annIDs(got), want)
		}
	})
}

func TestAnnouncementRepository_GetDelete(t *testing.T) {
	db, _ := Open()
	repo := NewAnnouncementRepository(db)
	ctx := context.Background()

	ann := newAnn("a", annNow, user.RoleStudent)
	if _, err := repo.CreateAnnouncement(ctx, ann); err != nil {
		t.Fatalf("CreateAnnouncement() error = %v", err)
	}

	got, err := repo.GetAnnouncementByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetAnnouncementByID() error = %v", err)
	}
	if got.ID != "a" || got.Title != ann.Title {
		t.Errorf("GetAnnouncementByID() = %+v, want %+v", got, ann)
	}

	if err := repo.DeleteAnnouncementsByID(ctx, "a"); err != nil {
		t.Fatalf("DeleteAnnouncementsByID() error = %v", err)
	}
	if _, err := repo.GetAnnouncementByID(ctx, "a"); err != announce.ErrNotFound {
		t.Errorf("GetAnnouncementByID() after delete error = %v, want %v", err, announce.ErrNotFound)
	}
}

func TestAnnouncementRepository_Subscribe(t *testing.T) {
	db, _ := Open()
	repo := NewAnnouncementRepository(db)
	ctx := context.Background()

	first := newAnn("a", annNow.Add(-time.Hour), user.RoleStudent)
	if _, err := repo.CreateAnnouncement(ctx, first); err != nil {
		t.Fatalf("CreateAnnouncement() error = %v", err)
	}

	var snapshots [][]string
	unsubscribe := repo.SubscribeAnnouncements(announce.QueryFilter{Role: user.RoleStudent},
		func(items []announce.Announcement, err error) {
			if err != nil {
				t.Errorf("delivery error = %v", err)
			}
			snapshots = append(snapshots, annIDs(items))
		})

	// initial snapshot
	if len(snapshots) != 1 || !reflect.DeepEqual(snapshots[0], []string{"a"}) {
		t.Fatalf("initial snapshot = %v, want [[a]]", snapshots)
	}

	// creation delivers a fresh ordered snapshot
	if _, err := repo.CreateAnnouncement(ctx, newAnn("b", annNow, user.RoleStudent)); err != nil {
		t.Fatalf("CreateAnnouncement() error = %v", err)
	}
	if len(snapshots) != 2 || !reflect.DeepEqual(snapshots[1], []string{"b", "a"}) {
		t.Fatalf("snapshot after create = %v, want [b a]", snapshots)
	}

	// items outside the subscription filter still trigger a delivery
	if _, err := repo.CreateAnnouncement(ctx, newAnn("f", annNow, user.RoleFaculty)); err != nil {
		t.Fatalf("CreateAnnouncement() error = %v", err)
	}
	if len(snapshots) != 3 || !reflect.DeepEqual(snapshots[2], []string{"b", "a"}) {
		t.Fatalf("snapshot after off-filter create = %v, want [b a]", snapshots)
	}

	// deletion delivers too
	if err := repo.DeleteAnnouncementsByID(ctx, "a"); err != nil {
		t.Fatalf("DeleteAnnouncementsByID() error = %v", err)
	}
	if len(snapshots) != 4 || !reflect.DeepEqual(snapshots[3], []string{"b"}) {
		t.Fatalf("snapshot after delete = %v, want [b]", snapshots)
	}

	// no delivery after unsubscribe returns
	unsubscribe()
	if _, err := repo.CreateAnnouncement(ctx, newAnn("c", annNow, user.RoleStudent)); err != nil {
		t.Fatalf("CreateAnnouncement() error = %v", err)
	}
	if len(snapshots) != 4 {
		t.Errorf("snapshots after unsubscribe = %d, want 4", len(snapshots))
	}
}
