package announce

import (
	"time"

	"github.com/unihub/campus/core"
)

var nowFunc = time.Now // mockable

// Visible applies the audience predicate for one item:
//
//  1. the viewer's role must be in the audience roles
//  2. a present, non-empty departments list must contain the viewer's
//  3. a present batch must equal the viewer's
//  4. a present expiry must lie after now; absent expiry always passes
func Visible(ann Announcement, v Viewer, now time.Time) bool {
	var roleMatch bool
	for _, r := range ann.Audience.Roles {
		if r == v.Role {
			roleMatch = true
			break
		}
	}
	if !roleMatch {
		return false
	}

	if len(ann.Audience.Departments) > 0 {
		var deptMatch bool
		for _, d := range ann.Audience.Departments {
			if d == v.Department {
				deptMatch = true
				break
			}
		}
		if !deptMatch {
			return false
		}
	}

	if ann.Audience.Batch != "" && ann.Audience.Batch != v.Batch {
		return false
	}

	if ann.ExpiresAt.Valid && !now.Before(ann.ExpiresAt.Time) {
		return false
	}
	return true
}

// FilterVisible computes the ordered subset of items the viewer is entitled
// to see. Ordering is preserved from the source feed; the filter never
// re-sorts. Pure and idempotent for a fixed now.
func FilterVisible(items []Announcement, v Viewer, now time.Time) []Announcement {
	visible := make([]Announcement, 0, len(items))
	for _, ann := range items {
		if Visible(ann, v, now) {
			visible = append(visible, ann)
		}
	}
	return visible
}

// SubscribeVisible subscribes fn to the viewer's entitled slice of the live
// feed. Role membership and non-expiry are pushed into the store query;
// department, batch and the precise expiry comparison are re-evaluated
// locally against each delivered snapshot, so behavior does not depend on
// the store's query capability.
//
// The expiry cut is taken once per delivered snapshot, not on a wall-clock
// timer: an item crossing its expiry between updates stays visible until the
// next update arrives.
//
// A permission failure from the feed degrades to an empty result set; any
// other delivery error is logged and the previous result set is retained.
func SubscribeVisible(feed Repository, logger core.Logger, v Viewer, fn func([]Announcement)) (unsubscribe func()) {
	filter := QueryFilter{Role: v.Role, NotExpiredAt: nowFunc()}

	var last []Announcement
	return feed.SubscribeAnnouncements(filter, func(items []Announcement, err error) {
		if err != nil {
			if core.IsPermissionDenied(err) {
				last = []Announcement{}
				fn(last)
				return
			}
			logger.Error("announcement feed delivery failed", err)
			fn(last)
			return
		}
		last = FilterVisible(items, v, nowFunc())
		fn(last)
	})
}
