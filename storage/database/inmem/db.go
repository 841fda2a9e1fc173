// Package inmemdb is an in-memory document store used for local development
// and tests. It supports the same contract as the SQL-backed store, plus the
// live-subscription mode the announcement feed relies on.
package inmemdb

import (
	"sync"

	"github.com/unihub/campus/core/announce"
	"github.com/unihub/campus/core/user"
)

type DB struct {
	users *userTable
	anns  *announcementTable
}

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

type announcementTable struct {
	mutex     sync.RWMutex
	table     map[string]*announce.Announcement
	subs      map[int]*feedSub
	nextSubID int
}

type feedSub struct {
	filter announce.QueryFilter
	fn     func([]announce.Announcement, error)
}

func Open() (*DB, error) {
	return &DB{
		users: &userTable{table: make(map[string]*user.User)},
		anns: &announcementTable{
			table: make(map[string]*announce.Announcement),
			subs:  make(map[int]*feedSub),
		},
	}, nil
}

func (db *DB) Close() error { return nil }
