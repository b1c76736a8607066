// Package inmemdb implements the repositories in memory. Used by tests and by the
// "memory" database engine.
package inmemdb

import (
	"sync"

	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
)

type (
	DB struct {
		user    *userTable
		content *contentTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	contentTable struct {
		mutex sync.RWMutex
		pk    int64
		table map[int64]*content.Item
	}
)

func Open() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		content: &contentTable{table: make(map[int64]*content.Item)},
	}
}
