// Package inmemdb holds in-memory repositories, used by tests and local runs without PostgreSQL.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
)

var newID = uuid.NewString // mockable

type (
	DB struct {
		user     *userTable
		document *documentTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	documentTable struct {
		table   map[string]*document.Record
		history map[string][]document.Transition // {recordID: transitions}
		mutex   sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		document: &documentTable{table: make(map[string]*document.Record), history: make(map[string][]document.Transition)},
	}
}
