// Package session keeps track of who is logged in on a client: the durable Store
// holding the session record, and the Context every other component reads from.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/storage/kv"
)

// StoreKey is the kv key holding the session record.
const StoreKey = "auth"

// record is the persisted form of a principal.
type record struct {
	Token string      `json:"token"`
	User  *recordUser `json:"user"`
}

type recordUser struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
	Role  auth.Role `json:"role"`
}

// Store persists the session record in a kv.Store.
type Store struct {
	kv     kv.Store
	logger core.Logger
}

func NewStore(store kv.Store, logger core.Logger) *Store {
	return &Store{kv: store, logger: logger}
}

// Load returns the saved principal, or nil when there is none. An unreadable or
// incomplete record is removed; a failing store is logged and reads as logged out.
func (s *Store) Load(ctx context.Context) *auth.Principal {
	data, err := s.kv.Get(ctx, StoreKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn(fmt.Sprintf("loading session: %v", err), err)
		}
		return nil
	}

	var rec record
	if err = json.Unmarshal(data, &rec); err != nil {
		s.discard(ctx, "malformed session record", err)
		return nil
	}
	if rec.Token == "" || rec.User == nil || rec.User.ID == "" || !rec.User.Role.Valid() {
		s.discard(ctx, "incomplete session record", nil)
		return nil
	}
	return &auth.Principal{
		ID:    rec.User.ID,
		Email: rec.User.Email,
		Name:  rec.User.Name,
		Role:  rec.User.Role,
		Token: rec.Token,
	}
}

func (s *Store) discard(ctx context.Context, reason string, cause error) {
	if cause != nil {
		s.logger.Warn(reason+": logging out", cause)
	} else {
		s.logger.Warn(reason + ": logging out")
	}
	if err := s.kv.Delete(ctx, StoreKey); err != nil {
		s.logger.Warn(fmt.Sprintf("removing session record: %v", err), err)
	}
}

// Save overwrites the record with p.
func (s *Store) Save(ctx context.Context, p *auth.Principal) error {
	if p == nil {
		return errors.New("saving session: nil principal")
	}
	data, err := json.Marshal(record{
		Token: p.Token,
		User:  &recordUser{ID: p.ID, Email: p.Email, Name: p.Name, Role: p.Role},
	})
	if err != nil {
		return errors.Wrap(err, "encoding session record")
	}
	return errors.Wrap(s.kv.Set(ctx, StoreKey, data), "saving session")
}

func (s *Store) Clear(ctx context.Context) error {
	return errors.Wrap(s.kv.Delete(ctx, StoreKey), "clearing session")
}
