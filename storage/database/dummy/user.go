package dummydb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func userFields(u user.User) record {
	return record{
		"id":         u.ID,
		"name":       u.Name,
		"username":   u.Username,
		"email":      u.Email,
		"is_active":  u.IsActive,
		"roles":      u.Roles,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
		"last_login": u.LastLogin,
	}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	return repo.db.view(ctx, func(t *tables) error {
		for _, usr := range t.users {
			if core.ContainsString(excludedIDs, usr.ID) {
				continue
			}
			if username != "" && strings.EqualFold(usr.Username, username) {
				return user.ErrUsernameExists
			}
		}
		for _, usr := range t.users {
			if core.ContainsString(excludedIDs, usr.ID) {
				continue
			}
			if email != "" && strings.EqualFold(usr.Email, email) {
				return user.ErrEmailExists
			}
		}
		return nil
	})
}

func (repo *userRepository) Create(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		usr.ID = uuid.New().String()
		if usr.Roles == nil {
			usr.Roles = []string{}
		}
		usr.CreatedAt, usr.UpdatedAt = usr.CreatedAt.UTC(), usr.UpdatedAt.UTC()
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) Get(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var found user.User
	err := repo.db.view(ctx, func(t *tables) error {
		switch {
		case filter.ID != "":
			if usr, ok := t.users[filter.ID]; ok {
				found = usr
				return nil
			}
		case filter.Username != "":
			for _, usr := range t.users {
				if strings.EqualFold(usr.Username, filter.Username) {
					found = usr
					return nil
				}
			}
		case filter.Email != "":
			for _, usr := range t.users {
				if strings.EqualFold(usr.Email, filter.Email) {
					found = usr
					return nil
				}
			}
		case filter.UsernameOrEmail != "":
			for _, usr := range t.users {
				if strings.EqualFold(usr.Username, filter.UsernameOrEmail) || strings.EqualFold(usr.Email, filter.UsernameOrEmail) {
					found = usr
					return nil
				}
			}
		}
		return user.ErrNotFound
	})
	return found, err
}

func (repo *userRepository) Query(ctx context.Context, q core.Query) (users []user.User, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		users, total, err = run(values(t.users), userFields, q)
		return err
	})
	return users, total, err
}

func (repo *userRepository) Update(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) SetActive(ctx context.Context, ids []string, active bool) (int, error) {
	var n int
	err := repo.db.view(ctx, func(t *tables) error {
		for _, id := range ids {
			if usr, ok := t.users[id]; ok {
				usr.IsActive = active
				usr.UpdatedAt = time.Now().UTC()
				t.users[id] = usr
				n++
			}
		}
		return nil
	})
	return n, err
}

// Delete removes the users and clears the references to them.
func (repo *userRepository) Delete(ctx context.Context, ids ...string) (int, error) {
	var n int
	err := repo.db.view(ctx, func(t *tables) error {
		for _, id := range ids {
			if _, ok := t.users[id]; !ok {
				continue
			}
			delete(t.users, id)
			n++

			for k, s := range t.sessions {
				if s.TeacherID == id {
					s.TeacherID = ""
					t.sessions[k] = s
				}
			}
			for k, p := range t.parents {
				if p.UserID == id {
					p.UserID = ""
					t.parents[k] = p
				}
			}
			for k, a := range t.attendances {
				if a.RecordedBy == id {
					a.RecordedBy = ""
					t.attendances[k] = a
				}
			}
			for k, p := range t.payments {
				if p.RecordedBy == id {
					p.RecordedBy = ""
					t.payments[k] = p
				}
			}
			for i := range t.activityLogs {
				if t.activityLogs[i].ActorID == id {
					t.activityLogs[i].ActorID = ""
				}
			}
		}
		return nil
	})
	return n, err
}
