package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const usersTable = "users"

var userColumns = qualified(usersTable,
	"name", "username", "email", "is_active", "roles", "created_at", "updated_at", "last_login")

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	PasswordHash []byte         `db:"password_hash"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		PasswordHash: usr.PasswordHash,
		IsActive:     usr.IsActive,
		Roles:        pq.StringArray(usr.Roles),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		Roles:        roles,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{base{db: db}}
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	check := func(col, value string, errExists error) error {
		if value == "" {
			return nil
		}
		cond := sq.And{sq.Expr("lower("+col+") = lower(?)", value)}
		if len(excludedIDs) > 0 {
			cond = append(cond, sq.NotEq{"id": excludedIDs})
		}
		found, err := repo.exists(ctx, usersTable, cond)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if found {
			return errExists
		}
		return nil
	}
	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo userRepository) Create(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	_, err := repo.run(ctx, psql.Insert(usersTable).
		Columns("id", "name", "username", "email", "password_hash", "is_active", "roles", "created_at", "updated_at", "last_login").
		Values(row.ID, row.Name, row.Username, row.Email, row.PasswordHash, row.IsActive, row.Roles, row.CreatedAt, row.UpdatedAt, row.LastLogin))
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo userRepository) Get(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var cond sq.Sqlizer
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond = sq.Eq{"id": filter.ID}
	case filter.Username != "":
		cond = sq.Expr("lower(username) = ?", strings.ToLower(filter.Username))
	case filter.Email != "":
		cond = sq.Expr("lower(email) = ?", strings.ToLower(filter.Email))
	case filter.UsernameOrEmail != "":
		v := strings.ToLower(filter.UsernameOrEmail)
		cond = sq.Or{sq.Expr("lower(username) = ?", v), sq.Expr("lower(email) = ?", v)}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, &row, psql.Select("*").From(usersTable).Where(cond).Limit(1)); err != nil {
		return user.User{}, notFound(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) Query(ctx context.Context, q core.Query) ([]user.User, int, error) {
	var rows []userRow
	total, err := repo.page(ctx, usersTable, userColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, total, nil
}

// usersByID batch-loads users for eager loading.
func (repo userRepository) usersByID(ctx context.Context, ids []string) (map[string]user.User, error) {
	users := make(map[string]user.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var rows []userRow
	if err := repo.selectAll(ctx, &rows, psql.Select("*").From(usersTable).Where(sq.Eq{"id": ids})); err != nil {
		return nil, errors.Wrap(err, "loading users")
	}
	for _, row := range rows {
		users[row.ID] = row.user()
	}
	return users, nil
}

func (repo userRepository) Update(ctx context.Context, usr user.User) (user.User, error) {
	row := toUserRow(usr)
	err := repo.runOne(ctx, psql.Update(usersTable).SetMap(map[string]interface{}{
		"name":          row.Name,
		"username":      row.Username,
		"email":         row.Email,
		"password_hash": row.PasswordHash,
		"is_active":     row.IsActive,
		"roles":         row.Roles,
		"updated_at":    row.UpdatedAt,
		"last_login":    row.LastLogin,
	}).Where(sq.Eq{"id": row.ID}), user.ErrNotFound)
	if err != nil {
		return user.User{}, notFound(err, user.ErrNotFound, "updating user")
	}
	return row.user(), nil
}

func (repo userRepository) SetActive(ctx context.Context, ids []string, active bool) (int, error) {
	n, err := repo.run(ctx, psql.Update(usersTable).
		Set("is_active", active).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": ids}))
	return n, errors.Wrap(err, "setting users active status")
}

func (repo userRepository) Delete(ctx context.Context, ids ...string) (int, error) {
	n, err := repo.run(ctx, psql.Delete(usersTable).Where(sq.Eq{"id": ids}))
	return n, errors.Wrap(err, "deleting users")
}
