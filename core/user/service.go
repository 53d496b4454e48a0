package user

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
)

const SubjectType = "user"

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrCannotDeactivateSelf = errors.New("cannot deactivate your own account")
	ErrCannotDeleteSelf     = errors.New("cannot delete your own account")

	// errNoneChanged rolls back a bulk mutation that matched no user.
	errNoneChanged = errors.New("no user changed")
)

type (
	// GetFilter selects one user by the first non-empty field.
	GetFilter struct {
		ID              string
		Username        string
		Email           string
		UsernameOrEmail string
	}

	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when another user
		// (not in excludedIDs) holds the username or email.
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		Create(ctx context.Context, usr User) (User, error)
		Get(ctx context.Context, filter GetFilter) (User, error)
		// Query applies AND operation on q.Where; q.Search does a case-insensitive match on one of q.SearchFields.
		Query(ctx context.Context, q core.Query) ([]User, int, error)
		Update(ctx context.Context, usr User) (User, error)
		SetActive(ctx context.Context, ids []string, active bool) (int, error)
		Delete(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo     Repository
		rec      *audit.Recorder
		validate *validator.Validate
		now      func() time.Time
	}
)

func NewService(repo Repository, rec *audit.Recorder, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, rec: rec, validate: validate, now: time.Now}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exclIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclIDs...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking user uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor User, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := svc.now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if usr, err = svc.repo.Create(ctx, usr); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating user")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("created user %s", usr.Name),
			SubjectType: SubjectType,
			SubjectID:   usr.ID,
			Properties:  map[string]interface{}{"roles": usr.Roles},
		}, nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, q core.Query) ([]User, int, error) {
	users, total, err := svc.repo.Query(ctx, q)
	return users, total, errors.Wrap(err, "querying users")
}

// Count counts the users matching q.Where.
func (svc *Service) Count(ctx context.Context, q core.Query) (int, error) {
	q.Limit = 1
	_, total, err := svc.Query(ctx, q)
	return total, err
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.Get(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.Get(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.Get(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.Get(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, actor User, origUsr User, uu UpdateUser) (User, error) {
	uu.Clean(origUsr)
	if err := svc.validate.Struct(uu); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, uu.Username, uu.Email, origUsr.ID); err != nil {
		return User{}, err
	}
	if uu.IsActive != nil && !*uu.IsActive && origUsr.ID == actor.ID {
		return User{}, ErrCannotDeactivateSelf
	}

	usr := origUsr
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.UpdatedAt = svc.now().UTC()
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}

	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if usr, err = svc.repo.Update(ctx, usr); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating user")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated user %s", usr.Name),
			SubjectType: SubjectType,
			SubjectID:   usr.ID,
			Properties:  map[string]interface{}{"password_changed": uu.Password != ""},
		}, nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// SetPassword sets a new password on the user with the given username (admin CLI).
func (svc *Service) SetPassword(ctx context.Context, actor User, uname string, sp SetPassword) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	sp.name, sp.username, sp.email = usr.Name, usr.Username, usr.Email
	if err = svc.validate.Struct(sp); err != nil {
		return err
	}
	if err = usr.SetPassword(sp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = svc.now().UTC()

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if _, err := svc.repo.Update(ctx, usr); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating user password")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("reset the password of %s", usr.Name),
			SubjectType: SubjectType,
			SubjectID:   usr.ID,
		}, nil
	})
	return err
}

// SetLastLogin records a successful login.
func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = svc.now().UTC()
	_, err := svc.rec.Mutate(ctx, usr.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if usr, err = svc.repo.Update(ctx, usr); err != nil {
			return audit.Entry{}, errors.Wrap(err, "setting last login")
		}
		return audit.Entry{
			Action:      audit.ActionAccess,
			Description: fmt.Sprintf("%s logged in", usr.Name),
			SubjectType: SubjectType,
			SubjectID:   usr.ID,
		}, nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// withoutActor removes the actor from ids. It reports whether the actor was listed.
func withoutActor(actor User, ids []string) ([]string, bool) {
	targets := make([]string, 0, len(ids))
	var listed bool
	for _, id := range ids {
		if id == actor.ID {
			listed = true
			continue
		}
		if !core.ContainsString(targets, id) {
			targets = append(targets, id)
		}
	}
	return targets, listed
}

// SetActive activates or deactivates many users. The actor is never part of
// the targets: deactivating only themselves returns ErrCannotDeactivateSelf.
// Nothing is written, audit entry included, when no user was changed.
func (svc *Service) SetActive(ctx context.Context, actor User, sa SetActive) (int, error) {
	if err := svc.validate.Struct(sa); err != nil {
		return 0, err
	}
	ids, listed := withoutActor(actor, sa.IDs)
	if len(ids) == 0 {
		if listed && !sa.IsActive {
			return 0, ErrCannotDeactivateSelf
		}
		return 0, nil
	}

	verb := "deactivated"
	if sa.IsActive {
		verb = "activated"
	}

	var n int
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if n, err = svc.repo.SetActive(ctx, ids, sa.IsActive); err != nil {
			return audit.Entry{}, errors.Wrap(err, "setting users active status")
		}
		if n == 0 {
			return audit.Entry{}, errNoneChanged
		}
		return audit.Entry{
			Action:      audit.ActionBulkUpdate,
			Description: fmt.Sprintf("%s %d users", verb, n),
			SubjectType: SubjectType,
			Properties:  map[string]interface{}{"ids": ids, "is_active": sa.IsActive},
		}, nil
	})
	if err != nil && errors.Cause(err) != errNoneChanged {
		return 0, err
	}
	return n, nil
}

// Delete deletes users by ID, never the actor.
func (svc *Service) Delete(ctx context.Context, actor User, ids ...string) (int, error) {
	targets, listed := withoutActor(actor, ids)
	if len(targets) == 0 {
		if listed {
			return 0, ErrCannotDeleteSelf
		}
		return 0, nil
	}

	var n int
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if n, err = svc.repo.Delete(ctx, targets...); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting users")
		}
		if n == 0 {
			return audit.Entry{}, errNoneChanged
		}
		e := audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted %d users", n),
			SubjectType: SubjectType,
			Properties:  map[string]interface{}{"ids": targets},
		}
		if len(targets) == 1 {
			e.SubjectID = targets[0]
			e.Description = "deleted 1 user"
		}
		return e, nil
	})
	if err != nil && errors.Cause(err) != errNoneChanged {
		return 0, err
	}
	return n, nil
}
