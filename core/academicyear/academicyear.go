package academicyear

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/user"
)

const SubjectType = "academic_year"

var (
	ErrNotFound   = core.NewNotFoundError("academic year")
	ErrNameExists = errors.New("an academic year with this name already exists")
	ErrNoCurrent  = core.NewNotFoundError("current academic year")
)

type AcademicYear struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Contains reports whether the day d falls within the year.
func (ay AcademicYear) Contains(d core.Date) bool {
	return !d.Before(ay.StartDate.Time) && !d.After(ay.EndDate.Time)
}

type Input struct {
	Name      string    `json:"name" validate:"required,notblank,max=100"`
	StartDate core.Date `json:"start_date" validate:"required"`
	EndDate   core.Date `json:"end_date" validate:"required"`
	IsCurrent bool      `json:"is_current"`
}

func (in *Input) validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	if err := validate.Struct(in); err != nil {
		return err
	}
	if !in.EndDate.After(in.StartDate.Time) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end_date must be after start_date"})
	}
	return nil
}

var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "is_current", Column: "is_current", Parse: listing.Bool},
	},
	SearchFields: []string{"name"},
	Sortable: map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"end_date":   "end_date",
		"created_at": "created_at",
	},
	DefaultSort: "start_date",
	DefaultDesc: true,
}

type Repository interface {
	NameExists(ctx context.Context, name string, excludedID string) (bool, error)
	Create(ctx context.Context, ay AcademicYear) (AcademicYear, error)
	Update(ctx context.Context, ay AcademicYear) (AcademicYear, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (AcademicYear, error)
	Current(ctx context.Context) (AcademicYear, error)
	Query(ctx context.Context, q core.Query) ([]AcademicYear, int, error)
	// ClearCurrent unsets is_current on every row.
	ClearCurrent(ctx context.Context) error
	// MarkCurrent sets is_current on one row only; callers clear the others first.
	MarkCurrent(ctx context.Context, id string) error
	// CountDependents counts the enrollments, exams and sessions of the year.
	CountDependents(ctx context.Context, id string) (map[string]int, error)
}

type Service struct {
	repo     Repository
	rec      *audit.Recorder
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository, rec *audit.Recorder, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, rec: rec, validate: validate, now: time.Now}
}

func (svc *Service) checkName(ctx context.Context, name, excludedID string) error {
	exists, err := svc.repo.NameExists(ctx, name, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking academic year name")
	}
	if exists {
		return core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	}
	return nil
}

// setCurrent makes id the only current year. Both writes join the transaction of ctx.
func (svc *Service) setCurrent(ctx context.Context, id string) error {
	if err := svc.repo.ClearCurrent(ctx); err != nil {
		return errors.Wrap(err, "clearing current academic year")
	}
	return errors.Wrap(svc.repo.MarkCurrent(ctx, id), "marking current academic year")
}

func (svc *Service) Create(ctx context.Context, actor user.User, in Input) (AcademicYear, error) {
	if err := in.validate(svc.validate); err != nil {
		return AcademicYear{}, err
	}
	if err := svc.checkName(ctx, in.Name, ""); err != nil {
		return AcademicYear{}, err
	}

	now := svc.now().UTC()
	ay := AcademicYear{
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if ay, err = svc.repo.Create(ctx, ay); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating academic year")
		}
		if in.IsCurrent {
			if err = svc.setCurrent(ctx, ay.ID); err != nil {
				return audit.Entry{}, err
			}
			ay.IsCurrent = true
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("created academic year %s", ay.Name),
			SubjectType: SubjectType,
			SubjectID:   ay.ID,
			Properties:  map[string]interface{}{"is_current": ay.IsCurrent},
		}, nil
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return ay, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, in Input) (AcademicYear, error) {
	ay, err := svc.Get(ctx, id)
	if err != nil {
		return AcademicYear{}, err
	}
	if err = in.validate(svc.validate); err != nil {
		return AcademicYear{}, err
	}
	if err = svc.checkName(ctx, in.Name, ay.ID); err != nil {
		return AcademicYear{}, err
	}

	ay.Name = in.Name
	ay.StartDate = in.StartDate
	ay.EndDate = in.EndDate
	ay.UpdatedAt = svc.now().UTC()
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if ay, err = svc.repo.Update(ctx, ay); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating academic year")
		}
		if in.IsCurrent && !ay.IsCurrent {
			if err = svc.setCurrent(ctx, ay.ID); err != nil {
				return audit.Entry{}, err
			}
			ay.IsCurrent = true
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated academic year %s", ay.Name),
			SubjectType: SubjectType,
			SubjectID:   ay.ID,
		}, nil
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return ay, nil
}

// SetCurrent makes the year the only current one.
func (svc *Service) SetCurrent(ctx context.Context, actor user.User, id string) (AcademicYear, error) {
	ay, err := svc.Get(ctx, id)
	if err != nil {
		return AcademicYear{}, err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.setCurrent(ctx, ay.ID); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("set %s as the current academic year", ay.Name),
			SubjectType: SubjectType,
			SubjectID:   ay.ID,
			Properties:  map[string]interface{}{"is_current": true},
		}, nil
	})
	if err != nil {
		return AcademicYear{}, err
	}
	ay.IsCurrent = true
	return ay, nil
}

// Delete deletes a year nothing references anymore.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	ay, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}
	deps, err := svc.repo.CountDependents(ctx, ay.ID)
	if err != nil {
		return errors.Wrap(err, "counting academic year dependents")
	}
	if err = core.CheckDependents("academic year", deps); err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.Delete(ctx, ay.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting academic year")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted academic year %s", ay.Name),
			SubjectType: SubjectType,
			SubjectID:   ay.ID,
		}, nil
	})
	return err
}

func (svc *Service) Get(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.Get(ctx, id)
}

// Current returns the current year, ErrNoCurrent when none is set.
func (svc *Service) Current(ctx context.Context) (AcademicYear, error) {
	return svc.repo.Current(ctx)
}

func (svc *Service) Query(ctx context.Context, q core.Query) ([]AcademicYear, int, error) {
	years, total, err := svc.repo.Query(ctx, q)
	return years, total, errors.Wrap(err, "querying academic years")
}
