package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/user"
)

const SubjectType = "exam"

var (
	ErrNotFound      = core.NewNotFoundError("exam")
	errOutsideOfYear = "held_on must fall within the academic year"
)

type Exam struct {
	ID             string    `json:"id"`
	AcademicYearID string    `json:"academic_year_id"`
	Title          string    `json:"title"`
	Subject        string    `json:"subject"`
	HeldOn         core.Date `json:"held_on"`
	MaxScore       int       `json:"max_score"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// Upcoming reports whether the exam is held on or after day d.
func (e Exam) Upcoming(d core.Date) bool {
	return !e.HeldOn.Before(d.Time)
}

type Input struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required,uuid"`
	Title          string    `json:"title" validate:"required,notblank,max=150"`
	Subject        string    `json:"subject" validate:"required,notblank,max=100"`
	HeldOn         core.Date `json:"held_on" validate:"required"`
	MaxScore       int       `json:"max_score" validate:"min=1,max=1000"`
}

func (in *Input) Clean() {
	in.Title = core.CleanString(in.Title)
	in.Subject = core.CleanString(in.Subject)
}

var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "academic_year_id", Column: "academic_year_id", Parse: listing.UUID},
		{Name: "subject", Column: "subject"},
		{Name: "from", Column: "held_on", Op: core.OpGTE, Parse: listing.Date},
		{Name: "to", Column: "held_on", Op: core.OpLTE, Parse: listing.Date},
	},
	SearchFields: []string{"title"},
	Sortable: map[string]string{
		"title":   "title",
		"subject": "subject",
		"held_on": "held_on",
	},
	DefaultSort: "held_on",
}

type Repository interface {
	Create(ctx context.Context, e Exam) (Exam, error)
	Update(ctx context.Context, e Exam) (Exam, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Exam, error)
	Query(ctx context.Context, q core.Query) ([]Exam, int, error)
}

type Service struct {
	repo     Repository
	years    *academicyear.Service
	rec      *audit.Recorder
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository, yearSvc *academicyear.Service, rec *audit.Recorder, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(yearSvc, "yearSvc"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, years: yearSvc, rec: rec, validate: validate, now: time.Now}
}

func (svc *Service) validateInput(ctx context.Context, in *Input) error {
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return err
	}
	year, err := svc.years.Get(ctx, in.AcademicYearID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "academic_year_id", Error: err.Error()})
		}
		return err
	}
	if !year.Contains(in.HeldOn) {
		return core.NewValidationError(nil, core.FieldError{Field: "held_on", Error: errOutsideOfYear})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor user.User, in Input) (Exam, error) {
	if err := svc.validateInput(ctx, &in); err != nil {
		return Exam{}, err
	}

	now := svc.now().UTC()
	e := Exam{
		AcademicYearID: in.AcademicYearID,
		Title:          in.Title,
		Subject:        in.Subject,
		HeldOn:         in.HeldOn,
		MaxScore:       in.MaxScore,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if e, err = svc.repo.Create(ctx, e); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating exam")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("scheduled exam %s (%s)", e.Title, e.Subject),
			SubjectType: SubjectType,
			SubjectID:   e.ID,
		}, nil
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, in Input) (Exam, error) {
	e, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if err = svc.validateInput(ctx, &in); err != nil {
		return Exam{}, err
	}

	e.AcademicYearID = in.AcademicYearID
	e.Title = in.Title
	e.Subject = in.Subject
	e.HeldOn = in.HeldOn
	e.MaxScore = in.MaxScore
	e.UpdatedAt = svc.now().UTC()
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if e, err = svc.repo.Update(ctx, e); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating exam")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated exam %s", e.Title),
			SubjectType: SubjectType,
			SubjectID:   e.ID,
		}, nil
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	e, err := svc.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.Delete(ctx, e.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting exam")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted exam %s", e.Title),
			SubjectType: SubjectType,
			SubjectID:   e.ID,
		}, nil
	})
	return err
}

func (svc *Service) Get(ctx context.Context, id string) (Exam, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *Service) Query(ctx context.Context, q core.Query) ([]Exam, int, error) {
	exams, total, err := svc.repo.Query(ctx, q)
	return exams, total, errors.Wrap(err, "querying exams")
}
