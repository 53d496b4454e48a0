package enrollment

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
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/user"
)

const SubjectType = "enrollment"

var (
	ErrNotFound        = core.NewNotFoundError("enrollment")
	ErrAlreadyEnrolled = errors.New("this child is already enrolled in this academic year")
)

type Enrollment struct {
	ID             string                     `json:"id"`
	ChildID        string                     `json:"child_id"`
	AcademicYearID string                     `json:"academic_year_id"`
	Grade          string                     `json:"grade"`
	EnrolledAt     time.Time                  `json:"enrolled_at"` // UTC
	Child          *family.ChildProfile       `json:"child,omitempty"`
	AcademicYear   *academicyear.AcademicYear `json:"academic_year,omitempty"`
}

type Input struct {
	ChildID        string `json:"child_id" validate:"required,uuid"`
	AcademicYearID string `json:"academic_year_id" validate:"omitempty,uuid"` // current year when empty
	Grade          string `json:"grade" validate:"required,notblank,max=30"`
}

var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "academic_year_id", Column: "academic_year_id", Parse: listing.UUID},
		{Name: "child_id", Column: "child_id", Parse: listing.UUID},
		{Name: "grade", Column: "grade"},
	},
	Sortable: map[string]string{
		"grade":       "grade",
		"enrolled_at": "enrolled_at",
	},
	DefaultSort: "enrolled_at",
	DefaultDesc: true,
	Include:     []string{"child", "academic_year"},
}

type Repository interface {
	Exists(ctx context.Context, childID, academicYearID string) (bool, error)
	Create(ctx context.Context, e Enrollment) (Enrollment, error)
	Get(ctx context.Context, id string) (Enrollment, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, q core.Query) ([]Enrollment, int, error)
}

type (
	years interface {
		Get(ctx context.Context, id string) (academicyear.AcademicYear, error)
		Current(ctx context.Context) (academicyear.AcademicYear, error)
	}

	children interface {
		GetChild(ctx context.Context, actor user.User, id string) (family.ChildProfile, error)
	}

	Service struct {
		repo     Repository
		years    years
		children children
		rec      *audit.Recorder
		validate *validator.Validate
		now      func() time.Time
	}
)

func NewService(repo Repository, yearSvc *academicyear.Service, familySvc *family.Service, rec *audit.Recorder, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(yearSvc, "yearSvc"),
		vala.IsNotNil(familySvc, "familySvc"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, years: yearSvc, children: familySvc, rec: rec, validate: validate, now: time.Now}
}

// Enroll enrolls a child in an academic year, the current one by default.
func (svc *Service) Enroll(ctx context.Context, actor user.User, in Input) (Enrollment, error) {
	in.Grade = core.CleanString(in.Grade)
	if err := svc.validate.Struct(in); err != nil {
		return Enrollment{}, err
	}

	child, err := svc.children.GetChild(ctx, actor, in.ChildID)
	if err != nil {
		if core.IsNotFound(err) {
			return Enrollment{}, core.NewValidationError(err, core.FieldError{Field: "child_id", Error: err.Error()})
		}
		return Enrollment{}, err
	}

	var year academicyear.AcademicYear
	if in.AcademicYearID == "" {
		year, err = svc.years.Current(ctx)
	} else {
		year, err = svc.years.Get(ctx, in.AcademicYearID)
	}
	if err != nil {
		if core.IsNotFound(err) {
			return Enrollment{}, core.NewValidationError(err, core.FieldError{Field: "academic_year_id", Error: err.Error()})
		}
		return Enrollment{}, err
	}

	exists, err := svc.repo.Exists(ctx, child.ID, year.ID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "checking enrollment")
	}
	if exists {
		return Enrollment{}, core.NewValidationError(ErrAlreadyEnrolled, core.FieldError{Field: "child_id", Error: ErrAlreadyEnrolled.Error()})
	}

	e := Enrollment{
		ChildID:        child.ID,
		AcademicYearID: year.ID,
		Grade:          in.Grade,
		EnrolledAt:     svc.now().UTC(),
	}
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if e, err = svc.repo.Create(ctx, e); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating enrollment")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("enrolled %s in %s (%s)", child.Name, year.Name, e.Grade),
			SubjectType: SubjectType,
			SubjectID:   e.ID,
			Properties:  map[string]interface{}{"child_id": child.ID, "academic_year_id": year.ID},
		}, nil
	})
	if err != nil {
		return Enrollment{}, err
	}
	child.Parent = nil
	e.Child, e.AcademicYear = &child, &year
	return e, nil
}

// Withdraw deletes an enrollment.
func (svc *Service) Withdraw(ctx context.Context, actor user.User, id string) error {
	e, err := svc.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.Delete(ctx, e.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting enrollment")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: "withdrew an enrollment",
			SubjectType: SubjectType,
			SubjectID:   e.ID,
			Properties:  map[string]interface{}{"child_id": e.ChildID, "academic_year_id": e.AcademicYearID},
		}, nil
	})
	return err
}

func (svc *Service) Get(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *Service) Query(ctx context.Context, q core.Query) ([]Enrollment, int, error) {
	enrollments, total, err := svc.repo.Query(ctx, q)
	return enrollments, total, errors.Wrap(err, "querying enrollments")
}
