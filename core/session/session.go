// Package session manages class sessions: one teacher, one room, one time slot.
package session

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

const SubjectType = "session"

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var (
	Statuses = []string{StatusScheduled, StatusCompleted, StatusCancelled}

	ErrNotFound   = core.NewNotFoundError("session")
	errNotTeacher = "this user is not a teacher"
)

type Session struct {
	ID             string                     `json:"id"`
	AcademicYearID string                     `json:"academic_year_id"`
	TeacherID      string                     `json:"teacher_id"`
	Title          string                     `json:"title"`
	Location       string                     `json:"location"`
	StartsAt       time.Time                  `json:"starts_at"` // UTC
	EndsAt         time.Time                  `json:"ends_at"`   // UTC
	Status         string                     `json:"status"`
	CreatedAt      time.Time                  `json:"created_at"` // UTC
	UpdatedAt      time.Time                  `json:"updated_at"` // UTC
	Teacher        *user.User                 `json:"teacher,omitempty"`
	AcademicYear   *academicyear.AcademicYear `json:"academic_year,omitempty"`
}

func (s Session) Duration() time.Duration {
	if s.EndsAt.Before(s.StartsAt) {
		return 0
	}
	return s.EndsAt.Sub(s.StartsAt)
}

// TaughtBy reports whether the actor may manage the session: admins, or its teacher.
func (s Session) TaughtBy(actor user.User) bool {
	return actor.IsAdmin() || (actor.IsTeacher() && s.TeacherID == actor.ID)
}

type Input struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required,uuid"`
	TeacherID      string    `json:"teacher_id" validate:"required,uuid"`
	Title          string    `json:"title" validate:"required,notblank,max=150"`
	Location       string    `json:"location" validate:"omitempty,max=100"`
	StartsAt       time.Time `json:"starts_at" validate:"required"`
	EndsAt         time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Status         string    `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
}

func (in *Input) Clean() {
	in.Title = core.CleanString(in.Title)
	in.Location = core.CleanString(in.Location)
	in.StartsAt = in.StartsAt.UTC()
	in.EndsAt = in.EndsAt.UTC()
	if in.Status == "" {
		in.Status = StatusScheduled
	}
}

// RosterEntry is the attendance of one child at a session.
type RosterEntry struct {
	ChildID    string    `json:"child_id"`
	ChildName  string    `json:"child_name"`
	Status     string    `json:"status"`
	Note       string    `json:"note"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Detail is a session with its attendance roster.
type Detail struct {
	Session
	Roster []RosterEntry `json:"roster"`
}

var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "teacher_id", Column: "teacher_id", Parse: listing.UUID},
		{Name: "academic_year_id", Column: "academic_year_id", Parse: listing.UUID},
		{Name: "status", Column: "status", Op: core.OpIn, Parse: listing.Enum(Statuses...)},
		{Name: "from", Column: "starts_at", Op: core.OpGTE, Parse: listing.Date},
		{Name: "to", Column: "starts_at", Op: core.OpLTE, Parse: listing.DateEnd},
	},
	SearchFields: []string{"title", "location"},
	Sortable: map[string]string{
		"title":     "title",
		"starts_at": "starts_at",
		"status":    "status",
	},
	DefaultSort: "starts_at",
	Include:     []string{"teacher"},
}

type (
	Repository interface {
		Create(ctx context.Context, s Session) (Session, error)
		Update(ctx context.Context, s Session) (Session, error)
		Delete(ctx context.Context, id string) error
		// Get loads the session with its teacher and academic year.
		Get(ctx context.Context, id string) (Session, error)
		Query(ctx context.Context, q core.Query) ([]Session, int, error)
		// CountDependents counts the attendance records of the session.
		CountDependents(ctx context.Context, id string) (map[string]int, error)
	}

	// Roster reads the attendance recorded for a session.
	Roster interface {
		Roster(ctx context.Context, sessionID string) ([]RosterEntry, error)
	}

	Service struct {
		repo     Repository
		roster   Roster
		years    *academicyear.Service
		users    *user.Service
		rec      *audit.Recorder
		validate *validator.Validate
		now      func() time.Time
	}
)

func NewService(
	repo Repository,
	roster Roster,
	yearSvc *academicyear.Service,
	usrSvc *user.Service,
	rec *audit.Recorder,
	validate *validator.Validate,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(yearSvc, "yearSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, roster: roster, years: yearSvc, users: usrSvc, rec: rec, validate: validate, now: time.Now}
}

func (svc *Service) validateInput(ctx context.Context, in *Input) error {
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return err
	}
	if _, err := svc.years.Get(ctx, in.AcademicYearID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "academic_year_id", Error: err.Error()})
		}
		return err
	}
	teacher, err := svc.users.GetByID(ctx, in.TeacherID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: err.Error()})
		}
		return err
	}
	if !teacher.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errNotTeacher})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor user.User, in Input) (Session, error) {
	if !actor.IsAdmin() && !(actor.IsTeacher() && in.TeacherID == actor.ID) {
		return Session{}, core.ErrPermissionDenied
	}
	if err := svc.validateInput(ctx, &in); err != nil {
		return Session{}, err
	}

	now := svc.now().UTC()
	s := Session{
		AcademicYearID: in.AcademicYearID,
		TeacherID:      in.TeacherID,
		Title:          in.Title,
		Location:       in.Location,
		StartsAt:       in.StartsAt,
		EndsAt:         in.EndsAt,
		Status:         in.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if s, err = svc.repo.Create(ctx, s); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating session")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("scheduled session %s", s.Title),
			SubjectType: SubjectType,
			SubjectID:   s.ID,
			Properties:  map[string]interface{}{"teacher_id": s.TeacherID, "starts_at": s.StartsAt},
		}, nil
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, in Input) (Session, error) {
	s, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.TaughtBy(actor) {
		return Session{}, core.ErrPermissionDenied
	}
	if !actor.IsAdmin() {
		in.TeacherID = s.TeacherID
	}
	if err = svc.validateInput(ctx, &in); err != nil {
		return Session{}, err
	}

	s.AcademicYearID = in.AcademicYearID
	s.TeacherID = in.TeacherID
	s.Title = in.Title
	s.Location = in.Location
	s.StartsAt = in.StartsAt
	s.EndsAt = in.EndsAt
	s.Status = in.Status
	s.UpdatedAt = svc.now().UTC()
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if _, err := svc.repo.Update(ctx, s); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating session")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated session %s", s.Title),
			SubjectType: SubjectType,
			SubjectID:   s.ID,
			Properties:  map[string]interface{}{"status": s.Status},
		}, nil
	})
	if err != nil {
		return Session{}, err
	}
	return svc.repo.Get(ctx, s.ID)
}

// Delete deletes a session without attendance records.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	s, err := svc.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.TaughtBy(actor) {
		return core.ErrPermissionDenied
	}
	deps, err := svc.repo.CountDependents(ctx, s.ID)
	if err != nil {
		return errors.Wrap(err, "counting session dependents")
	}
	if err = core.CheckDependents("session", deps); err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.Delete(ctx, s.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting session")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted session %s", s.Title),
			SubjectType: SubjectType,
			SubjectID:   s.ID,
		}, nil
	})
	return err
}

func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	return svc.repo.Get(ctx, id)
}

// Detail returns a session with the attendance recorded for it.
func (svc *Service) Detail(ctx context.Context, id string) (Detail, error) {
	s, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	roster, err := svc.roster.Roster(ctx, s.ID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "loading session roster")
	}
	if roster == nil {
		roster = []RosterEntry{}
	}
	return Detail{Session: s, Roster: roster}, nil
}

func (svc *Service) Query(ctx context.Context, q core.Query) ([]Session, int, error) {
	sessions, total, err := svc.repo.Query(ctx, q)
	return sessions, total, errors.Wrap(err, "querying sessions")
}

// Count counts the sessions matching q.Where (dashboards).
func (svc *Service) Count(ctx context.Context, q core.Query) (int, error) {
	q.Limit, q.Include = 1, nil
	_, total, err := svc.Query(ctx, q)
	return total, err
}
