// Package attendance records who attended which session.
// Records are append-only: one per child and session.
package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/user"
)

const SubjectType = "attendance"

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var (
	Statuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

	ErrNotFound         = core.NewNotFoundError("attendance record")
	ErrAlreadyRecorded  = errors.New("attendance was already recorded for this child")
	ErrDuplicateChild   = errors.New("this child appears more than once")
	ErrSessionCancelled = errors.New("this session was cancelled")
)

type Attendance struct {
	ID         string               `json:"id"`
	ChildID    string               `json:"child_id"`
	SessionID  string               `json:"session_id"`
	Status     string               `json:"status"`
	Note       string               `json:"note"`
	RecordedBy string               `json:"recorded_by"`
	RecordedAt time.Time            `json:"recorded_at"` // UTC
	Child      *family.ChildProfile `json:"child,omitempty"`
	Session    *session.Session     `json:"session,omitempty"`
}

// Attended reports whether the child was there, even late.
func (a Attendance) Attended() bool {
	return a.Status == StatusPresent || a.Status == StatusLate
}

type (
	Mark struct {
		ChildID string `json:"child_id" validate:"required,uuid"`
		Status  string `json:"status" validate:"required,oneof=present absent late excused"`
		Note    string `json:"note" validate:"omitempty,max=255"`
	}

	Input struct {
		SessionID string `json:"session_id" validate:"required,uuid"`
		Mark
	}

	BatchInput struct {
		SessionID string `json:"session_id" validate:"required,uuid"`
		Marks     []Mark `json:"marks" validate:"required,min=1,dive"`
	}
)

// Summary counts the attendance of one child.
type Summary struct {
	ChildID string         `json:"child_id"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
	Rate    float64        `json:"rate"`
}

// NewSummary computes the attendance rate of counts: present and late
// sessions over all sessions, as a percentage rounded to 2 decimals.
func NewSummary(childID string, counts map[string]int) Summary {
	s := Summary{ChildID: childID, Counts: make(map[string]int, len(Statuses))}
	for _, status := range Statuses {
		s.Counts[status] = counts[status]
		s.Total += counts[status]
	}
	if s.Total == 0 {
		return s
	}
	attended := decimal.NewFromInt(int64(s.Counts[StatusPresent] + s.Counts[StatusLate]))
	s.Rate = attended.
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.Total))).
		Round(2).
		InexactFloat64()
	return s
}

var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "child_id", Column: "child_id", Parse: listing.UUID},
		{Name: "session_id", Column: "session_id", Parse: listing.UUID},
		{Name: "status", Column: "status", Op: core.OpIn, Parse: listing.Enum(Statuses...)},
		{Name: "from", Column: "recorded_at", Op: core.OpGTE, Parse: listing.Date},
		{Name: "to", Column: "recorded_at", Op: core.OpLTE, Parse: listing.DateEnd},
	},
	Sortable: map[string]string{
		"recorded_at": "recorded_at",
		"status":      "status",
	},
	DefaultSort: "recorded_at",
	DefaultDesc: true,
	Include:     []string{"child", "session"},
}

type (
	Repository interface {
		Exists(ctx context.Context, childID, sessionID string) (bool, error)
		Create(ctx context.Context, a Attendance) (Attendance, error)
		Query(ctx context.Context, q core.Query) ([]Attendance, int, error)
		// CountByStatus counts the records of a child per status.
		CountByStatus(ctx context.Context, childID string) (map[string]int, error)
	}

	sessions interface {
		Get(ctx context.Context, id string) (session.Session, error)
	}

	children interface {
		GetChild(ctx context.Context, actor user.User, id string) (family.ChildProfile, error)
		OwnedChildIDs(ctx context.Context, actor user.User) ([]string, error)
	}

	Service struct {
		repo     Repository
		sessions sessions
		children children
		rec      *audit.Recorder
		validate *validator.Validate
		now      func() time.Time
	}
)

func NewService(repo Repository, sessionRepo session.Repository, familySvc *family.Service, rec *audit.Recorder, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(sessionRepo, "sessionRepo"),
		vala.IsNotNil(familySvc, "familySvc"),
		vala.IsNotNil(rec, "rec"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, sessions: sessionRepo, children: familySvc, rec: rec, validate: validate, now: time.Now}
}

// openSession returns the session attendance is taken for, if the actor teaches it.
func (svc *Service) openSession(ctx context.Context, actor user.User, id string) (session.Session, error) {
	s, err := svc.sessions.Get(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return s, core.NewValidationError(err, core.FieldError{Field: "session_id", Error: err.Error()})
		}
		return s, err
	}
	if !s.TaughtBy(actor) {
		return s, core.ErrPermissionDenied
	}
	if s.Status == session.StatusCancelled {
		return s, core.NewValidationError(ErrSessionCancelled, core.FieldError{Field: "session_id", Error: ErrSessionCancelled.Error()})
	}
	return s, nil
}

// checkMarks checks every child exists, appears once and has no record yet for the session.
func (svc *Service) checkMarks(ctx context.Context, actor user.User, sessionID string, marks []Mark, field func(i int) string) ([]family.ChildProfile, error) {
	seen := make(map[string]bool, len(marks))
	children := make([]family.ChildProfile, 0, len(marks))
	for i, m := range marks {
		if seen[m.ChildID] {
			return nil, core.NewValidationError(ErrDuplicateChild, core.FieldError{Field: field(i), Error: ErrDuplicateChild.Error()})
		}
		seen[m.ChildID] = true

		c, err := svc.children.GetChild(ctx, actor, m.ChildID)
		if err != nil {
			if core.IsNotFound(err) {
				return nil, core.NewValidationError(err, core.FieldError{Field: field(i), Error: err.Error()})
			}
			return nil, err
		}
		exists, err := svc.repo.Exists(ctx, m.ChildID, sessionID)
		if err != nil {
			return nil, errors.Wrap(err, "checking attendance")
		}
		if exists {
			return nil, core.NewValidationError(ErrAlreadyRecorded, core.FieldError{Field: field(i), Error: ErrAlreadyRecorded.Error()})
		}
		children = append(children, c)
	}
	return children, nil
}

// Record records the attendance of one child at a session.
func (svc *Service) Record(ctx context.Context, actor user.User, in Input) (Attendance, error) {
	in.Note = core.CleanString(in.Note)
	if err := svc.validate.Struct(in); err != nil {
		return Attendance{}, err
	}
	s, err := svc.openSession(ctx, actor, in.SessionID)
	if err != nil {
		return Attendance{}, err
	}
	children, err := svc.checkMarks(ctx, actor, s.ID, []Mark{in.Mark}, func(int) string { return "child_id" })
	if err != nil {
		return Attendance{}, err
	}

	a := Attendance{
		ChildID:    in.ChildID,
		SessionID:  s.ID,
		Status:     in.Status,
		Note:       in.Note,
		RecordedBy: actor.ID,
		RecordedAt: svc.now().UTC(),
	}
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if a, err = svc.repo.Create(ctx, a); err != nil {
			return audit.Entry{}, errors.Wrap(err, "recording attendance")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("marked %s %s at %s", children[0].Name, a.Status, s.Title),
			SubjectType: SubjectType,
			SubjectID:   a.ID,
			Properties:  map[string]interface{}{"session_id": s.ID, "child_id": a.ChildID},
		}, nil
	})
	if err != nil {
		return Attendance{}, err
	}
	return a, nil
}

// RecordBatch records the attendance of many children at one session as a single change.
func (svc *Service) RecordBatch(ctx context.Context, actor user.User, in BatchInput) ([]Attendance, error) {
	for i := range in.Marks {
		in.Marks[i].Note = core.CleanString(in.Marks[i].Note)
	}
	if err := svc.validate.Struct(in); err != nil {
		return nil, err
	}
	s, err := svc.openSession(ctx, actor, in.SessionID)
	if err != nil {
		return nil, err
	}
	field := func(i int) string { return fmt.Sprintf("marks[%d].child_id", i) }
	if _, err = svc.checkMarks(ctx, actor, s.ID, in.Marks, field); err != nil {
		return nil, err
	}

	now := svc.now().UTC()
	records := make([]Attendance, 0, len(in.Marks))
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		records = records[:0]
		counts := make(map[string]interface{}, len(Statuses))
		for _, m := range in.Marks {
			a, err := svc.repo.Create(ctx, Attendance{
				ChildID:    m.ChildID,
				SessionID:  s.ID,
				Status:     m.Status,
				Note:       m.Note,
				RecordedBy: actor.ID,
				RecordedAt: now,
			})
			if err != nil {
				return audit.Entry{}, errors.Wrap(err, "recording attendance")
			}
			records = append(records, a)
			n, _ := counts[a.Status].(int)
			counts[a.Status] = n + 1
		}
		return audit.Entry{
			Action:      audit.ActionBulkUpdate,
			Description: fmt.Sprintf("took attendance of %d children at %s", len(records), s.Title),
			SubjectType: session.SubjectType,
			SubjectID:   s.ID,
			Properties:  counts,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Query lists attendance records; parents only see those of their children.
func (svc *Service) Query(ctx context.Context, actor user.User, q core.Query) ([]Attendance, int, error) {
	if !actor.IsAdmin() && !actor.IsTeacher() {
		ids, err := svc.children.OwnedChildIDs(ctx, actor)
		if err != nil {
			return nil, 0, err
		}
		q = q.In("child_id", ids)
	}
	records, total, err := svc.repo.Query(ctx, q)
	return records, total, errors.Wrap(err, "querying attendance")
}

// Summary summarizes the attendance of a child the actor may see.
func (svc *Service) Summary(ctx context.Context, actor user.User, childID string) (Summary, error) {
	c, err := svc.children.GetChild(ctx, actor, childID)
	if err != nil {
		return Summary{}, err
	}
	counts, err := svc.repo.CountByStatus(ctx, c.ID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting attendance")
	}
	return NewSummary(c.ID, counts), nil
}

// Roster returns the attendance taken at a session, by child name.
func (svc *Service) Roster(ctx context.Context, sessionID string) ([]session.RosterEntry, error) {
	q := core.Query{
		Include:  []string{"child"},
		Ordering: []core.DBOrdering{{Field: "recorded_at", Ascending: true}},
	}
	records, _, err := svc.repo.Query(ctx, q.Eq("session_id", sessionID))
	if err != nil {
		return nil, err
	}
	roster := make([]session.RosterEntry, 0, len(records))
	for _, a := range records {
		entry := session.RosterEntry{
			ChildID:    a.ChildID,
			Status:     a.Status,
			Note:       a.Note,
			RecordedAt: a.RecordedAt,
		}
		if a.Child != nil {
			entry.ChildName = a.Child.Name
		}
		roster = append(roster, entry)
	}
	sort.SliceStable(roster, func(i, j int) bool { return roster[i].ChildName < roster[j].ChildName })
	return roster, nil
}
