package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

const sessionsTable = "sessions"

var sessionColumns = qualified(sessionsTable,
	"academic_year_id", "teacher_id", "title", "location", "starts_at", "ends_at", "status", "created_at", "updated_at")

type sessionRow struct {
	ID             string      `db:"id"`
	AcademicYearID string      `db:"academic_year_id"`
	TeacherID      null.String `db:"teacher_id"`
	Title          string      `db:"title"`
	Location       string      `db:"location"`
	StartsAt       time.Time   `db:"starts_at"`
	EndsAt         time.Time   `db:"ends_at"`
	Status         string      `db:"status"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r sessionRow) session() session.Session {
	return session.Session{
		ID:             r.ID,
		AcademicYearID: r.AcademicYearID,
		TeacherID:      r.TeacherID.String,
		Title:          r.Title,
		Location:       r.Location,
		StartsAt:       r.StartsAt.UTC(),
		EndsAt:         r.EndsAt.UTC(),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type sessionRepository struct {
	base
	users userRepository
	years academicYearRepository
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{
		base:  base{db: db},
		users: userRepository{base{db: db}},
		years: academicYearRepository{base{db: db}},
	}
}

func (repo sessionRepository) values(s session.Session) map[string]interface{} {
	return map[string]interface{}{
		"academic_year_id": s.AcademicYearID,
		"teacher_id":       null.NewString(s.TeacherID, s.TeacherID != ""),
		"title":            s.Title,
		"location":         s.Location,
		"starts_at":        s.StartsAt.UTC(),
		"ends_at":          s.EndsAt.UTC(),
		"status":           s.Status,
		"updated_at":       s.UpdatedAt.UTC(),
	}
}

func (repo sessionRepository) Create(ctx context.Context, s session.Session) (session.Session, error) {
	s.ID = uuid.New().String()
	values := repo.values(s)
	values["id"] = s.ID
	values["created_at"] = s.CreatedAt.UTC()
	if _, err := repo.run(ctx, psql.Insert(sessionsTable).SetMap(values)); err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo sessionRepository) Update(ctx context.Context, s session.Session) (session.Session, error) {
	err := repo.runOne(ctx, psql.Update(sessionsTable).SetMap(repo.values(s)).Where(sq.Eq{"id": s.ID}), session.ErrNotFound)
	if err != nil {
		return session.Session{}, notFound(err, session.ErrNotFound, "updating session")
	}
	return s, nil
}

func (repo sessionRepository) Delete(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(sessionsTable).Where(sq.Eq{"id": id}), session.ErrNotFound)
	return notFound(err, session.ErrNotFound, "deleting session")
}

func (repo sessionRepository) Get(ctx context.Context, id string) (session.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return session.Session{}, session.ErrNotFound
	}
	var row sessionRow
	if err := repo.get(ctx, &row, psql.Select("*").From(sessionsTable).Where(sq.Eq{"id": id})); err != nil {
		return session.Session{}, notFound(err, session.ErrNotFound, "getting session")
	}
	sessions := []session.Session{row.session()}
	if err := repo.include(ctx, sessions, []string{"teacher", "academic_year"}); err != nil {
		return session.Session{}, err
	}
	return sessions[0], nil
}

func (repo sessionRepository) Query(ctx context.Context, q core.Query) ([]session.Session, int, error) {
	var rows []sessionRow
	total, err := repo.page(ctx, sessionsTable, sessionColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.session())
	}
	if err = repo.include(ctx, sessions, q.Include); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (repo sessionRepository) include(ctx context.Context, sessions []session.Session, relations []string) error {
	if core.ContainsString(relations, "teacher") {
		users, err := repo.users.usersByID(ctx, distinct(sessions, func(s session.Session) string { return s.TeacherID }))
		if err != nil {
			return err
		}
		for i := range sessions {
			if u, ok := users[sessions[i].TeacherID]; ok {
				sessions[i].Teacher = &u
			}
		}
	}
	if core.ContainsString(relations, "academic_year") {
		years, err := repo.years.yearsByID(ctx, distinct(sessions, func(s session.Session) string { return s.AcademicYearID }))
		if err != nil {
			return err
		}
		for i := range sessions {
			if ay, ok := years[sessions[i].AcademicYearID]; ok {
				sessions[i].AcademicYear = &ay
			}
		}
	}
	return nil
}

// sessionsByID batch-loads sessions for eager loading.
func (repo sessionRepository) sessionsByID(ctx context.Context, ids []string) (map[string]session.Session, error) {
	sessions := make(map[string]session.Session, len(ids))
	if len(ids) == 0 {
		return sessions, nil
	}
	var rows []sessionRow
	if err := repo.selectAll(ctx, &rows, psql.Select("*").From(sessionsTable).Where(sq.Eq{"id": ids})); err != nil {
		return nil, errors.Wrap(err, "loading sessions")
	}
	for _, row := range rows {
		sessions[row.ID] = row.session()
	}
	return sessions, nil
}

func (repo sessionRepository) CountDependents(ctx context.Context, id string) (map[string]int, error) {
	n, err := repo.count(ctx, attendancesTable, sq.Eq{"session_id": id})
	if err != nil {
		return nil, errors.Wrap(err, "counting attendance records")
	}
	return map[string]int{"attendance record": n}, nil
}
