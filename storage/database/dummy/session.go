package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) session.Repository {
	return &sessionRepository{db: db}
}

func sessionFields(s session.Session) record {
	return record{
		"id":               s.ID,
		"academic_year_id": s.AcademicYearID,
		"teacher_id":       s.TeacherID,
		"title":            s.Title,
		"location":         s.Location,
		"starts_at":        s.StartsAt,
		"ends_at":          s.EndsAt,
		"status":           s.Status,
		"created_at":       s.CreatedAt,
		"updated_at":       s.UpdatedAt,
	}
}

func (t *tables) sessionWith(s session.Session, relations []string) session.Session {
	if core.ContainsString(relations, "teacher") {
		if u, ok := t.users[s.TeacherID]; ok {
			s.Teacher = &u
		}
	}
	if core.ContainsString(relations, "academic_year") {
		if ay, ok := t.academicYears[s.AcademicYearID]; ok {
			s.AcademicYear = &ay
		}
	}
	return s
}

func (repo *sessionRepository) Create(ctx context.Context, s session.Session) (session.Session, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		s.ID = uuid.New().String()
		s.Teacher, s.AcademicYear = nil, nil
		t.sessions[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *sessionRepository) Update(ctx context.Context, s session.Session) (session.Session, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		stored, ok := t.sessions[s.ID]
		if !ok {
			return session.ErrNotFound
		}
		s.CreatedAt = stored.CreatedAt
		s.Teacher, s.AcademicYear = nil, nil
		t.sessions[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *sessionRepository) Delete(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.sessions[id]; !ok {
			return session.ErrNotFound
		}
		delete(t.sessions, id)
		return nil
	})
}

func (repo *sessionRepository) Get(ctx context.Context, id string) (session.Session, error) {
	var s session.Session
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if s, ok = t.sessions[id]; !ok {
			return session.ErrNotFound
		}
		s = t.sessionWith(s, []string{"teacher", "academic_year"})
		return nil
	})
	return s, err
}

func (repo *sessionRepository) Query(ctx context.Context, q core.Query) (sessions []session.Session, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		if sessions, total, err = run(values(t.sessions), sessionFields, q); err != nil {
			return err
		}
		for i := range sessions {
			sessions[i] = t.sessionWith(sessions[i], q.Include)
		}
		return nil
	})
	return sessions, total, err
}

func (repo *sessionRepository) CountDependents(ctx context.Context, id string) (map[string]int, error) {
	deps := make(map[string]int, 1)
	err := repo.db.view(ctx, func(t *tables) error {
		deps["attendance record"] = count(t.attendances, func(a attendance.Attendance) bool { return a.SessionID == id })
		return nil
	})
	return deps, err
}

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func attendanceFields(a attendance.Attendance) record {
	return record{
		"id":          a.ID,
		"child_id":    a.ChildID,
		"session_id":  a.SessionID,
		"status":      a.Status,
		"recorded_at": a.RecordedAt,
	}
}

func (repo *attendanceRepository) Exists(ctx context.Context, childID, sessionID string) (bool, error) {
	var found bool
	err := repo.db.view(ctx, func(t *tables) error {
		found = count(t.attendances, func(a attendance.Attendance) bool {
			return a.ChildID == childID && a.SessionID == sessionID
		}) > 0
		return nil
	})
	return found, err
}

func (repo *attendanceRepository) Create(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		a.ID = uuid.New().String()
		a.Child, a.Session = nil, nil
		t.attendances[a.ID] = a
		return nil
	})
	return a, err
}

func (repo *attendanceRepository) Query(ctx context.Context, q core.Query) (records []attendance.Attendance, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		if records, total, err = run(values(t.attendances), attendanceFields, q); err != nil {
			return err
		}
		for i := range records {
			if q.Includes("child") {
				if c, ok := t.children[records[i].ChildID]; ok {
					records[i].Child = &c
				}
			}
			if q.Includes("session") {
				if s, ok := t.sessions[records[i].SessionID]; ok {
					records[i].Session = &s
				}
			}
		}
		return nil
	})
	return records, total, err
}

func (repo *attendanceRepository) CountByStatus(ctx context.Context, childID string) (map[string]int, error) {
	counts := make(map[string]int, len(attendance.Statuses))
	for _, s := range attendance.Statuses {
		counts[s] = 0
	}
	err := repo.db.view(ctx, func(t *tables) error {
		for _, a := range t.attendances {
			if a.ChildID == childID {
				counts[a.Status]++
			}
		}
		return nil
	})
	return counts, err
}
