package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/exam"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func enrollmentFields(e enrollment.Enrollment) record {
	return record{
		"id":               e.ID,
		"child_id":         e.ChildID,
		"academic_year_id": e.AcademicYearID,
		"grade":            e.Grade,
		"enrolled_at":      e.EnrolledAt,
	}
}

func (t *tables) enrollmentWith(e enrollment.Enrollment, relations []string) enrollment.Enrollment {
	if core.ContainsString(relations, "child") {
		if c, ok := t.children[e.ChildID]; ok {
			e.Child = &c
		}
	}
	if core.ContainsString(relations, "academic_year") {
		if ay, ok := t.academicYears[e.AcademicYearID]; ok {
			e.AcademicYear = &ay
		}
	}
	return e
}

func (repo *enrollmentRepository) Exists(ctx context.Context, childID, academicYearID string) (bool, error) {
	var found bool
	err := repo.db.view(ctx, func(t *tables) error {
		found = count(t.enrollments, func(e enrollment.Enrollment) bool {
			return e.ChildID == childID && e.AcademicYearID == academicYearID
		}) > 0
		return nil
	})
	return found, err
}

func (repo *enrollmentRepository) Create(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		e.ID = uuid.New().String()
		e.Child, e.AcademicYear = nil, nil
		t.enrollments[e.ID] = e
		return nil
	})
	return e, err
}

func (repo *enrollmentRepository) Get(ctx context.Context, id string) (enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if e, ok = t.enrollments[id]; !ok {
			return enrollment.ErrNotFound
		}
		e = t.enrollmentWith(e, enrollment.Definition.Include)
		return nil
	})
	return e, err
}

func (repo *enrollmentRepository) Delete(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.enrollments[id]; !ok {
			return enrollment.ErrNotFound
		}
		delete(t.enrollments, id)
		return nil
	})
}

func (repo *enrollmentRepository) Query(ctx context.Context, q core.Query) (enrollments []enrollment.Enrollment, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		if enrollments, total, err = run(values(t.enrollments), enrollmentFields, q); err != nil {
			return err
		}
		for i := range enrollments {
			enrollments[i] = t.enrollmentWith(enrollments[i], q.Include)
		}
		return nil
	})
	return enrollments, total, err
}

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) exam.Repository {
	return &examRepository{db: db}
}

func examFields(e exam.Exam) record {
	return record{
		"id":               e.ID,
		"academic_year_id": e.AcademicYearID,
		"title":            e.Title,
		"subject":          e.Subject,
		"held_on":          e.HeldOn,
		"max_score":        e.MaxScore,
		"created_at":       e.CreatedAt,
		"updated_at":       e.UpdatedAt,
	}
}

func (repo *examRepository) Create(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		e.ID = uuid.New().String()
		t.exams[e.ID] = e
		return nil
	})
	return e, err
}

func (repo *examRepository) Update(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		stored, ok := t.exams[e.ID]
		if !ok {
			return exam.ErrNotFound
		}
		e.CreatedAt = stored.CreatedAt
		t.exams[e.ID] = e
		return nil
	})
	return e, err
}

func (repo *examRepository) Delete(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.exams[id]; !ok {
			return exam.ErrNotFound
		}
		delete(t.exams, id)
		return nil
	})
}

func (repo *examRepository) Get(ctx context.Context, id string) (exam.Exam, error) {
	var e exam.Exam
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if e, ok = t.exams[id]; !ok {
			return exam.ErrNotFound
		}
		return nil
	})
	return e, err
}

func (repo *examRepository) Query(ctx context.Context, q core.Query) (exams []exam.Exam, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		exams, total, err = run(values(t.exams), examFields, q)
		return err
	})
	return exams, total, err
}
