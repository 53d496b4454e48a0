package dummydb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/session"
)

type academicYearRepository struct {
	db *DB
}

var _ academicyear.Repository = (*academicYearRepository)(nil) // interface compliance check

func NewAcademicYearRepository(db *DB) academicyear.Repository {
	return &academicYearRepository{db: db}
}

func academicYearFields(ay academicyear.AcademicYear) record {
	return record{
		"id":         ay.ID,
		"name":       ay.Name,
		"start_date": ay.StartDate,
		"end_date":   ay.EndDate,
		"is_current": ay.IsCurrent,
		"created_at": ay.CreatedAt,
		"updated_at": ay.UpdatedAt,
	}
}

func (repo *academicYearRepository) NameExists(ctx context.Context, name string, excludedID string) (bool, error) {
	var found bool
	err := repo.db.view(ctx, func(t *tables) error {
		for _, ay := range t.academicYears {
			if ay.ID != excludedID && strings.EqualFold(ay.Name, name) {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (repo *academicYearRepository) Create(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		ay.ID = uuid.New().String()
		ay.IsCurrent = false
		t.academicYears[ay.ID] = ay
		return nil
	})
	return ay, err
}

func (repo *academicYearRepository) Update(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		stored, ok := t.academicYears[ay.ID]
		if !ok {
			return academicyear.ErrNotFound
		}
		ay.IsCurrent = stored.IsCurrent
		ay.CreatedAt = stored.CreatedAt
		t.academicYears[ay.ID] = ay
		return nil
	})
	return ay, err
}

func (repo *academicYearRepository) Delete(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.academicYears[id]; !ok {
			return academicyear.ErrNotFound
		}
		delete(t.academicYears, id)
		return nil
	})
}

func (repo *academicYearRepository) Get(ctx context.Context, id string) (academicyear.AcademicYear, error) {
	var ay academicyear.AcademicYear
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if ay, ok = t.academicYears[id]; !ok {
			return academicyear.ErrNotFound
		}
		return nil
	})
	return ay, err
}

func (repo *academicYearRepository) Current(ctx context.Context) (academicyear.AcademicYear, error) {
	var current academicyear.AcademicYear
	err := repo.db.view(ctx, func(t *tables) error {
		for _, ay := range t.academicYears {
			if ay.IsCurrent {
				current = ay
				return nil
			}
		}
		return academicyear.ErrNoCurrent
	})
	return current, err
}

func (repo *academicYearRepository) Query(ctx context.Context, q core.Query) (years []academicyear.AcademicYear, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		years, total, err = run(values(t.academicYears), academicYearFields, q)
		return err
	})
	return years, total, err
}

func (repo *academicYearRepository) ClearCurrent(ctx context.Context) error {
	return repo.db.view(ctx, func(t *tables) error {
		for id, ay := range t.academicYears {
			if ay.IsCurrent {
				ay.IsCurrent = false
				t.academicYears[id] = ay
			}
		}
		return nil
	})
}

func (repo *academicYearRepository) MarkCurrent(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		ay, ok := t.academicYears[id]
		if !ok {
			return academicyear.ErrNotFound
		}
		ay.IsCurrent = true
		t.academicYears[id] = ay
		return nil
	})
}

func (repo *academicYearRepository) CountDependents(ctx context.Context, id string) (map[string]int, error) {
	deps := make(map[string]int, 3)
	err := repo.db.view(ctx, func(t *tables) error {
		deps["enrollment"] = count(t.enrollments, func(e enrollment.Enrollment) bool { return e.AcademicYearID == id })
		deps["exam"] = count(t.exams, func(e exam.Exam) bool { return e.AcademicYearID == id })
		deps["session"] = count(t.sessions, func(s session.Session) bool { return s.AcademicYearID == id })
		return nil
	})
	return deps, err
}
