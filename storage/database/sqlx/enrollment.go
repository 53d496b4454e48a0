package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/enrollment"
)

const enrollmentsTable = "enrollments"

var enrollmentColumns = qualified(enrollmentsTable, "child_id", "academic_year_id", "grade", "enrolled_at")

type enrollmentRow struct {
	ID             string    `db:"id"`
	ChildID        string    `db:"child_id"`
	AcademicYearID string    `db:"academic_year_id"`
	Grade          string    `db:"grade"`
	EnrolledAt     time.Time `db:"enrolled_at"`
}

func (r enrollmentRow) enrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:             r.ID,
		ChildID:        r.ChildID,
		AcademicYearID: r.AcademicYearID,
		Grade:          r.Grade,
		EnrolledAt:     r.EnrolledAt.UTC(),
	}
}

type enrollmentRepository struct {
	base
	years    academicYearRepository
	families familyRepository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{
		base:     base{db: db},
		years:    academicYearRepository{base{db: db}},
		families: familyRepository{base{db: db}},
	}
}

func (repo enrollmentRepository) Exists(ctx context.Context, childID, academicYearID string) (bool, error) {
	return repo.exists(ctx, enrollmentsTable, sq.Eq{"child_id": childID, "academic_year_id": academicYearID})
}

func (repo enrollmentRepository) Create(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	e.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(enrollmentsTable).
		Columns("id", "child_id", "academic_year_id", "grade", "enrolled_at").
		Values(e.ID, e.ChildID, e.AcademicYearID, e.Grade, e.EnrolledAt.UTC()))
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) Get(ctx context.Context, id string) (enrollment.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var row enrollmentRow
	if err := repo.get(ctx, &row, psql.Select("*").From(enrollmentsTable).Where(sq.Eq{"id": id})); err != nil {
		return enrollment.Enrollment{}, notFound(err, enrollment.ErrNotFound, "getting enrollment")
	}
	enrollments := []enrollment.Enrollment{row.enrollment()}
	if err := repo.include(ctx, enrollments, enrollment.Definition.Include); err != nil {
		return enrollment.Enrollment{}, err
	}
	return enrollments[0], nil
}

func (repo enrollmentRepository) Delete(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(enrollmentsTable).Where(sq.Eq{"id": id}), enrollment.ErrNotFound)
	return notFound(err, enrollment.ErrNotFound, "deleting enrollment")
}

func (repo enrollmentRepository) Query(ctx context.Context, q core.Query) ([]enrollment.Enrollment, int, error) {
	var rows []enrollmentRow
	total, err := repo.page(ctx, enrollmentsTable, enrollmentColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, row.enrollment())
	}
	if err = repo.include(ctx, enrollments, q.Include); err != nil {
		return nil, 0, err
	}
	return enrollments, total, nil
}

func (repo enrollmentRepository) include(ctx context.Context, enrollments []enrollment.Enrollment, relations []string) error {
	if core.ContainsString(relations, "child") {
		children, err := repo.families.childrenByID(ctx, distinct(enrollments, func(e enrollment.Enrollment) string { return e.ChildID }))
		if err != nil {
			return err
		}
		for i := range enrollments {
			if c, ok := children[enrollments[i].ChildID]; ok {
				enrollments[i].Child = &c
			}
		}
	}
	if core.ContainsString(relations, "academic_year") {
		years, err := repo.years.yearsByID(ctx, distinct(enrollments, func(e enrollment.Enrollment) string { return e.AcademicYearID }))
		if err != nil {
			return err
		}
		for i := range enrollments {
			if ay, ok := years[enrollments[i].AcademicYearID]; ok {
				enrollments[i].AcademicYear = &ay
			}
		}
	}
	return nil
}
