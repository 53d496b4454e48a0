package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
)

const academicYearsTable = "academic_years"

var academicYearColumns = qualified(academicYearsTable,
	"name", "start_date", "end_date", "is_current", "created_at", "updated_at")

type academicYearRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StartDate core.Date `db:"start_date"`
	EndDate   core.Date `db:"end_date"`
	IsCurrent bool      `db:"is_current"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r academicYearRow) academicYear() academicyear.AcademicYear {
	return academicyear.AcademicYear{
		ID:        r.ID,
		Name:      r.Name,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		IsCurrent: r.IsCurrent,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type academicYearRepository struct {
	base
}

var _ academicyear.Repository = (*academicYearRepository)(nil) // interface compliance check

func NewAcademicYearRepository(db *sqlx.DB) *academicYearRepository {
	return &academicYearRepository{base{db: db}}
}

func (repo academicYearRepository) NameExists(ctx context.Context, name string, excludedID string) (bool, error) {
	cond := sq.And{sq.Expr("lower(name) = lower(?)", name)}
	if excludedID != "" {
		cond = append(cond, sq.NotEq{"id": excludedID})
	}
	return repo.exists(ctx, academicYearsTable, cond)
}

func (repo academicYearRepository) Create(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	ay.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(academicYearsTable).
		Columns("id", "name", "start_date", "end_date", "is_current", "created_at", "updated_at").
		Values(ay.ID, ay.Name, ay.StartDate, ay.EndDate, false, ay.CreatedAt.UTC(), ay.UpdatedAt.UTC()))
	if err != nil {
		return academicyear.AcademicYear{}, errors.Wrap(err, "inserting academic year")
	}
	ay.IsCurrent = false
	return ay, nil
}

// Update leaves is_current alone: it only changes through ClearCurrent and MarkCurrent.
func (repo academicYearRepository) Update(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	err := repo.runOne(ctx, psql.Update(academicYearsTable).SetMap(map[string]interface{}{
		"name":       ay.Name,
		"start_date": ay.StartDate,
		"end_date":   ay.EndDate,
		"updated_at": ay.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": ay.ID}), academicyear.ErrNotFound)
	if err != nil {
		return academicyear.AcademicYear{}, notFound(err, academicyear.ErrNotFound, "updating academic year")
	}
	return repo.Get(ctx, ay.ID)
}

func (repo academicYearRepository) Delete(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(academicYearsTable).Where(sq.Eq{"id": id}), academicyear.ErrNotFound)
	return notFound(err, academicyear.ErrNotFound, "deleting academic year")
}

func (repo academicYearRepository) Get(ctx context.Context, id string) (academicyear.AcademicYear, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	var row academicYearRow
	if err := repo.get(ctx, &row, psql.Select("*").From(academicYearsTable).Where(sq.Eq{"id": id})); err != nil {
		return academicyear.AcademicYear{}, notFound(err, academicyear.ErrNotFound, "getting academic year")
	}
	return row.academicYear(), nil
}

func (repo academicYearRepository) Current(ctx context.Context) (academicyear.AcademicYear, error) {
	var row academicYearRow
	if err := repo.get(ctx, &row, psql.Select("*").From(academicYearsTable).Where(sq.Eq{"is_current": true})); err != nil {
		return academicyear.AcademicYear{}, notFound(err, academicyear.ErrNoCurrent, "getting current academic year")
	}
	return row.academicYear(), nil
}

func (repo academicYearRepository) Query(ctx context.Context, q core.Query) ([]academicyear.AcademicYear, int, error) {
	var rows []academicYearRow
	total, err := repo.page(ctx, academicYearsTable, academicYearColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying academic years")
	}
	years := make([]academicyear.AcademicYear, 0, len(rows))
	for _, row := range rows {
		years = append(years, row.academicYear())
	}
	return years, total, nil
}

// yearsByID batch-loads academic years for eager loading.
func (repo academicYearRepository) yearsByID(ctx context.Context, ids []string) (map[string]academicyear.AcademicYear, error) {
	years := make(map[string]academicyear.AcademicYear, len(ids))
	if len(ids) == 0 {
		return years, nil
	}
	var rows []academicYearRow
	if err := repo.selectAll(ctx, &rows, psql.Select("*").From(academicYearsTable).Where(sq.Eq{"id": ids})); err != nil {
		return nil, errors.Wrap(err, "loading academic years")
	}
	for _, row := range rows {
		years[row.ID] = row.academicYear()
	}
	return years, nil
}

func (repo academicYearRepository) ClearCurrent(ctx context.Context) error {
	_, err := repo.run(ctx, psql.Update(academicYearsTable).Set("is_current", false).Where(sq.Eq{"is_current": true}))
	return errors.Wrap(err, "clearing current academic year")
}

func (repo academicYearRepository) MarkCurrent(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Update(academicYearsTable).Set("is_current", true).Where(sq.Eq{"id": id}), academicyear.ErrNotFound)
	return notFound(err, academicyear.ErrNotFound, "marking current academic year")
}

func (repo academicYearRepository) CountDependents(ctx context.Context, id string) (map[string]int, error) {
	deps := make(map[string]int, 3)
	for name, table := range map[string]string{
		"enrollment": enrollmentsTable,
		"exam":       examsTable,
		"session":    sessionsTable,
	} {
		n, err := repo.count(ctx, table, sq.Eq{"academic_year_id": id})
		if err != nil {
			return nil, errors.Wrapf(err, "counting %ss", name)
		}
		deps[name] = n
	}
	return deps, nil
}
