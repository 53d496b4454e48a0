package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
)

const examsTable = "exams"

var examColumns = qualified(examsTable,
	"academic_year_id", "title", "subject", "held_on", "max_score", "created_at", "updated_at")

type examRow struct {
	ID             string    `db:"id"`
	AcademicYearID string    `db:"academic_year_id"`
	Title          string    `db:"title"`
	Subject        string    `db:"subject"`
	HeldOn         core.Date `db:"held_on"`
	MaxScore       int       `db:"max_score"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r examRow) exam() exam.Exam {
	return exam.Exam{
		ID:             r.ID,
		AcademicYearID: r.AcademicYearID,
		Title:          r.Title,
		Subject:        r.Subject,
		HeldOn:         r.HeldOn,
		MaxScore:       r.MaxScore,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type examRepository struct {
	base
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) *examRepository {
	return &examRepository{base{db: db}}
}

func (repo examRepository) Create(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	e.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(examsTable).
		Columns("id", "academic_year_id", "title", "subject", "held_on", "max_score", "created_at", "updated_at").
		Values(e.ID, e.AcademicYearID, e.Title, e.Subject, e.HeldOn, e.MaxScore, e.CreatedAt.UTC(), e.UpdatedAt.UTC()))
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return e, nil
}

func (repo examRepository) Update(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	err := repo.runOne(ctx, psql.Update(examsTable).SetMap(map[string]interface{}{
		"academic_year_id": e.AcademicYearID,
		"title":            e.Title,
		"subject":          e.Subject,
		"held_on":          e.HeldOn,
		"max_score":        e.MaxScore,
		"updated_at":       e.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": e.ID}), exam.ErrNotFound)
	if err != nil {
		return exam.Exam{}, notFound(err, exam.ErrNotFound, "updating exam")
	}
	return e, nil
}

func (repo examRepository) Delete(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(examsTable).Where(sq.Eq{"id": id}), exam.ErrNotFound)
	return notFound(err, exam.ErrNotFound, "deleting exam")
}

func (repo examRepository) Get(ctx context.Context, id string) (exam.Exam, error) {
	if _, err := uuid.Parse(id); err != nil {
		return exam.Exam{}, exam.ErrNotFound
	}
	var row examRow
	if err := repo.get(ctx, &row, psql.Select("*").From(examsTable).Where(sq.Eq{"id": id})); err != nil {
		return exam.Exam{}, notFound(err, exam.ErrNotFound, "getting exam")
	}
	return row.exam(), nil
}

func (repo examRepository) Query(ctx context.Context, q core.Query) ([]exam.Exam, int, error) {
	var rows []examRow
	total, err := repo.page(ctx, examsTable, examColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, row := range rows {
		exams = append(exams, row.exam())
	}
	return exams, total, nil
}
