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
	"github.com/trezcool/shule/core/attendance"
)

const attendancesTable = "attendances"

var attendanceColumns = qualified(attendancesTable, "child_id", "session_id", "status", "recorded_at")

type attendanceRow struct {
	ID         string      `db:"id"`
	ChildID    string      `db:"child_id"`
	SessionID  string      `db:"session_id"`
	Status     string      `db:"status"`
	Note       string      `db:"note"`
	RecordedBy null.String `db:"recorded_by"`
	RecordedAt time.Time   `db:"recorded_at"`
}

func (r attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:         r.ID,
		ChildID:    r.ChildID,
		SessionID:  r.SessionID,
		Status:     r.Status,
		Note:       r.Note,
		RecordedBy: r.RecordedBy.String,
		RecordedAt: r.RecordedAt.UTC(),
	}
}

type attendanceRepository struct {
	base
	families familyRepository
	sessions sessionRepository
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{
		base:     base{db: db},
		families: familyRepository{base{db: db}},
		sessions: *NewSessionRepository(db),
	}
}

func (repo attendanceRepository) Exists(ctx context.Context, childID, sessionID string) (bool, error) {
	return repo.exists(ctx, attendancesTable, sq.Eq{"child_id": childID, "session_id": sessionID})
}

func (repo attendanceRepository) Create(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	a.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(attendancesTable).
		Columns("id", "child_id", "session_id", "status", "note", "recorded_by", "recorded_at").
		Values(a.ID, a.ChildID, a.SessionID, a.Status, a.Note, null.NewString(a.RecordedBy, a.RecordedBy != ""), a.RecordedAt.UTC()))
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	return a, nil
}

func (repo attendanceRepository) Query(ctx context.Context, q core.Query) ([]attendance.Attendance, int, error) {
	var rows []attendanceRow
	total, err := repo.page(ctx, attendancesTable, attendanceColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying attendances")
	}
	records := make([]attendance.Attendance, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.attendance())
	}

	if q.Includes("child") {
		children, err := repo.families.childrenByID(ctx, distinct(records, func(a attendance.Attendance) string { return a.ChildID }))
		if err != nil {
			return nil, 0, err
		}
		for i := range records {
			if c, ok := children[records[i].ChildID]; ok {
				records[i].Child = &c
			}
		}
	}
	if q.Includes("session") {
		sessions, err := repo.sessions.sessionsByID(ctx, distinct(records, func(a attendance.Attendance) string { return a.SessionID }))
		if err != nil {
			return nil, 0, err
		}
		for i := range records {
			if s, ok := sessions[records[i].SessionID]; ok {
				records[i].Session = &s
			}
		}
	}
	return records, total, nil
}

func (repo attendanceRepository) CountByStatus(ctx context.Context, childID string) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	query := psql.Select("status", "COUNT(*) AS n").
		From(attendancesTable).
		Where(sq.Eq{"child_id": childID}).
		GroupBy("status")
	if err := repo.selectAll(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "counting attendances")
	}
	counts := make(map[string]int, len(attendance.Statuses))
	for _, s := range attendance.Statuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}
