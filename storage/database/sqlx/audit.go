package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
)

const activityLogsTable = "activity_logs"

var activityLogColumns = qualified(activityLogsTable,
	"actor_id", "action", "description", "subject_type", "subject_id", "created_at")

type activityLogRow struct {
	ID          string      `db:"id"`
	ActorID     null.String `db:"actor_id"`
	Action      string      `db:"action"`
	Description string      `db:"description"`
	SubjectType string      `db:"subject_type"`
	SubjectID   string      `db:"subject_id"`
	Properties  []byte      `db:"properties"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r activityLogRow) entry() (audit.Entry, error) {
	e := audit.Entry{
		ID:          r.ID,
		ActorID:     r.ActorID.String,
		Action:      audit.Action(r.Action),
		Description: r.Description,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Properties, &e.Properties); err != nil {
		return audit.Entry{}, errors.Wrap(err, "decoding properties")
	}
	if e.Properties == nil {
		e.Properties = map[string]interface{}{}
	}
	return e, nil
}

type auditRepository struct {
	base
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) *auditRepository {
	return &auditRepository{base{db: db}}
}

func (repo auditRepository) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	e.ID = uuid.New().String()
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "encoding properties")
	}
	_, err = repo.run(ctx, psql.Insert(activityLogsTable).
		Columns("id", "actor_id", "action", "description", "subject_type", "subject_id", "properties", "created_at").
		Values(e.ID, null.NewString(e.ActorID, e.ActorID != ""), string(e.Action), e.Description,
			e.SubjectType, e.SubjectID, props, e.CreatedAt.UTC()))
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting activity log")
	}
	return e, nil
}

func (repo auditRepository) Query(ctx context.Context, q core.Query) ([]audit.Entry, int, error) {
	var rows []activityLogRow
	total, err := repo.page(ctx, activityLogsTable, activityLogColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying activity logs")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}
