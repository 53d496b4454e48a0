package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func entryFields(e audit.Entry) record {
	return record{
		"id":           e.ID,
		"actor_id":     e.ActorID,
		"action":       string(e.Action),
		"description":  e.Description,
		"subject_type": e.SubjectType,
		"subject_id":   e.SubjectID,
		"created_at":   e.CreatedAt,
	}
}

func (repo *auditRepository) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		e.ID = uuid.New().String()
		e.CreatedAt = e.CreatedAt.UTC()
		if e.Properties == nil {
			e.Properties = map[string]interface{}{}
		}
		t.activityLogs = append(t.activityLogs, e)
		return nil
	})
	return e, err
}

func (repo *auditRepository) Query(ctx context.Context, q core.Query) (entries []audit.Entry, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		entries, total, err = run(t.activityLogs, entryFields, q)
		return err
	})
	return entries, total, err
}
