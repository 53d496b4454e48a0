package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/settings"
)

const settingsTable = "settings"

// settingsStore keeps the settings document in a single-row table.
type settingsStore struct {
	base
}

var _ settings.Store = (*settingsStore)(nil) // interface compliance check

func NewSettingsStore(db *sqlx.DB) *settingsStore {
	return &settingsStore{base{db: db}}
}

func (store settingsStore) Load(ctx context.Context) (settings.Settings, error) {
	var doc []byte
	if err := store.get(ctx, &doc, psql.Select("document").From(settingsTable).Where(sq.Eq{"id": 1})); err != nil {
		return settings.Settings{}, notFound(err, settings.ErrNotFound, "loading settings")
	}
	s := settings.Defaults()
	if err := json.Unmarshal(doc, &s); err != nil {
		return settings.Settings{}, errors.Wrap(err, "decoding settings")
	}
	return s, nil
}

func (store settingsStore) Save(ctx context.Context, s settings.Settings) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding settings")
	}
	_, err = store.run(ctx, psql.Insert(settingsTable).
		Columns("id", "document", "updated_at").
		Values(1, doc, time.Now().UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at"))
	return errors.Wrap(err, "saving settings")
}

func (store settingsStore) Reset(ctx context.Context) error {
	_, err := store.run(ctx, psql.Delete(settingsTable))
	return errors.Wrap(err, "resetting settings")
}
