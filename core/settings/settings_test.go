package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database/dummy"
)

// countingStore counts the loads of the store it wraps.
type countingStore struct {
	settings.Store
	loads   int
	loadErr error
}

func (s *countingStore) Load(ctx context.Context) (settings.Settings, error) {
	s.loads++
	if s.loadErr != nil {
		return settings.Settings{}, s.loadErr
	}
	return s.Store.Load(ctx)
}

func setup() (*settings.Service, *countingStore, *audit.Recorder) {
	db := dummydb.Open()
	store := &countingStore{Store: dummydb.NewSettingsStore(db)}
	rec := audit.NewRecorder(db, dummydb.NewAuditRepository(db))
	return settings.NewService(store, rec, core.NewValidator(core.NewTranslator())), store, rec
}

func TestService_Get(t *testing.T) {
	svc, store, _ := setup()
	ctx := context.Background()

	s, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults(), s)

	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
}

func TestService_Get_failureFallsBackToDefaults(t *testing.T) {
	svc, store, _ := setup()
	store.loadErr = errors.New("connection refused")

	_, err := svc.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, settings.Defaults(), svc.GetOrDefaults(context.Background()))
	assert.Equal(t, 2, store.loads) // failures are not cached
}

func TestService_SaveAndReset(t *testing.T) {
	svc, store, rec := setup()
	ctx := context.Background()
	actor := user.User{ID: "admin-1"}

	in := settings.Defaults()
	in.SchoolName = "  Lycée Wima "
	in.ContactEmail = "Info@Wima.cd"
	in.Timezone = "Africa/Lubumbashi"
	in.DefaultPerPage = 7
	_, err := svc.Save(ctx, actor, in)
	assert.Error(t, err)

	in.DefaultPerPage = 25
	s, err := svc.Save(ctx, actor, in)
	require.NoError(t, err)
	assert.Equal(t, "Lycée Wima", s.SchoolName)
	assert.Equal(t, "info@wima.cd", s.ContactEmail)
	assert.Equal(t, "Africa/Lubumbashi", s.Location().String())

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.Equal(t, 0, store.loads)

	stored, err := store.Store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, stored)

	s, err = svc.Reset(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults(), s)
	_, err = store.Store.Load(ctx)
	assert.True(t, core.IsNotFound(err))

	entries, total, err := rec.Query(ctx, core.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, e := range entries {
		assert.Equal(t, "admin-1", e.ActorID)
		assert.Equal(t, settings.SubjectType, e.SubjectType)
	}
}

func TestSettings_Location(t *testing.T) {
	s := settings.Defaults()
	s.Timezone = "Mars/Olympus"
	assert.Equal(t, time.UTC, s.Location())
}
