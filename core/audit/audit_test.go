package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database/dummy"
)

type fixture struct {
	db    *dummydb.DB
	users user.Repository
	rec   *audit.Recorder
}

func setup() fixture {
	db := dummydb.Open()
	return fixture{
		db:    db,
		users: dummydb.NewUserRepository(db),
		rec:   audit.NewRecorder(db, dummydb.NewAuditRepository(db)),
	}
}

func (f fixture) countUsers(t *testing.T) int {
	t.Helper()
	_, total, err := f.users.Query(context.Background(), core.Query{})
	require.NoError(t, err)
	return total
}

func (f fixture) entries(t *testing.T) []audit.Entry {
	t.Helper()
	entries, _, err := f.rec.Query(context.Background(), core.Query{})
	require.NoError(t, err)
	return entries
}

func TestRecorder_Mutate(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name        string
		fn          func(f fixture) func(ctx context.Context) (audit.Entry, error)
		wantErr     error
		wantUsers   int
		wantEntries int
	}{
		{
			name: "commits the writes with their entry",
			fn: func(f fixture) func(ctx context.Context) (audit.Entry, error) {
				return func(ctx context.Context) (audit.Entry, error) {
					usr, err := f.users.Create(ctx, user.User{Username: "awesome"})
					if err != nil {
						return audit.Entry{}, err
					}
					return audit.Entry{Action: audit.ActionCreate, Description: "created user", SubjectType: "user", SubjectID: usr.ID}, nil
				}
			},
			wantUsers:   1,
			wantEntries: 1,
		},
		{
			name: "rolls back when fn fails",
			fn: func(f fixture) func(ctx context.Context) (audit.Entry, error) {
				return func(ctx context.Context) (audit.Entry, error) {
					if _, err := f.users.Create(ctx, user.User{Username: "awesome"}); err != nil {
						return audit.Entry{}, err
					}
					return audit.Entry{}, errBoom
				}
			},
			wantErr: errBoom,
		},
		{
			name: "rolls back on an invalid action",
			fn: func(f fixture) func(ctx context.Context) (audit.Entry, error) {
				return func(ctx context.Context) (audit.Entry, error) {
					if _, err := f.users.Create(ctx, user.User{Username: "awesome"}); err != nil {
						return audit.Entry{}, err
					}
					return audit.Entry{Action: "explode", SubjectType: "user"}, nil
				}
			},
			wantErr: audit.ErrInvalidAction,
		},
		{
			name: "rolls back without a subject",
			fn: func(f fixture) func(ctx context.Context) (audit.Entry, error) {
				return func(ctx context.Context) (audit.Entry, error) {
					if _, err := f.users.Create(ctx, user.User{Username: "awesome"}); err != nil {
						return audit.Entry{}, err
					}
					return audit.Entry{Action: audit.ActionCreate}, nil
				}
			},
			wantErr: audit.ErrNoSubject,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup()
			e, err := f.rec.Mutate(context.Background(), "actor-1", tt.fn(f))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v; want %v", err, tt.wantErr)
				assert.Empty(t, e.ID)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, e.ID)
				assert.Equal(t, "actor-1", e.ActorID)
				assert.False(t, e.CreatedAt.IsZero())
				assert.NotNil(t, e.Properties)
			}
			assert.Equal(t, tt.wantUsers, f.countUsers(t))
			assert.Len(t, f.entries(t), tt.wantEntries)
		})
	}
}

func TestRecorder_Mutate_nested(t *testing.T) {
	f := setup()
	ctx := context.Background()

	_, err := f.rec.Mutate(ctx, "actor-1", func(ctx context.Context) (audit.Entry, error) {
		// an inner mutation joins the outer transaction
		if _, err := f.rec.Mutate(ctx, "actor-1", func(ctx context.Context) (audit.Entry, error) {
			usr, err := f.users.Create(ctx, user.User{Username: "awesome"})
			return audit.Entry{Action: audit.ActionCreate, SubjectType: "user", SubjectID: usr.ID}, err
		}); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{}, errors.New("outer failure")
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.countUsers(t))
	assert.Empty(t, f.entries(t))
}

func TestRecorder_Record(t *testing.T) {
	f := setup()
	e, err := f.rec.Record(context.Background(), "actor-1", audit.Entry{
		Action:      audit.ActionDownload,
		Description: "downloaded a photo",
		SubjectType: "child",
		SubjectID:   "child-1",
		ActorID:     "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, "someone-else", e.ActorID)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionDownload, entries[0].Action)
}

func TestAction_Valid(t *testing.T) {
	for _, a := range audit.Actions {
		assert.True(t, a.Valid(), a)
	}
	assert.False(t, audit.Action("explode").Valid())
	assert.False(t, audit.Action("").Valid())
}
