package dummydb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/user"
)

func TestDB_WithinTx(t *testing.T) {
	db := Open()
	users := NewUserRepository(db)
	ctx := context.Background()

	count := func(ctx context.Context) int {
		_, total, err := users.Query(ctx, core.Query{})
		require.NoError(t, err)
		return total
	}

	errBoom := errors.New("boom")
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := users.Create(ctx, user.User{Username: "awesome"}); err != nil {
			return err
		}
		assert.Equal(t, 1, count(ctx))
		assert.Equal(t, 0, count(context.Background())) // not visible outside yet
		return errBoom
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 0, count(ctx))

	err = db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := users.Create(ctx, user.User{Username: "awesome"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(ctx))

	db.Reset()
	assert.Equal(t, 0, count(ctx))
}

func TestUserRepository_Delete_clearsReferences(t *testing.T) {
	db := Open()
	ctx := context.Background()
	users := NewUserRepository(db)
	families := NewFamilyRepository(db)
	sessions := NewSessionRepository(db)
	logs := NewAuditRepository(db)

	teacher, err := users.Create(ctx, user.User{Username: "teacher1"})
	require.NoError(t, err)
	other, err := users.Create(ctx, user.User{Username: "teacher2"})
	require.NoError(t, err)

	p, err := families.CreateParent(ctx, family.ParentProfile{Name: "Mum", UserID: teacher.ID})
	require.NoError(t, err)
	s, err := sessions.Create(ctx, session.Session{Title: "Maths", TeacherID: teacher.ID})
	require.NoError(t, err)
	_, err = logs.Append(ctx, audit.Entry{Action: audit.ActionCreate, SubjectType: "session", SubjectID: s.ID, ActorID: teacher.ID})
	require.NoError(t, err)

	n, err := users.Delete(ctx, teacher.ID, "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = users.Get(ctx, user.GetFilter{ID: teacher.ID})
	assert.Equal(t, user.ErrNotFound, err)
	_, err = users.Get(ctx, user.GetFilter{ID: other.ID})
	assert.NoError(t, err)

	gotP, err := families.GetParent(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, gotP.UserID)

	gotS, err := sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, gotS.TeacherID)

	entries, _, err := logs.Query(ctx, core.Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ActorID)
}
