package academicyear_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/tests"
)

func currentIDs(t *testing.T, env *testutil.Env) []string {
	t.Helper()
	years, _, err := env.YearSvc.Query(context.Background(), core.Query{}.Eq("is_current", true))
	require.NoError(t, err)
	ids := make([]string, 0, len(years))
	for _, ay := range years {
		ids = append(ids, ay.ID)
	}
	return ids
}

func TestService_currentIsExclusive(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")

	first := env.CreateYear(t, admin, "2023-2024", core.NewDate(2023, time.September, 1), core.NewDate(2024, time.July, 1), true)
	assert.Equal(t, []string{first.ID}, currentIDs(t, env))

	second := env.CreateYear(t, admin, "2024-2025", core.NewDate(2024, time.September, 1), core.NewDate(2025, time.July, 1), true)
	assert.Equal(t, []string{second.ID}, currentIDs(t, env))

	// not current: leaves the current one alone
	env.CreateYear(t, admin, "2025-2026", core.NewDate(2025, time.September, 1), core.NewDate(2026, time.July, 1), false)
	assert.Equal(t, []string{second.ID}, currentIDs(t, env))

	_, err := env.YearSvc.Update(ctx, admin, first.ID, academicyear.Input{
		Name:      first.Name,
		StartDate: first.StartDate,
		EndDate:   first.EndDate,
		IsCurrent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, currentIDs(t, env))

	cur, err := env.YearSvc.SetCurrent(ctx, admin, second.ID)
	require.NoError(t, err)
	assert.True(t, cur.IsCurrent)
	assert.Equal(t, []string{second.ID}, currentIDs(t, env))

	got, err := env.YearSvc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	env.CreateYear(t, admin, "2024-2025", core.NewDate(2024, time.September, 1), core.NewDate(2025, time.July, 1), false)

	tests := []struct {
		name    string
		in      academicyear.Input
		wantErr bool
	}{
		{name: "blank name", in: academicyear.Input{Name: "  ", StartDate: core.NewDate(2025, 9, 1), EndDate: core.NewDate(2026, 7, 1)}, wantErr: true},
		{name: "end before start", in: academicyear.Input{Name: "2025-2026", StartDate: core.NewDate(2026, 7, 1), EndDate: core.NewDate(2025, 9, 1)}, wantErr: true},
		{name: "same day", in: academicyear.Input{Name: "2025-2026", StartDate: core.NewDate(2025, 9, 1), EndDate: core.NewDate(2025, 9, 1)}, wantErr: true},
		{name: "duplicate name", in: academicyear.Input{Name: "2024-2025", StartDate: core.NewDate(2025, 9, 1), EndDate: core.NewDate(2026, 7, 1)}, wantErr: true},
		{name: "valid", in: academicyear.Input{Name: " 2025-2026 ", StartDate: core.NewDate(2025, 9, 1), EndDate: core.NewDate(2026, 7, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ay, err := env.YearSvc.Create(ctx, admin, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "2025-2026", ay.Name)
			assert.False(t, ay.IsCurrent)
		})
	}
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	teacher := testutil.CreateTeacher(t, env.UsrRepo, "teacher1")
	ay := env.CreateYear(t, admin, "2024-2025", core.NewDate(2024, time.September, 1), core.NewDate(2025, time.July, 1), true)

	startsAt := time.Date(2024, time.October, 1, 8, 0, 0, 0, time.UTC)
	s, err := env.SessionSvc.Create(ctx, admin, session.Input{
		AcademicYearID: ay.ID,
		TeacherID:      teacher.ID,
		Title:          "Maths",
		StartsAt:       startsAt,
		EndsAt:         startsAt.Add(time.Hour),
	})
	require.NoError(t, err)

	err = env.YearSvc.Delete(ctx, admin, ay.ID)
	var depErr *core.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, 1, depErr.Dependents["session"])
	assert.EqualError(t, err, "cannot delete this academic year: it still has 1 session")

	require.NoError(t, env.SessionSvc.Delete(ctx, admin, s.ID))
	require.NoError(t, env.YearSvc.Delete(ctx, admin, ay.ID))

	_, err = env.YearSvc.Get(ctx, ay.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Delete_blockedByEnrollment(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	ay := env.CreateYear(t, admin, "2024-2025", core.NewDate(2024, time.September, 1), core.NewDate(2025, time.July, 1), true)
	_, kids := env.CreateFamily(t, admin, nil, "Mum", "mum@test.cd", "Amani")

	_, err := env.EnrollmentSvc.Enroll(ctx, admin, enrollment.Input{ChildID: kids[0].ID, AcademicYearID: ay.ID, Grade: "6A"})
	require.NoError(t, err)

	_, before, err := env.AuditRec.Query(ctx, core.Query{})
	require.NoError(t, err)

	err = env.YearSvc.Delete(ctx, admin, ay.ID)
	var depErr *core.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, map[string]int{"enrollment": 1}, nonZero(depErr.Dependents))
	assert.EqualError(t, err, "cannot delete this academic year: it still has 1 enrollment")

	_, after, err := env.AuditRec.Query(ctx, core.Query{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, deletes, err := env.AuditRec.Query(ctx, core.Query{}.Eq("action", string(audit.ActionDelete)))
	require.NoError(t, err)
	assert.Zero(t, deletes)

	got, err := env.YearSvc.Get(ctx, ay.ID)
	require.NoError(t, err)
	assert.Equal(t, ay.Name, got.Name)
	assert.True(t, got.IsCurrent)
}

func nonZero(deps map[string]int) map[string]int {
	out := make(map[string]int)
	for k, n := range deps {
		if n > 0 {
			out[k] = n
		}
	}
	return out
}

func TestService_Create_switchesCurrentWithOneEntry(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	old := env.CreateYear(t, admin, "2024-2025", core.NewDate(2024, time.September, 1), core.NewDate(2025, time.June, 30), true)

	_, before, err := env.AuditRec.Query(ctx, core.Query{})
	require.NoError(t, err)

	ay, err := env.YearSvc.Create(ctx, admin, academicyear.Input{
		Name:      "2025-2026",
		StartDate: core.NewDate(2025, time.September, 1),
		EndDate:   core.NewDate(2026, time.June, 30),
		IsCurrent: true,
	})
	require.NoError(t, err)
	assert.True(t, ay.IsCurrent)

	got, err := env.YearSvc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrent)
	assert.Equal(t, []string{ay.ID}, currentIDs(t, env))

	_, after, err := env.AuditRec.Query(ctx, core.Query{})
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}
