package invoice_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/tests"
)

func validationErr(t *testing.T, err error) error {
	t.Helper()
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	return vErr.Err
}

func TestService_payments(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	teacher := testutil.CreateTeacher(t, env.UsrRepo, "teacher1")
	_, kids := env.CreateFamily(t, admin, nil, "Mum", "mum@test.cd", "Amani")

	in := invoice.Input{
		ChildID:     kids[0].ID,
		Amount:      decimal.NewFromInt(100),
		Description: " Term 1 fees ",
		IssuedOn:    core.NewDate(2024, time.September, 1),
	}
	_, err := env.InvoiceSvc.Create(ctx, teacher, in)
	assert.Equal(t, core.ErrPermissionDenied, err)

	inv, err := env.InvoiceSvc.Create(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, inv.Status)
	assert.Equal(t, "Term 1 fees", inv.Description)
	assert.Equal(t, core.NewDate(2024, time.October, 1), inv.DueOn) // default due days: 30
	assert.Regexp(t, `^INV-202409-[0-9A-F]{6}$`, inv.Number)

	cash := func(amount string) invoice.PaymentInput {
		return invoice.PaymentInput{Amount: decimal.RequireFromString(amount), Method: invoice.MethodCash}
	}

	_, err = env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, cash("40"))
	assert.Equal(t, invoice.ErrNotPayable, validationErr(t, err))

	_, err = env.InvoiceSvc.Send(ctx, admin, inv.ID)
	require.NoError(t, err)
	assert.Len(t, env.Mail.Sent(), 1)

	_, err = env.InvoiceSvc.Update(ctx, admin, inv.ID, invoice.Input{
		ChildID:     kids[0].ID,
		Amount:      decimal.NewFromInt(120),
		Description: "Term 1 fees",
		IssuedOn:    inv.IssuedOn,
		DueOn:       inv.DueOn,
	})
	require.NoError(t, err)

	_, err = env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, cash("12.345"))
	assert.Equal(t, invoice.ErrInvalidAmount, validationErr(t, err))

	got, err := env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, cash("40"))
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPartiallyPaid, got.Status)
	assert.Equal(t, "80.00", got.RemainingBalance().StringFixed(2))

	_, err = env.InvoiceSvc.Update(ctx, admin, inv.ID, in)
	assert.Equal(t, invoice.ErrNotEditable, validationErr(t, err))

	_, err = env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, cash("80.01"))
	assert.Equal(t, invoice.ErrAmountExceeds, validationErr(t, err))

	got, err = env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, cash("80"))
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.True(t, got.RemainingBalance().IsZero())
	assert.Len(t, got.Payments, 2)
	assert.Equal(t, admin.ID, got.Payments[0].RecordedBy)

	_, err = env.InvoiceSvc.Cancel(ctx, admin, inv.ID)
	assert.EqualError(t, validationErr(t, err), "a paid invoice cannot be cancelled")

	err = env.InvoiceSvc.Delete(ctx, admin, inv.ID)
	var depErr *core.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.EqualError(t, err, "cannot delete this invoice: it still has 2 payments")
}

func TestService_overduePayment(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	_, kids := env.CreateFamily(t, admin, nil, "Mum", "mum@test.cd", "Amani")

	inv, err := env.InvoiceSvc.Create(ctx, admin, invoice.Input{
		ChildID:     kids[0].ID,
		Amount:      decimal.NewFromInt(50),
		Description: "Uniform",
		IssuedOn:    core.NewDate(2020, time.January, 1),
		DueOn:       core.NewDate(2020, time.January, 15),
	})
	require.NoError(t, err)

	// drafts are never marked overdue
	n, err := env.InvoiceSvc.MarkOverdue(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = env.InvoiceSvc.Send(ctx, admin, inv.ID)
	require.NoError(t, err)
	n, err = env.InvoiceSvc.MarkOverdue(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a partial payment leaves an overdue invoice overdue
	got, err := env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, invoice.PaymentInput{
		Amount: decimal.NewFromInt(20),
		Method: invoice.MethodMobileMoney,
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusOverdue, got.Status)
	assert.Greater(t, got.DaysOverdue(env.InvoiceSvc.Today(ctx)), 0)

	got, err = env.InvoiceSvc.RecordPayment(ctx, admin, inv.ID, invoice.PaymentInput{
		Amount: decimal.NewFromInt(30),
		Method: invoice.MethodMobileMoney,
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.Equal(t, 0, got.DaysOverdue(env.InvoiceSvc.Today(ctx)))
}

func TestService_parentScope(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	mumUsr := testutil.CreateParentUser(t, env.UsrRepo, "mumuser")
	_, mine := env.CreateFamily(t, admin, &mumUsr, "Mum", "mum@test.cd", "Amani")
	_, theirs := env.CreateFamily(t, admin, nil, "Dad", "dad@test.cd", "Baraka")

	create := func(childID string) invoice.Invoice {
		inv, err := env.InvoiceSvc.Create(ctx, admin, invoice.Input{
			ChildID:     childID,
			Amount:      decimal.NewFromInt(10),
			Description: "Trip",
		})
		require.NoError(t, err)
		return inv
	}
	own := create(mine[0].ID)
	other := create(theirs[0].ID)

	invoices, total, err := env.InvoiceSvc.Query(ctx, mumUsr, core.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, invoices, 1)
	assert.Equal(t, own.ID, invoices[0].ID)

	_, err = env.InvoiceSvc.Get(ctx, mumUsr, own.ID)
	assert.NoError(t, err)
	_, err = env.InvoiceSvc.Get(ctx, mumUsr, other.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, total, err = env.InvoiceSvc.Query(ctx, admin, core.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
