package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusPaid, false},
		{StatusSent, StatusOverdue, true},
		{StatusPartiallyPaid, StatusCancelled, false},
		{StatusOverdue, StatusPaid, true},
		{StatusPaid, StatusCancelled, false},
		{StatusCancelled, StatusSent, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+" to "+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestInvoice_Balance(t *testing.T) {
	due := core.NewDate(2024, time.March, 31)
	inv := Invoice{
		Amount: decimal.RequireFromString("150.50"),
		Status: StatusPartiallyPaid,
		DueOn:  due,
		Payments: []Payment{
			{Amount: decimal.RequireFromString("50.25")},
			{Amount: decimal.RequireFromString("0.25")},
		},
	}

	b := inv.Balance(core.NewDate(2024, time.April, 10))
	assert.Equal(t, "50.50", b.AmountPaid.StringFixed(2))
	assert.Equal(t, "100.00", b.RemainingBalance.StringFixed(2))
	assert.Equal(t, 10, b.DaysOverdue)
	assert.True(t, b.IsOverdue)

	// on the due date itself
	assert.Equal(t, 0, inv.DaysOverdue(due))

	// settled invoices are never overdue
	inv.Status = StatusPaid
	assert.False(t, inv.IsOverdue(core.NewDate(2024, time.April, 10)))
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"0", true},
		{"-1", true},
		{"10.001", true},
		{"10000000000", true},
		{"9999999999.99", false},
		{"0.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := checkAmount("amount", decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.wantErr, err != nil, "checkAmount() error = %v", err)
		})
	}
}

func TestInvoice_RemainingBalance(t *testing.T) {
	inv := Invoice{
		Amount:   decimal.RequireFromString("500.00"),
		Status:   StatusPartiallyPaid,
		Payments: []Payment{{Amount: decimal.RequireFromString("150.00")}, {Amount: decimal.RequireFromString("50.00")}},
	}
	assert.Equal(t, "300.00", inv.RemainingBalance().StringFixed(2))

	inv.Payments = append(inv.Payments, Payment{Amount: decimal.RequireFromString("300.00")})
	assert.Equal(t, "0.00", inv.RemainingBalance().StringFixed(2))
	assert.True(t, inv.AmountPaid().Equal(inv.Amount))
}
