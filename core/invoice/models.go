package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/stats"
)

// Invoice statuses
const (
	StatusDraft         = "draft"
	StatusSent          = "sent"
	StatusPending       = "pending"
	StatusPartiallyPaid = "partially_paid"
	StatusPaid          = "paid"
	StatusOverdue       = "overdue"
	StatusCancelled     = "cancelled"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodCard         = "card"
	MethodMobileMoney  = "mobile_money"
)

var (
	Statuses = []string{
		StatusDraft, StatusSent, StatusPending, StatusPartiallyPaid,
		StatusPaid, StatusOverdue, StatusCancelled,
	}
	Methods = []string{MethodCash, MethodBankTransfer, MethodCard, MethodMobileMoney}

	// OpenStatuses are the statuses awaiting payment.
	OpenStatuses = []string{StatusSent, StatusPending, StatusPartiallyPaid, StatusOverdue}

	transitions = map[string][]string{
		StatusDraft:         {StatusSent, StatusCancelled},
		StatusSent:          {StatusPending, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
		StatusPending:       {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
		StatusPartiallyPaid: {StatusPaid, StatusOverdue},
		StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	}
)

// CanTransition reports whether an invoice may go from one status to another.
// Paid and cancelled invoices are final.
func CanTransition(from, to string) bool {
	return core.ContainsString(transitions[from], to)
}

// IsOpen reports whether an invoice in this status awaits payment.
func IsOpen(status string) bool {
	return core.ContainsString(OpenStatuses, status)
}

type Invoice struct {
	ID          string               `json:"id"`
	Number      string               `json:"number"`
	ChildID     string               `json:"child_id"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	Status      string               `json:"status"`
	IssuedOn    core.Date            `json:"issued_on"`
	DueOn       core.Date            `json:"due_on"`
	CreatedAt   time.Time            `json:"created_at"` // UTC
	UpdatedAt   time.Time            `json:"updated_at"` // UTC
	Child       *family.ChildProfile `json:"child,omitempty"`
	Payments    []Payment            `json:"payments,omitempty"`
}

type Payment struct {
	ID         string          `json:"id"`
	InvoiceID  string          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	PaidOn     core.Date       `json:"paid_on"`
	RecordedBy string          `json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"` // UTC
}

// AmountPaid sums the loaded payments.
func (inv Invoice) AmountPaid() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range inv.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

func (inv Invoice) RemainingBalance() decimal.Decimal {
	return inv.Amount.Sub(inv.AmountPaid())
}

// DaysOverdue returns the number of days an open invoice is past its due date on day today.
func (inv Invoice) DaysOverdue(today core.Date) int {
	if !IsOpen(inv.Status) || inv.DueOn.IsZero() || !today.After(inv.DueOn.Time) {
		return 0
	}
	return int(today.Sub(inv.DueOn.Time).Hours() / 24)
}

func (inv Invoice) IsOverdue(today core.Date) bool {
	return inv.DaysOverdue(today) > 0
}

// Editable reports whether the invoice details may still change.
func (inv Invoice) Editable() bool {
	return inv.Status == StatusDraft || inv.Status == StatusSent
}

// Balance is the derived view of an invoice rendered to clients.
type Balance struct {
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	DaysOverdue      int             `json:"days_overdue"`
	IsOverdue        bool            `json:"is_overdue"`
}

func (inv Invoice) Balance(today core.Date) Balance {
	return Balance{
		AmountPaid:       inv.AmountPaid(),
		RemainingBalance: inv.RemainingBalance(),
		DaysOverdue:      inv.DaysOverdue(today),
		IsOverdue:        inv.IsOverdue(today),
	}
}

type Input struct {
	ChildID     string          `json:"child_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,notblank,max=255"`
	IssuedOn    core.Date       `json:"issued_on"` // today when empty
	DueOn       core.Date       `json:"due_on"`    // issued_on + invoice_due_days when empty
}

func (in *Input) Clean() {
	in.Description = core.CleanString(in.Description)
}

type PaymentInput struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,oneof=cash bank_transfer card mobile_money"`
	Reference string          `json:"reference" validate:"omitempty,max=100"`
	PaidOn    core.Date       `json:"paid_on"` // today when empty
}

func (in *PaymentInput) Clean() {
	in.Reference = core.CleanString(in.Reference)
}

// Stats is the invoice summary of a dashboard.
type Stats struct {
	Outstanding stats.Value[decimal.Decimal] `json:"outstanding"`
	Overdue     stats.Value[int]             `json:"overdue"`
	Paid        stats.Value[int]             `json:"paid"`
}

var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "status", Column: "status", Op: core.OpIn, Parse: listing.Enum(Statuses...)},
		{Name: "child_id", Column: "child_id", Parse: listing.UUID},
		{Name: "due_from", Column: "due_on", Op: core.OpGTE, Parse: listing.Date},
		{Name: "due_to", Column: "due_on", Op: core.OpLTE, Parse: listing.Date},
	},
	SearchFields: []string{"number", "description"},
	Sortable: map[string]string{
		"number":     "number",
		"amount":     "amount",
		"status":     "status",
		"issued_on":  "issued_on",
		"due_on":     "due_on",
		"created_at": "created_at",
	},
	DefaultSort: "created_at",
	DefaultDesc: true,
	Include:     []string{"child", "payments"},
}
