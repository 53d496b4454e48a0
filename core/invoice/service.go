// Package invoice bills children and records the payments made against their invoices.
package invoice

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/stats"
	"github.com/trezcool/shule/core/user"
)

const (
	SubjectType = "invoice"

	numberAttempts = 5
)

var (
	ErrNotFound          = core.NewNotFoundError("invoice")
	ErrNotEditable       = errors.New("only draft and sent invoices can be edited")
	ErrNotPayable        = errors.New("this invoice is not awaiting payment")
	ErrInvalidAmount     = errors.New("amount must be positive with at most 2 decimals")
	ErrAmountExceeds     = errors.New("amount exceeds the remaining balance")
	ErrDueBeforeIssue    = errors.New("due_on must be on or after issued_on")
	errNumberUnavailable = errors.New("could not generate a unique invoice number")

	maxAmount = decimal.New(1, 10) // 10 digits before the point
)

type (
	Repository interface {
		NumberExists(ctx context.Context, number string) (bool, error)
		Create(ctx context.Context, inv Invoice) (Invoice, error)
		Update(ctx context.Context, inv Invoice) (Invoice, error)
		// SetStatus sets the status of the invoices and returns how many changed.
		SetStatus(ctx context.Context, status string, updatedAt time.Time, ids ...string) (int, error)
		Delete(ctx context.Context, id string) error
		// Get loads the invoice with its child and payments.
		Get(ctx context.Context, id string) (Invoice, error)
		Query(ctx context.Context, q core.Query) ([]Invoice, int, error)
		AddPayment(ctx context.Context, p Payment) (Payment, error)
		CountPayments(ctx context.Context, invoiceID string) (int, error)
		// SumOutstanding sums the remaining balance of the invoices matching q.Where.
		SumOutstanding(ctx context.Context, q core.Query) (decimal.Decimal, error)
	}

	children interface {
		GetChild(ctx context.Context, actor user.User, id string) (family.ChildProfile, error)
		OwnedChildIDs(ctx context.Context, actor user.User) ([]string, error)
	}

	Deps struct {
		Repo     Repository
		Family   *family.Service
		Recorder *audit.Recorder
		Validate *validator.Validate
		Settings *settings.Service
		Mail     core.EmailService
	}

	Service struct {
		repo     Repository
		children children
		rec      *audit.Recorder
		validate *validator.Validate
		settings *settings.Service
		mailSvc  core.EmailService
		now      func() time.Time
	}
)

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "repo"),
		vala.IsNotNil(deps.Family, "familySvc"),
		vala.IsNotNil(deps.Recorder, "rec"),
		vala.IsNotNil(deps.Validate, "validate"),
		vala.IsNotNil(deps.Settings, "settings"),
		vala.IsNotNil(deps.Mail, "mailSvc"),
	).CheckAndPanic()

	return &Service{
		repo:     deps.Repo,
		children: deps.Family,
		rec:      deps.Recorder,
		validate: deps.Validate,
		settings: deps.Settings,
		mailSvc:  deps.Mail,
		now:      time.Now,
	}
}

// Today returns the current day in the school's time zone.
func (svc *Service) Today(ctx context.Context) core.Date {
	now := svc.now().In(svc.settings.GetOrDefaults(ctx).Location())
	return core.NewDate(now.Year(), now.Month(), now.Day())
}

func checkAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) || amount.GreaterThanOrEqual(maxAmount) {
		return core.NewValidationError(ErrInvalidAmount, core.FieldError{Field: field, Error: ErrInvalidAmount.Error()})
	}
	return nil
}

// newNumber generates an unused number INV-YYYYMM-XXXXXX.
func (svc *Service) newNumber(ctx context.Context, issuedOn core.Date) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
		number := fmt.Sprintf("INV-%s-%s", issuedOn.Format("200601"), suffix)
		exists, err := svc.repo.NumberExists(ctx, number)
		if err != nil {
			return "", errors.Wrap(err, "checking invoice number")
		}
		if !exists {
			return number, nil
		}
	}
	return "", errNumberUnavailable
}

func (svc *Service) cleanInput(ctx context.Context, actor user.User, in *Input) (family.ChildProfile, error) {
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return family.ChildProfile{}, err
	}
	if err := checkAmount("amount", in.Amount); err != nil {
		return family.ChildProfile{}, err
	}
	if in.IssuedOn.IsZero() {
		in.IssuedOn = svc.Today(ctx)
	}
	if in.DueOn.IsZero() {
		in.DueOn = core.Date{Time: in.IssuedOn.AddDate(0, 0, svc.settings.GetOrDefaults(ctx).InvoiceDueDays)}
	}
	if in.DueOn.Before(in.IssuedOn.Time) {
		return family.ChildProfile{}, core.NewValidationError(ErrDueBeforeIssue, core.FieldError{Field: "due_on", Error: ErrDueBeforeIssue.Error()})
	}

	child, err := svc.children.GetChild(ctx, actor, in.ChildID)
	if err != nil {
		if core.IsNotFound(err) {
			return family.ChildProfile{}, core.NewValidationError(err, core.FieldError{Field: "child_id", Error: err.Error()})
		}
		return family.ChildProfile{}, err
	}
	return child, nil
}

// Create creates a draft invoice.
func (svc *Service) Create(ctx context.Context, actor user.User, in Input) (Invoice, error) {
	if !actor.IsAdmin() {
		return Invoice{}, core.ErrPermissionDenied
	}
	child, err := svc.cleanInput(ctx, actor, &in)
	if err != nil {
		return Invoice{}, err
	}
	number, err := svc.newNumber(ctx, in.IssuedOn)
	if err != nil {
		return Invoice{}, err
	}

	now := svc.now().UTC()
	inv := Invoice{
		Number:      number,
		ChildID:     child.ID,
		Amount:      in.Amount,
		Description: in.Description,
		Status:      StatusDraft,
		IssuedOn:    in.IssuedOn,
		DueOn:       in.DueOn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if inv, err = svc.repo.Create(ctx, inv); err != nil {
			return audit.Entry{}, errors.Wrap(err, "creating invoice")
		}
		return audit.Entry{
			Action:      audit.ActionCreate,
			Description: fmt.Sprintf("created invoice %s for %s", inv.Number, child.Name),
			SubjectType: SubjectType,
			SubjectID:   inv.ID,
			Properties:  map[string]interface{}{"amount": inv.Amount.StringFixed(2), "child_id": inv.ChildID},
		}, nil
	})
	if err != nil {
		return Invoice{}, err
	}
	child.Parent = nil
	inv.Child = &child
	return inv, nil
}

// Update updates a draft or sent invoice.
func (svc *Service) Update(ctx context.Context, actor user.User, id string, in Input) (Invoice, error) {
	if !actor.IsAdmin() {
		return Invoice{}, core.ErrPermissionDenied
	}
	inv, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !inv.Editable() {
		return Invoice{}, core.NewValidationError(ErrNotEditable, core.FieldError{Field: "status", Error: ErrNotEditable.Error()})
	}
	if _, err = svc.cleanInput(ctx, actor, &in); err != nil {
		return Invoice{}, err
	}

	inv.ChildID = in.ChildID
	inv.Amount = in.Amount
	inv.Description = in.Description
	inv.IssuedOn = in.IssuedOn
	inv.DueOn = in.DueOn
	inv.UpdatedAt = svc.now().UTC()
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if _, err := svc.repo.Update(ctx, inv); err != nil {
			return audit.Entry{}, errors.Wrap(err, "updating invoice")
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("updated invoice %s", inv.Number),
			SubjectType: SubjectType,
			SubjectID:   inv.ID,
			Properties:  map[string]interface{}{"amount": inv.Amount.StringFixed(2)},
		}, nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return svc.repo.Get(ctx, inv.ID)
}

// transition moves an invoice to another status, audited as action.
func (svc *Service) transition(ctx context.Context, actor user.User, id, to, verb string) (Invoice, error) {
	if !actor.IsAdmin() {
		return Invoice{}, core.ErrPermissionDenied
	}
	inv, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !CanTransition(inv.Status, to) {
		msg := fmt.Sprintf("a %s invoice cannot be %s", strings.ReplaceAll(inv.Status, "_", " "), verb)
		return Invoice{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "status", Error: msg})
	}

	from := inv.Status
	inv.Status = to
	inv.UpdatedAt = svc.now().UTC()
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if _, err := svc.repo.SetStatus(ctx, to, inv.UpdatedAt, inv.ID); err != nil {
			return audit.Entry{}, errors.Wrapf(err, "marking invoice %s", to)
		}
		return audit.Entry{
			Action:      audit.ActionUpdate,
			Description: fmt.Sprintf("%s invoice %s", verb, inv.Number),
			SubjectType: SubjectType,
			SubjectID:   inv.ID,
			Properties:  map[string]interface{}{"from": from, "to": to},
		}, nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Send marks a draft invoice as sent and emails it to the parent.
func (svc *Service) Send(ctx context.Context, actor user.User, id string) (Invoice, error) {
	inv, err := svc.transition(ctx, actor, id, StatusSent, "sent")
	if err != nil {
		return Invoice{}, err
	}

	child, err := svc.children.GetChild(ctx, actor, inv.ChildID)
	if err != nil {
		return inv, nil // sent; the email is best effort
	}
	if child.Parent == nil || child.Parent.Email == "" {
		return inv, nil
	}
	s := svc.settings.GetOrDefaults(ctx)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: child.Parent.Name, Address: child.Parent.Email}},
		Subject:      fmt.Sprintf("%s: invoice %s", s.SchoolName, inv.Number),
		TemplateName: "invoice_sent",
		TemplateData: map[string]interface{}{
			"ParentName":  child.Parent.Name,
			"ChildName":   child.Name,
			"SchoolName":  s.SchoolName,
			"Number":      inv.Number,
			"Description": inv.Description,
			"Amount":      inv.Amount.StringFixed(2),
			"Currency":    s.Currency,
			"DueOn":       inv.DueOn.String(),
			"InvoiceID":   inv.ID,
		},
	})
	return inv, nil
}

func (svc *Service) Cancel(ctx context.Context, actor user.User, id string) (Invoice, error) {
	return svc.transition(ctx, actor, id, StatusCancelled, "cancelled")
}

// RecordPayment records a payment against an open invoice, settling it once fully paid.
func (svc *Service) RecordPayment(ctx context.Context, actor user.User, id string, in PaymentInput) (Invoice, error) {
	if !actor.IsAdmin() {
		return Invoice{}, core.ErrPermissionDenied
	}
	in.Clean()
	if err := svc.validate.Struct(in); err != nil {
		return Invoice{}, err
	}
	if err := checkAmount("amount", in.Amount); err != nil {
		return Invoice{}, err
	}
	inv, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !IsOpen(inv.Status) {
		return Invoice{}, core.NewValidationError(ErrNotPayable, core.FieldError{Field: "status", Error: ErrNotPayable.Error()})
	}
	remaining := inv.RemainingBalance()
	if in.Amount.GreaterThan(remaining) {
		return Invoice{}, core.NewValidationError(ErrAmountExceeds, core.FieldError{Field: "amount", Error: ErrAmountExceeds.Error()})
	}
	if in.PaidOn.IsZero() {
		in.PaidOn = svc.Today(ctx)
	}

	now := svc.now().UTC()
	p := Payment{
		InvoiceID:  inv.ID,
		Amount:     in.Amount,
		Method:     in.Method,
		Reference:  in.Reference,
		PaidOn:     in.PaidOn,
		RecordedBy: actor.ID,
		CreatedAt:  now,
	}
	status := inv.Status
	switch {
	case in.Amount.Equal(remaining):
		status = StatusPaid
	case inv.Status != StatusOverdue:
		status = StatusPartiallyPaid
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if p, err = svc.repo.AddPayment(ctx, p); err != nil {
			return audit.Entry{}, errors.Wrap(err, "adding payment")
		}
		if status != inv.Status {
			if _, err = svc.repo.SetStatus(ctx, status, now, inv.ID); err != nil {
				return audit.Entry{}, errors.Wrap(err, "updating invoice status")
			}
		}
		return audit.Entry{
			Action:      audit.ActionPayment,
			Description: fmt.Sprintf("recorded a payment of %s on invoice %s", p.Amount.StringFixed(2), inv.Number),
			SubjectType: SubjectType,
			SubjectID:   inv.ID,
			Properties: map[string]interface{}{
				"payment_id": p.ID,
				"amount":     p.Amount.StringFixed(2),
				"method":     p.Method,
				"status":     status,
			},
		}, nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return svc.repo.Get(ctx, inv.ID)
}

// Delete deletes an invoice without payments.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	if !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	inv, err := svc.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	n, err := svc.repo.CountPayments(ctx, inv.ID)
	if err != nil {
		return errors.Wrap(err, "counting payments")
	}
	if err = core.CheckDependents("invoice", map[string]int{"payment": n}); err != nil {
		return err
	}

	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		if err := svc.repo.Delete(ctx, inv.ID); err != nil {
			return audit.Entry{}, errors.Wrap(err, "deleting invoice")
		}
		return audit.Entry{
			Action:      audit.ActionDelete,
			Description: fmt.Sprintf("deleted invoice %s", inv.Number),
			SubjectType: SubjectType,
			SubjectID:   inv.ID,
		}, nil
	})
	return err
}

// pastDue selects the open invoices due before today that are not marked overdue yet.
func pastDue(today core.Date) core.Query {
	q := core.Query{}.In("status", []string{StatusSent, StatusPending, StatusPartiallyPaid})
	q.Where = append(q.Where, core.Predicate{Field: "due_on", Op: core.OpLTE, Value: today.AddDate(0, 0, -1)})
	return q
}

// MarkOverdue marks every open invoice past its due date as overdue, as a single change.
// Nothing is written when no invoice is past due.
func (svc *Service) MarkOverdue(ctx context.Context, actor user.User) (int, error) {
	if actor.ID != "" && !actor.IsAdmin() {
		return 0, core.ErrPermissionDenied
	}
	invoices, _, err := svc.repo.Query(ctx, pastDue(svc.Today(ctx)))
	if err != nil {
		return 0, errors.Wrap(err, "querying past due invoices")
	}
	if len(invoices) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(invoices))
	numbers := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
		numbers = append(numbers, inv.Number)
	}

	var n int
	_, err = svc.rec.Mutate(ctx, actor.ID, func(ctx context.Context) (audit.Entry, error) {
		var err error
		if n, err = svc.repo.SetStatus(ctx, StatusOverdue, svc.now().UTC(), ids...); err != nil {
			return audit.Entry{}, errors.Wrap(err, "marking invoices overdue")
		}
		return audit.Entry{
			Action:      audit.ActionBulkUpdate,
			Description: fmt.Sprintf("marked %d invoice(s) overdue", n),
			SubjectType: SubjectType,
			Properties:  map[string]interface{}{"numbers": numbers},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// scope restricts q to the invoices of the actor's children when the actor is a parent.
func (svc *Service) scope(ctx context.Context, actor user.User, q core.Query) (core.Query, error) {
	if actor.IsAdmin() || actor.IsTeacher() {
		return q, nil
	}
	ids, err := svc.children.OwnedChildIDs(ctx, actor)
	if err != nil {
		return q, err
	}
	return q.In("child_id", ids), nil
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Invoice, error) {
	inv, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !actor.IsAdmin() && !actor.IsTeacher() {
		ids, err := svc.children.OwnedChildIDs(ctx, actor)
		if err != nil {
			return Invoice{}, err
		}
		if !core.ContainsString(ids, inv.ChildID) {
			return Invoice{}, core.ErrPermissionDenied
		}
	}
	return inv, nil
}

// Query lists invoices; parents only see the invoices of their children.
func (svc *Service) Query(ctx context.Context, actor user.User, q core.Query) ([]Invoice, int, error) {
	q, err := svc.scope(ctx, actor, q)
	if err != nil {
		return nil, 0, err
	}
	invoices, total, err := svc.repo.Query(ctx, q)
	return invoices, total, errors.Wrap(err, "querying invoices")
}

// Stats summarizes the invoices the actor may see. Each figure fails on its own.
func (svc *Service) Stats(ctx context.Context, actor user.User) Stats {
	base, err := svc.scope(ctx, actor, core.Query{})
	if err != nil {
		return Stats{
			Outstanding: stats.Of(decimal.Zero, err),
			Overdue:     stats.Of(0, err),
			Paid:        stats.Of(0, err),
		}
	}
	count := func(status string) func(ctx context.Context) (int, error) {
		return func(ctx context.Context) (int, error) {
			q := base.Eq("status", status)
			q.Limit = 1
			_, total, err := svc.repo.Query(ctx, q)
			return total, err
		}
	}
	return Stats{
		Outstanding: stats.Of(svc.repo.SumOutstanding(ctx, base.In("status", OpenStatuses))),
		Overdue:     stats.Count(ctx, count(StatusOverdue)),
		Paid:        stats.Count(ctx, count(StatusPaid)),
	}
}
