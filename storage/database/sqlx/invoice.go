package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/invoice"
)

const (
	invoicesTable = "invoices"
	paymentsTable = "payments"
)

var invoiceColumns = qualified(invoicesTable,
	"number", "child_id", "amount", "description", "status", "issued_on", "due_on", "created_at", "updated_at")

type (
	invoiceRow struct {
		ID          string          `db:"id"`
		Number      string          `db:"number"`
		ChildID     string          `db:"child_id"`
		Amount      decimal.Decimal `db:"amount"`
		Description string          `db:"description"`
		Status      string          `db:"status"`
		IssuedOn    core.Date       `db:"issued_on"`
		DueOn       core.Date       `db:"due_on"`
		CreatedAt   time.Time       `db:"created_at"`
		UpdatedAt   time.Time       `db:"updated_at"`
	}

	paymentRow struct {
		ID         string          `db:"id"`
		InvoiceID  string          `db:"invoice_id"`
		Amount     decimal.Decimal `db:"amount"`
		Method     string          `db:"method"`
		Reference  string          `db:"reference"`
		PaidOn     core.Date       `db:"paid_on"`
		RecordedBy null.String     `db:"recorded_by"`
		CreatedAt  time.Time       `db:"created_at"`
	}
)

func (r invoiceRow) invoice() invoice.Invoice {
	return invoice.Invoice{
		ID:          r.ID,
		Number:      r.Number,
		ChildID:     r.ChildID,
		Amount:      r.Amount,
		Description: r.Description,
		Status:      r.Status,
		IssuedOn:    r.IssuedOn,
		DueOn:       r.DueOn,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r paymentRow) payment() invoice.Payment {
	return invoice.Payment{
		ID:         r.ID,
		InvoiceID:  r.InvoiceID,
		Amount:     r.Amount,
		Method:     r.Method,
		Reference:  r.Reference,
		PaidOn:     r.PaidOn,
		RecordedBy: r.RecordedBy.String,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type invoiceRepository struct {
	base
	families familyRepository
}

var _ invoice.Repository = (*invoiceRepository)(nil) // interface compliance check

func NewInvoiceRepository(db *sqlx.DB) *invoiceRepository {
	return &invoiceRepository{base: base{db: db}, families: familyRepository{base{db: db}}}
}

func (repo invoiceRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	return repo.exists(ctx, invoicesTable, sq.Eq{"number": number})
}

func (repo invoiceRepository) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	inv.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(invoicesTable).
		Columns("id", "number", "child_id", "amount", "description", "status", "issued_on", "due_on", "created_at", "updated_at").
		Values(inv.ID, inv.Number, inv.ChildID, inv.Amount, inv.Description, inv.Status, inv.IssuedOn, inv.DueOn,
			inv.CreatedAt.UTC(), inv.UpdatedAt.UTC()))
	if err != nil {
		return invoice.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	return inv, nil
}

func (repo invoiceRepository) Update(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	err := repo.runOne(ctx, psql.Update(invoicesTable).SetMap(map[string]interface{}{
		"child_id":    inv.ChildID,
		"amount":      inv.Amount,
		"description": inv.Description,
		"status":      inv.Status,
		"issued_on":   inv.IssuedOn,
		"due_on":      inv.DueOn,
		"updated_at":  inv.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": inv.ID}), invoice.ErrNotFound)
	if err != nil {
		return invoice.Invoice{}, notFound(err, invoice.ErrNotFound, "updating invoice")
	}
	return repo.Get(ctx, inv.ID)
}

func (repo invoiceRepository) SetStatus(ctx context.Context, status string, updatedAt time.Time, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := repo.run(ctx, psql.Update(invoicesTable).
		Set("status", status).
		Set("updated_at", updatedAt.UTC()).
		Where(sq.Eq{"id": ids}))
	return n, errors.Wrap(err, "setting invoice status")
}

func (repo invoiceRepository) Delete(ctx context.Context, id string) error {
	err := repo.runOne(ctx, psql.Delete(invoicesTable).Where(sq.Eq{"id": id}), invoice.ErrNotFound)
	return notFound(err, invoice.ErrNotFound, "deleting invoice")
}

func (repo invoiceRepository) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	var row invoiceRow
	if err := repo.get(ctx, &row, psql.Select("*").From(invoicesTable).Where(sq.Eq{"id": id})); err != nil {
		return invoice.Invoice{}, notFound(err, invoice.ErrNotFound, "getting invoice")
	}
	invoices := []invoice.Invoice{row.invoice()}
	if err := repo.include(ctx, invoices, invoice.Definition.Include); err != nil {
		return invoice.Invoice{}, err
	}
	return invoices[0], nil
}

func (repo invoiceRepository) Query(ctx context.Context, q core.Query) ([]invoice.Invoice, int, error) {
	var rows []invoiceRow
	total, err := repo.page(ctx, invoicesTable, invoiceColumns, q, &rows)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying invoices")
	}
	invoices := make([]invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.invoice())
	}
	if err = repo.include(ctx, invoices, q.Include); err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (repo invoiceRepository) include(ctx context.Context, invoices []invoice.Invoice, relations []string) error {
	if core.ContainsString(relations, "child") {
		children, err := repo.families.childrenByID(ctx, distinct(invoices, func(inv invoice.Invoice) string { return inv.ChildID }))
		if err != nil {
			return err
		}
		for i := range invoices {
			if c, ok := children[invoices[i].ChildID]; ok {
				invoices[i].Child = &c
			}
		}
	}
	if core.ContainsString(relations, "payments") && len(invoices) > 0 {
		var rows []paymentRow
		query := psql.Select("*").
			From(paymentsTable).
			Where(sq.Eq{"invoice_id": distinct(invoices, func(inv invoice.Invoice) string { return inv.ID })}).
			OrderBy("paid_on ASC", "created_at ASC")
		if err := repo.selectAll(ctx, &rows, query); err != nil {
			return errors.Wrap(err, "loading payments")
		}
		payments := make(map[string][]invoice.Payment, len(invoices))
		for _, row := range rows {
			payments[row.InvoiceID] = append(payments[row.InvoiceID], row.payment())
		}
		for i := range invoices {
			invoices[i].Payments = payments[invoices[i].ID]
		}
	}
	return nil
}

func (repo invoiceRepository) AddPayment(ctx context.Context, p invoice.Payment) (invoice.Payment, error) {
	p.ID = uuid.New().String()
	_, err := repo.run(ctx, psql.Insert(paymentsTable).
		Columns("id", "invoice_id", "amount", "method", "reference", "paid_on", "recorded_by", "created_at").
		Values(p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidOn,
			null.NewString(p.RecordedBy, p.RecordedBy != ""), p.CreatedAt.UTC()))
	if err != nil {
		return invoice.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo invoiceRepository) CountPayments(ctx context.Context, invoiceID string) (int, error) {
	n, err := repo.count(ctx, paymentsTable, sq.Eq{"invoice_id": invoiceID})
	return n, errors.Wrap(err, "counting payments")
}

func (repo invoiceRepository) SumOutstanding(ctx context.Context, q core.Query) (decimal.Decimal, error) {
	cond, err := conditions(core.Query{Where: q.Where}, invoiceColumns)
	if err != nil {
		return decimal.Zero, err
	}
	paid := sq.Select("invoice_id", "SUM(amount) AS paid").From(paymentsTable).GroupBy("invoice_id")
	query := psql.Select("COALESCE(SUM(invoices.amount - COALESCE(p.paid, 0)), 0)").
		From(invoicesTable).
		JoinClause(paid.Prefix("LEFT JOIN (").Suffix(") AS p ON p.invoice_id = invoices.id")).
		Where(cond)

	var sum decimal.Decimal
	if err = repo.get(ctx, &sum, query); err != nil {
		return decimal.Zero, errors.Wrap(err, "summing outstanding balance")
	}
	return sum, nil
}
