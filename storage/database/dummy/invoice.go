package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/settings"
)

type invoiceRepository struct {
	db *DB
}

var _ invoice.Repository = (*invoiceRepository)(nil) // interface compliance check

func NewInvoiceRepository(db *DB) invoice.Repository {
	return &invoiceRepository{db: db}
}

func invoiceFields(inv invoice.Invoice) record {
	return record{
		"id":          inv.ID,
		"number":      inv.Number,
		"child_id":    inv.ChildID,
		"amount":      inv.Amount,
		"description": inv.Description,
		"status":      inv.Status,
		"issued_on":   inv.IssuedOn,
		"due_on":      inv.DueOn,
		"created_at":  inv.CreatedAt,
		"updated_at":  inv.UpdatedAt,
	}
}

func (t *tables) paymentsOf(invoiceID string) []invoice.Payment {
	var payments []invoice.Payment
	for _, p := range t.payments {
		if p.InvoiceID == invoiceID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].PaidOn.Equal(payments[j].PaidOn.Time) {
			return payments[i].PaidOn.Before(payments[j].PaidOn.Time)
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments
}

func (t *tables) invoiceWith(inv invoice.Invoice, relations []string) invoice.Invoice {
	if core.ContainsString(relations, "child") {
		if c, ok := t.children[inv.ChildID]; ok {
			inv.Child = &c
		}
	}
	if core.ContainsString(relations, "payments") {
		inv.Payments = t.paymentsOf(inv.ID)
	}
	return inv
}

func (repo *invoiceRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var found bool
	err := repo.db.view(ctx, func(t *tables) error {
		found = count(t.invoices, func(inv invoice.Invoice) bool { return inv.Number == number }) > 0
		return nil
	})
	return found, err
}

func (repo *invoiceRepository) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		inv.ID = uuid.New().String()
		inv.Child, inv.Payments = nil, nil
		t.invoices[inv.ID] = inv
		return nil
	})
	return inv, err
}

func (repo *invoiceRepository) Update(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		stored, ok := t.invoices[inv.ID]
		if !ok {
			return invoice.ErrNotFound
		}
		inv.Number, inv.CreatedAt = stored.Number, stored.CreatedAt
		inv.Child, inv.Payments = nil, nil
		t.invoices[inv.ID] = inv
		inv = t.invoiceWith(inv, invoice.Definition.Include)
		return nil
	})
	return inv, err
}

func (repo *invoiceRepository) SetStatus(ctx context.Context, status string, updatedAt time.Time, ids ...string) (int, error) {
	var n int
	err := repo.db.view(ctx, func(t *tables) error {
		for _, id := range ids {
			if inv, ok := t.invoices[id]; ok {
				inv.Status, inv.UpdatedAt = status, updatedAt.UTC()
				t.invoices[id] = inv
				n++
			}
		}
		return nil
	})
	return n, err
}

func (repo *invoiceRepository) Delete(ctx context.Context, id string) error {
	return repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.invoices[id]; !ok {
			return invoice.ErrNotFound
		}
		delete(t.invoices, id)
		return nil
	})
}

func (repo *invoiceRepository) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	var inv invoice.Invoice
	err := repo.db.view(ctx, func(t *tables) error {
		var ok bool
		if inv, ok = t.invoices[id]; !ok {
			return invoice.ErrNotFound
		}
		inv = t.invoiceWith(inv, invoice.Definition.Include)
		return nil
	})
	return inv, err
}

func (repo *invoiceRepository) Query(ctx context.Context, q core.Query) (invoices []invoice.Invoice, total int, err error) {
	err = repo.db.view(ctx, func(t *tables) error {
		if invoices, total, err = run(values(t.invoices), invoiceFields, q); err != nil {
			return err
		}
		for i := range invoices {
			invoices[i] = t.invoiceWith(invoices[i], q.Include)
		}
		return nil
	})
	return invoices, total, err
}

func (repo *invoiceRepository) AddPayment(ctx context.Context, p invoice.Payment) (invoice.Payment, error) {
	err := repo.db.view(ctx, func(t *tables) error {
		if _, ok := t.invoices[p.InvoiceID]; !ok {
			return invoice.ErrNotFound
		}
		p.ID = uuid.New().String()
		t.payments[p.ID] = p
		return nil
	})
	return p, err
}

func (repo *invoiceRepository) CountPayments(ctx context.Context, invoiceID string) (int, error) {
	var n int
	err := repo.db.view(ctx, func(t *tables) error {
		n = count(t.payments, func(p invoice.Payment) bool { return p.InvoiceID == invoiceID })
		return nil
	})
	return n, err
}

func (repo *invoiceRepository) SumOutstanding(ctx context.Context, q core.Query) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := repo.db.view(ctx, func(t *tables) error {
		invoices, _, err := run(values(t.invoices), invoiceFields, core.Query{Where: q.Where})
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			inv.Payments = t.paymentsOf(inv.ID)
			sum = sum.Add(inv.Amount.Sub(inv.AmountPaid()))
		}
		return nil
	})
	return sum, err
}

// settingsStore keeps the settings document next to the tables.
type settingsStore struct {
	db *DB
}

var _ settings.Store = (*settingsStore)(nil) // interface compliance check

func NewSettingsStore(db *DB) settings.Store {
	return &settingsStore{db: db}
}

func (store *settingsStore) Load(ctx context.Context) (settings.Settings, error) {
	var s settings.Settings
	err := store.db.view(ctx, func(t *tables) error {
		if t.settings == nil {
			return settings.ErrNotFound
		}
		s = *t.settings
		return nil
	})
	return s, err
}

func (store *settingsStore) Save(ctx context.Context, s settings.Settings) error {
	return store.db.view(ctx, func(t *tables) error {
		t.settings = &s
		return nil
	})
}

func (store *settingsStore) Reset(ctx context.Context) error {
	return store.db.view(ctx, func(t *tables) error {
		t.settings = nil
		return nil
	})
}
