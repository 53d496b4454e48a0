// Package dummydb is an in-memory database for tests and local development.
// Every repository of the Postgres storage has a counterpart here with the same behaviour.
package dummydb

import (
	"context"
	"sync"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/user"
)

type (
	tables struct {
		users         map[string]user.User
		activityLogs  []audit.Entry
		academicYears map[string]academicyear.AcademicYear
		parents       map[string]family.ParentProfile
		children      map[string]family.ChildProfile
		enrollments   map[string]enrollment.Enrollment
		exams         map[string]exam.Exam
		sessions      map[string]session.Session
		attendances   map[string]attendance.Attendance
		invoices      map[string]invoice.Invoice
		payments      map[string]invoice.Payment
		settings      *settings.Settings
	}

	// DB holds the committed tables. A transaction works on a copy which
	// replaces them on commit and is dropped on rollback.
	// Transactions are serialized.
	DB struct {
		txMu sync.Mutex
		mu   sync.Mutex
		data *tables
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() *tables {
	return &tables{
		users:         make(map[string]user.User),
		academicYears: make(map[string]academicyear.AcademicYear),
		parents:       make(map[string]family.ParentProfile),
		children:      make(map[string]family.ChildProfile),
		enrollments:   make(map[string]enrollment.Enrollment),
		exams:         make(map[string]exam.Exam),
		sessions:      make(map[string]session.Session),
		attendances:   make(map[string]attendance.Attendance),
		invoices:      make(map[string]invoice.Invoice),
		payments:      make(map[string]invoice.Payment),
	}
}

func cloneMap[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *tables) clone() *tables {
	c := &tables{
		users:         cloneMap(t.users),
		activityLogs:  append([]audit.Entry(nil), t.activityLogs...),
		academicYears: cloneMap(t.academicYears),
		parents:       cloneMap(t.parents),
		children:      cloneMap(t.children),
		enrollments:   cloneMap(t.enrollments),
		exams:         cloneMap(t.exams),
		sessions:      cloneMap(t.sessions),
		attendances:   cloneMap(t.attendances),
		invoices:      cloneMap(t.invoices),
		payments:      cloneMap(t.payments),
	}
	if t.settings != nil {
		s := *t.settings
		c.settings = &s
	}
	return c
}

// WithinTx joins the transaction of ctx if any, otherwise runs fn on a copy of
// the tables that is committed only when fn succeeds.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*tables); ok {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	tx := db.data.clone()
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	db.mu.Lock()
	db.data = tx
	db.mu.Unlock()
	return nil
}

// view runs fn against the tables visible from ctx.
func (db *DB) view(ctx context.Context, fn func(t *tables) error) error {
	if tx, ok := ctx.Value(txKey{}).(*tables); ok {
		return fn(tx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.data)
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = newTables()
}
