// Package audit records who changed what: every mutation commits together
// with exactly one activity log entry.
package audit

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/listing"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionAccess     Action = "access"
	ActionBulkUpdate Action = "bulk_update"
	ActionPayment    Action = "payment"
	ActionView       Action = "view"
	ActionDownload   Action = "download"
	ActionJoin       Action = "join"
	ActionRequest    Action = "request"
)

var Actions = []Action{
	ActionCreate, ActionUpdate, ActionDelete, ActionAccess, ActionBulkUpdate,
	ActionPayment, ActionView, ActionDownload, ActionJoin, ActionRequest,
}

func (a Action) Valid() bool {
	for _, action := range Actions {
		if a == action {
			return true
		}
	}
	return false
}

var (
	ErrInvalidAction = errors.New("invalid audit action")
	ErrNoSubject     = errors.New("audit entry without subject")

	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shule",
		Name:      "audit_entries_total",
		Help:      "Committed mutations, by audit action.",
	}, []string{"action"})
	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Name:      "mutation_rollbacks_total",
		Help:      "Mutations rolled back.",
	})
)

// Entry is one row of the activity log.
type Entry struct {
	ID          string                 `json:"id"`
	ActorID     string                 `json:"actor_id"`
	Action      Action                 `json:"action"`
	Description string                 `json:"description"`
	SubjectType string                 `json:"subject_type"`
	SubjectID   string                 `json:"subject_id"`
	Properties  map[string]interface{} `json:"properties"`
	CreatedAt   time.Time              `json:"created_at"` // UTC
}

type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Query(ctx context.Context, q core.Query) ([]Entry, int, error)
}

// Definition is the activity log page of the admin portal.
var Definition = &listing.Definition{
	Filters: []listing.Filter{
		{Name: "actor_id", Column: "actor_id", Parse: listing.UUID},
		{Name: "action", Column: "action", Op: core.OpIn, Parse: listing.Enum(actionNames()...)},
		{Name: "subject_type", Column: "subject_type"},
		{Name: "from", Column: "created_at", Op: core.OpGTE, Parse: listing.Date},
		{Name: "to", Column: "created_at", Op: core.OpLTE, Parse: listing.DateEnd},
	},
	SearchFields: []string{"description"},
	Sortable:     map[string]string{"created_at": "created_at", "action": "action"},
	DefaultSort:  "created_at",
	DefaultDesc:  true,
	PerPage:      25,
}

func actionNames() []string {
	names := make([]string, 0, len(Actions))
	for _, a := range Actions {
		names = append(names, string(a))
	}
	return names
}

// Recorder runs mutations inside a transaction together with their audit entry.
type Recorder struct {
	tx   core.Transactor
	repo Repository
	now  func() time.Time
}

func NewRecorder(tx core.Transactor, repo Repository) *Recorder {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &Recorder{tx: tx, repo: repo, now: time.Now}
}

// Mutate runs fn in a transaction and appends the entry it returns,
// attributed to actorID unless the entry names its actor. Every write fn made through ctx commits together with
// the entry, or none does when fn, the entry or the append fails.
func (r *Recorder) Mutate(ctx context.Context, actorID string, fn func(ctx context.Context) (Entry, error)) (Entry, error) {
	var recorded Entry
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := fn(ctx)
		if err != nil {
			return err
		}
		if !e.Action.Valid() {
			return errors.Wrapf(ErrInvalidAction, "%q", e.Action)
		}
		if e.SubjectType == "" {
			return ErrNoSubject
		}
		if e.ActorID == "" {
			e.ActorID = actorID
		}
		e.CreatedAt = r.now().UTC()
		if e.Properties == nil {
			e.Properties = map[string]interface{}{}
		}
		recorded, err = r.repo.Append(ctx, e)
		return errors.Wrap(err, "appending audit entry")
	})
	if err != nil {
		rollbacksTotal.Inc()
		return Entry{}, err
	}
	entriesTotal.WithLabelValues(string(recorded.Action)).Inc()
	return recorded, nil
}

// Record appends a single entry describing a read (view, download).
func (r *Recorder) Record(ctx context.Context, actorID string, e Entry) (Entry, error) {
	return r.Mutate(ctx, actorID, func(context.Context) (Entry, error) { return e, nil })
}

// Query lists the activity log.
func (r *Recorder) Query(ctx context.Context, q core.Query) ([]Entry, int, error) {
	entries, total, err := r.repo.Query(ctx, q)
	return entries, total, errors.Wrap(err, "querying activity log")
}
