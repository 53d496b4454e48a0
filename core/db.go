package core

import "context"

// Transactor runs fn inside a single transaction.
// The transaction travels in the context handed to fn: repositories called
// with that context write inside it. fn returning an error rolls back every
// write made through the context; returning nil commits them.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
