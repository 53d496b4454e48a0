package core

// Op is a predicate operator of a Query.
type Op string

const (
	OpEq  Op = "eq"
	OpIn  Op = "in"  // Value is a []string
	OpGTE Op = "gte" // inclusive lower bound
	OpLTE Op = "lte" // inclusive upper bound

	// OpAnyPrefix matches an array column holding an element that starts with
	// any of the []string Value (e.g. roles "admin:" matches "admin:owner").
	OpAnyPrefix Op = "any_prefix"
)

// IDField is the tiebreak column appended to every ordering.
const IDField = "id"

// Predicate restricts a Query on one column.
type Predicate struct {
	Field string
	Op    Op
	Value interface{}
}

// Query describes one read against an aggregate root: predicates (AND-ed),
// a free-text search (case-insensitive substring, OR-ed across SearchFields),
// the related aggregates to eager-load, the ordering and the page window.
// Limit <= 0 means no limit.
type Query struct {
	Where        []Predicate
	Search       string
	SearchFields []string
	Include      []string
	Ordering     []DBOrdering
	Offset       int
	Limit        int
}

// Eq appends an equality predicate.
func (q Query) Eq(field string, value interface{}) Query {
	q.Where = append(append([]Predicate{}, q.Where...), Predicate{Field: field, Op: OpEq, Value: value})
	return q
}

// In appends a membership predicate.
func (q Query) In(field string, values []string) Query {
	q.Where = append(append([]Predicate{}, q.Where...), Predicate{Field: field, Op: OpIn, Value: values})
	return q
}

// Includes reports whether the relation is part of the eager-load set.
func (q Query) Includes(relation string) bool {
	return ContainsString(q.Include, relation)
}

// StableOrdering returns the ordering with the id tiebreak appended so that
// rows with equal sort keys keep the same order across pages.
func (q Query) StableOrdering() []DBOrdering {
	ords := make([]DBOrdering, 0, len(q.Ordering)+1)
	for _, ord := range q.Ordering {
		if ord.Field == IDField {
			return append(ords, ord)
		}
		ords = append(ords, ord)
	}
	return append(ords, DBOrdering{Field: IDField, Ascending: true})
}

// Unpaged returns a copy of q without its page window.
func (q Query) Unpaged() Query {
	q.Offset, q.Limit = 0, 0
	return q
}

// Between appends an inclusive range on one column.
func (q Query) Between(field string, from, to interface{}) Query {
	q.Where = append(append([]Predicate{}, q.Where...),
		Predicate{Field: field, Op: OpGTE, Value: from},
		Predicate{Field: field, Op: OpLTE, Value: to},
	)
	return q
}
