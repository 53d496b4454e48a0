// Package listing holds the filter, search, sort and pagination state of a
// list page and turns it into a core.Query.
package listing

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
)

// Parser converts a raw filter value into the value of its predicate.
// ok is false when the raw value is invalid for the filter.
type Parser func(raw string) (value interface{}, ok bool)

// Filter declares one filter of a list page.
type Filter struct {
	Name    string  // query string key
	Column  string  // predicate field
	Op      core.Op // OpIn and OpAnyPrefix take comma separated values
	Parse   Parser  // nil means String
	Default string
}

// Definition declares what a list page can be filtered, searched and sorted by.
type Definition struct {
	Filters      []Filter
	SearchFields []string
	Sortable     map[string]string // public sort key: column
	DefaultSort  string            // public sort key
	DefaultDesc  bool
	PerPage      int
	PerPageSizes []int
	Include      []string
}

const (
	SearchParam  = "search"
	OrderParam   = "ordering"
	PageParam    = "page"
	PerPageParam = "per_page"

	defaultPerPage = 15
)

var defaultPerPageSizes = []int{10, 15, 25, 50, 100}

// WithPerPage returns a copy of the definition using n as its default page size.
func (def *Definition) WithPerPage(n int) *Definition {
	cp := *def
	if n > 0 {
		cp.PerPage = n
	}
	return &cp
}

func (def *Definition) perPage() int {
	if def.PerPage > 0 {
		return def.PerPage
	}
	return defaultPerPage
}

func (def *Definition) perPageAllowed(n int) bool {
	if n == def.perPage() {
		return true
	}
	sizes := def.PerPageSizes
	if sizes == nil {
		sizes = defaultPerPageSizes
	}
	for _, size := range sizes {
		if size == n {
			return true
		}
	}
	return false
}

func (def *Definition) filter(name string) (Filter, bool) {
	for _, f := range def.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return Filter{}, false
}

// NewState returns the default state of the page.
func (def *Definition) NewState() State {
	s := State{def: def}
	s.Clear()
	return s
}

// Decode reads a state from a query string. Invalid values fall back to their default.
func (def *Definition) Decode(values map[string][]string) State {
	s := def.NewState()

	s.Search = core.CleanString(first(values, SearchParam))

	for _, f := range def.Filters {
		raw, present := values[f.Name]
		if !present {
			continue
		}
		val := ""
		if len(raw) > 0 {
			val = strings.TrimSpace(raw[0])
		}
		if val == "" {
			delete(s.Filters, f.Name)
			continue
		}
		if _, ok := f.parse(val); ok {
			s.Filters[f.Name] = val
		}
	}

	if ord := first(values, OrderParam); ord != "" {
		key := strings.TrimPrefix(ord, "-")
		if _, ok := def.Sortable[key]; ok {
			s.Sort = key
			s.Desc = strings.HasPrefix(ord, "-")
		}
	}

	if n, err := strconv.Atoi(first(values, PerPageParam)); err == nil && def.perPageAllowed(n) {
		s.PerPage = n
	}
	if n, err := strconv.Atoi(first(values, PageParam)); err == nil {
		s.GotoPage(n)
	}
	return s
}

// Query builds the store query of the state.
func (def *Definition) Query(s State) core.Query {
	q := core.Query{
		Include: append([]string(nil), def.Include...),
	}

	names := make([]string, 0, len(s.Filters))
	for name := range s.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := def.filter(name)
		if !ok {
			continue
		}
		if val, ok := f.parse(s.Filters[name]); ok {
			q.Where = append(q.Where, core.Predicate{Field: f.Column, Op: f.op(), Value: val})
		}
	}

	if s.Search != "" && len(def.SearchFields) > 0 {
		q.Search = s.Search
		q.SearchFields = append([]string(nil), def.SearchFields...)
	}

	if col, ok := def.Sortable[s.Sort]; ok {
		q.Ordering = []core.DBOrdering{{Field: col, Ascending: !s.Desc}}
	}
	q.Ordering = q.StableOrdering()

	q.Limit = s.PerPage
	q.Offset = (s.Page - 1) * s.PerPage
	return q
}

func (f Filter) op() core.Op {
	if f.Op == "" {
		return core.OpEq
	}
	return f.Op
}

func (f Filter) parse(raw string) (interface{}, bool) {
	parse := f.Parse
	if parse == nil {
		parse = String
	}
	switch f.op() {
	case core.OpIn, core.OpAnyPrefix:
		parts := strings.Split(raw, ",")
		vals := make([]string, 0, len(parts))
		for _, part := range parts {
			v, ok := parse(strings.TrimSpace(part))
			if !ok {
				return nil, false
			}
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			vals = append(vals, s)
		}
		return vals, true
	default:
		return parse(raw)
	}
}

func first(values map[string][]string, key string) string {
	if vals := values[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// Parsers

func String(raw string) (interface{}, bool) {
	return raw, raw != ""
}

func Bool(raw string) (interface{}, bool) {
	b, err := strconv.ParseBool(raw)
	return b, err == nil
}

func UUID(raw string) (interface{}, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return id.String(), true
}

// Date parses YYYY-MM-DD into the start of that day (UTC).
func Date(raw string) (interface{}, bool) {
	d, err := core.ParseDate(raw)
	if err != nil {
		return nil, false
	}
	return d.Time, true
}

// DateEnd parses YYYY-MM-DD into the last instant of that day (UTC), for inclusive upper bounds on timestamps.
func DateEnd(raw string) (interface{}, bool) {
	d, err := core.ParseDate(raw)
	if err != nil {
		return nil, false
	}
	return d.Add(24*time.Hour - time.Nanosecond), true
}

// Enum accepts only the given values.
func Enum(values ...string) Parser {
	return func(raw string) (interface{}, bool) {
		return raw, core.ContainsString(values, raw)
	}
}
