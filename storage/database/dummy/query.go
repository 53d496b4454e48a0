package dummydb

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
)

// record exposes the columns of a row by name.
type record map[string]interface{}

// normalize brings comparable values to a common type.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case core.Date:
		return val.Time
	case *core.Date:
		return val.Time
	case time.Time:
		return val.UTC()
	}
	return v
}

// compare orders a against b; ok is false when they cannot be compared.
func compare(a, b interface{}) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return strings.Compare(x, y), ok
	case int:
		y, ok := b.(int)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return x.Cmp(y), ok
	}
	return 0, false
}

func matches(rec record, q core.Query) (bool, error) {
	for _, p := range q.Where {
		val, ok := rec[p.Field]
		if !ok {
			return false, errors.Errorf("unknown field %q", p.Field)
		}
		switch p.Op {
		case core.OpEq, "":
			if c, ok := compare(val, p.Value); !ok || c != 0 {
				return false, nil
			}
		case core.OpIn:
			values, _ := p.Value.([]string)
			s, _ := val.(string)
			if !core.ContainsString(values, s) {
				return false, nil
			}
		case core.OpGTE:
			if c, ok := compare(val, p.Value); !ok || c < 0 {
				return false, nil
			}
		case core.OpLTE:
			if c, ok := compare(val, p.Value); !ok || c > 0 {
				return false, nil
			}
		case core.OpAnyPrefix:
			prefixes, _ := p.Value.([]string)
			elems, _ := val.([]string)
			if !anyPrefix(elems, prefixes) {
				return false, nil
			}
		default:
			return false, errors.Errorf("unsupported operator %q", p.Op)
		}
	}

	if q.Search != "" && len(q.SearchFields) > 0 {
		search := strings.ToLower(q.Search)
		for _, field := range q.SearchFields {
			s, _ := rec[field].(string)
			if strings.Contains(strings.ToLower(s), search) {
				return true, nil
			}
		}
		return false, nil
	}
	return true, nil
}

func anyPrefix(elems, prefixes []string) bool {
	for _, e := range elems {
		for _, p := range prefixes {
			if strings.HasPrefix(e, p) {
				return true
			}
		}
	}
	return false
}

// run filters, sorts and windows rows the way the SQL storage does.
// It returns the page and the number of matches before windowing.
func run[T any](rows []T, fields func(T) record, q core.Query) ([]T, int, error) {
	type item struct {
		row T
		rec record
	}
	items := make([]item, 0, len(rows))
	for _, r := range rows {
		rec := fields(r)
		ok, err := matches(rec, q)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			items = append(items, item{r, rec})
		}
	}

	ords := q.StableOrdering()
	for _, ord := range ords {
		if len(items) == 0 {
			break
		}
		if _, ok := items[0].rec[ord.Field]; !ok {
			return nil, 0, errors.Errorf("unknown field %q", ord.Field)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ords {
			c, _ := compare(items[i].rec[ord.Field], items[j].rec[ord.Field])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})

	total := len(items)
	start := q.Offset
	if start > total {
		start = total
	}
	if start < 0 {
		start = 0
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	page := make([]T, 0, end-start)
	for _, it := range items[start:end] {
		page = append(page, it.row)
	}
	return page, total, nil
}

func values[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func count[T any](m map[string]T, pred func(T) bool) int {
	n := 0
	for _, v := range m {
		if pred(v) {
			n++
		}
	}
	return n
}
