package listing

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/trezcool/shule/core"
)

// State is the filter, search, sort and pagination state of one list page.
// Filter values are kept raw, as they appear in the query string.
type State struct {
	Search  string
	Filters map[string]string
	Sort    string // public sort key
	Desc    bool
	Page    int
	PerPage int

	def *Definition
}

// Definition returns the definition the state belongs to.
func (s *State) Definition() *Definition { return s.def }

// SortBy toggles the direction when key is the current sort, otherwise sorts
// ascending by key. Unknown keys are ignored.
func (s *State) SortBy(key string) {
	if _, ok := s.def.Sortable[key]; !ok {
		return
	}
	if s.Sort == key {
		s.Desc = !s.Desc
		return
	}
	s.Sort = key
	s.Desc = false
}

// SetFilter sets (or clears with "") a filter and goes back to the first page.
// It reports false, leaving the state untouched, for unknown filters and invalid values.
func (s *State) SetFilter(name, value string) bool {
	f, ok := s.def.filter(name)
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		delete(s.Filters, name)
	} else {
		if _, ok := f.parse(value); !ok {
			return false
		}
		s.Filters[name] = value
	}
	s.Page = 1
	return true
}

func (s *State) SetSearch(search string) {
	s.Search = strings.TrimSpace(search)
	s.Page = 1
}

// SetPerPage changes the page size and goes back to the first page.
// Sizes the definition does not allow are ignored.
func (s *State) SetPerPage(n int) {
	if !s.def.perPageAllowed(n) {
		return
	}
	s.PerPage = n
	s.Page = 1
}

// GotoPage moves to page n, kept within 1 and the largest page whose offset fits an int32.
func (s *State) GotoPage(n int) {
	if n < 1 {
		n = 1
	}
	if max := maxPage(s.PerPage); n > max {
		n = max
	}
	s.Page = n
}

func maxPage(perPage int) int {
	if perPage < 1 {
		perPage = 1
	}
	return math.MaxInt32/perPage + 1
}

// Clear restores every field to the definition defaults.
func (s *State) Clear() {
	s.Search = ""
	s.Filters = make(map[string]string)
	for _, f := range s.def.Filters {
		if f.Default != "" {
			s.Filters[f.Name] = f.Default
		}
	}
	s.Sort = s.def.DefaultSort
	s.Desc = s.def.DefaultDesc
	s.Page = 1
	s.PerPage = s.def.perPage()
}

// Values encodes the state as a query string, omitting defaults.
func (s *State) Values() url.Values {
	v := make(url.Values)
	if s.Search != "" {
		v.Set(SearchParam, s.Search)
	}
	for _, f := range s.def.Filters {
		val := s.Filters[f.Name]
		if val != f.Default {
			v.Set(f.Name, val)
		}
	}
	if s.Sort != s.def.DefaultSort || s.Desc != s.def.DefaultDesc {
		ord := s.Sort
		if s.Desc {
			ord = "-" + ord
		}
		v.Set(OrderParam, ord)
	}
	if s.Page > 1 {
		v.Set(PageParam, strconv.Itoa(s.Page))
	}
	if s.PerPage != s.def.perPage() {
		v.Set(PerPageParam, strconv.Itoa(s.PerPage))
	}
	return v
}

// Query builds the store query of the state.
func (s *State) Query() core.Query {
	return s.def.Query(*s)
}
