package listing

import (
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func testDefinition() *Definition {
	return &Definition{
		Filters: []Filter{
			{Name: "status", Column: "status", Op: core.OpIn, Parse: Enum("draft", "sent", "paid")},
			{Name: "is_active", Column: "is_active", Parse: Bool},
			{Name: "from", Column: "due_on", Op: core.OpGTE, Parse: Date},
			{Name: "to", Column: "due_on", Op: core.OpLTE, Parse: Date},
			{Name: "scope", Column: "scope", Parse: Enum("mine", "all"), Default: "mine"},
		},
		SearchFields: []string{"number", "description"},
		Sortable:     map[string]string{"number": "number", "due": "due_on", "created": "created_at"},
		DefaultSort:  "created",
		DefaultDesc:  true,
		PerPage:      10,
		Include:      []string{"child"},
	}
}

func TestState_SortBy(t *testing.T) {
	def := testDefinition()

	t.Run("same column toggles", func(t *testing.T) {
		s := def.NewState()
		s.SortBy("number")
		assert.Equal(t, "number", s.Sort)
		assert.False(t, s.Desc)

		s.SortBy("number")
		assert.True(t, s.Desc)
		s.SortBy("number")
		assert.False(t, s.Desc)
	})

	t.Run("new column resets to ascending", func(t *testing.T) {
		s := def.NewState()
		assert.True(t, s.Desc)
		s.SortBy("due")
		assert.Equal(t, "due", s.Sort)
		assert.False(t, s.Desc)
	})

	t.Run("unknown column is ignored", func(t *testing.T) {
		s := def.NewState()
		s.SortBy("password_hash")
		assert.Equal(t, "created", s.Sort)
		assert.True(t, s.Desc)
	})
}

func TestState_ResetPage(t *testing.T) {
	def := testDefinition()

	tests := []struct {
		name string
		op   func(s *State)
	}{
		{name: "filter", op: func(s *State) { s.SetFilter("status", "paid") }},
		{name: "clear filter", op: func(s *State) { s.SetFilter("status", "") }},
		{name: "search", op: func(s *State) { s.SetSearch("INV") }},
		{name: "per page", op: func(s *State) { s.SetPerPage(25) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := def.NewState()
			s.GotoPage(4)
			tt.op(&s)
			assert.Equal(t, 1, s.Page)
		})
	}
}

func TestState_SetFilter(t *testing.T) {
	def := testDefinition()
	s := def.NewState()

	assert.False(t, s.SetFilter("status", "lost"))
	assert.False(t, s.SetFilter("unknown", "x"))
	assert.False(t, s.SetFilter("from", "31/12/2024"))
	assert.NotContains(t, s.Filters, "status")

	assert.True(t, s.SetFilter("status", "draft,sent"))
	assert.Equal(t, "draft,sent", s.Filters["status"])
}

func TestState_GotoPage(t *testing.T) {
	s := testDefinition().NewState()
	s.GotoPage(-3)
	assert.Equal(t, 1, s.Page)
	s.GotoPage(0)
	assert.Equal(t, 1, s.Page)
	s.GotoPage(7)
	assert.Equal(t, 7, s.Page)
}

func TestDefinition_Decode_outOfRangePage(t *testing.T) {
	def := testDefinition()

	for _, raw := range []string{"922337203685477582", "214748365", "9223372036854775807"} {
		t.Run(raw, func(t *testing.T) {
			s := def.Decode(url.Values{PageParam: {raw}})
			q := s.Query()
			assert.Positive(t, q.Offset)
			assert.LessOrEqual(t, q.Offset, math.MaxInt32)
			assert.Equal(t, s.Page, q.Offset/q.Limit+1)

			p := NewPage[int](nil, 20, s)
			assert.Equal(t, 2, p.LastPage)
			assert.Zero(t, p.From)
			assert.Zero(t, p.To)
		})
	}

	// too large for an int: ignored
	s := def.Decode(url.Values{PageParam: {"99999999999999999999"}})
	assert.Equal(t, 1, s.Page)
	assert.Zero(t, s.Query().Offset)
}

func TestState_Clear(t *testing.T) {
	def := testDefinition()
	s := def.NewState()
	s.SetSearch("x")
	s.SetFilter("status", "paid")
	s.SetFilter("scope", "all")
	s.SortBy("number")
	s.SetPerPage(50)
	s.GotoPage(3)

	s.Clear()
	assert.Equal(t, def.NewState(), s)

	s.Clear()
	assert.Equal(t, def.NewState(), s)
	assert.Equal(t, "mine", s.Filters["scope"])
}

func TestState_URLRoundTrip(t *testing.T) {
	def := testDefinition()

	states := map[string]func() State{
		"defaults": def.NewState,
		"everything set": func() State {
			s := def.NewState()
			s.SetSearch("fees")
			s.SetFilter("status", "draft,paid")
			s.SetFilter("is_active", "false")
			s.SetFilter("from", "2024-01-01")
			s.SetFilter("to", "2024-12-31")
			s.SortBy("due")
			s.SortBy("due")
			s.SetPerPage(25)
			s.GotoPage(3)
			return s
		},
		"default filter cleared": func() State {
			s := def.NewState()
			s.SetFilter("scope", "")
			return s
		},
		"default sort ascending": func() State {
			s := def.NewState()
			s.SortBy("created")
			return s
		},
	}
	for name, build := range states {
		t.Run(name, func(t *testing.T) {
			s := build()
			v := s.Values()
			got := def.Decode(v)
			assert.Equal(t, s, got, "values: %s", v.Encode())

			parsed, err := url.ParseQuery(v.Encode())
			require.NoError(t, err)
			assert.Equal(t, s, def.Decode(parsed))
		})
	}
}

func TestState_Values_OmitsDefaults(t *testing.T) {
	s := testDefinition().NewState()
	assert.Empty(t, s.Values())
}

func TestDefinition_Decode_DropsInvalid(t *testing.T) {
	def := testDefinition()
	v := url.Values{
		"status":    {"lost"},
		"is_active": {"maybe"},
		"from":      {"yesterday"},
		"ordering":  {"-password_hash"},
		"page":      {"-2"},
		"per_page":  {"1000"},
		"search":    {"  fees  "},
	}
	s := def.Decode(v)

	want := def.NewState()
	want.Search = "fees"
	assert.Equal(t, want, s)
}

func TestDefinition_Query(t *testing.T) {
	def := testDefinition()
	s := def.NewState()
	s.SetSearch("fees")
	s.SetFilter("status", "draft,sent")
	s.SetFilter("from", "2024-01-01")
	s.SetFilter("to", "2024-01-31")
	s.SortBy("number")
	s.GotoPage(3)

	q := s.Query()
	assert.Equal(t, []core.Predicate{
		{Field: "due_on", Op: core.OpGTE, Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Field: "scope", Op: core.OpEq, Value: "mine"},
		{Field: "status", Op: core.OpIn, Value: []string{"draft", "sent"}},
		{Field: "due_on", Op: core.OpLTE, Value: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
	}, q.Where)
	assert.Equal(t, "fees", q.Search)
	assert.Equal(t, []string{"number", "description"}, q.SearchFields)
	assert.Equal(t, []string{"child"}, q.Include)
	assert.Equal(t, []core.DBOrdering{{Field: "number", Ascending: true}, {Field: "id", Ascending: true}}, q.Ordering)
	assert.Equal(t, 20, q.Offset)
	assert.Equal(t, 10, q.Limit)
}

func TestDefinition_Query_NoSearchFields(t *testing.T) {
	def := &Definition{Sortable: map[string]string{"name": "name"}}
	s := def.NewState()
	s.SetSearch("x")
	q := s.Query()
	assert.Empty(t, q.Search)
	assert.Equal(t, []core.DBOrdering{{Field: "id", Ascending: true}}, q.Ordering)
	assert.Equal(t, defaultPerPage, q.Limit)
}

func TestDefinition_WithPerPage(t *testing.T) {
	def := testDefinition()
	s := def.WithPerPage(25).NewState()
	assert.Equal(t, 25, s.PerPage)
	assert.Equal(t, 10, def.NewState().PerPage)
}

func TestNewPage(t *testing.T) {
	def := testDefinition()

	tests := []struct {
		name                   string
		items, total, page     int
		wantLast, wantFrom, to int
	}{
		{name: "empty", items: 0, total: 0, page: 1, wantLast: 1},
		{name: "first page", items: 10, total: 23, page: 1, wantLast: 3, wantFrom: 1, to: 10},
		{name: "last page", items: 3, total: 23, page: 3, wantLast: 3, wantFrom: 21, to: 23},
		{name: "exact", items: 10, total: 20, page: 2, wantLast: 2, wantFrom: 11, to: 20},
		{name: "past the end", items: 0, total: 20, page: 5, wantLast: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := def.NewState()
			s.GotoPage(tt.page)
			p := NewPage(make([]int, tt.items), tt.total, s)
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, tt.wantLast, p.LastPage)
			assert.Equal(t, tt.wantFrom, p.From)
			assert.Equal(t, tt.to, p.To)
			assert.Equal(t, 10, p.PerPage)
			assert.NotNil(t, p.Items)
		})
	}
}

type nopLogger struct{ errors int }

func (l *nopLogger) Debug(string, ...interface{}) {}
func (l *nopLogger) Info(string, ...interface{})  {}
func (l *nopLogger) Warn(string, ...interface{})  {}
func (l *nopLogger) Error(string, ...interface{}) { l.errors++ }
func (l *nopLogger) Fatal(string, ...interface{}) {}

func TestOrEmpty(t *testing.T) {
	s := testDefinition().NewState()
	logger := new(nopLogger)

	p := OrEmpty([]string{"a"}, 1, core.NewShutdownError("db down"), s, logger, "invoices")
	assert.Equal(t, 0, p.Total)
	assert.Empty(t, p.Items)
	assert.Equal(t, 1, logger.errors)

	p = OrEmpty([]string{"a"}, 1, nil, s, logger, "invoices")
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, 1, logger.errors)
}
