package dummydb

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

type row struct {
	id    string
	name  string
	grade int
	roles []string
	born  core.Date
}

func rowFields(r row) record {
	return record{"id": r.id, "name": r.name, "grade": r.grade, "roles": r.roles, "born": r.born}
}

func names(rows []row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.name)
	}
	return out
}

func Test_run(t *testing.T) {
	rows := []row{
		{id: "4", name: "Dina", grade: 2, roles: []string{"parent:"}, born: core.NewDate(2014, time.May, 2)},
		{id: "1", name: "Amani", grade: 3, roles: []string{"admin:owner"}, born: core.NewDate(2013, time.January, 9)},
		{id: "3", name: "Chausiku", grade: 3, roles: []string{"teacher:"}, born: core.NewDate(2015, time.July, 30)},
		{id: "2", name: "Baraka", grade: 1, roles: []string{"admin:", "teacher:"}, born: core.NewDate(2016, time.March, 1)},
	}

	tests := []struct {
		name      string
		q         core.Query
		want      []string
		wantTotal int
		wantErr   bool
	}{
		{
			name:      "id order by default",
			want:      []string{"Amani", "Baraka", "Chausiku", "Dina"},
			wantTotal: 4,
		},
		{
			name:      "sorted with the id tiebreak",
			q:         core.Query{Ordering: []core.DBOrdering{{Field: "grade", Ascending: false}}},
			want:      []string{"Amani", "Chausiku", "Dina", "Baraka"},
			wantTotal: 4,
		},
		{
			name:      "page window",
			q:         core.Query{Ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, Offset: 1, Limit: 2},
			want:      []string{"Baraka", "Chausiku"},
			wantTotal: 4,
		},
		{
			name:      "offset past the end",
			q:         core.Query{Offset: 10, Limit: 2},
			want:      []string{},
			wantTotal: 4,
		},
		{
			name:      "equality",
			q:         core.Query{}.Eq("grade", 3),
			want:      []string{"Amani", "Chausiku"},
			wantTotal: 2,
		},
		{
			name:      "membership",
			q:         core.Query{}.In("id", []string{"2", "4", "9"}),
			want:      []string{"Baraka", "Dina"},
			wantTotal: 2,
		},
		{
			name:      "date range",
			q:         core.Query{}.Between("born", core.NewDate(2014, time.January, 1), core.NewDate(2015, time.July, 30)),
			want:      []string{"Chausiku", "Dina"},
			wantTotal: 2,
		},
		{
			name:      "any prefix",
			q:         core.Query{Where: []core.Predicate{{Field: "roles", Op: core.OpAnyPrefix, Value: []string{"admin:"}}}},
			want:      []string{"Amani", "Baraka"},
			wantTotal: 2,
		},
		{
			name:      "search",
			q:         core.Query{Search: "AR", SearchFields: []string{"name"}},
			want:      []string{"Baraka"},
			wantTotal: 1,
		},
		{
			name:    "unknown filter field",
			q:       core.Query{}.Eq("age", 3),
			wantErr: true,
		},
		{
			name:    "unknown sort field",
			q:       core.Query{Ordering: []core.DBOrdering{{Field: "age"}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := run(rows, rowFields, tt.q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func Test_run_pagesPartitionTheResults(t *testing.T) {
	rows := make([]row, 0, 11)
	for i := 0; i < 11; i++ {
		rows = append(rows, row{id: fmt.Sprintf("%02d", 10-i), name: fmt.Sprintf("n%d", i), grade: i % 3})
	}
	q := core.Query{Ordering: []core.DBOrdering{{Field: "grade", Ascending: true}}, Limit: 4}

	seen := make(map[string]bool)
	var sum int
	for page := 0; ; page++ {
		q.Offset = page * q.Limit
		got, total, err := run(rows, rowFields, q)
		require.NoError(t, err)
		assert.Equal(t, len(rows), total)
		if len(got) == 0 {
			break
		}
		for _, r := range got {
			assert.False(t, seen[r.id], "%s on two pages", r.id)
			seen[r.id] = true
		}
		sum += len(got)
	}
	assert.Equal(t, len(rows), sum)
}
