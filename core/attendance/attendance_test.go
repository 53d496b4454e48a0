package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSummary(t *testing.T) {
	tests := []struct {
		name      string
		counts    map[string]int
		wantTotal int
		wantRate  float64
	}{
		{name: "no records", counts: nil, wantTotal: 0, wantRate: 0},
		{name: "all present", counts: map[string]int{StatusPresent: 4}, wantTotal: 4, wantRate: 100},
		{name: "late counts as attended", counts: map[string]int{StatusPresent: 1, StatusLate: 1, StatusAbsent: 1}, wantTotal: 3, wantRate: 66.67},
		{name: "excused counts as missed", counts: map[string]int{StatusPresent: 1, StatusExcused: 3}, wantTotal: 4, wantRate: 25},
		{name: "unknown statuses are ignored", counts: map[string]int{StatusAbsent: 2, "lost": 5}, wantTotal: 2, wantRate: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSummary("child-1", tt.counts)
			assert.Equal(t, "child-1", s.ChildID)
			assert.Equal(t, tt.wantTotal, s.Total)
			assert.Equal(t, tt.wantRate, s.Rate)
			assert.Len(t, s.Counts, len(Statuses))
		})
	}
}

func TestAttendance_Attended(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPresent: true,
		StatusLate:    true,
		StatusAbsent:  false,
		StatusExcused: false,
	} {
		assert.Equal(t, want, Attendance{Status: status}.Attended(), status)
	}
}
