package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core/user"
)

func TestSession_Duration(t *testing.T) {
	start := time.Date(2024, time.October, 1, 8, 0, 0, 0, time.UTC)
	s := Session{StartsAt: start, EndsAt: start.Add(90 * time.Minute)}
	assert.Equal(t, 90*time.Minute, s.Duration())

	s.EndsAt = start.Add(-time.Minute)
	assert.Equal(t, time.Duration(0), s.Duration())
}

func TestSession_TaughtBy(t *testing.T) {
	s := Session{TeacherID: "t1"}

	tests := []struct {
		name  string
		actor user.User
		want  bool
	}{
		{"admin", user.User{ID: "a1", Roles: []string{user.RoleAdmin}}, true},
		{"its teacher", user.User{ID: "t1", Roles: []string{user.RoleTeacher}}, true},
		{"another teacher", user.User{ID: "t2", Roles: []string{user.RoleTeacher}}, false},
		{"parent with the same id", user.User{ID: "t1", Roles: []string{user.RoleParent}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.TaughtBy(tt.actor))
		})
	}
}
