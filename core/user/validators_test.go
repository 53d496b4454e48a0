package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_passwordPolicyViolation(t *testing.T) {
	orig := commonPasswords
	commonPasswords = []string{"qwerty123!"}
	defer func() { commonPasswords = orig }()

	tests := []struct {
		name string
		pwd  string
		want string
	}{
		{name: "too short", pwd: "aB1!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "aB1! xyz9", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no upper", pwd: "fj9!kq2#zx", want: pwdComplexityTag},
		{name: "no special", pwd: "fj9Kq2zXab", want: pwdComplexityTag},
		{name: "like the username", pwd: "Awesome1!", want: pwdAttrSimTag},
		{name: "common", pwd: "Qwerty123!", want: pwdNoCommonTag},
		{name: "valid", pwd: "fj9!Kq2#zX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passwordPolicyViolation(tt.pwd, "User", "awesome", "user@test.cd"))
		})
	}
}

func Test_withoutActor(t *testing.T) {
	actor := User{ID: "me"}

	ids, listed := withoutActor(actor, []string{"a", "me", "b", "a"})
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.True(t, listed)

	ids, listed = withoutActor(actor, []string{"me"})
	assert.Empty(t, ids)
	assert.True(t, listed)

	ids, listed = withoutActor(actor, []string{"a"})
	assert.Equal(t, []string{"a"}, ids)
	assert.False(t, listed)
}

func TestUser_roles(t *testing.T) {
	usr := User{Roles: []string{RoleAdminPrincipal, RoleTeacher}}
	assert.True(t, usr.IsAdmin())
	assert.True(t, usr.IsTeacher())
	assert.False(t, usr.IsParent())
	assert.Equal(t, RolePriority(RoleAdminPrincipal), MaxRolePriority(usr.Roles))
}
