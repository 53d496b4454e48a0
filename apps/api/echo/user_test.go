package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	repo := app.env.UsrRepo
	testutil.CreateUser(t, repo, "User", "user01", "user01@test.cd", "pwd", nil, true)
	testutil.CreateUser(t, repo, "N Dog", "ndog01", "ndog@test.cd", "pwd", []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	app.run(t, []httpTest{
		{name: "blank body", method: http.MethodPost, path: "/v1/users/login", body: []byte("{}"), wantCode: http.StatusBadRequest},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("lol", "pwd"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("user01", "lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("ndog01", "pwd"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	for _, uname := range []string{"user01", "USER01", "user01@test.cd"} {
		t.Run("success with "+uname, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/v1/users/login", "", login(uname, "pwd"))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp LoginResponse
			decode(t, rec, &resp)
			claims := new(Claims)
			_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(testutil.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, "user01", claims.Username)
			assert.Equal(t, "Shule", claims.Issuer)

			usr, err := app.env.UserSvc.GetByUsername(context.Background(), "user01")
			require.NoError(t, err)
			assert.False(t, usr.LastLogin.IsZero())
		})
	}
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.env.UsrRepo, "User", "user01", "user01@test.cd", "", nil, true)
	gone := user.User{ID: "0c7a3d1e-7e39-4a57-9f8a-57c9f0e1b3d2", Username: "ghost1"}

	app.run(t, []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "deleted user", path: "/v1/users/me", token: app.token(t, gone),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{name: "success", path: "/v1/users/me", token: app.token(t, usr), wantData: marchallObj(t, usr)},
	})
}

func Test_userApi_deactivatedTokenHolder(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.env.UsrRepo, "User", "user01", "user01@test.cd", "", nil, true)
	token := app.token(t, usr)

	usr.IsActive = false
	_, err := app.env.UsrRepo.Update(context.Background(), usr)
	require.NoError(t, err)

	rec := app.do(http.MethodGet, "/v1/users/me", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.env.UsrRepo, "User", "user01", "user01@test.cd", "", nil, true)

	expired := &tokenIssuer{
		key:          []byte(testutil.SecretKey),
		expiration:   10 * time.Minute,
		refreshDelta: app.opts.JWTRefreshExpirationDelta,
		now:          time.Now,
	}
	stale, err := expired.sign(expired.claims(usr, time.Now().Add(-5*time.Hour).Unix()))
	require.NoError(t, err)

	app.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/users/token-refresh", wantCode: http.StatusUnauthorized},
		{
			name: "refresh expired", method: http.MethodPost, path: "/v1/users/token-refresh", token: stale,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "success", method: http.MethodPost, path: "/v1/users/token-refresh", token: app.token(t, usr)},
	})
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	repo := app.env.UsrRepo

	path := func(search, ordering string, isActive string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != "" {
			v.Add("is_active", isActive)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	now := time.Now().Truncate(time.Second)
	usr1 := testutil.CreateUser(t, repo, "User", "awe001", "awe@test.cd", "", nil, true, now.Add(1*time.Hour))
	usr2 := testutil.CreateUser(t, repo, "King", "user02", "king@test.cd", "", nil, true, now)
	student := testutil.CreateUser(t, repo, "Hero", "hero01", "user3@test.cd", "", []string{user.RoleStudent}, true, now.Add(-1*time.Hour))
	admin := testutil.CreateUser(t, repo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true, now.Add(2*time.Hour))
	teacher := testutil.CreateUser(t, repo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, repo, "N Dog", "ndog01", "ndog@test.cd", "", []string{user.RoleStudent}, false, now.Add(-2*time.Hour))

	adminToken := app.token(t, admin)
	const perPage = 15

	app.run(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: app.token(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "get all", path: "/v1/users", token: adminToken,
			wantData: marchallPage(t, perPage, teacher, admin, usr1, usr2, student, naughty),
		},
		{name: "search (unknown)", path: path("lol", "", ""), token: adminToken, wantData: marchallPage[user.User](t, perPage)},
		{name: "search=USE", path: path("USE", "", ""), token: adminToken, wantData: marchallPage(t, perPage, usr1, usr2, student)},
		{name: "role=student:", path: path("", "", "", user.RoleStudent), token: adminToken, wantData: marchallPage(t, perPage, student, naughty)},
		{name: "role=admin:", path: path("", "", "", user.RoleAdmin), token: adminToken, wantData: marchallPage(t, perPage, admin)},
		{name: "is_active=false", path: path("", "", "false"), token: adminToken, wantData: marchallPage(t, perPage, naughty)},
		{name: "order by name", path: path("", "name", ""), token: adminToken, wantData: marchallPage(t, perPage, admin, student, usr2, naughty, teacher, usr1)},
		{name: "order by -name", path: path("", "-name", ""), token: adminToken, wantData: marchallPage(t, perPage, usr1, teacher, naughty, usr2, student, admin)},
		{
			name: "unknown ordering falls back to default", path: path("", "password_hash", ""), token: adminToken,
			wantData: marchallPage(t, perPage, teacher, admin, usr1, usr2, student, naughty),
		},
	})
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.env.UsrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	token := app.token(t, admin)

	nu := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "New " + uname, Username: uname, Email: uname + "@test.cd",
			Password: "fj9!Kq2#zX", PasswordConfirm: "fj9!Kq2#zX", Roles: roles,
		})
	}

	app.run(t, []httpTest{
		{name: "password mismatch", method: http.MethodPost, path: "/v1/users", token: token, body: []byte(`{"name":"x","password":"a","password_confirm":"b"}`), wantCode: http.StatusBadRequest},
		{
			name: "role above own", method: http.MethodPost, path: "/v1/users", token: token, body: nu("owner01", user.RoleAdminOwner),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{name: "success", method: http.MethodPost, path: "/v1/users", token: token, body: nu("teach01", user.RoleTeacher), wantCode: http.StatusCreated},
		{name: "duplicate username", method: http.MethodPost, path: "/v1/users", token: token, body: nu("teach01"), wantCode: http.StatusBadRequest},
	})

	usr, err := app.env.UserSvc.GetByUsername(context.Background(), "teach01")
	require.NoError(t, err)
	assert.True(t, usr.IsTeacher())
	assert.True(t, usr.IsActive)
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)
	repo := app.env.UsrRepo
	admin := testutil.CreateUser(t, repo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	usr := testutil.CreateUser(t, repo, "User", "user01", "user01@test.cd", "", nil, true)
	other := testutil.CreateUser(t, repo, "Other", "other1", "other@test.cd", "", nil, true)
	detail := func(u user.User) string { return "/v1/users/" + u.ID }

	app.run(t, []httpTest{
		{name: "own profile", path: detail(usr), token: app.token(t, usr), wantData: marchallObj(t, usr)},
		{name: "someone else", path: detail(other), token: app.token(t, usr), wantCode: http.StatusNotFound},
		{name: "admin sees anyone", path: detail(other), token: app.token(t, admin), wantData: marchallObj(t, other)},
		{name: "unknown id", path: "/v1/users/lol", token: app.token(t, admin), wantCode: http.StatusNotFound},
		{
			name: "non admin cannot change roles", method: http.MethodPut, path: detail(usr), token: app.token(t, usr),
			body: []byte(`{"roles":["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{name: "non admin cannot delete", method: http.MethodDelete, path: detail(usr), token: app.token(t, usr), wantCode: http.StatusForbidden},
		{name: "admin deletes", method: http.MethodDelete, path: detail(other), token: app.token(t, admin), wantCode: http.StatusNoContent},
		{
			name: "admin cannot delete self", method: http.MethodDelete, path: detail(admin), token: app.token(t, admin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: user.ErrCannotDeleteSelf.Error()}),
		},
	})

	rec := app.do(http.MethodPut, detail(usr), app.token(t, usr), []byte(`{"name":"Renamed"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated user.User
	decode(t, rec, &updated)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, usr.Username, updated.Username)
}

func Test_userApi_bulk(t *testing.T) {
	app := setup(t)
	repo := app.env.UsrRepo
	admin := testutil.CreateUser(t, repo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	u1 := testutil.CreateUser(t, repo, "User 1", "user01", "user01@test.cd", "", nil, true)
	u2 := testutil.CreateUser(t, repo, "User 2", "user02", "user02@test.cd", "", nil, true)
	token := app.token(t, admin)

	setActive := func(active bool, ids ...string) []byte {
		return marchallObj(t, user.SetActive{IDs: ids, IsActive: active})
	}

	app.run(t, []httpTest{
		{
			name: "deactivate self only", method: http.MethodPatch, path: "/v1/users/active", token: token, body: setActive(false, admin.ID),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: user.ErrCannotDeactivateSelf.Error()}),
		},
		{
			name: "deactivate skips self", method: http.MethodPatch, path: "/v1/users/active", token: token, body: setActive(false, admin.ID, u1.ID),
			wantData: marchallObj(t, CountResponse{Success: "1 users deactivated.", Count: 1}),
		},
		{
			name: "delete self only", method: http.MethodDelete, path: "/v1/users?id=" + admin.ID, token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: user.ErrCannotDeleteSelf.Error()}),
		},
		{name: "delete nothing", method: http.MethodDelete, path: "/v1/users", token: token, wantCode: http.StatusNoContent},
		{
			name: "delete skips self", method: http.MethodDelete, path: fmt.Sprintf("/v1/users?id=%s&id=%s&id=%s", admin.ID, u1.ID, u2.ID), token: token,
			wantData: marchallObj(t, CountResponse{Success: "2 users deleted.", Count: 2}),
		},
	})

	ctx := context.Background()
	_, err := app.env.UserSvc.GetByID(ctx, admin.ID)
	assert.NoError(t, err)
	_, err = app.env.UserSvc.GetByID(ctx, u1.ID)
	assert.Error(t, err)
}

func Test_userApi_queryRoles(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.env.UsrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	app.run(t, []httpTest{
		{name: "success", path: "/v1/users/roles", token: app.token(t, admin), wantData: marchallObj(t, user.Roles)},
	})
}
