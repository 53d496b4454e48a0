package echoapi

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func childIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var page listing.Page[family.ChildProfile]
	decode(t, rec, &page)
	ids := make([]string, 0, len(page.Items))
	for _, c := range page.Items {
		ids = append(ids, c.ID)
	}
	return ids
}

func Test_familyApi_childrenOwnership(t *testing.T) {
	app := setup(t)
	env := app.env
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	teacher := testutil.CreateTeacher(t, env.UsrRepo, "teacher1")
	mum := testutil.CreateParentUser(t, env.UsrRepo, "mummy1")
	stranger := testutil.CreateParentUser(t, env.UsrRepo, "stranger1")

	_, mine := env.CreateFamily(t, admin, &mum, "Mum", "mum@test.cd", "Amani", "Baraka")
	_, others := env.CreateFamily(t, admin, nil, "Other", "other@test.cd", "Chausiku")

	t.Run("staff see every child", func(t *testing.T) {
		for _, usr := range []user.User{admin, teacher} {
			rec := app.do(http.MethodGet, "/v1/children", app.token(t, usr))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.ElementsMatch(t, []string{mine[0].ID, mine[1].ID, others[0].ID}, childIDs(t, rec))
		}
	})
	t.Run("parent sees own children", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/children", app.token(t, mum))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.ElementsMatch(t, []string{mine[0].ID, mine[1].ID}, childIDs(t, rec))
	})
	t.Run("parent without profile gets an empty page", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/children", app.token(t, stranger))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, childIDs(t, rec))
	})

	app.run(t, []httpTest{
		{name: "own child", path: "/v1/children/" + mine[0].ID, token: app.token(t, mum)},
		{
			name: "someone else's child", path: "/v1/children/" + others[0].ID, token: app.token(t, mum),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "unknown child", path: "/v1/children/lol", token: app.token(t, admin), wantCode: http.StatusNotFound},
		{name: "parent cannot delete", method: http.MethodDelete, path: "/v1/children/" + mine[0].ID, token: app.token(t, mum), wantCode: http.StatusForbidden},
		{
			name: "parent cannot edit by default", method: http.MethodPut, path: "/v1/children/" + mine[0].ID, token: app.token(t, mum),
			body: []byte(`{"name":"Amani","date_of_birth":"2015-03-01","gender":"male"}`), wantCode: http.StatusForbidden,
		},
		{name: "parents list is staff only", path: "/v1/parents", token: app.token(t, mum), wantCode: http.StatusForbidden},
		{name: "parent profile", path: "/v1/parents/me", token: app.token(t, mum)},
		{name: "no profile", path: "/v1/parents/me", token: app.token(t, stranger), wantCode: http.StatusNotFound},
		{name: "not a parent", path: "/v1/parents/me", token: app.token(t, teacher), wantCode: http.StatusForbidden},
	})
}

func Test_familyApi_parentEditsChildWhenAllowed(t *testing.T) {
	app := setup(t)
	env := app.env
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	mum := testutil.CreateParentUser(t, env.UsrRepo, "mummy1")
	_, kids := env.CreateFamily(t, admin, &mum, "Mum", "mum@test.cd", "Amani")
	other, _ := env.CreateFamily(t, admin, nil, "Other", "other@test.cd")

	s := env.SettingsSvc.GetOrDefaults(ctx)
	s.AllowParentChildEdit = true
	_, err := env.SettingsSvc.Save(ctx, admin, s)
	require.NoError(t, err)

	body := []byte(`{"parent_profile_id":"` + other.ID + `","name":"Amani Jr","date_of_birth":"2015-03-01","gender":"male"}`)
	rec := app.do(http.MethodPut, "/v1/children/"+kids[0].ID, app.token(t, mum), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var c family.ChildProfile
	decode(t, rec, &c)
	assert.Equal(t, "Amani Jr", c.Name)
	assert.Equal(t, kids[0].ParentProfileID, c.ParentProfileID, "a parent cannot move a child")
}

func Test_familyApi_deleteParentWithChildren(t *testing.T) {
	app := setup(t)
	env := app.env
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	p, kids := env.CreateFamily(t, admin, nil, "Mum", "mum@test.cd", "Amani")
	token := app.token(t, admin)

	app.run(t, []httpTest{
		{name: "has children", method: http.MethodDelete, path: "/v1/parents/" + p.ID, token: token, wantCode: http.StatusConflict},
		{name: "delete child", method: http.MethodDelete, path: "/v1/children/" + kids[0].ID, token: token, wantCode: http.StatusNoContent},
		{name: "now deletable", method: http.MethodDelete, path: "/v1/parents/" + p.ID, token: token, wantCode: http.StatusNoContent},
		{name: "gone", path: "/v1/parents/" + p.ID, token: token, wantCode: http.StatusNotFound},
	})
}

func Test_familyApi_inviteAndJoin(t *testing.T) {
	app := setup(t)
	env := app.env
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	p, _ := env.CreateFamily(t, admin, nil, "Mama Amani", "mama@test.cd", "Amani")
	noMail, _ := env.CreateFamily(t, admin, nil, "Baba", "")

	app.run(t, []httpTest{
		{name: "admin only", method: http.MethodPost, path: "/v1/parents/" + p.ID + "/invite", token: app.token(t, testutil.CreateTeacher(t, env.UsrRepo, "teacher1")), wantCode: http.StatusForbidden},
		{name: "no email", method: http.MethodPost, path: "/v1/parents/" + noMail.ID + "/invite", token: app.token(t, admin), wantCode: http.StatusBadRequest},
		{
			name: "invite", method: http.MethodPost, path: "/v1/parents/" + p.ID + "/invite", token: app.token(t, admin),
			wantData: marchallObj(t, SuccessResponse{Success: "The invitation has been sent."}),
		},
	})

	sent := env.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mama@test.cd", sent[0].To[0].Address)
	tmplData, _ := sent[0].TemplateData.(map[string]interface{})
	uid, _ := tmplData["UID"].(string)
	token, _ := tmplData["Token"].(string)
	require.NotEmpty(t, token)

	join := func(tok string) []byte {
		return marchallObj(t, family.JoinInput{UID: uid, Token: tok, Username: "mamaamani", Password: "fj9!Kq2#zX", PasswordConfirm: "fj9!Kq2#zX"})
	}
	app.run(t, []httpTest{
		{name: "bad token", method: http.MethodPost, path: "/v1/parents/join", body: join("1-abc"), wantCode: http.StatusBadRequest},
		{name: "join", method: http.MethodPost, path: "/v1/parents/join", body: join(token), wantCode: http.StatusCreated},
		{name: "token used", method: http.MethodPost, path: "/v1/parents/join", body: join(token), wantCode: http.StatusBadRequest},
	})

	usr, err := env.UserSvc.GetByUsername(context.Background(), "mamaamani")
	require.NoError(t, err)
	assert.True(t, usr.IsParent())

	rec := app.do(http.MethodGet, "/v1/parents/me", app.token(t, usr))
	require.Equal(t, http.StatusOK, rec.Code)
	var me family.ParentProfile
	decode(t, rec, &me)
	assert.Equal(t, p.ID, me.ID)
	assert.Len(t, me.Children, 1)
}

func multipartPhoto(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(fw, img))
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func Test_familyApi_photo(t *testing.T) {
	app := setup(t)
	env := app.env
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	mum := testutil.CreateParentUser(t, env.UsrRepo, "mummy1")
	_, kids := env.CreateFamily(t, admin, &mum, "Mum", "mum@test.cd", "Amani")
	photoPath := "/v1/children/" + kids[0].ID + "/photo"

	upload := func(field string) *httptest.ResponseRecorder {
		body, ct := multipartPhoto(t, field)
		req := httptest.NewRequest(http.MethodPut, photoPath, body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+app.token(t, admin))
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		return rec
	}

	rec := app.do(http.MethodGet, photoPath, app.token(t, mum))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = upload("file")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"photo":"a photo file is required"}`, rec.Body.String())

	rec = upload("photo")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var c family.ChildProfile
	decode(t, rec, &c)
	assert.NotEmpty(t, c.PhotoPath)

	rec = app.do(http.MethodGet, photoPath, app.token(t, mum))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	_, format, err := image.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}
