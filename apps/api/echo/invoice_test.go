package echoapi

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/tests"
)

type invoiceResp struct {
	invoice.Invoice
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	IsOverdue        bool            `json:"is_overdue"`
}

func Test_invoiceApi_lifecycle(t *testing.T) {
	app := setup(t)
	env := app.env
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	mum := testutil.CreateParentUser(t, env.UsrRepo, "mummy1")
	_, kids := env.CreateFamily(t, admin, &mum, "Mum", "mum@test.cd", "Amani")
	token := app.token(t, admin)

	post := func(path string, body string) (*invoiceResp, int) {
		rec := app.do(http.MethodPost, path, token, []byte(body))
		if rec.Code >= 300 {
			return nil, rec.Code
		}
		var resp invoiceResp
		decode(t, rec, &resp)
		return &resp, rec.Code
	}

	inv, code := post("/v1/invoices", `{"child_id":"`+kids[0].ID+`","amount":"1000","description":"Term 1 fees"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, invoice.StatusDraft, inv.Status)
	assert.Regexp(t, `^INV-\d{6}-[0-9A-F]{6}$`, inv.Number)
	base := "/v1/invoices/" + inv.ID

	_, code = post(base+"/payments", `{"amount":"100","method":"cash"}`)
	assert.Equal(t, http.StatusBadRequest, code, "a draft is not payable")

	inv, code = post(base+"/send", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, invoice.StatusSent, inv.Status)
	require.Len(t, env.Mail.Sent(), 1)
	assert.Equal(t, "mum@test.cd", env.Mail.Sent()[0].To[0].Address)

	inv, code = post(base+"/payments", `{"amount":"500","method":"cash"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, invoice.StatusPartiallyPaid, inv.Status)
	assert.True(t, inv.RemainingBalance.Equal(decimal.NewFromInt(500)))

	_, code = post(base+"/payments", `{"amount":"600","method":"card"}`)
	assert.Equal(t, http.StatusBadRequest, code, "more than the remaining balance")

	_, code = post(base+"/payments", `{"amount":"-1","method":"card"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	inv, code = post(base+"/payments", `{"amount":"500","method":"mobile_money","reference":"MP-1"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assert.True(t, inv.AmountPaid.Equal(decimal.NewFromInt(1000)))
	assert.True(t, inv.RemainingBalance.IsZero())
	assert.Len(t, inv.Payments, 2)

	_, code = post(base+"/cancel", ``)
	assert.Equal(t, http.StatusBadRequest, code, "paid is final")

	app.run(t, []httpTest{
		{name: "has payments", method: http.MethodDelete, path: base, token: token, wantCode: http.StatusConflict},
		{name: "not editable", method: http.MethodPut, path: base, token: token, body: []byte(`{"child_id":"` + kids[0].ID + `","amount":"10","description":"x"}`), wantCode: http.StatusBadRequest},
		{name: "parent reads own invoice", path: base, token: app.token(t, mum)},
		{name: "parent cannot pay", method: http.MethodPost, path: base + "/payments", token: app.token(t, mum), body: []byte(`{"amount":"1","method":"cash"}`), wantCode: http.StatusForbidden},
	})
}

func Test_invoiceApi_scopeAndStats(t *testing.T) {
	app := setup(t)
	env := app.env
	admin := testutil.CreateAdmin(t, env.UsrRepo, "admin1")
	mum := testutil.CreateParentUser(t, env.UsrRepo, "mummy1")
	dad := testutil.CreateParentUser(t, env.UsrRepo, "daddy1")
	_, mine := env.CreateFamily(t, admin, &mum, "Mum", "mum@test.cd", "Amani")
	_, theirs := env.CreateFamily(t, admin, &dad, "Dad", "dad@test.cd", "Baraka")
	token := app.token(t, admin)

	create := func(childID, body string) string {
		rec := app.do(http.MethodPost, "/v1/invoices", token, []byte(`{"child_id":"`+childID+`",`+body+`}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var inv invoice.Invoice
		decode(t, rec, &inv)
		return inv.ID
	}
	late := create(mine[0].ID, `"amount":"300","description":"Bus","issued_on":"2020-01-01","due_on":"2020-01-31"`)
	open := create(mine[0].ID, `"amount":"200","description":"Books"`)
	other := create(theirs[0].ID, `"amount":"1000","description":"Fees"`)
	for _, id := range []string{late, open, other} {
		rec := app.do(http.MethodPost, "/v1/invoices/"+id+"/send", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	app.run(t, []httpTest{
		{name: "overdue is admin only", method: http.MethodPost, path: "/v1/invoices/mark-overdue", token: app.token(t, mum), wantCode: http.StatusForbidden},
		{
			name: "mark overdue", method: http.MethodPost, path: "/v1/invoices/mark-overdue", token: token,
			wantData: marchallObj(t, CountResponse{Success: "1 invoices marked overdue.", Count: 1}),
		},
		{
			name: "mark overdue again", method: http.MethodPost, path: "/v1/invoices/mark-overdue", token: token,
			wantData: marchallObj(t, CountResponse{Success: "0 invoices marked overdue.", Count: 0}),
		},
		{name: "other family invoice", path: "/v1/invoices/" + other, token: app.token(t, mum), wantCode: http.StatusForbidden},
	})

	rec := app.do(http.MethodGet, "/v1/invoices", app.token(t, mum))
	require.Equal(t, http.StatusOK, rec.Code)
	var page listing.Page[invoice.Invoice]
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Total)
	for _, inv := range page.Items {
		assert.Equal(t, mine[0].ID, inv.ChildID)
	}

	var st struct {
		Outstanding struct {
			Value     decimal.Decimal `json:"value"`
			Available bool            `json:"available"`
		} `json:"outstanding"`
		Overdue struct {
			Value     int  `json:"value"`
			Available bool `json:"available"`
		} `json:"overdue"`
	}
	rec = app.do(http.MethodGet, "/v1/invoices/stats", token)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.True(t, st.Outstanding.Available)
	assert.True(t, st.Outstanding.Value.Equal(decimal.NewFromInt(1500)), st.Outstanding.Value.String())
	assert.Equal(t, 1, st.Overdue.Value)

	rec = app.do(http.MethodGet, "/v1/invoices/stats", app.token(t, mum))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.True(t, st.Outstanding.Value.Equal(decimal.NewFromInt(500)), st.Outstanding.Value.String())

	rec = app.do(http.MethodGet, "/v1/invoices/"+late, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp invoiceResp
	decode(t, rec, &resp)
	assert.Equal(t, invoice.StatusOverdue, resp.Status)
	assert.True(t, resp.IsOverdue)
	assert.Equal(t, core.NewDate(2020, 1, 31), resp.DueOn)
}
