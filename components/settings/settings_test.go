package settings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	ct "github.com/yanizio/beacon/internal/component/componenttest"
	setsvc "github.com/yanizio/beacon/internal/settings"
)

func newComponent(t *testing.T) (http.Handler, *ct.Fixture) {
	t.Helper()
	fx := ct.New(t)
	c := &Component{}
	if err := c.Init(fx.Deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c.Routes(), fx
}

func enableUserTwoFactor(t *testing.T, fx *ct.Fixture) {
	t.Helper()
	fx.SetAdmin(t, setsvc.UseTwoFactorAuth, setsvc.TwoFactorEnabled)
	fx.SetAdmin(t, setsvc.EmailSending, "true")
	fx.SetAdmin(t, setsvc.UseEmailVerification, "true")
}

func TestUserSettings_ListFiltersDisabled(t *testing.T) {
	h, fx := newComponent(t)
	member := ct.SessionFor(fx.AddUser(t, "member1", "password1", 2, true))

	rec := ct.Do(t, h, http.MethodGet, "/", nil, member)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	if rows := ct.List(t, rec); len(rows) != 0 {
		t.Fatalf("2fa row must be hidden while the admin mode is disabled: %v", rows)
	}

	enableUserTwoFactor(t, fx)
	rows := ct.List(t, ct.Do(t, h, http.MethodGet, "/", nil, member))
	if len(rows) != 1 || rows[0]["settingId"] != setsvc.EnableUserTwoFactor || rows[0]["value"] != "false" {
		t.Fatalf("rows = %v", rows)
	}

	rec = ct.Do(t, h, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: %d", rec.Code)
	}
}

func TestUserSettings_Edit(t *testing.T) {
	ctx := context.Background()
	h, fx := newComponent(t)
	u := fx.AddUser(t, "member1", "password1", 2, true)
	member := ct.SessionFor(u)
	other := ct.SessionFor(fx.AddUser(t, "member2", "password2", 2, true))
	enableUserTwoFactor(t, fx)

	if _, err := fx.Deps.Settings.GetOrDefault(ctx, u.ID, setsvc.EnableUserTwoFactor); err != nil {
		t.Fatalf("GetOrDefault: %v", err)
	}
	row, err := fx.Settings.UserSetting(ctx, u.ID, setsvc.EnableUserTwoFactor)
	if err != nil {
		t.Fatalf("UserSetting: %v", err)
	}

	cases := []struct {
		name string
		body map[string]any
		sess bool
		code int
		flag string
	}{
		{"bad row id", map[string]any{"id": setsvc.UserSettingsFormID, "settingRowId": "abc"}, true, http.StatusBadRequest, "mongoIdNotValid"},
		{"unknown row", map[string]any{"id": setsvc.UserSettingsFormID, "settingRowId": 999, setsvc.EnableUserTwoFactor: true}, true, http.StatusNotFound, "settingNotFoundError"},
		{"value missing", map[string]any{"id": setsvc.UserSettingsFormID, "settingRowId": row.ID}, true, http.StatusBadRequest, "settingValueNotFoundError"},
		{"other user", map[string]any{"id": setsvc.UserSettingsFormID, "mongoId": row.ID, setsvc.EnableUserTwoFactor: true}, false, http.StatusNotFound, "settingNotFoundError"},
	}
	for _, c := range cases {
		s := member
		if !c.sess {
			s = other
		}
		rec := ct.Do(t, h, http.MethodPut, "/", c.body, s)
		if rec.Code != c.code || ct.Body(t, rec)[c.flag] != true {
			t.Errorf("%s: %d %s", c.name, rec.Code, rec.Body)
		}
	}

	rec := ct.Do(t, h, http.MethodPut, "/", map[string]any{
		"id": setsvc.UserSettingsFormID, "settingRowId": row.ID, setsvc.EnableUserTwoFactor: true,
	}, member)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: %d %s", rec.Code, rec.Body)
	}
	if _, ok := ct.Body(t, rec)["_routeAccess"]; !ok {
		t.Fatalf("edit must answer public settings: %s", rec.Body)
	}
	v, err := fx.Deps.Settings.Setting(ctx, member, setsvc.EnableUserTwoFactor, false, false)
	if err != nil || v != true {
		t.Fatalf("setting after edit = %v, %v", v, err)
	}

	fx.SetAdmin(t, setsvc.UseTwoFactorAuth, setsvc.TwoFactorEnabledAlways)
	rec = ct.Do(t, h, http.MethodPut, "/", map[string]any{
		"id": setsvc.UserSettingsFormID, "settingRowId": row.ID, setsvc.EnableUserTwoFactor: false,
	}, member)
	if rec.Code != http.StatusUnauthorized || ct.Body(t, rec)["unauthorised"] != true {
		t.Fatalf("edit of disabled setting: %d %s", rec.Code, rec.Body)
	}
}

func TestAdminSettings_PasswordRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, fx := newComponent(t)
	admin := fx.AddUser(t, "admin1", "password1", 9, true)
	sess := ct.SessionFor(admin)

	row, err := fx.Settings.AdminSetting(ctx, setsvc.EmailPassword)
	if err != nil {
		t.Fatalf("AdminSetting: %v", err)
	}
	rec := ct.Do(t, h, http.MethodPut, "/admin", map[string]any{
		"id": setsvc.AdminSettingsFormID, "settingRowId": row.ID, setsvc.EmailPassword: "smtp-pass",
	}, sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: %d %s", rec.Code, rec.Body)
	}

	row, _ = fx.Settings.AdminSetting(ctx, setsvc.EmailPassword)
	if row.Value == "smtp-pass" || row.Value == "" {
		t.Fatalf("password stored in clear: %q", row.Value)
	}
	if plain, err := fx.Deps.Crypter.Decrypt(row.Value); err != nil || plain != "smtp-pass" {
		t.Fatalf("Decrypt = %q, %v", plain, err)
	}
	if len(row.Edited) != 1 || row.Edited[0].By != admin.ID {
		t.Fatalf("edited = %+v", row.Edited)
	}

	rows := ct.List(t, ct.Do(t, h, http.MethodGet, "/admin", nil, sess))
	found := false
	for _, r := range rows {
		if r["settingId"] == setsvc.EmailPassword {
			found = true
			if r["value"] != "smtp-pass" {
				t.Fatalf("listed password = %v", r["value"])
			}
		}
	}
	if !found {
		t.Fatalf("email-password missing from %v", rows)
	}
}

func TestAdminSettings_EditReloadsCache(t *testing.T) {
	ctx := context.Background()
	h, fx := newComponent(t)
	sess := ct.SessionFor(fx.AddUser(t, "admin1", "password1", 9, true))
	member := ct.SessionFor(fx.AddUser(t, "member1", "password1", 2, true))

	row, _ := fx.Settings.AdminSetting(ctx, setsvc.MaxLoginAttempts)
	body := map[string]any{"id": setsvc.AdminSettingsFormID, "settingRowId": row.ID, setsvc.MaxLoginAttempts: 3}

	if rec := ct.Do(t, h, http.MethodPut, "/admin", body, member); rec.Code != http.StatusUnauthorized {
		t.Fatalf("member edit: %d", rec.Code)
	}
	if rec := ct.Do(t, h, http.MethodPut, "/admin", body, sess); rec.Code != http.StatusOK {
		t.Fatalf("admin edit: %d %s", rec.Code, rec.Body)
	}
	v, err := fx.Deps.Settings.Admin(ctx, setsvc.MaxLoginAttempts)
	if err != nil || v != 3 {
		t.Fatalf("cached value = %v, %v", v, err)
	}
}

func TestAPIs(t *testing.T) {
	h, fx := newComponent(t)
	admin := ct.SessionFor(fx.AddUser(t, "admin1", "password1", 9, true))
	member := ct.SessionFor(fx.AddUser(t, "member1", "password1", 2, true))

	rec := ct.Do(t, h, http.MethodGet, "/apis?search=LOGIN&sortBy=formId&sortOr=desc&itemsPerPage=3", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("apis: %d %s", rec.Code, rec.Body)
	}
	body := ct.Body(t, rec)
	total, _ := body["totalCount"].(float64)
	list, _ := body["result"].([]any)
	if total < 3 || len(list) != 3 {
		t.Fatalf("total %v, page %d", total, len(list))
	}
	prev := "~"
	for _, item := range list {
		f := item.(map[string]any)
		id := fmt.Sprint(f["formId"])
		hay := strings.ToLower(id + fmt.Sprint(f["path"]) + fmt.Sprint(f["method"]))
		if !strings.Contains(hay, "login") {
			t.Errorf("%s does not match the search", id)
		}
		if id > prev {
			t.Errorf("not sorted descending: %s after %s", id, prev)
		}
		prev = id
	}

	body = ct.Body(t, ct.Do(t, h, http.MethodGet, "/apis", nil, member))
	if body["totalCount"] != float64(0) {
		t.Fatalf("member sees editable forms: %v", body["totalCount"])
	}
	if rec := ct.Do(t, h, http.MethodGet, "/apis", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous apis: %d", rec.Code)
	}
}
