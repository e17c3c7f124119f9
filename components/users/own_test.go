package users

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/yanizio/beacon/internal/auth"
	ct "github.com/yanizio/beacon/internal/component/componenttest"
	"github.com/yanizio/beacon/internal/exposure"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

func TestReadProfile(t *testing.T) {
	h, fx, _ := newComponent(t)
	u := fx.AddUser(t, "member1", "password1", 2, true)

	rec := ct.Do(t, h, http.MethodGet, "/own/profile", nil, ct.SessionFor(u))
	got := ct.Body(t, rec)
	levels, _ := got["exposure"].(map[string]any)
	if rec.Code != http.StatusOK || got["email"] != "member1@example.org" || levels["name"] != float64(2) {
		t.Fatalf("profile: %d %v", rec.Code, got)
	}
	if rec := ct.Do(t, h, http.MethodGet, "/own/profile", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous profile: %d", rec.Code)
	}
}

func TestEditProfile(t *testing.T) {
	h, fx, _ := newComponent(t)
	u := fx.AddUser(t, "member1", "password1", 2, true)
	sess := ct.SessionFor(u)
	body := func(email, pw string) map[string]any {
		return map[string]any{"id": EditProfileFormID, "name": "New Name", "email": email, "curPassword": pw}
	}

	rec := ct.Do(t, h, http.MethodPut, "/own/profile", body("member1@example.org", "wrong1"), sess)
	got := ct.Body(t, rec)
	errs, _ := got["errors"].(map[string]any)
	if rec.Code != http.StatusUnauthorized || got["noRedirect"] != true || errs["curPassword"] != "wrong_password" {
		t.Fatalf("wrong password: %d %v", rec.Code, got)
	}

	if rec := ct.Do(t, h, http.MethodPut, "/own/profile", body("member1@example.org", "password1"), sess); rec.Code != http.StatusOK {
		t.Fatalf("edit: %d %s", rec.Code, rec.Body)
	}
	if stored := fx.User(t, u.ID); stored.Name != "New Name" || !stored.Verified() {
		t.Fatalf("stored = %+v", stored)
	}

	fx.SetAdmin(t, settings.EmailSending, "true")
	fx.SetAdmin(t, settings.UseEmailVerification, "true")
	if rec := ct.Do(t, h, http.MethodPut, "/own/profile", body("moved@example.org", "password1"), sess); rec.Code != http.StatusOK {
		t.Fatalf("email change: %d %s", rec.Code, rec.Body)
	}
	stored := fx.User(t, u.ID)
	if stored.Email != "moved@example.org" || stored.Verified() || stored.Security.VerifyEmail.OldEmail != "member1@example.org" {
		t.Fatalf("verification state = %+v", stored.Security.VerifyEmail)
	}
	if stored.ContactEmail() != "member1@example.org" || sess.Verified {
		t.Fatalf("contact %q, session verified %v", stored.ContactEmail(), sess.Verified)
	}
	mail, ok := fx.Mail.Last("verify-account-email")
	if !ok || mail.Params["to"] != "moved@example.org" {
		t.Fatalf("verification mail = %+v", mail)
	}
}

func TestExposure(t *testing.T) {
	h, fx, _ := newComponent(t)
	admin := ct.SessionFor(fx.AddUser(t, "admin1", "password1", 9, true))
	member := fx.AddUser(t, "member1", "password1", 2, true)
	other := fx.AddUser(t, "member2", "password1", 2, true)
	sess := ct.SessionFor(member)

	own := map[string]any{"id": exposure.FormID, "username": 1, "email": 0, "curPassword": "password1"}
	if rec := ct.Do(t, h, http.MethodPut, "/user/exposure", own, sess); rec.Code != http.StatusOK {
		t.Fatalf("own exposure: %d %s", rec.Code, rec.Body)
	}
	if got := fx.User(t, member.ID).Exposure; got["username"] != 1 || got["email"] != 0 || len(got) != 2 {
		t.Fatalf("stored exposure = %v", got)
	}

	bad := map[string]any{"id": exposure.FormID, "username": 1, "curPassword": "wrong1"}
	if rec := ct.Do(t, h, http.MethodPut, "/user/exposure", bad, sess); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}
	none := map[string]any{"id": exposure.FormID, "curPassword": "password1"}
	if rec := ct.Do(t, h, http.MethodPut, "/user/exposure", none, sess); rec.Code != http.StatusBadRequest ||
		ct.Body(t, rec)["noFieldsFound"] != true {
		t.Fatalf("no fields: %d %s", rec.Code, rec.Body)
	}

	foreign := map[string]any{"id": exposure.FormID, "userId": other.ID, "name": 0}
	if rec := ct.Do(t, h, http.MethodPut, "/user/exposure", foreign, sess); rec.Code != http.StatusUnauthorized {
		t.Fatalf("member editing another: %d", rec.Code)
	}
	if rec := ct.Do(t, h, http.MethodPut, "/user/exposure", foreign, admin); rec.Code != http.StatusOK {
		t.Fatalf("admin editing another: %d %s", rec.Code, rec.Body)
	}
	if got := fx.User(t, other.ID).Exposure; got["name"] != 0 {
		t.Fatalf("other exposure = %v", got)
	}

	fx.SetAdmin(t, settings.UsersCanSetExposure, "false")
	if rec := ct.Do(t, h, http.MethodPut, "/user/exposure", own, sess); rec.Code != http.StatusUnauthorized {
		t.Fatalf("own exposure while disabled: %d", rec.Code)
	}
}

func TestDeleteOwn(t *testing.T) {
	ctx := context.Background()
	h, fx, _ := newComponent(t)
	member := fx.AddUser(t, "member1", "password1", 2, true)
	sess := ct.SessionFor(member)
	super := ct.SessionFor(fx.AddUser(t, "admin1", "password1", 9, true))

	body := func(pw string) map[string]any { return map[string]any{"id": DeleteProfileFormID, "password": pw} }

	if rec := ct.Do(t, h, http.MethodPost, "/own/delete", body("wrong1"), sess); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}
	if rec := ct.Do(t, h, http.MethodPost, "/own/delete", body("password1"), super); rec.Code != http.StatusForbidden {
		t.Fatalf("superadmin self delete: %d", rec.Code)
	}

	rec := ct.Do(t, h, http.MethodPost, "/own/delete", body("password1"), sess)
	if rec.Code != http.StatusOK || ct.Body(t, rec)["userDeleted"] != true {
		t.Fatalf("self delete: %d %s", rec.Code, rec.Body)
	}
	if sess.IsLoggedIn() {
		t.Fatalf("session still logged in")
	}
	if _, err := fx.Users.FindByID(ctx, member.ID); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("account still there: %v", err)
	}
	if mail, ok := fx.Mail.Last("delete-own-account-email"); !ok || mail.Params["username"] != "member1" {
		t.Fatalf("goodbye mail = %+v", mail)
	}
}

func TestChangePass(t *testing.T) {
	h, fx, _ := newComponent(t)
	u := fx.AddUser(t, "member1", "password1", 2, true)
	sess := ct.SessionFor(u)
	body := func(cur string) map[string]any {
		return map[string]any{"id": ChangePassFormID, "curPassword": cur, "password": "newpass1", "password-again": "newpass1"}
	}

	if rec := ct.Do(t, h, http.MethodPost, "/own/changepass", body("wrong1"), sess); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}
	if rec := ct.Do(t, h, http.MethodPost, "/own/changepass", body("password1"), sess); rec.Code != http.StatusOK {
		t.Fatalf("change: %d %s", rec.Code, rec.Body)
	}
	if stored := fx.User(t, u.ID); !auth.CheckPassword(stored.PasswordHash, "newpass1") {
		t.Fatalf("password not changed")
	}
	if _, ok := fx.Mail.Last("password-changed-email"); !ok {
		t.Fatalf("no notice mail")
	}
}
