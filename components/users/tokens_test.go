package users

import (
	"net/http"
	"testing"
	"time"

	"github.com/yanizio/beacon/internal/auth"
	ct "github.com/yanizio/beacon/internal/component/componenttest"
	"github.com/yanizio/beacon/internal/settings"
)

func countMail(fx *ct.Fixture, id string) int {
	n := 0
	for _, m := range fx.Mail.Sent() {
		if m.ID == id {
			n++
		}
	}
	return n
}

func TestNewPassFlow(t *testing.T) {
	h, fx, clk := newComponent(t)
	u := fx.AddUser(t, "member1", "password1", 2, true)
	request := map[string]any{"id": NewPassRequestID, "email": "member1@example.org"}

	rec := ct.Do(t, h, http.MethodPost, "/newpassrequest", request, nil)
	if rec.Code != http.StatusOK || ct.Body(t, rec)["tryingToSend"] != true {
		t.Fatalf("request: %d %s", rec.Code, rec.Body)
	}
	mail, ok := fx.Mail.Last("new-pass-link-email")
	if !ok || mail.Params["newPassWTokenUrl"] != fx.Deps.ClientBaseURL+"/u/newpass/"+auth.TestSecret || mail.Params["linkLife"] != "30" {
		t.Fatalf("link mail = %+v", mail)
	}

	ct.Do(t, h, http.MethodPost, "/newpassrequest", request, nil)
	unknown := map[string]any{"id": NewPassRequestID, "email": "nobody@example.org"}
	if rec := ct.Do(t, h, http.MethodPost, "/newpassrequest", unknown, nil); ct.Body(t, rec)["tryingToSend"] != true {
		t.Fatalf("unknown address must get the same answer: %s", rec.Body)
	}
	if n := countMail(fx, "new-pass-link-email"); n != 1 {
		t.Fatalf("link mails = %d", n)
	}

	newPass := func(token string) map[string]any {
		return map[string]any{"id": NewPassFormID, "token": token, "password": "newpass1", "password-again": "newpass1"}
	}
	if rec := ct.Do(t, h, http.MethodPost, "/newpass", newPass("bogus"), nil); rec.Code != http.StatusUnauthorized ||
		ct.Body(t, rec)["tokenError"] != true {
		t.Fatalf("bad token: %d %s", rec.Code, rec.Body)
	}
	rec = ct.Do(t, h, http.MethodPost, "/newpass", newPass(auth.TestSecret), nil)
	if rec.Code != http.StatusOK || ct.Body(t, rec)["passwordUpdated"] != true {
		t.Fatalf("new pass: %d %s", rec.Code, rec.Body)
	}
	stored := fx.User(t, u.ID)
	if !auth.CheckPassword(stored.PasswordHash, "newpass1") || stored.Security.NewPassLink != nil {
		t.Fatalf("stored = %+v", stored.Security)
	}
	if rec := ct.Do(t, h, http.MethodPost, "/newpass", newPass(auth.TestSecret), nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token reuse: %d", rec.Code)
	}

	clk.now = clk.now.Add(11 * time.Minute)
	ct.Do(t, h, http.MethodPost, "/newpassrequest", request, nil)
	clk.now = clk.now.Add(31 * time.Minute)
	if rec := ct.Do(t, h, http.MethodPost, "/newpass", newPass(auth.TestSecret), nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", rec.Code)
	}
}

func TestNewPass_FeatureOff(t *testing.T) {
	h, fx, _ := newComponent(t)
	fx.AddUser(t, "member1", "password1", 2, true)
	fx.SetAdmin(t, settings.ForgotPasswordFeature, "false")

	rec := ct.Do(t, h, http.MethodPost, "/newpassrequest", map[string]any{"id": NewPassRequestID, "email": "member1@example.org"}, nil)
	if ct.Body(t, rec)["tryingToSend"] != true || countMail(fx, "new-pass-link-email") != 0 {
		t.Fatalf("request while off: %s", rec.Body)
	}
	rec = ct.Do(t, h, http.MethodPost, "/newpass", map[string]any{"id": NewPassFormID, "token": "x", "password": "newpass1"}, nil)
	if rec.Code != http.StatusNotFound || ct.Body(t, rec)["error"] != "unknown endpoint" {
		t.Fatalf("new pass while off: %d %s", rec.Code, rec.Body)
	}
}

func TestNewVerification(t *testing.T) {
	h, fx, _ := newComponent(t)
	unverified := ct.SessionFor(fx.AddUser(t, "member1", "password1", 2, false))
	verified := ct.SessionFor(fx.AddUser(t, "member2", "password1", 2, true))
	body := map[string]any{"id": NewVerifyFormID}

	if rec := ct.Do(t, h, http.MethodPost, "/newemailverification", body, unverified); rec.Code != http.StatusUnauthorized {
		t.Fatalf("verification off: %d", rec.Code)
	}

	fx.SetAdmin(t, settings.UseEmailVerification, "true")
	rec := ct.Do(t, h, http.MethodPost, "/newemailverification", body, unverified)
	if rec.Code != http.StatusOK || ct.Body(t, rec)["newVerificationSent"] != true {
		t.Fatalf("resend: %d %s", rec.Code, rec.Body)
	}
	if mail, ok := fx.Mail.Last("verify-account-email"); !ok || mail.Params["username"] != "member1" {
		t.Fatalf("verification mail = %+v", mail)
	}
	if rec := ct.Do(t, h, http.MethodPost, "/newemailverification", body, verified); rec.Code != http.StatusUnauthorized {
		t.Fatalf("already verified: %d", rec.Code)
	}
}
