// internal/acl/access_test.go
//
// Unit-tests for CheckAccess, CanEdit, and the middleware helpers.
//
// The session fixtures mirror the four canonical cases: an unverified level-2
// user, a verified level-2 user, a superadmin, and an anonymous browser.

package acl

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yanizio/beacon/internal/session"
)

// toggles is a map-backed Toggles.
type toggles map[string]any

func (t toggles) Bool(id string) bool { b, _ := t[id].(bool); return b }
func (t toggles) Int(id string) int   { n, _ := t[id].(int); return n }

var (
	unverified = &session.Session{UserID: "u-1", Username: "myUsername", UserLevel: 2, LoggedIn: true}
	verified   = &session.Session{UserID: "u-1", Username: "myUsername", UserLevel: 2, LoggedIn: true, Verified: true}
	superAdmin = &session.Session{UserID: "u-9", Username: "Admin", UserLevel: 9, LoggedIn: true, Verified: true}
	anonymous  = &session.Session{}
)

func TestCheckAccess_Matrix(t *testing.T) {
	st := toggles{
		"public-user-registration":        true,
		"user-level-required-to-register": 8,
		"use-email-verification":          true,
	}
	login := Rights{Kind: KindAuthFlow}
	readProfile := Rights{UseLevel: 1}
	deleteUsers := Rights{UseLevel: 8}
	userSettings := Rights{UseLevel: 2}

	cases := []struct {
		name string
		s    *session.Session
		r    Rights
		want bool
	}{
		{"unverified login", unverified, login, false},
		{"unverified read-profile", unverified, readProfile, true},
		{"unverified delete-users", unverified, deleteUsers, false},
		{"verified login", verified, login, false},
		{"verified read-profile", verified, readProfile, true},
		{"verified delete-users", verified, deleteUsers, false},
		{"admin login", superAdmin, login, false},
		{"admin read-profile", superAdmin, readProfile, true},
		{"admin delete-users", superAdmin, deleteUsers, true},
		{"anon login", anonymous, login, true},
		{"anon read-profile", anonymous, readProfile, false},
		{"anon delete-users", anonymous, deleteUsers, false},
		{"unverified user-settings", unverified, userSettings, false},
		{"verified user-settings", verified, userSettings, true},
	}
	for _, tc := range cases {
		if got := CheckAccess(tc.s, tc.r, st); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheckAccess_Grants(t *testing.T) {
	st := toggles{}
	low := &session.Session{UserID: "u-5", UserLevel: 1, LoggedIn: true, Groups: []string{"staff"}}

	if !CheckAccess(low, Rights{UseLevel: 8, UseUsers: []string{"u-5"}}, st) {
		t.Errorf("listed user should pass")
	}
	if !CheckAccess(low, Rights{UseLevel: 8, UseGroups: []string{"staff"}}, st) {
		t.Errorf("listed group should pass")
	}
	if CheckAccess(low, Rights{UseLevel: 8, UseGroups: []string{"admins"}}, st) {
		t.Errorf("unlisted group should fail")
	}
	if CheckAccess(anonymous, Rights{UseLevel: 1, UseUsers: []string{""}}, st) {
		t.Errorf("anonymous must never match an empty user grant")
	}
}

func TestCheckAccess_Registration(t *testing.T) {
	st := toggles{"user-level-required-to-register": 8}
	reg := Rights{Kind: KindRegistration}

	if !CheckAccess(anonymous, reg, st) {
		t.Errorf("anonymous registration should pass the checker")
	}
	if CheckAccess(verified, reg, st) {
		t.Errorf("level 2 below register level 8 should fail")
	}
	if !CheckAccess(superAdmin, reg, st) {
		t.Errorf("superadmin should be able to register users")
	}
}

func TestCheckAccess_Monotonic(t *testing.T) {
	st := toggles{"use-email-verification": true, "user-level-required-to-register": 3}
	kinds := []Kind{KindGeneric, KindRegistration}
	for _, k := range kinds {
		for need := 0; need <= 9; need++ {
			r := Rights{Kind: k, UseLevel: need}
			for lo := 0; lo < 9; lo++ {
				for _, ver := range []bool{false, true} {
					s1 := &session.Session{UserID: "x", UserLevel: lo, LoggedIn: true, Verified: ver}
					s2 := &session.Session{UserID: "x", UserLevel: lo + 1, LoggedIn: true, Verified: ver}
					if CheckAccess(s1, r, st) && !CheckAccess(s2, r, st) {
						t.Fatalf("kind %s level %d: %d passes but %d fails", k, need, lo, lo+1)
					}
				}
			}
		}
	}
}

func TestCanEdit(t *testing.T) {
	off := toggles{}
	r := Rights{EditorLevel: 8, EditorUsers: []string{"u-1"}}
	if !CanEdit(verified, r, off) {
		t.Errorf("editor user grant should pass")
	}
	if CanEdit(anonymous, Rights{}, off) {
		t.Errorf("anonymous can never edit")
	}
	if !CanEdit(superAdmin, r, off) {
		t.Errorf("level 9 should edit a level 8 form")
	}
}

func TestCanEdit_UnverifiedCapped(t *testing.T) {
	on := toggles{SettingEmailVerification: true}
	admin := &session.Session{UserID: "u-8", UserLevel: 9, LoggedIn: true}
	r := Rights{EditorLevel: 8}

	if CanEdit(admin, r, on) {
		t.Fatalf("unverified admin edits while verification is on")
	}
	if !CanEdit(admin, r, toggles{}) {
		t.Fatalf("unverified admin blocked while verification is off")
	}
	if !CanEdit(superAdmin, r, on) {
		t.Fatalf("verified admin blocked")
	}
}

func TestRequireLogin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireLogin(next)

	for _, tc := range []struct {
		s    *session.Session
		want int
	}{
		{anonymous, http.StatusUnauthorized},
		{unverified, http.StatusOK},
		{superAdmin, http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req = req.WithContext(session.WithSession(req.Context(), tc.s))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("level %d: got %d, want %d", tc.s.UserLevel, rr.Code, tc.want)
		}
	}
}
