// internal/form/engine_test.go
//
// Unit-tests for the request gate against an in-memory store.
//
// Run: go test ./internal/form -v

package form

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/session"
)

type toggles map[string]any

func (t toggles) Bool(id string) bool { b, _ := t[id].(bool); return b }
func (t toggles) Int(id string) int   { n, _ := t[id].(int); return n }

type staticSettings struct {
	t   toggles
	err error
}

func (s staticSettings) Toggles(context.Context, *session.Session) (acl.Toggles, error) {
	return s.t, s.err
}

var (
	anon     = &session.Session{}
	member   = &session.Session{UserID: "u-1", Username: "myUsername", UserLevel: 2, LoggedIn: true, Verified: true}
	admin    = &session.Session{UserID: "u-9", Username: "Admin", UserLevel: 9, LoggedIn: true, Verified: true}
	settings = staticSettings{t: toggles{"use-email-verification": true, "user-level-required-to-register": 8}}
)

func fixtureStore(t *testing.T) *MemStore {
	t.Helper()
	m := NewMemStore()
	forms := []Form{
		{
			FormID: "change-password-form", Type: TypeForm, UseRightsLevel: 1, EditorRightsLevel: 8,
			Schema: &Schema{
				SubmitFields: []string{"curPassword", "password"},
				Fieldsets: []Fieldset{{ID: "pw", Fields: []Field{
					{ID: "curPassword", Type: FieldTextInput, Required: true, Password: true, MaxLength: 50},
					{ID: "password", Type: FieldTextInput, Required: true, Password: true, MinLength: 6, MaxLength: 50},
				}}},
			},
		},
		{
			FormID: "new-user-form", Type: TypeForm, Kind: acl.KindRegistration, EditorRightsLevel: 8,
			Schema: &Schema{
				SubmitFields: []string{"username", "name", "email", "password"},
				Fieldsets: []Fieldset{{ID: "new", Fields: []Field{
					{ID: "username", Type: FieldTextInput, Required: true, MinLength: 5, MaxLength: 24},
					{ID: "name", Type: FieldTextInput, MaxLength: 40},
					{ID: "email", Type: FieldTextInput, Required: true, Email: true, MaxLength: 50},
					{ID: "password", Type: FieldTextInput, Required: true, MinLength: 6, MaxLength: 50},
				}}},
			},
		},
		{FormID: "beacon-main-login", Type: TypeForm, Kind: acl.KindAuthFlow, EditorRightsLevel: 8,
			Schema: &Schema{SubmitFields: []string{"username", "password"}}},
		{FormID: "read-users", Type: TypeReadAPI, UseRightsLevel: 8, EditorRightsLevel: 9},
		{FormID: "single", Type: TypeForm, UseRightsLevel: 1,
			Schema: &Schema{SingleEdit: true, SubmitFields: []string{"a", "b"}}},
	}
	for i := range forms {
		if _, err := m.Ensure(context.Background(), &forms[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return m
}

func TestGetAndValidateForm_NotFound(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	res := e.GetAndValidateForm(context.Background(), "nope", http.MethodGet, Request{Session: member, Payload: Payload{}})
	if res == nil || res.Code != http.StatusNotFound || res.Obj["formNotFoundError"] != true || res.Obj["loggedIn"] != true {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestGetAndValidateForm_Privileges(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	ctx := context.Background()

	if res := e.GetAndValidateForm(ctx, "beacon-main-login", http.MethodGet, Request{Session: anon}); res != nil {
		t.Fatalf("anonymous should reach login: %#v", res)
	}
	res := e.GetAndValidateForm(ctx, "beacon-main-login", http.MethodGet, Request{Session: member})
	if res == nil || res.Obj["unauthorised"] != true {
		t.Fatalf("logged-in user should be refused the login flow: %#v", res)
	}
	res = e.GetAndValidateForm(ctx, "read-users", http.MethodGet, Request{Session: anon})
	if res == nil || res.Code != http.StatusUnauthorized || res.Obj["_sess"] != false {
		t.Fatalf("anonymous read-users: %#v", res)
	}
	res = e.GetAndValidateForm(ctx, "read-users", http.MethodGet, Request{Session: member})
	if res == nil || res.Obj["msg"] != "Unauthorised" {
		t.Fatalf("member read-users: %#v", res)
	}
	if res := e.GetAndValidateForm(ctx, "read-users", http.MethodGet, Request{Session: admin}); res != nil {
		t.Fatalf("admin read-users: %#v", res)
	}
	if res := e.GetAndValidateForm(ctx, "read-users", http.MethodDelete, Request{Session: anon}); res != nil {
		t.Fatalf("unchecked method should pass: %#v", res)
	}
}

func TestGetAndValidateForm_FieldErrors(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	res := e.GetAndValidateForm(context.Background(), "change-password-form", http.MethodPost, Request{
		Session: member,
		Payload: Payload{"id": "change-password-form", "password": "1", "curPassword": "myPassword"},
	})
	if res == nil || res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", res)
	}
	errs, _ := res.Obj["errors"].(map[string]string)
	if len(errs) != 1 || errs["password"] != "Value is too short (minimum: 6 chars)" {
		t.Fatalf("unexpected errors: %#v", errs)
	}
}

func TestGetAndValidateForm_Keys(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	ctx := context.Background()
	base := Payload{"username": "newUser", "password": "secret123", "email": "new@user.fi"}

	res := e.GetAndValidateForm(ctx, "new-user-form", http.MethodPost, Request{Session: anon,
		Payload: Payload{"username": "newUser", "password": "secret123"}})
	if res == nil || res.Obj["msg"] != "Bad request. Payload missing or incomplete." {
		t.Fatalf("incomplete payload: %#v", res)
	}

	full := Payload{"name": ""}
	for k, v := range base {
		full[k] = v
	}
	if res := e.GetAndValidateForm(ctx, "new-user-form", http.MethodPost, Request{Session: anon, Payload: full}); res != nil {
		t.Fatalf("complete payload: %#v", res)
	}

	full["id"] = "new-user-form"
	full["_csrf"] = "token"
	if res := e.GetAndValidateForm(ctx, "new-user-form", http.MethodPost, Request{Session: anon, Payload: full}); res != nil {
		t.Fatalf("extra keys should be tolerated: %#v", res)
	}
}

func TestGetAndValidateForm_SingleEdit(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	res := e.GetAndValidateForm(context.Background(), "single", http.MethodPut, Request{Session: member, Payload: Payload{"a": "x"}})
	if res != nil {
		t.Fatalf("singleEdit should skip the key check: %#v", res)
	}
}

func TestValidateFormData_NoSchema(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	res := e.ValidateFormData(context.Background(), &Form{FormID: "x"}, Request{Session: member, Payload: Payload{"id": "x"}})
	if res == nil || res.Code != http.StatusNotFound || res.Obj["msg"] != "Could not find form (x)." {
		t.Fatalf("unexpected: %#v", res)
	}
}

func TestGetAndValidateForm_SettingsError(t *testing.T) {
	e := NewEngine(fixtureStore(t), staticSettings{err: errors.New("db down")})
	res := e.GetAndValidateForm(context.Background(), "read-users", http.MethodGet, Request{Session: admin})
	if res == nil || res.Code != http.StatusInternalServerError || res.Obj["internalError"] != true {
		t.Fatalf("unexpected: %#v", res)
	}
}

func TestValidateKeys(t *testing.T) {
	s := &Schema{SubmitFields: []string{"a"}}
	if ValidateKeys(s, []string{"a"}) {
		t.Errorf("a single key is never enough")
	}
	if !ValidateKeys(s, []string{"a", "b"}) {
		t.Errorf("submit field present should pass")
	}
	if ValidateKeys(s, []string{"b", "c"}) {
		t.Errorf("missing submit field should fail")
	}
	if ValidateField(s, "id", "") != "" || ValidateField(nil, "a", "") != "" || ValidateField(s, "zzz", "") != "" {
		t.Errorf("id, nil schema, and unknown keys are accepted")
	}
}

func TestGate_Middleware(t *testing.T) {
	e := NewEngine(fixtureStore(t), settings)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := ParseBody(e.Gate("change-password-form")(next))

	req := httptest.NewRequest(http.MethodPost, "/api/users/own/changepass",
		strings.NewReader(`{"curPassword":"old-password","password":"new-password"}`))
	req = req.WithContext(session.WithSession(req.Context(), member))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("valid payload: got %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/users/own/changepass", strings.NewReader(`{"curPassword":`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: got %d", rr.Code)
	}
}
