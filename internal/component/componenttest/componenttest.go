// internal/component/componenttest/componenttest.go
//
// Test fixture for component packages.
//
// Context
//   Every component test needs the same world: the preset catalogue seeded
//   into in-memory stores, a settings service and form engine on top of
//   them, and a way to call a handler as a given session.  New builds that
//   world.  Requests skip the cookie and CSRF layers; the session and the
//   decoded body are put straight into the request context.
//
//------------------------------------------------------------------------------

package componenttest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/exposure"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/history"
	"github.com/yanizio/beacon/internal/message"
	"github.com/yanizio/beacon/internal/preset"
	"github.com/yanizio/beacon/internal/session"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

// Secret keys the fixture Crypter.
const Secret = "componenttest-session-secret"

// Sent is one queued mail.
type Sent struct {
	ID     string
	Params map[string]string
}

// Mailer records SendByID calls.
type Mailer struct {
	mu   sync.Mutex
	sent []Sent
}

func (m *Mailer) SendByID(_ context.Context, id string, params map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{ID: id, Params: params})
	return nil
}

// Sent returns the calls so far.
func (m *Mailer) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Last returns the most recent call with id, if any.
func (m *Mailer) Last(id string) (Sent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].ID == id {
			return m.sent[i], true
		}
	}
	return Sent{}, false
}

// Fixture is a seeded in-memory world.
type Fixture struct {
	Deps     component.Deps
	Forms    *form.MemStore
	Settings *settings.MemStore
	Users    *user.MemStore
	Mail     *Mailer
}

// New seeds the preset catalogue and wires every service.
func New(t *testing.T) *Fixture {
	t.Helper()
	ctx := context.Background()

	cat, err := preset.Load()
	if err != nil {
		t.Fatalf("preset.Load: %v", err)
	}
	f := &Fixture{
		Forms:    form.NewMemStore(),
		Settings: settings.NewMemStore(),
		Users:    user.NewMemStore(),
		Mail:     &Mailer{},
	}
	if _, err := preset.NewSeeder(cat, f.Forms, f.Settings, message.NewMemStore()).Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	svc := settings.NewService(f.Settings, f.Forms, 0)
	f.Deps = component.Deps{
		Env:           "test",
		ClientBaseURL: "http://localhost:8080/beacon",
		Engine:        form.NewEngine(f.Forms, svc),
		Forms:         f.Forms,
		Settings:      svc,
		SettingsStore: f.Settings,
		Crypter:       settings.NewCrypter(Secret),
		Users:         f.Users,
		Exposure:      exposure.NewResolver(f.Forms, svc),
		Mail:          f.Mail,
		Tokens:        auth.Tokens{Deterministic: true},
	}
	return f
}

// SetAdmin overwrites one admin setting and reloads the cache.
func (f *Fixture) SetAdmin(t *testing.T, id, value string) {
	t.Helper()
	ctx := context.Background()
	row, err := f.Settings.AdminSetting(ctx, id)
	if err != nil {
		t.Fatalf("AdminSetting %s: %v", id, err)
	}
	row.Value = value
	if err := f.Settings.UpdateAdmin(ctx, row); err != nil {
		t.Fatalf("UpdateAdmin %s: %v", id, err)
	}
	if err := f.Deps.Settings.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
}

// AddUser stores an account with a real bcrypt hash.
func (f *Fixture) AddUser(t *testing.T, username, password string, level int, verified bool) *user.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.org",
		Name:         username,
		UserLevel:    level,
		PasswordHash: hash,
		Created:      history.Created{Date: time.Now().UTC()},
	}
	u.Security.VerifyEmail.Verified = verified
	if err := f.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("Create %s: %v", username, err)
	}
	return u
}

// User reloads an account.
func (f *Fixture) User(t *testing.T, id string) *user.User {
	t.Helper()
	u, err := f.Users.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID %s: %v", id, err)
	}
	return u
}

// SessionFor returns a logged-in session for u.
func SessionFor(u *user.User) *session.Session {
	s := &session.Session{ID: "sess-" + u.Username, BrowserID: "browser-" + u.Username}
	s.Login(u.ID, u.Username, u.UserLevel, u.Verified())
	return s
}

// Anonymous returns a fresh anonymous session.
func Anonymous() *session.Session {
	return &session.Session{ID: "sess-anon", BrowserID: "browser-anon"}
}

// Do serves one request through h as sess.  body may be nil.
func Do(t *testing.T, h http.Handler, method, path string, body map[string]any, sess *session.Session) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	p := form.Payload{}
	if body != nil {
		if p, _ = form.DecodePayload(bytes.NewReader(raw)); p == nil {
			p = form.Payload{}
		}
	}
	ctx := form.WithPayload(req.Context(), p)
	if sess == nil {
		sess = Anonymous()
	}
	ctx = session.WithSession(ctx, sess)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

// Body decodes a JSON object answer.
func Body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

// List decodes a JSON array answer.
func List(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var l []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &l); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return l
}
