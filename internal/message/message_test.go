// internal/message/message_test.go
//
// Run: go test ./internal/message -v

package message

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/yanizio/beacon/internal/settings"
)

type adminStub settings.Values

func (a adminStub) AdminValues(context.Context) (settings.Values, error) { return settings.Values(a), nil }

type fakeSender struct {
	mu   sync.Mutex
	cfgs []SMTPConfig
	sent []Email
}

func (f *fakeSender) Send(_ context.Context, cfg SMTPConfig, msg Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs = append(f.cfgs, cfg)
	f.sent = append(f.sent, msg)
	return nil
}

func templates(t *testing.T) *MemStore {
	t.Helper()
	m := NewMemStore()
	_, err := m.Ensure(context.Background(), &Template{
		EmailID:  "new-user-email",
		FromName: "Beacon",
		DefaultEmail: Body{
			Subject: "Welcome $[username]",
			Text:    "Hi **$[username]**, open $[mainBeaconUrl]. $[unknown] stays.",
		},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return m
}

func TestFill(t *testing.T) {
	b := Fill(Body{Subject: "$[a] and $[a]", Text: "$[b] $[empty] $[a]"}, map[string]string{"a": "x", "b": "y"})
	if b.Subject != "x and x" || b.Text != "y $[empty] x" {
		t.Fatalf("Fill = %#v", b)
	}
	if got := Variables("$[one] $[two] $[one]"); len(got) != 2 || got[0] != "one" {
		t.Fatalf("Variables = %v", got)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("Hello **there**", "Beacon <Team>")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if !strings.Contains(html, "<strong>there</strong>") {
		t.Fatalf("markdown not rendered: %s", html)
	}
	if !strings.Contains(html, "Beacon &lt;Team&gt;") {
		t.Fatalf("sender name not escaped: %s", html)
	}
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSender{}
	admin := adminStub{settings.EmailSending: true, settings.EmailHost: "smtp.example.org",
		settings.EmailUsername: "mailer@example.org"}
	svc := NewService(templates(t), admin, fs, Options{
		ClientBaseURL: "http://localhost:80/beacon",
		SMTP:          SMTPConfig{Pass: "secret"},
	})

	if err := svc.Deliver(ctx, "new-user-email", map[string]string{"to": "a@user.fi", "username": "member"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("sent %d mails", len(fs.sent))
	}
	got := fs.sent[0]
	if got.Subject != "Welcome member" || !strings.Contains(got.Text, "http://localhost:80/beacon") ||
		!strings.Contains(got.Text, "$[unknown]") {
		t.Fatalf("unexpected mail: %#v", got)
	}
	if fs.cfgs[0].Host != "smtp.example.org" || fs.cfgs[0].From != "mailer@example.org" {
		t.Fatalf("smtp config not merged: %#v", fs.cfgs[0])
	}

	if err := svc.Deliver(ctx, "new-user-email", map[string]string{}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("missing to: %v", err)
	}
	if err := svc.Deliver(ctx, "nope", map[string]string{"to": "a@user.fi"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown template: %v", err)
	}
}

func TestDeliver_DisabledAndNoSMTP(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSender{}
	svc := NewService(templates(t), adminStub{settings.EmailSending: false}, fs, Options{})
	if err := svc.Deliver(ctx, "new-user-email", map[string]string{"to": "a@user.fi"}); err != nil || len(fs.sent) != 0 {
		t.Fatalf("disabled sending must be a silent no-op: %v", err)
	}

	svc = NewService(templates(t), adminStub{settings.EmailSending: true}, fs, Options{})
	if err := svc.Deliver(ctx, "new-user-email", map[string]string{"to": "a@user.fi"}); !errors.Is(err, ErrNoSMTP) {
		t.Fatalf("want ErrNoSMTP, got %v", err)
	}
}

func TestDeliver_EncryptedAdminPassword(t *testing.T) {
	c := settings.NewCrypter("session-secret")
	enc, err := c.Encrypt("smtp-pass")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	fs := &fakeSender{}
	admin := adminStub{settings.EmailSending: true, settings.EmailHost: "h", settings.EmailUsername: "u",
		settings.EmailPassword: enc}
	svc := NewService(templates(t), admin, fs, Options{Crypter: c})
	if err := svc.Deliver(context.Background(), "new-user-email", map[string]string{"to": "a@user.fi"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if fs.cfgs[0].Pass != "smtp-pass" {
		t.Fatalf("password not decrypted: %q", fs.cfgs[0].Pass)
	}
}

func TestQueue(t *testing.T) {
	fs := &fakeSender{}
	admin := adminStub{settings.EmailSending: true}
	svc := NewService(templates(t), admin, fs, Options{SMTP: SMTPConfig{Host: "h", User: "u", Pass: "p"}, Workers: 1})
	svc.Start(context.Background())
	svc.SendByID(context.Background(), "new-user-email", map[string]string{"to": "a@user.fi", "username": "q"})
	svc.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sent) != 1 || fs.sent[0].Subject != "Welcome q" {
		t.Fatalf("queued mail not delivered: %#v", fs.sent)
	}
}

func TestQueue_DrainsOnCancel(t *testing.T) {
	fs := &fakeSender{}
	admin := adminStub{settings.EmailSending: true}
	svc := NewService(templates(t), admin, fs, Options{SMTP: SMTPConfig{Host: "h", User: "u", Pass: "p"}, Workers: 2})

	const queued = 5
	for i := 0; i < queued; i++ {
		if err := svc.SendByID(context.Background(), "new-user-email", map[string]string{"to": "a@user.fi"}); err != nil {
			t.Fatalf("SendByID %d: %v", i, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	cancel()
	svc.Close()

	fs.mu.Lock()
	n := len(fs.sent)
	fs.mu.Unlock()
	if n != queued {
		t.Fatalf("delivered %d of %d queued mails", n, queued)
	}

	if err := svc.SendByID(context.Background(), "new-user-email", map[string]string{"to": "a@user.fi"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
	svc.Close()
}

func TestQueue_Full(t *testing.T) {
	svc := NewService(templates(t), adminStub{}, &fakeSender{}, Options{QueueSize: 1})
	if err := svc.SendByID(context.Background(), "new-user-email", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := svc.SendByID(context.Background(), "new-user-email", nil); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second send: %v", err)
	}
}

func TestBuildMIME(t *testing.T) {
	raw, err := buildMIME("from@x.fi", Email{To: []string{"a@x.fi"}, Subject: "Hei", Text: "plain", HTML: "<p>html</p>"})
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	s := string(raw)
	for _, want := range []string{"To: a@x.fi\r\n", "multipart/alternative; boundary=", "text/plain", "<p>html</p>"} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in\n%s", want, s)
		}
	}
}
