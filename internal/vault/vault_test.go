package vault

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		in     string
		want   Ref
		ok     bool
		badRef bool
	}{
		{"vault:secret/beacon/mysql#dsn", Ref{"secret", "beacon/mysql", "dsn"}, true, false},
		{"vault:kv/smtp#pass", Ref{"kv", "smtp", "pass"}, true, false},
		{"plain value", Ref{}, false, false},
		{"", Ref{}, false, false},
		{"vault:secret/beacon", Ref{}, true, true},
		{"vault:secret#dsn", Ref{}, true, true},
		{"vault:/beacon#dsn", Ref{}, true, true},
	}
	for _, c := range cases {
		got, ok, err := ParseRef(c.in)
		if ok != c.ok || errors.Is(err, ErrBadRef) != c.badRef || got != c.want {
			t.Errorf("ParseRef(%q) = %+v, %v, %v", c.in, got, ok, err)
		}
	}
	ref := Ref{"secret", "beacon/mysql", "dsn"}
	if back, _, _ := ParseRef(ref.String()); back != ref {
		t.Errorf("String does not parse back: %q", ref.String())
	}
}

func TestSecret_Cache(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newSecrets(nil)
	s.now = func() time.Time { return now }
	ref := Ref{"secret", "beacon/mysql", "dsn"}
	s.cache[ref] = entry{val: "cached-dsn", expires: now.Add(time.Minute)}

	got, err := s.Secret(context.Background(), ref)
	if err != nil || got != "cached-dsn" {
		t.Fatalf("Secret = %q, %v", got, err)
	}

	// Expired entries go back to Vault; without a client that fails.
	now = now.Add(2 * time.Minute)
	if _, err := s.Secret(context.Background(), ref); err == nil {
		t.Fatal("expired entry served from cache")
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleep(ctx, time.Hour)
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}
