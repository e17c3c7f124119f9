package requestinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yanizio/beacon/internal/ua"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded first", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.7"},
		{"forwarded garbage skipped", map[string]string{"X-Forwarded-For": "nope, 198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-Ip": "198.51.100.9"}, "10.0.0.2:5000", "198.51.100.9"},
		{"remote addr", nil, "192.0.2.1:4242", "192.0.2.1"},
		{"remote without port", nil, "192.0.2.5", "192.0.2.5"},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = c.remote
		for k, v := range c.header {
			r.Header.Set(k, v)
		}
		if got := clientIP(r).String(); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestEnrich(t *testing.T) {
	var got *RequestInfo
	h := Enrich(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	r.RemoteAddr = "192.0.2.10:1000"
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got == nil {
		t.Fatal("request info missing")
	}
	if got.IPString() != "192.0.2.10" || got.Geo.CountryISO != "" {
		t.Fatalf("geo = %+v", got.Geo)
	}
	if got.Agent.Device != ua.Desktop {
		t.Fatalf("agent = %+v", got.Agent)
	}
	if (*RequestInfo)(nil).IPString() != "" {
		t.Fatal("nil info must give empty ip")
	}
}

func TestAgentFrom(t *testing.T) {
	if got := AgentFrom(context.Background()); got.Device != ua.Other {
		t.Fatalf("agent without enrichment = %+v", got)
	}
	want := ua.Agent{Browser: "Firefox 125", OS: "Linux", Device: ua.Desktop}
	ctx := WithInfo(context.Background(), &RequestInfo{Agent: want})
	if got := AgentFrom(ctx); got != want {
		t.Fatalf("agent = %+v", got)
	}
}
