package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCreatesDailyFile(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	root := t.TempDir()
	log, err := New(root, false, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debugw("debug line")
	_ = log.Sync()

	name := filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log")
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("log file empty")
	}
}

func TestFromContextFallsBack(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if FromContext(r.Context()) != zap.S() {
		t.Fatal("expected global logger")
	}
}

func TestRequestLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(prev)

	var inner bool
	h := middleware.RequestID(RequestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/login", nil))

	if !inner {
		t.Fatal("handler saw no logger")
	}
	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d request lines", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/api/login" {
		t.Fatalf("fields = %v", fields)
	}
	if fields["req_id"] == "" {
		t.Fatal("request id missing")
	}
}
