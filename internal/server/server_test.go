package server

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestNewTimeouts(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	if srv.ReadTimeout != 10*time.Second || srv.WriteTimeout != 15*time.Second || srv.IdleTimeout != time.Minute {
		t.Fatalf("timeouts = %v %v %v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, New("127.0.0.1:0", http.NotFoundHandler())) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(ShutdownGrace + time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReportsListenError(t *testing.T) {
	if err := Run(context.Background(), New("256.0.0.1:99999", http.NotFoundHandler())); err == nil {
		t.Fatal("expected listen error")
	}
}
