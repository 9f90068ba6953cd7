package workload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/crankbench/internal/config"
)

func newWSServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func echo(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

func TestWebSocketDoEcho(t *testing.T) {
	url := newWSServer(t, echo)

	w, err := NewWebSocket(config.WorkloadConfig{
		URL:        url,
		Body:       `{"status":"ok"}`,
		Timeout:    time.Second,
		ExpectJSON: map[string]string{"$.status": "ok"},
	})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Do(context.Background()); err != nil {
			t.Fatalf("Do() #%d error = %v", i, err)
		}
	}
}

func TestWebSocketDoExpectationMismatch(t *testing.T) {
	url := newWSServer(t, echo)

	w, err := NewWebSocket(config.WorkloadConfig{
		URL:        url,
		Body:       `{"status":"degraded"}`,
		ExpectJSON: map[string]string{"status": "ok"},
	})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	var expErr *ExpectationError
	if err := w.Do(context.Background()); !errors.As(err, &expErr) {
		t.Fatalf("Do() error = %v, want *ExpectationError", err)
	}
	if expErr.Got != "degraded" {
		t.Errorf("Got = %q, want %q", expErr.Got, "degraded")
	}
}

func TestWebSocketDoHandshakeOnly(t *testing.T) {
	var conns atomic.Int32
	var header atomic.Value
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("X-Token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	w, err := NewWebSocket(config.WorkloadConfig{
		URL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		Headers: map[string]string{"X-Token": "abc"},
	})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	if err := w.Do(context.Background()); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := conns.Load(); got != 1 {
		t.Errorf("server accepted %d connections, want 1", got)
	}
	if got := header.Load(); got != "abc" {
		t.Errorf("X-Token = %v, want abc", got)
	}
}

func TestWebSocketDoHandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	w, err := NewWebSocket(config.WorkloadConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http"), Body: "hi"})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	err = w.Do(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("Do() error = %v, want dial failure with status 403", err)
	}
}

func TestWebSocketDoCancelledWhileWaiting(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	w, err := NewWebSocket(config.WorkloadConfig{URL: url, Body: "ping", Timeout: time.Minute})
	if err != nil {
		t.Fatalf("NewWebSocket() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	if err := w.Do(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Do() returned after %v, want prompt return on cancel", elapsed)
	}
}

func TestNewWebSocketErrors(t *testing.T) {
	if _, err := NewWebSocket(config.WorkloadConfig{}); err == nil {
		t.Error("NewWebSocket() accepted empty url")
	}
	if _, err := NewWebSocket(config.WorkloadConfig{URL: "ws://x", BodyFile: "/no/such/payload"}); err == nil {
		t.Error("NewWebSocket() accepted missing body file")
	}
}
