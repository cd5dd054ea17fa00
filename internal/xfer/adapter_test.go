package xfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"jauscore/component/internal/config"
	"jauscore/component/internal/logging"
)

func echoServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connected := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		connected <- conn
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.BinaryMessage, msg)
			}
		}
	}))
	return srv, connected
}

func newTestAdapter(t *testing.T, wsURL string) *Adapter {
	t.Helper()
	cfg := &config.Config{
		NodeManagerURL:  wsURL,
		PingInterval:    50 * time.Millisecond,
		ReconnectWindow: 20 * time.Millisecond,
		MaxPayloadBytes: 4079,
	}
	a := New(cfg, logging.NewTestLogger())
	return a
}

func TestAdapterSendReceiveRoundTrip(t *testing.T) {
	srv, connected := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	a := newTestAdapter(t, wsURL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Run(ctx)
	<-connected

	waitForSendChan(t, a)

	frame := []byte{1, 2, 3, 4}
	if err := a.Send(ctx, frame); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case got := <-a.Inbound():
		if string(got) != string(frame) {
			t.Fatalf("unexpected frame: %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	_ = a.Close()
}

func TestAdapterSendWithoutConnectionFails(t *testing.T) {
	a := newTestAdapter(t, "ws://127.0.0.1:0/unreachable")
	err := a.Send(context.Background(), []byte{1})
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestAdapterCloseStopsRun(t *testing.T) {
	srv, connected := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	a := newTestAdapter(t, wsURL)
	ctx := context.Background()

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()
	<-connected

	if err := a.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case err := <-runErr:
		if err != ErrClosed && err != context.Canceled {
			t.Fatalf("unexpected Run() error after Close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

// TestOnStateChangeFiresOnAttachAndDetach confirms the connect/disconnect
// hook fires true the moment a connection attaches and false the moment it
// is lost, independent of any sweep or timeout, matching how component.go
// wires it to invalidate standing subscriptions immediately on drop.
func TestOnStateChangeFiresOnAttachAndDetach(t *testing.T) {
	srv, connected := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	a := newTestAdapter(t, wsURL)

	states := make(chan bool, 4)
	a.OnStateChange(func(connected bool) { states <- connected })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Run(ctx)
	conn := <-connected

	select {
	case got := <-states:
		if !got {
			t.Fatal("expected the first state change to report connected")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connect notification")
	}

	_ = conn.Close()

	select {
	case got := <-states:
		if got {
			t.Fatal("expected the next state change to report disconnected")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for disconnect notification")
	}
}

func waitForSendChan(t *testing.T, a *Adapter) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.currentSendChan() != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for adapter to attach connection")
}
