package component

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

func relayServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func testConfig(t *testing.T, address string) *config.Config {
	t.Helper()
	srv := relayServer(t)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	return &config.Config{
		Address:               address,
		NodeManagerURL:        url,
		ProtocolVersion:       config.DefaultProtocolVersion,
		MaxPayloadBytes:       config.DefaultMaxPayloadBytes,
		PingInterval:          50 * time.Millisecond,
		ReconnectWindow:       20 * time.Millisecond,
		DiscoveryEnabled:      false,
		DiscoveryTTL:          config.DefaultDiscoveryTTL,
		LoopInterval:          time.Millisecond,
		HPTThresholdHz:        config.DefaultHPTThresholdHz,
		ReEstablishByDefault:  true,
		CompressionThreshold:  config.DefaultCompressionThresholdBytes,
		BandwidthLimitBPS:     config.DefaultBandwidthLimitBytesPerSecond,
		MaxConcurrentReceipts: 16,
	}
}

func TestNewBuildsAllEightComponents(t *testing.T) {
	cfg := testConfig(t, "2.1.1.1")
	c, err := New(cfg, logging.NewTestLogger(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if c.Registry == nil || c.Transport == nil || c.Engine == nil || c.Events == nil ||
		c.Table == nil || c.Loop == nil || c.Discovery == nil {
		t.Fatal("expected every component to be wired")
	}
	if c.Self.String() != "2.1.1.1" {
		t.Fatalf("unexpected self address: %s", c.Self.String())
	}
}

func TestNewRejectsMalformedAddress(t *testing.T) {
	cfg := testConfig(t, "not-an-address")
	if _, err := New(cfg, logging.NewTestLogger(), nil); err == nil {
		t.Fatal("expected an error for a malformed address")
	}
}

func TestNewRejectsZeroByteAddress(t *testing.T) {
	cfg := testConfig(t, "0.1.1.1")
	if _, err := New(cfg, logging.NewTestLogger(), nil); err == nil {
		t.Fatal("expected an error for an address containing a zero byte")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t, "3.1.1.1")
	c, err := New(cfg, logging.NewTestLogger(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run to return the cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Run to return after cancellation")
	}
}
