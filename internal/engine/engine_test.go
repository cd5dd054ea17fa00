package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"jauscore/component/internal/config"
	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/networking"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
	"jauscore/component/internal/xfer"
)

// relayServer bridges two websocket clients so frames one Engine sends
// arrive as frames the other Engine receives, mimicking a node manager
// that simply forwards traffic between two locally-connected components.
func relayServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	conns := make([]*websocket.Conn, 0, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			mu.Lock()
			peers := make([]*websocket.Conn, 0, len(conns))
			for _, c := range conns {
				if c != conn {
					peers = append(peers, c)
				}
			}
			mu.Unlock()
			for _, peer := range peers {
				_ = peer.WriteMessage(websocket.BinaryMessage, msg)
			}
		}
	}))
	return srv
}

func newTestEngine(t *testing.T, wsURL string, self wire.Address, compressionThreshold int) (*Engine, *xfer.Adapter) {
	t.Helper()
	cfg := &config.Config{
		NodeManagerURL:  wsURL,
		PingInterval:    50 * time.Millisecond,
		ReconnectWindow: 20 * time.Millisecond,
		MaxPayloadBytes: 1 << 20,
	}
	adapter := xfer.New(cfg, logging.NewTestLogger())
	limiter := networking.NewBandwidthRegulator(0, nil)
	e := New(Options{
		Self:                 self,
		Transport:            adapter,
		Registry:             messages.Build(),
		Log:                  logging.NewTestLogger(),
		Limiter:              limiter,
		CompressionThreshold: compressionThreshold,
	})
	return e, adapter
}

func wsURLFor(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func TestEngineSendReceiveRoundTrip(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	subsystemA := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	subsystemB := wire.Address{Subsystem: 2, Node: 1, Component: 1, Instance: 1}

	engineA, adapterA := newTestEngine(t, url, subsystemA, 0)
	engineB, adapterB := newTestEngine(t, url, subsystemB, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapterA.Run(ctx)
	go adapterB.Run(ctx)
	go engineA.Run(ctx)
	go engineB.Run(ctx)

	received := make(chan *messages.ReportSubsystemList, 1)
	engineB.RegisterHandler(messages.CodeReportSubsystemList, func(_ context.Context, _ wire.Header, msg registry.Message) {
		received <- msg.(*messages.ReportSubsystemList)
	})

	waitForAttached(t, adapterA)
	waitForAttached(t, adapterB)

	report := &messages.ReportSubsystemList{SubsystemIDs: []byte{1, 2, 3}}
	if err := engineA.Send(ctx, subsystemB, report); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case got := <-received:
		if len(got.SubsystemIDs) != 3 || got.SubsystemIDs[1] != 2 {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}

func TestEngineMultiPacketReassembly(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	subsystemA := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	subsystemB := wire.Address{Subsystem: 2, Node: 1, Component: 1, Instance: 1}

	engineA, adapterA := newTestEngine(t, url, subsystemA, 0)
	engineB, adapterB := newTestEngine(t, url, subsystemB, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapterA.Run(ctx)
	go adapterB.Run(ctx)
	go engineA.Run(ctx)
	go engineB.Run(ctx)

	received := make(chan *messages.ReportRangeScan, 1)
	engineB.RegisterHandler(messages.CodeReportRangeScan, func(_ context.Context, _ wire.Header, msg registry.Message) {
		received <- msg.(*messages.ReportRangeScan)
	})

	waitForAttached(t, adapterA)
	waitForAttached(t, adapterB)

	ranges := make([]float64, 2500)
	for i := range ranges {
		ranges[i] = float64(i%65) * 0.5
	}
	scan := &messages.ReportRangeScan{StartAngleRadians: -1.0, StepRadians: 0.001, RangesMeters: ranges}

	if err := engineA.Send(ctx, subsystemB, scan); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case got := <-received:
		if len(got.RangesMeters) != len(ranges) {
			t.Fatalf("expected %d ranges, got %d", len(ranges), len(got.RangesMeters))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reassembled scan")
	}
}

func TestEngineCompressesLargePayloads(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	subsystemA := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	subsystemB := wire.Address{Subsystem: 2, Node: 1, Component: 1, Instance: 1}

	engineA, adapterA := newTestEngine(t, url, subsystemA, 16)
	engineB, adapterB := newTestEngine(t, url, subsystemB, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapterA.Run(ctx)
	go adapterB.Run(ctx)
	go engineA.Run(ctx)
	go engineB.Run(ctx)

	received := make(chan *messages.ReportServices, 1)
	engineB.RegisterHandler(messages.CodeReportServices, func(_ context.Context, _ wire.Header, msg registry.Message) {
		received <- msg.(*messages.ReportServices)
	})

	waitForAttached(t, adapterA)
	waitForAttached(t, adapterB)

	report := &messages.ReportServices{Services: []string{
		"urn:jaus:jss:core:Transport", "urn:jaus:jss:mobility:PrimitiveDriver", "urn:jaus:jss:environment:RangeSensor",
	}}
	if err := engineA.Send(ctx, subsystemB, report); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case got := <-received:
		if len(got.Services) != 3 {
			t.Fatalf("unexpected services: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for compressed payload round trip")
	}
}

func TestEngineSendWithReceiptTimesOutWithoutPeer(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	self := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	dest := wire.Address{Subsystem: 9, Node: 1, Component: 1, Instance: 1}
	e, adapter := newTestEngine(t, url, self, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapter.Run(ctx)
	waitForAttached(t, adapter)

	err := e.SendWithReceipt(ctx, dest, messages.NewReportHeartbeatPulse(), 100*time.Millisecond)
	if err != ErrReceiptTimeout {
		t.Fatalf("expected ErrReceiptTimeout, got %v", err)
	}
}

func TestEngineSendWithReceiptResolvesOnAck(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	subsystemA := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	subsystemB := wire.Address{Subsystem: 2, Node: 1, Component: 1, Instance: 1}

	engineA, adapterA := newTestEngine(t, url, subsystemA, 0)
	engineB, adapterB := newTestEngine(t, url, subsystemB, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapterA.Run(ctx)
	go adapterB.Run(ctx)
	go engineA.Run(ctx)
	go engineB.Run(ctx)

	engineB.RegisterHandler(messages.CodeReportHeartbeatPulse, func(context.Context, wire.Header, registry.Message) {})

	waitForAttached(t, adapterA)
	waitForAttached(t, adapterB)

	if err := engineA.SendWithReceipt(ctx, subsystemB, messages.NewReportHeartbeatPulse(), time.Second); err != nil {
		t.Fatalf("expected receipt to resolve, got %v", err)
	}
}

func TestNewFromConfigWiresCompressionAndBandwidth(t *testing.T) {
	cfg := &config.Config{
		NodeManagerURL:       "ws://127.0.0.1:0/",
		PingInterval:         time.Second,
		ReconnectWindow:      time.Second,
		MaxPayloadBytes:      4079,
		CompressionThreshold: 128,
		BandwidthLimitBPS:    1000,
	}
	self := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	adapter := xfer.New(cfg, logging.NewTestLogger())
	e := NewFromConfig(cfg, self, adapter, messages.Build(), logging.NewTestLogger())

	if e.compressionThreshold != 128 {
		t.Fatalf("expected compression threshold 128, got %d", e.compressionThreshold)
	}
	if e.limiter == nil {
		t.Fatal("expected a non-nil bandwidth limiter")
	}
}

const testCommandCode uint16 = 0x0060

// testCommand is a minimal command-kind message used only to exercise
// authority filtering, mirroring the table package's own testCommand.
type testCommand struct{ Value byte }

func (m *testCommand) CommandCode() uint16    { return testCommandCode }
func (m *testCommand) Encode() ([]byte, error) { return []byte{m.Value}, nil }
func (m *testCommand) Decode(body []byte) error {
	if len(body) < 1 {
		return messages.ErrShortBody
	}
	m.Value = body[0]
	return nil
}

func newTestEngineWithAuthority(t *testing.T, wsURL string, self, nodeManager wire.Address, authority uint8) (*Engine, *xfer.Adapter) {
	t.Helper()
	cfg := &config.Config{
		NodeManagerURL:  wsURL,
		PingInterval:    50 * time.Millisecond,
		ReconnectWindow: 20 * time.Millisecond,
		MaxPayloadBytes: 1 << 20,
	}
	reg := messages.Build()
	reg.MustRegister(registry.Descriptor{
		Code: testCommandCode, Name: "TestCommand", Kind: registry.KindCommand,
		New: func() registry.Message { return &testCommand{} },
	})
	adapter := xfer.New(cfg, logging.NewTestLogger())
	e := New(Options{
		Self:        self,
		Transport:   adapter,
		Registry:    reg,
		Log:         logging.NewTestLogger(),
		Limiter:     networking.NewBandwidthRegulator(0, nil),
		Authority:   authority,
		NodeManager: nodeManager,
	})
	return e, adapter
}

// TestHandleFrameDropsCommandsBelowAuthorityThreshold confirms that a
// command-kind message arriving with a header priority below this engine's
// configured authority is dropped silently unless it comes from the local
// Node Manager, which is always trusted regardless of priority.
func TestHandleFrameDropsCommandsBelowAuthorityThreshold(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	self := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	nodeManager := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}
	lowAuthoritySender := wire.Address{Subsystem: 2, Node: 1, Component: 1, Instance: 1}

	engineB, adapterB := newTestEngineWithAuthority(t, url, self, nodeManager, 5)
	engineA, adapterA := newTestEngine(t, url, lowAuthoritySender, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapterA.Run(ctx)
	go adapterB.Run(ctx)
	go engineA.Run(ctx)
	go engineB.Run(ctx)

	received := make(chan byte, 1)
	engineB.RegisterHandler(testCommandCode, func(_ context.Context, _ wire.Header, msg registry.Message) {
		received <- msg.(*testCommand).Value
	})

	waitForAttached(t, adapterA)
	waitForAttached(t, adapterB)

	sendAt := func(priority uint8, value byte) {
		body, err := (&testCommand{Value: value}).Encode()
		if err != nil {
			t.Fatalf("Encode returned error: %v", err)
		}
		hdr := wire.Header{
			Priority: priority, Version: wire.DefaultVersion, CommandCode: testCommandCode,
			Destination: self, Source: lowAuthoritySender, DataSize: uint16(len(body) + 1),
			DataFlag: wire.DataControlSingle,
		}
		frame := append(hdr.Encode(), append([]byte{0x00}, body...)...)
		if err := adapterA.Send(ctx, frame); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
	}

	sendAt(2, 1)
	select {
	case <-received:
		t.Fatal("expected a command below authority from a non-node-manager source to be dropped")
	case <-time.After(200 * time.Millisecond):
	}

	sendAt(5, 2)
	select {
	case v := <-received:
		if v != 2 {
			t.Fatalf("unexpected payload: %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a command at the authority threshold")
	}
}

// TestHandleFrameAlwaysTrustsNodeManager confirms the Node Manager address
// bypasses the authority check regardless of header priority.
func TestHandleFrameAlwaysTrustsNodeManager(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()
	url := wsURLFor(srv)

	nodeManager := wire.Address{Subsystem: 2, Node: 1, Component: 1, Instance: 1}
	self := wire.Address{Subsystem: 1, Node: 1, Component: 1, Instance: 1}

	engineB, adapterB := newTestEngineWithAuthority(t, url, self, nodeManager, 9)
	engineA, adapterA := newTestEngine(t, url, nodeManager, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapterA.Run(ctx)
	go adapterB.Run(ctx)
	go engineA.Run(ctx)
	go engineB.Run(ctx)

	received := make(chan byte, 1)
	engineB.RegisterHandler(testCommandCode, func(_ context.Context, _ wire.Header, msg registry.Message) {
		received <- msg.(*testCommand).Value
	})

	waitForAttached(t, adapterA)
	waitForAttached(t, adapterB)

	body, err := (&testCommand{Value: 7}).Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	hdr := wire.Header{
		Priority: 0, Version: wire.DefaultVersion, CommandCode: testCommandCode,
		Destination: self, Source: nodeManager, DataSize: uint16(len(body) + 1),
		DataFlag: wire.DataControlSingle,
	}
	frame := append(hdr.Encode(), append([]byte{0x00}, body...)...)
	if err := adapterA.Send(ctx, frame); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case v := <-received:
		if v != 7 {
			t.Fatalf("unexpected payload: %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a zero-priority command from the node manager")
	}
}

func waitForAttached(t *testing.T, a *xfer.Adapter) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := a.Send(context.Background(), []byte{}); err != xfer.ErrNotConnected {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for adapter to attach")
}
