// Package xfer implements the transport adapter (component C3): a single
// persistent WebSocket connection to the local node manager that every
// other component sends and receives raw wire frames through.
package xfer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"jauscore/component/internal/config"
	"jauscore/component/internal/logging"
)

const (
	writeWait          = 10 * time.Second
	pongWaitMultiplier = 2
	sendBufferSize     = 256
)

// Dialer abstracts websocket.DefaultDialer.Dial so tests can substitute a
// loopback dialer without touching the network.
type Dialer func(urlStr string) (*websocket.Conn, error)

// Adapter owns the single WebSocket connection this component keeps open to
// its local node manager, re-dialing on every drop. Every frame it sends or
// receives is an opaque byte slice: the 16-byte header plus payload produced
// by internal/wire, with no interpretation at this layer.
type Adapter struct {
	url             string
	pingInterval    time.Duration
	maxPayloadBytes int64
	reconnectWindow time.Duration
	dial            Dialer
	log             *logging.Logger
	now             func() time.Time

	inbound chan []byte

	mu            sync.Mutex
	conn          *websocket.Conn
	send          chan []byte
	closed        bool
	done          chan struct{}
	onStateChange func(connected bool)
}

// New builds an Adapter from cfg, dialing cfg.NodeManagerURL by default.
func New(cfg *config.Config, log *logging.Logger) *Adapter {
	return &Adapter{
		url:             cfg.NodeManagerURL,
		pingInterval:    cfg.PingInterval,
		maxPayloadBytes: int64(cfg.MaxPayloadBytes),
		reconnectWindow: cfg.ReconnectWindow,
		dial: func(urlStr string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(urlStr, nil)
			return conn, err
		},
		log:     log,
		now:     time.Now,
		inbound: make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Inbound returns the channel frames arrive on as they are read off the wire.
func (a *Adapter) Inbound() <-chan []byte {
	return a.inbound
}

// OnStateChange installs a callback fired every time the adapter attaches to
// a fresh connection (true) or loses one (false). It fires outside any
// internal lock, from whichever goroutine noticed the transition, so the
// callback must not block. The embedder uses this to invalidate standing
// subscriptions and fire discovery disconnect events the moment the
// underlying link drops, rather than waiting for timeout-driven sweeps to
// notice independently.
func (a *Adapter) OnStateChange(fn func(connected bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStateChange = fn
}

// Run dials the node manager and keeps the connection alive, reconnecting
// after reconnectWindow on every drop, until ctx is canceled or Close is
// called. It returns only once no further reconnect attempt will be made.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			return ErrClosed
		default:
		}

		conn, err := a.dial(a.url)
		if err != nil {
			a.log.Warn("node manager dial failed", logging.Error(err), logging.String("url", a.url))
			if !a.sleepOrDone(ctx, a.reconnectWindow) {
				return ctx.Err()
			}
			continue
		}

		a.attach(conn)
		a.runConnection(ctx, conn)
		a.detach()

		if !a.sleepOrDone(ctx, a.reconnectWindow) {
			return ctx.Err()
		}
	}
}

func (a *Adapter) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-a.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (a *Adapter) attach(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.send = make(chan []byte, sendBufferSize)
	if a.maxPayloadBytes > 0 {
		conn.SetReadLimit(a.maxPayloadBytes)
	}
	fn := a.onStateChange
	a.mu.Unlock()
	if fn != nil {
		fn(true)
	}
}

func (a *Adapter) detach() {
	a.mu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
	}
	a.conn = nil
	if a.send != nil {
		close(a.send)
		a.send = nil
	}
	fn := a.onStateChange
	a.mu.Unlock()
	if fn != nil {
		fn(false)
	}
}

// runConnection drives one connection's reader and writer pumps until
// either fails, then returns.
func (a *Adapter) runConnection(ctx context.Context, conn *websocket.Conn) {
	waitDuration := time.Duration(pongWaitMultiplier) * a.pingInterval
	if err := conn.SetReadDeadline(a.now().Add(waitDuration)); err != nil {
		a.log.Error("failed to set initial read deadline", logging.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(a.now().Add(waitDuration))
	})

	connDone := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(connDone) }) }

	go a.readPump(conn, waitDuration, stop)
	go a.writePump(ctx, conn, stop, connDone)

	<-connDone
}

func (a *Adapter) readPump(conn *websocket.Conn, waitDuration time.Duration, stop func()) {
	defer stop()
	for {
		messageType, msg, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				a.log.Warn("read deadline exceeded", logging.Error(err))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.log.Warn("unexpected websocket close", logging.Error(err))
			} else {
				a.log.Debug("read error", logging.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(a.now().Add(waitDuration)); err != nil {
			a.log.Error("failed to extend read deadline", logging.Error(err))
			return
		}
		if messageType != websocket.BinaryMessage {
			a.log.Debug("dropping non-binary frame")
			continue
		}

		frame := append([]byte(nil), msg...)
		select {
		case a.inbound <- frame:
		default:
			a.log.Warn("inbound queue full, dropping frame")
		}
	}
}

func (a *Adapter) writePump(ctx context.Context, conn *websocket.Conn, stop func(), connDone <-chan struct{}) {
	defer stop()
	pingTicker := time.NewTicker(a.pingInterval)
	defer pingTicker.Stop()

	sendCh := a.currentSendChan()
	if sendCh == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			return
		case msg, ok := <-sendCh:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.SetWriteDeadline(a.now().Add(writeWait)); err != nil {
				a.log.Error("failed to set write deadline", logging.Error(err))
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				a.log.Error("write error", logging.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, a.now().Add(writeWait)); err != nil {
				a.log.Warn("ping failure", logging.Error(err))
				return
			}
		}
	}
}

func (a *Adapter) currentSendChan() chan []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.send
}

// Send queues frame for delivery on the current connection. It returns
// ErrNotConnected if no connection is currently established, or ctx.Err()
// if ctx is canceled before the frame could be queued.
func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	sendCh := a.currentSendChan()
	if sendCh == nil {
		return ErrNotConnected
	}
	select {
	case sendCh <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrClosed
	}
}

// Close tears down the adapter permanently; Run returns shortly after.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()
	close(a.done)
	a.detach()
	return nil
}
