// Package engine implements the send/receive engine (component C4): it
// turns registry messages into wire frames and back, splitting and
// reassembling multi-packet payloads, optionally compressing large bodies,
// pacing sends against a per-destination bandwidth budget, and dispatching
// received messages to whichever component registered a handler for their
// command code.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"

	"jauscore/component/internal/config"
	"jauscore/component/internal/logging"
	"jauscore/component/internal/networking"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
	"jauscore/component/internal/xfer"
)

// Handler processes a fully reassembled, decoded message addressed to this
// component.
type Handler func(ctx context.Context, hdr wire.Header, msg registry.Message)

const (
	markerRaw    byte = 0x00
	markerSnappy byte = 0x01

	reassemblyTTL = 5 * time.Second
)

type reassemblyKey struct {
	source wire.Address
	code   uint16
	seq    uint16
}

type reassemblyState struct {
	body       []byte
	lastUpdate time.Time
}

type receiptKey struct {
	peer wire.Address
	code uint16
	seq  uint16
}

// Engine wires a transport adapter and a message registry together into
// the component's single send/receive path.
type Engine struct {
	self                 wire.Address
	transport            *xfer.Adapter
	reg                  *registry.Registry
	log                  *logging.Logger
	limiter              *networking.BandwidthRegulator
	compressionThreshold int
	authority            uint8
	nodeManager          wire.Address
	now                  func() time.Time

	mu         sync.Mutex
	outSeq     uint16
	reassembly map[reassemblyKey]*reassemblyState
	receipts   map[receiptKey]chan struct{}

	handlersMu sync.RWMutex
	handlers   map[uint16]Handler
}

// Options configures an Engine at construction.
type Options struct {
	Self                 wire.Address
	Transport            *xfer.Adapter
	Registry             *registry.Registry
	Log                  *logging.Logger
	Limiter              *networking.BandwidthRegulator
	CompressionThreshold int
	// Authority is this component's own authority code. An inbound command
	// whose header priority is lower is dropped unless it comes from
	// NodeManager. Zero accepts every command, matching a component with no
	// authority policy of its own.
	Authority   uint8
	NodeManager wire.Address
	Now         func() time.Time
}

// New builds an Engine from opts.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		self:                 opts.Self,
		transport:            opts.Transport,
		reg:                  opts.Registry,
		log:                  opts.Log,
		limiter:              opts.Limiter,
		compressionThreshold: opts.CompressionThreshold,
		authority:            opts.Authority,
		nodeManager:          opts.NodeManager,
		now:                  now,
		reassembly:           make(map[reassemblyKey]*reassemblyState),
		receipts:             make(map[receiptKey]chan struct{}),
		handlers:             make(map[uint16]Handler),
	}
}

// NewFromConfig builds an Engine wired to self's address, cfg's compression
// threshold, bandwidth limit, and authority, and the given transport and
// registry. The local Node Manager is assumed to live at (self.Subsystem,
// node=1, component=1, instance=1), the same convention the discovery engine
// uses.
func NewFromConfig(cfg *config.Config, self wire.Address, transport *xfer.Adapter, reg *registry.Registry, log *logging.Logger) *Engine {
	return New(Options{
		Self:                 self,
		Transport:            transport,
		Registry:             reg,
		Log:                  log,
		Limiter:              networking.NewBandwidthRegulator(cfg.BandwidthLimitBPS, nil),
		CompressionThreshold: cfg.CompressionThreshold,
		Authority:            cfg.Authority,
		NodeManager:          wire.Address{Subsystem: self.Subsystem, Node: 1, Component: 1, Instance: 1},
	})
}

// RegisterHandler installs h as the receiver for every decoded message
// whose command code is code, replacing any previous handler.
func (e *Engine) RegisterHandler(code uint16, h Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[code] = h
}

func (e *Engine) handlerFor(code uint16) (Handler, bool) {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	h, ok := e.handlers[code]
	return h, ok
}

func (e *Engine) nextSeq() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outSeq++
	return e.outSeq
}

// Send encodes msg and transmits it to dest without requesting an
// acknowledgement.
func (e *Engine) Send(ctx context.Context, dest wire.Address, msg registry.Message) error {
	_, err := e.transmit(ctx, dest, msg, wire.AckNackNone)
	return err
}

// SendWithReceipt encodes msg, requests an acknowledgement from dest, and
// blocks until the ack arrives, ctx is canceled, or timeout elapses.
func (e *Engine) SendWithReceipt(ctx context.Context, dest wire.Address, msg registry.Message, timeout time.Duration) error {
	code := msg.CommandCode()
	seq, err := e.transmit(ctx, dest, msg, wire.AckNackRequest)
	if err != nil {
		return err
	}

	key := receiptKey{peer: dest, code: code, seq: seq}
	waiter := make(chan struct{})
	e.mu.Lock()
	e.receipts[key] = waiter
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.receipts, key)
		e.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-waiter:
		return nil
	case <-timer.C:
		return ErrReceiptTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) transmit(ctx context.Context, dest wire.Address, msg registry.Message, ackNack wire.AckNack) (uint16, error) {
	body, err := msg.Encode()
	if err != nil {
		return 0, fmt.Errorf("engine: encoding 0x%04X: %w", msg.CommandCode(), err)
	}

	marker := markerRaw
	if e.compressionThreshold > 0 && len(body) > e.compressionThreshold {
		body = snappy.Encode(nil, body)
		marker = markerSnappy
	}
	framed := append([]byte{marker}, body...)

	packets := splitPayload(framed, wire.MaxSingleDataSize)

	// A single-packet, non-service-connection header must carry a zero
	// sequence number (see Header.IsValid); only a multi-packet stream
	// gets one assigned, to correlate its packets with each other.
	var seq uint16
	if len(packets) > 1 {
		seq = e.nextSeq()
	}

	for i, p := range packets {
		hdr := wire.Header{
			Priority:       wire.PriorityDefault,
			AckNack:        ackNack,
			Version:        wire.DefaultVersion,
			CommandCode:    msg.CommandCode(),
			Destination:    dest,
			Source:         e.self,
			DataSize:       uint16(len(p)),
			DataFlag:       flagFor(i, len(packets)),
			SequenceNumber: seq,
		}
		frame := append(hdr.Encode(), p...)

		if e.limiter != nil && !e.limiter.Allow(dest.String(), len(frame)) {
			return seq, ErrBandwidthExceeded
		}
		if err := e.transport.Send(ctx, frame); err != nil {
			return seq, err
		}
	}
	return seq, nil
}

func splitPayload(payload []byte, max int) [][]byte {
	if len(payload) <= max {
		return [][]byte{payload}
	}
	var packets [][]byte
	for len(payload) > 0 {
		n := max
		if n > len(payload) {
			n = len(payload)
		}
		packets = append(packets, payload[:n])
		payload = payload[n:]
	}
	return packets
}

func flagFor(index, total int) wire.DataControlFlag {
	switch {
	case total == 1:
		return wire.DataControlSingle
	case index == 0:
		return wire.DataControlFirst
	case index == total-1:
		return wire.DataControlLast
	default:
		return wire.DataControlNormal
	}
}

// Run drains the transport's inbound frame channel, reassembling and
// dispatching every message, until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-e.transport.Inbound():
			if !ok {
				return nil
			}
			e.handleFrame(ctx, frame)
		}
	}
}

func (e *Engine) handleFrame(ctx context.Context, frame []byte) {
	hdr, body, err := wire.DecodeHeader(frame)
	if err != nil {
		e.log.Debug("dropping malformed frame", logging.Error(err))
		return
	}

	// Acknowledgement-only packets never carry a body and are never
	// reassembled; they resolve a pending SendWithReceipt waiter.
	if hdr.AckNack == wire.AckNackAck && hdr.DataSize == 0 {
		e.resolveReceipt(hdr)
		return
	}

	complete, ok := e.reassembleLocked(hdr, body)
	if !ok {
		return
	}

	if len(complete) == 0 {
		e.log.Debug("dropping empty reassembled frame")
		return
	}
	marker, payload := complete[0], complete[1:]
	if marker == markerSnappy {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			e.log.Warn("failed to decompress payload", logging.Error(err))
			return
		}
		payload = decoded
	}

	if hdr.AckNack == wire.AckNackRequest {
		e.sendAck(ctx, hdr)
	}

	desc, err := e.reg.Lookup(hdr.CommandCode)
	if err != nil {
		e.log.Debug("unknown command code", logging.Error(err))
		return
	}
	if desc.Kind == registry.KindCommand && hdr.Priority < e.authority && hdr.Source != e.nodeManager {
		e.log.Debug("dropping command below authority threshold", logging.Error(ErrAuthorityDenied),
			logging.String("code", fmt.Sprintf("0x%04X", hdr.CommandCode)), logging.String("source", hdr.Source.String()))
		return
	}

	msg := desc.New()
	if err := msg.Decode(payload); err != nil {
		e.log.Warn("failed to decode message body", logging.Error(err))
		return
	}

	h, ok := e.handlerFor(hdr.CommandCode)
	if !ok {
		e.log.Debug("no handler registered", logging.Error(ErrNoHandler), logging.String("code", fmt.Sprintf("0x%04X", hdr.CommandCode)))
		return
	}
	h(ctx, hdr, msg)
}

func (e *Engine) resolveReceipt(hdr wire.Header) {
	key := receiptKey{peer: hdr.Source, code: hdr.CommandCode, seq: hdr.SequenceNumber}
	e.mu.Lock()
	waiter, ok := e.receipts[key]
	e.mu.Unlock()
	if ok {
		close(waiter)
	}
}

func (e *Engine) sendAck(ctx context.Context, hdr wire.Header) {
	ack := hdr
	ack.SwapSourceAndDestination()
	ack.AckNack = wire.AckNackAck
	ack.DataSize = 0
	ack.DataFlag = wire.DataControlSingle
	frame := ack.Encode()
	if err := e.transport.Send(ctx, frame); err != nil {
		e.log.Warn("failed to send acknowledgement", logging.Error(err))
	}
}

// reassembleLocked folds one packet into its multi-packet group, returning
// the complete payload and true once the group's Last packet arrives, or
// (nil, false) while more packets are still expected.
func (e *Engine) reassembleLocked(hdr wire.Header, body []byte) ([]byte, bool) {
	if hdr.DataFlag == wire.DataControlSingle {
		return body, true
	}

	key := reassemblyKey{source: hdr.Source, code: hdr.CommandCode, seq: hdr.SequenceNumber}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evictStaleLocked()

	state, exists := e.reassembly[key]
	if hdr.DataFlag == wire.DataControlFirst || !exists {
		state = &reassemblyState{}
		e.reassembly[key] = state
	}
	state.body = append(state.body, body...)
	state.lastUpdate = e.now()

	if hdr.DataFlag == wire.DataControlLast {
		delete(e.reassembly, key)
		return state.body, true
	}
	return nil, false
}

func (e *Engine) evictStaleLocked() {
	cutoff := e.now().Add(-reassemblyTTL)
	for k, s := range e.reassembly {
		if s.lastUpdate.Before(cutoff) {
			delete(e.reassembly, k)
		}
	}
}
