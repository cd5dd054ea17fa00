// Package events implements the event manager (component C5): the
// provider side that turns CreateEventRequest/UpdateEvent/CancelEvent into
// a table of periodic, every-change, or first-change subscriptions and
// generates Event envelopes for them, and the subscriber side that asks a
// remote provider for events and dispatches arriving Event envelopes back
// to whatever local handler requested them.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jauscore/component/internal/engine"
	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
)

// defaultEveryChangeInterval is the expected interval used for loss
// detection on non-periodic (EveryChange/FirstChange) subscriptions, which
// have no inherent rate to multiply.
const defaultEveryChangeInterval = 5 * time.Second

// retransmitTimeout bounds the single Create Event Request retry Sweep
// attempts before parking a subscription whose provider has gone quiet.
const retransmitTimeout = 250 * time.Millisecond

// staleAfter returns how long a subscription may go without a delivery
// before Sweep considers it lost: 500ms of slack plus one nominal delivery
// period. Non-periodic subscriptions have no rate to derive a period from,
// so they fall back to their registered expected interval instead.
func staleAfter(rateHz float64, fallback time.Duration) time.Duration {
	if rateHz <= 0 {
		return fallback + 500*time.Millisecond
	}
	return 500*time.Millisecond + time.Duration(1000.0/rateHz*float64(time.Millisecond))
}

// Producer describes one message type this component can generate events
// for: Generate returns the current value as a freshly populated report
// message, ready to be encoded into an Event envelope's body.
type Producer struct {
	MessageCode uint16
	Generate    func() (registry.Message, error)
}

// LostEvent is an immutable snapshot of a subscription whose provider
// stopped delivering within the expected interval.
type LostEvent struct {
	Provider       wire.Address
	EventID        uint8
	MessageCode    uint16
	EventType      uint8
	RateHz         float64
	PresenceVector uint32
	Handler        func(registry.Message)
	LastReceived   time.Time
}

// ReestablishHook is consulted before a timed-out subscription is parked in
// the lost-events list. It returns true if it has already re-created (or
// intends to handle) the subscription itself, in which case the entry is
// left alone; returning false lets Sweep delete it and record it as lost.
type ReestablishHook func(snapshot LostEvent) bool

// EventRequestHook is consulted before a CreateEventRequest is confirmed. It
// may veto the request by returning ok=false with a response code and error
// message, or down-negotiate a periodic rate by returning a confirmedRate
// lower than requested. Returning ok=true with confirmedRate<=0 accepts the
// request as-is.
type EventRequestHook func(source wire.Address, req *messages.CreateEventRequest) (ok bool, confirmedRate float64, responseCode uint8, errMsg string)

// eventKey identifies a produced event by the same (messageCode, eventType,
// presenceVector) tuple the provider uses to decide whether an incoming
// CreateEventRequest can share an already-active event rather than
// allocating a new one.
type eventKey struct {
	messageCode    uint16
	eventType      uint8
	presenceVector uint32
}

type producedSubscriber struct {
	eventID        uint8
	subscribers    []wire.Address
	messageCode    uint16
	eventType      uint8
	rateHz         float64
	presenceVector uint32
	seq            uint8
	lastSent       time.Time
	lastEncoded    []byte
}

func containsAddress(addrs []wire.Address, a wire.Address) bool {
	for _, existing := range addrs {
		if existing == a {
			return true
		}
	}
	return false
}

func removeAddress(addrs []wire.Address, a wire.Address) []wire.Address {
	out := addrs[:0]
	for _, existing := range addrs {
		if existing != a {
			out = append(out, existing)
		}
	}
	return out
}

type subscriptionKey struct {
	provider wire.Address
	eventID  uint8
}

type subscription struct {
	provider         wire.Address
	eventID          uint8
	messageCode      uint16
	eventType        uint8
	rateHz           float64
	presenceVector   uint32
	handler          func(registry.Message)
	lastReceived     time.Time
	expectedInterval time.Duration
}

type pendingRequest struct {
	confirm *messages.ConfirmEventRequest
	reject  *messages.RejectEventRequest
}

// Manager tracks both roles a component plays in the events protocol: the
// provider of events other components subscribe to, and a subscriber of
// events this component requests from others.
type Manager struct {
	eng *engine.Engine
	reg *registry.Registry
	log *logging.Logger
	now func() time.Time

	mu          sync.Mutex
	producers   map[uint16]Producer
	nextEventID map[uint16]uint8
	produced    map[uint8]*producedSubscriber
	byKey       map[eventKey]*producedSubscriber
	requestHook EventRequestHook

	subMu           sync.Mutex
	nextRequestID   uint8
	pending         map[uint8]chan pendingRequest
	subscriptions   map[subscriptionKey]*subscription
	lostEvents      []LostEvent
	reestablishHook ReestablishHook
}

// NewManager builds a Manager and registers its protocol handlers with eng.
func NewManager(eng *engine.Engine, reg *registry.Registry, log *logging.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		eng:           eng,
		reg:           reg,
		log:           log,
		now:           now,
		producers:     make(map[uint16]Producer),
		nextEventID:   make(map[uint16]uint8),
		produced:      make(map[uint8]*producedSubscriber),
		byKey:         make(map[eventKey]*producedSubscriber),
		pending:       make(map[uint8]chan pendingRequest),
		subscriptions: make(map[subscriptionKey]*subscription),
	}
	eng.RegisterHandler(messages.CodeCreateEventRequest, m.handleCreateEventRequest)
	eng.RegisterHandler(messages.CodeUpdateEvent, m.handleUpdateEvent)
	eng.RegisterHandler(messages.CodeCancelEvent, m.handleCancelEvent)
	eng.RegisterHandler(messages.CodeConfirmEventRequest, m.handleConfirmEventRequest)
	eng.RegisterHandler(messages.CodeRejectEventRequest, m.handleRejectEventRequest)
	eng.RegisterHandler(messages.CodeEvent, m.handleEvent)
	return m
}

// RegisterProducer declares that this component can generate events for
// messageCode, using generate to build the current report value on demand.
func (m *Manager) RegisterProducer(messageCode uint16, generate func() (registry.Message, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.producers[messageCode] = Producer{MessageCode: messageCode, Generate: generate}
}

// SetReestablishHook installs the policy consulted by Sweep when a
// subscription times out.
func (m *Manager) SetReestablishHook(hook ReestablishHook) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.reestablishHook = hook
}

// SetEventRequestHook installs the policy consulted before a
// CreateEventRequest is confirmed, letting callers veto a request or
// negotiate down its requested rate.
func (m *Manager) SetEventRequestHook(hook EventRequestHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = hook
}

// LostEvents returns a snapshot of every subscription Sweep has parked.
func (m *Manager) LostEvents() []LostEvent {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return append([]LostEvent(nil), m.lostEvents...)
}

// nextEventIDLocked allocates an event ID for messageCode. The counter's
// starting point is tracked per message code so that churn on one message
// type doesn't starve IDs for another, but the wire Event envelope carries
// no message code of its own, so the receiving subscriber can only
// correlate by (provider, eventID): the candidate is still checked against
// the single global m.produced map to guarantee IDs stay unique across every
// message code this provider serves.
func (m *Manager) nextEventIDLocked(messageCode uint16) uint8 {
	start := m.nextEventID[messageCode]
	for i := 0; i < 256; i++ {
		start++
		if _, taken := m.produced[start]; !taken {
			m.nextEventID[messageCode] = start
			return start
		}
	}
	m.nextEventID[messageCode] = start
	return start
}

// Tick generates and sends Event envelopes for every produced subscription
// that is due: periodic subscriptions due by elapsed time, EveryChange and
// FirstChange subscriptions whose generated value differs from the last one
// sent. FirstChange subscriptions are removed from the table once they
// fire once, matching their one-shot semantics.
func (m *Manager) Tick(ctx context.Context) {
	now := m.now()

	type job struct {
		sub     *producedSubscriber
		message registry.Message
	}

	m.mu.Lock()
	var jobs []job
	var expired []uint8
	for id, sub := range m.produced {
		producer, ok := m.producers[sub.messageCode]
		if !ok {
			continue
		}
		switch sub.eventType {
		case messages.EventTypePeriodic:
			if sub.rateHz <= 0 {
				continue
			}
			interval := time.Duration(float64(time.Second) / sub.rateHz)
			if now.Sub(sub.lastSent) < interval {
				continue
			}
		case messages.EventTypeEveryChange, messages.EventTypeFirstChange:
			// evaluated below against the freshly generated value
		default:
			continue
		}

		msg, err := producer.Generate()
		if err != nil {
			m.log.Warn("event producer failed", logging.Error(err), logging.String("code", fmt.Sprintf("0x%04X", producer.MessageCode)))
			continue
		}

		if sub.eventType != messages.EventTypePeriodic {
			encoded, err := msg.Encode()
			if err != nil {
				m.log.Warn("failed to encode candidate event value", logging.Error(err))
				continue
			}
			if string(encoded) == string(sub.lastEncoded) {
				continue
			}
			sub.lastEncoded = encoded
			if sub.eventType == messages.EventTypeFirstChange {
				expired = append(expired, id)
			}
		}

		jobs = append(jobs, job{sub: sub, message: msg})
	}
	for _, id := range expired {
		if sub, ok := m.produced[id]; ok {
			delete(m.byKey, eventKey{messageCode: sub.messageCode, eventType: sub.eventType, presenceVector: sub.presenceVector})
		}
		delete(m.produced, id)
	}
	m.mu.Unlock()

	for _, j := range jobs {
		m.sendEvent(ctx, j.sub, j.message)
	}
}

func (m *Manager) sendEvent(ctx context.Context, sub *producedSubscriber, report registry.Message) {
	body, err := report.Encode()
	if err != nil {
		m.log.Warn("failed to encode event report", logging.Error(err))
		return
	}

	m.mu.Lock()
	sub.seq++
	envelope := &messages.Event{EventID: sub.eventID, SequenceNumber: sub.seq, ReportBody: body}
	sub.lastSent = m.now()
	dests := append([]wire.Address(nil), sub.subscribers...)
	m.mu.Unlock()

	for _, dest := range dests {
		if err := m.eng.Send(ctx, dest, envelope); err != nil {
			m.log.Warn("failed to send event envelope", logging.Error(err), logging.String("dest", dest.String()))
		}
	}
}

// Sweep checks every active subscription against its expected delivery
// interval. A subscription found stale is given one chance to recover: a
// non-blocking retransmit of its Create Event Request with a short timeout.
// If that retransmit confirms, the subscription's lastReceived is refreshed
// and nothing is parked; if it fails, the reestablish hook is consulted
// exactly as before and, absent a hook that takes responsibility, the
// subscription is parked as lost.
func (m *Manager) Sweep() {
	now := m.now()

	m.subMu.Lock()
	var staleKeys []subscriptionKey
	for key, sub := range m.subscriptions {
		if now.Sub(sub.lastReceived) > staleAfter(sub.rateHz, sub.expectedInterval) {
			staleKeys = append(staleKeys, key)
		}
	}
	m.subMu.Unlock()

	for _, key := range staleKeys {
		m.sweepOne(key)
	}
}

func (m *Manager) sweepOne(key subscriptionKey) {
	m.subMu.Lock()
	sub, ok := m.subscriptions[key]
	if !ok {
		m.subMu.Unlock()
		return
	}
	now := m.now()
	if now.Sub(sub.lastReceived) <= staleAfter(sub.rateHz, sub.expectedInterval) {
		m.subMu.Unlock()
		return
	}
	provider, messageCode, eventType, rateHz, presenceVector, handler := sub.provider, sub.messageCode, sub.eventType, sub.rateHz, sub.presenceVector, sub.handler
	m.subMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), retransmitTimeout)
	_, err := m.Subscribe(ctx, provider, messageCode, eventType, rateHz, presenceVector, handler, retransmitTimeout)
	cancel()
	if err == nil {
		return
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	sub, ok = m.subscriptions[key]
	if !ok {
		return
	}
	m.parkLocked(key, sub)
}

// ProducedCount returns how many event subscriptions this component is
// currently generating reports for, for the subscription loop's (C7) health
// snapshot.
func (m *Manager) ProducedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.produced)
}

// HighRateProducedCount returns how many periodic subscriptions this
// component produces at or above thresholdHz, i.e. the entries that would
// warrant a dedicated high-precision timer rather than the uniform Tick
// poll this component uses for every periodic entry regardless of rate.
func (m *Manager) HighRateProducedCount(thresholdHz float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.produced {
		if p.eventType == messages.EventTypePeriodic && p.rateHz >= thresholdHz {
			n++
		}
	}
	return n
}

// EvictProvider removes every subscription whose provider belongs to
// subsystemID, consulting the reestablish hook exactly as Sweep does. The
// discovery engine calls this the moment a subsystem disappears, rather
// than waiting for the next timeout-driven sweep to notice.
func (m *Manager) EvictProvider(subsystemID byte) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for key, sub := range m.subscriptions {
		if sub.provider.Subsystem != subsystemID {
			continue
		}
		m.parkLocked(key, sub)
	}
}

// InvalidateAll parks every active subscription, regardless of provider,
// consulting the reestablish hook exactly as Sweep and EvictProvider do.
// The component calls this when the underlying transport reports a
// disconnect, since every outstanding subscription is unreachable until it
// reconnects.
func (m *Manager) InvalidateAll() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for key, sub := range m.subscriptions {
		m.parkLocked(key, sub)
	}
}

// parkLocked consults the reestablish hook for sub and, absent a hook that
// takes responsibility, deletes it and records it as lost. Callers must hold
// subMu.
func (m *Manager) parkLocked(key subscriptionKey, sub *subscription) {
	snapshot := LostEvent{
		Provider:       sub.provider,
		EventID:        sub.eventID,
		MessageCode:    sub.messageCode,
		EventType:      sub.eventType,
		RateHz:         sub.rateHz,
		PresenceVector: sub.presenceVector,
		Handler:        sub.handler,
		LastReceived:   sub.lastReceived,
	}
	handled := false
	if m.reestablishHook != nil {
		handled = m.reestablishHook(snapshot)
	}
	if !handled {
		delete(m.subscriptions, key)
		m.lostEvents = append(m.lostEvents, snapshot)
	}
}

// Rearm re-subscribes to a parked lost event using the eventType, rate,
// presence vector, and handler captured in its snapshot, and on success
// removes it from the lost-events list. The discovery engine calls this
// when a subsystem that previously timed out reappears.
func (m *Manager) Rearm(ctx context.Context, lost LostEvent, timeout time.Duration) (uint8, error) {
	eventID, err := m.Subscribe(ctx, lost.Provider, lost.MessageCode, lost.EventType, lost.RateHz, lost.PresenceVector, lost.Handler, timeout)
	if err != nil {
		return 0, err
	}

	m.subMu.Lock()
	for i, le := range m.lostEvents {
		if le.Provider == lost.Provider && le.MessageCode == lost.MessageCode {
			m.lostEvents = append(m.lostEvents[:i], m.lostEvents[i+1:]...)
			break
		}
	}
	m.subMu.Unlock()
	return eventID, nil
}
