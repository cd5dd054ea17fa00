// Package table implements the service-connection table (component C6): the
// periodic-stream counterpart to the event manager, tracking both streams
// this component provides to others and streams this component has asked
// others to provide, with distinct per-message-code instance ID allocation
// and, for command-type connections, a commander set arbitrated by priority
// rather than a plain subscriber list.
package table

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jauscore/component/internal/engine"
	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
)

// Status mirrors the service connection's primary status field.
type Status int

const (
	StatusActive Status = iota
	StatusSuspended
	StatusTerminated
	StatusNotUpdating
)

// retransmitTimeout bounds the single Create Service Connection retry Sweep
// attempts before parking a connection whose provider has gone quiet.
const retransmitTimeout = 250 * time.Millisecond

// staleAfter returns how long a subscriber-side connection may go without an
// update before Sweep considers it lost: 500ms of slack plus one nominal
// delivery period. Command-type connections have no periodic rate, so they
// fall back to their registered expected interval instead.
func staleAfter(rateHz float64, fallback time.Duration) time.Duration {
	if rateHz <= 0 {
		return fallback + 500*time.Millisecond
	}
	return 500*time.Millisecond + time.Duration(1000.0/rateHz*float64(time.Millisecond))
}

// Producer supplies fresh report bodies for a message code this component
// provides over one or more service connections.
type Producer struct {
	MessageCode uint16
	Generate    func() (registry.Message, error)
}

// LostConnection is an immutable snapshot of a subscriber-side connection
// that stopped receiving updates and was parked rather than kept live.
type LostConnection struct {
	Provider       wire.Address
	InstanceID     uint8
	MessageCode    uint16
	PresenceVector uint32
	RateHz         float64
	Handler        func(registry.Message)
	LastUpdate     time.Time
}

// ReestablishHook is consulted before a stale subscriber-side connection is
// parked; returning true keeps it live and suppresses parking.
type ReestablishHook func(snapshot LostConnection) bool

// ControlHook fires whenever arbitration changes the active commander on a
// command-type connection this component provides.
type ControlHook func(messageCode uint16, instanceID uint8, commander wire.Address, acquired bool)

// SCRequestHook is consulted before a CreateServiceConnection is confirmed.
// It may veto the request by returning ok=false with a response code, or
// down-negotiate a periodic rate by returning a confirmedRate lower than
// requested. Returning ok=true with confirmedRate<=0 accepts the request as
// requested.
type SCRequestHook func(source wire.Address, req *messages.CreateServiceConnection) (ok bool, confirmedRate float64, responseCode uint8)

type connKey struct {
	messageCode    uint16
	presenceVector uint32
}

type commanderEntry struct {
	address  wire.Address
	priority uint8
	active   bool
}

// producedConnection is this component's provider-side record for a single
// (message code, presence vector) periodic stream.
type producedConnection struct {
	instanceID       uint8
	messageCode      uint16
	presenceVector   uint32
	rateHz           float64
	status           Status
	isCommand        bool
	requestors       []wire.Address
	commanders       []commanderEntry
	currentCommander int
	lastSent         time.Time
	lastEncoded      []byte
}

type subKey struct {
	provider    wire.Address
	messageCode uint16
}

// subscription is this component's subscriber-side record for a connection
// it asked another provider to establish.
type subscription struct {
	provider         wire.Address
	instanceID       uint8
	messageCode      uint16
	presenceVector   uint32
	rateHz           float64
	handler          func(registry.Message)
	lastReceived     time.Time
	expectedInterval time.Duration
}

type pendingKey struct {
	provider    wire.Address
	messageCode uint16
}

// Table is the service-connection table. Like the event manager, a single
// instance plays both the provider and subscriber role, since any JAUS
// component may do both at once.
type Table struct {
	eng       *engine.Engine
	reg       *registry.Registry
	log       *logging.Logger
	now       func() time.Time
	authority uint8

	mu              sync.Mutex
	producers       map[uint16]Producer
	byKey           map[connKey]*producedConnection
	usedInstanceIDs map[uint16]map[uint8]bool
	controlHook     ControlHook
	requestHook     SCRequestHook

	subMu           sync.Mutex
	pending         map[pendingKey]chan *messages.ConfirmServiceConnection
	subscriptions   map[subKey]*subscription
	registeredCodes map[uint16]bool
	lostConnections []LostConnection
	reestablishHook ReestablishHook
}

// New builds a Table wired to eng for transport and reg for report encoding,
// registering handlers for every service-connection protocol message.
// authority is this component's own authority code, used as the threshold a
// commander's priority must meet or exceed to gain control of a command-type
// connection; this component has no dedicated Access Control service, so a
// command's header priority field stands in for the commander's authority
// rather than a separate negotiated field.
func New(eng *engine.Engine, reg *registry.Registry, log *logging.Logger, now func() time.Time, authority uint8) *Table {
	if now == nil {
		now = time.Now
	}
	t := &Table{
		eng:             eng,
		reg:             reg,
		log:             log,
		now:             now,
		authority:       authority,
		producers:       make(map[uint16]Producer),
		byKey:           make(map[connKey]*producedConnection),
		usedInstanceIDs: make(map[uint16]map[uint8]bool),
		pending:         make(map[pendingKey]chan *messages.ConfirmServiceConnection),
		subscriptions:   make(map[subKey]*subscription),
		registeredCodes: make(map[uint16]bool),
	}
	eng.RegisterHandler(messages.CodeCreateServiceConnection, t.handleCreateServiceConnection)
	eng.RegisterHandler(messages.CodeSuspendServiceConnection, t.handleSuspendServiceConnection)
	eng.RegisterHandler(messages.CodeActivateServiceConnection, t.handleActivateServiceConnection)
	eng.RegisterHandler(messages.CodeTerminateServiceConnection, t.handleTerminateServiceConnection)
	eng.RegisterHandler(messages.CodeConfirmServiceConnection, t.handleConfirmServiceConnection)
	return t
}

// RegisterProducer declares that this component can generate messageCode
// reports for inform-type service connections.
func (t *Table) RegisterProducer(messageCode uint16, generate func() (registry.Message, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.producers[messageCode] = Producer{MessageCode: messageCode, Generate: generate}
}

// SetReestablishHook installs the policy consulted before a stale
// subscriber-side connection is parked.
func (t *Table) SetReestablishHook(hook ReestablishHook) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.reestablishHook = hook
}

// SetControlHook installs the callback fired when arbitration changes the
// active commander of a command-type connection this component provides.
func (t *Table) SetControlHook(hook ControlHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controlHook = hook
}

// SetSCRequestHook installs the policy consulted before a
// CreateServiceConnection is confirmed, letting callers veto a request or
// negotiate down its requested rate.
func (t *Table) SetSCRequestHook(hook SCRequestHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestHook = hook
}

// LostConnections returns a snapshot of subscriber-side connections parked
// as stale.
func (t *Table) LostConnections() []LostConnection {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	out := make([]LostConnection, len(t.lostConnections))
	copy(out, t.lostConnections)
	return out
}

// Authorize reports whether source currently holds control of the
// command-type connection identified by (messageCode, presenceVector).
// Embedders call this before acting on an inbound command delivered over a
// command-type service connection.
func (t *Table) Authorize(messageCode uint16, presenceVector uint32, source wire.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, exists := t.byKey[connKey{messageCode: messageCode, presenceVector: presenceVector}]
	if !exists || !conn.isCommand || conn.currentCommander < 0 {
		return false
	}
	return conn.commanders[conn.currentCommander].address == source
}

func (t *Table) nextInstanceIDLocked(messageCode uint16) uint8 {
	used := t.usedInstanceIDs[messageCode]
	if used == nil {
		used = make(map[uint8]bool)
		t.usedInstanceIDs[messageCode] = used
	}
	for id := uint8(1); id < 255; id++ {
		if !used[id] {
			used[id] = true
			return id
		}
	}
	return 0
}

// recomputeCommanderLocked re-sorts conn's commander set by (priority desc,
// address asc) and picks the first active entry whose priority is at least
// t.authority as the current commander, firing the control hook on change.
func (t *Table) recomputeCommanderLocked(conn *producedConnection) {
	sort.SliceStable(conn.commanders, func(i, j int) bool {
		if conn.commanders[i].priority != conn.commanders[j].priority {
			return conn.commanders[i].priority > conn.commanders[j].priority
		}
		return conn.commanders[i].address.Less(conn.commanders[j].address)
	})

	previous := -1
	if conn.currentCommander >= 0 && conn.currentCommander < len(conn.commanders) {
		previous = conn.currentCommander
	}
	var previousAddr wire.Address
	hadPrevious := previous >= 0
	if hadPrevious {
		previousAddr = conn.commanders[previous].address
	}

	next := -1
	for i, c := range conn.commanders {
		if c.active && c.priority >= t.authority {
			next = i
			break
		}
	}
	conn.currentCommander = next

	var nextAddr wire.Address
	hasNext := next >= 0
	if hasNext {
		nextAddr = conn.commanders[next].address
	}

	if hadPrevious && (!hasNext || previousAddr != nextAddr) && t.controlHook != nil {
		t.controlHook(conn.messageCode, conn.instanceID, previousAddr, false)
	}
	if hasNext && (!hadPrevious || previousAddr != nextAddr) && t.controlHook != nil {
		t.controlHook(conn.messageCode, conn.instanceID, nextAddr, true)
	}
}

// Tick generates and delivers any due inform-type connection whose update
// interval has elapsed. The subscription loop (C7) calls this every cycle;
// every connection is handled here whatever its rate, with no separate
// timer for connections at or above the HPT threshold.
func (t *Table) Tick(ctx context.Context) {
	type job struct {
		dest []wire.Address
		msg  registry.Message
	}

	t.mu.Lock()
	now := t.now()
	var jobs []job
	for _, conn := range t.byKey {
		if conn.isCommand || conn.status != StatusActive || conn.rateHz <= 0 {
			continue
		}
		interval := time.Duration(float64(time.Second) / conn.rateHz)
		if now.Sub(conn.lastSent) < interval {
			continue
		}
		producer, known := t.producers[conn.messageCode]
		if !known {
			continue
		}
		msg, err := producer.Generate()
		if err != nil {
			t.log.Warn("service connection producer failed", logging.Error(err), logging.String("code", fmt.Sprintf("0x%04X", conn.messageCode)))
			continue
		}
		conn.lastSent = now
		dest := make([]wire.Address, len(conn.requestors))
		copy(dest, conn.requestors)
		jobs = append(jobs, job{dest: dest, msg: msg})
	}
	t.mu.Unlock()

	for _, j := range jobs {
		for _, dest := range j.dest {
			if err := t.eng.Send(ctx, dest, j.msg); err != nil {
				t.log.Warn("failed to send service connection report", logging.Error(err), logging.String("dest", dest.String()))
			}
		}
	}
}

// Sweep checks every subscriber-side connection against its expected
// delivery interval. A connection found stale is given one chance to
// recover: a non-blocking retransmit of its Create Service Connection
// request with a short timeout. If that retransmit confirms, the
// connection's lastReceived is refreshed and nothing is parked; if it
// fails, the reestablish hook is consulted exactly as before and, absent a
// hook that takes responsibility, the connection is parked as lost.
func (t *Table) Sweep() {
	now := t.now()

	t.subMu.Lock()
	var staleKeys []subKey
	for key, sub := range t.subscriptions {
		if now.Sub(sub.lastReceived) > staleAfter(sub.rateHz, sub.expectedInterval) {
			staleKeys = append(staleKeys, key)
		}
	}
	t.subMu.Unlock()

	for _, key := range staleKeys {
		t.sweepOne(key)
	}
}

func (t *Table) sweepOne(key subKey) {
	t.subMu.Lock()
	sub, ok := t.subscriptions[key]
	if !ok {
		t.subMu.Unlock()
		return
	}
	now := t.now()
	if now.Sub(sub.lastReceived) <= staleAfter(sub.rateHz, sub.expectedInterval) {
		t.subMu.Unlock()
		return
	}
	provider, messageCode, presenceVector, rateHz, handler := sub.provider, sub.messageCode, sub.presenceVector, sub.rateHz, sub.handler
	t.subMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), retransmitTimeout)
	_, err := t.Subscribe(ctx, provider, messageCode, presenceVector, rateHz, handler, retransmitTimeout)
	cancel()
	if err == nil {
		return
	}

	t.subMu.Lock()
	defer t.subMu.Unlock()
	sub, ok = t.subscriptions[key]
	if !ok {
		return
	}
	t.parkLocked(key, sub)
}

// ProducedCount returns how many service connections this component is
// currently generating reports for, for the subscription loop's (C7) health
// snapshot.
func (t *Table) ProducedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

// HighRateProducedCount returns how many inform-type connections this
// component produces at or above thresholdHz; see Manager.HighRateProducedCount
// for why this component uses a uniform poll rather than a dedicated timer
// per high-rate entry.
func (t *Table) HighRateProducedCount(thresholdHz float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, conn := range t.byKey {
		if !conn.isCommand && conn.rateHz >= thresholdHz {
			n++
		}
	}
	return n
}

// EvictProvider removes every subscriber-side connection whose provider
// belongs to subsystemID, consulting the reestablish hook exactly as Sweep
// does. The discovery engine calls this the moment a subsystem disappears.
func (t *Table) EvictProvider(subsystemID byte) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for key, sub := range t.subscriptions {
		if sub.provider.Subsystem != subsystemID {
			continue
		}
		t.parkLocked(key, sub)
	}
}

// InvalidateAll parks every subscriber-side connection, regardless of
// provider, consulting the reestablish hook exactly as Sweep and
// EvictProvider do. The component calls this when the underlying transport
// reports a disconnect, since every outstanding connection is unreachable
// until it reconnects.
func (t *Table) InvalidateAll() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for key, sub := range t.subscriptions {
		t.parkLocked(key, sub)
	}
}

// parkLocked consults the reestablish hook for sub and, absent a hook that
// takes responsibility, deletes it and records it as lost. Callers must hold
// subMu.
func (t *Table) parkLocked(key subKey, sub *subscription) {
	snapshot := LostConnection{
		Provider:       sub.provider,
		InstanceID:     sub.instanceID,
		MessageCode:    sub.messageCode,
		PresenceVector: sub.presenceVector,
		RateHz:         sub.rateHz,
		Handler:        sub.handler,
		LastUpdate:     sub.lastReceived,
	}
	handled := false
	if t.reestablishHook != nil {
		handled = t.reestablishHook(snapshot)
	}
	if !handled {
		delete(t.subscriptions, key)
		t.lostConnections = append(t.lostConnections, snapshot)
	}
}

// Rearm re-subscribes to a parked lost connection using the presence
// vector, rate, and handler captured in its snapshot, and on success removes
// it from the lost-connections list. The discovery engine calls this when a
// subsystem that previously timed out reappears.
func (t *Table) Rearm(ctx context.Context, lost LostConnection, timeout time.Duration) (uint8, error) {
	instanceID, err := t.Subscribe(ctx, lost.Provider, lost.MessageCode, lost.PresenceVector, lost.RateHz, lost.Handler, timeout)
	if err != nil {
		return 0, err
	}

	t.subMu.Lock()
	for i, lc := range t.lostConnections {
		if lc.Provider == lost.Provider && lc.MessageCode == lost.MessageCode {
			t.lostConnections = append(t.lostConnections[:i], t.lostConnections[i+1:]...)
			break
		}
	}
	t.subMu.Unlock()
	return instanceID, nil
}
