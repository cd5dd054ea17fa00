// Package discovery implements the discovery engine (component C8): it
// tracks which subsystems are currently visible through a standing
// EveryChange subscription to the local Node Manager's subsystem list,
// issues an identification/services/pose query sequence against every newly
// seen subsystem, and prunes the event manager (C5) and service-connection
// table (C6) of entries belonging to any subsystem that disappears.
package discovery

import (
	"context"
	"sync"
	"time"

	"jauscore/component/internal/engine"
	"jauscore/component/internal/events"
	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/table"
	"jauscore/component/internal/wire"
)

// ChangeKind classifies a platform lifecycle transition reported to Hook.
type ChangeKind int

const (
	Connect ChangeKind = iota
	Update
	Disconnect
)

func (k ChangeKind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Update:
		return "update"
	case Disconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Platform is an immutable snapshot of everything discovered about one
// subsystem.
//
// Grounded on original_source/1.0/include/jaus/services/.../platform.h's
// Configuration::Subsystem/Identification/GlobalPose trio, flattened into
// one plain struct rather than a class hierarchy of nested accessors.
type Platform struct {
	SubsystemID    byte
	NodeManager    wire.Address
	Configuration  []wire.Address
	Identification string
	Services       []string
	GlobalPose     *messages.ReportGlobalPose
}

// Hook is invoked outside any internal lock whenever a platform is
// discovered, updated, or lost.
type Hook func(platform Platform, kind ChangeKind)

type platformState struct {
	subsystemID    byte
	nodeManager    wire.Address
	configuration  []wire.Address
	identification string
	services       []string
	globalPose     *messages.ReportGlobalPose
}

func (p *platformState) snapshot() Platform {
	return Platform{
		SubsystemID:    p.subsystemID,
		NodeManager:    p.nodeManager,
		Configuration:  append([]wire.Address(nil), p.configuration...),
		Identification: p.identification,
		Services:       append([]string(nil), p.services...),
		GlobalPose:     p.globalPose,
	}
}

// Engine is the discovery engine. It owns no transport of its own: it rides
// on the event manager (C5) for its standing subscriptions and the send/
// receive engine (C4) for one-shot queries.
type Engine struct {
	self        wire.Address
	nodeManager wire.Address
	eng         *engine.Engine
	events      *events.Manager
	table       *table.Table
	log         *logging.Logger
	allowList   map[byte]bool

	mu         sync.Mutex
	subsystems map[byte]*platformState
	onChange   Hook
}

// New builds a discovery engine rooted at nodeManager, the address of this
// component's local Node Manager. allowList, if non-empty, restricts
// discovery to the named subsystem IDs.
func New(self, nodeManager wire.Address, eng *engine.Engine, ev *events.Manager, tbl *table.Table, log *logging.Logger, allowList []byte) *Engine {
	allow := make(map[byte]bool, len(allowList))
	for _, id := range allowList {
		allow[id] = true
	}
	return &Engine{
		self:        self,
		nodeManager: nodeManager,
		eng:         eng,
		events:      ev,
		table:       tbl,
		log:         log,
		allowList:   allow,
		subsystems:  make(map[byte]*platformState),
	}
}

// SetHook installs the callback fired on every platform connect/update/
// disconnect transition.
func (e *Engine) SetHook(hook Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = hook
}

// Platforms returns a snapshot of every currently known platform.
func (e *Engine) Platforms() []Platform {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Platform, 0, len(e.subsystems))
	for _, p := range e.subsystems {
		out = append(out, p.snapshot())
	}
	return out
}

func (e *Engine) allowed(id byte) bool {
	if id == e.self.Subsystem {
		return false
	}
	if len(e.allowList) == 0 {
		return true
	}
	return e.allowList[id]
}

// Start establishes the standing EveryChange subscription to the local Node
// Manager's subsystem list. It must be called once before discovery can
// make progress.
func (e *Engine) Start(ctx context.Context, timeout time.Duration) error {
	_, err := e.events.Subscribe(ctx, e.nodeManager, messages.CodeReportSubsystemList, messages.EventTypeEveryChange, 0, 0,
		e.handleSubsystemListChanged, timeout)
	return err
}

func (e *Engine) handleSubsystemListChanged(raw registry.Message) {
	report, ok := raw.(*messages.ReportSubsystemList)
	if !ok {
		return
	}

	seen := make(map[byte]bool, len(report.SubsystemIDs))
	var added []byte
	e.mu.Lock()
	for _, id := range report.SubsystemIDs {
		if !e.allowed(id) {
			continue
		}
		seen[id] = true
		if _, exists := e.subsystems[id]; !exists {
			e.subsystems[id] = &platformState{subsystemID: id, nodeManager: nodeManagerAddress(id)}
			added = append(added, id)
		}
	}
	var removed []*platformState
	for id, p := range e.subsystems {
		if !seen[id] {
			removed = append(removed, p)
			delete(e.subsystems, id)
		}
	}
	hook := e.onChange
	e.mu.Unlock()

	for _, p := range removed {
		e.events.EvictProvider(p.subsystemID)
		e.table.EvictProvider(p.subsystemID)
		if hook != nil {
			hook(p.snapshot(), Disconnect)
		}
	}
	for _, id := range added {
		e.mu.Lock()
		p := e.subsystems[id]
		e.mu.Unlock()
		if hook != nil && p != nil {
			hook(p.snapshot(), Connect)
		}
		e.rearmLost(id)
		e.onNewSubsystem(id)
	}
}

// rearmLost re-subscribes every event and service connection parked as lost
// against a subsystem that has just reappeared, restoring whatever standing
// subscriptions that subsystem's departure had left stranded.
func (e *Engine) rearmLost(subsystemID byte) {
	ctx := context.Background()
	for _, lost := range e.events.LostEvents() {
		if lost.Provider.Subsystem != subsystemID {
			continue
		}
		if _, err := e.events.Rearm(ctx, lost, 5*time.Second); err != nil {
			e.log.Warn("failed to rearm lost event", logging.Error(err), logging.String("provider", lost.Provider.String()))
		}
	}
	for _, lost := range e.table.LostConnections() {
		if lost.Provider.Subsystem != subsystemID {
			continue
		}
		if _, err := e.table.Rearm(ctx, lost, 5*time.Second); err != nil {
			e.log.Warn("failed to rearm lost connection", logging.Error(err), logging.String("provider", lost.Provider.String()))
		}
	}
}

// DisconnectAll fires a Disconnect hook call for every currently known
// platform and forgets it. It does not touch the event manager or
// service-connection table directly; their own InvalidateAll methods handle
// parking subscriptions when the transport goes down. The component calls
// this alongside those InvalidateAll calls so observers see every affected
// platform leave at once, rather than waiting for the next subsystem-list
// update to notice they are all gone.
func (e *Engine) DisconnectAll() {
	e.mu.Lock()
	platforms := make([]*platformState, 0, len(e.subsystems))
	for _, p := range e.subsystems {
		platforms = append(platforms, p)
	}
	e.subsystems = make(map[byte]*platformState)
	hook := e.onChange
	e.mu.Unlock()

	for _, p := range platforms {
		if hook != nil {
			hook(p.snapshot(), Disconnect)
		}
	}
}

// nodeManagerAddress derives the address of a newly seen subsystem's Node
// Manager. This component has no separate node-manager-discovery message to
// learn that address precisely, so it assumes the reference architecture's
// common convention of a Node Manager living at (subsystem, node=1,
// component=1, instance=1) — recorded as an Open Question decision.
func nodeManagerAddress(subsystemID byte) wire.Address {
	return wire.Address{Subsystem: subsystemID, Node: 1, Component: 1, Instance: 1}
}

// onNewSubsystem issues the query/create-event sequence the reference
// architecture runs against every newly discovered subsystem: Query
// Identification, Query Services and Query Global Pose round trips, plus a
// standing EveryChange subscription to that subsystem's Report
// Configuration — matching the original SubscriberComponent::
// ProcessDiscoveryEvent sequence of a Query Identification followed by a
// Create Event Request.
func (e *Engine) onNewSubsystem(id byte) {
	ctx := context.Background()
	addr := nodeManagerAddress(id)

	go e.queryIdentification(ctx, addr)
	go e.queryServices(ctx, addr)
	go e.queryGlobalPose(ctx, addr)

	if _, err := e.events.Subscribe(ctx, addr, messages.CodeReportConfiguration, messages.EventTypeEveryChange, 0, 0,
		func(raw registry.Message) { e.handleConfigurationChanged(id, raw) }, 5*time.Second); err != nil {
		e.log.Warn("failed to subscribe to report configuration", logging.Error(err), logging.String("subsystem", addr.String()))
	}
}

// queryIdentification sends a one-shot Query Identification; the reply
// arrives asynchronously on the handler registered by RegisterReplyHandlers.
func (e *Engine) queryIdentification(ctx context.Context, addr wire.Address) {
	req := &messages.QueryIdentification{Type: messages.IdentificationSubsystem}
	if err := e.eng.Send(ctx, addr, req); err != nil {
		e.log.Warn("failed to send query identification", logging.Error(err))
	}
}

func (e *Engine) queryServices(ctx context.Context, addr wire.Address) {
	if err := e.eng.Send(ctx, addr, &messages.QueryServices{}); err != nil {
		e.log.Warn("failed to send query services", logging.Error(err))
	}
}

func (e *Engine) queryGlobalPose(ctx context.Context, addr wire.Address) {
	if err := e.eng.Send(ctx, addr, &messages.QueryGlobalPose{}); err != nil {
		e.log.Warn("failed to send query global pose", logging.Error(err))
	}
}

func (e *Engine) handleConfigurationChanged(id byte, raw registry.Message) {
	report, ok := raw.(*messages.ReportConfiguration)
	if !ok {
		return
	}
	e.mu.Lock()
	p, exists := e.subsystems[id]
	if exists {
		p.configuration = append([]wire.Address(nil), report.Components...)
	}
	hook := e.onChange
	e.mu.Unlock()
	if exists && hook != nil {
		hook(p.snapshot(), Update)
	}
}

// RegisterReplyHandlers wires the inbound ReportIdentification/
// ReportServices/ReportGlobalPose handlers the one-shot queries above expect
// replies from. Kept separate from New so the embedder controls exactly
// when these global per-code handlers get installed on the shared engine.
func (e *Engine) RegisterReplyHandlers() {
	e.eng.RegisterHandler(messages.CodeReportIdentification, e.handleReportIdentification)
	e.eng.RegisterHandler(messages.CodeReportServices, e.handleReportServices)
	e.eng.RegisterHandler(messages.CodeReportGlobalPose, e.handleReportGlobalPose)
}

func (e *Engine) handleReportIdentification(_ context.Context, hdr wire.Header, raw registry.Message) {
	report, ok := raw.(*messages.ReportIdentification)
	if !ok {
		return
	}
	e.updatePlatform(hdr.Source.Subsystem, func(p *platformState) { p.identification = report.Identity })
}

func (e *Engine) handleReportServices(_ context.Context, hdr wire.Header, raw registry.Message) {
	report, ok := raw.(*messages.ReportServices)
	if !ok {
		return
	}
	e.updatePlatform(hdr.Source.Subsystem, func(p *platformState) { p.services = append([]string(nil), report.Services...) })
}

func (e *Engine) handleReportGlobalPose(_ context.Context, hdr wire.Header, raw registry.Message) {
	report, ok := raw.(*messages.ReportGlobalPose)
	if !ok {
		return
	}
	e.updatePlatform(hdr.Source.Subsystem, func(p *platformState) { p.globalPose = report })
}

func (e *Engine) updatePlatform(subsystemID byte, mutate func(*platformState)) {
	e.mu.Lock()
	p, exists := e.subsystems[subsystemID]
	if !exists {
		e.mu.Unlock()
		return
	}
	mutate(p)
	hook := e.onChange
	e.mu.Unlock()
	if hook != nil {
		hook(p.snapshot(), Update)
	}
}
