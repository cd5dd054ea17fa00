package table

import (
	"context"

	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
)

func (t *Table) handleCreateServiceConnection(ctx context.Context, hdr wire.Header, raw registry.Message) {
	req, ok := raw.(*messages.CreateServiceConnection)
	if !ok {
		return
	}

	desc, err := t.reg.Lookup(req.MessageCode)
	if err != nil {
		t.reply(ctx, hdr.Source, req.MessageCode, 0, 0, messages.SCResponseUnsupportedMessage)
		return
	}
	isCommand := desc.Kind == registry.KindCommand

	t.mu.Lock()
	if hook := t.requestHook; hook != nil {
		ok, negotiatedRate, responseCode := hook(hdr.Source, req)
		if !ok {
			t.mu.Unlock()
			t.reply(ctx, hdr.Source, req.MessageCode, 0, 0, responseCode)
			return
		}
		if negotiatedRate > 0 {
			req.PeriodicRateHz = negotiatedRate
		}
	}
	if !isCommand {
		if _, known := t.producers[req.MessageCode]; !known {
			t.mu.Unlock()
			t.reply(ctx, hdr.Source, req.MessageCode, 0, 0, messages.SCResponseUnsupportedMessage)
			return
		}
	}

	key := connKey{messageCode: req.MessageCode, presenceVector: req.PresenceVector}
	conn, exists := t.byKey[key]
	if !exists {
		id := t.nextInstanceIDLocked(req.MessageCode)
		if id == 0 {
			t.mu.Unlock()
			t.reply(ctx, hdr.Source, req.MessageCode, 0, 0, messages.SCResponseTableFull)
			return
		}
		conn = &producedConnection{
			instanceID:       id,
			messageCode:      req.MessageCode,
			presenceVector:   req.PresenceVector,
			status:           StatusActive,
			isCommand:        isCommand,
			currentCommander: -1,
		}
		t.byKey[key] = conn
	}

	if isCommand {
		addCommanderLocked(conn, hdr.Source, hdr.Priority)
		t.recomputeCommanderLocked(conn)
	} else if !containsAddress(conn.requestors, hdr.Source) {
		conn.requestors = append(conn.requestors, hdr.Source)
	}
	// One-to-many: a second Create for the same (code, presence vector)
	// reuses the existing instance id, and the faster rate dominates.
	if req.PeriodicRateHz > conn.rateHz {
		conn.rateHz = req.PeriodicRateHz
	}
	confirmedRate, instanceID := conn.rateHz, conn.instanceID
	t.mu.Unlock()

	t.reply(ctx, hdr.Source, req.MessageCode, instanceID, confirmedRate, messages.SCResponseCreated)
}

func addCommanderLocked(conn *producedConnection, address wire.Address, priority uint8) {
	for i := range conn.commanders {
		if conn.commanders[i].address == address {
			conn.commanders[i].priority = priority
			conn.commanders[i].active = true
			return
		}
	}
	conn.commanders = append(conn.commanders, commanderEntry{address: address, priority: priority, active: true})
}

func containsAddress(addrs []wire.Address, target wire.Address) bool {
	for _, a := range addrs {
		if a == target {
			return true
		}
	}
	return false
}

func (t *Table) reply(ctx context.Context, dest wire.Address, messageCode uint16, instanceID uint8, confirmedRate float64, responseCode uint8) {
	confirm := &messages.ConfirmServiceConnection{
		MessageCode:   messageCode,
		InstanceID:    instanceID,
		ConfirmedRate: confirmedRate,
		ResponseCode:  responseCode,
	}
	if err := t.eng.Send(ctx, dest, confirm); err != nil {
		t.log.Warn("failed to send service connection confirmation", logging.Error(err))
	}
}

func (t *Table) handleSuspendServiceConnection(_ context.Context, hdr wire.Header, raw registry.Message) {
	msg, ok := raw.(*messages.SuspendServiceConnection)
	if !ok {
		return
	}
	t.withOwnedConnection(msg.MessageCode, msg.InstanceID, hdr.Source, func(conn *producedConnection) {
		conn.status = StatusSuspended
	})
}

func (t *Table) handleActivateServiceConnection(_ context.Context, hdr wire.Header, raw registry.Message) {
	msg, ok := raw.(*messages.ActivateServiceConnection)
	if !ok {
		return
	}
	t.withOwnedConnection(msg.MessageCode, msg.InstanceID, hdr.Source, func(conn *producedConnection) {
		conn.status = StatusActive
	})
}

func (t *Table) handleTerminateServiceConnection(_ context.Context, hdr wire.Header, raw registry.Message) {
	msg, ok := raw.(*messages.TerminateServiceConnection)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, conn := range t.byKey {
		if conn.messageCode != msg.MessageCode || conn.instanceID != msg.InstanceID {
			continue
		}
		if conn.isCommand {
			removeCommanderLocked(conn, hdr.Source)
			if len(conn.commanders) == 0 {
				delete(t.byKey, key)
			} else {
				t.recomputeCommanderLocked(conn)
			}
			return
		}
		conn.requestors = removeAddress(conn.requestors, hdr.Source)
		if len(conn.requestors) == 0 {
			delete(t.byKey, key)
		}
		return
	}
}

func removeCommanderLocked(conn *producedConnection, address wire.Address) {
	for i, c := range conn.commanders {
		if c.address == address {
			conn.commanders = append(conn.commanders[:i], conn.commanders[i+1:]...)
			return
		}
	}
}

func removeAddress(addrs []wire.Address, target wire.Address) []wire.Address {
	out := addrs[:0]
	for _, a := range addrs {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}

// withOwnedConnection looks up the produced connection for (messageCode,
// instanceID) across every presence vector variant and applies fn if
// requester is a known party to it (requestor or commander).
func (t *Table) withOwnedConnection(messageCode uint16, instanceID uint8, requester wire.Address, fn func(conn *producedConnection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, conn := range t.byKey {
		if conn.messageCode != messageCode || conn.instanceID != instanceID {
			continue
		}
		if conn.isCommand && !containsAddress(commanderAddresses(conn), requester) {
			continue
		}
		if !conn.isCommand && !containsAddress(conn.requestors, requester) {
			continue
		}
		fn(conn)
		return
	}
}

func commanderAddresses(conn *producedConnection) []wire.Address {
	out := make([]wire.Address, len(conn.commanders))
	for i, c := range conn.commanders {
		out[i] = c.address
	}
	return out
}
