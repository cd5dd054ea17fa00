package events

import (
	"context"

	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
)

func (m *Manager) handleCreateEventRequest(ctx context.Context, hdr wire.Header, raw registry.Message) {
	req, ok := raw.(*messages.CreateEventRequest)
	if !ok {
		return
	}

	m.mu.Lock()
	_, known := m.producers[req.MessageCode]
	if !known {
		m.mu.Unlock()
		m.reject(ctx, hdr.Source, req.RequestID, messages.EventResponseUnsupportedMessage, "no producer registered for message code")
		return
	}

	if hook := m.requestHook; hook != nil {
		accept, negotiatedRate, responseCode, errMsg := hook(hdr.Source, req)
		if !accept {
			m.mu.Unlock()
			m.reject(ctx, hdr.Source, req.RequestID, responseCode, errMsg)
			return
		}
		if negotiatedRate > 0 {
			req.RequestedRate = negotiatedRate
		}
	}

	key := eventKey{messageCode: req.MessageCode, eventType: req.EventType, presenceVector: req.PresenceVector}
	sub, exists := m.byKey[key]
	if !exists {
		eventID := m.nextEventIDLocked(req.MessageCode)
		sub = &producedSubscriber{
			eventID:        eventID,
			messageCode:    req.MessageCode,
			eventType:      req.EventType,
			rateHz:         req.RequestedRate,
			presenceVector: req.PresenceVector,
		}
		m.produced[eventID] = sub
		m.byKey[key] = sub
	}
	if !containsAddress(sub.subscribers, hdr.Source) {
		sub.subscribers = append(sub.subscribers, hdr.Source)
	}
	// One-to-many: a second request for the same (code, event type, presence
	// vector) shares the existing event, and the faster rate dominates.
	if req.RequestedRate > sub.rateHz {
		sub.rateHz = req.RequestedRate
	}
	confirmedRate, eventID := sub.rateHz, sub.eventID
	m.mu.Unlock()

	confirm := &messages.ConfirmEventRequest{RequestID: req.RequestID, EventID: eventID, ConfirmedRate: confirmedRate}
	if err := m.eng.Send(ctx, hdr.Source, confirm); err != nil {
		m.log.Warn("failed to send event confirmation", logging.Error(err))
	}
}

func (m *Manager) handleUpdateEvent(ctx context.Context, hdr wire.Header, raw registry.Message) {
	upd, ok := raw.(*messages.UpdateEvent)
	if !ok {
		return
	}

	m.mu.Lock()
	sub, exists := m.produced[upd.EventID]
	if !exists || !containsAddress(sub.subscribers, hdr.Source) {
		m.mu.Unlock()
		// ConfirmEventRequest has no dedicated RequestID on UpdateEvent;
		// this component reuses the event id itself for correlation.
		m.reject(ctx, hdr.Source, upd.EventID, messages.EventResponseConditionsNotMet, "no such event to update")
		return
	}

	oldKey := eventKey{messageCode: sub.messageCode, eventType: sub.eventType, presenceVector: sub.presenceVector}
	newKey := eventKey{messageCode: upd.MessageCode, eventType: upd.EventType, presenceVector: upd.PresenceVector}

	var confirmedRate float64
	var eventID uint8
	if len(sub.subscribers) == 1 || oldKey == newKey {
		// Either the sole subscriber of this event, or the update keeps its
		// sharing key unchanged: safe to mutate the shared entry in place.
		if oldKey != newKey {
			delete(m.byKey, oldKey)
			m.byKey[newKey] = sub
		}
		sub.messageCode = upd.MessageCode
		sub.eventType = upd.EventType
		sub.presenceVector = upd.PresenceVector
		if len(sub.subscribers) == 1 {
			sub.rateHz = upd.RequestedRate
		} else if upd.RequestedRate > sub.rateHz {
			sub.rateHz = upd.RequestedRate
		}
		sub.lastEncoded = nil
		confirmedRate, eventID = sub.rateHz, sub.eventID
	} else {
		// Other subscribers still want the event's current parameters:
		// split this requester into its own event (or an existing one that
		// already shares its new key) instead of mutating shared state.
		sub.subscribers = removeAddress(sub.subscribers, hdr.Source)
		target, ok := m.byKey[newKey]
		if !ok {
			newID := m.nextEventIDLocked(upd.MessageCode)
			target = &producedSubscriber{
				eventID:        newID,
				messageCode:    upd.MessageCode,
				eventType:      upd.EventType,
				rateHz:         upd.RequestedRate,
				presenceVector: upd.PresenceVector,
			}
			m.produced[newID] = target
			m.byKey[newKey] = target
		}
		if !containsAddress(target.subscribers, hdr.Source) {
			target.subscribers = append(target.subscribers, hdr.Source)
		}
		if upd.RequestedRate > target.rateHz {
			target.rateHz = upd.RequestedRate
		}
		confirmedRate, eventID = target.rateHz, target.eventID
	}
	m.mu.Unlock()

	confirm := &messages.ConfirmEventRequest{RequestID: upd.EventID, EventID: eventID, ConfirmedRate: confirmedRate}
	if err := m.eng.Send(ctx, hdr.Source, confirm); err != nil {
		m.log.Warn("failed to send event update confirmation", logging.Error(err))
	}
}

func (m *Manager) handleCancelEvent(_ context.Context, hdr wire.Header, raw registry.Message) {
	cancel, ok := raw.(*messages.CancelEvent)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, exists := m.produced[cancel.EventID]
	if !exists || !containsAddress(sub.subscribers, hdr.Source) {
		return
	}
	sub.subscribers = removeAddress(sub.subscribers, hdr.Source)
	if len(sub.subscribers) == 0 {
		delete(m.produced, cancel.EventID)
		delete(m.byKey, eventKey{messageCode: sub.messageCode, eventType: sub.eventType, presenceVector: sub.presenceVector})
	}
}

func (m *Manager) reject(ctx context.Context, dest wire.Address, requestID, code uint8, reason string) {
	resp := &messages.RejectEventRequest{RequestID: requestID, ResponseCode: code, ErrorMessage: reason}
	if err := m.eng.Send(ctx, dest, resp); err != nil {
		m.log.Warn("failed to send event rejection", logging.Error(err))
	}
}
