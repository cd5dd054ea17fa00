package events

import (
	"context"
	"fmt"
	"time"

	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
)

func (m *Manager) nextRequestIDLocked() uint8 {
	m.nextRequestID++
	return m.nextRequestID
}

// Subscribe asks provider to start generating events for messageCode and
// blocks until the provider confirms or rejects the request, the deadline
// passes, or ctx is canceled. On success, handler is invoked with every
// decoded report arriving under the assigned event id until Unsubscribe is
// called or the subscription is swept as lost.
func (m *Manager) Subscribe(ctx context.Context, provider wire.Address, messageCode uint16, eventType uint8, rateHz float64, presenceVector uint32, handler func(registry.Message), timeout time.Duration) (uint8, error) {
	m.subMu.Lock()
	requestID := m.nextRequestIDLocked()
	waiter := make(chan pendingRequest, 1)
	m.pending[requestID] = waiter
	m.subMu.Unlock()

	cleanup := func() {
		m.subMu.Lock()
		delete(m.pending, requestID)
		m.subMu.Unlock()
	}

	req := &messages.CreateEventRequest{
		RequestID:      requestID,
		EventType:      eventType,
		MessageCode:    messageCode,
		RequestedRate:  rateHz,
		PresenceVector: presenceVector,
	}
	if err := m.eng.Send(ctx, provider, req); err != nil {
		cleanup()
		return 0, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-waiter:
		if result.reject != nil {
			return 0, fmt.Errorf("events: subscription rejected (code %d): %s", result.reject.ResponseCode, result.reject.ErrorMessage)
		}
		confirm := result.confirm
		m.registerSubscription(provider, confirm.EventID, messageCode, eventType, confirm.ConfirmedRate, presenceVector, handler)
		return confirm.EventID, nil
	case <-timer.C:
		cleanup()
		return 0, ErrConfirmTimeout
	case <-ctx.Done():
		cleanup()
		return 0, ctx.Err()
	}
}

func (m *Manager) registerSubscription(provider wire.Address, eventID uint8, messageCode uint16, eventType uint8, rateHz float64, presenceVector uint32, handler func(registry.Message)) {
	interval := defaultEveryChangeInterval
	if eventType == messages.EventTypePeriodic && rateHz > 0 {
		interval = time.Duration(float64(time.Second) / rateHz)
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions[subscriptionKey{provider: provider, eventID: eventID}] = &subscription{
		provider:         provider,
		eventID:          eventID,
		messageCode:      messageCode,
		eventType:        eventType,
		rateHz:           rateHz,
		presenceVector:   presenceVector,
		handler:          handler,
		lastReceived:     m.now(),
		expectedInterval: interval,
	}
}

// Unsubscribe cancels a previously confirmed subscription.
func (m *Manager) Unsubscribe(ctx context.Context, provider wire.Address, eventID uint8, messageCode uint16) error {
	key := subscriptionKey{provider: provider, eventID: eventID}
	m.subMu.Lock()
	_, exists := m.subscriptions[key]
	if exists {
		delete(m.subscriptions, key)
	}
	m.subMu.Unlock()
	if !exists {
		return ErrUnknownSubscription
	}
	return m.eng.Send(ctx, provider, &messages.CancelEvent{EventID: eventID, MessageCode: messageCode})
}

func (m *Manager) handleConfirmEventRequest(_ context.Context, _ wire.Header, raw registry.Message) {
	confirm, ok := raw.(*messages.ConfirmEventRequest)
	if !ok {
		return
	}
	m.subMu.Lock()
	waiter, exists := m.pending[confirm.RequestID]
	if exists {
		delete(m.pending, confirm.RequestID)
	}
	m.subMu.Unlock()
	if exists {
		waiter <- pendingRequest{confirm: confirm}
	}
}

func (m *Manager) handleRejectEventRequest(_ context.Context, _ wire.Header, raw registry.Message) {
	reject, ok := raw.(*messages.RejectEventRequest)
	if !ok {
		return
	}
	m.subMu.Lock()
	waiter, exists := m.pending[reject.RequestID]
	if exists {
		delete(m.pending, reject.RequestID)
	}
	m.subMu.Unlock()
	if exists {
		waiter <- pendingRequest{reject: reject}
	}
}

func (m *Manager) handleEvent(_ context.Context, hdr wire.Header, raw registry.Message) {
	event, ok := raw.(*messages.Event)
	if !ok {
		return
	}
	key := subscriptionKey{provider: hdr.Source, eventID: event.EventID}

	m.subMu.Lock()
	sub, exists := m.subscriptions[key]
	if exists {
		sub.lastReceived = m.now()
	}
	m.subMu.Unlock()
	if !exists {
		return
	}

	report, err := m.reg.NewMessage(sub.messageCode)
	if err != nil {
		m.log.Debug("event for unregistered message code", logging.Error(err))
		return
	}
	if err := report.Decode(event.ReportBody); err != nil {
		m.log.Warn("failed to decode event report body", logging.Error(err))
		return
	}
	sub.handler(report)
}
