package table

import (
	"context"
	"fmt"
	"time"

	"jauscore/component/internal/logging"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/wire"
)

// Subscribe asks provider to establish a periodic service connection for
// messageCode at rateHz and blocks until the provider confirms, rejects, the
// deadline passes, or ctx is canceled. On success, handler is invoked with
// every decoded report arriving from provider under messageCode until
// Unsubscribe is called or the connection is swept as lost.
func (t *Table) Subscribe(ctx context.Context, provider wire.Address, messageCode uint16, presenceVector uint32, rateHz float64, handler func(registry.Message), timeout time.Duration) (uint8, error) {
	key := pendingKey{provider: provider, messageCode: messageCode}
	waiter := make(chan *messages.ConfirmServiceConnection, 1)

	t.subMu.Lock()
	t.pending[key] = waiter
	if !t.registeredCodes[messageCode] {
		t.registeredCodes[messageCode] = true
		t.eng.RegisterHandler(messageCode, t.handleInformReport)
	}
	t.subMu.Unlock()

	cleanup := func() {
		t.subMu.Lock()
		delete(t.pending, key)
		t.subMu.Unlock()
	}

	req := &messages.CreateServiceConnection{MessageCode: messageCode, PeriodicRateHz: rateHz, PresenceVector: presenceVector}
	if err := t.eng.Send(ctx, provider, req); err != nil {
		cleanup()
		return 0, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case confirm := <-waiter:
		if confirm.ResponseCode != messages.SCResponseCreated {
			return 0, fmt.Errorf("table: service connection rejected (code %d)", confirm.ResponseCode)
		}
		t.registerSubscription(provider, confirm.InstanceID, messageCode, presenceVector, confirm.ConfirmedRate, handler)
		return confirm.InstanceID, nil
	case <-timer.C:
		cleanup()
		return 0, ErrConfirmTimeout
	case <-ctx.Done():
		cleanup()
		return 0, ctx.Err()
	}
}

func (t *Table) registerSubscription(provider wire.Address, instanceID uint8, messageCode uint16, presenceVector uint32, rateHz float64, handler func(registry.Message)) {
	interval := time.Second
	if rateHz > 0 {
		interval = time.Duration(float64(time.Second) / rateHz)
	}
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.subscriptions[subKey{provider: provider, messageCode: messageCode}] = &subscription{
		provider:         provider,
		instanceID:       instanceID,
		messageCode:      messageCode,
		presenceVector:   presenceVector,
		rateHz:           rateHz,
		handler:          handler,
		lastReceived:     t.now(),
		expectedInterval: interval,
	}
}

// Unsubscribe terminates a previously confirmed service connection.
func (t *Table) Unsubscribe(ctx context.Context, provider wire.Address, instanceID uint8, messageCode uint16) error {
	key := subKey{provider: provider, messageCode: messageCode}
	t.subMu.Lock()
	_, exists := t.subscriptions[key]
	if exists {
		delete(t.subscriptions, key)
	}
	t.subMu.Unlock()
	if !exists {
		return ErrUnknownConnection
	}
	term := messages.NewTerminateServiceConnection()
	term.MessageCode = messageCode
	term.InstanceID = instanceID
	return t.eng.Send(ctx, provider, term)
}

func (t *Table) handleConfirmServiceConnection(_ context.Context, hdr wire.Header, raw registry.Message) {
	confirm, ok := raw.(*messages.ConfirmServiceConnection)
	if !ok {
		return
	}
	key := pendingKey{provider: hdr.Source, messageCode: confirm.MessageCode}
	t.subMu.Lock()
	waiter, exists := t.pending[key]
	if exists {
		delete(t.pending, key)
	}
	t.subMu.Unlock()
	if exists {
		waiter <- confirm
	}
}

func (t *Table) handleInformReport(_ context.Context, hdr wire.Header, raw registry.Message) {
	key := subKey{provider: hdr.Source, messageCode: hdr.CommandCode}
	t.subMu.Lock()
	sub, exists := t.subscriptions[key]
	if exists {
		sub.lastReceived = t.now()
	}
	t.subMu.Unlock()
	if !exists {
		return
	}
	sub.handler(raw)
}
