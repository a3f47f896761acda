package signal

import (
	"context"
	"sync"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
)

// MemoryTransport relays signaling messages between engines in the same
// process. Used by tests and the loopback demo; the semantics match the
// Redis transport: best-effort delivery, FIFO per sender within a kind, no
// buffering for absent subscribers.
type MemoryTransport struct {
	mu          sync.RWMutex
	callSubs    map[domain.CallID]map[int]func(*domain.SignalMessage)
	inviteSubs  map[domain.UserID]map[int]func(*domain.SignalMessage)
	nextSub     int
	failNextSub int // transient subscribe failures to inject, for tests
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		callSubs:   make(map[domain.CallID]map[int]func(*domain.SignalMessage)),
		inviteSubs: make(map[domain.UserID]map[int]func(*domain.SignalMessage)),
	}
}

// FailNextSubscribes makes the next n Subscribe attempts fail, exercising
// the resubscribe-once rule.
func (t *MemoryTransport) FailNextSubscribes(n int) {
	t.mu.Lock()
	t.failNextSub = n
	t.mu.Unlock()
}

type memorySub struct {
	close func()
}

func (s *memorySub) Close() error {
	s.close()
	return nil
}

func (t *MemoryTransport) Send(ctx context.Context, callID domain.CallID, msg *domain.SignalMessage) error {
	t.mu.RLock()
	handlers := make([]func(*domain.SignalMessage), 0, len(t.callSubs[callID]))
	for _, h := range t.callSubs[callID] {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	// Synchronous dispatch keeps per-sender FIFO ordering.
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, callID domain.CallID, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	t.mu.Lock()
	if t.failNextSub > 0 {
		t.failNextSub--
		t.mu.Unlock()
		return nil, domain.ErrSignalingUnavailable
	}
	id := t.nextSub
	t.nextSub++
	if t.callSubs[callID] == nil {
		t.callSubs[callID] = make(map[int]func(*domain.SignalMessage))
	}
	t.callSubs[callID][id] = handler
	t.mu.Unlock()

	return &memorySub{close: func() {
		t.mu.Lock()
		delete(t.callSubs[callID], id)
		t.mu.Unlock()
	}}, nil
}

func (t *MemoryTransport) SendInvite(ctx context.Context, target domain.UserID, msg *domain.SignalMessage) error {
	t.mu.RLock()
	handlers := make([]func(*domain.SignalMessage), 0, len(t.inviteSubs[target]))
	for _, h := range t.inviteSubs[target] {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (t *MemoryTransport) SubscribeInvites(ctx context.Context, user domain.UserID, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	if t.inviteSubs[user] == nil {
		t.inviteSubs[user] = make(map[int]func(*domain.SignalMessage))
	}
	t.inviteSubs[user][id] = handler
	t.mu.Unlock()

	return &memorySub{close: func() {
		t.mu.Lock()
		delete(t.inviteSubs[user], id)
		t.mu.Unlock()
	}}, nil
}
