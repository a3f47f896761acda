package ports

import (
	"context"

	"famcall/internal/core/domain"
)

// Subscription is a live signaling listener registration. Close guarantees
// no further delivery to the handler.
type Subscription interface {
	Close() error
}

// SignalTransport relays typed signaling messages between the two parties of
// a call. Delivery is best-effort and unordered across message kinds, but
// FIFO within the same kind from the same sender. The transport holds no
// call-domain state and never synthesizes or drops messages itself.
type SignalTransport interface {
	// Send delivers a message on the channel keyed by callID.
	Send(ctx context.Context, callID domain.CallID, msg *domain.SignalMessage) error

	// Subscribe registers a listener on the channel keyed by callID. Each
	// subscription attempt must be scoped by a fresh identifier so a prior
	// subscription for the same call that is still tearing down cannot
	// collide with it.
	Subscribe(ctx context.Context, callID domain.CallID, handler func(*domain.SignalMessage)) (Subscription, error)

	// SendInvite delivers an invite to a user's personal channel, reaching a
	// callee that is not yet observing any call channel.
	SendInvite(ctx context.Context, target domain.UserID, msg *domain.SignalMessage) error

	// SubscribeInvites registers the listener for the local user's personal
	// channel.
	SubscribeInvites(ctx context.Context, user domain.UserID, handler func(*domain.SignalMessage)) (Subscription, error)
}
