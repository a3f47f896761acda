package ports

import (
	"context"

	"famcall/internal/core/domain"
)

// LinkState is the reduced connection state of a peer link, collapsing ICE
// and DTLS detail into what the engine acts on.
type LinkState string

const (
	LinkNew          LinkState = "new"
	LinkConnecting   LinkState = "connecting"
	LinkConnected    LinkState = "connected"
	LinkDisconnected LinkState = "disconnected"
	LinkFailed       LinkState = "failed"
	LinkClosed       LinkState = "closed"
)

// PeerLink abstracts the single native peer connection owned by a call
// session. Exactly one live link exists per session; reconnection mutates it
// rather than replacing the session.
type PeerLink interface {
	// CreateOffer produces a local offer and applies it as the local
	// description. iceRestart forces fresh ICE credentials.
	CreateOffer(ctx context.Context, iceRestart bool) (string, error)

	// CreateAnswer produces a local answer against the current remote offer
	// and applies it as the local description.
	CreateAnswer(ctx context.Context) (string, error)

	// SetRemoteDescription applies the remote offer or answer.
	SetRemoteDescription(ctx context.Context, kind domain.MessageKind, sdp string) error

	// AddRemoteCandidate forwards a remote ICE candidate. A nil candidate is
	// the end-of-candidates marker and is forwarded, not discarded.
	AddRemoteCandidate(candidate *domain.ICECandidate) error

	// HasRemoteDescription reports whether a remote description is applied.
	HasRemoteDescription() bool

	// SignalingStable reports whether the link can accept a new remote offer.
	SignalingStable() bool

	// OnLocalCandidate registers the trickle-ICE callback. The callback
	// receives nil once gathering completes.
	OnLocalCandidate(fn func(*domain.ICECandidate))

	// OnStateChange registers the connection state callback.
	OnStateChange(fn func(LinkState))

	// OnRemoteMediaChange fires when a remote track is muted or unmuted.
	OnRemoteMediaChange(fn func(kind domain.MediaKind, disabled bool))

	// Stats pulls the current transport-level counters.
	Stats(ctx context.Context) (domain.TransportStats, error)

	Close() error
}

// PeerLinkFactory builds a link with the local media already attached.
type PeerLinkFactory interface {
	NewLink(ctx context.Context, media LocalMedia) (PeerLink, error)
}
