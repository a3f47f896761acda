package ports

import (
	"context"

	"famcall/internal/core/domain"
)

// MediaSource acquires local capture devices. Device permission and
// availability are resolved here; a denial aborts the call attempt before a
// session is created.
type MediaSource interface {
	Acquire(ctx context.Context, constraints domain.MediaConstraints) (LocalMedia, error)
}

// LocalMedia owns the local outgoing tracks of one call. The quality monitor
// writes encoding targets through it but never replaces it; explicit user
// mute state always wins over monitor decisions.
type LocalMedia interface {
	// SenderCount reports how many outgoing tracks exist. Presets are a
	// no-op until at least one sender is attached to the link.
	SenderCount() int

	// SetUserEnabled records an explicit user decision for a track. A track
	// disabled here is never re-enabled by preset application.
	SetUserEnabled(kind domain.MediaKind, enabled bool)

	// UserDisabled reports whether the user explicitly disabled a track.
	UserDisabled(kind domain.MediaKind) bool

	// ApplyPreset adjusts bitrate/resolution targets and track enablement
	// for tracks the user has not disabled.
	ApplyPreset(preset domain.TierPreset)

	// ForceVideoOff disables video regardless of tier bookkeeping, for the
	// hard bandwidth floor. Audio is never turned off by the engine.
	ForceVideoOff()

	// Enabled reports whether a track is currently live.
	Enabled(kind domain.MediaKind) bool

	// Release stops capture and frees the devices.
	Release()
}
