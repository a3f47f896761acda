package ports

import (
	"context"

	"famcall/internal/core/domain"
)

// CallEngine is the collaborator-facing surface. Authorization of who may
// call whom is resolved before any of these are invoked.
type CallEngine interface {
	PlaceCall(ctx context.Context, target domain.UserID, constraints domain.MediaConstraints) (CallHandle, error)
	AcceptCall(ctx context.Context, callID domain.CallID) (CallHandle, error)
	DeclineCall(ctx context.Context, callID domain.CallID) error
	EndCall(ctx context.Context, callID domain.CallID) error
}

// CallHandle is the per-call observation surface handed to the UI and
// notification layers. Callbacks are pion-style setter registrations.
type CallHandle interface {
	ID() domain.CallID
	Info() domain.CallInfo
	OnStateChange(fn func(domain.CallState))
	OnQualityChange(fn func(domain.QualityTier, domain.QualitySample))
	OnRemoteMediaChange(fn func(domain.MediaKind, bool))
	SetMuted(kind domain.MediaKind, muted bool) error
}
