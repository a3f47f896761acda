package domain

import "time"

type CallID string

type UserID string

// Role is the local side of a call.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// CallState values follow the call lifecycle. Ended is terminal.
type CallState string

const (
	StateIdle         CallState = "idle"
	StateDialing      CallState = "dialing"
	StateRinging      CallState = "ringing"
	StateConnecting   CallState = "connecting"
	StateActive       CallState = "active"
	StateReconnecting CallState = "reconnecting"
	StateEnded        CallState = "ended"
)

// EndReason classifies why a call reached the ended state.
type EndReason string

const (
	EndReasonLocalHangup  EndReason = "local_hangup"
	EndReasonRemoteHangup EndReason = "remote_hangup"
	EndReasonDeclined     EndReason = "declined"
	EndReasonICEFailure   EndReason = "ice_failure"
	EndReasonDisconnected EndReason = "disconnected"
	EndReasonMediaDenied  EndReason = "media_denied"
	EndReasonSignaling    EndReason = "signaling_unavailable"
	EndReasonNoAnswer     EndReason = "no_answer"
	EndReasonMissed       EndReason = "missed"
	EndReasonBusy         EndReason = "busy"
)

// EndedBy records which party triggered termination. Informational only:
// local cleanup runs the same way regardless of the value.
type EndedBy string

const (
	EndedByLocal  EndedBy = "local"
	EndedByRemote EndedBy = "remote"
	EndedBySystem EndedBy = "system"
)

// MediaConstraints is the capability profile the collaborator hands the
// engine when placing or accepting a call.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// CallInfo is the observable snapshot of a session handed to collaborators.
type CallInfo struct {
	ID        CallID
	Role      Role
	Remote    UserID
	State     CallState
	EndedBy   EndedBy
	EndReason EndReason
	StartedAt time.Time
	EndedAt   time.Time
}

// MediaKind identifies a track direction-independent media type.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)
