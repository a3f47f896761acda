package domain

import "errors"

var (
	ErrCallNotFound         = errors.New("call not found")
	ErrCallAlreadyEnded     = errors.New("call already ended")
	ErrCallInProgress       = errors.New("another call is already in progress")
	ErrMediaAccessDenied    = errors.New("media device access denied")
	ErrSignalingUnavailable = errors.New("signaling channel unavailable")
	ErrInvalidSignalMessage = errors.New("invalid signaling message")
	ErrNotRinging           = errors.New("call is not in ringing state")
)
