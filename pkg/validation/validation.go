package validation

import (
	"fmt"

	"famcall/internal/core/domain"
)

// maxSDPBytes bounds a session description; anything larger is hostile or
// corrupt.
const maxSDPBytes = 128 * 1024

// ValidateSignalMessage checks a signaling message for structural sanity
// before the engine acts on it. The transport forwards blindly; this runs at
// the engine boundary.
func ValidateSignalMessage(msg *domain.SignalMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", domain.ErrInvalidSignalMessage)
	}
	if msg.CallID == "" {
		return fmt.Errorf("%w: missing call_id", domain.ErrInvalidSignalMessage)
	}

	switch msg.Kind {
	case domain.KindOffer, domain.KindAnswer:
		if msg.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", domain.ErrInvalidSignalMessage, msg.Kind)
		}
		if len(msg.SDP) > maxSDPBytes {
			return fmt.Errorf("%w: sdp exceeds %d bytes", domain.ErrInvalidSignalMessage, maxSDPBytes)
		}
	case domain.KindCandidate:
		// A nil candidate is the end-of-candidates marker and must be
		// flagged explicitly so it survives JSON round-trips.
		if msg.Candidate == nil && !msg.EndOfCandidates {
			return fmt.Errorf("%w: candidate message with neither candidate nor end marker", domain.ErrInvalidSignalMessage)
		}
		if msg.Candidate != nil && msg.Candidate.Candidate == "" {
			return fmt.Errorf("%w: empty candidate string", domain.ErrInvalidSignalMessage)
		}
	case domain.KindTerminate:
		// Reason is informational; an empty one is accepted.
	case domain.KindInvite:
		if msg.SDP == "" {
			return fmt.Errorf("%w: invite without offer sdp", domain.ErrInvalidSignalMessage)
		}
		if msg.Sender == "" {
			return fmt.Errorf("%w: invite without sender", domain.ErrInvalidSignalMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidSignalMessage, msg.Kind)
	}

	return nil
}
