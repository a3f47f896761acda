package validation

import (
	"strings"
	"testing"

	"famcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestValidateSignalMessage(t *testing.T) {
	mid := "0"
	tests := []struct {
		name    string
		msg     *domain.SignalMessage
		wantErr bool
	}{
		{"nil message", nil, true},
		{"missing call id", &domain.SignalMessage{Kind: domain.KindOffer, SDP: "v=0"}, true},
		{"valid offer", &domain.SignalMessage{Kind: domain.KindOffer, CallID: "c1", SDP: "v=0"}, false},
		{"offer without sdp", &domain.SignalMessage{Kind: domain.KindOffer, CallID: "c1"}, true},
		{"oversized sdp", &domain.SignalMessage{Kind: domain.KindAnswer, CallID: "c1", SDP: strings.Repeat("a", maxSDPBytes+1)}, true},
		{"valid candidate", &domain.SignalMessage{
			Kind: domain.KindCandidate, CallID: "c1",
			Candidate: &domain.ICECandidate{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 54321 typ host", SDPMid: &mid},
		}, false},
		{"end of candidates", &domain.SignalMessage{Kind: domain.KindCandidate, CallID: "c1", EndOfCandidates: true}, false},
		{"candidate with neither payload nor marker", &domain.SignalMessage{Kind: domain.KindCandidate, CallID: "c1"}, true},
		{"empty candidate string", &domain.SignalMessage{Kind: domain.KindCandidate, CallID: "c1", Candidate: &domain.ICECandidate{}}, true},
		{"terminate without reason", &domain.SignalMessage{Kind: domain.KindTerminate, CallID: "c1"}, false},
		{"valid invite", &domain.SignalMessage{Kind: domain.KindInvite, CallID: "c1", SDP: "v=0", Sender: "alice"}, false},
		{"invite without sender", &domain.SignalMessage{Kind: domain.KindInvite, CallID: "c1", SDP: "v=0"}, true},
		{"unknown kind", &domain.SignalMessage{Kind: "renegotiate", CallID: "c1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignalMessage(tt.msg)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidSignalMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
