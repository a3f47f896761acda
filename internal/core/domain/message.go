package domain

import "encoding/json"

// MessageKind is the signaling message discriminator.
type MessageKind string

const (
	KindOffer     MessageKind = "offer"
	KindAnswer    MessageKind = "answer"
	KindCandidate MessageKind = "candidate"
	KindTerminate MessageKind = "terminate"
	KindInvite    MessageKind = "invite"
)

// ICECandidate mirrors the trickle-ICE wire shape. A nil *ICECandidate in a
// candidate message means end-of-candidates and must be forwarded as such,
// never filtered.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// SignalMessage is the transport-agnostic signaling envelope exchanged
// between exactly two parties over the channel keyed by CallID.
type SignalMessage struct {
	Kind      MessageKind   `json:"kind"`
	CallID    CallID        `json:"call_id"`
	Sender    UserID        `json:"sender,omitempty"`
	Target    UserID        `json:"target,omitempty"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`
	// EndOfCandidates distinguishes an explicit nil candidate from a
	// message that simply has no candidate payload.
	EndOfCandidates bool   `json:"end_of_candidates,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func (m *SignalMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalSignalMessage(data []byte) (*SignalMessage, error) {
	var m SignalMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
