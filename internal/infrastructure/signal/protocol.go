package signal

import (
	"encoding/json"

	"famcall/internal/core/domain"
)

// Relay wire protocol: one envelope both directions. Clients publish and
// manage channel subscriptions; the relay pushes matching messages back.

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpDeliver     = "deliver"
)

// Envelope frames every WebSocket message between client and relay.
type Envelope struct {
	Op      string                `json:"op"`
	Channel string                `json:"channel"`
	Message *domain.SignalMessage `json:"message,omitempty"`
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// fanoutFrame wraps an envelope for the relay-to-relay Redis channel. The
// instance ID lets a relay skip frames it published itself.
type fanoutFrame struct {
	Instance string    `json:"instance"`
	Envelope *Envelope `json:"envelope"`
}

func MarshalFanout(instance string, env *Envelope) ([]byte, error) {
	return json.Marshal(fanoutFrame{Instance: instance, Envelope: env})
}

func UnmarshalFanout(data []byte) (string, *Envelope, error) {
	var f fanoutFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, err
	}
	return f.Instance, f.Envelope, nil
}

// CallChannel returns the relay channel name for a call.
func CallChannel(callID domain.CallID) string {
	return callChannelPrefix + string(callID)
}

// InviteChannel returns the relay channel name for a user's invites.
func InviteChannel(user domain.UserID) string {
	return inviteChannelPrefix + string(user)
}
