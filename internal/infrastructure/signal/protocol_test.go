package signal

import (
	"testing"

	"famcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_EndOfCandidatesSurvivesWire(t *testing.T) {
	env := &Envelope{
		Op:      OpPublish,
		Channel: CallChannel("call-1"),
		Message: &domain.SignalMessage{
			Kind:            domain.KindCandidate,
			CallID:          "call-1",
			Sender:          "alice",
			EndOfCandidates: true,
		},
	}

	data, err := env.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	require.NotNil(t, got.Message)
	assert.Nil(t, got.Message.Candidate)
	assert.True(t, got.Message.EndOfCandidates, "the end marker must be distinguishable from a missing candidate")
}

func TestFanout_CarriesInstanceID(t *testing.T) {
	env := &Envelope{Op: OpPublish, Channel: InviteChannel("bob"), Message: &domain.SignalMessage{
		Kind: domain.KindInvite, CallID: "call-1", Sender: "alice", SDP: "v=0",
	}}

	data, err := MarshalFanout("instance-a", env)
	require.NoError(t, err)

	instance, got, err := UnmarshalFanout(data)
	require.NoError(t, err)
	assert.Equal(t, "instance-a", instance)
	require.NotNil(t, got)
	assert.Equal(t, env.Channel, got.Channel)
	assert.Equal(t, domain.KindInvite, got.Message.Kind)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "famcall:call:call-1", CallChannel("call-1"))
	assert.Equal(t, "famcall:user:bob", InviteChannel("bob"))
	assert.NotEqual(t, CallChannel("x"), InviteChannel("x"))
}
