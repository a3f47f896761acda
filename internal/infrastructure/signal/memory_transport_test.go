package signal

import (
	"context"
	"fmt"
	"testing"

	"famcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransport_DeliversInOrder(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	var got []string
	_, err := tr.Subscribe(ctx, "call-1", func(msg *domain.SignalMessage) {
		got = append(got, msg.SDP)
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, tr.Send(ctx, "call-1", &domain.SignalMessage{
			Kind: domain.KindOffer, CallID: "call-1", SDP: fmt.Sprintf("sdp-%d", i),
		}))
	}

	require.Len(t, got, 10)
	for i, sdp := range got {
		assert.Equal(t, fmt.Sprintf("sdp-%d", i), sdp)
	}
}

func TestMemoryTransport_ChannelsAreIsolated(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	var one, two int
	_, err := tr.Subscribe(ctx, "call-1", func(*domain.SignalMessage) { one++ })
	require.NoError(t, err)
	_, err = tr.Subscribe(ctx, "call-2", func(*domain.SignalMessage) { two++ })
	require.NoError(t, err)

	require.NoError(t, tr.Send(ctx, "call-1", &domain.SignalMessage{Kind: domain.KindTerminate, CallID: "call-1"}))

	assert.Equal(t, 1, one)
	assert.Zero(t, two)
}

func TestMemoryTransport_CloseStopsDelivery(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	count := 0
	sub, err := tr.Subscribe(ctx, "call-1", func(*domain.SignalMessage) { count++ })
	require.NoError(t, err)

	require.NoError(t, tr.Send(ctx, "call-1", &domain.SignalMessage{Kind: domain.KindTerminate, CallID: "call-1"}))
	require.NoError(t, sub.Close())
	require.NoError(t, tr.Send(ctx, "call-1", &domain.SignalMessage{Kind: domain.KindTerminate, CallID: "call-1"}))

	assert.Equal(t, 1, count)
}

func TestMemoryTransport_InviteChannelPerUser(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	var bobGot []*domain.SignalMessage
	_, err := tr.SubscribeInvites(ctx, "bob", func(msg *domain.SignalMessage) {
		bobGot = append(bobGot, msg)
	})
	require.NoError(t, err)

	require.NoError(t, tr.SendInvite(ctx, "bob", &domain.SignalMessage{
		Kind: domain.KindInvite, CallID: "call-1", Sender: "alice", SDP: "v=0",
	}))
	require.NoError(t, tr.SendInvite(ctx, "carol", &domain.SignalMessage{
		Kind: domain.KindInvite, CallID: "call-2", Sender: "alice", SDP: "v=0",
	}))

	require.Len(t, bobGot, 1)
	assert.Equal(t, domain.CallID("call-1"), bobGot[0].CallID)
}

func TestMemoryTransport_InjectedSubscribeFailures(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	tr.FailNextSubscribes(2)
	_, err := tr.Subscribe(ctx, "call-1", func(*domain.SignalMessage) {})
	assert.ErrorIs(t, err, domain.ErrSignalingUnavailable)
	_, err = tr.Subscribe(ctx, "call-1", func(*domain.SignalMessage) {})
	assert.ErrorIs(t, err, domain.ErrSignalingUnavailable)

	_, err = tr.Subscribe(ctx, "call-1", func(*domain.SignalMessage) {})
	assert.NoError(t, err, "failure injection is exhausted")
}
