package webrtc

import (
	"testing"
	"time"

	"famcall/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestStatsCollector_ReceiverReportFolding(t *testing.T) {
	c := newStatsCollector()

	c.record([]rtcp.Packet{
		&rtcp.ReceiverReport{
			Reports: []rtcp.ReceptionReport{
				{
					FractionLost:     26, // ~10%
					Jitter:           4800,
					LastSenderReport: 1,
					Delay:            65536, // one second in DLSR units
				},
			},
		},
	}, 48000)

	loss, jitter, rtt := c.snapshot()
	assert.InDelta(t, 0.102, loss, 0.01)
	assert.Equal(t, 100*time.Millisecond, jitter)
	assert.Equal(t, time.Second, rtt)
}

func TestStatsCollector_IgnoresNonReceiverReports(t *testing.T) {
	c := newStatsCollector()
	c.record([]rtcp.Packet{&rtcp.SenderReport{}, &rtcp.PictureLossIndication{}}, 90000)

	loss, jitter, rtt := c.snapshot()
	assert.Zero(t, loss)
	assert.Zero(t, jitter)
	assert.Zero(t, rtt)
}

func TestStatsCollector_EmptyReportKeepsLastReading(t *testing.T) {
	c := newStatsCollector()
	c.record([]rtcp.Packet{
		&rtcp.ReceiverReport{Reports: []rtcp.ReceptionReport{{FractionLost: 51}}},
	}, 90000)

	before, _, _ := c.snapshot()
	c.record(nil, 90000)
	after, _, _ := c.snapshot()

	assert.Equal(t, before, after)
}

func TestMapConnectionState(t *testing.T) {
	tests := []struct {
		in   webrtc.PeerConnectionState
		want ports.LinkState
	}{
		{webrtc.PeerConnectionStateNew, ports.LinkNew},
		{webrtc.PeerConnectionStateConnecting, ports.LinkConnecting},
		{webrtc.PeerConnectionStateConnected, ports.LinkConnected},
		{webrtc.PeerConnectionStateDisconnected, ports.LinkDisconnected},
		{webrtc.PeerConnectionStateFailed, ports.LinkFailed},
		{webrtc.PeerConnectionStateClosed, ports.LinkClosed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapConnectionState(tt.in))
	}
}
