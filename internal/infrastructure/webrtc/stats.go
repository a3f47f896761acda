package webrtc

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// statsCollector accumulates RTCP-derived quality readings. Receiver reports
// from the remote side describe how well our outgoing media arrives, which
// is what the quality monitor acts on.
type statsCollector struct {
	mu     sync.Mutex
	loss   float64
	jitter time.Duration
	rtt    time.Duration
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (c *statsCollector) snapshot() (loss float64, jitter, rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loss, c.jitter, c.rtt
}

func (c *statsCollector) record(packets []rtcp.Packet, clockRate uint32) {
	var totalLost float64
	var totalJitter time.Duration
	var totalRTT time.Duration
	reports := 0
	rtts := 0

	for _, packet := range packets {
		rr, ok := packet.(*rtcp.ReceiverReport)
		if !ok {
			continue
		}
		for _, report := range rr.Reports {
			totalLost += float64(report.FractionLost) / 255.0
			if clockRate > 0 {
				totalJitter += time.Duration(float64(report.Jitter) / float64(clockRate) * float64(time.Second))
			}
			reports++

			if report.LastSenderReport != 0 && report.Delay != 0 {
				totalRTT += time.Duration(report.Delay) * time.Second / 65536
				rtts++
			}
		}
	}

	if reports == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loss = totalLost / float64(reports)
	c.jitter = totalJitter / time.Duration(reports)
	if rtts > 0 {
		c.rtt = totalRTT / time.Duration(rtts)
	}
}

// readSenderReports drains RTCP on every outgoing sender, feeding the
// collector with the remote side's receiver reports.
func (l *PionLink) readSenderReports() {
	for _, sender := range l.pc.GetSenders() {
		go func(sender *webrtc.RTPSender) {
			for {
				packets, _, err := sender.ReadRTCP()
				if err != nil {
					return
				}
				var clockRate uint32 = 90000
				if p := sender.GetParameters(); len(p.Codecs) > 0 {
					clockRate = p.Codecs[0].ClockRate
				}
				l.stats.record(packets, clockRate)
			}
		}(sender)
	}
}

// readReceiverReports drains RTCP on an incoming receiver. These packets are
// not folded into the quality score but must be read so the interceptor
// pipeline keeps flowing.
func (l *PionLink) readReceiverReports(receiver *webrtc.RTPReceiver) {
	for {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}
