package webrtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
	"famcall/pkg/config"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// LinkFactory builds pion-backed peer links from the shared WebRTC
// configuration.
type LinkFactory struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func NewLinkFactory(cfg *config.Config, logger *zap.SugaredLogger) *LinkFactory {
	return &LinkFactory{cfg: cfg, logger: logger}
}

// attachable is implemented by media that can add its tracks to a peer
// connection. The factory only accepts media created by this package.
type attachable interface {
	attach(pc *webrtc.PeerConnection) error
}

func (f *LinkFactory) NewLink(ctx context.Context, media ports.LocalMedia) (ports.PeerLink, error) {
	tracks, ok := media.(attachable)
	if !ok {
		return nil, fmt.Errorf("unsupported media implementation %T", media)
	}

	settingEngine := webrtc.SettingEngine{}
	if f.cfg.WebRTC.PortRange.Min > 0 && f.cfg.WebRTC.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(f.cfg.WebRTC.PortRange.Min, f.cfg.WebRTC.PortRange.Max); err != nil {
			return nil, fmt.Errorf("failed to set port range: %w", err)
		}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	)

	iceServers := make([]webrtc.ICEServer, 0, len(f.cfg.WebRTC.ICEServers))
	for _, server := range f.cfg.WebRTC.ICEServers {
		s := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			s.Username = server.Username
			s.Credential = server.Credential
		}
		iceServers = append(iceServers, s)
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	if err := tracks.attach(pc); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to attach local tracks: %w", err)
	}

	link := &PionLink{
		pc:     pc,
		stats:  newStatsCollector(),
		logger: f.logger,
	}
	link.watchRemoteTracks()
	link.readSenderReports()
	return link, nil
}

// PionLink wraps one pion peer connection. The session owns exactly one and
// renegotiates over it during reconnection instead of replacing it.
type PionLink struct {
	pc     *webrtc.PeerConnection
	stats  *statsCollector
	logger *zap.SugaredLogger

	mu            sync.Mutex
	onCandidate   func(*domain.ICECandidate)
	onState       func(ports.LinkState)
	onRemoteMedia func(domain.MediaKind, bool)

	lastBytesSent uint64
	lastBytesAt   time.Time

	closed bool
}

func (l *PionLink) CreateOffer(ctx context.Context, iceRestart bool) (string, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := l.pc.CreateOffer(opts)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (l *PionLink) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (l *PionLink) SetRemoteDescription(ctx context.Context, kind domain.MessageKind, sdp string) error {
	var sdpType webrtc.SDPType
	switch kind {
	case domain.KindOffer, domain.KindInvite:
		sdpType = webrtc.SDPTypeOffer
	case domain.KindAnswer:
		sdpType = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("message kind %q carries no session description", kind)
	}
	desc := webrtc.SessionDescription{Type: sdpType, SDP: sdp}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (l *PionLink) AddRemoteCandidate(candidate *domain.ICECandidate) error {
	if candidate == nil {
		// End-of-candidates marker.
		return l.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: ""})
	}
	return l.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
}

func (l *PionLink) HasRemoteDescription() bool {
	return l.pc.RemoteDescription() != nil
}

func (l *PionLink) SignalingStable() bool {
	return l.pc.SignalingState() == webrtc.SignalingStateStable
}

func (l *PionLink) OnLocalCandidate(fn func(*domain.ICECandidate)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()

	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		l.mu.Lock()
		cb := l.onCandidate
		l.mu.Unlock()
		if cb == nil {
			return
		}
		if c == nil {
			cb(nil)
			return
		}
		init := c.ToJSON()
		cb(&domain.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (l *PionLink) OnStateChange(fn func(ports.LinkState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()

	l.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.mu.Lock()
		cb := l.onState
		l.mu.Unlock()
		if cb != nil {
			cb(mapConnectionState(state))
		}
	})
}

func (l *PionLink) OnRemoteMediaChange(fn func(domain.MediaKind, bool)) {
	l.mu.Lock()
	l.onRemoteMedia = fn
	l.mu.Unlock()
}

func (l *PionLink) Stats(ctx context.Context) (domain.TransportStats, error) {
	loss, jitter, rtt := l.stats.snapshot()

	stats := domain.TransportStats{
		Timestamp:       time.Now(),
		PacketLossRatio: loss,
		Jitter:          jitter,
		RoundTrip:       rtt,
	}

	// Approximate available bandwidth from the achieved outgoing bitrate.
	report := l.pc.GetStats()
	var bytesSent uint64
	for _, s := range report {
		if out, ok := s.(webrtc.OutboundRTPStreamStats); ok {
			bytesSent += out.BytesSent
		}
	}

	l.mu.Lock()
	now := time.Now()
	if !l.lastBytesAt.IsZero() && bytesSent >= l.lastBytesSent {
		elapsed := now.Sub(l.lastBytesAt).Seconds()
		if elapsed > 0 {
			stats.AvailableBandwidth = int(float64(bytesSent-l.lastBytesSent) * 8 / 1000 / elapsed)
		}
	}
	l.lastBytesSent = bytesSent
	l.lastBytesAt = now
	l.mu.Unlock()

	return stats, nil
}

func (l *PionLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.pc.Close()
}

// watchRemoteTracks starts a reader per incoming track. A track that stops
// carrying packets is reported as disabled; resumed packets re-enable it.
func (l *PionLink) watchRemoteTracks() {
	l.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind := domain.MediaKindAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = domain.MediaKindVideo
		}
		l.logger.Debugw("remote track started", "kind", kind, "ssrc", track.SSRC())

		l.notifyRemoteMedia(kind, false)
		go l.readRemoteTrack(track, kind)
		go l.readReceiverReports(receiver)
	})
}

const remoteTrackStaleAfter = 3 * time.Second

func (l *PionLink) readRemoteTrack(track *webrtc.TrackRemote, kind domain.MediaKind) {
	var lastPacket atomic.Int64
	lastPacket.Store(time.Now().UnixNano())

	done := make(chan struct{})
	defer close(done)

	// Staleness watchdog for mute detection.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		stale := false
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastPacket.Load())) > remoteTrackStaleAfter
				if idle != stale {
					stale = idle
					l.notifyRemoteMedia(kind, stale)
				}
			}
		}
	}()

	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
		lastPacket.Store(time.Now().UnixNano())
	}
}

func (l *PionLink) notifyRemoteMedia(kind domain.MediaKind, disabled bool) {
	l.mu.Lock()
	cb := l.onRemoteMedia
	l.mu.Unlock()
	if cb != nil {
		cb(kind, disabled)
	}
}

func mapConnectionState(state webrtc.PeerConnectionState) ports.LinkState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return ports.LinkNew
	case webrtc.PeerConnectionStateConnecting:
		return ports.LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		return ports.LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ports.LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ports.LinkFailed
	default:
		return ports.LinkClosed
	}
}
