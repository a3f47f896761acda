package webrtc

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	opusClockRate  = 48000
	vp8ClockRate   = 90000
	audioFrameTime = 20 * time.Millisecond
)

// SyntheticSource produces locally generated media tracks: silence-shaped
// Opus frames and test-pattern VP8 frames. It stands in for device capture
// in headless deployments and the loopback demo.
type SyntheticSource struct {
	logger *zap.SugaredLogger
}

func NewSyntheticSource(logger *zap.SugaredLogger) *SyntheticSource {
	return &SyntheticSource{logger: logger}
}

func (s *SyntheticSource) Acquire(ctx context.Context, constraints domain.MediaConstraints) (ports.LocalMedia, error) {
	if !constraints.Audio && !constraints.Video {
		return nil, domain.ErrMediaAccessDenied
	}

	m := &LocalTracks{
		tracks: make(map[domain.MediaKind]*outTrack),
		userEnabled: map[domain.MediaKind]bool{
			domain.MediaKindAudio: true,
			domain.MediaKindVideo: true,
		},
		logger: s.logger,
	}

	if constraints.Audio {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "famcall-audio",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		m.tracks[domain.MediaKindAudio] = &outTrack{
			track:       track,
			enabled:     true,
			payloadType: 111,
			clockRate:   opusClockRate,
			frameTime:   audioFrameTime,
			bitrateKbps: 48,
			ssrc:        rand.Uint32(),
			stop:        make(chan struct{}),
		}
	}

	if constraints.Video {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "famcall-video",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		m.tracks[domain.MediaKindVideo] = &outTrack{
			track:       track,
			enabled:     true,
			payloadType: 96,
			clockRate:   vp8ClockRate,
			frameTime:   time.Second / 30,
			bitrateKbps: 1500,
			ssrc:        rand.Uint32(),
			stop:        make(chan struct{}),
		}
	}

	return m, nil
}

// LocalTracks owns the outgoing tracks of one call and paces their RTP
// output to the current encoding targets.
type LocalTracks struct {
	mu          sync.Mutex
	tracks      map[domain.MediaKind]*outTrack
	userEnabled map[domain.MediaKind]bool
	senderCount int
	released    bool

	logger *zap.SugaredLogger
}

type outTrack struct {
	track       *webrtc.TrackLocalStaticRTP
	enabled     bool
	payloadType uint8
	clockRate   uint32
	frameTime   time.Duration
	bitrateKbps int
	ssrc        uint32
	stop        chan struct{}
}

func (m *LocalTracks) attach(pc *webrtc.PeerConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return fmt.Errorf("media already released")
	}

	for kind, t := range m.tracks {
		if _, err := pc.AddTrack(t.track); err != nil {
			return fmt.Errorf("failed to add %s track: %w", kind, err)
		}
		m.senderCount++
		go m.pump(t)
	}
	return nil
}

// pump writes paced RTP frames. Timestamps keep advancing while the track is
// disabled so resuming does not jump the remote jitter buffer. Presets can
// change the frame time mid-call; the ticker re-paces on the next tick.
func (m *LocalTracks) pump(t *outTrack) {
	m.mu.Lock()
	frameTime := t.frameTime
	m.mu.Unlock()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	var seq uint16 = uint16(rand.Intn(1 << 16))
	var timestamp uint32 = rand.Uint32()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			enabled := t.enabled
			bitrate := t.bitrateKbps
			if t.frameTime != frameTime {
				frameTime = t.frameTime
				ticker.Reset(frameTime)
			}
			m.mu.Unlock()

			timestamp += timestampStep(t.clockRate, frameTime)
			if !enabled {
				continue
			}

			packet := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    t.payloadType,
					SequenceNumber: seq,
					Timestamp:      timestamp,
					SSRC:           t.ssrc,
				},
				Payload: make([]byte, frameBytes(bitrate, frameTime)),
			}
			seq++

			if err := t.track.WriteRTP(packet); err != nil {
				m.logger.Debugw("track write failed", "error", err)
				return
			}
		}
	}
}

// timestampStep is the RTP timestamp advance for one frame interval.
func timestampStep(clockRate uint32, frameTime time.Duration) uint32 {
	return uint32(float64(clockRate) * frameTime.Seconds())
}

// frameBytes sizes one frame payload for the target bitrate, clamped to a
// single MTU-safe packet.
func frameBytes(bitrateKbps int, frameTime time.Duration) int {
	n := int(float64(bitrateKbps) * 1000 / 8 * frameTime.Seconds())
	if n < 1 {
		n = 1
	}
	if n > 1200 {
		n = 1200
	}
	return n
}

func (m *LocalTracks) SenderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.senderCount
}

func (m *LocalTracks) SetUserEnabled(kind domain.MediaKind, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userEnabled[kind] = enabled
	if t, ok := m.tracks[kind]; ok {
		t.enabled = enabled
	}
}

func (m *LocalTracks) UserDisabled(kind domain.MediaKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.userEnabled[kind]
}

func (m *LocalTracks) ApplyPreset(preset domain.TierPreset) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tracks[domain.MediaKindAudio]; ok {
		t.bitrateKbps = preset.AudioBitrateKbps
	}
	if t, ok := m.tracks[domain.MediaKindVideo]; ok {
		t.bitrateKbps = preset.VideoBitrateKbps
		if preset.FrameRate > 0 {
			t.frameTime = time.Second / time.Duration(preset.FrameRate)
		}
		// User mute always wins over tier decisions.
		t.enabled = preset.VideoEnabled && m.userEnabled[domain.MediaKindVideo]
	}
}

func (m *LocalTracks) ForceVideoOff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tracks[domain.MediaKindVideo]; ok {
		t.enabled = false
	}
}

func (m *LocalTracks) Enabled(kind domain.MediaKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[kind]
	return ok && t.enabled
}

func (m *LocalTracks) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return
	}
	m.released = true
	for _, t := range m.tracks {
		close(t.stop)
	}
}
