package services

import (
	"context"
	"sync"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
)

// fakeLink is a scriptable stand-in for the native peer connection.
type fakeLink struct {
	mu sync.Mutex

	added       []*domain.ICECandidate
	remoteDescs []string
	hasRemote   bool
	stable      bool
	closed      bool

	offerSDP  string
	answerSDP string
	stats     domain.TransportStats
	statsErr  error

	onCandidate   func(*domain.ICECandidate)
	onState       func(ports.LinkState)
	onRemoteMedia func(domain.MediaKind, bool)
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		offerSDP:  "v=0 fake-offer",
		answerSDP: "v=0 fake-answer",
		stable:    true,
	}
}

func (l *fakeLink) CreateOffer(ctx context.Context, iceRestart bool) (string, error) {
	if iceRestart {
		return l.offerSDP + " ice-restart", nil
	}
	return l.offerSDP, nil
}

func (l *fakeLink) CreateAnswer(ctx context.Context) (string, error) {
	return l.answerSDP, nil
}

func (l *fakeLink) SetRemoteDescription(ctx context.Context, kind domain.MessageKind, sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteDescs = append(l.remoteDescs, sdp)
	l.hasRemote = true
	return nil
}

func (l *fakeLink) AddRemoteCandidate(c *domain.ICECandidate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.added = append(l.added, c)
	return nil
}

func (l *fakeLink) HasRemoteDescription() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasRemote
}

func (l *fakeLink) SignalingStable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stable
}

func (l *fakeLink) OnLocalCandidate(fn func(*domain.ICECandidate)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()
}

func (l *fakeLink) OnStateChange(fn func(ports.LinkState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *fakeLink) OnRemoteMediaChange(fn func(domain.MediaKind, bool)) {
	l.mu.Lock()
	l.onRemoteMedia = fn
	l.mu.Unlock()
}

func (l *fakeLink) Stats(ctx context.Context) (domain.TransportStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats, l.statsErr
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// fireState simulates a connection state transition from the transport side.
func (l *fakeLink) fireState(state ports.LinkState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (l *fakeLink) candidates() []*domain.ICECandidate {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.ICECandidate, len(l.added))
	copy(out, l.added)
	return out
}

// fakeFactory hands out pre-built links in order.
type fakeFactory struct {
	mu    sync.Mutex
	links []*fakeLink
	built int
	err   error
}

func (f *fakeFactory) NewLink(ctx context.Context, media ports.LocalMedia) (ports.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.built >= len(f.links) {
		l := newFakeLink()
		f.links = append(f.links, l)
	}
	l := f.links[f.built]
	f.built++
	return l, nil
}

// fakeMedia implements ports.LocalMedia with bookkeeping only.
type fakeMedia struct {
	mu           sync.Mutex
	senders      int
	userDisabled map[domain.MediaKind]bool
	enabled      map[domain.MediaKind]bool
	presets      []domain.TierPreset
	forcedOff    int
	released     int
}

func newFakeMedia(senders int) *fakeMedia {
	return &fakeMedia{
		senders:      senders,
		userDisabled: make(map[domain.MediaKind]bool),
		enabled: map[domain.MediaKind]bool{
			domain.MediaKindAudio: true,
			domain.MediaKindVideo: true,
		},
	}
}

func (m *fakeMedia) SenderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.senders
}

func (m *fakeMedia) SetUserEnabled(kind domain.MediaKind, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userDisabled[kind] = !enabled
	m.enabled[kind] = enabled
}

func (m *fakeMedia) UserDisabled(kind domain.MediaKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userDisabled[kind]
}

func (m *fakeMedia) ApplyPreset(preset domain.TierPreset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets = append(m.presets, preset)
	if !m.userDisabled[domain.MediaKindVideo] {
		m.enabled[domain.MediaKindVideo] = preset.VideoEnabled
	}
}

func (m *fakeMedia) ForceVideoOff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedOff++
	m.enabled[domain.MediaKindVideo] = false
}

func (m *fakeMedia) Enabled(kind domain.MediaKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

func (m *fakeMedia) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
}

func (m *fakeMedia) appliedPresets() []domain.TierPreset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TierPreset, len(m.presets))
	copy(out, m.presets)
	return out
}

func (m *fakeMedia) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// fakeSource returns prepared media or a fixed error.
type fakeSource struct {
	media *fakeMedia
	err   error
}

func (s *fakeSource) Acquire(ctx context.Context, constraints domain.MediaConstraints) (ports.LocalMedia, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.media != nil {
		return s.media, nil
	}
	return newFakeMedia(2), nil
}

// countingMetrics records calls for assertions.
type countingMetrics struct {
	mu            sync.Mutex
	started       int
	ended         int
	established   int
	tierChanges   []domain.QualityTier
	sent          map[domain.MessageKind]int
	received      map[domain.MessageKind]int
	iceRestarts   int
	reconnections map[bool]int
	lastReason    domain.EndReason
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		sent:          make(map[domain.MessageKind]int),
		received:      make(map[domain.MessageKind]int),
		reconnections: make(map[bool]int),
	}
}

func (m *countingMetrics) CallStarted(domain.Role) {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
}

func (m *countingMetrics) CallEnded(reason domain.EndReason, _ time.Duration) {
	m.mu.Lock()
	m.ended++
	m.lastReason = reason
	m.mu.Unlock()
}

func (m *countingMetrics) CallEstablished(time.Duration) {
	m.mu.Lock()
	m.established++
	m.mu.Unlock()
}

func (m *countingMetrics) TierChanged(tier domain.QualityTier) {
	m.mu.Lock()
	m.tierChanges = append(m.tierChanges, tier)
	m.mu.Unlock()
}

func (m *countingMetrics) SignalSent(kind domain.MessageKind) {
	m.mu.Lock()
	m.sent[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) SignalReceived(kind domain.MessageKind) {
	m.mu.Lock()
	m.received[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) ICERestartAttempted() {
	m.mu.Lock()
	m.iceRestarts++
	m.mu.Unlock()
}

func (m *countingMetrics) ReconnectionHandled(success bool) {
	m.mu.Lock()
	m.reconnections[success]++
	m.mu.Unlock()
}

func (m *countingMetrics) endedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

func (m *countingMetrics) sentCount(kind domain.MessageKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[kind]
}

func (m *countingMetrics) restartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iceRestarts
}
