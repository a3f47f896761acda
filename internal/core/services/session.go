package services

import (
	"context"
	"sync"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"

	"github.com/looplab/fsm"
)

// FSM event names.
const (
	eventDial      = "dial"
	eventRing      = "ring"
	eventConnect   = "connect"
	eventEstablish = "establish"
	eventReconnect = "reconnect"
	eventRecover   = "recover"
	eventEnd       = "end"
)

// Session is the aggregate root for one call attempt, owned exclusively by
// the local engine instance. It is the single mutable source of truth passed
// by reference to every callback; nothing outside the engine mutates it.
type Session struct {
	id     domain.CallID
	role   domain.Role
	remote domain.UserID

	mu sync.Mutex
	sm *fsm.FSM

	link  ports.PeerLink
	media ports.LocalMedia
	sub   ports.Subscription

	// Remote offer carried by the invite, applied on accept.
	pendingOffer string

	// Candidates received before a remote description exists. nil entries
	// are end-of-candidates markers. Cleared exactly once on flush.
	pendingRemoteCandidates []*domain.ICECandidate
	candidatesFlushed       bool

	endedBy             domain.EndedBy
	endReason           domain.EndReason
	iceRestartAttempted bool
	cleanupExecuted     bool
	monitorStarted      bool

	startedAt time.Time
	endedAt   time.Time

	reconnectGuard  *time.Timer
	restartGrace    *time.Timer
	disconnectTimer *time.Timer
	ringTimer       *time.Timer

	monitorCancel context.CancelFunc

	onState       func(domain.CallState)
	onQuality     func(domain.QualityTier, domain.QualitySample)
	onRemoteMedia func(domain.MediaKind, bool)
}

func newSession(id domain.CallID, role domain.Role, remote domain.UserID) *Session {
	s := &Session{
		id:        id,
		role:      role,
		remote:    remote,
		startedAt: time.Now(),
	}
	s.sm = fsm.NewFSM(
		string(domain.StateIdle),
		fsm.Events{
			{Name: eventDial, Src: []string{string(domain.StateIdle)}, Dst: string(domain.StateDialing)},
			{Name: eventRing, Src: []string{string(domain.StateIdle)}, Dst: string(domain.StateRinging)},
			{Name: eventConnect, Src: []string{string(domain.StateDialing), string(domain.StateRinging)}, Dst: string(domain.StateConnecting)},
			{Name: eventEstablish, Src: []string{string(domain.StateConnecting), string(domain.StateReconnecting)}, Dst: string(domain.StateActive)},
			{Name: eventReconnect, Src: []string{string(domain.StateActive)}, Dst: string(domain.StateReconnecting)},
			{Name: eventRecover, Src: []string{string(domain.StateReconnecting)}, Dst: string(domain.StateActive)},
			// Ended is terminal and reachable from everywhere else; only
			// the termination coordinator fires it.
			{Name: eventEnd, Src: []string{
				string(domain.StateIdle), string(domain.StateDialing), string(domain.StateRinging),
				string(domain.StateConnecting), string(domain.StateActive), string(domain.StateReconnecting),
			}, Dst: string(domain.StateEnded)},
		},
		fsm.Callbacks{},
	)
	return s
}

// State reads the current lifecycle state.
func (s *Session) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CallState(s.sm.Current())
}

// stateLocked must be called with s.mu held.
func (s *Session) stateLocked() domain.CallState {
	return domain.CallState(s.sm.Current())
}

// transitionLocked fires an FSM event with s.mu held and reports whether the
// transition was legal. Illegal transitions are absorbed, not fatal: racing
// listeners may observe the same trigger twice.
func (s *Session) transitionLocked(event string) bool {
	if err := s.sm.Event(context.Background(), event); err != nil {
		return false
	}
	return true
}

// bufferCandidateLocked appends a remote candidate (nil = end-of-candidates)
// received before the remote description. Must hold s.mu.
func (s *Session) bufferCandidateLocked(c *domain.ICECandidate) {
	s.pendingRemoteCandidates = append(s.pendingRemoteCandidates, c)
}

// flushCandidatesLocked hands all buffered candidates to the link in receipt
// order, then clears the buffer. Runs at most once per remote description.
// Must hold s.mu.
func (s *Session) flushCandidatesLocked() error {
	for _, c := range s.pendingRemoteCandidates {
		if err := s.link.AddRemoteCandidate(c); err != nil {
			return err
		}
	}
	s.pendingRemoteCandidates = nil
	s.candidatesFlushed = true
	return nil
}

// stopTimersLocked releases all pending timers. Must hold s.mu.
func (s *Session) stopTimersLocked() {
	for _, t := range []*time.Timer{s.reconnectGuard, s.restartGrace, s.disconnectTimer, s.ringTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.reconnectGuard, s.restartGrace, s.disconnectTimer, s.ringTimer = nil, nil, nil, nil
}

// Info returns an observable snapshot.
func (s *Session) Info() domain.CallInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CallInfo{
		ID:        s.id,
		Role:      s.role,
		Remote:    s.remote,
		State:     s.stateLocked(),
		EndedBy:   s.endedBy,
		EndReason: s.endReason,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}

// handle adapts a session to the collaborator-facing surface.
type handle struct {
	s *Session
}

func (h *handle) ID() domain.CallID     { return h.s.id }
func (h *handle) Info() domain.CallInfo { return h.s.Info() }

func (h *handle) OnStateChange(fn func(domain.CallState)) {
	h.s.mu.Lock()
	h.s.onState = fn
	h.s.mu.Unlock()
}

func (h *handle) OnQualityChange(fn func(domain.QualityTier, domain.QualitySample)) {
	h.s.mu.Lock()
	h.s.onQuality = fn
	h.s.mu.Unlock()
}

func (h *handle) OnRemoteMediaChange(fn func(domain.MediaKind, bool)) {
	h.s.mu.Lock()
	h.s.onRemoteMedia = fn
	h.s.mu.Unlock()
}

// SetMuted records an explicit user decision for a local track. The quality
// monitor never overrides it.
func (h *handle) SetMuted(kind domain.MediaKind, muted bool) error {
	h.s.mu.Lock()
	media := h.s.media
	ended := h.s.cleanupExecuted
	h.s.mu.Unlock()

	if ended {
		return domain.ErrCallAlreadyEnded
	}
	if media == nil {
		return domain.ErrMediaAccessDenied
	}
	media.SetUserEnabled(kind, !muted)
	return nil
}

// notifyState invokes the collaborator state callback outside the session
// lock.
func (s *Session) notifyState(state domain.CallState) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (s *Session) notifyQuality(tier domain.QualityTier, sample domain.QualitySample) {
	s.mu.Lock()
	fn := s.onQuality
	s.mu.Unlock()
	if fn != nil {
		fn(tier, sample)
	}
}

func (s *Session) notifyRemoteMedia(kind domain.MediaKind, disabled bool) {
	s.mu.Lock()
	fn := s.onRemoteMedia
	s.mu.Unlock()
	if fn != nil {
		fn(kind, disabled)
	}
}
