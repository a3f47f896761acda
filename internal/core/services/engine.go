package services

import (
	"context"
	"sync"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
	"famcall/pkg/errors"
	"famcall/pkg/retry"
	"famcall/pkg/tracing"
	"famcall/pkg/utils"
	"famcall/pkg/validation"

	"go.uber.org/zap"
)

// EngineConfig carries the engine's tunable timings. The reconnect guard and
// restart grace defaults are empirical, not load-bearing.
type EngineConfig struct {
	ReconnectGuard     time.Duration
	ICERestartGrace    time.Duration
	DisconnectTimeout  time.Duration
	RingTimeout        time.Duration
	DefaultConstraints domain.MediaConstraints
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ReconnectGuard:     5 * time.Second,
		ICERestartGrace:    5 * time.Second,
		DisconnectTimeout:  8 * time.Second,
		RingTimeout:        45 * time.Second,
		DefaultConstraints: domain.MediaConstraints{Audio: true, Video: true},
	}
}

// resubscribeDelay is the pause before the single local retry of a failed
// channel subscription.
const resubscribeDelay = 200 * time.Millisecond

// Engine is the call engine: it owns every live call session of the local
// user and coordinates signaling, the peer link, quality adaptation and
// termination. Collaborators observe sessions through CallHandle and issue
// place/accept/end requests; they never mutate session state directly.
type Engine struct {
	cfg       EngineConfig
	localUser domain.UserID

	transport   ports.SignalTransport
	links       ports.PeerLinkFactory
	mediaSource ports.MediaSource
	monitor     *QualityMonitor
	terminator  *TerminationCoordinator
	metrics     ports.CallMetrics
	logger      *zap.SugaredLogger

	mu         sync.RWMutex
	sessions   map[domain.CallID]*Session
	inviteSub  ports.Subscription
	onIncoming func(ports.CallHandle)
}

func NewEngine(
	cfg EngineConfig,
	localUser domain.UserID,
	transport ports.SignalTransport,
	links ports.PeerLinkFactory,
	mediaSource ports.MediaSource,
	monitor *QualityMonitor,
	metrics ports.CallMetrics,
	logger *zap.SugaredLogger,
) *Engine {
	e := &Engine{
		cfg:         cfg,
		localUser:   localUser,
		transport:   transport,
		links:       links,
		mediaSource: mediaSource,
		monitor:     monitor,
		metrics:     metrics,
		logger:      logger,
		sessions:    make(map[domain.CallID]*Session),
	}
	e.terminator = NewTerminationCoordinator(localUser, transport, metrics, logger, e.dropSession)
	return e
}

// Terminator exposes the coordinator for collaborators that bridge external
// termination triggers.
func (e *Engine) Terminator() *TerminationCoordinator {
	return e.terminator
}

// OnIncomingCall registers the callback that surfaces ringing calls.
func (e *Engine) OnIncomingCall(fn func(ports.CallHandle)) {
	e.mu.Lock()
	e.onIncoming = fn
	e.mu.Unlock()
}

// Start subscribes to the local user's invite channel. Incoming offers
// surface through OnIncomingCall.
func (e *Engine) Start(ctx context.Context) error {
	sub, err := e.transport.SubscribeInvites(ctx, e.localUser, func(msg *domain.SignalMessage) {
		if err := e.DeliverInvite(context.Background(), msg); err != nil {
			e.logger.Warnw("invite rejected",
				"call_id", msg.CallID,
				"error", err,
			)
		}
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSignalingUnavailable, "invite channel subscription failed")
	}
	e.mu.Lock()
	e.inviteSub = sub
	e.mu.Unlock()
	return nil
}

// Close terminates every live session and detaches the invite listener.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	sub := e.inviteSub
	e.inviteSub = nil
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		e.terminator.Terminate(ctx, s, domain.EndedByLocal, domain.EndReasonLocalHangup, true)
	}
	if sub != nil {
		return sub.Close()
	}
	return nil
}

// PlaceCall starts an outgoing call to target. The request is assumed to be
// authorized already.
func (e *Engine) PlaceCall(ctx context.Context, target domain.UserID, constraints domain.MediaConstraints) (ports.CallHandle, error) {
	if e.hasLiveSession() {
		return nil, domain.ErrCallInProgress
	}

	callID := domain.CallID(utils.GenerateCallID())
	ctx, span := tracing.TraceCallOperation(ctx, "place", string(callID))
	defer span.End()

	media, err := e.mediaSource.Acquire(ctx, constraints)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeMediaAccessDenied, "local media acquisition failed")
	}

	s := newSession(callID, domain.RoleCaller, target)
	s.media = media

	link, err := e.links.NewLink(ctx, media)
	if err != nil {
		media.Release()
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "peer link creation failed")
	}
	s.link = link
	e.wireLink(s, link)

	sub, err := e.subscribeCall(ctx, s)
	if err != nil {
		link.Close()
		media.Release()
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeSignalingUnavailable, "call channel subscription failed")
	}
	s.sub = sub

	offer, err := link.CreateOffer(ctx, false)
	if err != nil {
		sub.Close()
		link.Close()
		media.Release()
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "offer creation failed")
	}

	s.mu.Lock()
	s.transitionLocked(eventDial)
	s.ringTimer = time.AfterFunc(e.cfg.RingTimeout, func() {
		e.terminator.Terminate(context.Background(), s, domain.EndedBySystem, domain.EndReasonNoAnswer, true)
	})
	s.mu.Unlock()

	e.storeSession(s)

	if err := e.transport.SendInvite(ctx, target, &domain.SignalMessage{
		Kind:   domain.KindInvite,
		CallID: callID,
		Sender: e.localUser,
		Target: target,
		SDP:    offer,
	}); err != nil {
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonSignaling, false)
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeSignalingUnavailable, "invite delivery failed")
	}
	e.metrics.SignalSent(domain.KindInvite)
	e.metrics.CallStarted(domain.RoleCaller)

	e.logger.Infow("call placed",
		"call_id", callID,
		"target", target,
	)
	s.notifyState(domain.StateDialing)
	return &handle{s: s}, nil
}

// DeliverInvite feeds an invite into the ringing path. The invite channel
// subscription and any push/poll notification bridge both land here, so a
// backgrounded client and a live one take the identical route.
func (e *Engine) DeliverInvite(ctx context.Context, msg *domain.SignalMessage) error {
	if err := validation.ValidateSignalMessage(msg); err != nil {
		return err
	}
	if msg.Kind != domain.KindInvite {
		return domain.ErrInvalidSignalMessage
	}
	if msg.Sender == e.localUser {
		return nil
	}
	e.metrics.SignalReceived(domain.KindInvite)

	e.mu.RLock()
	_, exists := e.sessions[msg.CallID]
	e.mu.RUnlock()
	if exists {
		// Push bridge and invite channel can both deliver the same invite.
		return nil
	}

	if e.hasLiveSession() {
		e.rejectBusy(ctx, msg.CallID)
		return domain.ErrCallInProgress
	}

	s := newSession(msg.CallID, domain.RoleCallee, msg.Sender)
	s.pendingOffer = msg.SDP

	sub, err := e.subscribeCall(ctx, s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSignalingUnavailable, "call channel subscription failed")
	}
	s.sub = sub

	s.mu.Lock()
	s.transitionLocked(eventRing)
	s.ringTimer = time.AfterFunc(e.cfg.RingTimeout, func() {
		e.terminator.Terminate(context.Background(), s, domain.EndedBySystem, domain.EndReasonMissed, true)
	})
	s.mu.Unlock()

	e.storeSession(s)
	e.metrics.CallStarted(domain.RoleCallee)
	e.logger.Infow("incoming call ringing",
		"call_id", msg.CallID,
		"from", msg.Sender,
	)

	e.mu.RLock()
	notify := e.onIncoming
	e.mu.RUnlock()
	if notify != nil {
		notify(&handle{s: s})
	}
	s.notifyState(domain.StateRinging)
	return nil
}

// AcceptCall answers a ringing call.
func (e *Engine) AcceptCall(ctx context.Context, callID domain.CallID) (ports.CallHandle, error) {
	s := e.session(callID)
	if s == nil {
		return nil, domain.ErrCallNotFound
	}
	if s.State() != domain.StateRinging {
		return nil, domain.ErrNotRinging
	}

	ctx, span := tracing.TraceCallOperation(ctx, "accept", string(callID))
	defer span.End()

	media, err := e.mediaSource.Acquire(ctx, e.cfg.DefaultConstraints)
	if err != nil {
		// The caller is told the call ended; the callee's collaborator gets
		// the media error. No partial session survives.
		e.terminator.Terminate(ctx, s, domain.EndedByLocal, domain.EndReasonMediaDenied, true)
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeMediaAccessDenied, "local media acquisition failed")
	}

	link, err := e.links.NewLink(ctx, media)
	if err != nil {
		media.Release()
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonSignaling, true)
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "peer link creation failed")
	}
	e.wireLink(s, link)

	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		link.Close()
		media.Release()
		return nil, domain.ErrCallAlreadyEnded
	}
	s.media = media
	s.link = link
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	offer := s.pendingOffer
	s.pendingOffer = ""

	if err := link.SetRemoteDescription(ctx, domain.KindOffer, offer); err != nil {
		s.mu.Unlock()
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonSignaling, true)
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "remote offer rejected")
	}
	if err := s.flushCandidatesLocked(); err != nil {
		e.logger.Warnw("buffered candidate apply failed",
			"call_id", callID,
			"error", err,
		)
	}
	s.transitionLocked(eventConnect)
	s.mu.Unlock()

	answer, err := link.CreateAnswer(ctx)
	if err != nil {
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonSignaling, true)
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "answer creation failed")
	}
	if err := e.sendSignal(ctx, s, &domain.SignalMessage{
		Kind:   domain.KindAnswer,
		CallID: callID,
		SDP:    answer,
	}); err != nil {
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonSignaling, false)
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeSignalingUnavailable, "answer delivery failed")
	}

	e.logger.Infow("call accepted",
		"call_id", callID,
		"from", s.remote,
	)
	s.notifyState(domain.StateConnecting)
	return &handle{s: s}, nil
}

// DeclineCall rejects a ringing call. Declining routes through the same
// termination path as ending an active call.
func (e *Engine) DeclineCall(ctx context.Context, callID domain.CallID) error {
	s := e.session(callID)
	if s == nil {
		return domain.ErrCallNotFound
	}
	if s.State() != domain.StateRinging {
		return domain.ErrNotRinging
	}
	e.terminator.Terminate(ctx, s, domain.EndedByLocal, domain.EndReasonDeclined, true)
	return nil
}

// EndCall terminates a call from explicit local user action.
func (e *Engine) EndCall(ctx context.Context, callID domain.CallID) error {
	s := e.session(callID)
	if s == nil {
		return domain.ErrCallNotFound
	}
	e.terminator.Terminate(ctx, s, domain.EndedByLocal, domain.EndReasonLocalHangup, true)
	return nil
}

// --- signaling ---

// subscribeCall registers the session's listener on the call channel. A
// transient establishment error is retried exactly once before failure
// surfaces; every attempt runs under a fresh scope inside the transport.
func (e *Engine) subscribeCall(ctx context.Context, s *Session) (ports.Subscription, error) {
	var sub ports.Subscription
	err := retry.Do(ctx, retry.Once(resubscribeDelay), func() error {
		var err error
		sub, err = e.transport.Subscribe(ctx, s.id, func(msg *domain.SignalMessage) {
			e.handleSignal(s, msg)
		})
		if err != nil {
			e.logger.Warnw("call channel subscription attempt failed",
				"call_id", s.id,
				"error", err,
			)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (e *Engine) sendSignal(ctx context.Context, s *Session, msg *domain.SignalMessage) error {
	msg.Sender = e.localUser
	if err := e.transport.Send(ctx, s.id, msg); err != nil {
		return err
	}
	e.metrics.SignalSent(msg.Kind)
	return nil
}

// handleSignal dispatches one message from the call channel. The terminate
// kind always wins over in-flight offer/answer content: the cleanup guard is
// consulted before any later-arriving description is applied.
func (e *Engine) handleSignal(s *Session, msg *domain.SignalMessage) {
	if err := validation.ValidateSignalMessage(msg); err != nil {
		e.logger.Warnw("dropping malformed signal",
			"call_id", s.id,
			"error", err,
		)
		return
	}
	if msg.Sender == e.localUser {
		// Own publications echo back on the shared channel.
		return
	}
	e.metrics.SignalReceived(msg.Kind)

	ctx := context.Background()
	switch msg.Kind {
	case domain.KindTerminate:
		e.terminator.Terminate(ctx, s, domain.EndedByRemote, domain.EndReason(msg.Reason), false)
	case domain.KindAnswer:
		e.handleAnswer(ctx, s, msg.SDP)
	case domain.KindOffer:
		e.handleOffer(ctx, s, msg.SDP)
	case domain.KindCandidate:
		e.handleCandidate(s, msg)
	default:
		e.logger.Debugw("ignoring signal on call channel",
			"call_id", s.id,
			"kind", msg.Kind,
		)
	}
}

// handleAnswer applies a remote answer. Answers are expected in exactly two
// situations: the initial dial, and an outstanding ICE restart offer whose
// grace timer is still armed. Anything else is a stale duplicate.
func (e *Engine) handleAnswer(ctx context.Context, s *Session, sdp string) {
	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		return
	}
	restartPending := s.iceRestartAttempted && s.restartGrace != nil
	if s.stateLocked() != domain.StateDialing && !restartPending {
		s.mu.Unlock()
		return
	}
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	if err := s.link.SetRemoteDescription(ctx, domain.KindAnswer, sdp); err != nil {
		s.mu.Unlock()
		e.logger.Errorw("remote answer rejected",
			"call_id", s.id,
			"error", err,
		)
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonSignaling, true)
		return
	}
	if err := s.flushCandidatesLocked(); err != nil {
		e.logger.Warnw("buffered candidate apply failed",
			"call_id", s.id,
			"error", err,
		)
	}
	if restartPending {
		// The link reconnecting completes the restart and disarms the
		// grace timer; the answer alone does not.
		s.mu.Unlock()
		return
	}
	s.transitionLocked(eventConnect)
	s.mu.Unlock()

	s.notifyState(domain.StateConnecting)
}

// handleOffer processes an offer arriving on the call channel. On an active
// session this is the remote side having rebuilt its connection (reload or
// ICE restart), not a new call: the session and call ID stay, the existing
// link renegotiates.
func (e *Engine) handleOffer(ctx context.Context, s *Session, sdp string) {
	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		return
	}
	if s.stateLocked() != domain.StateActive {
		s.mu.Unlock()
		e.logger.Debugw("offer ignored outside active state",
			"call_id", s.id,
			"state", s.State(),
		)
		return
	}
	s.transitionLocked(eventReconnect)
	// New remote description pending; candidates for it are buffered again.
	s.candidatesFlushed = false
	s.mu.Unlock()

	s.notifyState(domain.StateReconnecting)
	go e.completeReconnect(ctx, s, sdp)
}

// completeReconnect answers a renegotiation offer, bounded by the reconnect
// guard. A timeout abandons the attempt without tearing the call down: the
// existing media path, if still viable, is left intact.
func (e *Engine) completeReconnect(ctx context.Context, s *Session, sdp string) {
	deadline := time.Now().Add(e.cfg.ReconnectGuard)
	for {
		s.mu.Lock()
		if s.cleanupExecuted {
			s.mu.Unlock()
			return
		}
		if s.link.SignalingStable() {
			break // lock intentionally held
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			e.abandonReconnect(s, "signaling state never settled")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	link := s.link
	if err := link.SetRemoteDescription(ctx, domain.KindOffer, sdp); err != nil {
		s.mu.Unlock()
		e.abandonReconnect(s, err.Error())
		return
	}
	if err := s.flushCandidatesLocked(); err != nil {
		e.logger.Warnw("buffered candidate apply failed",
			"call_id", s.id,
			"error", err,
		)
	}
	s.mu.Unlock()

	answer, err := link.CreateAnswer(ctx)
	if err != nil {
		e.abandonReconnect(s, err.Error())
		return
	}
	if err := e.sendSignal(ctx, s, &domain.SignalMessage{
		Kind:   domain.KindAnswer,
		CallID: s.id,
		SDP:    answer,
	}); err != nil {
		e.abandonReconnect(s, err.Error())
		return
	}

	s.mu.Lock()
	recovered := s.transitionLocked(eventRecover)
	s.mu.Unlock()

	e.metrics.ReconnectionHandled(true)
	e.logger.Infow("reconnection answered",
		"call_id", s.id,
	)
	if recovered {
		s.notifyState(domain.StateActive)
	}
}

// abandonReconnect logs a failed renegotiation attempt and restores the
// active state. Not a fatal error: the disconnect watchdog ends the call if
// the underlying connection is also gone.
func (e *Engine) abandonReconnect(s *Session, cause string) {
	e.metrics.ReconnectionHandled(false)
	e.logger.Warnw("reconnection attempt abandoned",
		"call_id", s.id,
		"cause", cause,
	)
	s.mu.Lock()
	// The previous connection is still the live one; candidates trickling
	// for it must not buffer indefinitely behind the failed attempt.
	if s.link != nil && !s.candidatesFlushed {
		if err := s.flushCandidatesLocked(); err != nil {
			e.logger.Warnw("buffered candidate apply failed",
				"call_id", s.id,
				"error", err,
			)
			s.pendingRemoteCandidates = nil
			s.candidatesFlushed = true
		}
	}
	recovered := s.transitionLocked(eventRecover)
	s.mu.Unlock()
	if recovered {
		s.notifyState(domain.StateActive)
	}
}

// handleCandidate buffers or forwards one remote ICE candidate. Candidates
// from a given sender apply in receipt order; a nil candidate is the
// end-of-candidates marker and is forwarded like any other.
func (e *Engine) handleCandidate(s *Session, msg *domain.SignalMessage) {
	var c *domain.ICECandidate
	if !msg.EndOfCandidates {
		c = msg.Candidate
	}

	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		return
	}
	if s.link == nil || !s.candidatesFlushed {
		s.bufferCandidateLocked(c)
		s.mu.Unlock()
		return
	}
	link := s.link
	s.mu.Unlock()

	if err := link.AddRemoteCandidate(c); err != nil {
		e.logger.Warnw("remote candidate rejected",
			"call_id", s.id,
			"error", err,
		)
	}
}

// --- link callbacks ---

func (e *Engine) wireLink(s *Session, link ports.PeerLink) {
	link.OnLocalCandidate(func(c *domain.ICECandidate) {
		msg := &domain.SignalMessage{
			Kind:      domain.KindCandidate,
			CallID:    s.id,
			Candidate: c,
		}
		if c == nil {
			msg.EndOfCandidates = true
		}
		if err := e.sendSignal(context.Background(), s, msg); err != nil {
			e.logger.Warnw("candidate delivery failed",
				"call_id", s.id,
				"error", err,
			)
		}
	})
	link.OnStateChange(func(state ports.LinkState) {
		e.handleLinkState(s, state)
	})
	link.OnRemoteMediaChange(func(kind domain.MediaKind, disabled bool) {
		s.notifyRemoteMedia(kind, disabled)
	})
}

func (e *Engine) handleLinkState(s *Session, state ports.LinkState) {
	e.logger.Debugw("peer link state changed",
		"call_id", s.id,
		"link_state", string(state),
	)

	switch state {
	case ports.LinkConnected:
		e.handleLinkConnected(s)
	case ports.LinkDisconnected:
		e.armDisconnectWatchdog(s)
	case ports.LinkFailed:
		e.handleICEFailure(s)
	}
}

func (e *Engine) handleLinkConnected(s *Session) {
	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		return
	}
	if s.disconnectTimer != nil {
		s.disconnectTimer.Stop()
		s.disconnectTimer = nil
	}
	if s.restartGrace != nil {
		s.restartGrace.Stop()
		s.restartGrace = nil
	}

	became := false
	switch s.stateLocked() {
	case domain.StateConnecting:
		became = s.transitionLocked(eventEstablish)
	case domain.StateReconnecting:
		became = s.transitionLocked(eventRecover)
	}

	startMonitor := became && !s.monitorStarted
	if startMonitor {
		s.monitorStarted = true
		monCtx, cancel := context.WithCancel(context.Background())
		s.monitorCancel = cancel
		link, media := s.link, s.media
		go e.monitor.Run(monCtx, s.id, link, media, s.notifyQuality)
	}
	setup := time.Since(s.startedAt)
	s.mu.Unlock()

	if became {
		if startMonitor {
			e.metrics.CallEstablished(setup)
		}
		e.logger.Infow("call media flowing",
			"call_id", s.id,
			"setup", setup,
		)
		s.notifyState(domain.StateActive)
	}
}

// armDisconnectWatchdog starts the bounded wait on a disconnected link. A
// later connected transition disarms it.
func (e *Engine) armDisconnectWatchdog(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupExecuted || s.disconnectTimer != nil {
		return
	}
	s.disconnectTimer = time.AfterFunc(e.cfg.DisconnectTimeout, func() {
		e.terminator.Terminate(context.Background(), s, domain.EndedBySystem, domain.EndReasonDisconnected, true)
	})
}

// handleICEFailure issues the single ICE restart attempt, bounded by the
// grace period. A second failure, or a restart that never recovers,
// terminates with an ICE-failure cause.
func (e *Engine) handleICEFailure(s *Session) {
	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		return
	}
	if s.iceRestartAttempted {
		s.mu.Unlock()
		e.terminator.Terminate(context.Background(), s, domain.EndedBySystem, domain.EndReasonICEFailure, true)
		return
	}
	s.iceRestartAttempted = true
	link := s.link
	isCaller := s.role == domain.RoleCaller
	reconnecting := false
	if isCaller {
		// The restart answer carries a new remote description; candidates
		// for it buffer until it is applied.
		reconnecting = s.transitionLocked(eventReconnect)
		s.candidatesFlushed = false
	}
	if s.restartGrace == nil {
		s.restartGrace = time.AfterFunc(e.cfg.ICERestartGrace, func() {
			e.terminator.Terminate(context.Background(), s, domain.EndedBySystem, domain.EndReasonICEFailure, true)
		})
	}
	s.mu.Unlock()

	if reconnecting {
		s.notifyState(domain.StateReconnecting)
	}
	e.metrics.ICERestartAttempted()
	e.logger.Warnw("ice failed, attempting restart",
		"call_id", s.id,
		"initiating", isCaller,
	)

	// The caller re-offers with fresh ICE credentials; the callee treats
	// that offer through the reconnection path. Both sides bound the wait
	// with the same grace timer.
	if !isCaller {
		return
	}
	ctx := context.Background()
	offer, err := link.CreateOffer(ctx, true)
	if err != nil {
		e.logger.Errorw("ice restart offer failed",
			"call_id", s.id,
			"error", err,
		)
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonICEFailure, true)
		return
	}
	if err := e.sendSignal(ctx, s, &domain.SignalMessage{
		Kind:   domain.KindOffer,
		CallID: s.id,
		SDP:    offer,
	}); err != nil {
		e.logger.Errorw("ice restart offer delivery failed",
			"call_id", s.id,
			"error", err,
		)
		e.terminator.Terminate(ctx, s, domain.EndedBySystem, domain.EndReasonICEFailure, true)
	}
}

// --- session registry ---

func (e *Engine) rejectBusy(ctx context.Context, callID domain.CallID) {
	err := e.transport.Send(ctx, callID, &domain.SignalMessage{
		Kind:   domain.KindTerminate,
		CallID: callID,
		Sender: e.localUser,
		Reason: string(domain.EndReasonBusy),
	})
	if err != nil {
		e.logger.Warnw("busy rejection delivery failed",
			"call_id", callID,
			"error", err,
		)
	}
}

func (e *Engine) hasLiveSession() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sessions {
		if s.State() != domain.StateEnded {
			return true
		}
	}
	return false
}

func (e *Engine) session(callID domain.CallID) *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[callID]
}

func (e *Engine) storeSession(s *Session) {
	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()
}

func (e *Engine) dropSession(s *Session) {
	e.mu.Lock()
	delete(e.sessions, s.id)
	e.mu.Unlock()
}
