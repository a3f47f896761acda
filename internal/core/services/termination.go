package services

import (
	"context"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"

	"go.uber.org/zap"
)

// TerminationCoordinator owns the only path into the ended state. Cleanup is
// symmetric (it runs the same whether the local or the remote side initiated
// it) and idempotent (every trigger after the first observes cleanupExecuted
// and returns). The single boolean guard, checked under the session lock,
// absorbs races between the independent listeners that can all detect the
// same termination: signaling, timers and link state callbacks.
type TerminationCoordinator struct {
	localUser domain.UserID
	transport ports.SignalTransport
	metrics   ports.CallMetrics
	logger    *zap.SugaredLogger

	// onEnded lets the engine drop the session from its registry after
	// cleanup completed.
	onEnded func(*Session)
}

func NewTerminationCoordinator(localUser domain.UserID, transport ports.SignalTransport, metrics ports.CallMetrics, logger *zap.SugaredLogger, onEnded func(*Session)) *TerminationCoordinator {
	return &TerminationCoordinator{
		localUser: localUser,
		transport: transport,
		metrics:   metrics,
		logger:    logger,
		onEnded:   onEnded,
	}
}

const terminateSendTimeout = 3 * time.Second

// Terminate runs full local cleanup on the first invocation for a session
// and is a no-op on every later one, regardless of trigger or origin.
// notifyRemote controls whether a terminate message is relayed to the peer;
// it is false when the trigger was the peer's own terminate message.
func (tc *TerminationCoordinator) Terminate(ctx context.Context, s *Session, by domain.EndedBy, reason domain.EndReason, notifyRemote bool) {
	s.mu.Lock()
	if s.cleanupExecuted {
		s.mu.Unlock()
		return
	}
	s.cleanupExecuted = true
	s.endedBy = by
	s.endReason = reason
	s.endedAt = time.Now()

	s.stopTimersLocked()
	if s.monitorCancel != nil {
		s.monitorCancel()
		s.monitorCancel = nil
	}

	media := s.media
	link := s.link
	sub := s.sub
	s.media, s.link, s.sub = nil, nil, nil

	s.transitionLocked(eventEnd)
	duration := s.endedAt.Sub(s.startedAt)
	s.mu.Unlock()

	if media != nil {
		media.Release()
	}
	if link != nil {
		if err := link.Close(); err != nil {
			tc.logger.Debugw("peer link close failed",
				"call_id", s.id,
				"error", err,
			)
		}
	}

	if notifyRemote {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminateSendTimeout)
		err := tc.transport.Send(sendCtx, s.id, &domain.SignalMessage{
			Kind:   domain.KindTerminate,
			CallID: s.id,
			Sender: tc.localUser,
			Reason: string(reason),
		})
		cancel()
		if err != nil {
			// The remote side has its own disconnect watchdog; a lost
			// terminate delays its cleanup but never prevents it.
			tc.logger.Warnw("terminate message delivery failed",
				"call_id", s.id,
				"error", err,
			)
		} else {
			tc.metrics.SignalSent(domain.KindTerminate)
		}
	}

	// Unsubscribe after the terminate send: the subscription is independent
	// of the send path and closing it last keeps teardown ordering simple.
	if sub != nil {
		if err := sub.Close(); err != nil {
			tc.logger.Debugw("signaling unsubscribe failed",
				"call_id", s.id,
				"error", err,
			)
		}
	}

	tc.metrics.CallEnded(reason, duration)
	tc.logger.Infow("call ended",
		"call_id", s.id,
		"ended_by", string(by),
		"reason", string(reason),
		"duration", duration,
	)

	s.notifyState(domain.StateEnded)
	if tc.onEnded != nil {
		tc.onEnded(s)
	}
}
