package services

import (
	"context"
	"time"

	"famcall/internal/core/domain"

	"go.uber.org/zap"
)

// IncomingCallNotifier bridges out-of-band invite delivery (push payloads or
// polling) into the engine's ringing path. It is a boundary adapter: the
// payload is the same invite message the signaling channel carries, and both
// routes feed the identical accept/decline entry points.
type IncomingCallNotifier struct {
	engine *Engine
	logger *zap.SugaredLogger
}

func NewIncomingCallNotifier(engine *Engine, logger *zap.SugaredLogger) *IncomingCallNotifier {
	return &IncomingCallNotifier{engine: engine, logger: logger}
}

// HandlePush feeds one raw push notification payload into the engine.
func (n *IncomingCallNotifier) HandlePush(ctx context.Context, payload []byte) error {
	msg, err := domain.UnmarshalSignalMessage(payload)
	if err != nil {
		return err
	}
	return n.engine.DeliverInvite(ctx, msg)
}

// Poll periodically drains pending invites from an external fetcher until
// the context is cancelled. Used when the platform offers no push channel.
func (n *IncomingCallNotifier) Poll(ctx context.Context, interval time.Duration, fetch func(context.Context) ([]*domain.SignalMessage, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			invites, err := fetch(ctx)
			if err != nil {
				n.logger.Warnw("invite poll failed", "error", err)
				continue
			}
			for _, msg := range invites {
				if err := n.engine.DeliverInvite(ctx, msg); err != nil {
					n.logger.Debugw("polled invite not surfaced",
						"call_id", msg.CallID,
						"error", err,
					)
				}
			}
		}
	}
}
