package ports

import (
	"time"

	"famcall/internal/core/domain"
)

// CallMetrics is the engine's observability sink.
type CallMetrics interface {
	CallStarted(role domain.Role)
	CallEnded(reason domain.EndReason, duration time.Duration)
	CallEstablished(setup time.Duration)
	TierChanged(tier domain.QualityTier)
	SignalSent(kind domain.MessageKind)
	SignalReceived(kind domain.MessageKind)
	ICERestartAttempted()
	ReconnectionHandled(success bool)
}
