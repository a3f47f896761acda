package main

import (
	"context"
	"flag"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
	"famcall/internal/core/services"
	"famcall/internal/infrastructure/monitoring"
	"famcall/internal/infrastructure/signal"
	"famcall/internal/infrastructure/webrtc"
	"famcall/pkg/config"
	"famcall/pkg/logger"

	"go.uber.org/zap"
)

// loopcall places a real call between two in-process engines over the
// in-memory transport. It exercises the full path: invite, ringing, accept,
// ICE, media flow, quality monitoring, hangup.
func main() {
	duration := flag.Duration("duration", 30*time.Second, "how long to keep the call up")
	video := flag.Bool("video", true, "offer video as well as audio")
	flag.Parse()

	cfg := config.DefaultConfig()
	log := logger.New(cfg.Logging.Level, "console")
	defer log.Sync()
	sugar := log.Sugar()

	transport := signal.NewMemoryTransport()
	metrics := monitoring.NewPrometheusCallMetrics()

	alice := newEngine("alice", cfg, transport, metrics, sugar.With("user", "alice"))
	bob := newEngine("bob", cfg, transport, metrics, sugar.With("user", "bob"))

	ctx := context.Background()

	// Bob answers everything.
	bob.OnIncomingCall(func(h ports.CallHandle) {
		sugar.Infow("incoming call", "call_id", h.ID(), "from", h.Info().Remote)
		go func() {
			handle, err := bob.AcceptCall(ctx, h.ID())
			if err != nil {
				sugar.Errorw("accept failed", "error", err)
				return
			}
			watch(handle, sugar.With("side", "bob"))
		}()
	})

	if err := alice.Start(ctx); err != nil {
		sugar.Fatalw("failed to start caller engine", "error", err)
	}
	if err := bob.Start(ctx); err != nil {
		sugar.Fatalw("failed to start callee engine", "error", err)
	}

	handle, err := alice.PlaceCall(ctx, "bob", domain.MediaConstraints{Audio: true, Video: *video})
	if err != nil {
		sugar.Fatalw("failed to place call", "error", err)
	}
	watch(handle, sugar.With("side", "alice"))

	time.Sleep(*duration)

	if err := alice.EndCall(ctx, handle.ID()); err != nil {
		sugar.Warnw("hangup failed", "error", err)
	}
	time.Sleep(time.Second)

	alice.Close(ctx)
	bob.Close(ctx)
	sugar.Info("loopback call complete")
}

func newEngine(user domain.UserID, cfg *config.Config, transport ports.SignalTransport, metrics ports.CallMetrics, sugar *zap.SugaredLogger) *services.Engine {
	monitor := services.NewQualityMonitor(services.QualityMonitorConfig{
		SampleInterval:   cfg.Quality.SampleInterval,
		UpgradeSamples:   cfg.Quality.UpgradeSamples,
		DowngradeSamples: cfg.Quality.DowngradeSamples,
		AudioFloorKbps:   cfg.Quality.AudioFloorKbps,
	}, services.NewQualityService(), metrics, sugar)

	return services.NewEngine(services.EngineConfig{
		ReconnectGuard:    cfg.Engine.ReconnectGuard,
		ICERestartGrace:   cfg.Engine.ICERestartGrace,
		DisconnectTimeout: cfg.Engine.DisconnectTimeout,
		RingTimeout:       cfg.Engine.RingTimeout,
	}, user, transport, webrtc.NewLinkFactory(cfg, sugar), webrtc.NewSyntheticSource(sugar), monitor, metrics, sugar)
}

func watch(h ports.CallHandle, sugar *zap.SugaredLogger) {
	h.OnStateChange(func(state domain.CallState) {
		sugar.Infow("call state", "call_id", h.ID(), "state", state)
	})
	h.OnQualityChange(func(tier domain.QualityTier, sample domain.QualitySample) {
		sugar.Infow("quality tier",
			"tier", tier,
			"score", sample.Score,
			"bandwidth_kbps", sample.Stats.AvailableBandwidth,
			"rtt", sample.Stats.RoundTrip,
		)
	})
	h.OnRemoteMediaChange(func(kind domain.MediaKind, disabled bool) {
		sugar.Infow("remote media", "kind", kind, "disabled", disabled)
	})
}
