package services

import (
	"context"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"

	"go.uber.org/zap"
)

// QualityMonitorConfig carries the sampling and hysteresis parameters. The
// asymmetry between upgrade and downgrade windows is intentional: dropping
// quality must be fast to keep the call alive, raising it must be slow
// enough not to oscillate on unstable links.
type QualityMonitorConfig struct {
	SampleInterval   time.Duration
	UpgradeSamples   int
	DowngradeSamples int
	AudioFloorKbps   int
}

func DefaultQualityMonitorConfig() QualityMonitorConfig {
	return QualityMonitorConfig{
		SampleInterval:   2 * time.Second,
		UpgradeSamples:   5,
		DowngradeSamples: 2,
		AudioFloorKbps:   100,
	}
}

// QualityMonitor samples transport statistics on an interval, classifies
// them into tiers with hysteresis and keeps the applied media parameters in
// lock-step. It reads connection statistics and writes sender parameters but
// never replaces the connection itself.
type QualityMonitor struct {
	cfg     QualityMonitorConfig
	quality *QualityService
	metrics ports.CallMetrics
	logger  *zap.SugaredLogger
}

func NewQualityMonitor(cfg QualityMonitorConfig, quality *QualityService, metrics ports.CallMetrics, logger *zap.SugaredLogger) *QualityMonitor {
	return &QualityMonitor{
		cfg:     cfg,
		quality: quality,
		metrics: metrics,
		logger:  logger,
	}
}

// tierTracker applies run-length hysteresis over classified samples.
type tierTracker struct {
	current     domain.QualityTier
	initialized bool

	upRun   int
	downRun int
	// Worst tier seen during the current upgrade run; the upgrade lands on
	// the level every sample of the run supported.
	upCandidate domain.QualityTier
	// Best tier seen during the current downgrade run, for the same reason
	// in the other direction.
	downCandidate domain.QualityTier
}

// observe feeds one classified sample and reports whether the current tier
// changed. The first sample seeds the tier directly; hysteresis applies from
// then on.
func (t *tierTracker) observe(tier domain.QualityTier, upgradeSamples, downgradeSamples int) bool {
	if !t.initialized {
		t.current = tier
		t.initialized = true
		return true
	}

	switch {
	case tier > t.current:
		t.downRun = 0
		if t.upRun == 0 || tier < t.upCandidate {
			t.upCandidate = tier
		}
		t.upRun++
		if t.upRun >= upgradeSamples {
			t.current = t.upCandidate
			t.upRun = 0
			return true
		}
	case tier < t.current:
		t.upRun = 0
		if t.downRun == 0 || tier > t.downCandidate {
			t.downCandidate = tier
		}
		t.downRun++
		if t.downRun >= downgradeSamples {
			t.current = t.downCandidate
			t.downRun = 0
			return true
		}
	default:
		t.upRun = 0
		t.downRun = 0
	}
	return false
}

// statsUnreported reports whether a reading carries no transport evidence
// at all, as before the first RTCP report.
func statsUnreported(s domain.TransportStats) bool {
	return s.AvailableBandwidth == 0 && s.RoundTrip == 0 && s.PacketLossRatio == 0 && s.Jitter == 0
}

// Run samples until the context is cancelled. notify receives every sample;
// preset application happens only on tier changes. Cancellation comes from
// the termination coordinator.
func (m *QualityMonitor) Run(ctx context.Context, callID domain.CallID, link ports.PeerLink, media ports.LocalMedia, notify func(domain.QualityTier, domain.QualitySample)) {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	var tracker tierTracker

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := link.Stats(ctx)
			if err != nil {
				m.logger.Debugw("stats read failed, skipping sample",
					"call_id", callID,
					"error", err,
				)
				continue
			}

			// Before any RTCP arrives every counter reads zero. That is
			// absence of evidence, not a healthy link; the first
			// classification waits for a real reading.
			if !tracker.initialized && statsUnreported(stats) {
				continue
			}

			sample := m.quality.Sample(stats)

			// Hard floor: video off whenever bandwidth cannot carry it,
			// independent of tier bookkeeping. Audio is never disabled.
			if stats.AvailableBandwidth > 0 && stats.AvailableBandwidth < m.cfg.AudioFloorKbps {
				if media.Enabled(domain.MediaKindVideo) {
					m.logger.Warnw("bandwidth below audio floor, forcing video off",
						"call_id", callID,
						"bandwidth_kbps", stats.AvailableBandwidth,
						"floor_kbps", m.cfg.AudioFloorKbps,
					)
					media.ForceVideoOff()
				}
			}

			if tracker.observe(sample.Tier, m.cfg.UpgradeSamples, m.cfg.DowngradeSamples) {
				m.applyTier(callID, tracker.current, media)
				m.metrics.TierChanged(tracker.current)
				if notify != nil {
					notify(tracker.current, sample)
				}
			}
		}
	}
}

// applyTier pushes the tier's preset to the local media. Applying to media
// with no senders yet is a no-op, not an error.
func (m *QualityMonitor) applyTier(callID domain.CallID, tier domain.QualityTier, media ports.LocalMedia) {
	if media.SenderCount() == 0 {
		m.logger.Debugw("no outgoing tracks yet, preset not applied",
			"call_id", callID,
			"tier", tier.String(),
		)
		return
	}

	preset := m.quality.Preset(tier)
	media.ApplyPreset(preset)

	m.logger.Infow("quality tier applied",
		"call_id", callID,
		"tier", tier.String(),
		"video_enabled", preset.VideoEnabled,
		"video_kbps", preset.VideoBitrateKbps,
		"audio_kbps", preset.AudioBitrateKbps,
	)
}
