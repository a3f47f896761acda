package domain

import "time"

// QualityTier is one of five ordered connection quality levels.
type QualityTier int

const (
	TierCritical QualityTier = iota
	TierPoor
	TierModerate
	TierGood
	TierExcellent
)

func (t QualityTier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierPoor:
		return "poor"
	case TierModerate:
		return "moderate"
	case TierGood:
		return "good"
	case TierExcellent:
		return "excellent"
	}
	return "unknown"
}

// TransportStats are the raw transport-level counters pulled from the peer
// connection on each sampling interval.
type TransportStats struct {
	Timestamp          time.Time
	AvailableBandwidth int // kbps, outgoing
	RoundTrip          time.Duration
	PacketLossRatio    float64 // 0.0 - 1.0
	Jitter             time.Duration
}

// QualitySample is a classified reading produced by the quality monitor.
// Samples are ephemeral; hysteresis only needs run-length counters, not a
// history.
type QualitySample struct {
	Stats TransportStats
	Score int // 0-100
	Tier  QualityTier
}

// TierPreset holds the media parameters applied when a tier becomes current.
type TierPreset struct {
	VideoEnabled     bool
	Width            int
	Height           int
	FrameRate        int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// DefaultTierPresets returns the preset table. Audio is carried at every
// tier; video is shed first.
func DefaultTierPresets() map[QualityTier]TierPreset {
	return map[QualityTier]TierPreset{
		TierCritical:  {VideoEnabled: false, VideoBitrateKbps: 0, AudioBitrateKbps: 24},
		TierPoor:      {VideoEnabled: true, Width: 320, Height: 240, FrameRate: 15, VideoBitrateKbps: 150, AudioBitrateKbps: 32},
		TierModerate:  {VideoEnabled: true, Width: 640, Height: 480, FrameRate: 24, VideoBitrateKbps: 500, AudioBitrateKbps: 48},
		TierGood:      {VideoEnabled: true, Width: 1280, Height: 720, FrameRate: 30, VideoBitrateKbps: 1500, AudioBitrateKbps: 64},
		TierExcellent: {VideoEnabled: true, Width: 1280, Height: 720, FrameRate: 30, VideoBitrateKbps: 2500, AudioBitrateKbps: 64},
	}
}
