package services

import (
	"time"

	"famcall/internal/core/domain"
)

// Score weighting. Bandwidth dominates because it is the binding constraint
// on 2G/3G links; loss and RTT split most of the remainder.
const (
	bandwidthPoints = 40
	rttPoints       = 25
	lossPoints      = 25
	jitterPoints    = 10

	fullScoreBandwidthKbps = 2500
	worstRTT               = 1000 * time.Millisecond
	bestRTT                = 50 * time.Millisecond
	worstLossRatio         = 0.20
	worstJitter            = 200 * time.Millisecond
	bestJitter             = 10 * time.Millisecond
)

// Tier floors on the 0-100 score.
const (
	floorPoor      = 20
	floorModerate  = 40
	floorGood      = 60
	floorExcellent = 80
)

// QualityService computes the 0-100 transport health score and maps it to a
// tier. The score is monotonic in each input: more bandwidth raises it,
// more RTT/loss/jitter lowers it.
type QualityService struct {
	presets map[domain.QualityTier]domain.TierPreset
}

func NewQualityService() *QualityService {
	return &QualityService{
		presets: domain.DefaultTierPresets(),
	}
}

// Score computes the composite health score for one stats reading.
func (qs *QualityService) Score(stats domain.TransportStats) int {
	score := 0.0

	bw := float64(stats.AvailableBandwidth)
	if bw > fullScoreBandwidthKbps {
		bw = fullScoreBandwidthKbps
	}
	if bw < 0 {
		bw = 0
	}
	score += bandwidthPoints * bw / fullScoreBandwidthKbps

	score += rttPoints * inverseRange(stats.RoundTrip, bestRTT, worstRTT)

	loss := stats.PacketLossRatio
	if loss < 0 {
		loss = 0
	}
	if loss > worstLossRatio {
		loss = worstLossRatio
	}
	score += lossPoints * (1 - loss/worstLossRatio)

	score += jitterPoints * inverseRange(stats.Jitter, bestJitter, worstJitter)

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score + 0.5)
}

// inverseRange maps d in [best, worst] onto [1, 0] linearly.
func inverseRange(d, best, worst time.Duration) float64 {
	if d <= best {
		return 1
	}
	if d >= worst {
		return 0
	}
	return 1 - float64(d-best)/float64(worst-best)
}

// Classify maps a score to its tier via the fixed floors.
func (qs *QualityService) Classify(score int) domain.QualityTier {
	switch {
	case score >= floorExcellent:
		return domain.TierExcellent
	case score >= floorGood:
		return domain.TierGood
	case score >= floorModerate:
		return domain.TierModerate
	case score >= floorPoor:
		return domain.TierPoor
	default:
		return domain.TierCritical
	}
}

// Sample scores and classifies one stats reading.
func (qs *QualityService) Sample(stats domain.TransportStats) domain.QualitySample {
	score := qs.Score(stats)
	return domain.QualitySample{
		Stats: stats,
		Score: score,
		Tier:  qs.Classify(score),
	}
}

// Preset returns the media parameters for a tier.
func (qs *QualityService) Preset(tier domain.QualityTier) domain.TierPreset {
	return qs.presets[tier]
}
