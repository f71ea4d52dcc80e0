// Package confluence scores how many independent sources of confirmation
// back a candidate direction. The score is a pure function of its inputs;
// no randomness is ever mixed in.
package confluence

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Vote is one indicator's directional opinion with its effective weight
// (adaptive weight times regime adjustment).
type Vote struct {
	Indicator string
	Direction types.Direction
	Weight    float64
}

// Input gathers everything a confluence score depends on.
type Input struct {
	Direction  types.Direction
	Votes      []Vote
	Patterns   []types.Pattern
	LastVolume decimal.Decimal
	AvgVolume  *decimal.Decimal

	// PeerDirections holds the directions reached on the symbol's other
	// timeframes in the same cycle.
	PeerDirections map[types.Timeframe]types.Direction
}

// Scorer combines the four component scores using configured weights.
type Scorer struct {
	logger *zap.Logger
	cfg    config.ConfluenceConfig
}

func NewScorer(logger *zap.Logger, cfg config.ConfluenceConfig) *Scorer {
	return &Scorer{
		logger: logger.Named("confluence"),
		cfg:    cfg,
	}
}

// Score computes the 0-100 confluence value. Each component is in [0,1]
// and missing evidence scores mid-range rather than zero, so one absent
// source cannot veto the others.
func (s *Scorer) Score(in Input) *types.ConfluenceScore {
	comps := types.ConfluenceComponents{
		IndicatorAgreement: indicatorAgreement(in.Direction, in.Votes),
		PatternStrength:    patternStrength(in.Direction, in.Patterns),
		VolumeConfirmation: volumeConfirmation(in.LastVolume, in.AvgVolume),
		TimeframeConsensus: timeframeConsensus(in.Direction, in.PeerDirections),
	}

	value := 100 * (s.cfg.IndicatorWeight*comps.IndicatorAgreement +
		s.cfg.PatternWeight*comps.PatternStrength +
		s.cfg.VolumeWeight*comps.VolumeConfirmation +
		s.cfg.TimeframeWeight*comps.TimeframeConsensus)

	return &types.ConfluenceScore{Value: clamp01(value/100) * 100, Components: comps}
}

// MeetsQuality reports whether the score clears the configured gate.
func (s *Scorer) MeetsQuality(score *types.ConfluenceScore) bool {
	return score.Value >= s.cfg.QualityThreshold
}

// indicatorAgreement is the weight fraction of directional votes matching
// the candidate direction. Neutral votes cast no opinion and stay out of
// the denominator; indecision is not disagreement.
func indicatorAgreement(dir types.Direction, votes []Vote) float64 {
	total, agree := 0.0, 0.0
	for _, v := range votes {
		if v.Weight <= 0 || v.Direction == types.DirectionNeutral {
			continue
		}
		total += v.Weight
		if v.Direction == dir {
			agree += v.Weight
		}
	}
	if total == 0 {
		return 0.5
	}
	return agree / total
}

// patternStrength nets aligned pattern confidence against opposing
// confidence. No patterns at all is neutral evidence, not absence of it.
func patternStrength(dir types.Direction, ps []types.Pattern) float64 {
	if len(ps) == 0 {
		return 0.5
	}
	net := 0.0
	for _, p := range ps {
		switch {
		case p.Direction == dir:
			net += p.Confidence
		case p.Direction == types.DirectionNeutral || dir == types.DirectionNeutral:
			// Indecision neither confirms nor opposes a side.
		default:
			net -= p.Confidence
		}
	}
	return clamp01(0.5 + net/2)
}

// volumeConfirmation maps the last-bar volume relative to its 20-bar
// average: average volume scores 0.5, double or more scores 1.
func volumeConfirmation(last decimal.Decimal, avg *decimal.Decimal) float64 {
	if avg == nil || avg.IsZero() {
		return 0.5
	}
	ratio := last.Div(*avg).InexactFloat64()
	return clamp01(ratio / 2)
}

// timeframeConsensus is the fraction of peer timeframes agreeing with the
// candidate direction. A lone timeframe has nothing to disagree with.
func timeframeConsensus(dir types.Direction, peers map[types.Timeframe]types.Direction) float64 {
	if len(peers) == 0 {
		return 0.5
	}
	agree := 0
	for _, d := range peers {
		if d == dir {
			agree++
		}
	}
	return float64(agree) / float64(len(peers))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
