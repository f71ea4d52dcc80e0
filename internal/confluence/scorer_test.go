package confluence_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/confluence"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/patterns"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

func newScorer(t *testing.T) *confluence.Scorer {
	t.Helper()
	return confluence.NewScorer(zap.NewNop(), config.Default().Confluence)
}

func strongLongInput() confluence.Input {
	avg := decimal.NewFromInt(100)
	return confluence.Input{
		Direction: types.DirectionLong,
		Votes: []confluence.Vote{
			{Indicator: types.IndicatorRSI, Direction: types.DirectionLong, Weight: 1.0},
			{Indicator: types.IndicatorMACD, Direction: types.DirectionLong, Weight: 1.1},
			{Indicator: types.IndicatorEMACross, Direction: types.DirectionLong, Weight: 1.0},
		},
		Patterns: []types.Pattern{
			{Type: patterns.PatternBullishEngulfing, Direction: types.DirectionLong, Confidence: 0.8},
		},
		LastVolume: decimal.NewFromInt(200),
		AvgVolume:  &avg,
		PeerDirections: map[types.Timeframe]types.Direction{
			types.Timeframe1h: types.DirectionLong,
			types.Timeframe4h: types.DirectionLong,
		},
	}
}

func TestScoreInRange(t *testing.T) {
	s := newScorer(t)
	score := s.Score(strongLongInput())
	if score.Value < 0 || score.Value > 100 {
		t.Fatalf("score = %v, want within [0,100]", score.Value)
	}
	for name, c := range map[string]float64{
		"indicatorAgreement": score.Components.IndicatorAgreement,
		"patternStrength":    score.Components.PatternStrength,
		"volumeConfirmation": score.Components.VolumeConfirmation,
		"timeframeConsensus": score.Components.TimeframeConsensus,
	} {
		if c < 0 || c > 1 {
			t.Errorf("%s = %v, want within [0,1]", name, c)
		}
	}
}

func TestFullAgreementScoresHigh(t *testing.T) {
	s := newScorer(t)
	score := s.Score(strongLongInput())
	if score.Value < config.Default().Confluence.QualityThreshold {
		t.Errorf("fully aligned input scored %v, expected above quality threshold", score.Value)
	}
	if !s.MeetsQuality(score) {
		t.Error("fully aligned input should meet quality gate")
	}
}

func TestDisagreementScoresLow(t *testing.T) {
	s := newScorer(t)
	in := strongLongInput()
	for i := range in.Votes {
		in.Votes[i].Direction = types.DirectionShort
	}
	in.Patterns = []types.Pattern{
		{Type: patterns.PatternBearishEngulfing, Direction: types.DirectionShort, Confidence: 0.8},
	}
	in.PeerDirections = map[types.Timeframe]types.Direction{
		types.Timeframe1h: types.DirectionShort,
		types.Timeframe4h: types.DirectionShort,
	}
	low := decimal.NewFromInt(20)
	in.LastVolume = low

	score := s.Score(in)
	if s.MeetsQuality(score) {
		t.Errorf("fully opposed input scored %v, should fail quality gate", score.Value)
	}
}

func TestNeutralVotesDoNotDiluteAgreement(t *testing.T) {
	s := newScorer(t)
	score := s.Score(confluence.Input{
		Direction: types.DirectionLong,
		Votes: []confluence.Vote{
			{Indicator: types.IndicatorMACD, Direction: types.DirectionLong, Weight: 1.1},
			{Indicator: types.IndicatorEMACross, Direction: types.DirectionLong, Weight: 1.0},
			{Indicator: types.IndicatorRSI, Direction: types.DirectionNeutral, Weight: 1.0},
			{Indicator: types.IndicatorStochastic, Direction: types.DirectionNeutral, Weight: 0.8},
		},
	})
	if got := score.Components.IndicatorAgreement; got != 1.0 {
		t.Errorf("agreement with unanimous directional votes = %v, want 1.0 (neutral votes cast no opinion)", got)
	}

	// All votes neutral: no opinion at all, not full disagreement.
	neutral := s.Score(confluence.Input{
		Direction: types.DirectionLong,
		Votes: []confluence.Vote{
			{Indicator: types.IndicatorRSI, Direction: types.DirectionNeutral, Weight: 1.0},
		},
	})
	if got := neutral.Components.IndicatorAgreement; got != 0.5 {
		t.Errorf("agreement with only neutral votes = %v, want 0.5", got)
	}
}

func TestDeterministic(t *testing.T) {
	s := newScorer(t)
	in := strongLongInput()
	first := s.Score(in)
	for i := 0; i < 50; i++ {
		if got := s.Score(in); *got != *first {
			t.Fatalf("score changed between identical calls: %+v vs %+v", got, first)
		}
	}
}

func TestMissingEvidenceIsNeutral(t *testing.T) {
	s := newScorer(t)
	score := s.Score(confluence.Input{Direction: types.DirectionLong})
	for name, c := range map[string]float64{
		"indicatorAgreement": score.Components.IndicatorAgreement,
		"patternStrength":    score.Components.PatternStrength,
		"volumeConfirmation": score.Components.VolumeConfirmation,
		"timeframeConsensus": score.Components.TimeframeConsensus,
	} {
		if c != 0.5 {
			t.Errorf("%s with no evidence = %v, want 0.5", name, c)
		}
	}
}
