// Package synthesizer turns indicator sets, regime context and confluence
// evidence into trade signals.
package synthesizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/confluence"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/weights"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// ErrInsufficientData marks a unit that cannot produce a signal this cycle.
// It is a normal pipeline outcome, not a failure.
var ErrInsufficientData = errors.New("insufficient data for synthesis")

// Input carries everything one synthesis needs. All fields are treated as
// immutable; the synthesizer never mutates upstream state.
type Input struct {
	Series         *types.PriceSeries
	Set            *types.IndicatorSet
	Regime         *types.MarketRegime
	Patterns       []types.Pattern
	PeerDirections map[types.Timeframe]types.Direction
}

// Synthesizer derives signals from per-unit inputs. Weight reads go
// through the adaptive manager at synthesis time, so feedback recorded
// between cycles takes effect on the next signal.
type Synthesizer struct {
	logger  *zap.Logger
	cfg     config.SynthesizerConfig
	minBars int
	weights *weights.Manager
	scorer  *confluence.Scorer
}

// New creates a synthesizer. minBars is the series length below which a
// unit reports insufficient data instead of guessing.
func New(logger *zap.Logger, cfg config.SynthesizerConfig, minBars int, wm *weights.Manager, scorer *confluence.Scorer) *Synthesizer {
	return &Synthesizer{
		logger:  logger.Named("synthesizer"),
		cfg:     cfg,
		minBars: minBars,
		weights: wm,
		scorer:  scorer,
	}
}

// Draft is the directional verdict of one unit before confluence scoring.
// Splitting synthesis at this point lets every unit's direction feed the
// other timeframes' consensus within the same cycle.
type Draft struct {
	in        Input
	votes     []confluence.Vote
	score     float64
	direction types.Direction
}

// Direction returns the draft's pre-confluence directional call.
func (d *Draft) Direction() types.Direction {
	return d.direction
}

// Series returns the price series the draft was computed from.
func (d *Draft) Series() *types.PriceSeries {
	return d.in.Series
}

// Prepare validates the input and computes the weighted directional vote.
// Returns ErrInsufficientData when the series is too short or the
// indicators needed for risk levels are absent.
func (s *Synthesizer) Prepare(in Input) (*Draft, error) {
	if in.Series == nil || in.Set == nil || in.Regime == nil {
		return nil, fmt.Errorf("synthesize: missing input")
	}
	if len(in.Series.Bars) < s.minBars {
		return nil, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientData, len(in.Series.Bars), s.minBars)
	}
	if in.Set.ATR == nil {
		// Without ATR there is no defensible stop distance.
		return nil, fmt.Errorf("%w: atr unavailable", ErrInsufficientData)
	}

	votes := s.collectVotes(in.Set, in.Regime)
	score := voteScore(votes)
	return &Draft{
		in:        in,
		votes:     votes,
		score:     score,
		direction: s.direction(score),
	}, nil
}

// Synthesize runs both stages for one unit, taking the peer directions
// from the input.
func (s *Synthesizer) Synthesize(in Input) (*types.Signal, error) {
	draft, err := s.Prepare(in)
	if err != nil {
		return nil, err
	}
	return s.Finalize(draft, in.PeerDirections)
}

// Finalize scores confluence against the peer directions and assembles
// the signal.
func (s *Synthesizer) Finalize(draft *Draft, peers map[types.Timeframe]types.Direction) (*types.Signal, error) {
	in := draft.in
	votes, score, direction := draft.votes, draft.score, draft.direction

	conf := s.scorer.Score(confluence.Input{
		Direction:      direction,
		Votes:          votes,
		Patterns:       in.Patterns,
		LastVolume:     in.Set.LastVolume,
		AvgVolume:      in.Set.AvgVolume,
		PeerDirections: peers,
	})

	reasoning := s.reasoning(votes, score, in.Regime, conf)

	// A directional call that independent evidence does not back is worse
	// than no call.
	if direction != types.DirectionNeutral && !s.scorer.MeetsQuality(conf) {
		reasoning = append(reasoning, fmt.Sprintf(
			"confluence %.1f below quality gate, demoted to NEUTRAL", conf.Value))
		direction = types.DirectionNeutral
	}

	signal := &types.Signal{
		ID:           uuid.NewString(),
		Symbol:       in.Series.Symbol,
		Timeframe:    in.Series.Timeframe,
		Direction:    direction,
		Confidence:   confidence(direction, score, conf, in.Regime),
		EntryPrice:   in.Set.LastClose,
		Reasoning:    reasoning,
		Regime:       in.Regime,
		Confluence:   conf,
		Contributors: contributors(direction, votes),
		DataQuality:  in.Series.Quality * 100,
		Timestamp:    time.Now().UTC(),
	}

	if direction != types.DirectionNeutral {
		signal.StopLoss, signal.TakeProfit = s.riskLevels(direction, in.Set.LastClose, *in.Set.ATR, in.Series.Timeframe)
	}

	s.logger.Debug("signal synthesized",
		zap.String("symbol", signal.Symbol),
		zap.String("timeframe", string(signal.Timeframe)),
		zap.String("direction", string(signal.Direction)),
		zap.Float64("score", score),
		zap.Float64("confluence", conf.Value),
	)

	return signal, nil
}

// collectVotes turns the indicator set into weighted directional votes.
// Each weight is the adaptive weight scaled by the regime multiplier;
// multipliers are positive, so a regime can mute a vote but never flip it.
func (s *Synthesizer) collectVotes(set *types.IndicatorSet, regime *types.MarketRegime) []confluence.Vote {
	votes := make([]confluence.Vote, 0, len(types.AllIndicators()))

	add := func(name string, dir types.Direction) {
		w := s.weights.Weight(name)
		if mult, ok := regime.Adjustments[name]; ok && mult > 0 {
			w *= mult
		}
		votes = append(votes, confluence.Vote{Indicator: name, Direction: dir, Weight: w})
	}

	if set.RSI != nil {
		switch {
		case set.RSI.LessThan(decimal.NewFromInt(30)):
			add(types.IndicatorRSI, types.DirectionLong)
		case set.RSI.GreaterThan(decimal.NewFromInt(70)):
			add(types.IndicatorRSI, types.DirectionShort)
		default:
			add(types.IndicatorRSI, types.DirectionNeutral)
		}
	}

	if set.MACD != nil {
		switch {
		case set.MACD.Histogram.IsPositive():
			add(types.IndicatorMACD, types.DirectionLong)
		case set.MACD.Histogram.IsNegative():
			add(types.IndicatorMACD, types.DirectionShort)
		default:
			add(types.IndicatorMACD, types.DirectionNeutral)
		}
	}

	if set.Bollinger != nil {
		switch {
		case set.LastClose.LessThan(set.Bollinger.Lower):
			add(types.IndicatorBollinger, types.DirectionLong)
		case set.LastClose.GreaterThan(set.Bollinger.Upper):
			add(types.IndicatorBollinger, types.DirectionShort)
		default:
			add(types.IndicatorBollinger, types.DirectionNeutral)
		}
	}

	if set.Stochastic != nil {
		switch {
		case set.Stochastic.K.LessThan(decimal.NewFromInt(20)):
			add(types.IndicatorStochastic, types.DirectionLong)
		case set.Stochastic.K.GreaterThan(decimal.NewFromInt(80)):
			add(types.IndicatorStochastic, types.DirectionShort)
		default:
			add(types.IndicatorStochastic, types.DirectionNeutral)
		}
	}

	if set.EMA12 != nil && set.EMA26 != nil {
		switch {
		case set.EMA12.GreaterThan(*set.EMA26):
			add(types.IndicatorEMACross, types.DirectionLong)
		case set.EMA12.LessThan(*set.EMA26):
			add(types.IndicatorEMACross, types.DirectionShort)
		default:
			add(types.IndicatorEMACross, types.DirectionNeutral)
		}
	}

	// ATR measures volatility, not direction; it sizes the risk levels
	// but casts no vote.

	return votes
}

// voteScore normalizes the weighted long/short balance to [-1, 1].
// Neutral votes count toward the denominator, so widespread indecision
// pulls the score toward zero.
func voteScore(votes []confluence.Vote) float64 {
	total, net := 0.0, 0.0
	for _, v := range votes {
		total += v.Weight
		switch v.Direction {
		case types.DirectionLong:
			net += v.Weight
		case types.DirectionShort:
			net -= v.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return net / total
}

func (s *Synthesizer) direction(score float64) types.Direction {
	switch {
	case score > s.cfg.UpperThreshold:
		return types.DirectionLong
	case score < s.cfg.LowerThreshold:
		return types.DirectionShort
	default:
		return types.DirectionNeutral
	}
}

// riskLevels places the stop and target as ATR multiples from entry.
// For SHORT the stop sits above entry and the target below.
func (s *Synthesizer) riskLevels(dir types.Direction, entry, atr decimal.Decimal, tf types.Timeframe) (stop, target decimal.Decimal) {
	m, ok := s.cfg.ATRMultiples[string(tf)]
	if !ok {
		m = config.ATRMultiples{Stop: 2.0, Target: 4.0}
	}
	stopDist := atr.Mul(decimal.NewFromFloat(m.Stop))
	targetDist := atr.Mul(decimal.NewFromFloat(m.Target))

	if dir == types.DirectionShort {
		return entry.Add(stopDist), entry.Sub(targetDist)
	}
	return entry.Sub(stopDist), entry.Add(targetDist)
}

// confidence starts at the confluence value and moves toward 100 with
// vote conviction and regime certainty, so a signal that clears the
// quality gate never reports confidence below its confluence. Neutral
// signals carry reduced confidence; they assert the absence of an edge,
// not a tradable view.
func confidence(dir types.Direction, score float64, conf *types.ConfluenceScore, regime *types.MarketRegime) float64 {
	mag := score
	if mag < 0 {
		mag = -mag
	}
	if mag > 1 {
		mag = 1
	}

	base := conf.Value + (100-conf.Value)*mag*regime.Confidence
	if dir == types.DirectionNeutral {
		base *= 0.6
	}
	if base > 100 {
		base = 100
	}
	if base < 0 {
		base = 0
	}
	return base
}

// contributors lists the indicators that voted with the final direction,
// for outcome attribution when the trade resolves.
func contributors(dir types.Direction, votes []confluence.Vote) []string {
	out := make([]string, 0, len(votes))
	for _, v := range votes {
		if v.Direction == dir {
			out = append(out, v.Indicator)
		}
	}
	return out
}

func (s *Synthesizer) reasoning(votes []confluence.Vote, score float64, regime *types.MarketRegime, conf *types.ConfluenceScore) []string {
	out := make([]string, 0, len(votes)+2)
	for _, v := range votes {
		if v.Direction != types.DirectionNeutral {
			out = append(out, fmt.Sprintf("%s votes %s (weight %.2f)", v.Indicator, v.Direction, v.Weight))
		}
	}
	out = append(out, fmt.Sprintf("weighted vote score %.3f in %s regime (trend %.2f, volatility %.2f)",
		score, regime.Type, regime.TrendStrength, regime.Volatility))
	out = append(out, fmt.Sprintf("confluence %.1f (indicators %.2f, patterns %.2f, volume %.2f, timeframes %.2f)",
		conf.Value,
		conf.Components.IndicatorAgreement,
		conf.Components.PatternStrength,
		conf.Components.VolumeConfirmation,
		conf.Components.TimeframeConsensus))
	return out
}
