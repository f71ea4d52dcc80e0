// Package patterns detects candlestick patterns on the tail of a price
// series. Only the most recent bars matter: a pattern is a trigger for the
// current cycle, not a historical scan.
package patterns

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

const (
	PatternBullishEngulfing = "bullish_engulfing"
	PatternBearishEngulfing = "bearish_engulfing"
	PatternHammer           = "hammer"
	PatternShootingStar     = "shooting_star"
	PatternDoji             = "doji"
)

var (
	two = decimal.NewFromInt(2)
	ten = decimal.NewFromInt(10)
)

// Detector scans the last bars of a series for candlestick patterns.
type Detector struct {
	logger *zap.Logger
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("patterns")}
}

// Detect returns every pattern confirmed on the final bar(s). The result
// order is stable for a given series so downstream scoring stays
// deterministic.
func (d *Detector) Detect(series *types.PriceSeries) []types.Pattern {
	bars := series.Bars
	if len(bars) < 2 {
		return nil
	}

	var out []types.Pattern
	prev, last := bars[len(bars)-2], bars[len(bars)-1]

	if p, ok := engulfing(prev, last); ok {
		out = append(out, p)
	}
	if p, ok := hammer(last); ok {
		out = append(out, p)
	}
	if p, ok := shootingStar(last); ok {
		out = append(out, p)
	}
	if p, ok := doji(last); ok {
		out = append(out, p)
	}

	if len(out) > 0 {
		names := make([]string, len(out))
		for i, p := range out {
			names[i] = p.Type
		}
		d.logger.Debug("patterns detected",
			zap.String("symbol", series.Symbol),
			zap.String("timeframe", string(series.Timeframe)),
			zap.Strings("patterns", names),
		)
	}
	return out
}

// engulfing fires when the last body fully covers the previous body and
// reverses its color.
func engulfing(prev, last types.OHLCV) (types.Pattern, bool) {
	prevBull := prev.Close.GreaterThan(prev.Open)
	lastBull := last.Close.GreaterThan(last.Open)

	switch {
	case lastBull && !prevBull &&
		last.Open.LessThan(prev.Close) && last.Close.GreaterThan(prev.Open):
		return types.Pattern{
			Type:       PatternBullishEngulfing,
			Direction:  types.DirectionLong,
			Confidence: engulfConfidence(prev, last),
		}, true
	case !lastBull && prevBull &&
		last.Open.GreaterThan(prev.Close) && last.Close.LessThan(prev.Open):
		return types.Pattern{
			Type:       PatternBearishEngulfing,
			Direction:  types.DirectionShort,
			Confidence: engulfConfidence(prev, last),
		}, true
	}
	return types.Pattern{}, false
}

// engulfConfidence grows with how much larger the engulfing body is,
// capped at 0.9.
func engulfConfidence(prev, last types.OHLCV) float64 {
	prevBody := body(prev)
	lastBody := body(last)
	if prevBody.IsZero() {
		return 0.9
	}
	ratio := lastBody.Div(prevBody).InexactFloat64()
	conf := 0.5 + 0.1*ratio
	if conf > 0.9 {
		conf = 0.9
	}
	return conf
}

// hammer: small body in the top third of the range with a lower shadow at
// least twice the body.
func hammer(bar types.OHLCV) (types.Pattern, bool) {
	rng := bar.High.Sub(bar.Low)
	if rng.IsZero() {
		return types.Pattern{}, false
	}
	b := body(bar)
	lower := decimal.Min(bar.Open, bar.Close).Sub(bar.Low)
	upper := bar.High.Sub(decimal.Max(bar.Open, bar.Close))

	if lower.GreaterThanOrEqual(b.Mul(two)) && upper.LessThan(b) && !b.IsZero() {
		return types.Pattern{
			Type:       PatternHammer,
			Direction:  types.DirectionLong,
			Confidence: 0.65,
		}, true
	}
	return types.Pattern{}, false
}

// shootingStar is the hammer mirrored: long upper shadow, small body at
// the bottom of the range.
func shootingStar(bar types.OHLCV) (types.Pattern, bool) {
	rng := bar.High.Sub(bar.Low)
	if rng.IsZero() {
		return types.Pattern{}, false
	}
	b := body(bar)
	lower := decimal.Min(bar.Open, bar.Close).Sub(bar.Low)
	upper := bar.High.Sub(decimal.Max(bar.Open, bar.Close))

	if upper.GreaterThanOrEqual(b.Mul(two)) && lower.LessThan(b) && !b.IsZero() {
		return types.Pattern{
			Type:       PatternShootingStar,
			Direction:  types.DirectionShort,
			Confidence: 0.65,
		}, true
	}
	return types.Pattern{}, false
}

// doji: the body is under a tenth of the range. Direction is NEUTRAL; a
// doji confirms indecision, not a side.
func doji(bar types.OHLCV) (types.Pattern, bool) {
	rng := bar.High.Sub(bar.Low)
	if rng.IsZero() {
		return types.Pattern{}, false
	}
	if body(bar).Mul(ten).LessThanOrEqual(rng) {
		return types.Pattern{
			Type:       PatternDoji,
			Direction:  types.DirectionNeutral,
			Confidence: 0.55,
		}, true
	}
	return types.Pattern{}, false
}

func body(bar types.OHLCV) decimal.Decimal {
	return bar.Close.Sub(bar.Open).Abs()
}
