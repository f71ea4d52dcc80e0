// Package regime classifies the coarse market state from indicator output.
// The classification is a deterministic threshold lookup, not a learned
// model: the same IndicatorSet always yields the same regime.
package regime

import (
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Detector derives a MarketRegime from an IndicatorSet.
type Detector struct {
	logger *zap.Logger
	cfg    config.RegimeConfig
}

// NewDetector creates a regime detector.
func NewDetector(logger *zap.Logger, cfg config.RegimeConfig) *Detector {
	return &Detector{
		logger: logger.Named("regime"),
		cfg:    cfg,
	}
}

// Classify computes trend strength and normalized volatility and maps them
// to BULL/BEAR/SIDEWAYS. Trending regimes are evaluated before SIDEWAYS;
// SIDEWAYS is the residual class.
func (d *Detector) Classify(set *types.IndicatorSet) *types.MarketRegime {
	trend := d.trendStrength(set)
	vol := d.volatility(set)

	regime := &types.MarketRegime{
		TrendStrength: trend,
		Volatility:    vol,
	}

	switch {
	case trend > d.cfg.TrendThreshold && vol < d.cfg.VolatilityThreshold:
		regime.Type = types.RegimeBull
		regime.Confidence = d.cfg.BullConfidence
		regime.Adjustments = adjustmentsFor(d.cfg.BullAdjustments)
	case trend < -d.cfg.TrendThreshold && vol < d.cfg.VolatilityThreshold:
		regime.Type = types.RegimeBear
		regime.Confidence = d.cfg.BearConfidence
		regime.Adjustments = adjustmentsFor(d.cfg.BearAdjustments)
	default:
		regime.Type = types.RegimeSideways
		regime.Confidence = d.cfg.SidewaysConfidence
		regime.Adjustments = adjustmentsFor(d.cfg.SidewaysAdjustments)
	}

	d.logger.Debug("regime classified",
		zap.String("symbol", set.Symbol),
		zap.String("timeframe", string(set.Timeframe)),
		zap.String("regime", string(regime.Type)),
		zap.Float64("trend", trend),
		zap.Float64("volatility", vol),
	)

	return regime
}

// trendStrength averages the short-vs-medium and medium-vs-long EMA
// divergences as signed fractional differences, scaled so that TrendScale
// saturates to +/-1. With EMA50 unavailable only the short-medium leg is
// used rather than faking a long-term view.
func (d *Detector) trendStrength(set *types.IndicatorSet) float64 {
	if set.EMA12 == nil || set.EMA26 == nil || set.EMA26.IsZero() {
		return 0
	}

	shortMed := set.EMA12.Sub(*set.EMA26).Div(*set.EMA26).InexactFloat64()

	div := shortMed
	if set.EMA50 != nil && !set.EMA50.IsZero() {
		medLong := set.EMA26.Sub(*set.EMA50).Div(*set.EMA50).InexactFloat64()
		div = (shortMed + medLong) / 2
	}

	return clamp(div/d.cfg.TrendScale, -1, 1)
}

// volatility is the ATR-to-price ratio normalized by VolScale. With ATR
// unavailable it reports mid-range, which keeps the residual SIDEWAYS class.
func (d *Detector) volatility(set *types.IndicatorSet) float64 {
	if set.ATR == nil || set.LastClose.IsZero() {
		return 0.5
	}
	ratio := set.ATR.Div(set.LastClose).InexactFloat64()
	return clamp(ratio/d.cfg.VolScale, 0, 1)
}

// adjustmentsFor returns a full multiplier map: configured overrides plus
// an implicit 1.0 for every other indicator. The result is a fresh map so
// callers can hold it in an immutable MarketRegime.
func adjustmentsFor(overrides map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(types.AllIndicators()))
	for _, name := range types.AllIndicators() {
		out[name] = 1.0
	}
	for name, mult := range overrides {
		if mult > 0 {
			out[name] = mult
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
