package provider

import (
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// ScoreQuality rates a series in [0,1]. Bad data poisons everything
// downstream, so gaps, OHLC inconsistencies and dead volume each shave
// points off. The score informs signal metadata; it never blocks the
// pipeline on its own.
func ScoreQuality(series *types.PriceSeries) float64 {
	bars := series.Bars
	if len(bars) == 0 {
		return 0
	}

	interval := series.Timeframe.Interval()
	gaps, ohlcErrors, deadVolume := 0, 0, 0

	for i, b := range bars {
		if b.High.LessThan(b.Low) ||
			b.High.LessThan(b.Open) || b.High.LessThan(b.Close) ||
			b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
			ohlcErrors++
		}
		if b.Volume.IsZero() {
			deadVolume++
		}
		if i > 0 && bars[i].Timestamp.Sub(bars[i-1].Timestamp) > interval {
			gaps++
		}
	}

	n := float64(len(bars))
	score := 1.0
	score -= 2.0 * float64(ohlcErrors) / n // inconsistent bars are the worst defect
	score -= 1.0 * float64(gaps) / n
	score -= 0.5 * float64(deadVolume) / n

	if score < 0 {
		return 0
	}
	return score
}
