// Package indicators computes technical indicators from price history.
// All arithmetic uses decimal math so repeated recomputation over the same
// series is bit-for-bit reproducible.
package indicators

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// ValidationError reports a malformed bar in the input series. Malformed
// input is rejected outright, never clamped into a plausible value.
type ValidationError struct {
	Symbol string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar %d for %s: %s", e.Index, e.Symbol, e.Reason)
}

// Engine computes an IndicatorSet from a PriceSeries. Indicators whose
// lookback exceeds the series length are omitted and listed in Missing.
type Engine struct {
	logger *zap.Logger
	cfg    config.IndicatorConfig
}

// NewEngine creates an indicator engine.
func NewEngine(logger *zap.Logger, cfg config.IndicatorConfig) *Engine {
	return &Engine{
		logger: logger.Named("indicators"),
		cfg:    cfg,
	}
}

// Compute derives all indicators the series can support. The returned set
// is a fresh value each call; callers treat it as immutable.
func (e *Engine) Compute(series *types.PriceSeries) (*types.IndicatorSet, error) {
	if err := validate(series); err != nil {
		return nil, err
	}

	bars := series.Bars
	closes := make([]decimal.Decimal, len(bars))
	volumes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	set := &types.IndicatorSet{
		Symbol:     series.Symbol,
		Timeframe:  series.Timeframe,
		ComputedAt: time.Now().UTC(),
	}
	if len(bars) > 0 {
		set.LastClose = bars[len(bars)-1].Close
		set.LastVolume = bars[len(bars)-1].Volume
	}

	if v := e.rsi(closes); v != nil {
		set.RSI = v
	} else {
		set.Missing = append(set.Missing, types.IndicatorRSI)
	}

	if v := e.macd(closes); v != nil {
		set.MACD = v
	} else {
		set.Missing = append(set.Missing, types.IndicatorMACD)
	}

	if v := e.bollinger(closes); v != nil {
		set.Bollinger = v
	} else {
		set.Missing = append(set.Missing, types.IndicatorBollinger)
	}

	if v := e.atr(bars); v != nil {
		set.ATR = v
	} else {
		set.Missing = append(set.Missing, types.IndicatorATR)
	}

	if v := e.stochastic(bars); v != nil {
		set.Stochastic = v
	} else {
		set.Missing = append(set.Missing, types.IndicatorStochastic)
	}

	set.EMA12 = lastEMA(closes, e.cfg.MACDFast)
	set.EMA26 = lastEMA(closes, e.cfg.MACDSlow)
	set.EMA50 = lastEMA(closes, 50)
	if set.EMA12 == nil || set.EMA26 == nil {
		set.Missing = append(set.Missing, types.IndicatorEMACross)
	}

	if len(closes) >= e.cfg.BollingerPeriod {
		v := mean(closes[len(closes)-e.cfg.BollingerPeriod:])
		set.SMA20 = &v
		av := mean(volumes[len(volumes)-e.cfg.BollingerPeriod:])
		set.AvgVolume = &av
	}

	if len(set.Missing) > 0 {
		e.logger.Debug("partial indicator set",
			zap.String("symbol", series.Symbol),
			zap.String("timeframe", string(series.Timeframe)),
			zap.Int("bars", len(bars)),
			zap.Strings("missing", set.Missing),
		)
	}

	return set, nil
}

// rsi uses Wilder's smoothing over gains and losses.
func (e *Engine) rsi(closes []decimal.Decimal) *decimal.Decimal {
	period := e.cfg.RSIPeriod
	if len(closes) < period+1 {
		return nil
	}

	gains := make([]decimal.Decimal, 0, len(closes)-1)
	losses := make([]decimal.Decimal, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i].Sub(closes[i-1])
		if change.IsNegative() {
			gains = append(gains, decimal.Zero)
			losses = append(losses, change.Abs())
		} else {
			gains = append(gains, change)
			losses = append(losses, decimal.Zero)
		}
	}

	p := decimal.NewFromInt(int64(period))
	pm1 := p.Sub(one)
	avgGain := mean(gains[:period])
	avgLoss := mean(losses[:period])
	for i := period; i < len(gains); i++ {
		avgGain = avgGain.Mul(pm1).Add(gains[i]).DivRound(p, calcScale)
		avgLoss = avgLoss.Mul(pm1).Add(losses[i]).DivRound(p, calcScale)
	}

	var out decimal.Decimal
	if avgLoss.IsZero() {
		out = hundred
	} else {
		rs := avgGain.Div(avgLoss)
		out = hundred.Sub(hundred.Div(one.Add(rs)))
	}
	return &out
}

// macd is EMA(fast)-EMA(slow) with an EMA(signal) of the resulting line.
func (e *Engine) macd(closes []decimal.Decimal) *types.MACDValue {
	fast, slow, signal := e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal
	if len(closes) < slow+signal-1 {
		return nil
	}

	fastE := emaSeries(closes, fast)
	slowE := emaSeries(closes, slow)

	// Align both EMA series on the slow series' start.
	offset := len(fastE) - len(slowE)
	line := make([]decimal.Decimal, len(slowE))
	for i := range slowE {
		line[i] = fastE[i+offset].Sub(slowE[i])
	}

	sig := emaSeries(line, signal)
	if len(sig) == 0 {
		return nil
	}

	latest := line[len(line)-1]
	latestSig := sig[len(sig)-1]
	return &types.MACDValue{
		Line:      latest,
		Signal:    latestSig,
		Histogram: latest.Sub(latestSig),
	}
}

func (e *Engine) bollinger(closes []decimal.Decimal) *types.BollingerValue {
	period := e.cfg.BollingerPeriod
	if len(closes) < period {
		return nil
	}
	window := closes[len(closes)-period:]
	middle := mean(window)
	band := stddev(window).Mul(decimal.NewFromFloat(e.cfg.BollingerK))
	return &types.BollingerValue{
		Upper:  middle.Add(band),
		Middle: middle,
		Lower:  middle.Sub(band),
	}
}

// atr uses Wilder's smoothing of the true range.
func (e *Engine) atr(bars []types.OHLCV) *decimal.Decimal {
	period := e.cfg.ATRPeriod
	if len(bars) < period+1 {
		return nil
	}

	trs := make([]decimal.Decimal, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1].Close))
	}

	p := decimal.NewFromInt(int64(period))
	pm1 := p.Sub(one)
	atr := mean(trs[:period])
	for i := period; i < len(trs); i++ {
		atr = atr.Mul(pm1).Add(trs[i]).DivRound(p, calcScale)
	}
	return &atr
}

// stochastic computes %K over the lookback window and %D as its SMA.
func (e *Engine) stochastic(bars []types.OHLCV) *types.StochasticValue {
	lookback, smooth := e.cfg.StochLookback, e.cfg.StochSmooth
	if len(bars) < lookback+smooth-1 {
		return nil
	}

	ks := make([]decimal.Decimal, 0, smooth)
	for j := smooth - 1; j >= 0; j-- {
		end := len(bars) - j
		ks = append(ks, stochK(bars[end-lookback:end]))
	}

	return &types.StochasticValue{
		K: ks[len(ks)-1],
		D: mean(ks),
	}
}

func stochK(window []types.OHLCV) decimal.Decimal {
	low := window[0].Low
	high := window[0].High
	for _, b := range window[1:] {
		low = decimal.Min(low, b.Low)
		high = decimal.Max(high, b.High)
	}
	denom := high.Sub(low)
	if denom.IsZero() {
		return fifty
	}
	return window[len(window)-1].Close.Sub(low).Div(denom).Mul(hundred)
}

func lastEMA(closes []decimal.Decimal, period int) *decimal.Decimal {
	series := emaSeries(closes, period)
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	return &v
}

func validate(series *types.PriceSeries) error {
	for i, b := range series.Bars {
		switch {
		case !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive():
			return &ValidationError{Symbol: series.Symbol, Index: i, Reason: "non-positive price"}
		case b.High.LessThan(b.Low):
			return &ValidationError{Symbol: series.Symbol, Index: i, Reason: "high below low"}
		case b.Volume.IsNegative():
			return &ValidationError{Symbol: series.Symbol, Index: i, Reason: "negative volume"}
		}
		if i > 0 && !series.Bars[i].Timestamp.After(series.Bars[i-1].Timestamp) {
			return &ValidationError{Symbol: series.Symbol, Index: i, Reason: "timestamps not strictly increasing"}
		}
	}
	return nil
}
