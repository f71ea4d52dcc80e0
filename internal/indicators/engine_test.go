package indicators_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/indicators"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

func newEngine(t *testing.T) *indicators.Engine {
	t.Helper()
	return indicators.NewEngine(zap.NewNop(), config.Default().Indicators)
}

// waveSeries produces n bars oscillating around base so every oscillator
// sees both gains and losses.
func waveSeries(n int, base float64) *types.PriceSeries {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.OHLCV, n)
	for i := range bars {
		c := base + 5*math.Sin(float64(i)/3)
		o := base + 5*math.Sin(float64(i-1)/3)
		hi := math.Max(o, c) + 1
		lo := math.Min(o, c) - 1
		bars[i] = types.OHLCV{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromFloat(o),
			High:      decimal.NewFromFloat(hi),
			Low:       decimal.NewFromFloat(lo),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return &types.PriceSeries{
		Symbol:    "BTC/USDT",
		Timeframe: types.Timeframe1h,
		Bars:      bars,
		Quality:   1,
	}
}

func TestComputeFullSeries(t *testing.T) {
	e := newEngine(t)
	set, err := e.Compute(waveSeries(100, 50000))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(set.Missing) != 0 {
		t.Fatalf("missing = %v, want none with 100 bars", set.Missing)
	}
	if set.RSI.LessThan(decimal.Zero) || set.RSI.GreaterThan(decimal.NewFromInt(100)) {
		t.Errorf("rsi = %s, want within [0,100]", set.RSI)
	}
	if !set.ATR.IsPositive() {
		t.Errorf("atr = %s, want > 0", set.ATR)
	}
	if set.Stochastic.K.LessThan(decimal.Zero) || set.Stochastic.K.GreaterThan(decimal.NewFromInt(100)) {
		t.Errorf("stochastic K = %s, want within [0,100]", set.Stochastic.K)
	}
	if !set.Bollinger.Upper.GreaterThan(set.Bollinger.Lower) {
		t.Errorf("bollinger upper %s not above lower %s", set.Bollinger.Upper, set.Bollinger.Lower)
	}
	if !set.Bollinger.Upper.GreaterThanOrEqual(set.Bollinger.Middle) {
		t.Errorf("bollinger upper %s below middle %s", set.Bollinger.Upper, set.Bollinger.Middle)
	}
	wantHist := set.MACD.Line.Sub(set.MACD.Signal)
	if !set.MACD.Histogram.Equal(wantHist) {
		t.Errorf("macd histogram = %s, want line-signal = %s", set.MACD.Histogram, wantHist)
	}
}

func TestComputeDeterministic(t *testing.T) {
	e := newEngine(t)
	series := waveSeries(100, 50000)

	first, err := e.Compute(series)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Compute(series)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if !first.RSI.Equal(*again.RSI) ||
			!first.ATR.Equal(*again.ATR) ||
			!first.MACD.Line.Equal(again.MACD.Line) ||
			!first.Bollinger.Upper.Equal(again.Bollinger.Upper) ||
			!first.Stochastic.K.Equal(again.Stochastic.K) ||
			!first.EMA50.Equal(*again.EMA50) {
			t.Fatal("recomputation over the same series produced different values")
		}
	}
}

// Smoothed indicators accumulate scale on every iteration unless each
// step rounds; over a long series an unbounded accumulator balloons into
// hundreds of digits.
func TestLongSeriesKeepsCompactValues(t *testing.T) {
	e := newEngine(t)
	set, err := e.Compute(waveSeries(300, 50000))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	for name, v := range map[string]decimal.Decimal{
		"rsi":   *set.RSI,
		"atr":   *set.ATR,
		"ema12": *set.EMA12,
		"ema26": *set.EMA26,
		"ema50": *set.EMA50,
		"macd":  set.MACD.Line,
	} {
		if got := len(v.String()); got > 64 {
			t.Errorf("%s renders as %d characters, want a bounded representation", name, got)
		}
	}
}

func TestShortSeriesReportsMissing(t *testing.T) {
	e := newEngine(t)
	set, err := e.Compute(waveSeries(10, 50000))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, name := range []string{types.IndicatorRSI, types.IndicatorMACD, types.IndicatorBollinger, types.IndicatorATR, types.IndicatorStochastic} {
		if !set.IsMissing(name) {
			t.Errorf("%s should be missing with 10 bars", name)
		}
	}
	if set.RSI != nil || set.MACD != nil {
		t.Error("missing indicators must stay nil")
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	e := newEngine(t)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.OHLCV, 30)
	for i := range bars {
		c := 100.0 + float64(i)
		bars[i] = types.OHLCV{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromFloat(c - 1),
			High:      decimal.NewFromFloat(c + 1),
			Low:       decimal.NewFromFloat(c - 2),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(100),
		}
	}
	set, err := e.Compute(&types.PriceSeries{Symbol: "BTC/USDT", Timeframe: types.Timeframe1h, Bars: bars})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !set.RSI.Equal(decimal.NewFromInt(100)) {
		t.Errorf("rsi over monotonic gains = %s, want 100", set.RSI)
	}
}

func TestValidationRejectsMalformedBars(t *testing.T) {
	e := newEngine(t)

	bad := waveSeries(30, 100)
	bad.Bars[10].High = decimal.NewFromInt(1)
	bad.Bars[10].Low = decimal.NewFromInt(50)
	_, err := e.Compute(bad)
	var verr *indicators.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Index != 10 {
		t.Errorf("error index = %d, want 10", verr.Index)
	}

	dup := waveSeries(30, 100)
	dup.Bars[5].Timestamp = dup.Bars[4].Timestamp
	if _, err := e.Compute(dup); !errors.As(err, &verr) {
		t.Fatalf("duplicate timestamp err = %v, want ValidationError", err)
	}

	neg := waveSeries(30, 100)
	neg.Bars[3].Volume = decimal.NewFromInt(-5)
	if _, err := e.Compute(neg); !errors.As(err, &verr) {
		t.Fatalf("negative volume err = %v, want ValidationError", err)
	}
}
