package indicators

import (
	"github.com/shopspring/decimal"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	fifty   = decimal.NewFromInt(50)
	hundred = decimal.NewFromInt(100)
)

// calcScale bounds every smoothing accumulator. Multiplying two decimals
// adds their scales, so without rounding each iteration the digit count
// grows linearly with series length.
const calcScale = 16

func sum(vals []decimal.Decimal) decimal.Decimal {
	s := decimal.Zero
	for _, v := range vals {
		s = s.Add(v)
	}
	return s
}

func mean(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	return sum(vals).Div(decimal.NewFromInt(int64(len(vals))))
}

// stddev is the population standard deviation.
func stddev(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) < 2 {
		return decimal.Zero
	}
	m := mean(vals)
	variance := decimal.Zero
	for _, v := range vals {
		diff := v.Sub(m)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(vals))))
	return sqrtDecimal(variance)
}

// sqrtDecimal approximates a square root with Newton's method. Twenty
// iterations converge well past the division precision in use.
func sqrtDecimal(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}
	x := d
	for i := 0; i < 20; i++ {
		x = x.Add(d.Div(x)).Div(two)
	}
	return x
}

// emaSeries computes the EMA over vals, seeded with the SMA of the first
// period values. The result holds one entry per bar from the seed onward.
func emaSeries(vals []decimal.Decimal, period int) []decimal.Decimal {
	if period < 1 || len(vals) < period {
		return nil
	}
	mult := two.Div(decimal.NewFromInt(int64(period + 1)))
	keep := one.Sub(mult)

	out := make([]decimal.Decimal, 0, len(vals)-period+1)
	prev := mean(vals[:period])
	out = append(out, prev)
	for i := period; i < len(vals); i++ {
		prev = vals[i].Mul(mult).Add(prev.Mul(keep)).Round(calcScale)
		out = append(out, prev)
	}
	return out
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(bar types.OHLCV, prevClose decimal.Decimal) decimal.Decimal {
	hl := bar.High.Sub(bar.Low)
	hc := bar.High.Sub(prevClose).Abs()
	lc := bar.Low.Sub(prevClose).Abs()
	return decimal.Max(hl, hc, lc)
}
