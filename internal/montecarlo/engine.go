// Package montecarlo estimates the risk profile of a signal by simulating
// price paths with geometric Brownian motion. Simulations are seeded
// deterministically from the signal's identity and the cycle timestamp, so
// the same cycle always reproduces the same assessment.
package montecarlo

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Engine runs risk simulations for directional signals.
type Engine struct {
	logger *zap.Logger
	cfg    config.MonteCarloConfig
}

// NewEngine creates a Monte Carlo engine.
func NewEngine(logger *zap.Logger, cfg config.MonteCarloConfig) *Engine {
	return &Engine{
		logger: logger.Named("montecarlo"),
		cfg:    cfg,
	}
}

// HistoricalReturns extracts per-bar log returns from the series closes,
// the input distribution for Assess.
func HistoricalReturns(series *types.PriceSeries) []float64 {
	if series == nil || len(series.Bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series.Bars)-1)
	prev := series.Bars[0].Close.InexactFloat64()
	for _, b := range series.Bars[1:] {
		cur := b.Close.InexactFloat64()
		if prev > 0 && cur > 0 {
			out = append(out, math.Log(cur/prev))
		}
		prev = cur
	}
	return out
}

// Assess simulates outcome returns for the signal. The paths draw their
// drift and volatility from the historical per-bar return distribution;
// cycleTime anchors the deterministic seed.
func (e *Engine) Assess(signal *types.Signal, returns []float64, cycleTime time.Time) (*types.RiskAssessment, error) {
	if signal.Direction == types.DirectionNeutral {
		return nil, fmt.Errorf("assess %s: neutral signal has no position to simulate", signal.ID)
	}
	if !signal.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("assess %s: non-positive entry price", signal.ID)
	}
	if len(returns) < 2 {
		return nil, fmt.Errorf("assess %s: need at least 2 historical returns, got %d", signal.ID, len(returns))
	}

	mu := mean(returns)
	sigma := stddev(returns, mu)
	if sigma <= 0 {
		return nil, fmt.Errorf("assess %s: degenerate return history", signal.ID)
	}

	horizon := e.horizonBars(signal.Timeframe)
	seed := Seed(signal.Symbol, signal.Timeframe, cycleTime)

	params := pathParams{
		direction: signal.Direction,
		entry:     signal.EntryPrice.InexactFloat64(),
		stop:      signal.StopLoss.InexactFloat64(),
		target:    signal.TakeProfit.InexactFloat64(),
		mu:        mu,
		sigma:     sigma,
		horizon:   horizon,
	}

	outcomes, drawdowns, hits := e.simulate(params, seed)
	assessment := summarize(signal, outcomes, drawdowns, hits)
	assessment.Simulations = len(outcomes)
	assessment.Seed = seed
	assessment.Timestamp = time.Now().UTC()

	e.logger.Debug("risk assessed",
		zap.String("signal", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.Int64("seed", seed),
		zap.Float64("expectedReturn", assessment.ExpectedReturn),
		zap.Float64("var95", assessment.ValueAtRisk95),
		zap.String("riskLevel", string(assessment.RiskLevel)),
	)

	return assessment, nil
}

// Seed derives the simulation seed from the signal's identity via FNV-1a.
// The cycle timestamp is truncated to the second so retries within a cycle
// reproduce identical assessments.
func Seed(symbol string, tf types.Timeframe, cycleTime time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", symbol, tf, cycleTime.Unix())
	return int64(h.Sum64())
}

type pathParams struct {
	direction types.Direction
	entry     float64
	stop      float64
	target    float64
	mu        float64
	sigma     float64
	horizon   int
}

// simulate runs the configured number of paths split across workers.
// Each block derives its own sub-seed from the base seed and block index
// and writes a disjoint slice segment, so results do not depend on
// goroutine scheduling.
func (e *Engine) simulate(p pathParams, seed int64) (outcomes, drawdowns []float64, hits []bool) {
	sims := e.cfg.Simulations
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > sims {
		workers = sims
	}

	outcomes = make([]float64, sims)
	drawdowns = make([]float64, sims)
	hits = make([]bool, sims)

	var wg sync.WaitGroup
	block := (sims + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * block
		end := start + block
		if end > sims {
			end = sims
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(idx, start, end int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(idx)))
			for i := start; i < end; i++ {
				outcomes[i], drawdowns[i], hits[i] = runPath(p, rng)
			}
		}(w, start, end)
	}
	wg.Wait()
	return outcomes, drawdowns, hits
}

// runPath walks one GBM path bar by bar and returns the position return,
// the worst peak-to-trough equity drop, and whether the take-profit was
// reached before the stop. The stop or target exits the path at first
// touch; an untouched path closes at the horizon and counts as no win
// regardless of its terminal sign.
func runPath(p pathParams, rng *rand.Rand) (ret, maxDrawdown float64, hitTarget bool) {
	price := p.entry
	drift := p.mu - 0.5*p.sigma*p.sigma

	peak := 0.0
	for i := 0; i < p.horizon; i++ {
		price *= math.Exp(drift + p.sigma*rng.NormFloat64())

		equity := positionReturn(p.direction, p.entry, price)
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDrawdown {
			maxDrawdown = dd
		}

		if p.direction == types.DirectionLong {
			if price <= p.stop {
				return positionReturn(p.direction, p.entry, p.stop), maxDrawdown, false
			}
			if price >= p.target {
				return positionReturn(p.direction, p.entry, p.target), maxDrawdown, true
			}
		} else {
			if price >= p.stop {
				return positionReturn(p.direction, p.entry, p.stop), maxDrawdown, false
			}
			if price <= p.target {
				return positionReturn(p.direction, p.entry, p.target), maxDrawdown, true
			}
		}
	}
	return positionReturn(p.direction, p.entry, price), maxDrawdown, false
}

func positionReturn(dir types.Direction, entry, price float64) float64 {
	r := (price - entry) / entry
	if dir == types.DirectionShort {
		return -r
	}
	return r
}

func summarize(signal *types.Signal, outcomes, drawdowns []float64, hits []bool) *types.RiskAssessment {
	sorted := make([]float64, len(outcomes))
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	meanRet := mean(outcomes)
	std := stddev(outcomes, meanRet)

	// Only a take-profit exit is a win; a path that drifts positive
	// without reaching the target is not.
	wins := 0
	for _, hit := range hits {
		if hit {
			wins++
		}
	}

	a := &types.RiskAssessment{
		SignalID:       signal.ID,
		Symbol:         signal.Symbol,
		Timeframe:      signal.Timeframe,
		ExpectedReturn: meanRet,
		ValueAtRisk95:  percentile(sorted, 0.05),
		MaxDrawdown:    mean(drawdowns),
		WinProbability: float64(wins) / float64(len(outcomes)),
		Interval: types.ConfidenceInterval{
			Lower: percentile(sorted, 0.025),
			Upper: percentile(sorted, 0.975),
			Level: 0.95,
		},
	}

	// A degenerate outcome distribution has no defined Sharpe ratio;
	// report that explicitly instead of a NaN that poisons JSON output.
	if std == 0 {
		a.SharpeRatio = 0
		a.RiskLevel = types.RiskUndefined
		return a
	}
	a.SharpeRatio = meanRet / std
	a.RiskLevel = riskLevel(std, a.ValueAtRisk95)
	return a
}

// riskLevel buckets the assessment by outcome volatility and tail loss.
// Both conditions must hold for a bucket; otherwise the next one applies.
func riskLevel(vol, var95 float64) types.RiskLevel {
	switch {
	case vol < 0.01 && var95 > -0.02:
		return types.RiskVeryLow
	case vol < 0.02 && var95 > -0.05:
		return types.RiskLow
	case vol < 0.04 && var95 > -0.10:
		return types.RiskMedium
	case vol < 0.07 && var95 > -0.20:
		return types.RiskHigh
	default:
		return types.RiskVeryHigh
	}
}

func (e *Engine) horizonBars(tf types.Timeframe) int {
	if h, ok := e.cfg.HorizonBars[string(tf)]; ok && h > 0 {
		return h
	}
	return 48
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

func stddev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	s := 0.0
	for _, v := range vals {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(vals)))
}

// percentile uses linear interpolation between order statistics; vals must
// be sorted ascending.
func percentile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	pos := q * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return vals[lo]
	}
	frac := pos - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}
