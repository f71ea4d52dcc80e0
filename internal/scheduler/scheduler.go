// Package scheduler drives the synthesis pipeline: on every tick it fans
// the (symbol, timeframe) units out over the worker pool, collects their
// terminal states and publishes cycle health.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/indicators"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/metrics"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/montecarlo"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/patterns"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/provider"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/regime"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/store"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/synthesizer"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/weights"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/workers"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Scheduler owns the cycle loop and the unit registry.
type Scheduler struct {
	logger *zap.Logger
	cfg    config.PipelineConfig

	provider    provider.Provider
	indicators  *indicators.Engine
	regime      *regime.Detector
	patterns    *patterns.Detector
	synthesizer *synthesizer.Synthesizer
	risk        *montecarlo.Engine
	weights     *weights.Manager
	store       *store.Store
	pool        *workers.Pool
	metrics     *metrics.Recorder

	minBars int

	units []*synthesizer.Unit

	// onSignal, when set, receives every READY signal. Used for push
	// delivery; failures there never affect the cycle.
	onSignal func(*types.Signal)

	cycleCount atomic.Int64
	inCycle    atomic.Bool
	healthMu   sync.RWMutex
	lastHealth types.CycleHealth

	cancel context.CancelFunc
	done   chan struct{}
}

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Provider    provider.Provider
	Indicators  *indicators.Engine
	Regime      *regime.Detector
	Patterns    *patterns.Detector
	Synthesizer *synthesizer.Synthesizer
	Risk        *montecarlo.Engine
	Weights     *weights.Manager
	Store       *store.Store
	Pool        *workers.Pool
	Metrics     *metrics.Recorder
	MinBars     int
}

// New builds the scheduler and its unit registry from the configured
// symbol/timeframe universe.
func New(logger *zap.Logger, cfg config.PipelineConfig, deps Deps) *Scheduler {
	units := make([]*synthesizer.Unit, 0, len(cfg.Symbols)*len(cfg.Timeframes))
	for _, sym := range cfg.Symbols {
		for _, tf := range cfg.Timeframes {
			units = append(units, synthesizer.NewUnit(sym, types.Timeframe(tf)))
		}
	}
	return &Scheduler{
		logger:      logger.Named("scheduler"),
		cfg:         cfg,
		provider:    deps.Provider,
		indicators:  deps.Indicators,
		regime:      deps.Regime,
		patterns:    deps.Patterns,
		synthesizer: deps.Synthesizer,
		risk:        deps.Risk,
		weights:     deps.Weights,
		store:       deps.Store,
		pool:        deps.Pool,
		metrics:     deps.Metrics,
		minBars:     deps.MinBars,
		units:       units,
		done:        make(chan struct{}),
	}
}

// OnSignal registers the push hook for READY signals. Must be called
// before Start.
func (s *Scheduler) OnSignal(fn func(*types.Signal)) {
	s.onSignal = fn
}

// Start runs an immediate first cycle and then ticks at the configured
// interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		s.runCycle(ctx)

		ticker := time.NewTicker(s.cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Health returns the most recent cycle summary.
func (s *Scheduler) Health() types.CycleHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.lastHealth
}

// Units exposes the unit registry for status reporting.
func (s *Scheduler) Units() []*synthesizer.Unit {
	return s.units
}

// RecordTradeOutcome fans a resolved trade's score out to the indicators
// that contributed to the signal, persisting each attribution.
func (s *Scheduler) RecordTradeOutcome(signalID string, score float64) error {
	sig, ok := s.store.Signal(signalID)
	if !ok {
		return errors.New("unknown signal id")
	}
	now := time.Now().UTC()
	for _, indicator := range sig.Contributors {
		s.weights.RecordOutcome(indicator, score)
		s.metrics.RecordFeedback(indicator)
		if err := s.store.RecordOutcome(types.TradeOutcome{
			SignalID:   signalID,
			Indicator:  indicator,
			Score:      score,
			RecordedAt: now,
		}); err != nil {
			return err
		}
	}
	s.metrics.RecordWeights(s.weights.Snapshot())
	return nil
}

// runCycle executes one synthesis pass over every unit, in two phases:
// phase one computes each unit's directional draft, phase two scores
// confluence against the drafts of the symbol's other timeframes and
// emits signals. Consensus is therefore cycle-local and independent of
// unit completion order. If the previous cycle is still in flight the
// tick is skipped; overlapping cycles would double-fetch and race on
// unit state.
func (s *Scheduler) runCycle(ctx context.Context) {
	if s.inCycle.Swap(true) {
		s.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer s.inCycle.Store(false)

	cycle := s.cycleCount.Add(1)
	started := time.Now()
	cycleTime := started.UTC().Truncate(time.Second)

	drafts := make([]*synthesizer.Draft, len(s.units))

	var wg sync.WaitGroup
	for i, u := range s.units {
		u.Reset()
		if err := u.Begin(); err != nil {
			s.logger.Error("unit refused to start", zap.Error(err))
			continue
		}

		i, unit := i, u
		wg.Add(1)
		err := s.pool.SubmitFunc(func(taskCtx context.Context) error {
			defer wg.Done()
			draft, err := s.prepareUnit(taskCtx, unit)
			if err != nil {
				return err
			}
			drafts[i] = draft
			return nil
		})
		if err != nil {
			wg.Done()
			_ = unit.Fail(err)
			s.logger.Error("failed to submit unit",
				zap.String("symbol", unit.Symbol),
				zap.String("timeframe", string(unit.Timeframe)),
				zap.Error(err),
			)
		}
	}
	wg.Wait()

	// Every draft direction from this cycle, grouped by symbol.
	directions := make(map[string]map[types.Timeframe]types.Direction, len(s.cfg.Symbols))
	for i, u := range s.units {
		if drafts[i] == nil {
			continue
		}
		if directions[u.Symbol] == nil {
			directions[u.Symbol] = make(map[types.Timeframe]types.Direction)
		}
		directions[u.Symbol][u.Timeframe] = drafts[i].Direction()
	}

	for i, u := range s.units {
		if drafts[i] == nil {
			continue
		}
		i, unit := i, u
		wg.Add(1)
		err := s.pool.SubmitFunc(func(taskCtx context.Context) error {
			defer wg.Done()
			return s.finalizeUnit(unit, drafts[i], directions[unit.Symbol], cycleTime)
		})
		if err != nil {
			wg.Done()
			_ = unit.Fail(err)
			s.logger.Error("failed to submit unit",
				zap.String("symbol", unit.Symbol),
				zap.String("timeframe", string(unit.Timeframe)),
				zap.Error(err),
			)
		}
	}
	wg.Wait()

	health := types.CycleHealth{
		Cycle:     cycle,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
		Total:     len(s.units),
	}
	for _, u := range s.units {
		state := u.State()
		s.metrics.RecordUnitOutcome(string(state))
		switch state {
		case types.UnitReady:
			health.Ready++
		case types.UnitInsufficientData:
			health.InsufficientData++
		case types.UnitError:
			health.Errored++
		}
	}

	s.healthMu.Lock()
	s.lastHealth = health
	s.healthMu.Unlock()
	s.metrics.RecordCycle(health.Duration)

	s.logger.Info("cycle complete",
		zap.Int64("cycle", cycle),
		zap.Duration("duration", health.Duration),
		zap.Int("ready", health.Ready),
		zap.Int("insufficient_data", health.InsufficientData),
		zap.Int("errored", health.Errored),
	)
}

// prepareUnit fetches data and computes the directional draft for one
// unit. Every failure path lands in a terminal unit state; an error here
// never escapes the unit.
func (s *Scheduler) prepareUnit(ctx context.Context, unit *synthesizer.Unit) (*synthesizer.Draft, error) {
	series, err := s.provider.FetchSeries(ctx, unit.Symbol, unit.Timeframe, s.minBars*2)
	if err != nil {
		_ = unit.Fail(err)
		return nil, err
	}

	set, err := s.indicators.Compute(series)
	if err != nil {
		_ = unit.Fail(err)
		return nil, err
	}

	draft, err := s.synthesizer.Prepare(synthesizer.Input{
		Series:   series,
		Set:      set,
		Regime:   s.regime.Classify(set),
		Patterns: s.patterns.Detect(series),
	})
	if err != nil {
		if errors.Is(err, synthesizer.ErrInsufficientData) {
			_ = unit.InsufficientData()
			return nil, nil
		}
		_ = unit.Fail(err)
		return nil, err
	}
	return draft, nil
}

// finalizeUnit scores confluence against the cycle's other drafts for the
// symbol, persists and publishes the signal.
func (s *Scheduler) finalizeUnit(unit *synthesizer.Unit, draft *synthesizer.Draft, symbolDirs map[types.Timeframe]types.Direction, cycleTime time.Time) error {
	// The unit's own draft is not its peer.
	peers := make(map[types.Timeframe]types.Direction, len(symbolDirs))
	for tf, dir := range symbolDirs {
		if tf != unit.Timeframe {
			peers[tf] = dir
		}
	}

	signal, err := s.synthesizer.Finalize(draft, peers)
	if err != nil {
		_ = unit.Fail(err)
		return err
	}

	if err := s.store.SaveSignal(signal); err != nil {
		_ = unit.Fail(err)
		return err
	}

	if signal.Direction != types.DirectionNeutral {
		returns := montecarlo.HistoricalReturns(draft.Series())
		assessment, err := s.risk.Assess(signal, returns, cycleTime)
		if err != nil {
			s.logger.Warn("risk assessment failed",
				zap.String("signal", signal.ID),
				zap.Error(err),
			)
		} else if err := s.store.SaveRiskAssessment(assessment); err != nil {
			s.logger.Warn("failed to persist risk assessment",
				zap.String("signal", signal.ID),
				zap.Error(err),
			)
		}
	}

	s.metrics.RecordSignal(signal.Symbol, string(signal.Timeframe), string(signal.Direction), signal.Confluence.Value)

	if err := unit.Ready(signal); err != nil {
		return err
	}
	if s.onSignal != nil {
		s.onSignal(signal)
	}
	return nil
}
