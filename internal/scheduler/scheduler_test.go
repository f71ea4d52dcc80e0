package scheduler_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/confluence"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/indicators"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/metrics"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/montecarlo"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/patterns"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/provider"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/regime"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/scheduler"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/store"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/synthesizer"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/weights"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/workers"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// recorder is shared across tests; promauto panics on duplicate
// registration, so the package gets exactly one.
var recorder = metrics.New()

func newScheduler(t *testing.T, cfg *config.Config) (*scheduler.Scheduler, *store.Store, *workers.Pool) {
	t.Helper()
	logger := zap.NewNop()

	st, err := store.New(logger, t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	wm := weights.NewManager(logger, cfg.Weights)
	scorer := confluence.NewScorer(logger, cfg.Confluence)
	pool := workers.NewPool(logger, workers.PoolConfig{
		Name: "test", NumWorkers: 4, QueueSize: 64, TaskTimeout: 10 * time.Second,
	})
	pool.Start()

	sched := scheduler.New(logger, cfg.Pipeline, scheduler.Deps{
		Provider:    provider.NewCached(logger, provider.NewSynthetic(logger), cfg.Provider),
		Indicators:  indicators.NewEngine(logger, cfg.Indicators),
		Regime:      regime.NewDetector(logger, cfg.Regime),
		Patterns:    patterns.NewDetector(logger),
		Synthesizer: synthesizer.New(logger, cfg.Synthesizer, cfg.Provider.MinBars, wm, scorer),
		Risk:        montecarlo.NewEngine(logger, cfg.MonteCarlo),
		Weights:     wm,
		Store:       st,
		Pool:        pool,
		Metrics:     recorder,
		MinBars:     cfg.Provider.MinBars,
	})
	return sched, st, pool
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	cfg.Pipeline.Timeframes = []string{"1h", "4h"}
	cfg.Pipeline.CycleInterval = time.Hour // only the immediate first cycle runs
	return cfg
}

func TestCycleProcessesAllUnits(t *testing.T) {
	cfg := testConfig()
	sched, _, pool := newScheduler(t, cfg)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Health().Cycle >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	sched.Stop()

	health := sched.Health()
	if health.Cycle < 1 {
		t.Fatal("no cycle completed")
	}
	if health.Total != 4 {
		t.Fatalf("health.Total = %d, want 4 units", health.Total)
	}
	if health.Ready+health.InsufficientData+health.Errored != health.Total {
		t.Errorf("unit states do not sum to total: %+v", health)
	}
	if health.Errored != 0 {
		t.Errorf("expected no errored units with the synthetic provider, got %d", health.Errored)
	}

	for _, u := range sched.Units() {
		if u.State() == types.UnitReady && u.Signal() == nil {
			t.Errorf("unit %s/%s READY without a signal", u.Symbol, u.Timeframe)
		}
	}
}

func TestSignalsPersisted(t *testing.T) {
	cfg := testConfig()
	sched, st, pool := newScheduler(t, cfg)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Health().Cycle >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	sched.Stop()

	if got := st.RecentSignals(0); len(got) != sched.Health().Ready {
		t.Errorf("persisted %d signals, want %d (one per READY unit)", len(got), sched.Health().Ready)
	}
}

// With two timeframes per symbol, each unit has exactly one peer, so the
// consensus component can only be 0 or 1. A 0.5 would mean the peer's
// direction was missing, i.e. consensus was taken from a stale cycle
// instead of the one just computed.
func TestTimeframeConsensusIsCycleLocal(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Symbols = []string{"BTC/USDT"}
	sched, _, pool := newScheduler(t, cfg)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Health().Cycle >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	sched.Stop()

	if sched.Health().Ready != 2 {
		t.Skipf("need both units READY on the first cycle, got %+v", sched.Health())
	}
	for _, u := range sched.Units() {
		sig := u.Signal()
		if sig == nil {
			t.Fatalf("READY unit %s/%s has no signal", u.Symbol, u.Timeframe)
		}
		if c := sig.Confluence.Components.TimeframeConsensus; c != 0 && c != 1 {
			t.Errorf("consensus for %s/%s = %v on the first cycle, want 0 or 1 from the peer computed this cycle",
				u.Symbol, u.Timeframe, c)
		}
	}
}

func TestRecordTradeOutcome(t *testing.T) {
	cfg := testConfig()
	sched, st, pool := newScheduler(t, cfg)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Health().Cycle >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	sched.Stop()

	if err := sched.RecordTradeOutcome("no-such-signal", 0.9); err == nil {
		t.Error("unknown signal id should be rejected")
	}

	signals := st.RecentSignals(0)
	if len(signals) == 0 {
		t.Skip("no signals produced this cycle")
	}
	var withContributors *types.Signal
	for _, sig := range signals {
		if len(sig.Contributors) > 0 {
			withContributors = sig
			break
		}
	}
	if withContributors == nil {
		t.Skip("no signal with contributors this cycle")
	}

	if err := sched.RecordTradeOutcome(withContributors.ID, 0.9); err != nil {
		t.Fatalf("RecordTradeOutcome: %v", err)
	}
	outcomes := st.RecentOutcomes(time.Now().Add(-time.Minute))
	if len(outcomes) != len(withContributors.Contributors) {
		t.Errorf("recorded %d outcomes, want %d (one per contributor)",
			len(outcomes), len(withContributors.Contributors))
	}
}

func TestOnSignalHook(t *testing.T) {
	cfg := testConfig()
	sched, _, pool := newScheduler(t, cfg)
	defer pool.Stop()

	got := make(chan *types.Signal, 16)
	sched.OnSignal(func(sig *types.Signal) { got <- sig })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Health().Cycle >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	sched.Stop()

	if sched.Health().Ready > 0 && len(got) == 0 {
		t.Error("READY units produced no pushed signals")
	}
}
