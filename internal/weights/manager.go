// Package weights maintains adaptive per-indicator weights driven by
// realized trade outcomes.
package weights

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// entry is the mutable state for one indicator. Each indicator has its own
// lock so feedback for one indicator never blocks reads of another.
type entry struct {
	mu      sync.RWMutex
	weight  float64
	history []float64 // ring of recent outcome scores, oldest first
}

// Manager holds the adaptive weight per indicator. Weights always stay
// within [MinWeight, MaxWeight]; an outcome stream can never push an
// indicator's influence negative or unbounded.
type Manager struct {
	logger  *zap.Logger
	cfg     config.WeightsConfig
	entries map[string]*entry
}

// NewManager creates a weight manager seeded from the configured defaults.
// Indicators absent from the defaults map start at the fallback weight.
func NewManager(logger *zap.Logger, cfg config.WeightsConfig) *Manager {
	entries := make(map[string]*entry, len(types.AllIndicators()))
	for _, name := range types.AllIndicators() {
		w, ok := cfg.Defaults[name]
		if !ok {
			w = cfg.Fallback
		}
		entries[name] = &entry{
			weight:  clampWeight(w, cfg),
			history: make([]float64, 0, cfg.HistorySize),
		}
	}
	return &Manager{
		logger:  logger.Named("weights"),
		cfg:     cfg,
		entries: entries,
	}
}

// Weight returns the current weight for the indicator. Unknown indicators
// get the fallback weight rather than an error; a new indicator should be
// usable before it has feedback history.
func (m *Manager) Weight(indicator string) float64 {
	e, ok := m.entries[indicator]
	if !ok {
		return m.cfg.Fallback
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weight
}

// Snapshot returns a copy of every current weight.
func (m *Manager) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(m.entries))
	for name, e := range m.entries {
		e.mu.RLock()
		out[name] = e.weight
		e.mu.RUnlock()
	}
	return out
}

// RecordOutcome folds one outcome score (0 worst, 1 best) into the
// indicator's bounded history. The weight only moves once the history
// window is full; a handful of early outcomes must not swing it. Scores
// outside [0,1] are clamped, not rejected.
func (m *Manager) RecordOutcome(indicator string, score float64) {
	e, ok := m.entries[indicator]
	if !ok {
		m.logger.Warn("outcome for unknown indicator", zap.String("indicator", indicator))
		return
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, score)
	if len(e.history) > m.cfg.HistorySize {
		e.history = e.history[len(e.history)-m.cfg.HistorySize:]
	}
	if len(e.history) < m.cfg.HistorySize {
		return
	}

	avg := 0.0
	for _, s := range e.history {
		avg += s
	}
	avg /= float64(len(e.history))

	// Average above 0.5 earns weight, below 0.5 loses it.
	prev := e.weight
	e.weight = clampWeight(e.weight+(avg-0.5)*m.cfg.StepSize, m.cfg)

	m.logger.Debug("weight updated",
		zap.String("indicator", indicator),
		zap.Float64("score", score),
		zap.Float64("avg", avg),
		zap.Float64("from", prev),
		zap.Float64("to", e.weight),
	)
}

// History returns a copy of the indicator's recent outcome scores.
func (m *Manager) History(indicator string) []float64 {
	e, ok := m.entries[indicator]
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

func clampWeight(w float64, cfg config.WeightsConfig) float64 {
	if w < cfg.MinWeight {
		return cfg.MinWeight
	}
	if w > cfg.MaxWeight {
		return cfg.MaxWeight
	}
	return w
}
