// Package store persists signals, risk assessments and trade outcomes as
// JSON files under a data directory.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

const (
	signalsFile  = "signals.json"
	risksFile    = "risk_assessments.json"
	outcomesFile = "outcomes.json"

	// maxSignals bounds the on-disk history; older entries roll off.
	maxSignals = 1000
)

// Store is a file-backed persistence layer. Every mutation rewrites the
// affected file; the volumes involved are small enough that simplicity
// wins over incremental IO.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string

	signals  []*types.Signal
	risks    map[string]*types.RiskAssessment // by signal id
	outcomes []types.TradeOutcome
}

// New creates the store and loads any existing files from dataDir.
func New(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		logger:  logger.Named("store"),
		dataDir: dataDir,
		risks:   make(map[string]*types.RiskAssessment),
	}

	if err := s.load(); err != nil {
		// A corrupt file should not brick the pipeline on startup.
		s.logger.Warn("failed to load persisted state, starting empty", zap.Error(err))
	}
	return s, nil
}

// SaveSignal appends a signal and persists the rolling window.
func (s *Store) SaveSignal(sig *types.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals = append(s.signals, sig)
	if len(s.signals) > maxSignals {
		s.signals = s.signals[len(s.signals)-maxSignals:]
	}
	return s.writeFile(signalsFile, s.signals)
}

// SaveRiskAssessment persists the assessment keyed by its signal.
func (s *Store) SaveRiskAssessment(ra *types.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.risks[ra.SignalID] = ra
	all := make([]*types.RiskAssessment, 0, len(s.risks))
	for _, r := range s.risks {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return s.writeFile(risksFile, all)
}

// RecordOutcome appends a trade outcome.
func (s *Store) RecordOutcome(o types.TradeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, o)
	return s.writeFile(outcomesFile, s.outcomes)
}

// Signal returns the stored signal with the given id.
func (s *Store) Signal(id string) (*types.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.signals) - 1; i >= 0; i-- {
		if s.signals[i].ID == id {
			return s.signals[i], true
		}
	}
	return nil, false
}

// RecentSignals returns up to limit signals, newest first.
func (s *Store) RecentSignals(limit int) []*types.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.signals)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*types.Signal, 0, n)
	for i := len(s.signals) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.signals[i])
	}
	return out
}

// RiskAssessment returns the latest assessment for a (symbol, timeframe).
func (s *Store) RiskAssessment(symbol string, tf types.Timeframe) (*types.RiskAssessment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.RiskAssessment
	for _, r := range s.risks {
		if r.Symbol != symbol || r.Timeframe != tf {
			continue
		}
		if best == nil || r.Timestamp.After(best.Timestamp) {
			best = r
		}
	}
	return best, best != nil
}

// RecentOutcomes returns outcomes recorded after the cutoff.
func (s *Store) RecentOutcomes(since time.Time) []types.TradeOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.TradeOutcome, 0)
	for _, o := range s.outcomes {
		if o.RecordedAt.After(since) {
			out = append(out, o)
		}
	}
	return out
}

func (s *Store) load() error {
	if err := s.readFile(signalsFile, &s.signals); err != nil {
		return err
	}
	var risks []*types.RiskAssessment
	if err := s.readFile(risksFile, &risks); err != nil {
		return err
	}
	for _, r := range risks {
		s.risks[r.SignalID] = r
	}
	return s.readFile(outcomesFile, &s.outcomes)
}

func (s *Store) readFile(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	path := filepath.Join(s.dataDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
