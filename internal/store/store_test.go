package store_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/store"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

func signal(id string, ts time.Time) *types.Signal {
	return &types.Signal{
		ID:         id,
		Symbol:     "BTC/USDT",
		Timeframe:  types.Timeframe1h,
		Direction:  types.DirectionLong,
		Confidence: 70,
		EntryPrice: decimal.NewFromInt(50000),
		StopLoss:   decimal.NewFromInt(49000),
		TakeProfit: decimal.NewFromInt(52000),
		Timestamp:  ts,
	}
}

func TestSaveAndLookupSignal(t *testing.T) {
	s, err := store.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now().UTC()
	if err := s.SaveSignal(signal("a", now)); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}
	if err := s.SaveSignal(signal("b", now.Add(time.Minute))); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}

	got, ok := s.Signal("a")
	if !ok || got.ID != "a" {
		t.Fatalf("Signal(a) = %+v, %v", got, ok)
	}

	recent := s.RecentSignals(1)
	if len(recent) != 1 || recent[0].ID != "b" {
		t.Fatalf("RecentSignals(1) = %+v, want just b", recent)
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	s1, err := store.New(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.SaveSignal(signal("persisted", now)); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}
	if err := s1.SaveRiskAssessment(&types.RiskAssessment{
		SignalID:  "persisted",
		Symbol:    "BTC/USDT",
		Timeframe: types.Timeframe1h,
		RiskLevel: types.RiskMedium,
		Timestamp: now,
	}); err != nil {
		t.Fatalf("SaveRiskAssessment: %v", err)
	}
	if err := s1.RecordOutcome(types.TradeOutcome{
		SignalID:   "persisted",
		Indicator:  types.IndicatorMACD,
		Score:      0.8,
		RecordedAt: now,
	}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	s2, err := store.New(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := s2.Signal("persisted"); !ok {
		t.Error("signal lost across restart")
	}
	if ra, ok := s2.RiskAssessment("BTC/USDT", types.Timeframe1h); !ok || ra.RiskLevel != types.RiskMedium {
		t.Errorf("risk assessment lost across restart: %+v, %v", ra, ok)
	}
	if got := s2.RecentOutcomes(now.Add(-time.Hour)); len(got) != 1 {
		t.Errorf("outcomes lost across restart: %+v", got)
	}
}

func TestLatestRiskAssessmentWins(t *testing.T) {
	s, err := store.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now().UTC()
	for i, level := range []types.RiskLevel{types.RiskLow, types.RiskHigh} {
		if err := s.SaveRiskAssessment(&types.RiskAssessment{
			SignalID:  string(rune('a' + i)),
			Symbol:    "ETH/USDT",
			Timeframe: types.Timeframe4h,
			RiskLevel: level,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("SaveRiskAssessment: %v", err)
		}
	}
	ra, ok := s.RiskAssessment("ETH/USDT", types.Timeframe4h)
	if !ok || ra.RiskLevel != types.RiskHigh {
		t.Fatalf("got %+v, want the later HIGH assessment", ra)
	}
}
