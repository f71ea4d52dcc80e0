// Package types provides shared type definitions for the signal pipeline.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents the trade direction of a signal.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Timeframe represents chart timeframes.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Interval returns the bar duration for the timeframe.
func (tf Timeframe) Interval() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// AllTimeframes lists supported timeframes in ascending order.
func AllTimeframes() []Timeframe {
	return []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d}
}

// OHLCV represents a single candlestick.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// PriceSeries is a chronologically ordered bar series for one symbol.
// Quality is lowered by gaps and malformed bars but never blocks downstream
// calculations on its own.
type PriceSeries struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Bars      []OHLCV   `json:"bars"`
	Quality   float64   `json:"quality"` // 0-1
	FetchedAt time.Time `json:"fetchedAt"`
	Stale     bool      `json:"stale"` // served from cache past its freshness window
}

// LastClose returns the close of the most recent bar.
func (ps *PriceSeries) LastClose() decimal.Decimal {
	if len(ps.Bars) == 0 {
		return decimal.Zero
	}
	return ps.Bars[len(ps.Bars)-1].Close
}

// Indicator names used as keys for weights and regime adjustments.
const (
	IndicatorRSI        = "rsi"
	IndicatorMACD       = "macd"
	IndicatorBollinger  = "bollinger"
	IndicatorATR        = "atr"
	IndicatorStochastic = "stochastic"
	IndicatorEMACross   = "ema_cross"
)

// AllIndicators lists every indicator the engine computes votes for.
func AllIndicators() []string {
	return []string{IndicatorRSI, IndicatorMACD, IndicatorBollinger, IndicatorATR, IndicatorStochastic, IndicatorEMACross}
}

// MACDValue holds the MACD line, signal line and histogram.
type MACDValue struct {
	Line      decimal.Decimal `json:"line"`
	Signal    decimal.Decimal `json:"signal"`
	Histogram decimal.Decimal `json:"histogram"`
}

// BollingerValue holds the Bollinger Band levels.
type BollingerValue struct {
	Upper  decimal.Decimal `json:"upper"`
	Middle decimal.Decimal `json:"middle"`
	Lower  decimal.Decimal `json:"lower"`
}

// StochasticValue holds the %K and %D lines.
type StochasticValue struct {
	K decimal.Decimal `json:"k"`
	D decimal.Decimal `json:"d"`
}

// IndicatorSet is the immutable per-cycle output of the indicator engine.
// A nil field means the series was too short for that indicator; Missing
// records which ones were omitted so consumers can tolerate partial sets.
type IndicatorSet struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`

	RSI        *decimal.Decimal `json:"rsi,omitempty"`
	MACD       *MACDValue       `json:"macd,omitempty"`
	Bollinger  *BollingerValue  `json:"bollinger,omitempty"`
	ATR        *decimal.Decimal `json:"atr,omitempty"`
	Stochastic *StochasticValue `json:"stochastic,omitempty"`

	EMA12 *decimal.Decimal `json:"ema12,omitempty"`
	EMA26 *decimal.Decimal `json:"ema26,omitempty"`
	EMA50 *decimal.Decimal `json:"ema50,omitempty"`
	SMA20 *decimal.Decimal `json:"sma20,omitempty"`

	LastClose  decimal.Decimal  `json:"lastClose"`
	LastVolume decimal.Decimal  `json:"lastVolume"`
	AvgVolume  *decimal.Decimal `json:"avgVolume,omitempty"` // SMA(20) of volume

	Missing    []string  `json:"missing,omitempty"`
	ComputedAt time.Time `json:"computedAt"`
}

// IsMissing reports whether the named indicator was omitted.
func (is *IndicatorSet) IsMissing(name string) bool {
	for _, m := range is.Missing {
		if m == name {
			return true
		}
	}
	return false
}

// RegimeType classifies the coarse market state.
type RegimeType string

const (
	RegimeBull     RegimeType = "BULL"
	RegimeBear     RegimeType = "BEAR"
	RegimeSideways RegimeType = "SIDEWAYS"
)

// MarketRegime is the deterministic classification of an IndicatorSet.
// Adjustments scale indicator weights; multipliers are always > 0 so a
// regime can de-emphasize an indicator but never invert or zero it.
type MarketRegime struct {
	Type          RegimeType         `json:"type"`
	Confidence    float64            `json:"confidence"` // 0-1
	TrendStrength float64            `json:"trendStrength"`
	Volatility    float64            `json:"volatility"`
	Adjustments   map[string]float64 `json:"adjustments"`
}

// Pattern is a confirmed chart/candlestick pattern.
type Pattern struct {
	Type       string    `json:"type"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0-1
}

// ConfluenceComponents are the four sub-scores, each in [0,1].
type ConfluenceComponents struct {
	IndicatorAgreement float64 `json:"indicatorAgreement"`
	PatternStrength    float64 `json:"patternStrength"`
	VolumeConfirmation float64 `json:"volumeConfirmation"`
	TimeframeConsensus float64 `json:"timeframeConsensus"`
}

// ConfluenceScore aggregates independent confirmation sources into 0-100.
type ConfluenceScore struct {
	Value      float64              `json:"value"` // 0-100
	Components ConfluenceComponents `json:"components"`
}

// Signal is the immutable per-cycle output for one (symbol, timeframe).
type Signal struct {
	ID           string           `json:"id"`
	Symbol       string           `json:"symbol"`
	Timeframe    Timeframe        `json:"timeframe"`
	Direction    Direction        `json:"direction"`
	Confidence   float64          `json:"confidence"` // 0-100
	EntryPrice   decimal.Decimal  `json:"entryPrice"`
	StopLoss     decimal.Decimal  `json:"stopLoss"`
	TakeProfit   decimal.Decimal  `json:"takeProfit"`
	Reasoning    []string         `json:"reasoning"`
	Regime       *MarketRegime    `json:"regime"`
	Confluence   *ConfluenceScore `json:"confluence"`
	Contributors []string         `json:"contributors"` // indicators that voted with the final direction
	DataQuality  float64          `json:"dataQuality"`
	Timestamp    time.Time        `json:"timestamp"`
}

// UnitState tracks a (symbol, timeframe) unit through a synthesis cycle.
type UnitState string

const (
	UnitPending          UnitState = "PENDING"
	UnitComputing        UnitState = "COMPUTING"
	UnitReady            UnitState = "READY"
	UnitInsufficientData UnitState = "INSUFFICIENT_DATA"
	UnitError            UnitState = "ERROR"
)

// CycleHealth summarizes one scheduler cycle.
type CycleHealth struct {
	Cycle            int64         `json:"cycle"`
	StartedAt        time.Time     `json:"startedAt"`
	Duration         time.Duration `json:"duration"`
	Total            int           `json:"total"`
	Ready            int           `json:"ready"`
	InsufficientData int           `json:"insufficientData"`
	Errored          int           `json:"errored"`
}

// RiskLevel is a discrete risk bucket.
type RiskLevel string

const (
	RiskVeryLow   RiskLevel = "VERY_LOW"
	RiskLow       RiskLevel = "LOW"
	RiskMedium    RiskLevel = "MEDIUM"
	RiskHigh      RiskLevel = "HIGH"
	RiskVeryHigh  RiskLevel = "VERY_HIGH"
	RiskUndefined RiskLevel = "UNDEFINED"
)

// ConfidenceInterval is a two-sided interval over simulated outcome returns.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"` // e.g. 0.95
}

// RiskAssessment is derived from a Signal plus a volatility estimate,
// immutable and tied 1:1 to the signal that produced it.
type RiskAssessment struct {
	SignalID       string             `json:"signalId"`
	Symbol         string             `json:"symbol"`
	Timeframe      Timeframe          `json:"timeframe"`
	ExpectedReturn float64            `json:"expectedReturn"`
	ValueAtRisk95  float64            `json:"valueAtRisk95"`
	SharpeRatio    float64            `json:"sharpeRatio"`
	MaxDrawdown    float64            `json:"maxDrawdown"`
	WinProbability float64            `json:"winProbability"`
	RiskLevel      RiskLevel          `json:"riskLevel"`
	Interval       ConfidenceInterval `json:"confidenceInterval"`
	Simulations    int                `json:"simulations"`
	Seed           int64              `json:"seed"`
	Timestamp      time.Time          `json:"timestamp"`
}

// TradeOutcome is a realized outcome score for a resolved signal, the sole
// input to adaptive weight updates.
type TradeOutcome struct {
	SignalID   string    `json:"signalId"`
	Indicator  string    `json:"indicator"`
	Score      float64   `json:"score"` // 0-1
	RecordedAt time.Time `json:"recordedAt"`
}
