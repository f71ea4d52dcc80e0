// Package config loads and validates pipeline configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Config is the root configuration for the signal pipeline.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Indicators  IndicatorConfig   `mapstructure:"indicators"`
	Regime      RegimeConfig      `mapstructure:"regime"`
	Weights     WeightsConfig     `mapstructure:"weights"`
	Confluence  ConfluenceConfig  `mapstructure:"confluence"`
	Synthesizer SynthesizerConfig `mapstructure:"synthesizer"`
	MonteCarlo  MonteCarloConfig  `mapstructure:"montecarlo"`
	Store       StoreConfig       `mapstructure:"store"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PipelineConfig defines the symbol/timeframe universe and cycle cadence.
type PipelineConfig struct {
	Symbols       []string      `mapstructure:"symbols"`
	Timeframes    []string      `mapstructure:"timeframes"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	Workers       int           `mapstructure:"workers"`
}

// ProviderConfig bounds market data fetching.
type ProviderConfig struct {
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	MinBars              int           `mapstructure:"min_bars"`
}

// IndicatorConfig holds indicator lookback periods.
type IndicatorConfig struct {
	RSIPeriod       int     `mapstructure:"rsi_period"`
	MACDFast        int     `mapstructure:"macd_fast"`
	MACDSlow        int     `mapstructure:"macd_slow"`
	MACDSignal      int     `mapstructure:"macd_signal"`
	BollingerPeriod int     `mapstructure:"bollinger_period"`
	BollingerK      float64 `mapstructure:"bollinger_k"`
	ATRPeriod       int     `mapstructure:"atr_period"`
	StochLookback   int     `mapstructure:"stoch_lookback"`
	StochSmooth     int     `mapstructure:"stoch_smooth"`
}

// RegimeConfig holds the classification thresholds and per-regime
// indicator weight multipliers. Confidence values are calibrated constants.
type RegimeConfig struct {
	TrendThreshold      float64            `mapstructure:"trend_threshold"`
	VolatilityThreshold float64            `mapstructure:"volatility_threshold"`
	TrendScale          float64            `mapstructure:"trend_scale"` // fractional EMA divergence that saturates trend strength to +/-1
	VolScale            float64            `mapstructure:"vol_scale"`   // ATR/price ratio that saturates volatility to 1
	BullConfidence      float64            `mapstructure:"bull_confidence"`
	BearConfidence      float64            `mapstructure:"bear_confidence"`
	SidewaysConfidence  float64            `mapstructure:"sideways_confidence"`
	BullAdjustments     map[string]float64 `mapstructure:"bull_adjustments"`
	BearAdjustments     map[string]float64 `mapstructure:"bear_adjustments"`
	SidewaysAdjustments map[string]float64 `mapstructure:"sideways_adjustments"`
}

// WeightsConfig configures the adaptive weight manager.
type WeightsConfig struct {
	Defaults    map[string]float64 `mapstructure:"defaults"`
	Fallback    float64            `mapstructure:"fallback"`
	MinWeight   float64            `mapstructure:"min_weight"`
	MaxWeight   float64            `mapstructure:"max_weight"`
	StepSize    float64            `mapstructure:"step_size"`
	HistorySize int                `mapstructure:"history_size"`
}

// ConfluenceConfig holds the component weights and quality gate.
type ConfluenceConfig struct {
	IndicatorWeight  float64 `mapstructure:"indicator_weight"`
	PatternWeight    float64 `mapstructure:"pattern_weight"`
	VolumeWeight     float64 `mapstructure:"volume_weight"`
	TimeframeWeight  float64 `mapstructure:"timeframe_weight"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`
}

// ATRMultiples sizes stop/target distances for a timeframe.
type ATRMultiples struct {
	Stop   float64 `mapstructure:"stop"`
	Target float64 `mapstructure:"target"`
}

// SynthesizerConfig holds direction thresholds and the ATR multiple table.
type SynthesizerConfig struct {
	// UpperThreshold/LowerThreshold bound the normalized weighted vote
	// score (-1..1). Kept symmetric: there is no evidence the universe
	// drifts long or short, so asymmetry would just encode bias.
	UpperThreshold float64                 `mapstructure:"upper_threshold"`
	LowerThreshold float64                 `mapstructure:"lower_threshold"`
	ATRMultiples   map[string]ATRMultiples `mapstructure:"atr_multiples"`
}

// MonteCarloConfig configures the risk engine.
type MonteCarloConfig struct {
	Simulations int            `mapstructure:"simulations"`
	Workers     int            `mapstructure:"workers"`
	HorizonBars map[string]int `mapstructure:"horizon_bars"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// Default returns the baseline configuration. All numeric thresholds here
// are tuning starting points, not contracts.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Symbols:       []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT"},
			Timeframes:    []string{"15m", "1h", "4h", "1d"},
			CycleInterval: time.Minute,
			Workers:       8,
		},
		Provider: ProviderConfig{
			MaxConcurrentFetches: 4,
			CacheTTL:             2 * time.Minute,
			MinBars:              60,
		},
		Indicators: IndicatorConfig{
			RSIPeriod:       14,
			MACDFast:        12,
			MACDSlow:        26,
			MACDSignal:      9,
			BollingerPeriod: 20,
			BollingerK:      2.0,
			ATRPeriod:       14,
			StochLookback:   14,
			StochSmooth:     3,
		},
		Regime: RegimeConfig{
			TrendThreshold:      0.7,
			VolatilityThreshold: 0.3,
			TrendScale:          0.02,
			VolScale:            0.05,
			BullConfidence:      0.87,
			BearConfidence:      0.89,
			SidewaysConfidence:  0.82,
			// Trending regimes favor momentum indicators; range-bound
			// markets favor mean-reversion indicators.
			BullAdjustments: map[string]float64{
				types.IndicatorMACD:     1.25,
				types.IndicatorEMACross: 1.20,
				types.IndicatorRSI:      0.90,
			},
			BearAdjustments: map[string]float64{
				types.IndicatorMACD:     1.25,
				types.IndicatorEMACross: 1.20,
				types.IndicatorRSI:      0.90,
			},
			SidewaysAdjustments: map[string]float64{
				types.IndicatorBollinger:  1.30,
				types.IndicatorStochastic: 1.25,
				types.IndicatorMACD:       0.85,
				types.IndicatorEMACross:   0.80,
			},
		},
		Weights: WeightsConfig{
			// Research-based starting weights; renormalized at consumption.
			Defaults: map[string]float64{
				types.IndicatorRSI:        1.0,
				types.IndicatorMACD:       1.1,
				types.IndicatorBollinger:  0.9,
				types.IndicatorATR:        0.7,
				types.IndicatorStochastic: 0.8,
				types.IndicatorEMACross:   1.0,
			},
			Fallback:    0.8,
			MinWeight:   0.25,
			MaxWeight:   2.0,
			StepSize:    0.1,
			HistorySize: 10,
		},
		Confluence: ConfluenceConfig{
			IndicatorWeight:  0.40,
			PatternWeight:    0.25,
			VolumeWeight:     0.20,
			TimeframeWeight:  0.15,
			QualityThreshold: 60,
		},
		Synthesizer: SynthesizerConfig{
			UpperThreshold: 0.15,
			LowerThreshold: -0.15,
			ATRMultiples: map[string]ATRMultiples{
				"1m":  {Stop: 1.5, Target: 3.0},
				"5m":  {Stop: 1.8, Target: 3.6},
				"15m": {Stop: 2.0, Target: 4.0},
				"1h":  {Stop: 2.5, Target: 5.0},
				"4h":  {Stop: 3.0, Target: 6.0},
				"1d":  {Stop: 4.0, Target: 8.0},
			},
		},
		MonteCarlo: MonteCarloConfig{
			Simulations: 1000,
			Workers:     4,
			HorizonBars: map[string]int{
				"1m":  60,
				"5m":  48,
				"15m": 48,
				"1h":  48,
				"4h":  42,
				"1d":  30,
			},
		},
		Store: StoreConfig{
			DataDir: "./data",
		},
	}
}

// Load reads config.yaml from the given directory, layered over defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would violate pipeline invariants.
func (c *Config) Validate() error {
	if c.Weights.MinWeight <= 0 || c.Weights.MaxWeight <= c.Weights.MinWeight {
		return fmt.Errorf("weights: min_weight must be > 0 and < max_weight (got %v..%v)",
			c.Weights.MinWeight, c.Weights.MaxWeight)
	}
	if c.Weights.HistorySize < 1 {
		return fmt.Errorf("weights: history_size must be >= 1")
	}
	if c.Synthesizer.UpperThreshold <= c.Synthesizer.LowerThreshold {
		return fmt.Errorf("synthesizer: upper_threshold must exceed lower_threshold")
	}
	if c.MonteCarlo.Simulations < 1000 {
		return fmt.Errorf("montecarlo: simulations must be >= 1000 (got %d)", c.MonteCarlo.Simulations)
	}
	if c.Confluence.QualityThreshold < 0 || c.Confluence.QualityThreshold > 100 {
		return fmt.Errorf("confluence: quality_threshold must be in [0,100]")
	}
	for name, m := range c.Regime.SidewaysAdjustments {
		if m <= 0 {
			return fmt.Errorf("regime: adjustment for %s must be positive", name)
		}
	}
	for _, adj := range []map[string]float64{c.Regime.BullAdjustments, c.Regime.BearAdjustments} {
		for name, m := range adj {
			if m <= 0 {
				return fmt.Errorf("regime: adjustment for %s must be positive", name)
			}
		}
	}
	if len(c.Pipeline.Symbols) == 0 || len(c.Pipeline.Timeframes) == 0 {
		return fmt.Errorf("pipeline: symbols and timeframes must be non-empty")
	}
	return nil
}
