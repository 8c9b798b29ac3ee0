// Package config defines all configuration for the grid trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via GRIDMEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	API        APIConfig        `mapstructure:"api"`
	Instrument InstrumentConfig `mapstructure:"instrument"`
	Grid       GridConfig       `mapstructure:"grid"`
	ATR        ATRConfig        `mapstructure:"atr"`
	Trend      TrendConfig      `mapstructure:"trend"`
	Breakout   BreakoutConfig   `mapstructure:"breakout"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// APIConfig holds venue endpoints and credentials. Key and Secret sign REST
// requests and the private stream subscription.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
	Key     string `mapstructure:"key"`
	Secret  string `mapstructure:"secret"`
}

// InstrumentConfig selects the traded contract.
type InstrumentConfig struct {
	Symbol string `mapstructure:"symbol"`
}

// GridConfig tunes the resting order grid.
//
//   - OrderCount: orders per side (N).
//   - OrderDistance: base spacing in quote units, used directly when ATR
//     sizing is disabled and as the bootstrap spacing before warm-up.
//   - OrderSize: base order size in base currency.
//   - MaxPositionSizeBase / MaxOpenOrders: hard limits checked before every
//     submission.
//   - GapDetectionTolerance: a gap wider than tolerance * spacing gets
//     filler orders after reconciliation.
//   - InfinityGridEnabled + ShiftThreshold/ShiftOverlap/Shift intervals:
//     bound-following grid relocation.
//   - VariableOrderSize + Min/MaxOrderSizeMultiplier: scale order size by
//     distance from the reference price.
//   - InitThrottle: minimum wall-clock between two grid constructions.
type GridConfig struct {
	OrderCount              int           `mapstructure:"order_count"`
	OrderDistance           float64       `mapstructure:"order_distance"`
	OrderSize               float64       `mapstructure:"order_size"`
	MaxPositionSizeBase     float64       `mapstructure:"max_position_size_base"`
	MaxOpenOrders           int           `mapstructure:"max_open_orders"`
	GapDetectionTolerance   float64       `mapstructure:"gap_detection_tolerance"`
	InfinityGridEnabled     bool          `mapstructure:"infinity_grid_enabled"`
	ShiftThreshold          float64       `mapstructure:"shift_threshold"`
	ShiftOverlap            float64       `mapstructure:"shift_overlap"`
	ShiftCheckInterval      time.Duration `mapstructure:"auto_shift_check_interval"`
	ShiftMinInterval        time.Duration `mapstructure:"shift_min_interval"`
	InitThrottle            time.Duration `mapstructure:"init_throttle"`
	VariableOrderSize       bool          `mapstructure:"variable_order_size_enabled"`
	MinOrderSizeMultiplier  float64       `mapstructure:"min_order_size_multiplier"`
	MaxOrderSizeMultiplier  float64       `mapstructure:"max_order_size_multiplier"`
	FeeRate                 float64       `mapstructure:"fee_rate"`
}

// ATRConfig controls volatility-driven spacing recalculation.
type ATRConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	Period                   int           `mapstructure:"period"`
	Multiplier               float64       `mapstructure:"multiplier"`
	MinGridDistance          float64       `mapstructure:"min_grid_distance"`
	MaxGridDistance          float64       `mapstructure:"max_grid_distance"`
	RecalculationInterval    time.Duration `mapstructure:"recalculation_interval"`
	HistoricalTradesLookback time.Duration `mapstructure:"historical_trades_lookback"`
}

// TrendConfig sets the RSI/EMA periods and bounds for trend analysis.
type TrendConfig struct {
	RSIPeriod          int     `mapstructure:"rsi_period"`
	FastEMAPeriod      int     `mapstructure:"fast_ema_period"`
	SlowEMAPeriod      int     `mapstructure:"slow_ema_period"`
	RSIOverbought      float64 `mapstructure:"rsi_overbought"`
	RSIOversold       float64 `mapstructure:"rsi_oversold"`
	MaxAsymmetryFactor float64 `mapstructure:"max_asymmetry_factor"`
}

// BreakoutConfig sets the thresholds of the candle regime classifier.
type BreakoutConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	ATRRatioThreshold    float64       `mapstructure:"atr_ratio_threshold"`
	BodyWickThreshold    float64       `mapstructure:"body_wick_threshold"`
	VolumeRatioThreshold float64       `mapstructure:"volume_ratio_threshold"`
	Cooldown             time.Duration `mapstructure:"cooldown"`
}

// SyncConfig sets the cadence of exchange reconciliation.
type SyncConfig struct {
	OrderSyncInterval time.Duration `mapstructure:"order_sync_interval"`
}

// StoreConfig sets where engine state is persisted (one JSON file per symbol).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the periodic stats snapshot.
type MetricsConfig struct {
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: GRIDMEX_API_KEY, GRIDMEX_API_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GRIDMEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("GRIDMEX_API_KEY"); key != "" {
		cfg.API.Key = key
	}
	if secret := os.Getenv("GRIDMEX_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if os.Getenv("GRIDMEX_DRY_RUN") == "true" || os.Getenv("GRIDMEX_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("grid.order_count", 3)
	v.SetDefault("grid.order_distance", 70.0)
	v.SetDefault("grid.order_size", 0.001)
	v.SetDefault("grid.max_open_orders", 20)
	v.SetDefault("grid.gap_detection_tolerance", 1.5)
	v.SetDefault("grid.shift_threshold", 0.2)
	v.SetDefault("grid.shift_overlap", 0.5)
	v.SetDefault("grid.auto_shift_check_interval", 15*time.Second)
	v.SetDefault("grid.shift_min_interval", 10*time.Second)
	v.SetDefault("grid.init_throttle", 5*time.Second)
	v.SetDefault("grid.min_order_size_multiplier", 0.5)
	v.SetDefault("grid.max_order_size_multiplier", 2.0)
	v.SetDefault("atr.period", 14)
	v.SetDefault("atr.multiplier", 1.5)
	v.SetDefault("atr.recalculation_interval", 15*time.Minute)
	v.SetDefault("atr.historical_trades_lookback", 60*time.Minute)
	v.SetDefault("trend.rsi_period", 14)
	v.SetDefault("trend.fast_ema_period", 8)
	v.SetDefault("trend.slow_ema_period", 21)
	v.SetDefault("trend.rsi_overbought", 70.0)
	v.SetDefault("trend.rsi_oversold", 30.0)
	v.SetDefault("trend.max_asymmetry_factor", 1.5)
	v.SetDefault("breakout.atr_ratio_threshold", 1.8)
	v.SetDefault("breakout.body_wick_threshold", 0.7)
	v.SetDefault("breakout.volume_ratio_threshold", 1.5)
	v.SetDefault("breakout.cooldown", 10*time.Minute)
	v.SetDefault("sync.order_sync_interval", 60*time.Second)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.snapshot_interval", 60*time.Second)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Instrument.Symbol == "" {
		return fmt.Errorf("instrument.symbol is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !c.DryRun && (c.API.Key == "" || c.API.Secret == "") {
		return fmt.Errorf("api.key and api.secret are required (set GRIDMEX_API_KEY / GRIDMEX_API_SECRET)")
	}
	if c.Grid.OrderCount <= 0 {
		return fmt.Errorf("grid.order_count must be > 0")
	}
	if c.Grid.OrderSize <= 0 {
		return fmt.Errorf("grid.order_size must be > 0")
	}
	if c.Grid.MaxOpenOrders <= 0 {
		return fmt.Errorf("grid.max_open_orders must be > 0")
	}
	if c.Grid.MaxPositionSizeBase <= 0 {
		return fmt.Errorf("grid.max_position_size_base must be > 0")
	}
	if !c.ATR.Enabled && c.Grid.OrderDistance <= 0 {
		return fmt.Errorf("grid.order_distance must be > 0 when atr.enabled is false")
	}
	if c.ATR.Enabled {
		if c.ATR.Period <= 0 {
			return fmt.Errorf("atr.period must be > 0")
		}
		if c.ATR.MinGridDistance <= 0 || c.ATR.MaxGridDistance < c.ATR.MinGridDistance {
			return fmt.Errorf("atr.min_grid_distance / atr.max_grid_distance are invalid")
		}
	}
	if c.Grid.ShiftOverlap < 0 || c.Grid.ShiftOverlap >= 1 {
		return fmt.Errorf("grid.shift_overlap must be in [0, 1)")
	}
	if c.Grid.ShiftThreshold <= 0 || c.Grid.ShiftThreshold >= 1 {
		return fmt.Errorf("grid.shift_threshold must be in (0, 1)")
	}
	if c.Grid.VariableOrderSize {
		if c.Grid.MinOrderSizeMultiplier <= 0 || c.Grid.MaxOrderSizeMultiplier < 1 {
			return fmt.Errorf("order size multipliers are invalid")
		}
	}
	if c.Trend.FastEMAPeriod >= c.Trend.SlowEMAPeriod {
		return fmt.Errorf("trend.fast_ema_period must be below trend.slow_ema_period")
	}
	return nil
}
