// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig  `mapstructure:"trading"`
	Strategy    StrategyConfig `mapstructure:"strategy"`
	Scanner     ScannerConfig  `mapstructure:"scanner"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode       string  `mapstructure:"mode"`       // "live", "paper"
	Underlying string  `mapstructure:"underlying"` // index symbol, e.g. NIFTY
	Capital    float64 `mapstructure:"capital"`    // session capital in rupees
	LotSize    int     `mapstructure:"lot_size"`   // contract lot size
	MaxLegs    int     `mapstructure:"max_legs"`   // open leg ceiling
	JournalDB  string  `mapstructure:"journal_db"` // sqlite trade journal path
}

// StrategyConfig holds the knobs shared by both strategy variants.
type StrategyConfig struct {
	TargetPct           float64 `mapstructure:"target_pct"`            // session profit target, fraction of capital
	StopLossPct         float64 `mapstructure:"sl_pct"`                // session stop loss, fraction of capital
	MaxRolls            int     `mapstructure:"max_rolls"`             // roll budget per run
	IVMismatchThreshold float64 `mapstructure:"iv_mismatch_threshold"` // solved IV% minus VIX
	PreNoonHedgePts     float64 `mapstructure:"pre_noon_hedge_pts"`
	PostNoonHedgePts    float64 `mapstructure:"post_noon_hedge_pts"`
	HedgeCutoffHour     int     `mapstructure:"hedge_cutoff_hour"`
	DecayTriggerPct     float64 `mapstructure:"decay_trigger_pct"` // short-leg premium decay exit
	IVRankEntry         float64 `mapstructure:"iv_rank_entry"`     // condor entry gate
	CondorWingWidth     float64 `mapstructure:"condor_wing_width"` // points to the protective wings
	DeltaShortMin       float64 `mapstructure:"delta_short_min"`
	DeltaShortMax       float64 `mapstructure:"delta_short_max"`
	AdjustmentDelta     float64 `mapstructure:"adjustment_delta"` // short-leg |delta| roll trigger
	RollStepPts         float64 `mapstructure:"roll_step_pts"`    // distance moved per roll
	MinOpenInterest     int64   `mapstructure:"min_open_interest"`
	VIX52WeekLow        float64 `mapstructure:"vix_52w_low"`
	VIX52WeekHigh       float64 `mapstructure:"vix_52w_high"`
}

// ScannerConfig holds option chain scanner configuration.
type ScannerConfig struct {
	StrikeStep     float64 `mapstructure:"strike_step"`
	StrikesPerSide int     `mapstructure:"strikes_per_side"`
	MinPremium     float64 `mapstructure:"min_premium"` // illiquidity floor on LTP
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	ExpiryWeekday  int     `mapstructure:"expiry_weekday"` // time.Weekday; 4 = Thursday
	RescanTicks    int     `mapstructure:"rescan_ticks"`   // full rescan cadence in scheduler ticks
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	UserID    string `mapstructure:"user_id"`
}

// Default returns the configuration defaults used when no config file exists.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Mode:       "paper",
			Underlying: "NIFTY",
			Capital:    500000,
			LotSize:    50,
			MaxLegs:    6,
			JournalDB:  filepath.Join(DefaultConfigDir(), "journal.db"),
		},
		Strategy: StrategyConfig{
			TargetPct:           0.005,
			StopLossPct:         0.005,
			MaxRolls:            5,
			IVMismatchThreshold: 2.0,
			PreNoonHedgePts:     400,
			PostNoonHedgePts:    300,
			HedgeCutoffHour:     12,
			DecayTriggerPct:     0.50,
			IVRankEntry:         60,
			CondorWingWidth:     100,
			DeltaShortMin:       0.20,
			DeltaShortMax:       0.30,
			AdjustmentDelta:     0.45,
			RollStepPts:         50,
			MinOpenInterest:     500000,
			VIX52WeekLow:        10.0,
			VIX52WeekHigh:       35.0,
		},
		Scanner: ScannerConfig{
			StrikeStep:     50,
			StrikesPerSide: 8,
			MinPremium:     3.0,
			RiskFreeRate:   0.065,
			ExpiryWeekday:  4, // Thursday
			RescanTicks:    60,
		},
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/shortvol-trader"
	}
	return filepath.Join(home, ".config", "shortvol-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file: run on defaults.
			return nil
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_USER_ID"); v != "" {
		cfg.Credentials.Zerodha.UserID = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("CAPITAL"); v != "" {
		if capital, err := strconv.ParseFloat(v, 64); err == nil && capital > 0 {
			cfg.Trading.Capital = capital
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("trading.mode must be live or paper, got %q", c.Trading.Mode)
	}
	if c.Trading.Capital <= 0 {
		return fmt.Errorf("trading.capital must be positive")
	}
	if c.Trading.LotSize <= 0 {
		return fmt.Errorf("trading.lot_size must be positive")
	}
	if c.Strategy.TargetPct <= 0 || c.Strategy.StopLossPct <= 0 {
		return fmt.Errorf("strategy target_pct and sl_pct must be positive")
	}
	if c.Strategy.DeltaShortMin > c.Strategy.DeltaShortMax {
		return fmt.Errorf("strategy.delta_short_min exceeds delta_short_max")
	}
	if c.Strategy.MaxRolls < 0 {
		return fmt.Errorf("strategy.max_rolls must not be negative")
	}
	if c.Scanner.StrikeStep <= 0 {
		return fmt.Errorf("scanner.strike_step must be positive")
	}
	if c.Scanner.StrikesPerSide <= 0 {
		return fmt.Errorf("scanner.strikes_per_side must be positive")
	}
	if c.Scanner.ExpiryWeekday < 0 || c.Scanner.ExpiryWeekday > 6 {
		return fmt.Errorf("scanner.expiry_weekday must be 0-6")
	}
	if c.Scanner.RescanTicks <= 0 {
		return fmt.Errorf("scanner.rescan_ticks must be positive")
	}
	return nil
}

// Target returns the absolute session profit target in rupees.
func (c *Config) Target() float64 {
	return c.Trading.Capital * c.Strategy.TargetPct
}

// StopLoss returns the absolute session stop loss in rupees (positive number).
func (c *Config) StopLoss() float64 {
	return c.Trading.Capital * c.Strategy.StopLossPct
}
