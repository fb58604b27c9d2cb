package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Signalflow SignalflowConfig `yaml:"signalflow"`
	Source     SourceConfig     `yaml:"source"`
	Collector  CollectorConfig  `yaml:"collector"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	History    HistoryConfig    `yaml:"history"`
	Supply     SupplyConfig     `yaml:"supply"`
	Universe   UniverseConfig   `yaml:"universe"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SignalflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
}

type BinanceSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	SecretKey      string               `yaml:"secret_key"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	FundingStream  FundingStreamConfig  `yaml:"funding_stream"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// FundingStreamConfig controls the optional websocket mark-price stream that
// keeps live funding rates between REST collection cycles.
type FundingStreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type CollectorConfig struct {
	TopVolumeLimit  int           `yaml:"top_volume_limit"`
	UseVolumeFilter bool          `yaml:"use_volume_filter"`
	UseLocalSymbols bool          `yaml:"use_local_symbols"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// StrategyConfig carries every scoring and classification threshold. A preset
// (balanced, conservative, aggressive) fills the core thresholds; any field
// left at zero in the file falls back to the preset value, resolved once at
// load time.
type StrategyConfig struct {
	Preset string `yaml:"preset"`

	OIMarketCapRatioThreshold     float64 `yaml:"oi_market_cap_ratio_threshold"`
	MinOIValue                    float64 `yaml:"min_oi_value"`
	VolumeMarketCapRatioThreshold float64 `yaml:"volume_market_cap_ratio_threshold"`
	SignalStrengthThreshold       float64 `yaml:"signal_strength_threshold"`

	FundingRateActivityThreshold float64 `yaml:"funding_rate_activity_threshold"`
	PriceChangeThreshold         float64 `yaml:"price_change_threshold"`

	SellOIMarketCapRatio float64 `yaml:"sell_oi_market_cap_ratio"`
	SellSignalStrength   float64 `yaml:"sell_signal_strength"`
	SellFundingRate      float64 `yaml:"sell_funding_rate"`

	AlertFundingThreshold float64 `yaml:"alert_funding_threshold"`
	AlertSurgeThreshold   float64 `yaml:"alert_surge_threshold"`

	MaxRiskScore      float64 `yaml:"max_risk_score"`
	SmallCapThreshold float64 `yaml:"small_cap_threshold"`
}

type HistoryConfig struct {
	DataDir       string        `yaml:"data_dir"`
	RetentionDays int           `yaml:"retention_days"`
	RecentCount   int           `yaml:"recent_count"`
	TotalCount    int           `yaml:"total_count"`
	LookbackDays  int           `yaml:"lookback_days"`
	CacheFile     string        `yaml:"cache_file"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	FetchDelay    time.Duration `yaml:"fetch_delay"`
}

type SupplyConfig struct {
	LocalFile     string              `yaml:"local_file"`
	ManualFile    string              `yaml:"manual_file"`
	MappingFile   string              `yaml:"mapping_file"`
	DefaultSupply float64             `yaml:"default_supply"`
	Timeout       time.Duration       `yaml:"timeout"`
	CoinMarketCap CoinMarketCapConfig `yaml:"coinmarketcap"`
	CoinGecko     CoinGeckoConfig     `yaml:"coingecko"`
}

type CoinMarketCapConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	URL     string `yaml:"url"`
}

type CoinGeckoConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type UniverseConfig struct {
	CacheFile  string        `yaml:"cache_file"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	ProbeDelay time.Duration `yaml:"probe_delay"`
}

type NotifierConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WebhookURL string        `yaml:"webhook_url"`
	Format     string        `yaml:"format"`
	Timeout    time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	Timezone        string `yaml:"timezone"`
	DailyAt         string `yaml:"daily_at"`
	EveryHours      int    `yaml:"every_hours"`
	FundingRateMode bool   `yaml:"funding_rate_mode"`
}

type LoggingConfig struct {
	Level      string           `yaml:"level"`
	Format     string           `yaml:"format"`
	Output     string           `yaml:"output"`
	MaxAge     int              `yaml:"max_age"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

// strategyPresets mirrors the conservative/balanced/aggressive parameter sets
// shipped with the original strategy configuration.
var strategyPresets = map[string]StrategyConfig{
	"balanced": {
		OIMarketCapRatioThreshold:     0.5,
		MinOIValue:                    5_000_000,
		VolumeMarketCapRatioThreshold: 0.1,
		SignalStrengthThreshold:       60,
		MaxRiskScore:                  70,
	},
	"conservative": {
		OIMarketCapRatioThreshold:     0.8,
		MinOIValue:                    10_000_000,
		VolumeMarketCapRatioThreshold: 0.15,
		SignalStrengthThreshold:       75,
		MaxRiskScore:                  50,
	},
	"aggressive": {
		OIMarketCapRatioThreshold:     0.3,
		MinOIValue:                    2_000_000,
		VolumeMarketCapRatioThreshold: 0.05,
		SignalStrengthThreshold:       50,
		MaxRiskScore:                  80,
	},
}

// envConfigPaths maps an application environment to its dedicated config
// file, used when the caller sticks with the default path.
var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", envConfigPaths)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Collector: CollectorConfig{
			UseVolumeFilter: true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override secrets and endpoints from environment variables if available
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Source.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		config.Source.Binance.SecretKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("WECHAT_WEBHOOK_URL"); v != "" {
		config.Notifier.WebhookURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("ENABLE_WECHAT_NOTIFICATION"); v != "" {
		config.Notifier.Enabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v := os.Getenv("COINMARKETCAP_API_KEY"); v != "" {
		config.Supply.CoinMarketCap.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("ENABLE_COINMARKETCAP"); v != "" {
		config.Supply.CoinMarketCap.Enabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v := os.Getenv("AWS_REGION"); v != "" && config.Logging.CloudWatch.Region == "" {
		config.Logging.CloudWatch.Region = strings.TrimSpace(v)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults resolves the strategy preset and fills every unset field with
// its documented default.
func applyDefaults(cfg *Config) {
	preset := strings.ToLower(strings.TrimSpace(cfg.Strategy.Preset))
	if preset == "" {
		preset = "balanced"
	}
	cfg.Strategy.Preset = preset
	if base, ok := strategyPresets[preset]; ok {
		if cfg.Strategy.OIMarketCapRatioThreshold == 0 {
			cfg.Strategy.OIMarketCapRatioThreshold = base.OIMarketCapRatioThreshold
		}
		if cfg.Strategy.MinOIValue == 0 {
			cfg.Strategy.MinOIValue = base.MinOIValue
		}
		if cfg.Strategy.VolumeMarketCapRatioThreshold == 0 {
			cfg.Strategy.VolumeMarketCapRatioThreshold = base.VolumeMarketCapRatioThreshold
		}
		if cfg.Strategy.SignalStrengthThreshold == 0 {
			cfg.Strategy.SignalStrengthThreshold = base.SignalStrengthThreshold
		}
		if cfg.Strategy.MaxRiskScore == 0 {
			cfg.Strategy.MaxRiskScore = base.MaxRiskScore
		}
	}
	if cfg.Strategy.FundingRateActivityThreshold == 0 {
		cfg.Strategy.FundingRateActivityThreshold = 0.0001
	}
	if cfg.Strategy.PriceChangeThreshold == 0 {
		cfg.Strategy.PriceChangeThreshold = 0.02
	}
	if cfg.Strategy.SellOIMarketCapRatio == 0 {
		cfg.Strategy.SellOIMarketCapRatio = 0.2
	}
	if cfg.Strategy.SellSignalStrength == 0 {
		cfg.Strategy.SellSignalStrength = 30
	}
	if cfg.Strategy.SellFundingRate == 0 {
		cfg.Strategy.SellFundingRate = -0.0001
	}
	if cfg.Strategy.AlertFundingThreshold == 0 {
		cfg.Strategy.AlertFundingThreshold = 0.001
	}
	if cfg.Strategy.AlertSurgeThreshold == 0 {
		cfg.Strategy.AlertSurgeThreshold = 2.0
	}
	if cfg.Strategy.SmallCapThreshold == 0 {
		cfg.Strategy.SmallCapThreshold = 100_000_000
	}

	if cfg.Source.Binance.Timeout == 0 {
		cfg.Source.Binance.Timeout = 30 * time.Second
	}
	if cfg.Source.Binance.FundingStream.ReconnectDelay == 0 {
		cfg.Source.Binance.FundingStream.ReconnectDelay = 5 * time.Second
	}

	if cfg.Collector.TopVolumeLimit == 0 {
		cfg.Collector.TopVolumeLimit = 100
	}
	if cfg.Collector.RequestTimeout == 0 {
		cfg.Collector.RequestTimeout = 10 * time.Second
	}

	if cfg.History.DataDir == "" {
		cfg.History.DataDir = "oi_history_data"
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 10
	}
	if cfg.History.RecentCount == 0 {
		cfg.History.RecentCount = 3
	}
	if cfg.History.TotalCount == 0 {
		cfg.History.TotalCount = 10
	}
	if cfg.History.LookbackDays == 0 {
		cfg.History.LookbackDays = 7
	}
	if cfg.History.CacheFile == "" {
		cfg.History.CacheFile = "oi_ratio_cache.json"
	}
	if cfg.History.CacheTTL == 0 {
		cfg.History.CacheTTL = time.Hour
	}
	if cfg.History.FetchDelay == 0 {
		cfg.History.FetchDelay = 100 * time.Millisecond
	}

	if cfg.Supply.LocalFile == "" {
		cfg.Supply.LocalFile = "local_supply.json"
	}
	if cfg.Supply.ManualFile == "" {
		cfg.Supply.ManualFile = "manual_supply.json"
	}
	if cfg.Supply.MappingFile == "" {
		cfg.Supply.MappingFile = "symbol_mapping.json"
	}
	if cfg.Supply.Timeout == 0 {
		cfg.Supply.Timeout = 10 * time.Second
	}

	if cfg.Universe.CacheFile == "" {
		cfg.Universe.CacheFile = "valid_symbols_cache.json"
	}
	if cfg.Universe.CacheTTL == 0 {
		cfg.Universe.CacheTTL = 24 * time.Hour
	}
	if cfg.Universe.ProbeDelay == 0 {
		cfg.Universe.ProbeDelay = 100 * time.Millisecond
	}

	if cfg.Notifier.Format == "" {
		cfg.Notifier.Format = "text"
	}
	if cfg.Notifier.Timeout == 0 {
		cfg.Notifier.Timeout = 10 * time.Second
	}

	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Asia/Shanghai"
	}
	if cfg.Scheduler.DailyAt == "" {
		cfg.Scheduler.DailyAt = "08:00"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Signalflow.Name == "" {
		return fmt.Errorf("signalflow.name is required")
	}

	if cfg.Signalflow.Version == "" {
		return fmt.Errorf("signalflow.version is required")
	}

	if _, ok := strategyPresets[cfg.Strategy.Preset]; !ok {
		return fmt.Errorf("strategy.preset '%s' is unknown", cfg.Strategy.Preset)
	}

	if cfg.Strategy.SellFundingRate >= 0 {
		return fmt.Errorf("strategy.sell_funding_rate must be negative")
	}

	if cfg.History.RecentCount >= cfg.History.TotalCount {
		return fmt.Errorf("history.recent_count must be smaller than history.total_count")
	}

	if cfg.History.RetentionDays < cfg.History.LookbackDays {
		return fmt.Errorf("history.retention_days must cover history.lookback_days")
	}

	if cfg.Collector.TopVolumeLimit <= 0 {
		return fmt.Errorf("collector.top_volume_limit must be greater than 0")
	}

	if cfg.Notifier.Enabled && cfg.Notifier.WebhookURL == "" {
		return fmt.Errorf("notifier.webhook_url is required when the notifier is enabled")
	}

	if cfg.Notifier.Format != "text" && cfg.Notifier.Format != "markdown" {
		return fmt.Errorf("notifier.format '%s' is invalid", cfg.Notifier.Format)
	}

	if cfg.Supply.CoinMarketCap.Enabled && cfg.Supply.CoinMarketCap.APIKey == "" {
		return fmt.Errorf("supply.coinmarketcap.api_key is required when CoinMarketCap is enabled")
	}

	if cfg.Scheduler.EveryHours < 0 {
		return fmt.Errorf("scheduler.every_hours must not be negative")
	}

	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone '%s' is invalid: %w", cfg.Scheduler.Timezone, err)
	}

	return nil
}
