package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalConfig = `signalflow:
  name: "TestApp"
  version: "1.0"
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Signalflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Signalflow.Name)
	}
	if cfg.Strategy.Preset != "balanced" {
		t.Errorf("unexpected preset: %s", cfg.Strategy.Preset)
	}
	if cfg.Strategy.OIMarketCapRatioThreshold != 0.5 {
		t.Errorf("unexpected OI/market-cap threshold: %v", cfg.Strategy.OIMarketCapRatioThreshold)
	}
	if cfg.Strategy.MinOIValue != 5_000_000 {
		t.Errorf("unexpected min OI value: %v", cfg.Strategy.MinOIValue)
	}
	if cfg.Strategy.SellFundingRate != -0.0001 {
		t.Errorf("unexpected sell funding rate: %v", cfg.Strategy.SellFundingRate)
	}
	if cfg.History.RetentionDays != 10 || cfg.History.RecentCount != 3 || cfg.History.TotalCount != 10 {
		t.Errorf("unexpected history defaults: %+v", cfg.History)
	}
	if cfg.History.CacheTTL != time.Hour {
		t.Errorf("unexpected cache TTL: %v", cfg.History.CacheTTL)
	}
	if cfg.Collector.TopVolumeLimit != 100 {
		t.Errorf("unexpected top volume limit: %d", cfg.Collector.TopVolumeLimit)
	}
	if cfg.Scheduler.Timezone != "Asia/Shanghai" || cfg.Scheduler.DailyAt != "08:00" {
		t.Errorf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
}

func TestLoadConfigPreset(t *testing.T) {
	path := writeTempConfig(t, minimalConfig+`strategy:
  preset: conservative
  min_oi_value: 42
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Strategy.OIMarketCapRatioThreshold != 0.8 {
		t.Errorf("preset threshold not applied: %v", cfg.Strategy.OIMarketCapRatioThreshold)
	}
	// Explicit values win over the preset.
	if cfg.Strategy.MinOIValue != 42 {
		t.Errorf("explicit value overridden: %v", cfg.Strategy.MinOIValue)
	}
}

func TestLoadConfigUnknownPreset(t *testing.T) {
	path := writeTempConfig(t, minimalConfig+`strategy:
  preset: reckless
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WECHAT_WEBHOOK_URL", "https://example.test/hook")
	t.Setenv("COINMARKETCAP_API_KEY", "key-from-env")

	path := writeTempConfig(t, minimalConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Notifier.WebhookURL != "https://example.test/hook" {
		t.Errorf("webhook env override not applied: %s", cfg.Notifier.WebhookURL)
	}
	if cfg.Supply.CoinMarketCap.APIKey != "key-from-env" {
		t.Errorf("coinmarketcap env override not applied: %s", cfg.Supply.CoinMarketCap.APIKey)
	}
}

func TestLoadConfigRecentCountValidation(t *testing.T) {
	path := writeTempConfig(t, minimalConfig+`history:
  recent_count: 10
  total_count: 10
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error when recent_count >= total_count")
	}
}

func TestLoadConfigNotifierRequiresWebhook(t *testing.T) {
	t.Setenv("WECHAT_WEBHOOK_URL", "")
	path := writeTempConfig(t, minimalConfig+`notifier:
  enabled: true
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for enabled notifier without webhook url")
	}
}
