package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"signalflow/config"
	"signalflow/internal/history"
	"signalflow/internal/models"
	"signalflow/internal/notify"
	"signalflow/internal/signal"
	"signalflow/internal/supply"
	"signalflow/internal/universe"
	"signalflow/logger"
)

type fakeExchange struct {
	tickers    []models.MarketSnapshot
	funding    map[string]float64
	openInt    map[string]float64
	perpetuals []string
}

func (f *fakeExchange) Tickers(_ context.Context) ([]models.MarketSnapshot, error) {
	return f.tickers, nil
}

func (f *fakeExchange) FundingRates(_ context.Context) (map[string]float64, error) {
	return f.funding, nil
}

func (f *fakeExchange) PerpetualSymbols(_ context.Context) ([]string, error) {
	return f.perpetuals, nil
}

func (f *fakeExchange) OpenInterest(_ context.Context, symbol string) (models.OIObservation, error) {
	now := time.Now()
	return models.OIObservation{
		Symbol:       symbol,
		OpenInterest: f.openInt[symbol],
		Timestamp:    now,
		CollectedAt:  now,
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		Collector: config.CollectorConfig{
			TopVolumeLimit:  10,
			UseVolumeFilter: true,
		},
		Strategy: config.StrategyConfig{
			OIMarketCapRatioThreshold:     0.5,
			MinOIValue:                    5_000_000,
			VolumeMarketCapRatioThreshold: 0.1,
			SignalStrengthThreshold:       60,
			FundingRateActivityThreshold:  0.0001,
			PriceChangeThreshold:          0.02,
			SellOIMarketCapRatio:          0.2,
			SellSignalStrength:            30,
			SellFundingRate:               -0.0001,
			AlertFundingThreshold:         0.001,
			AlertSurgeThreshold:           2.0,
			MaxRiskScore:                  70,
			SmallCapThreshold:             100_000_000,
		},
		History: config.HistoryConfig{
			DataDir:       filepath.Join(dir, "history"),
			RetentionDays: 10,
			RecentCount:   3,
			TotalCount:    10,
			LookbackDays:  7,
			CacheFile:     filepath.Join(dir, "ratio_cache.json"),
			CacheTTL:      time.Hour,
			FetchDelay:    time.Nanosecond,
		},
		Supply: config.SupplyConfig{
			LocalFile: filepath.Join(dir, "supply.json"),
		},
		Universe: config.UniverseConfig{
			CacheFile: filepath.Join(dir, "universe.json"),
			CacheTTL:  24 * time.Hour,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, exchange *fakeExchange, supplies map[string]float64) *App {
	t.Helper()

	store, err := history.NewStore(cfg.History.DataDir, cfg.History.RetentionDays)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	table := supply.NewTable(cfg.Supply)
	if err := table.Load(); err != nil {
		t.Fatalf("table load failed: %v", err)
	}
	for base, value := range supplies {
		table.Set(base, value)
	}

	return &App{
		config:     cfg,
		market:     exchange,
		table:      table,
		updater:    supply.NewUpdater(cfg.Supply, table),
		universe:   universe.New(cfg.Universe, exchange),
		engine:     history.NewEngine(cfg.History, store, exchange),
		scorer:     signal.NewScorer(cfg.Strategy),
		aggregator: signal.NewAggregator(cfg.Strategy),
		webhook:    notify.NewWebhook(config.NotifierConfig{}),
		log:        logger.GetLogger(),
	}
}

func TestRunCycleProducesReport(t *testing.T) {
	exchange := &fakeExchange{
		tickers: []models.MarketSnapshot{
			{Symbol: "BTCUSDT", Price: 2.00, QuoteVolume24h: 20_000_000, PriceChangePct24h: 0.03},
			{Symbol: "ETHUSDT", Price: 1.00, QuoteVolume24h: 5_000_000, PriceChangePct24h: 0.01},
			{Symbol: "BTCBUSD", Price: 2.00, QuoteVolume24h: 50_000_000},
		},
		funding:    map[string]float64{"BTCUSDT": 0.0002, "ETHUSDT": -0.0001},
		openInt:    map[string]float64{"BTCUSDT": 12_500_000, "ETHUSDT": 1_000_000},
		perpetuals: []string{"BTCUSDT", "ETHUSDT"},
	}
	cfg := testConfig(t)
	app := newTestApp(t, cfg, exchange, map[string]float64{
		"BTC": 20_000_000,
		"ETH": 1_000_000_000,
	})

	report, err := app.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if report.NoData {
		t.Fatal("cycle with snapshots must not report no-data")
	}
	if report.TotalSymbols != 2 {
		t.Fatalf("scored %d symbols, want 2 (non-USDT pair excluded)", report.TotalSymbols)
	}
	if report.BuySignals != 1 {
		t.Fatalf("buy signals = %d, want 1, report %+v", report.BuySignals, report)
	}

	buy := report.TopBuySignals[0]
	if buy.Symbol != "BTCUSDT" {
		t.Errorf("top buy = %s, want BTCUSDT", buy.Symbol)
	}
	// OI value derives from the freshly collected quantity times price.
	if buy.OpenInterestValue != 25_000_000 {
		t.Errorf("OI value = %v, want 25000000", buy.OpenInterestValue)
	}
	if buy.FundingRate != 0.0002 {
		t.Errorf("funding = %v, want rate merged from the funding fetch", buy.FundingRate)
	}
	// One observation is far below the ten needed; surge stays neutral.
	if buy.OISurgeRatio != 1.0 {
		t.Errorf("surge ratio = %v, want neutral 1.0", buy.OISurgeRatio)
	}
}

func TestRunCycleAppliesVolumeLimit(t *testing.T) {
	exchange := &fakeExchange{
		tickers: []models.MarketSnapshot{
			{Symbol: "AUSDT", Price: 1, QuoteVolume24h: 100},
			{Symbol: "BUSDT", Price: 1, QuoteVolume24h: 300},
			{Symbol: "CUSDT", Price: 1, QuoteVolume24h: 200},
		},
		funding:    map[string]float64{},
		openInt:    map[string]float64{"AUSDT": 1, "BUSDT": 1, "CUSDT": 1},
		perpetuals: []string{"AUSDT", "BUSDT", "CUSDT"},
	}
	cfg := testConfig(t)
	cfg.Collector.TopVolumeLimit = 2
	app := newTestApp(t, cfg, exchange, nil)

	report, err := app.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.TotalSymbols != 2 {
		t.Errorf("scored %d symbols, want top 2 by volume", report.TotalSymbols)
	}
}

func TestRunCycleScalesMultipliedContracts(t *testing.T) {
	exchange := &fakeExchange{
		tickers: []models.MarketSnapshot{
			{Symbol: "1000PEPEUSDT", Price: 0.01, QuoteVolume24h: 1_000_000},
		},
		funding:    map[string]float64{"1000PEPEUSDT": 0.0001},
		openInt:    map[string]float64{"1000PEPEUSDT": 100_000_000},
		perpetuals: []string{"1000PEPEUSDT"},
	}
	cfg := testConfig(t)
	app := newTestApp(t, cfg, exchange, map[string]float64{
		"PEPE": 420_000_000_000_000,
	})

	report, err := app.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.TotalSymbols != 1 {
		t.Fatalf("scored %d symbols, want 1", report.TotalSymbols)
	}
	// Market cap uses the token supply divided by the contract multiplier:
	// 0.01 * 420e12 / 1000 = 4.2e9.
	if !report.AvgOIMarketCapRatio.Valid {
		t.Fatal("market-cap ratio should be known for a supplied symbol")
	}
	wantRatio := (100_000_000.0 * 0.01) / 4_200_000_000.0
	if got := report.AvgOIMarketCapRatio.Value; got < wantRatio*0.999 || got > wantRatio*1.001 {
		t.Errorf("OI/market-cap ratio = %v, want about %v", got, wantRatio)
	}
}
