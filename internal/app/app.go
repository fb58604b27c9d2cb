package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"signalflow/config"
	"signalflow/internal/exchange"
	"signalflow/internal/history"
	"signalflow/internal/models"
	"signalflow/internal/notify"
	"signalflow/internal/signal"
	"signalflow/internal/supply"
	"signalflow/internal/symbols"
	"signalflow/internal/universe"
	"signalflow/logger"
)

// Stream funding rates older than this fall back to the REST endpoint.
const streamFreshness = 5 * time.Minute

// MarketSource supplies per-cycle market data.
type MarketSource interface {
	Tickers(ctx context.Context) ([]models.MarketSnapshot, error)
	FundingRates(ctx context.Context) (map[string]float64, error)
}

// App wires the collectors, the scoring core and the notifier into one
// evaluation pipeline. A single App runs at most one cycle at a time.
type App struct {
	config     *config.Config
	market     MarketSource
	stream     *exchange.FundingStream
	table      *supply.Table
	updater    *supply.Updater
	universe   *universe.Universe
	engine     *history.Engine
	scorer     *signal.Scorer
	aggregator *signal.Aggregator
	webhook    *notify.Webhook
	log        *logger.Log

	tracked []string
}

// New builds a fully wired App from configuration.
func New(cfg *config.Config) (*App, error) {
	client := exchange.NewClient(cfg.Source.Binance)

	store, err := history.NewStore(cfg.History.DataDir, cfg.History.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	table := supply.NewTable(cfg.Supply)
	if err := table.Load(); err != nil {
		return nil, err
	}

	var stream *exchange.FundingStream
	if cfg.Source.Binance.FundingStream.Enabled {
		stream = exchange.NewFundingStream(cfg.Source.Binance.FundingStream)
	}

	return &App{
		config:     cfg,
		market:     client,
		stream:     stream,
		table:      table,
		updater:    supply.NewUpdater(cfg.Supply, table),
		universe:   universe.New(cfg.Universe, client),
		engine:     history.NewEngine(cfg.History, store, client),
		scorer:     signal.NewScorer(cfg.Strategy),
		aggregator: signal.NewAggregator(cfg.Strategy),
		webhook:    notify.NewWebhook(cfg.Notifier),
		log:        logger.GetLogger(),
	}, nil
}

// Start launches the optional funding stream.
func (a *App) Start(ctx context.Context) error {
	if a.stream != nil {
		return a.stream.Start(ctx)
	}
	return nil
}

// Stop shuts down background workers.
func (a *App) Stop() {
	if a.stream != nil {
		a.stream.Stop()
	}
}

// RefreshSupply fills missing circulating-supply entries for the current
// symbol universe.
func (a *App) RefreshSupply(ctx context.Context, force bool) error {
	universe, err := a.universe.UpdateSymbols(ctx, a.tracked)
	if err != nil {
		return err
	}
	a.tracked = universe

	bases := make([]string, 0, len(universe))
	for _, sym := range universe {
		bases = append(bases, symbols.ToBase(sym))
	}
	return a.updater.Refresh(ctx, bases, force)
}

// RunCycle executes one evaluation cycle and returns the report. Per-symbol
// failures degrade the report; only whole-batch fetch failures are errors.
func (a *App) RunCycle(ctx context.Context) (models.Report, error) {
	runID := uuid.NewString()
	log := a.log.WithComponent("signal_cycle").WithFields(logger.Fields{"run_id": runID})
	start := time.Now()

	log.Info("evaluation cycle started")

	if err := a.table.Load(); err != nil {
		log.WithError(err).Warn("supply reload failed, using previous table")
	}

	if !a.config.Collector.UseLocalSymbols || len(a.tracked) == 0 {
		tracked, err := a.universe.UpdateSymbols(ctx, a.tracked)
		if err != nil {
			return models.Report{}, fmt.Errorf("universe update failed: %w", err)
		}
		a.tracked = tracked
	}

	snapshots, err := a.collectSnapshots(ctx, log)
	if err != nil {
		return models.Report{}, err
	}

	ranked := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		ranked = append(ranked, snap.Symbol)
	}

	observations, err := a.engine.UpdateHistory(ctx, ranked)
	if err != nil {
		log.WithError(err).Warn("history flush failed, ratios use prior data")
	}
	for i := range snapshots {
		if obs, ok := observations[snapshots[i].Symbol]; ok {
			snapshots[i].OpenInterestValue = obs.OpenInterest * snapshots[i].Price
		}
	}

	surgeRatios := a.engine.BatchRatios(ranked, true)
	supplies := a.supplyFor(ranked)

	records := a.scorer.ScoreAll(snapshots, supplies, surgeRatios)
	report := a.aggregator.Aggregate(records)

	log.LogMetric("signal_cycle", "cycle_symbols_scored", int64(report.TotalSymbols), "counter", logger.Fields{"run_id": runID})
	log.LogMetric("signal_cycle", "cycle_buy_signals", int64(report.BuySignals), "counter", logger.Fields{"run_id": runID})
	log.LogMetric("signal_cycle", "cycle_alert_signals", int64(report.AlertSignals), "counter", logger.Fields{"run_id": runID})

	if err := a.webhook.Send(ctx, notify.FormatReport(report)); err != nil {
		log.WithError(err).Error("notification delivery failed")
	}

	logger.LogPerformanceEntry(log, "signal_cycle", "run_cycle", time.Since(start), logger.Fields{
		"run_id":  runID,
		"symbols": report.TotalSymbols,
		"buys":    report.BuySignals,
		"alerts":  report.AlertSignals,
	})
	return report, nil
}

// collectSnapshots fetches tickers and funding, restricts them to the
// tracked universe and ranks by quote volume.
func (a *App) collectSnapshots(ctx context.Context, log *logger.Entry) ([]models.MarketSnapshot, error) {
	tickers, err := a.market.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("ticker fetch failed: %w", err)
	}

	funding := a.fundingRates(ctx, log)

	trackedSet := make(map[string]bool, len(a.tracked))
	for _, s := range a.tracked {
		trackedSet[s] = true
	}

	snapshots := make([]models.MarketSnapshot, 0, len(tickers))
	for _, snap := range tickers {
		if len(trackedSet) > 0 && !trackedSet[snap.Symbol] {
			continue
		}
		if !symbols.IsUSDTPair(snap.Symbol) {
			continue
		}
		snap.FundingRate = funding[snap.Symbol]
		snapshots = append(snapshots, snap)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].QuoteVolume24h != snapshots[j].QuoteVolume24h {
			return snapshots[i].QuoteVolume24h > snapshots[j].QuoteVolume24h
		}
		return snapshots[i].Symbol < snapshots[j].Symbol
	})

	if a.config.Collector.UseVolumeFilter && a.config.Collector.TopVolumeLimit > 0 && len(snapshots) > a.config.Collector.TopVolumeLimit {
		snapshots = snapshots[:a.config.Collector.TopVolumeLimit]
	}

	log.WithFields(logger.Fields{"snapshots": len(snapshots)}).Debug("collected market snapshots")
	return snapshots, nil
}

// fundingRates prefers fresh stream data, falling back to REST.
func (a *App) fundingRates(ctx context.Context, log *logger.Entry) map[string]float64 {
	if a.stream != nil {
		if rates, updated := a.stream.Rates(); len(rates) > 0 && time.Since(updated) < streamFreshness {
			return rates
		}
	}

	rates, err := a.market.FundingRates(ctx)
	if err != nil {
		log.WithError(err).Warn("funding fetch failed, rates default to zero")
		return map[string]float64{}
	}
	return rates
}

// supplyFor resolves circulating supply per pair symbol, scaling
// thousand-multiplied contracts so market cap stays in token terms.
func (a *App) supplyFor(pairs []string) map[string]float64 {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		value, ok := a.table.Get(symbols.ToBase(pair))
		if !ok {
			continue
		}
		out[pair] = value / symbols.SupplyMultiplier(pair)
	}
	return out
}
