package history

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"golang.org/x/time/rate"

	"signalflow/config"
	"signalflow/internal/models"
	"signalflow/logger"
)

// OIFetcher is the exchange-side collaborator that supplies one fresh
// open-interest observation for a base symbol.
type OIFetcher interface {
	OpenInterest(ctx context.Context, symbol string) (models.OIObservation, error)
}

// Engine turns raw open-interest history into a surge ratio per symbol: the
// average of the most recent observations divided by the average over a longer
// window. Ratios are cached on disk so repeated report cycles within the
// freshness window do not recompute the whole batch.
type Engine struct {
	cfg     config.HistoryConfig
	store   *Store
	fetcher OIFetcher
	limiter *rate.Limiter
	log     *logger.Log

	now func() time.Time
}

// NewEngine wires the ratio engine to its store and fetcher. The limiter
// spaces out per-symbol exchange calls the way the collector config requests.
func NewEngine(cfg config.HistoryConfig, store *Store, fetcher OIFetcher) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Every(cfg.FetchDelay), 1),
		log:     logger.GetLogger(),
		now:     time.Now,
	}
}

// UpdateHistory collects one fresh observation per symbol and flushes the
// current partition. A fetch failure for one symbol is logged and skipped; it
// never aborts the batch. The collected observations are returned so the
// caller can reuse the quantities without a second round of exchange calls.
func (e *Engine) UpdateHistory(ctx context.Context, symbols []string) (map[string]models.OIObservation, error) {
	log := e.log.WithComponent("oi_ratio_engine")
	collected := make(map[string]models.OIObservation, len(symbols))

	start := e.now()
	for _, symbol := range symbols {
		if err := e.limiter.Wait(ctx); err != nil {
			// Cancelled between symbols: already appended history stays valid.
			log.WithError(err).Warn("history update interrupted")
			break
		}

		obs, err := e.fetcher.OpenInterest(ctx, symbol)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("failed to fetch open interest")
			log.LogMetric("oi_ratio_engine", "oi_fetch_failed", int64(1), "counter", logger.Fields{"symbol": symbol})
			continue
		}

		e.store.Append(symbol, obs)
		collected[symbol] = obs
	}

	logger.LogPerformanceEntry(log, "oi_ratio_engine", "update_history", e.now().Sub(start), logger.Fields{
		"requested": len(symbols),
		"collected": len(collected),
	})

	if err := e.store.Flush(e.now()); err != nil {
		log.WithError(err).Error("failed to flush open-interest history")
		return collected, err
	}
	return collected, nil
}

// ComputeRatio returns recent-average over total-average open interest for
// symbol. Fewer than TotalCount stored observations, or a zero denominator,
// yield the neutral ratio 1.0.
func (e *Engine) ComputeRatio(symbol string) float64 {
	obs := e.store.Read(symbol, e.cfg.LookbackDays)
	if len(obs) < e.cfg.TotalCount {
		e.log.WithComponent("oi_ratio_engine").WithFields(logger.Fields{
			"symbol": symbol,
			"have":   len(obs),
			"need":   e.cfg.TotalCount,
		}).Debug("insufficient history; using neutral ratio")
		return 1.0
	}

	window := obs[len(obs)-e.cfg.TotalCount:]

	var totalSum float64
	for _, o := range window {
		totalSum += o.OpenInterest
	}
	totalAvg := totalSum / float64(e.cfg.TotalCount)
	if totalAvg == 0 {
		return 1.0
	}

	var recentSum float64
	for _, o := range window[len(window)-e.cfg.RecentCount:] {
		recentSum += o.OpenInterest
	}
	recentAvg := recentSum / float64(e.cfg.RecentCount)

	return recentAvg / totalAvg
}

// BatchRatios computes the surge ratio for every symbol, serving from the
// on-disk cache while it is fresh. Symbols missing from a fresh cache default
// to the neutral ratio. Cache writes are best effort.
func (e *Engine) BatchRatios(symbols []string, useCache bool) map[string]float64 {
	log := e.log.WithComponent("oi_ratio_engine")

	if useCache {
		if cache := e.loadCache(); cache.IsFresh(e.now(), e.cfg.CacheTTL) {
			log.WithFields(logger.Fields{"computed_at": cache.ComputedAt}).Debug("serving surge ratios from cache")
			out := make(map[string]float64, len(symbols))
			for _, s := range symbols {
				if r, ok := cache.Ratios[s]; ok {
					out[s] = r
				} else {
					out[s] = 1.0
				}
			}
			return out
		}
	}

	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		out[s] = e.ComputeRatio(s)
	}

	e.saveCache(models.RatioCache{ComputedAt: e.now(), Ratios: out})
	return out
}

func (e *Engine) loadCache() *models.RatioCache {
	data, err := os.ReadFile(e.cfg.CacheFile)
	if err != nil {
		return nil
	}
	var cache models.RatioCache
	if err := json.Unmarshal(data, &cache); err != nil {
		e.log.WithComponent("oi_ratio_engine").WithError(err).Warn("corrupt ratio cache ignored")
		return nil
	}
	return &cache
}

func (e *Engine) saveCache(cache models.RatioCache) {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(e.cfg.CacheFile, data, 0o644); err != nil {
		e.log.WithComponent("oi_ratio_engine").WithError(err).Warn("failed to persist ratio cache")
	}
}
