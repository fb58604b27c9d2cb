package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"signalflow/config"
	"signalflow/internal/models"
	"signalflow/logger"
)

// Exchange supplies the perpetual symbol list and a cheap per-symbol probe.
type Exchange interface {
	PerpetualSymbols(ctx context.Context) ([]string, error)
	OpenInterest(ctx context.Context, symbol string) (models.OIObservation, error)
}

type cacheRecord struct {
	Symbols      []string  `json:"symbols"`
	CacheTime    time.Time `json:"cache_time"`
	TotalChecked int       `json:"total_checked"`
	ValidCount   int       `json:"valid_count"`
}

// Universe maintains the set of tradable USDT perpetual symbols. Exchange
// info gives the candidate list; a per-symbol open-interest probe filters out
// listings that do not actually serve data. Results are cached on disk so the
// probing sweep runs at most once per cache window.
type Universe struct {
	config   config.UniverseConfig
	exchange Exchange
	log      *logger.Log

	now func() time.Time
}

func New(cfg config.UniverseConfig, exchange Exchange) *Universe {
	return &Universe{
		config:   cfg,
		exchange: exchange,
		log:      logger.GetLogger(),
		now:      time.Now,
	}
}

// ValidSymbols returns the probed symbol universe, served from the cache
// while it is fresh.
func (u *Universe) ValidSymbols(ctx context.Context) ([]string, error) {
	log := u.log.WithComponent("symbol_universe")

	if cache := u.loadCache(); cache != nil && u.now().Sub(cache.CacheTime) < u.config.CacheTTL {
		log.WithFields(logger.Fields{
			"symbols":    len(cache.Symbols),
			"cache_time": cache.CacheTime,
		}).Debug("serving symbol universe from cache")
		return cache.Symbols, nil
	}

	candidates, err := u.exchange.PerpetualSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list perpetual symbols: %w", err)
	}

	start := u.now()
	valid := make([]string, 0, len(candidates))
	for _, symbol := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, err := u.exchange.OpenInterest(ctx, symbol); err != nil {
			log.WithFields(logger.Fields{"symbol": symbol}).Debug("symbol failed open-interest probe")
		} else {
			valid = append(valid, symbol)
		}
		if u.config.ProbeDelay > 0 {
			select {
			case <-time.After(u.config.ProbeDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	logger.LogPerformanceEntry(log, "symbol_universe", "probe_sweep", u.now().Sub(start), logger.Fields{
		"total_checked": len(candidates),
		"valid_count":   len(valid),
	})

	u.saveCache(cacheRecord{
		Symbols:      valid,
		CacheTime:    u.now(),
		TotalChecked: len(candidates),
		ValidCount:   len(valid),
	})
	return valid, nil
}

// UpdateSymbols reconciles a tracked symbol list against the current valid
// universe: delisted symbols drop out, new listings are appended, and the
// survivors keep their order. Changes are logged.
func (u *Universe) UpdateSymbols(ctx context.Context, current []string) ([]string, error) {
	valid, err := u.ValidSymbols(ctx)
	if err != nil {
		return nil, err
	}

	validSet := make(map[string]bool, len(valid))
	for _, s := range valid {
		validSet[s] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, s := range current {
		currentSet[s] = true
	}

	var updated []string
	var removed []string
	for _, s := range current {
		if validSet[s] {
			updated = append(updated, s)
		} else {
			removed = append(removed, s)
		}
	}
	var added []string
	for _, s := range valid {
		if !currentSet[s] {
			updated = append(updated, s)
			added = append(added, s)
		}
	}

	if len(removed) > 0 || len(added) > 0 {
		u.log.WithComponent("symbol_universe").WithFields(logger.Fields{
			"removed": removed,
			"added":   added,
			"total":   len(updated),
		}).Info("symbol universe changed")
	}
	return updated, nil
}

func (u *Universe) loadCache() *cacheRecord {
	if u.config.CacheFile == "" {
		return nil
	}
	data, err := os.ReadFile(u.config.CacheFile)
	if err != nil {
		return nil
	}
	var cache cacheRecord
	if err := json.Unmarshal(data, &cache); err != nil {
		u.log.WithComponent("symbol_universe").WithError(err).Warn("corrupt universe cache ignored")
		return nil
	}
	return &cache
}

func (u *Universe) saveCache(cache cacheRecord) {
	if u.config.CacheFile == "" {
		return
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(u.config.CacheFile, data, 0o644); err != nil {
		u.log.WithComponent("symbol_universe").WithError(err).Warn("failed to persist universe cache")
	}
}
