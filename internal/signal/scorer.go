package signal

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"signalflow/config"
	"signalflow/internal/models"
	"signalflow/logger"
)

// ErrInvalidSnapshot marks a snapshot that cannot be scored, such as a
// non-positive price. The symbol is dropped from the cycle; others proceed.
var ErrInvalidSnapshot = errors.New("invalid market snapshot")

// Scorer turns a market snapshot plus circulating supply and OI surge ratio
// into a scored, classified SignalRecord. Scoring is a pure function of its
// inputs and the strategy thresholds fixed at construction.
type Scorer struct {
	cfg config.StrategyConfig
	log *logger.Log
}

func NewScorer(cfg config.StrategyConfig) *Scorer {
	return &Scorer{cfg: cfg, log: logger.GetLogger()}
}

// Score evaluates a single symbol. A supply of zero means the circulating
// supply is unknown; every market-cap derived ratio then becomes unknown and
// contributes nothing to the scores. surgeRatio of 1.0 is the neutral
// no-history value.
func (s *Scorer) Score(snap models.MarketSnapshot, supply float64, surgeRatio float64) (models.SignalRecord, error) {
	if snap.Price <= 0 {
		return models.SignalRecord{}, fmt.Errorf("%w: symbol %s price %v", ErrInvalidSnapshot, snap.Symbol, snap.Price)
	}

	rec := models.SignalRecord{
		MarketSnapshot: snap,
		OISurgeRatio:   surgeRatio,
		FundingRateAbs: math.Abs(snap.FundingRate),
	}

	if supply > 0 {
		rec.MarketCapEstimate = models.KnownRatio(snap.Price * supply)
	}
	rec.OIMarketCapRatio = divideByRatio(snap.OpenInterestValue, rec.MarketCapEstimate)
	rec.VolumeMarketCapRatio = divideByRatio(snap.QuoteVolume24h, rec.MarketCapEstimate)
	rec.OIVolumeRatio = models.RatioOf(snap.OpenInterestValue, snap.QuoteVolume24h)

	rec.SignalStrength = s.signalStrength(rec)
	rec.RiskScore = s.riskScore(rec)

	rec.BuySignal = s.isBuy(rec)
	rec.SellSignal = s.isSell(rec)
	rec.AlertSignal = s.isAlert(rec)
	rec.Description = s.describe(rec)

	return rec, nil
}

// ScoreAll evaluates every snapshot, skipping and logging the invalid ones.
// Symbols absent from supplies score with an unknown market cap; symbols
// absent from surgeRatios use the neutral ratio.
func (s *Scorer) ScoreAll(snapshots []models.MarketSnapshot, supplies map[string]float64, surgeRatios map[string]float64) []models.SignalRecord {
	log := s.log.WithComponent("signal_scorer")

	records := make([]models.SignalRecord, 0, len(snapshots))
	for _, snap := range snapshots {
		surge, ok := surgeRatios[snap.Symbol]
		if !ok {
			surge = 1.0
		}
		rec, err := s.Score(snap, supplies[snap.Symbol], surge)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": snap.Symbol}).Warn("snapshot rejected")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// signalStrength sums five independently clamped components. An unknown
// market-cap ratio contributes zero to its component.
func (s *Scorer) signalStrength(rec models.SignalRecord) float64 {
	var strength float64

	if rec.OIMarketCapRatio.Valid {
		strength += clamp(rec.OIMarketCapRatio.Value*100, 0, 40)
	}
	strength += clamp(rec.OpenInterestValue/10_000_000*20, 0, 20)
	if rec.VolumeMarketCapRatio.Valid {
		strength += clamp(rec.VolumeMarketCapRatio.Value*100, 0, 20)
	}
	if rec.FundingRateAbs > s.cfg.FundingRateActivityThreshold {
		strength += 10
	} else {
		strength += 5
	}
	if math.Abs(rec.PriceChangePct24h) > s.cfg.PriceChangeThreshold {
		strength += 10
	} else {
		strength += 5
	}

	return clamp(strength, 0, 100)
}

// riskScore sums volatility, funding, liquidity and market-cap size
// components. Components depending on an unknown ratio contribute zero.
func (s *Scorer) riskScore(rec models.SignalRecord) float64 {
	var risk float64

	risk += clamp(math.Abs(rec.PriceChangePct24h)*10, 0, 30)
	risk += clamp(rec.FundingRateAbs*100_000, 0, 20)

	if rec.VolumeMarketCapRatio.Valid {
		if rec.VolumeMarketCapRatio.Value < 0.05 {
			risk += 30
		} else {
			risk += clamp((0.1-rec.VolumeMarketCapRatio.Value)*300, 0, 30)
		}
	}
	if rec.MarketCapEstimate.Valid {
		if rec.MarketCapEstimate.Value < s.cfg.SmallCapThreshold {
			risk += 20
		} else {
			risk += 10
		}
	}

	return clamp(risk, 0, 100)
}

// isBuy requires every clause to hold; an unknown ratio fails its clause.
func (s *Scorer) isBuy(rec models.SignalRecord) bool {
	return rec.OIMarketCapRatio.Valid && rec.OIMarketCapRatio.Value > s.cfg.OIMarketCapRatioThreshold &&
		rec.OpenInterestValue > s.cfg.MinOIValue &&
		rec.VolumeMarketCapRatio.Valid && rec.VolumeMarketCapRatio.Value > s.cfg.VolumeMarketCapRatioThreshold &&
		rec.SignalStrength > s.cfg.SignalStrengthThreshold
}

func (s *Scorer) isSell(rec models.SignalRecord) bool {
	return rec.OIMarketCapRatio.Valid && rec.OIMarketCapRatio.Value < s.cfg.SellOIMarketCapRatio &&
		rec.SignalStrength < s.cfg.SellSignalStrength &&
		rec.FundingRate < s.cfg.SellFundingRate
}

func (s *Scorer) isAlert(rec models.SignalRecord) bool {
	return rec.FundingRateAbs > s.cfg.AlertFundingThreshold &&
		rec.OISurgeRatio > s.cfg.AlertSurgeThreshold
}

// describe builds the rationale string: classification first, then the alert
// tag, then the threshold annotations in fixed order.
func (s *Scorer) describe(rec models.SignalRecord) string {
	var clauses []string

	switch {
	case rec.BuySignal:
		clauses = append(clauses, "buy")
	case rec.SellSignal:
		clauses = append(clauses, "sell")
	default:
		clauses = append(clauses, "watch")
	}

	if rec.AlertSignal {
		clauses = append(clauses, "alert")
	}
	if rec.OIMarketCapRatio.Valid && rec.OIMarketCapRatio.Value > s.cfg.OIMarketCapRatioThreshold {
		clauses = append(clauses, fmt.Sprintf("OI/market-cap ratio high (%.2f)", rec.OIMarketCapRatio.Value))
	}
	if rec.OpenInterestValue > s.cfg.MinOIValue {
		clauses = append(clauses, fmt.Sprintf("OI value sufficient (%.0f)", rec.OpenInterestValue))
	}
	if rec.FundingRateAbs > s.cfg.FundingRateActivityThreshold {
		clauses = append(clauses, fmt.Sprintf("funding rate anomaly (%.4f%%)", rec.FundingRate*100))
	}
	if rec.OISurgeRatio > s.cfg.AlertSurgeThreshold {
		clauses = append(clauses, fmt.Sprintf("OI surged %.1fx", rec.OISurgeRatio))
	}

	return strings.Join(clauses, ", ")
}

func divideByRatio(num float64, den models.Ratio) models.Ratio {
	if !den.Valid {
		return models.Ratio{}
	}
	return models.RatioOf(num, den.Value)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
