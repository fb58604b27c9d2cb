package signal

import (
	"math"
	"sort"
	"time"

	"signalflow/config"
	"signalflow/internal/models"
)

const (
	topBuyCount   = 5
	topAlertCount = 5
	topSellCount  = 3
	topRiskCount  = 5
)

// Aggregator rolls one cycle's SignalRecords into a Report for the
// notification layer.
type Aggregator struct {
	cfg config.StrategyConfig

	now func() time.Time
}

func NewAggregator(cfg config.StrategyConfig) *Aggregator {
	return &Aggregator{cfg: cfg, now: time.Now}
}

// Aggregate computes counts, means and ranked top lists. An empty input
// yields a report with every count zero and the NoData flag set.
func (a *Aggregator) Aggregate(records []models.SignalRecord) models.Report {
	report := models.Report{GeneratedAt: a.now()}

	if len(records) == 0 {
		report.NoData = true
		return report
	}

	report.TotalSymbols = len(records)

	var strengthSum, riskSum, fundingSum, fundingAbsSum, priceChangeSum, surgeSum float64
	var oiMc, volMc, oiVol ratioMean
	for _, rec := range records {
		if rec.BuySignal {
			report.BuySignals++
		}
		if rec.SellSignal {
			report.SellSignals++
		}
		if rec.AlertSignal {
			report.AlertSignals++
		}
		if rec.SignalStrength > 80 {
			report.StrongSignals++
		}

		strengthSum += rec.SignalStrength
		riskSum += rec.RiskScore
		fundingSum += rec.FundingRate
		fundingAbsSum += rec.FundingRateAbs
		priceChangeSum += rec.PriceChangePct24h
		surgeSum += rec.OISurgeRatio

		oiMc.add(rec.OIMarketCapRatio)
		volMc.add(rec.VolumeMarketCapRatio)
		oiVol.add(rec.OIVolumeRatio)
	}

	n := float64(len(records))
	report.AvgSignalStrength = strengthSum / n
	report.AvgRiskScore = riskSum / n
	report.AvgFundingRate = fundingSum / n
	report.AvgFundingRateAbs = fundingAbsSum / n
	report.AvgPriceChange = priceChangeSum / n
	report.AvgOISurgeRatio = surgeSum / n
	report.AvgOIMarketCapRatio = oiMc.mean()
	report.AvgVolumeMarketCapRatio = volMc.mean()
	report.AvgOIVolumeRatio = oiVol.mean()

	report.TopBuySignals = topN(records, topBuyCount,
		func(rec models.SignalRecord) bool { return rec.BuySignal },
		func(rec models.SignalRecord) float64 { return rec.SignalStrength })
	report.TopAlertSignals = topN(records, topAlertCount,
		func(rec models.SignalRecord) bool { return rec.AlertSignal },
		func(rec models.SignalRecord) float64 { return rec.FundingRateAbs })
	report.TopSellSignals = topN(records, topSellCount,
		func(rec models.SignalRecord) bool { return rec.SellSignal },
		func(rec models.SignalRecord) float64 { return -rec.SignalStrength })
	report.HighRisk = topN(records, topRiskCount,
		func(rec models.SignalRecord) bool { return rec.RiskScore > a.cfg.MaxRiskScore },
		func(rec models.SignalRecord) float64 { return rec.RiskScore })

	return report
}

// ratioMean averages only the records where the ratio is known. Unknown
// ratios are skipped, never counted as zero.
type ratioMean struct {
	sum   float64
	count int
}

func (m *ratioMean) add(r models.Ratio) {
	if !r.Valid || math.IsNaN(r.Value) {
		return
	}
	m.sum += r.Value
	m.count++
}

func (m *ratioMean) mean() models.Ratio {
	if m.count == 0 {
		return models.Ratio{}
	}
	return models.KnownRatio(m.sum / float64(m.count))
}

// topN selects the matching records ranked by key descending, ties broken by
// symbol ascending for deterministic output.
func topN(records []models.SignalRecord, n int, match func(models.SignalRecord) bool, key func(models.SignalRecord) float64) []models.SignalRecord {
	var selected []models.SignalRecord
	for _, rec := range records {
		if match(rec) {
			selected = append(selected, rec)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		ki, kj := key(selected[i]), key(selected[j])
		if ki != kj {
			return ki > kj
		}
		return selected[i].Symbol < selected[j].Symbol
	})

	if len(selected) > n {
		selected = selected[:n]
	}
	return selected
}
