package models

import "time"

// MarketSnapshot captures one symbol's state for a single evaluation cycle.
// Prices and volumes are quoted in USDT; the price change is a fraction
// (0.03 means +3%). Snapshots are immutable once captured.
type MarketSnapshot struct {
	Symbol            string    `json:"symbol"`
	Price             float64   `json:"price"`
	QuoteVolume24h    float64   `json:"quote_volume_24h"`
	FundingRate       float64   `json:"funding_rate"`
	PriceChangePct24h float64   `json:"price_change_pct_24h"`
	OpenInterestValue float64   `json:"open_interest_value"`
	CapturedAt        time.Time `json:"captured_at"`
}

// Ratio is an explicitly optional float. Divisions with an unknown or zero
// denominator yield an invalid Ratio instead of Inf/NaN, and scoring treats
// invalid ratios as contributing nothing.
type Ratio struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// RatioOf divides num by den, returning an invalid Ratio when den is zero.
func RatioOf(num, den float64) Ratio {
	if den == 0 {
		return Ratio{}
	}
	return Ratio{Value: num / den, Valid: true}
}

// KnownRatio wraps a concrete value.
func KnownRatio(v float64) Ratio {
	return Ratio{Value: v, Valid: true}
}

// Or returns the ratio value or the given fallback when unknown.
func (r Ratio) Or(fallback float64) float64 {
	if !r.Valid {
		return fallback
	}
	return r.Value
}

// SignalRecord is the scored form of a MarketSnapshot, one per symbol per
// cycle.
type SignalRecord struct {
	MarketSnapshot

	MarketCapEstimate    Ratio `json:"market_cap_estimate"`
	OIMarketCapRatio     Ratio `json:"oi_market_cap_ratio"`
	VolumeMarketCapRatio Ratio `json:"volume_market_cap_ratio"`
	OIVolumeRatio        Ratio `json:"oi_volume_ratio"`

	OISurgeRatio   float64 `json:"oi_surge_ratio"`
	FundingRateAbs float64 `json:"funding_rate_abs"`

	SignalStrength float64 `json:"signal_strength"`
	RiskScore      float64 `json:"risk_score"`

	BuySignal   bool   `json:"buy_signal"`
	SellSignal  bool   `json:"sell_signal"`
	AlertSignal bool   `json:"alert_signal"`
	Description string `json:"description"`
}

// Report aggregates one cycle's SignalRecords for the notification layer.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	NoData      bool      `json:"no_data"`

	TotalSymbols  int `json:"total_symbols"`
	BuySignals    int `json:"buy_signals"`
	SellSignals   int `json:"sell_signals"`
	AlertSignals  int `json:"alert_signals"`
	StrongSignals int `json:"strong_signals"`

	AvgSignalStrength float64 `json:"avg_signal_strength"`
	AvgRiskScore      float64 `json:"avg_risk_score"`
	AvgFundingRate    float64 `json:"avg_funding_rate"`
	AvgFundingRateAbs float64 `json:"avg_funding_rate_abs"`
	AvgPriceChange    float64 `json:"avg_price_change"`
	AvgOISurgeRatio   float64 `json:"avg_oi_surge_ratio"`

	// Ratio means skip records where the ratio is unknown.
	AvgOIMarketCapRatio     Ratio `json:"avg_oi_market_cap_ratio"`
	AvgVolumeMarketCapRatio Ratio `json:"avg_volume_market_cap_ratio"`
	AvgOIVolumeRatio        Ratio `json:"avg_oi_volume_ratio"`

	TopBuySignals   []SignalRecord `json:"top_buy_signals"`
	TopAlertSignals []SignalRecord `json:"top_alert_signals"`
	TopSellSignals  []SignalRecord `json:"top_sell_signals"`
	HighRisk        []SignalRecord `json:"high_risk"`
}
