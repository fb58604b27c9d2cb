package models

import "time"

// OIObservation is a single open-interest reading for one symbol. OpenInterest
// is the raw contract quantity reported by the exchange, not its notional
// value. Observations are append-only and never mutated once stored.
type OIObservation struct {
	Symbol       string    `json:"symbol"`
	OpenInterest float64   `json:"open_interest"`
	Timestamp    time.Time `json:"timestamp"`
	CollectedAt  time.Time `json:"collected_at"`
}

// DayPartition is the on-disk layout of one calendar day of history: every
// symbol maps to the ordered list of observations collected that day.
type DayPartition map[string][]OIObservation

// RatioCache persists one batch of surge ratios together with the time they
// were computed, so repeated report cycles within the freshness window reuse
// them.
type RatioCache struct {
	ComputedAt time.Time          `json:"computed_at"`
	Ratios     map[string]float64 `json:"ratios"`
}

// IsFresh reports whether the cache is still usable at the given instant.
func (c *RatioCache) IsFresh(now time.Time, ttl time.Duration) bool {
	if c == nil || c.ComputedAt.IsZero() {
		return false
	}
	return now.Sub(c.ComputedAt) < ttl
}
