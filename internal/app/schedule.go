package app

import (
	"fmt"
	"time"

	"signalflow/config"
)

// Funding settlement hours on Binance perpetuals, in exchange-local time.
var settlementHours = []int{0, 8, 16}

// Schedule computes evaluation-cycle run times from the scheduler config.
// Modes, in precedence order: funding-settlement (00:00/08:00/16:00 local),
// every-N-hours, and daily at a fixed HH:MM.
type Schedule struct {
	config config.SchedulerConfig
	loc    *time.Location
}

func NewSchedule(cfg config.SchedulerConfig) (*Schedule, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", tz, err)
	}
	return &Schedule{config: cfg, loc: loc}, nil
}

// NextRun returns the first scheduled instant strictly after the given time.
func (s *Schedule) NextRun(after time.Time) time.Time {
	local := after.In(s.loc)

	switch {
	case s.config.FundingRateMode:
		for _, hour := range settlementHours {
			candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, s.loc)
			if candidate.After(local) {
				return candidate
			}
		}
		next := local.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), settlementHours[0], 0, 0, 0, s.loc)

	case s.config.EveryHours > 0:
		return local.Add(time.Duration(s.config.EveryHours) * time.Hour)

	default:
		at := s.config.DailyAt
		if at == "" {
			at = "08:00"
		}
		parsed, err := time.Parse("15:04", at)
		if err != nil {
			parsed, _ = time.Parse("15:04", "08:00")
		}
		candidate := time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, s.loc)
		if candidate.After(local) {
			return candidate
		}
		return candidate.AddDate(0, 0, 1)
	}
}
