package app

import (
	"testing"
	"time"

	"signalflow/config"
)

func mustSchedule(t *testing.T, cfg config.SchedulerConfig) *Schedule {
	t.Helper()
	s, err := NewSchedule(cfg)
	if err != nil {
		t.Fatalf("NewSchedule failed: %v", err)
	}
	return s
}

func TestNextRunDaily(t *testing.T) {
	s := mustSchedule(t, config.SchedulerConfig{Timezone: "Asia/Shanghai", DailyAt: "08:00"})
	loc, _ := time.LoadLocation("Asia/Shanghai")

	before := time.Date(2026, 3, 10, 6, 30, 0, 0, loc)
	if got, want := s.NextRun(before), time.Date(2026, 3, 10, 8, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("NextRun(%v) = %v, want %v", before, got, want)
	}

	after := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	if got, want := s.NextRun(after), time.Date(2026, 3, 11, 8, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("NextRun(%v) = %v, want %v", after, got, want)
	}

	exactly := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)
	if got, want := s.NextRun(exactly), time.Date(2026, 3, 11, 8, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("NextRun at the scheduled instant = %v, want strictly after: %v", got, want)
	}
}

func TestNextRunEveryHours(t *testing.T) {
	s := mustSchedule(t, config.SchedulerConfig{Timezone: "UTC", EveryHours: 4})

	now := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	if got, want := s.NextRun(now), now.Add(4*time.Hour); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunFundingSettlement(t *testing.T) {
	s := mustSchedule(t, config.SchedulerConfig{Timezone: "Asia/Shanghai", FundingRateMode: true})
	loc, _ := time.LoadLocation("Asia/Shanghai")

	cases := []struct {
		after time.Time
		want  time.Time
	}{
		{time.Date(2026, 3, 10, 6, 30, 0, 0, loc), time.Date(2026, 3, 10, 8, 0, 0, 0, loc)},
		{time.Date(2026, 3, 10, 8, 0, 0, 0, loc), time.Date(2026, 3, 10, 16, 0, 0, 0, loc)},
		{time.Date(2026, 3, 10, 20, 0, 0, 0, loc), time.Date(2026, 3, 11, 0, 0, 0, 0, loc)},
	}
	for _, c := range cases {
		if got := s.NextRun(c.after); !got.Equal(c.want) {
			t.Errorf("NextRun(%v) = %v, want %v", c.after, got, c.want)
		}
	}
}

func TestNextRunDefaultsToEightLocal(t *testing.T) {
	s := mustSchedule(t, config.SchedulerConfig{})
	loc, _ := time.LoadLocation("Asia/Shanghai")

	after := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	want := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)
	if got := s.NextRun(after); !got.Equal(want) {
		t.Errorf("NextRun = %v, want default 08:00 Asia/Shanghai: %v", got, want)
	}
}

func TestNewScheduleRejectsBadTimezone(t *testing.T) {
	if _, err := NewSchedule(config.SchedulerConfig{Timezone: "Not/AZone"}); err == nil {
		t.Error("invalid timezone should fail")
	}
}
