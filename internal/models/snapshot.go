package models

import (
	"fmt"
	"time"
)

// IndicatorSet holds the indicator values frozen for one instrument at
// research time. Checkpoints read these values and never anything fresher.
type IndicatorSet struct {
	LastClose   float64 `json:"last_close"`
	SMA20       float64 `json:"sma_20"`
	SMA50       float64 `json:"sma_50"`
	EMA10       float64 `json:"ema_10"`
	RSI14       float64 `json:"rsi_14"`
	ATR14       float64 `json:"atr_14"`
	VolumeTrend float64 `json:"volume_trend"`
}

// ResearchSnapshot is the market view captured once at weekly-pipeline time
// and reused unchanged by every same-cycle checkpoint.
type ResearchSnapshot struct {
	WeekID       string                      `json:"week_id"`
	ResearchDate string                      `json:"research_date"`
	FrozenAt     time.Time                   `json:"frozen_at"`
	Indicators   map[Instrument]IndicatorSet `json:"indicators"`
	Headlines    map[Instrument][]string     `json:"headlines"`
}

// WeekID formats t as an ISO-week cycle key, e.g. "2026-W35".
func WeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
