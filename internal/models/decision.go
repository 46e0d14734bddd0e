package models

import "time"

// SelectedTrade is the single trade a chairman decision commits to.
type SelectedTrade struct {
	Instrument Instrument `json:"instrument"`
	Direction  Direction  `json:"direction"`
	Horizon    string     `json:"horizon"`
}

// Dissent records one minority position against the selected trade.
type Dissent struct {
	Agent    string `json:"agent"`
	Position string `json:"position"`
	Reason   string `json:"reason"`
}

// MonitoringPlan tells the checkpoint subsystem when and what to watch.
type MonitoringPlan struct {
	Checkpoints     []string `json:"checkpoints"`
	KeyIndicators   []string `json:"key_indicators"`
	WatchConditions []string `json:"watch_conditions"`
}

// ChairmanDecision is the one decision synthesized per cycle, either from
// the chairman model or from the deterministic fallback.
type ChairmanDecision struct {
	ID             string         `json:"id"`
	SelectedTrade  SelectedTrade  `json:"selected_trade"`
	Conviction     float64        `json:"conviction"`
	Rationale      string         `json:"rationale"`
	DissentSummary []Dissent      `json:"dissent_summary"`
	MonitoringPlan MonitoringPlan `json:"monitoring_plan"`
	Model          string         `json:"model"`
	DecidedAt      time.Time      `json:"decided_at"`
	Fallback       bool           `json:"fallback"`
}

// DefaultMonitoringPlan is used whenever the chairman does not supply a
// valid plan of its own.
func DefaultMonitoringPlan() MonitoringPlan {
	return MonitoringPlan{
		Checkpoints:   []string{"10:00", "12:00", "14:00", "15:30"},
		KeyIndicators: []string{"price_vs_entry", "volume_trend", "sector_momentum"},
		WatchConditions: []string{
			"price moves beyond stop or target band",
			"volume diverges sharply from the frozen baseline",
		},
	}
}
