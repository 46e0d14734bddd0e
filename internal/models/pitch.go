package models

import "math"

// Direction of a proposed trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Flat  Direction = "FLAT"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 for FLAT.
func (d Direction) Sign() int {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	}
	return 0
}

// Valid reports whether d is one of the three directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short || d == Flat
}

// Instrument is a tradable ticker, or InstrumentFlat for a no-trade pitch.
type Instrument string

const InstrumentFlat Instrument = "FLAT"

// TradableInstruments is the fixed universe pitches may select from.
var TradableInstruments = []Instrument{
	"SPY", "QQQ", "IWM", "NVDA", "AAPL", "MSFT", "AMZN", "GOOGL", "META", "TSLA",
}

// Tradable reports whether i is in the tradable universe.
func (i Instrument) Tradable() bool {
	for _, t := range TradableInstruments {
		if i == t {
			return true
		}
	}
	return false
}

// RiskProfile selects one of three fixed stop/take pairs.
type RiskProfile string

const (
	RiskTight RiskProfile = "TIGHT"
	RiskBase  RiskProfile = "BASE"
	RiskWide  RiskProfile = "WIDE"
)

// StopTake is the (stop-loss, take-profit) percentage pair a profile pins.
type StopTake struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// RiskProfilePairs maps each profile to its required exit percentages.
var RiskProfilePairs = map[RiskProfile]StopTake{
	RiskTight: {StopLossPct: 3.0, TakeProfitPct: 6.0},
	RiskBase:  {StopLossPct: 5.0, TakeProfitPct: 10.0},
	RiskWide:  {StopLossPct: 8.0, TakeProfitPct: 16.0},
}

// EntryMode is how a position should be opened.
type EntryMode string

const (
	EntryNone        EntryMode = "NONE"
	EntryMarketOpen  EntryMode = "MARKET_OPEN"
	EntryMarketClose EntryMode = "MARKET_CLOSE"
	EntryLimit       EntryMode = "LIMIT"
)

// EntryPolicy describes how to enter; LimitPrice is only meaningful for
// EntryLimit.
type EntryPolicy struct {
	Mode       EntryMode `json:"mode"`
	LimitPrice float64   `json:"limit_price,omitempty"`
}

// ExitPolicy is required for non-FLAT pitches and forbidden for FLAT ones.
// The stop/take percentages must equal the pitch's risk-profile pair.
type ExitPolicy struct {
	TimeStopDays  int     `json:"time_stop_days"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
}

// Horizons a pitch or decision may target.
var Horizons = []string{"1d", "1w", "2w", "1m"}

// ValidHorizon reports whether h is in the closed horizon set.
func ValidHorizon(h string) bool {
	for _, v := range Horizons {
		if h == v {
			return true
		}
	}
	return false
}

// ConvictionTolerance absorbs float rounding in LLM output.
const ConvictionTolerance = 1e-4

// ValidConviction reports whether c lies in [-2, 2] within tolerance.
func ValidConviction(c float64) bool {
	return math.Abs(c) <= 2.0+ConvictionTolerance
}

// Pitch is one agent's trade proposal for the cycle. Created once per run
// per agent and immutable thereafter.
type Pitch struct {
	Agent         string      `json:"agent"`
	Instrument    Instrument  `json:"instrument"`
	Direction     Direction   `json:"direction"`
	Conviction    float64     `json:"conviction"`
	Horizon       string      `json:"horizon"`
	ThesisBullets []string    `json:"thesis_bullets"`
	RiskProfile   RiskProfile `json:"risk_profile,omitempty"`
	EntryPolicy   EntryPolicy `json:"entry_policy"`
	ExitPolicy    *ExitPolicy `json:"exit_policy,omitempty"`
	Invalidation  string      `json:"invalidation"`
	RiskNotes     string      `json:"risk_notes"`
}

// AnonymizedPitch is a pitch shown under a neutral label during review.
type AnonymizedPitch struct {
	Label string `json:"label"`
	Pitch Pitch  `json:"pitch"`
}
