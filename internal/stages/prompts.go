package stages

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/itradeyou/council/internal/models"
)

const pitchSystemPrompt = `You are a portfolio manager on a multi-manager desk. Each week you pitch
exactly one trade (or FLAT) to an investment committee. Respond with a single
JSON object and nothing else:

{
  "instrument": "<ticker from the tradable set, or FLAT>",
  "direction": "LONG" | "SHORT" | "FLAT",
  "conviction": <number in [-2, 2], half steps; sign must match direction; 0 iff FLAT>,
  "horizon": "1d" | "1w" | "2w" | "1m",
  "thesis_bullets": ["...", "..."],
  "risk_profile": "TIGHT" | "BASE" | "WIDE",   // omit entirely for FLAT
  "entry_policy": {"mode": "MARKET_OPEN" | "MARKET_CLOSE" | "LIMIT", "limit_price": <number, LIMIT only>},
  "exit_policy": {"time_stop_days": <int>, "stop_loss_pct": <number>, "take_profit_pct": <number>},  // omit for FLAT
  "invalidation": "...",
  "risk_notes": "..."
}

Risk profiles pin the exit percentages: TIGHT = 3/6, BASE = 5/10, WIDE = 8/16.
For FLAT use instrument FLAT, conviction 0 and entry_policy mode NONE.`

const reviewSystemPrompt = `You are a portfolio manager reviewing the anonymized pitches of your peers.
Score each pitch you did not author on seven dimensions from 1 to 10
(integers): edge, evidence, risk_reward, timing, invalidation, sizing,
clarity. Respond with a JSON array, one object per reviewed pitch:

{
  "pitch_label": "Pitch B",
  "scores": {"edge": 7, "evidence": 6, "risk_reward": 8, "timing": 5, "invalidation": 6, "sizing": 7, "clarity": 8},
  "best_argument_against": "...",
  "one_flip_condition": "...",
  "suggested_fix": "..."
}`

const chairmanSystemPrompt = `You are the chairman of an investment committee. You have every manager's
pitch and the full grid of peer reviews. Synthesize exactly one decision for
the desk. Respond with a single JSON object:

{
  "selected_trade": {"instrument": "...", "direction": "LONG"|"SHORT"|"FLAT", "horizon": "1d"|"1w"|"2w"|"1m"},
  "conviction": <number in [-2, 2], sign matching direction>,
  "rationale": "...",
  "dissent_summary": [{"agent": "...", "position": "...", "reason": "..."}],
  "monitoring_plan": {"checkpoints": ["10:00", ...], "key_indicators": ["...", ...], "watch_conditions": ["...", ...]}
}`

const checkpointSystemPrompt = `You are the committee chairman re-evaluating an open position at an intraday
checkpoint. Use ONLY the frozen indicators provided below plus the current
price and P&L. Do not reason from any newer research, news or data. Respond
with a single JSON object:

{"current_conviction": <number>, "new_conviction": <number>, "action": "STAY"|"EXIT"|"FLIP"|"REDUCE"|"INCREASE", "reason": "..."}`

// buildPitchUserPrompt renders the frozen snapshot for one PM.
func buildPitchUserPrompt(snap models.ResearchSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research date: %s (cycle %s)\n\n", snap.ResearchDate, snap.WeekID)
	b.WriteString("Tradable set: ")
	for i, inst := range models.TradableInstruments {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(inst))
	}
	b.WriteString("\n\nFrozen market snapshot:\n")
	for _, inst := range models.TradableInstruments {
		ind, ok := snap.Indicators[inst]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: close %.2f, sma20 %.2f, sma50 %.2f, ema10 %.2f, rsi14 %.1f, atr14 %.2f, volume trend %.2f\n",
			inst, ind.LastClose, ind.SMA20, ind.SMA50, ind.EMA10, ind.RSI14, ind.ATR14, ind.VolumeTrend)
		for _, h := range snap.Headlines[inst] {
			fmt.Fprintf(&b, "    headline: %s\n", h)
		}
	}
	b.WriteString("\nPitch your single best trade for the coming horizon.")
	return b.String()
}

// buildReviewUserPrompt shows all pitches under their labels. ownLabel
// tells the reviewer which pitch to skip; no other identity is revealed.
func buildReviewUserPrompt(anonymized []models.AnonymizedPitch, ownLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your own pitch is %s. Review every other pitch.\n\n", ownLabel)
	for _, ap := range anonymized {
		writePitchBody(&b, ap.Label, ap.Pitch)
	}
	return b.String()
}

// buildChairmanUserPrompt reveals identities: synthesis happens after the
// anonymized review round is complete.
func buildChairmanUserPrompt(pitches []models.Pitch, anonymized []models.AnonymizedPitch, reviews []models.PeerReview) string {
	labelFor := make(map[string]string, len(anonymized))
	for _, ap := range anonymized {
		labelFor[ap.Pitch.Agent] = ap.Label
	}

	var b strings.Builder
	b.WriteString("Pitches:\n\n")
	for _, p := range pitches {
		writePitchBody(&b, fmt.Sprintf("%s (%s)", labelFor[p.Agent], p.Agent), p)
	}

	b.WriteString("Peer reviews:\n")
	for _, r := range reviews {
		fmt.Fprintf(&b, "- %s on %s: avg %.2f", r.Reviewer, r.PitchLabel, r.AverageScore)
		for _, dim := range models.RubricDimensions {
			fmt.Fprintf(&b, ", %s %d", dim, r.Scores[dim])
		}
		fmt.Fprintf(&b, "\n  against: %s\n  flip if: %s\n  fix: %s\n", r.BestArgumentAgainst, r.OneFlipCondition, r.SuggestedFix)
	}
	b.WriteString("\nSynthesize the committee's single decision.")
	return b.String()
}

// buildCheckpointUserPrompt renders one position against its frozen view.
func buildCheckpointUserPrompt(checkpoint string, pos positionView, ind models.IndicatorSet, decisionConviction float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checkpoint %s for %s (%s, account %s).\n\n", checkpoint, pos.Symbol, pos.Direction, pos.Account)
	fmt.Fprintf(&b, "Conviction at decision time: %.1f\n\n", decisionConviction)
	fmt.Fprintf(&b, "Frozen indicators (decision time):\n")
	fmt.Fprintf(&b, "- close %.2f, sma20 %.2f, sma50 %.2f, ema10 %.2f, rsi14 %.1f, atr14 %.2f, volume trend %.2f\n\n",
		ind.LastClose, ind.SMA20, ind.SMA50, ind.EMA10, ind.RSI14, ind.ATR14, ind.VolumeTrend)
	fmt.Fprintf(&b, "Live position state:\n")
	fmt.Fprintf(&b, "- qty %s, avg entry %s, current price %s, unrealized P&L %s%%\n",
		pos.Qty, pos.AvgEntryPrice, pos.CurrentPrice, pos.UnrealizedPLPC.Mul(decimal.NewFromInt(100)).StringFixed(2))
	b.WriteString("\nRe-evaluate using only the data above.")
	return b.String()
}

func writePitchBody(b *strings.Builder, header string, p models.Pitch) {
	fmt.Fprintf(b, "%s: %s %s, conviction %.1f, horizon %s\n", header, p.Direction, p.Instrument, p.Conviction, p.Horizon)
	for _, bullet := range p.ThesisBullets {
		fmt.Fprintf(b, "  * %s\n", bullet)
	}
	if p.Direction != models.Flat {
		fmt.Fprintf(b, "  risk profile %s, entry %s", p.RiskProfile, p.EntryPolicy.Mode)
		if p.EntryPolicy.Mode == models.EntryLimit {
			fmt.Fprintf(b, " @ %.2f", p.EntryPolicy.LimitPrice)
		}
		if p.ExitPolicy != nil {
			fmt.Fprintf(b, ", time stop %dd, stop %.1f%%, take %.1f%%",
				p.ExitPolicy.TimeStopDays, p.ExitPolicy.StopLossPct, p.ExitPolicy.TakeProfitPct)
		}
		b.WriteString("\n")
	}
	if p.Invalidation != "" {
		fmt.Fprintf(b, "  invalidation: %s\n", p.Invalidation)
	}
	if p.RiskNotes != "" {
		fmt.Fprintf(b, "  risk notes: %s\n", p.RiskNotes)
	}
	b.WriteString("\n")
}
