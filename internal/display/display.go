// Package display renders cycle results for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/itradeyou/council/internal/broker"
	"github.com/itradeyou/council/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	decisionStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(1, 2).
			Width(80)

	fallbackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	longStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	shortStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	flatStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

var hundred = decimal.NewFromInt(100)

// Renderer writes formatted output to a single destination.
type Renderer struct {
	out io.Writer
}

func New(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Title prints a section banner.
func (r *Renderer) Title(text string) {
	fmt.Fprintln(r.out, titleStyle.Render(text))
}

// Pitches prints the accepted pitch table for the cycle.
func (r *Renderer) Pitches(pitches []models.Pitch) {
	fmt.Fprintln(r.out, headerStyle.Render("Accepted pitches"))
	if len(pitches) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("  (none)"))
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.Header("Agent", "Trade", "Conviction", "Horizon", "Risk", "Entry")
	for _, p := range pitches {
		entry := string(p.EntryPolicy.Mode)
		if p.EntryPolicy.Mode == models.EntryLimit {
			entry = fmt.Sprintf("LIMIT @ %.2f", p.EntryPolicy.LimitPrice)
		}
		table.Append(
			p.Agent,
			directionLabel(p.Direction, string(p.Instrument)),
			fmt.Sprintf("%+.1f", p.Conviction),
			p.Horizon,
			string(p.RiskProfile),
			entry,
		)
	}
	table.Render()
}

// Reviews prints the peer-review grid, one row per review.
func (r *Renderer) Reviews(reviews []models.PeerReview) {
	fmt.Fprintln(r.out, headerStyle.Render("Peer reviews"))
	if len(reviews) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("  (none)"))
		return
	}

	table := tablewriter.NewWriter(r.out)
	header := []string{"Reviewer", "Pitch", "Avg"}
	for _, dim := range models.RubricDimensions {
		header = append(header, shortDim(dim))
	}
	table.Header(toAny(header)...)
	for _, rev := range reviews {
		row := []string{rev.Reviewer, rev.PitchLabel, fmt.Sprintf("%.2f", rev.AverageScore)}
		for _, dim := range models.RubricDimensions {
			row = append(row, fmt.Sprintf("%d", rev.Scores[dim]))
		}
		table.Append(toAny(row)...)
	}
	table.Render()
}

// Decision prints the chairman decision panel.
func (r *Renderer) Decision(d models.ChairmanDecision) {
	var b strings.Builder
	trade := d.SelectedTrade
	fmt.Fprintf(&b, "%s  conviction %+.1f  horizon %s\n",
		directionLabel(trade.Direction, string(trade.Instrument)), d.Conviction, trade.Horizon)
	if d.Fallback {
		b.WriteString(fallbackStyle.Render("deterministic fallback") + "\n")
	}
	fmt.Fprintf(&b, "\n%s\n", d.Rationale)

	if len(d.DissentSummary) > 0 {
		b.WriteString("\nDissent:\n")
		for _, dis := range d.DissentSummary {
			fmt.Fprintf(&b, "  %s: %s (%s)\n", dis.Agent, dis.Position, dis.Reason)
		}
	}
	fmt.Fprintf(&b, "\nMonitoring: %s\nIndicators: %s",
		strings.Join(d.MonitoringPlan.Checkpoints, ", "),
		strings.Join(d.MonitoringPlan.KeyIndicators, ", "))
	b.WriteString(dimStyle.Render(fmt.Sprintf("\n\n%s / %s", d.Model, d.ID)))

	fmt.Fprintln(r.out, decisionStyle.Render(b.String()))
}

// Positions prints the open positions across all accounts.
func (r *Renderer) Positions(byAccount map[string][]broker.Position) {
	fmt.Fprintln(r.out, headerStyle.Render("Open positions"))
	table := tablewriter.NewWriter(r.out)
	table.Header("Account", "Symbol", "Side", "Qty", "Entry", "Price", "P&L %")
	rows := 0
	for account, positions := range byAccount {
		for _, p := range positions {
			table.Append(
				account,
				p.Symbol,
				p.Side,
				p.Qty.String(),
				p.AvgEntryPrice.StringFixed(2),
				p.CurrentPrice.StringFixed(2),
				p.UnrealizedPLPC.Mul(hundred).StringFixed(2),
			)
			rows++
		}
	}
	if rows == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("  (none)"))
		return
	}
	table.Render()
}

// CheckpointActions prints the outcome of one checkpoint run.
func (r *Renderer) CheckpointActions(actions []models.CheckpointAction) {
	fmt.Fprintln(r.out, headerStyle.Render("Checkpoint actions"))
	if len(actions) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("  (no open positions)"))
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.Header("Account", "Position", "Action", "Conviction", "Executed", "Reason")
	for _, a := range actions {
		executed := "no"
		if a.Executed {
			executed = "yes"
		}
		table.Append(
			a.Account,
			directionLabel(a.Direction, string(a.Instrument)),
			string(a.Action),
			fmt.Sprintf("%+.1f → %+.1f", a.CurrentConviction, a.NewConviction),
			executed,
			truncate(a.Reason, 48),
		)
	}
	table.Render()
}

func directionLabel(d models.Direction, symbol string) string {
	switch d {
	case models.Long:
		return longStyle.Render("LONG " + symbol)
	case models.Short:
		return shortStyle.Render("SHORT " + symbol)
	}
	return flatStyle.Render("FLAT")
}

func shortDim(dim string) string {
	if len(dim) > 4 {
		return dim[:4]
	}
	return dim
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
