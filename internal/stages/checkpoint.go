package stages

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/itradeyou/council/internal/broker"
	"github.com/itradeyou/council/internal/dataflows"
	"github.com/itradeyou/council/internal/jsonutil"
	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/sizing"
)

// positionView is the live state rendered into a checkpoint prompt.
type positionView struct {
	Account        string
	Symbol         string
	Direction      models.Direction
	Qty            decimal.Decimal
	AvgEntryPrice  decimal.Decimal
	CurrentPrice   decimal.Decimal
	UnrealizedPLPC decimal.Decimal
}

// CheckpointStage re-evaluates every open position at a fixed time of
// day, using only the frozen snapshot plus live price and P&L. The
// snapshot is never modified here. Any ambiguity in the model's answer
// resolves to STAY.
type CheckpointStage struct {
	chairman   llm.Agent
	broker     broker.Client
	quotes     dataflows.QuoteFetcher
	logger     CheckpointLogger
	checkpoint string
	maxTokens  int
}

func NewCheckpointStage(chairman llm.Agent, b broker.Client, quotes dataflows.QuoteFetcher, logger CheckpointLogger, checkpoint string, maxTokens int) *CheckpointStage {
	return &CheckpointStage{chairman: chairman, broker: b, quotes: quotes, logger: logger, checkpoint: checkpoint, maxTokens: maxTokens}
}

func (s *CheckpointStage) Name() string { return "checkpoint:" + s.checkpoint }

func (s *CheckpointStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	snap, ok := pipeline.Value[models.ResearchSnapshot](pc, KeySnapshot)
	if !ok {
		return pc, ErrNoSnapshot
	}

	decisionConviction := 0.0
	if decision, ok := pipeline.Value[models.ChairmanDecision](pc, KeyDecision); ok {
		decisionConviction = decision.Conviction
	}

	positionsByAccount, err := s.broker.GetAllPositions(ctx)
	if err != nil {
		return pc, fmt.Errorf("load positions: %w", err)
	}

	var views []positionView
	for account, positions := range positionsByAccount {
		for _, p := range positions {
			views = append(views, s.toView(account, p))
		}
	}
	if len(views) == 0 {
		slog.Info("checkpoint: no open positions", "checkpoint", s.checkpoint)
		return pc.Set(KeyCheckpointActions, []models.CheckpointAction{}), nil
	}

	// One chairman call per position; each goroutine fills its own slot.
	actions := make([]models.CheckpointAction, len(views))
	var wg sync.WaitGroup
	for i, view := range views {
		wg.Add(1)
		go func(i int, view positionView) {
			defer wg.Done()
			actions[i] = s.evaluate(ctx, snap, view, decisionConviction)
		}(i, view)
	}
	wg.Wait()

	for i := range actions {
		s.execute(ctx, &actions[i], views[i])
	}

	if s.logger != nil {
		if err := s.logger.LogCheckpointActions(ctx, snap.WeekID, s.checkpoint, actions); err != nil {
			slog.Error("checkpoint log write failed", "err", err)
		}
	}

	return pc.Set(KeyCheckpointActions, actions), nil
}

func (s *CheckpointStage) toView(account string, p broker.Position) positionView {
	view := positionView{
		Account:        account,
		Symbol:         p.Symbol,
		Direction:      models.Long,
		Qty:            p.Qty.Abs(),
		AvgEntryPrice:  p.AvgEntryPrice,
		CurrentPrice:   p.CurrentPrice,
		UnrealizedPLPC: p.UnrealizedPLPC,
	}
	if p.Side == "short" || p.Qty.IsNegative() {
		view.Direction = models.Short
	}
	if view.CurrentPrice.IsZero() && s.quotes != nil {
		if price, err := s.quotes.LivePrice(p.Symbol); err == nil {
			view.CurrentPrice = price
		}
	}
	return view
}

func (s *CheckpointStage) evaluate(ctx context.Context, snap models.ResearchSnapshot, view positionView, decisionConviction float64) models.CheckpointAction {
	action := models.CheckpointAction{
		Account:           view.Account,
		Instrument:        models.Instrument(view.Symbol),
		Direction:         view.Direction,
		CurrentConviction: decisionConviction,
		Action:            models.ActionStay,
		Reason:            "no response",
		Checkpoint:        s.checkpoint,
		DecidedAt:         time.Now().UTC(),
	}

	ind := snap.Indicators[models.Instrument(view.Symbol)]
	res := s.chairman.Querier.Query(ctx, llm.Request{
		System:      checkpointSystemPrompt,
		User:        buildCheckpointUserPrompt(s.checkpoint, view, ind, decisionConviction),
		Temperature: 0.2,
		MaxTokens:   s.maxTokens,
	})
	if res.Failed() {
		slog.Warn("checkpoint query failed, staying", "account", view.Account, "symbol", view.Symbol, "err", res.Err)
		return action
	}

	kind, current, newConviction, reason := ResolveAction(res.Content, decisionConviction)
	action.Action = kind
	action.CurrentConviction = current
	action.NewConviction = newConviction
	action.Reason = reason
	return action
}

type checkpointPayload struct {
	CurrentConviction *float64 `json:"current_conviction"`
	NewConviction     *float64 `json:"new_conviction"`
	Action            string   `json:"action"`
	Reason            string   `json:"reason"`
}

// ResolveAction turns one raw checkpoint response into an action. The
// declared action is trusted when it names one of the five kinds;
// otherwise the conviction pair decides. Unparseable responses fall back
// to a keyword scan, and everything else to STAY.
func ResolveAction(raw string, fallbackCurrent float64) (models.ActionKind, float64, float64, string) {
	var payload checkpointPayload
	if err := jsonutil.Decode(raw, &payload); err != nil {
		if kind, ok := scanActionKeyword(raw); ok {
			return kind, fallbackCurrent, fallbackCurrent, "keyword scan of unstructured response"
		}
		return models.ActionStay, fallbackCurrent, fallbackCurrent, "no response"
	}

	current := fallbackCurrent
	if payload.CurrentConviction != nil {
		current = *payload.CurrentConviction
	}
	newConviction := current
	if payload.NewConviction != nil {
		newConviction = *payload.NewConviction
	}

	reason := payload.Reason
	if reason == "" {
		reason = "no reason given"
	}

	if kind := models.ActionKind(strings.ToUpper(strings.TrimSpace(payload.Action))); kind.Valid() {
		return kind, current, newConviction, reason
	}
	return DecideAction(current, newConviction), current, newConviction, reason
}

// DecideAction is the conviction-delta state machine. Evaluation order
// matters: exit dominates, then the strong sign flip, then same-sign
// resizes. Same-sign deltas compare magnitudes so that a weakening
// short (-1.8 to -1.2) reduces exactly like a weakening long.
func DecideAction(current, newConviction float64) models.ActionKind {
	switch {
	case math.Abs(newConviction) < 1.0:
		return models.ActionExit
	case math.Abs(newConviction-current) >= 1.5 && signsFlip(current, newConviction):
		return models.ActionFlip
	case sameSign(current, newConviction) && math.Abs(current)-math.Abs(newConviction) >= 0.5:
		return models.ActionReduce
	case sameSign(current, newConviction) && math.Abs(newConviction)-math.Abs(current) >= 0.5:
		return models.ActionIncrease
	}
	return models.ActionStay
}

// scanActionKeyword finds the action name appearing earliest in free text.
func scanActionKeyword(raw string) (models.ActionKind, bool) {
	upper := strings.ToUpper(raw)
	best := -1
	var found models.ActionKind
	for _, kind := range models.ActionKinds {
		idx := strings.Index(upper, string(kind))
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			found = kind
		}
	}
	return found, best >= 0
}

// execute applies one decided action against the brokerage. STAY touches
// nothing; resize targets the size-table quantity for the new conviction.
func (s *CheckpointStage) execute(ctx context.Context, action *models.CheckpointAction, view positionView) {
	switch action.Action {
	case models.ActionStay:
		return

	case models.ActionExit:
		if err := s.broker.CloseAllPositions(ctx, view.Account, []string{view.Symbol}); err != nil {
			slog.Error("exit failed", "account", view.Account, "symbol", view.Symbol, "err", err)
			return
		}
		action.Executed = true

	case models.ActionFlip:
		if err := s.broker.CloseAllPositions(ctx, view.Account, []string{view.Symbol}); err != nil {
			slog.Error("flip close failed", "account", view.Account, "symbol", view.Symbol, "err", err)
			return
		}
		qty := s.targetQuantity(ctx, action.NewConviction, view.Account)
		if qty.IsZero() {
			action.Executed = true
			return
		}
		side := "buy"
		if view.Direction == models.Long {
			side = "sell"
		}
		results := s.broker.PlaceOrdersParallel(ctx, []broker.OrderRequest{{
			Account: view.Account, Symbol: view.Symbol, Qty: qty,
			Side: side, Type: "market", TimeInForce: "day",
		}})
		if r := results[view.Account]; r.Err != nil {
			slog.Error("flip reopen failed", "account", view.Account, "symbol", view.Symbol, "err", r.Err)
			return
		}
		action.Executed = true

	case models.ActionReduce, models.ActionIncrease:
		target := s.targetQuantity(ctx, action.NewConviction, view.Account)
		delta := target.Sub(view.Qty)
		if delta.IsZero() {
			action.Executed = true
			return
		}
		// Reducing a long sells, growing it buys; mirrored for shorts.
		side := "buy"
		if (view.Direction == models.Long) == delta.IsNegative() {
			side = "sell"
		}
		results := s.broker.PlaceOrdersParallel(ctx, []broker.OrderRequest{{
			Account: view.Account, Symbol: view.Symbol, Qty: delta.Abs(),
			Side: side, Type: "market", TimeInForce: "day",
		}})
		if r := results[view.Account]; r.Err != nil {
			slog.Error("resize failed", "account", view.Account, "symbol", view.Symbol, "err", r.Err)
			return
		}
		action.Executed = true
	}
}

// targetQuantity sizes the post-action position from the size table, after
// snapping the model's conviction to the canonical grid. Off-grid values
// size to zero, same as at entry.
func (s *CheckpointStage) targetQuantity(ctx context.Context, newConviction float64, account string) decimal.Decimal {
	canonical, ok := sizing.Canonical(newConviction)
	if !ok {
		return decimal.Zero
	}
	accounts, err := s.broker.GetAllAccounts(ctx)
	if err != nil {
		slog.Warn("account lookup failed during resize", "account", account, "err", err)
		return decimal.Zero
	}
	info, ok := accounts[account]
	if !ok {
		return decimal.Zero
	}
	return sizing.Quantity(canonical, info.Equity)
}

func sameSign(a, b float64) bool {
	return sign(a) == sign(b) && sign(a) != 0
}

func signsFlip(a, b float64) bool {
	return sign(a) != 0 && sign(b) != 0 && sign(a) != sign(b)
}
