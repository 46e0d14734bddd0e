package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/itradeyou/council/internal/broker"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/sizing"
)

// Candidate is one sized trade awaiting the external approval flag. The
// chairman decision always produces one candidate per account; with
// own-book trading enabled each PM's pitch is a parallel candidate in the
// account matching the agent's name.
type Candidate struct {
	Account    string
	Instrument models.Instrument
	Direction  models.Direction
	Conviction float64
	Source     string // "chairman" or the pitching agent's name
}

// ExecutionStage sizes the approved candidates and submits the orders,
// one per account, concurrently. Without approval it is a no-op beyond
// candidate logging.
type ExecutionStage struct {
	broker       broker.Client
	tradeOwnBook bool
}

func NewExecutionStage(b broker.Client, tradeOwnBook bool) *ExecutionStage {
	return &ExecutionStage{broker: b, tradeOwnBook: tradeOwnBook}
}

func (s *ExecutionStage) Name() string { return "execution" }

func (s *ExecutionStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	decision, ok := pipeline.Value[models.ChairmanDecision](pc, KeyDecision)
	if !ok {
		return pc, ErrNoDecision
	}

	accounts, err := s.broker.GetAllAccounts(ctx)
	if err != nil {
		return pc, err
	}

	pitches, _ := pipeline.Value[[]models.Pitch](pc, KeyPitches)
	candidates := BuildCandidates(decision, pitches, accounts, s.tradeOwnBook)

	approved, _ := pipeline.Value[bool](pc, KeyApproved)
	if !approved {
		slog.Info("execution not approved, orders withheld", "candidates", len(candidates))
		return pc.Set(KeyOrderResults, map[string]broker.OrderResult{}), nil
	}

	var orders []broker.OrderRequest
	for _, c := range candidates {
		acct, ok := accounts[c.Account]
		if !ok {
			slog.Warn("candidate skipped: unknown account", "account", c.Account, "source", c.Source)
			continue
		}
		qty := sizing.Quantity(c.Conviction, acct.Equity)
		if qty.IsZero() {
			slog.Info("candidate sized to zero", "account", c.Account, "instrument", c.Instrument, "conviction", c.Conviction)
			continue
		}
		orders = append(orders, broker.OrderRequest{
			Account:     c.Account,
			Symbol:      string(c.Instrument),
			Qty:         qty,
			Side:        orderSide(c.Direction),
			Type:        "market",
			TimeInForce: "day",
		})
	}

	results := map[string]broker.OrderResult{}
	if len(orders) > 0 {
		results = s.broker.PlaceOrdersParallel(ctx, orders)
	}
	for account, r := range results {
		if r.Err != nil {
			slog.Error("order failed", "account", account, "err", r.Err)
		} else {
			slog.Info("order placed", "account", account, "order_id", r.OrderID, "status", r.Status)
		}
	}

	return pc.Set(KeyOrderResults, results), nil
}

// BuildCandidates derives the sized-trade candidates: the chairman
// decision for every account without an own-book claim, plus, when
// enabled, each directional pitch whose agent name matches an account.
// FLAT produces no candidate.
func BuildCandidates(decision models.ChairmanDecision, pitches []models.Pitch, accounts map[string]broker.AccountInfo, tradeOwnBook bool) []Candidate {
	ownBook := make(map[string]Candidate)
	if tradeOwnBook {
		for _, p := range pitches {
			if p.Direction == models.Flat {
				continue
			}
			account, ok := matchAccount(p.Agent, accounts)
			if !ok {
				continue
			}
			ownBook[account] = Candidate{
				Account:    account,
				Instrument: p.Instrument,
				Direction:  p.Direction,
				Conviction: p.Conviction,
				Source:     p.Agent,
			}
		}
	}

	var out []Candidate
	for account := range accounts {
		if c, ok := ownBook[account]; ok {
			out = append(out, c)
			continue
		}
		if decision.SelectedTrade.Direction == models.Flat {
			continue
		}
		out = append(out, Candidate{
			Account:    account,
			Instrument: decision.SelectedTrade.Instrument,
			Direction:  decision.SelectedTrade.Direction,
			Conviction: decision.Conviction,
			Source:     "chairman",
		})
	}
	return out
}

func matchAccount(agent string, accounts map[string]broker.AccountInfo) (string, bool) {
	for name := range accounts {
		if strings.EqualFold(name, agent) {
			return name, true
		}
	}
	return "", false
}

func orderSide(d models.Direction) string {
	if d == models.Short {
		return "sell"
	}
	return "buy"
}
