package stages_test

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/itradeyou/council/internal/broker"
	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/stages"
)

// fakeQuerier replays a canned response (or error) and records the
// requests it received.
type fakeQuerier struct {
	mu       sync.Mutex
	response string
	err      error
	requests []llm.Request
}

func (f *fakeQuerier) Query(_ context.Context, req llm.Request) llm.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return llm.Result{Err: f.err}
	}
	return llm.Result{Content: f.response}
}

func (f *fakeQuerier) ModelID() string { return "fake:model" }

func (f *fakeQuerier) recorded() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// fakeBroker is an in-memory broker.Client.
type fakeBroker struct {
	mu        sync.Mutex
	accounts  map[string]broker.AccountInfo
	positions map[string][]broker.Position
	orders    []broker.OrderRequest
	closed    [][2]string // account, symbol
	orderErr  error
}

func (f *fakeBroker) GetAllPositions(context.Context) (map[string][]broker.Position, error) {
	return f.positions, nil
}

func (f *fakeBroker) GetAllAccounts(context.Context) (map[string]broker.AccountInfo, error) {
	return f.accounts, nil
}

func (f *fakeBroker) CloseAllPositions(_ context.Context, account string, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range symbols {
		f.closed = append(f.closed, [2]string{account, s})
	}
	return nil
}

func (f *fakeBroker) PlaceOrdersParallel(_ context.Context, orders []broker.OrderRequest) map[string]broker.OrderResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make(map[string]broker.OrderResult, len(orders))
	for _, o := range orders {
		f.orders = append(f.orders, o)
		results[o.Account] = broker.OrderResult{Account: o.Account, OrderID: "order-1", Status: "accepted", Err: f.orderErr}
	}
	return results
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// testSnapshot builds a minimal frozen snapshot for the tradable set.
func testSnapshot() models.ResearchSnapshot {
	indicators := make(map[models.Instrument]models.IndicatorSet)
	for _, inst := range models.TradableInstruments {
		indicators[inst] = models.IndicatorSet{
			LastClose: 100, SMA20: 99, SMA50: 97, EMA10: 100.5,
			RSI14: 55, ATR14: 2.3, VolumeTrend: 1.1,
		}
	}
	return models.ResearchSnapshot{
		WeekID:       "2026-W35",
		ResearchDate: "2026-08-24",
		FrozenAt:     time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		Indicators:   indicators,
		Headlines: map[models.Instrument][]string{
			"NVDA": {"chipmaker guides above consensus"},
		},
	}
}

func snapshotContext() pipeline.Context {
	snap := testSnapshot()
	return pipeline.NewContext().
		Set(stages.KeySnapshot, snap).
		WithMeta(stages.MetaWeekID, snap.WeekID).
		WithMeta(stages.MetaResearchDate, snap.ResearchDate)
}

// longPitchJSON is a well-formed directional pitch response.
const longPitchJSON = `{
  "instrument": "NVDA",
  "direction": "LONG",
  "conviction": 1.5,
  "horizon": "1w",
  "thesis_bullets": ["datacenter demand re-accelerating"],
  "risk_profile": "BASE",
  "entry_policy": {"mode": "MARKET_OPEN"},
  "exit_policy": {"time_stop_days": 5, "stop_loss_pct": 5, "take_profit_pct": 10},
  "invalidation": "close below the 50-day",
  "risk_notes": "earnings within horizon"
}`

func agent(name string, q llm.Querier) llm.Agent {
	return llm.Agent{Name: name, Querier: q}
}
