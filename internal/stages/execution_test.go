package stages_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itradeyou/council/internal/broker"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/stages"
)

func decisionFixture(conviction float64) models.ChairmanDecision {
	direction := models.Long
	if conviction < 0 {
		direction = models.Short
	}
	return models.ChairmanDecision{
		ID:            "d-1",
		SelectedTrade: models.SelectedTrade{Instrument: "NVDA", Direction: direction, Horizon: "1w"},
		Conviction:    conviction,
	}
}

func TestExecutionWithoutApprovalPlacesNothing(t *testing.T) {
	b := &fakeBroker{accounts: map[string]broker.AccountInfo{
		"main": {Name: "main", Equity: money(100_000)},
	}}
	stage := stages.NewExecutionStage(b, false)

	pc := snapshotContext().Set(stages.KeyDecision, decisionFixture(1.0))
	out, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	assert.Empty(t, b.orders)
	results, ok := pipeline.Value[map[string]broker.OrderResult](out, stages.KeyOrderResults)
	require.True(t, ok)
	assert.Empty(t, results)
}

func TestExecutionSizesAndSubmitsApprovedTrade(t *testing.T) {
	b := &fakeBroker{accounts: map[string]broker.AccountInfo{
		"main": {Name: "main", Equity: money(100_000)},
	}}
	stage := stages.NewExecutionStage(b, false)

	pc := snapshotContext().
		Set(stages.KeyDecision, decisionFixture(0.5)).
		Set(stages.KeyApproved, true)
	_, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	require.Len(t, b.orders, 1)
	order := b.orders[0]
	assert.Equal(t, "main", order.Account)
	assert.Equal(t, "NVDA", order.Symbol)
	assert.Equal(t, "buy", order.Side)
	assert.Equal(t, "market", order.Type)
	assert.True(t, order.Qty.Equal(decimal.NewFromInt(75_000)), "floor(0.75 * 100000), got %s", order.Qty)
}

func TestExecutionShortDecisionSells(t *testing.T) {
	b := &fakeBroker{accounts: map[string]broker.AccountInfo{
		"main": {Name: "main", Equity: money(10_000)},
	}}
	stage := stages.NewExecutionStage(b, false)

	pc := snapshotContext().
		Set(stages.KeyDecision, decisionFixture(-1.5)).
		Set(stages.KeyApproved, true)
	_, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	require.Len(t, b.orders, 1)
	assert.Equal(t, "sell", b.orders[0].Side)
	assert.True(t, b.orders[0].Qty.Equal(decimal.NewFromInt(2_500)))
}

func TestExecutionOffGridConvictionPlacesNothing(t *testing.T) {
	b := &fakeBroker{accounts: map[string]broker.AccountInfo{
		"main": {Name: "main", Equity: money(100_000)},
	}}
	stage := stages.NewExecutionStage(b, false)

	pc := snapshotContext().
		Set(stages.KeyDecision, decisionFixture(0.7)).
		Set(stages.KeyApproved, true)
	_, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)
	assert.Empty(t, b.orders, "off-grid conviction sizes to zero")
}

func TestBuildCandidatesOwnBookOverridesMatchingAccount(t *testing.T) {
	accounts := map[string]broker.AccountInfo{
		"pm_momentum": {Name: "pm_momentum", Equity: money(50_000)},
		"house":       {Name: "house", Equity: money(200_000)},
	}
	decision := decisionFixture(1.0)
	pitches := []models.Pitch{pitchWith("pm_momentum", "TSLA", models.Short, -0.5)}

	candidates := stages.BuildCandidates(decision, pitches, accounts, true)
	require.Len(t, candidates, 2)

	bySource := map[string]stages.Candidate{}
	for _, c := range candidates {
		bySource[c.Source] = c
	}
	own := bySource["pm_momentum"]
	assert.Equal(t, "pm_momentum", own.Account)
	assert.Equal(t, models.Instrument("TSLA"), own.Instrument)
	assert.Equal(t, models.Short, own.Direction)

	house := bySource["chairman"]
	assert.Equal(t, "house", house.Account)
	assert.Equal(t, models.Instrument("NVDA"), house.Instrument)
}

func TestBuildCandidatesFlatDecisionYieldsNone(t *testing.T) {
	accounts := map[string]broker.AccountInfo{"main": {Name: "main", Equity: money(1000)}}
	decision := models.ChairmanDecision{
		SelectedTrade: models.SelectedTrade{Instrument: models.InstrumentFlat, Direction: models.Flat},
	}

	candidates := stages.BuildCandidates(decision, nil, accounts, false)
	assert.Empty(t, candidates)
}

func TestExecutionRequiresDecision(t *testing.T) {
	stage := stages.NewExecutionStage(&fakeBroker{}, false)

	_, err := stage.Execute(context.Background(), pipeline.NewContext())
	assert.ErrorIs(t, err, stages.ErrNoDecision)
}
