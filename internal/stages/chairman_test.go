package stages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/stages"
)

func pitchWith(agentName string, instrument models.Instrument, direction models.Direction, conviction float64) models.Pitch {
	p := models.Pitch{
		Agent:         agentName,
		Instrument:    instrument,
		Direction:     direction,
		Conviction:    conviction,
		Horizon:       "1w",
		ThesisBullets: []string{"thesis"},
		EntryPolicy:   models.EntryPolicy{Mode: models.EntryMarketOpen},
	}
	if direction == models.Flat {
		p.EntryPolicy.Mode = models.EntryNone
	} else {
		p.RiskProfile = models.RiskBase
		p.ExitPolicy = &models.ExitPolicy{TimeStopDays: 5, StopLossPct: 5, TakeProfitPct: 10}
	}
	return p
}

func TestFallbackSelectsHighestConviction(t *testing.T) {
	pitches := []models.Pitch{
		pitchWith("pm_a", "NVDA", models.Long, 1.5),
		pitchWith("pm_b", "SPY", models.Short, -1.0),
		pitchWith("pm_c", "AAPL", models.Long, 0.8),
		pitchWith("pm_d", models.InstrumentFlat, models.Flat, 0),
	}

	d := stages.FallbackDecision(pitches)
	assert.True(t, d.Fallback)
	assert.Equal(t, models.Instrument("NVDA"), d.SelectedTrade.Instrument)
	assert.Equal(t, models.Long, d.SelectedTrade.Direction)
	assert.Equal(t, 1.5, d.Conviction)
	require.Len(t, d.DissentSummary, 2, "only non-FLAT pitches dissent")
	for _, dis := range d.DissentSummary {
		assert.NotEqual(t, "pm_d", dis.Agent)
	}
	assert.Equal(t, models.DefaultMonitoringPlan(), d.MonitoringPlan)
}

func TestFallbackAllFlatGoesFlat(t *testing.T) {
	pitches := []models.Pitch{
		pitchWith("pm_a", models.InstrumentFlat, models.Flat, 0),
		pitchWith("pm_b", models.InstrumentFlat, models.Flat, 0),
	}

	d := stages.FallbackDecision(pitches)
	assert.Equal(t, models.Flat, d.SelectedTrade.Direction)
	assert.Zero(t, d.Conviction)
	assert.Equal(t, models.DefaultMonitoringPlan().Checkpoints, d.MonitoringPlan.Checkpoints)
}

func TestChairmanStageFallsBackOnModelFailure(t *testing.T) {
	down := &fakeQuerier{err: errors.New("provider down")}
	stage := stages.NewChairmanStage(agent("chairman", down), nil, 1024)

	pitches := []models.Pitch{
		pitchWith("pm_a", "NVDA", models.Long, 1.5),
		pitchWith("pm_b", "SPY", models.Short, -1.0),
		pitchWith("pm_c", "AAPL", models.Long, 0.8),
	}
	pc := snapshotContext().Set(stages.KeyPitches, pitches)

	out, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err, "chairman stage always terminates with a decision")

	decision, ok := pipeline.Value[models.ChairmanDecision](out, stages.KeyDecision)
	require.True(t, ok)
	assert.True(t, decision.Fallback)
	assert.Equal(t, models.Instrument("NVDA"), decision.SelectedTrade.Instrument)
	assert.NotEmpty(t, decision.ID)
	assert.False(t, decision.DecidedAt.IsZero())
}

func TestChairmanStageFallsBackOnInvalidResponse(t *testing.T) {
	cases := map[string]string{
		"not json":          "I would go long NVDA.",
		"bad direction":     `{"selected_trade": {"instrument": "NVDA", "direction": "BUY", "horizon": "1w"}, "conviction": 1.0}`,
		"sign mismatch":     `{"selected_trade": {"instrument": "NVDA", "direction": "SHORT", "horizon": "1w"}, "conviction": 1.0}`,
		"conviction range":  `{"selected_trade": {"instrument": "NVDA", "direction": "LONG", "horizon": "1w"}, "conviction": 2.7}`,
		"flat with nonzero": `{"selected_trade": {"instrument": "FLAT", "direction": "FLAT", "horizon": "1w"}, "conviction": 1.0}`,
		"bad instrument":    `{"selected_trade": {"instrument": "GME", "direction": "LONG", "horizon": "1w"}, "conviction": 1.0}`,
	}

	pitches := []models.Pitch{
		pitchWith("pm_a", "AAPL", models.Long, 0.5),
		pitchWith("pm_b", "SPY", models.Short, -1.5),
	}

	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			stage := stages.NewChairmanStage(agent("chairman", &fakeQuerier{response: response}), nil, 1024)
			out, err := stage.Execute(context.Background(), snapshotContext().Set(stages.KeyPitches, pitches))
			require.NoError(t, err)

			decision, _ := pipeline.Value[models.ChairmanDecision](out, stages.KeyDecision)
			assert.True(t, decision.Fallback, "invalid response must engage the fallback")
			assert.Equal(t, models.Instrument("SPY"), decision.SelectedTrade.Instrument)
		})
	}
}

func TestChairmanStageAcceptsValidDecision(t *testing.T) {
	response := `{
		"selected_trade": {"instrument": "NVDA", "direction": "LONG", "horizon": "1w"},
		"conviction": 1.0,
		"rationale": "reviews converge on the datacenter thesis",
		"dissent_summary": [{"agent": "pm_b", "position": "SHORT SPY", "reason": "macro deterioration"}],
		"monitoring_plan": {"checkpoints": ["11:00", "15:00"], "key_indicators": ["price_vs_entry"], "watch_conditions": ["gap below entry"]}
	}`
	stage := stages.NewChairmanStage(agent("chairman", &fakeQuerier{response: response}), nil, 1024)

	pitches := []models.Pitch{
		pitchWith("pm_a", "NVDA", models.Long, 1.5),
		pitchWith("pm_b", "SPY", models.Short, -1.0),
	}
	out, err := stage.Execute(context.Background(), snapshotContext().Set(stages.KeyPitches, pitches))
	require.NoError(t, err)

	decision, _ := pipeline.Value[models.ChairmanDecision](out, stages.KeyDecision)
	assert.False(t, decision.Fallback)
	assert.Equal(t, 1.0, decision.Conviction)
	assert.Equal(t, []string{"11:00", "15:00"}, decision.MonitoringPlan.Checkpoints)
	assert.Equal(t, "fake:model", decision.Model)
	require.Len(t, decision.DissentSummary, 1)
}

func TestChairmanStageMissingMonitoringPlanEngagesFallback(t *testing.T) {
	response := `{
		"selected_trade": {"instrument": "NVDA", "direction": "LONG", "horizon": "1w"},
		"conviction": 1.0,
		"rationale": "r"
	}`
	stage := stages.NewChairmanStage(agent("chairman", &fakeQuerier{response: response}), nil, 1024)

	pitches := []models.Pitch{pitchWith("pm_a", "NVDA", models.Long, 1.0), pitchWith("pm_b", "SPY", models.Short, -0.5)}
	out, err := stage.Execute(context.Background(), snapshotContext().Set(stages.KeyPitches, pitches))
	require.NoError(t, err)

	decision, _ := pipeline.Value[models.ChairmanDecision](out, stages.KeyDecision)
	assert.True(t, decision.Fallback, "a decision without a monitoring plan is invalid")
	assert.Equal(t, models.Instrument("NVDA"), decision.SelectedTrade.Instrument, "fallback picks the highest conviction")
	assert.Equal(t, models.DefaultMonitoringPlan(), decision.MonitoringPlan)
}

func TestChairmanStageRequiresPitches(t *testing.T) {
	stage := stages.NewChairmanStage(agent("chairman", &fakeQuerier{}), nil, 1024)

	_, err := stage.Execute(context.Background(), pipeline.NewContext())
	assert.ErrorIs(t, err, stages.ErrNoPitches)
}
