package stages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/stages"
)

func TestParsePitchAcceptsWellFormedLong(t *testing.T) {
	pitch, err := stages.ParsePitch("pm_momentum", longPitchJSON)
	require.NoError(t, err)

	assert.Equal(t, "pm_momentum", pitch.Agent)
	assert.Equal(t, models.Instrument("NVDA"), pitch.Instrument)
	assert.Equal(t, models.Long, pitch.Direction)
	assert.Equal(t, 1.5, pitch.Conviction)
	assert.Equal(t, models.RiskBase, pitch.RiskProfile)
	require.NotNil(t, pitch.ExitPolicy)
	assert.Equal(t, 5.0, pitch.ExitPolicy.StopLossPct)
}

func TestParsePitchAcceptsFlat(t *testing.T) {
	raw := `{"instrument": "FLAT", "direction": "FLAT", "conviction": 0,
		"horizon": "1w", "thesis_bullets": ["nothing offers edge this week"],
		"entry_policy": {"mode": "NONE"}}`

	pitch, err := stages.ParsePitch("pm_macro", raw)
	require.NoError(t, err)
	assert.Equal(t, models.Flat, pitch.Direction)
	assert.Zero(t, pitch.Conviction)
	assert.Equal(t, models.EntryNone, pitch.EntryPolicy.Mode)
	assert.Nil(t, pitch.ExitPolicy)
}

func TestParsePitchSilentRejections(t *testing.T) {
	cases := map[string]string{
		"not json at all":    `I would buy NVDA here.`,
		"bad direction":      `{"instrument": "NVDA", "direction": "HOLD", "conviction": 1, "horizon": "1w", "thesis_bullets": ["x"]}`,
		"unknown instrument": `{"instrument": "GME", "direction": "LONG", "conviction": 1, "horizon": "1w", "thesis_bullets": ["x"]}`,
		"conviction range":   `{"instrument": "NVDA", "direction": "LONG", "conviction": 3.5, "horizon": "1w", "thesis_bullets": ["x"]}`,
		"sign mismatch":      `{"instrument": "NVDA", "direction": "SHORT", "conviction": 1.0, "horizon": "1w", "thesis_bullets": ["x"]}`,
		"flat nonzero":       `{"instrument": "FLAT", "direction": "FLAT", "conviction": 0.5, "horizon": "1w", "thesis_bullets": ["x"]}`,
		"bad horizon":        `{"instrument": "NVDA", "direction": "LONG", "conviction": 1, "horizon": "3m", "thesis_bullets": ["x"]}`,
		"missing fields":     `{"horizon": "1w"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := stages.ParsePitch("pm", raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, stages.ErrRejected)

			var verr *stages.ValidationError
			assert.False(t, errors.As(err, &verr), "should be a rejection, not a validation error")
		})
	}
}

func TestParsePitchValidationErrors(t *testing.T) {
	cases := map[string]string{
		"flat with risk profile": `{"instrument": "FLAT", "direction": "FLAT", "conviction": 0,
			"horizon": "1w", "thesis_bullets": ["x"], "risk_profile": "BASE",
			"entry_policy": {"mode": "NONE"}}`,
		"mismatched exit pair": `{"instrument": "NVDA", "direction": "LONG", "conviction": 1,
			"horizon": "1w", "thesis_bullets": ["x"], "risk_profile": "TIGHT",
			"entry_policy": {"mode": "MARKET_OPEN"},
			"exit_policy": {"time_stop_days": 5, "stop_loss_pct": 5, "take_profit_pct": 10}}`,
		"bad entry mode": `{"instrument": "NVDA", "direction": "LONG", "conviction": 1,
			"horizon": "1w", "thesis_bullets": ["x"], "risk_profile": "BASE",
			"entry_policy": {"mode": "NONE"},
			"exit_policy": {"time_stop_days": 5, "stop_loss_pct": 5, "take_profit_pct": 10}}`,
		"limit without price": `{"instrument": "NVDA", "direction": "LONG", "conviction": 1,
			"horizon": "1w", "thesis_bullets": ["x"], "risk_profile": "BASE",
			"entry_policy": {"mode": "LIMIT"},
			"exit_policy": {"time_stop_days": 5, "stop_loss_pct": 5, "take_profit_pct": 10}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := stages.ParsePitch("pm", raw)
			var verr *stages.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "pm", verr.Agent)
		})
	}
}

func TestParsePitchToleratesExitPairNoise(t *testing.T) {
	raw := `{"instrument": "NVDA", "direction": "LONG", "conviction": 1,
		"horizon": "1w", "thesis_bullets": ["x"], "risk_profile": "BASE",
		"entry_policy": {"mode": "MARKET_CLOSE"},
		"exit_policy": {"time_stop_days": 5, "stop_loss_pct": 5.00003, "take_profit_pct": 9.99998}}`

	_, err := stages.ParsePitch("pm", raw)
	assert.NoError(t, err)
}

func TestPitchStageRequiresSnapshot(t *testing.T) {
	stage := stages.NewPitchStage(nil, nil, 1024)

	_, err := stage.Execute(context.Background(), pipeline.NewContext())
	assert.ErrorIs(t, err, stages.ErrNoSnapshot)
}

func TestPitchStageDropsFailingAgentsKeepsRest(t *testing.T) {
	good := &fakeQuerier{response: longPitchJSON}
	down := &fakeQuerier{err: errors.New("provider timeout")}
	garbled := &fakeQuerier{response: "no json here"}

	stage := stages.NewPitchStage([]llm.Agent{
		agent("pm_momentum", good),
		agent("pm_value", down),
		agent("pm_macro", garbled),
	}, nil, 1024)

	out, err := stage.Execute(context.Background(), snapshotContext())
	require.NoError(t, err)

	pitches, ok := pipeline.Value[[]models.Pitch](out, stages.KeyPitches)
	require.True(t, ok)
	require.Len(t, pitches, 1)
	assert.Equal(t, "pm_momentum", pitches[0].Agent)
}
