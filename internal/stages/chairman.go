package stages

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/itradeyou/council/internal/jsonutil"
	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
)

// ChairmanStage asks the chairman model to synthesize the committee's one
// decision from the pitches and the review grid. If the chairman is
// unreachable or its answer fails validation, the deterministic fallback
// decides instead; the stage itself never fails once pitches exist.
type ChairmanStage struct {
	chairman  llm.Agent
	store     DecisionStore
	maxTokens int
}

func NewChairmanStage(chairman llm.Agent, store DecisionStore, maxTokens int) *ChairmanStage {
	return &ChairmanStage{chairman: chairman, store: store, maxTokens: maxTokens}
}

func (s *ChairmanStage) Name() string { return "chairman" }

func (s *ChairmanStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	pitches, ok := pipeline.Value[[]models.Pitch](pc, KeyPitches)
	if !ok || len(pitches) == 0 {
		return pc, ErrNoPitches
	}
	anonymized, _ := pipeline.Value[[]models.AnonymizedPitch](pc, KeyAnonymizedPitches)
	reviews, _ := pipeline.Value[[]models.PeerReview](pc, KeyReviews)

	decision := s.synthesize(ctx, pitches, anonymized, reviews)
	decision.ID = uuid.NewString()
	decision.DecidedAt = time.Now().UTC()

	if decision.Fallback {
		slog.Warn("chairman fallback engaged",
			"instrument", decision.SelectedTrade.Instrument,
			"conviction", decision.Conviction)
	} else {
		slog.Info("chairman decision",
			"instrument", decision.SelectedTrade.Instrument,
			"direction", decision.SelectedTrade.Direction,
			"conviction", decision.Conviction)
	}

	if s.store != nil {
		if err := s.store.SaveChairmanDecision(ctx, pc.Meta(MetaWeekID), pc.Meta(MetaResearchDate), decision); err != nil {
			return pc, fmt.Errorf("persist decision: %w", err)
		}
	}

	return pc.Set(KeyDecision, decision), nil
}

func (s *ChairmanStage) synthesize(ctx context.Context, pitches []models.Pitch, anonymized []models.AnonymizedPitch, reviews []models.PeerReview) models.ChairmanDecision {
	temp := s.chairman.Temperature
	if temp <= 0 {
		temp = 0.2
	}
	res := s.chairman.Querier.Query(ctx, llm.Request{
		System:      chairmanSystemPrompt,
		User:        buildChairmanUserPrompt(pitches, anonymized, reviews),
		Temperature: temp,
		MaxTokens:   s.maxTokens,
	})
	if res.Failed() {
		slog.Warn("chairman unreachable", "err", res.Err)
		return FallbackDecision(pitches)
	}

	decision, err := parseDecision(res.Content)
	if err != nil {
		slog.Warn("chairman response invalid", "err", err)
		return FallbackDecision(pitches)
	}
	decision.Model = s.chairman.Querier.ModelID()
	return decision
}

type decisionPayload struct {
	SelectedTrade  *models.SelectedTrade  `json:"selected_trade"`
	Conviction     *float64               `json:"conviction"`
	Rationale      string                 `json:"rationale"`
	DissentSummary []models.Dissent       `json:"dissent_summary"`
	MonitoringPlan *models.MonitoringPlan `json:"monitoring_plan"`
}

// parseDecision applies strict validation: a decision that fails any check
// is discarded whole in favor of the fallback, never partially repaired.
func parseDecision(raw string) (models.ChairmanDecision, error) {
	var payload decisionPayload
	if err := jsonutil.Decode(raw, &payload); err != nil {
		return models.ChairmanDecision{}, err
	}
	if payload.SelectedTrade == nil || payload.Conviction == nil {
		return models.ChairmanDecision{}, fmt.Errorf("missing selected_trade or conviction")
	}

	trade := *payload.SelectedTrade
	if !trade.Direction.Valid() {
		return models.ChairmanDecision{}, fmt.Errorf("direction %q invalid", trade.Direction)
	}
	if trade.Direction == models.Flat {
		if trade.Instrument != models.InstrumentFlat {
			return models.ChairmanDecision{}, fmt.Errorf("FLAT decision with instrument %q", trade.Instrument)
		}
	} else {
		if !trade.Instrument.Tradable() {
			return models.ChairmanDecision{}, fmt.Errorf("instrument %q not tradable", trade.Instrument)
		}
		if !models.ValidHorizon(trade.Horizon) {
			return models.ChairmanDecision{}, fmt.Errorf("horizon %q invalid", trade.Horizon)
		}
	}

	conviction := *payload.Conviction
	if !models.ValidConviction(conviction) {
		return models.ChairmanDecision{}, fmt.Errorf("conviction %.4f out of range", conviction)
	}
	switch {
	case trade.Direction == models.Flat && math.Abs(conviction) > models.ConvictionTolerance:
		return models.ChairmanDecision{}, fmt.Errorf("FLAT decision with conviction %.4f", conviction)
	case trade.Direction != models.Flat && sign(conviction) != trade.Direction.Sign():
		return models.ChairmanDecision{}, fmt.Errorf("conviction %.4f contradicts direction %s", conviction, trade.Direction)
	}

	if payload.MonitoringPlan == nil || len(payload.MonitoringPlan.Checkpoints) == 0 {
		return models.ChairmanDecision{}, fmt.Errorf("missing monitoring plan")
	}

	return models.ChairmanDecision{
		SelectedTrade:  trade,
		Conviction:     conviction,
		Rationale:      payload.Rationale,
		DissentSummary: payload.DissentSummary,
		MonitoringPlan: *payload.MonitoringPlan,
	}, nil
}

// FallbackDecision selects the highest-conviction non-FLAT pitch by
// absolute value, demotes every other non-FLAT pitch to a dissent entry,
// and attaches the default monitoring plan. If every pitch is FLAT the
// desk goes flat.
func FallbackDecision(pitches []models.Pitch) models.ChairmanDecision {
	best := -1
	for i, p := range pitches {
		if p.Direction == models.Flat {
			continue
		}
		if best < 0 || math.Abs(p.Conviction) > math.Abs(pitches[best].Conviction) {
			best = i
		}
	}

	decision := models.ChairmanDecision{
		Fallback:       true,
		Model:          "fallback",
		MonitoringPlan: models.DefaultMonitoringPlan(),
	}

	if best < 0 {
		decision.SelectedTrade = models.SelectedTrade{Instrument: models.InstrumentFlat, Direction: models.Flat}
		decision.Rationale = "no directional pitch survived validation; standing aside"
		return decision
	}

	chosen := pitches[best]
	decision.SelectedTrade = models.SelectedTrade{
		Instrument: chosen.Instrument,
		Direction:  chosen.Direction,
		Horizon:    chosen.Horizon,
	}
	decision.Conviction = chosen.Conviction
	decision.Rationale = fmt.Sprintf("fallback: highest-conviction pitch from %s", chosen.Agent)
	for i, p := range pitches {
		if i == best || p.Direction == models.Flat {
			continue
		}
		decision.DissentSummary = append(decision.DissentSummary, models.Dissent{
			Agent:    p.Agent,
			Position: fmt.Sprintf("%s %s @ %.1f", p.Direction, p.Instrument, p.Conviction),
			Reason:   "not selected by fallback",
		})
	}
	return decision
}
