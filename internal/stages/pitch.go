package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/itradeyou/council/internal/jsonutil"
	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
)

// PitchStage queries every PM agent concurrently and validates each
// proposal before acceptance. Malformed responses are dropped with a
// logged reason; the stage itself only fails on missing upstream context.
type PitchStage struct {
	agents    []llm.Agent
	store     PitchStore
	maxTokens int
}

func NewPitchStage(agents []llm.Agent, store PitchStore, maxTokens int) *PitchStage {
	return &PitchStage{agents: agents, store: store, maxTokens: maxTokens}
}

func (s *PitchStage) Name() string { return "pitch" }

func (s *PitchStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	snap, ok := pipeline.Value[models.ResearchSnapshot](pc, KeySnapshot)
	if !ok {
		return pc, ErrNoSnapshot
	}

	userPrompt := buildPitchUserPrompt(snap)

	// One call per agent; each goroutine writes only its own slot.
	results := make([]*models.Pitch, len(s.agents))
	var wg sync.WaitGroup
	for i, agent := range s.agents {
		wg.Add(1)
		go func(i int, agent llm.Agent) {
			defer wg.Done()
			temp := agent.Temperature
			if temp <= 0 {
				temp = 0.7
			}
			res := agent.Querier.Query(ctx, llm.Request{
				System:      pitchSystemPrompt,
				User:        userPrompt,
				Temperature: temp,
				MaxTokens:   s.maxTokens,
			})
			if res.Failed() {
				slog.Warn("pitch dropped: model unreachable", "agent", agent.Name, "err", res.Err)
				return
			}
			pitch, err := ParsePitch(agent.Name, res.Content)
			if err != nil {
				var verr *ValidationError
				if errors.As(err, &verr) {
					slog.Error("pitch dropped: contract breach", "agent", agent.Name, "err", verr)
				} else {
					slog.Warn("pitch dropped", "agent", agent.Name, "reason", err)
				}
				return
			}
			results[i] = pitch
		}(i, agent)
	}
	wg.Wait()

	// Merge accepted pitches in roster order.
	pitches := make([]models.Pitch, 0, len(results))
	for _, p := range results {
		if p != nil {
			pitches = append(pitches, *p)
		}
	}
	slog.Info("pitch collection complete", "accepted", len(pitches), "agents", len(s.agents))

	if s.store != nil && len(pitches) > 0 {
		if err := s.store.SavePitches(ctx, pc.Meta(MetaWeekID), pc.Meta(MetaResearchDate), pitches); err != nil {
			return pc, fmt.Errorf("persist pitches: %w", err)
		}
	}

	return pc.Set(KeyPitches, pitches), nil
}

// pitchPayload mirrors the expected JSON; pointers distinguish absent from
// zero for the fields whose absence matters.
type pitchPayload struct {
	Instrument    *string            `json:"instrument"`
	Direction     *string            `json:"direction"`
	Conviction    *float64           `json:"conviction"`
	Horizon       string             `json:"horizon"`
	ThesisBullets []string           `json:"thesis_bullets"`
	RiskProfile   *string            `json:"risk_profile"`
	EntryPolicy   *entryPayload      `json:"entry_policy"`
	ExitPolicy    *models.ExitPolicy `json:"exit_policy"`
	Invalidation  string             `json:"invalidation"`
	RiskNotes     string             `json:"risk_notes"`
}

type entryPayload struct {
	Mode       string  `json:"mode"`
	LimitPrice float64 `json:"limit_price"`
}

// ParsePitch validates one raw agent response. Unusable responses return
// an error wrapping ErrRejected (silent drop); characterizable contract
// breaches return a *ValidationError.
func ParsePitch(agent, raw string) (*models.Pitch, error) {
	var payload pitchPayload
	if err := jsonutil.Decode(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	if payload.Instrument == nil || payload.Direction == nil || payload.Conviction == nil {
		return nil, fmt.Errorf("%w: missing instrument, direction or conviction", ErrRejected)
	}

	direction := models.Direction(*payload.Direction)
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q not in {LONG,SHORT,FLAT}", ErrRejected, *payload.Direction)
	}

	instrument := models.Instrument(*payload.Instrument)
	if direction == models.Flat {
		if instrument != models.InstrumentFlat {
			return nil, fmt.Errorf("%w: FLAT direction requires FLAT instrument, got %q", ErrRejected, instrument)
		}
	} else if !instrument.Tradable() {
		return nil, fmt.Errorf("%w: instrument %q not in tradable set", ErrRejected, instrument)
	}

	conviction := *payload.Conviction
	if !models.ValidConviction(conviction) {
		return nil, fmt.Errorf("%w: conviction %.4f out of [-2,2]", ErrRejected, conviction)
	}
	if direction == models.Flat {
		if math.Abs(conviction) > models.ConvictionTolerance {
			return nil, fmt.Errorf("%w: FLAT pitch with nonzero conviction %.4f", ErrRejected, conviction)
		}
	} else {
		if math.Abs(conviction) <= models.ConvictionTolerance {
			return nil, fmt.Errorf("%w: %s pitch with zero conviction", ErrRejected, direction)
		}
		if sign(conviction) != direction.Sign() {
			return nil, fmt.Errorf("%w: conviction sign %.4f contradicts direction %s", ErrRejected, conviction, direction)
		}
	}

	if !models.ValidHorizon(payload.Horizon) {
		return nil, fmt.Errorf("%w: horizon %q not in closed set", ErrRejected, payload.Horizon)
	}
	if len(payload.ThesisBullets) == 0 {
		return nil, fmt.Errorf("%w: empty thesis_bullets", ErrRejected)
	}

	pitch := models.Pitch{
		Agent:         agent,
		Instrument:    instrument,
		Direction:     direction,
		Conviction:    conviction,
		Horizon:       payload.Horizon,
		ThesisBullets: payload.ThesisBullets,
		Invalidation:  payload.Invalidation,
		RiskNotes:     payload.RiskNotes,
	}

	if direction == models.Flat {
		return validateFlatPolicies(agent, payload, pitch)
	}
	return validateDirectionalPolicies(agent, payload, pitch)
}

// validateFlatPolicies enforces that a FLAT pitch carries no risk or exit
// policy and uses the no-entry sentinel.
func validateFlatPolicies(agent string, payload pitchPayload, pitch models.Pitch) (*models.Pitch, error) {
	if payload.RiskProfile != nil {
		return nil, &ValidationError{Agent: agent, Field: "risk_profile", Reason: "forbidden for FLAT"}
	}
	if payload.ExitPolicy != nil {
		return nil, &ValidationError{Agent: agent, Field: "exit_policy", Reason: "forbidden for FLAT"}
	}
	if payload.EntryPolicy == nil || models.EntryMode(payload.EntryPolicy.Mode) != models.EntryNone {
		return nil, &ValidationError{Agent: agent, Field: "entry_policy.mode", Reason: "FLAT requires mode NONE"}
	}
	pitch.EntryPolicy = models.EntryPolicy{Mode: models.EntryNone}
	return &pitch, nil
}

// validateDirectionalPolicies enforces the risk-profile/exit pairing and
// the closed entry-mode set for LONG/SHORT pitches.
func validateDirectionalPolicies(agent string, payload pitchPayload, pitch models.Pitch) (*models.Pitch, error) {
	if payload.RiskProfile == nil {
		return nil, &ValidationError{Agent: agent, Field: "risk_profile", Reason: "required for non-FLAT"}
	}
	profile := models.RiskProfile(*payload.RiskProfile)
	pair, ok := models.RiskProfilePairs[profile]
	if !ok {
		return nil, &ValidationError{Agent: agent, Field: "risk_profile", Reason: fmt.Sprintf("unknown profile %q", profile)}
	}

	if payload.ExitPolicy == nil {
		return nil, &ValidationError{Agent: agent, Field: "exit_policy", Reason: "required for non-FLAT"}
	}
	if math.Abs(payload.ExitPolicy.StopLossPct-pair.StopLossPct) > models.ConvictionTolerance ||
		math.Abs(payload.ExitPolicy.TakeProfitPct-pair.TakeProfitPct) > models.ConvictionTolerance {
		return nil, &ValidationError{
			Agent: agent, Field: "exit_policy",
			Reason: fmt.Sprintf("stop/take %.2f/%.2f does not match profile %s (%.2f/%.2f)",
				payload.ExitPolicy.StopLossPct, payload.ExitPolicy.TakeProfitPct, profile, pair.StopLossPct, pair.TakeProfitPct),
		}
	}

	if payload.EntryPolicy == nil {
		return nil, &ValidationError{Agent: agent, Field: "entry_policy", Reason: "required for non-FLAT"}
	}
	mode := models.EntryMode(payload.EntryPolicy.Mode)
	switch mode {
	case models.EntryMarketOpen, models.EntryMarketClose:
	case models.EntryLimit:
		if payload.EntryPolicy.LimitPrice <= 0 {
			return nil, &ValidationError{Agent: agent, Field: "entry_policy.limit_price", Reason: "LIMIT requires a positive price"}
		}
	default:
		return nil, &ValidationError{Agent: agent, Field: "entry_policy.mode", Reason: fmt.Sprintf("mode %q not allowed for non-FLAT", mode)}
	}

	pitch.RiskProfile = profile
	exit := *payload.ExitPolicy
	pitch.ExitPolicy = &exit
	pitch.EntryPolicy = models.EntryPolicy{Mode: mode, LimitPrice: payload.EntryPolicy.LimitPrice}
	return &pitch, nil
}

func sign(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	}
	return 0
}
