package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
)

// DecisionLoader reads back the persisted decision for a cycle.
type DecisionLoader interface {
	LoadChairmanDecision(ctx context.Context, weekID string) (*models.ChairmanDecision, error)
}

// DecisionLoadStage restores the week's stored chairman decision into
// context for checkpoint runs, which start from a fresh context. A missing
// decision is tolerated: checkpoints then evaluate from zero conviction.
type DecisionLoadStage struct {
	loader DecisionLoader
}

func NewDecisionLoadStage(loader DecisionLoader) *DecisionLoadStage {
	return &DecisionLoadStage{loader: loader}
}

func (s *DecisionLoadStage) Name() string { return "decision_load" }

func (s *DecisionLoadStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	weekID := pc.Meta(MetaWeekID)
	decision, err := s.loader.LoadChairmanDecision(ctx, weekID)
	if err != nil {
		return pc, fmt.Errorf("load decision %s: %w", weekID, err)
	}
	if decision == nil {
		slog.Warn("no stored decision for cycle", "week_id", weekID)
		return pc, nil
	}
	return pc.Set(KeyDecision, *decision), nil
}
