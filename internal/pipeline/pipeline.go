package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one unit of work in a run. Execute must treat its input as
// read-only and return a derived Context; implementations must not retain
// the input past return.
type Stage interface {
	Name() string
	Execute(ctx context.Context, pc Context) (Context, error)
}

// Pipeline is an ordered list of stages. Append returns a new Pipeline, so
// a base pipeline can be shared and extended without aliasing.
type Pipeline struct {
	stages []Stage
}

// New builds a pipeline from the given stages, in order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Append returns a new pipeline with s added after the existing stages.
func (p *Pipeline) Append(s Stage) *Pipeline {
	stages := make([]Stage, 0, len(p.stages)+1)
	stages = append(stages, p.stages...)
	stages = append(stages, s)
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Execute folds the stages left to right. The first stage error halts the
// run and propagates; recovery, where it exists, lives inside stages.
func (p *Pipeline) Execute(ctx context.Context, pc Context) (Context, error) {
	for _, stage := range p.stages {
		start := time.Now()
		next, err := stage.Execute(ctx, pc)
		if err != nil {
			return pc, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		slog.Debug("stage complete",
			"stage", stage.Name(),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		pc = next
	}
	return pc, nil
}
