package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
)

// SnapshotBuilder freezes one research snapshot from live market data.
type SnapshotBuilder interface {
	Build(now time.Time) (models.ResearchSnapshot, error)
}

// SnapshotStore persists frozen snapshots keyed by week id.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap models.ResearchSnapshot) error
	LoadSnapshot(ctx context.Context, weekID string) (*models.ResearchSnapshot, error)
}

// SnapshotStage puts the cycle's frozen snapshot into context. A full run
// builds and persists a fresh snapshot; a checkpoint run loads the one
// frozen by the most recent full run and fails with ErrNoSnapshot when
// none exists.
type SnapshotStage struct {
	builder SnapshotBuilder
	store   SnapshotStore
	rebuild bool
}

func NewSnapshotStage(builder SnapshotBuilder, store SnapshotStore, rebuild bool) *SnapshotStage {
	return &SnapshotStage{builder: builder, store: store, rebuild: rebuild}
}

func (s *SnapshotStage) Name() string { return "snapshot" }

func (s *SnapshotStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	now := time.Now()
	weekID := models.WeekID(now)

	if !s.rebuild {
		if s.store == nil {
			return pc, ErrNoSnapshot
		}
		snap, err := s.store.LoadSnapshot(ctx, weekID)
		if err != nil {
			return pc, fmt.Errorf("load snapshot %s: %w", weekID, err)
		}
		if snap == nil {
			return pc, ErrNoSnapshot
		}
		slog.Info("snapshot loaded", "week_id", snap.WeekID, "frozen_at", snap.FrozenAt)
		return s.stamp(pc, *snap), nil
	}

	snap, err := s.builder.Build(now)
	if err != nil {
		return pc, fmt.Errorf("freeze snapshot: %w", err)
	}
	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			return pc, fmt.Errorf("persist snapshot: %w", err)
		}
	}
	slog.Info("snapshot frozen", "week_id", snap.WeekID, "instruments", len(snap.Indicators))
	return s.stamp(pc, snap), nil
}

func (s *SnapshotStage) stamp(pc pipeline.Context, snap models.ResearchSnapshot) pipeline.Context {
	return pc.Set(KeySnapshot, snap).
		WithMeta(MetaWeekID, snap.WeekID).
		WithMeta(MetaResearchDate, snap.ResearchDate)
}
