package stages

import (
	"context"

	"github.com/itradeyou/council/internal/models"
)

// Persistence contracts consumed by the stages. All saves carry upsert
// semantics keyed on the cycle identity; a nil store disables persistence
// for that stage.

type PitchStore interface {
	SavePitches(ctx context.Context, weekID, researchDate string, pitches []models.Pitch) error
}

type ReviewStore interface {
	SavePeerReviews(ctx context.Context, weekID, researchDate string, reviews []models.PeerReview) error
}

type DecisionStore interface {
	SaveChairmanDecision(ctx context.Context, weekID, researchDate string, d models.ChairmanDecision) error
}

type CheckpointLogger interface {
	LogCheckpointActions(ctx context.Context, weekID, checkpoint string, actions []models.CheckpointAction) error
}
