package stages

import "github.com/itradeyou/council/internal/pipeline"

// Context keys shared across the pipeline. Metadata keys MetaWeekID and
// MetaResearchDate identify the cycle a context belongs to.
var (
	KeySnapshot          = pipeline.NewKey("research_snapshot")
	KeyPitches           = pipeline.NewKey("pitches")
	KeyAnonymizedPitches = pipeline.NewKey("anonymized_pitches")
	KeyLabelMap          = pipeline.NewKey("label_map")
	KeyReviews           = pipeline.NewKey("peer_reviews")
	KeyDecision          = pipeline.NewKey("chairman_decision")
	KeyApproved          = pipeline.NewKey("execution_approved")
	KeyOrderResults      = pipeline.NewKey("order_results")
	KeyCheckpointActions = pipeline.NewKey("checkpoint_actions")
)

const (
	MetaWeekID       = "week_id"
	MetaResearchDate = "research_date"
)
