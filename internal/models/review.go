package models

import "time"

// RubricDimensions are the seven scored axes of a peer review, in the
// order they appear in prompts.
var RubricDimensions = []string{
	"edge",
	"evidence",
	"risk_reward",
	"timing",
	"invalidation",
	"sizing",
	"clarity",
}

// PeerReview is one agent's evaluation of one other agent's pitch,
// addressed by the pitch's anonymized label.
type PeerReview struct {
	Reviewer            string         `json:"reviewer"`
	PitchLabel          string         `json:"pitch_label"`
	Scores              map[string]int `json:"scores"`
	AverageScore        float64        `json:"average_score"`
	BestArgumentAgainst string         `json:"best_argument_against"`
	OneFlipCondition    string         `json:"one_flip_condition"`
	SuggestedFix        string         `json:"suggested_fix"`
	ReviewedAt          time.Time      `json:"reviewed_at"`
}
