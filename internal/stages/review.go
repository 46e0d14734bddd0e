package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/itradeyou/council/internal/jsonutil"
	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
)

// PeerReviewStage anonymizes the accepted pitches and has every author
// score every other author's pitch. The label→agent map stays in context
// for the chairman; it is never rendered into a review prompt.
type PeerReviewStage struct {
	agents    []llm.Agent
	store     ReviewStore
	maxTokens int
}

func NewPeerReviewStage(agents []llm.Agent, store ReviewStore, maxTokens int) *PeerReviewStage {
	return &PeerReviewStage{agents: agents, store: store, maxTokens: maxTokens}
}

func (s *PeerReviewStage) Name() string { return "peer_review" }

func (s *PeerReviewStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	pitches, ok := pipeline.Value[[]models.Pitch](pc, KeyPitches)
	if !ok || len(pitches) == 0 {
		return pc, ErrNoPitches
	}

	anonymized, labelToAgent := Anonymize(pitches)

	if len(pitches) < 2 {
		slog.Warn("single accepted pitch, skipping peer review")
		return pc.Set(KeyAnonymizedPitches, anonymized).
			Set(KeyLabelMap, labelToAgent).
			Set(KeyReviews, []models.PeerReview{}), nil
	}

	// Only authors of accepted pitches review; one call per reviewer.
	type reviewerResult struct {
		reviewer string
		reviews  []models.PeerReview
	}
	results := make([]reviewerResult, len(anonymized))
	var wg sync.WaitGroup
	for i, ap := range anonymized {
		reviewer := labelToAgent[ap.Label]
		agent, ok := s.agentByName(reviewer)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, agent llm.Agent, ownLabel string) {
			defer wg.Done()
			res := agent.Querier.Query(ctx, llm.Request{
				System:      reviewSystemPrompt,
				User:        buildReviewUserPrompt(anonymized, ownLabel),
				Temperature: 0.3,
				MaxTokens:   s.maxTokens,
			})
			if res.Failed() {
				slog.Warn("review round dropped: model unreachable", "reviewer", agent.Name, "err", res.Err)
				return
			}
			results[i] = reviewerResult{
				reviewer: agent.Name,
				reviews:  parseReviews(agent.Name, ownLabel, labelToAgent, res.Content),
			}
		}(i, agent, ap.Label)
	}
	wg.Wait()

	reviews := make([]models.PeerReview, 0, len(pitches)*(len(pitches)-1))
	for _, rr := range results {
		reviews = append(reviews, rr.reviews...)
	}

	expected := len(pitches) * (len(pitches) - 1)
	if len(reviews) < expected {
		slog.Warn("incomplete review grid", "got", len(reviews), "expected", expected)
	} else {
		slog.Info("review grid complete", "reviews", len(reviews))
	}

	if s.store != nil && len(reviews) > 0 {
		if err := s.store.SavePeerReviews(ctx, pc.Meta(MetaWeekID), pc.Meta(MetaResearchDate), reviews); err != nil {
			return pc, fmt.Errorf("persist reviews: %w", err)
		}
	}

	return pc.Set(KeyAnonymizedPitches, anonymized).
		Set(KeyLabelMap, labelToAgent).
		Set(KeyReviews, reviews), nil
}

func (s *PeerReviewStage) agentByName(name string) (llm.Agent, bool) {
	for _, a := range s.agents {
		if a.Name == name {
			return a, true
		}
	}
	return llm.Agent{}, false
}

// Anonymize assigns labels "Pitch A", "Pitch B", and so on in input order.
// Anonymity comes from the labels themselves: agent names never reach a
// review prompt, and the label→agent map stays private to the pipeline.
func Anonymize(pitches []models.Pitch) ([]models.AnonymizedPitch, map[string]string) {
	anonymized := make([]models.AnonymizedPitch, len(pitches))
	labelToAgent := make(map[string]string, len(pitches))
	for i, p := range pitches {
		label := pitchLabel(i)
		anonymized[i] = models.AnonymizedPitch{Label: label, Pitch: p}
		labelToAgent[label] = p.Agent
	}
	return anonymized, labelToAgent
}

func pitchLabel(i int) string {
	return fmt.Sprintf("Pitch %c", 'A'+rune(i))
}

// reviewPayload mirrors one element of the expected JSON array.
type reviewPayload struct {
	PitchLabel          string         `json:"pitch_label"`
	Scores              map[string]int `json:"scores"`
	BestArgumentAgainst string         `json:"best_argument_against"`
	OneFlipCondition    string         `json:"one_flip_condition"`
	SuggestedFix        string         `json:"suggested_fix"`
}

// parseReviews validates one reviewer's response item by item. Bad items
// (unknown label, self-review, missing or out-of-range scores, blank
// narrative fields) are dropped individually; duplicates keep the first
// occurrence.
func parseReviews(reviewer, ownLabel string, labelToAgent map[string]string, raw string) []models.PeerReview {
	items, err := jsonutil.DecodeItems[reviewPayload](raw)
	if err != nil {
		slog.Warn("review response unparseable", "reviewer", reviewer, "err", err)
		return nil
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(items))
	out := make([]models.PeerReview, 0, len(items))
	for _, item := range items {
		if _, known := labelToAgent[item.PitchLabel]; !known {
			slog.Warn("review dropped: unknown label", "reviewer", reviewer, "label", item.PitchLabel)
			continue
		}
		if item.PitchLabel == ownLabel {
			slog.Warn("review dropped: self-review", "reviewer", reviewer, "label", item.PitchLabel)
			continue
		}
		if seen[item.PitchLabel] {
			continue
		}
		scores, avg, ok := validateScores(item.Scores)
		if !ok {
			slog.Warn("review dropped: bad rubric scores", "reviewer", reviewer, "label", item.PitchLabel)
			continue
		}
		if hasBlank(item.BestArgumentAgainst, item.OneFlipCondition, item.SuggestedFix) {
			slog.Warn("review dropped: missing narrative fields", "reviewer", reviewer, "label", item.PitchLabel)
			continue
		}
		seen[item.PitchLabel] = true
		out = append(out, models.PeerReview{
			Reviewer:            reviewer,
			PitchLabel:          item.PitchLabel,
			Scores:              scores,
			AverageScore:        avg,
			BestArgumentAgainst: item.BestArgumentAgainst,
			OneFlipCondition:    item.OneFlipCondition,
			SuggestedFix:        item.SuggestedFix,
			ReviewedAt:          now,
		})
	}
	return out
}

func hasBlank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}

// validateScores requires every rubric dimension with an integer in
// [1, 10]; extra keys are discarded.
func validateScores(raw map[string]int) (map[string]int, float64, bool) {
	scores := make(map[string]int, len(models.RubricDimensions))
	sum := 0
	for _, dim := range models.RubricDimensions {
		v, ok := raw[dim]
		if !ok || v < 1 || v > 10 {
			return nil, 0, false
		}
		scores[dim] = v
		sum += v
	}
	return scores, float64(sum) / float64(len(models.RubricDimensions)), true
}
