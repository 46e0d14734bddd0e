package stages_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/stages"
)

func testPitches(agents ...string) []models.Pitch {
	pitches := make([]models.Pitch, len(agents))
	for i, name := range agents {
		p, err := stages.ParsePitch(name, longPitchJSON)
		if err != nil {
			panic(err)
		}
		pitches[i] = *p
	}
	return pitches
}

func TestAnonymizeIsABijection(t *testing.T) {
	pitches := testPitches("pm_momentum", "pm_value", "pm_macro")

	anonymized, labelToAgent := stages.Anonymize(pitches)
	require.Len(t, anonymized, 3)
	require.Len(t, labelToAgent, 3)

	seenAgents := make(map[string]bool)
	for label, agentName := range labelToAgent {
		assert.Regexp(t, `^Pitch [A-Z]$`, label)
		assert.False(t, seenAgents[agentName], "agent %s mapped twice", agentName)
		seenAgents[agentName] = true
	}
	for _, ap := range anonymized {
		assert.Equal(t, ap.Pitch.Agent, labelToAgent[ap.Label])
	}
}

func TestAnonymizeLabelsFollowInputOrder(t *testing.T) {
	pitches := testPitches("pm_momentum", "pm_value", "pm_macro")

	anonymized, labelToAgent := stages.Anonymize(pitches)
	require.Len(t, anonymized, 3)

	assert.Equal(t, "Pitch A", anonymized[0].Label)
	assert.Equal(t, "Pitch B", anonymized[1].Label)
	assert.Equal(t, "Pitch C", anonymized[2].Label)
	assert.Equal(t, "pm_momentum", labelToAgent["Pitch A"])
	assert.Equal(t, "pm_value", labelToAgent["Pitch B"])
	assert.Equal(t, "pm_macro", labelToAgent["Pitch C"])
}

// reviewJSONFor renders a full review array for every label except own.
func reviewJSONFor(labels []string, own string) string {
	var items []string
	for _, label := range labels {
		if label == own {
			continue
		}
		items = append(items, fmt.Sprintf(`{
			"pitch_label": %q,
			"scores": {"edge": 7, "evidence": 6, "risk_reward": 8, "timing": 5, "invalidation": 6, "sizing": 7, "clarity": 8},
			"best_argument_against": "crowded positioning",
			"one_flip_condition": "guide-down from a mega-cap peer",
			"suggested_fix": "tighter stop"
		}`, label))
	}
	return "[" + strings.Join(items, ",") + "]"
}

// smartQuerier answers each reviewer with reviews of every non-own label,
// reading the own label out of the prompt text.
type smartQuerier struct {
	fakeQuerier
	labels []string
}

func (s *smartQuerier) Query(ctx context.Context, req llm.Request) llm.Result {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	for _, label := range s.labels {
		if strings.Contains(req.User, fmt.Sprintf("Your own pitch is %s.", label)) {
			return llm.Result{Content: reviewJSONFor(s.labels, label)}
		}
	}
	return llm.Result{Content: "[]"}
}

func TestPeerReviewProducesFullGrid(t *testing.T) {
	labels := []string{"Pitch A", "Pitch B", "Pitch C"}
	q := &smartQuerier{labels: labels}

	stage := stages.NewPeerReviewStage([]llm.Agent{
		agent("pm_momentum", q),
		agent("pm_value", q),
		agent("pm_macro", q),
	}, nil, 1024)

	pc := snapshotContext().Set(stages.KeyPitches, testPitches("pm_momentum", "pm_value", "pm_macro"))
	out, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	reviews, ok := pipeline.Value[[]models.PeerReview](out, stages.KeyReviews)
	require.True(t, ok)
	assert.Len(t, reviews, 6, "N(N-1) for N=3")

	labelToAgent, ok := pipeline.Value[map[string]string](out, stages.KeyLabelMap)
	require.True(t, ok)
	for _, r := range reviews {
		assert.NotEqual(t, r.Reviewer, labelToAgent[r.PitchLabel], "no self-review")
		assert.InDelta(t, 6.71, r.AverageScore, 0.01)
	}
}

func TestReviewPromptsNeverRevealIdentities(t *testing.T) {
	labels := []string{"Pitch A", "Pitch B"}
	q := &smartQuerier{labels: labels}

	stage := stages.NewPeerReviewStage([]llm.Agent{
		agent("pm_momentum", q),
		agent("pm_value", q),
	}, nil, 1024)

	pc := snapshotContext().Set(stages.KeyPitches, testPitches("pm_momentum", "pm_value"))
	_, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	requests := q.recorded()
	require.Len(t, requests, 2)
	for _, req := range requests {
		assert.NotContains(t, req.User, "pm_momentum")
		assert.NotContains(t, req.User, "pm_value")
		assert.NotContains(t, req.System, "pm_momentum")
	}
}

func TestPeerReviewAcceptsLoneObjectResponse(t *testing.T) {
	// Each reviewer returns a single object, not an array: accepted as the
	// length-1 case.
	single := &fakeQuerier{response: `{
		"pitch_label": "Pitch A",
		"scores": {"edge": 5, "evidence": 5, "risk_reward": 5, "timing": 5, "invalidation": 5, "sizing": 5, "clarity": 5},
		"best_argument_against": "a", "one_flip_condition": "b", "suggested_fix": "c"
	}`}

	stage := stages.NewPeerReviewStage([]llm.Agent{
		agent("pm_momentum", single),
		agent("pm_value", single),
	}, nil, 1024)

	pc := snapshotContext().Set(stages.KeyPitches, testPitches("pm_momentum", "pm_value"))
	out, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	reviews, _ := pipeline.Value[[]models.PeerReview](out, stages.KeyReviews)
	// One reviewer owns Pitch A and its lone review self-targets, which is
	// dropped; the other reviewer's lone object survives.
	require.Len(t, reviews, 1)
	assert.Equal(t, "Pitch A", reviews[0].PitchLabel)
	assert.Equal(t, 5.0, reviews[0].AverageScore)
}

func TestPeerReviewDropsBadScores(t *testing.T) {
	bad := &fakeQuerier{response: `[{
		"pitch_label": "Pitch A",
		"scores": {"edge": 11, "evidence": 5, "risk_reward": 5, "timing": 5, "invalidation": 5, "sizing": 5, "clarity": 5},
		"best_argument_against": "a", "one_flip_condition": "b", "suggested_fix": "c"
	}, {
		"pitch_label": "Pitch B",
		"scores": {"edge": 5, "evidence": 5, "timing": 5, "invalidation": 5, "sizing": 5, "clarity": 5},
		"best_argument_against": "a", "one_flip_condition": "b", "suggested_fix": "c"
	}]`}

	stage := stages.NewPeerReviewStage([]llm.Agent{
		agent("pm_momentum", bad),
		agent("pm_value", bad),
	}, nil, 1024)

	pc := snapshotContext().Set(stages.KeyPitches, testPitches("pm_momentum", "pm_value"))
	out, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	reviews, _ := pipeline.Value[[]models.PeerReview](out, stages.KeyReviews)
	assert.Empty(t, reviews, "out-of-range and incomplete rubrics are dropped")
}

func TestPeerReviewDropsMissingNarratives(t *testing.T) {
	bad := &fakeQuerier{response: `[{
		"pitch_label": "Pitch A",
		"scores": {"edge": 5, "evidence": 5, "risk_reward": 5, "timing": 5, "invalidation": 5, "sizing": 5, "clarity": 5},
		"best_argument_against": "  ", "one_flip_condition": "b", "suggested_fix": "c"
	}, {
		"pitch_label": "Pitch B",
		"scores": {"edge": 5, "evidence": 5, "risk_reward": 5, "timing": 5, "invalidation": 5, "sizing": 5, "clarity": 5},
		"best_argument_against": "a", "one_flip_condition": "b"
	}]`}

	stage := stages.NewPeerReviewStage([]llm.Agent{
		agent("pm_momentum", bad),
		agent("pm_value", bad),
	}, nil, 1024)

	pc := snapshotContext().Set(stages.KeyPitches, testPitches("pm_momentum", "pm_value"))
	out, err := stage.Execute(context.Background(), pc)
	require.NoError(t, err)

	reviews, _ := pipeline.Value[[]models.PeerReview](out, stages.KeyReviews)
	assert.Empty(t, reviews, "blank or absent narrative fields are dropped")
}

func TestPeerReviewRequiresPitches(t *testing.T) {
	stage := stages.NewPeerReviewStage(nil, nil, 1024)

	_, err := stage.Execute(context.Background(), pipeline.NewContext())
	assert.ErrorIs(t, err, stages.ErrNoPitches)
}
