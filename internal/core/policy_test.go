package core

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/mailbox-triage/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func countingScore(score float64, calls *int, inputs *[]string) ScoreFunc {
	return func(text string) (float64, error) {
		*calls++
		if inputs != nil {
			*inputs = append(*inputs, text)
		}
		return score, nil
	}
}

func TestDecideTrustedBypassesClassifier(t *testing.T) {
	trusted := whitelist.NewChecker([]string{"@google.com"}, nil)

	subjects := []string{"Invoice", "FREE MONEY CLICK NOW", ""}
	for _, subject := range subjects {
		calls := 0
		decision, err := Decide(Summary{
			Sender:  "billing@google.com",
			Subject: subject,
			Excerpt: "win a prize",
		}, trusted, countingScore(0.99, &calls, nil), 0.95)

		require.NoError(t, err)
		assert.Equal(t, VerdictTrusted, decision.Verdict)
		assert.False(t, decision.Scored)
		assert.Zero(t, calls, "classifier must not be called for trusted senders")
	}
}

func TestDecideTrustedIsCaseInsensitive(t *testing.T) {
	trusted := whitelist.NewChecker([]string{"@github.com"}, nil)
	calls := 0

	decision, err := Decide(Summary{Sender: "GitHub <NoReply@GitHub.COM>"}, trusted, countingScore(1, &calls, nil), 0.5)

	require.NoError(t, err)
	assert.Equal(t, VerdictTrusted, decision.Verdict)
	assert.Zero(t, calls)
}

func TestDecideThresholdBoundary(t *testing.T) {
	trusted := whitelist.NewChecker([]string{"@google.com"}, nil)

	tests := []struct {
		name  string
		score float64
		want  Verdict
	}{
		{"above threshold", 0.97, VerdictSpam},
		{"equal to threshold", 0.95, VerdictLegitimate},
		{"just above threshold", 0.9500001, VerdictSpam},
		{"below threshold", 0.10, VerdictLegitimate},
		{"zero", 0, VerdictLegitimate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			decision, err := Decide(Summary{Sender: "promo@unknown-shop.biz"}, trusted, countingScore(tt.score, &calls, nil), 0.95)

			require.NoError(t, err)
			assert.Equal(t, tt.want, decision.Verdict)
			assert.True(t, decision.Scored)
			assert.Equal(t, tt.score, decision.Score)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDecideScoringText(t *testing.T) {
	var inputs []string
	calls := 0

	_, err := Decide(Summary{
		Excerpt: "Limited offer inside",
		Subject: "Deals!",
		Sender:  "Shop <promo@unknown-shop.biz>",
	}, nil, countingScore(0.1, &calls, &inputs), 0.95)

	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "Subject: Deals! From: Shop <promo@unknown-shop.biz> Body: Limited offer inside", inputs[0])
}

func TestDecideEmptyFields(t *testing.T) {
	var inputs []string
	calls := 0

	decision, err := Decide(Summary{}, whitelist.NewChecker([]string{"@google.com"}, nil), countingScore(0.2, &calls, &inputs), 0.95)

	require.NoError(t, err)
	assert.Equal(t, VerdictLegitimate, decision.Verdict)
	assert.Equal(t, []string{"Subject:  From:  Body: "}, inputs)
}

func TestDecideClassifierError(t *testing.T) {
	failing := func(string) (float64, error) { return 0, errors.New("model unavailable") }

	_, err := Decide(Summary{Sender: "a@b.c"}, nil, failing, 0.95)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestPolicyEvaluate(t *testing.T) {
	classifier := &fakeClassifier{def: 0.97}
	policy := NewPolicy(classifier, whitelist.NewChecker([]string{"@google.com"}, nil), 0.95, zaptest.NewLogger(t))

	decision, err := policy.Evaluate(context.Background(), Summary{Sender: "promo@unknown-shop.biz", Subject: "Win"})
	require.NoError(t, err)
	assert.Equal(t, VerdictSpam, decision.Verdict)

	decision, err = policy.Evaluate(context.Background(), Summary{Sender: "billing@google.com"})
	require.NoError(t, err)
	assert.Equal(t, VerdictTrusted, decision.Verdict)

	assert.Equal(t, 1, classifier.calls())
	assert.Equal(t, 0.95, policy.Threshold())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "trusted", VerdictTrusted.String())
	assert.Equal(t, "spam", VerdictSpam.String())
	assert.Equal(t, "legitimate", VerdictLegitimate.String())
	assert.Equal(t, "verdict(0)", Verdict(0).String())
}
