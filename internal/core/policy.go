package core

import (
	"context"
	"fmt"

	"github.com/mikey/mailbox-triage/internal/whitelist"
	"go.uber.org/zap"
)

// ScoreFunc returns the spam probability of text
type ScoreFunc func(text string) (float64, error)

// ScoringText builds the exact string handed to the classifier
func ScoringText(summary Summary) string {
	return "Subject: " + summary.Subject + " From: " + summary.Sender + " Body: " + summary.Excerpt
}

// Decide maps a message summary to a verdict. Trusted senders bypass the
// classifier entirely; otherwise the classifier is called exactly once and
// the message is spam only when its score is strictly above threshold.
// Decide performs no I/O beyond what score does.
func Decide(summary Summary, trusted *whitelist.Checker, score ScoreFunc, threshold float64) (Decision, error) {
	if trusted.IsTrusted(summary.Sender) {
		return Decision{Verdict: VerdictTrusted}, nil
	}

	probability, err := score(ScoringText(summary))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to score message: %w", err)
	}

	decision := Decision{
		Verdict: VerdictLegitimate,
		Score:   probability,
		Scored:  true,
	}
	if probability > threshold {
		decision.Verdict = VerdictSpam
	}
	return decision, nil
}

// Policy binds the decision rules to a classifier and configuration
type Policy struct {
	classifier Classifier
	trusted    *whitelist.Checker
	threshold  float64
	logger     *zap.Logger
}

// NewPolicy creates a new decision policy
func NewPolicy(
	classifier Classifier,
	trusted *whitelist.Checker,
	threshold float64,
	logger *zap.Logger,
) *Policy {
	return &Policy{
		classifier: classifier,
		trusted:    trusted,
		threshold:  threshold,
		logger:     logger,
	}
}

// Threshold returns the configured spam threshold
func (p *Policy) Threshold() float64 {
	return p.threshold
}

// Evaluate decides the verdict for a single message
func (p *Policy) Evaluate(ctx context.Context, summary Summary) (Decision, error) {
	score := func(text string) (float64, error) {
		return p.classifier.Score(ctx, text)
	}

	decision, err := Decide(summary, p.trusted, score, p.threshold)
	if err != nil {
		return Decision{}, err
	}

	p.logger.Debug("Evaluated message",
		zap.String("sender", summary.Sender),
		zap.Stringer("verdict", decision.Verdict),
		zap.Float64("score", decision.Score),
		zap.Bool("scored", decision.Scored))

	return decision, nil
}
