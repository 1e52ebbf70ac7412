package filter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mikey/mailbox-triage/internal/core"
	"go.uber.org/zap"
)

// CliFilter prints the verdict for a single message without touching any
// mailbox
type CliFilter struct {
	policy  *core.Policy
	logger  *zap.Logger
	out     io.Writer
	verbose bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(policy *core.Policy, logger *zap.Logger, out io.Writer, verbose bool) *CliFilter {
	return &CliFilter{
		policy:  policy,
		logger:  logger,
		out:     out,
		verbose: verbose,
	}
}

// ProcessEmail decides the verdict for a message and displays the results
func (f *CliFilter) ProcessEmail(ctx context.Context, summary *core.Summary) (*core.Decision, error) {
	f.logger.Debug("Processing email", zap.String("sender", summary.Sender))

	fmt.Fprintf(f.out, "\n=== Email Summary ===\n")
	fmt.Fprintf(f.out, "From: %s\n", summary.Sender)
	fmt.Fprintf(f.out, "Subject: %s\n", summary.Subject)
	fmt.Fprintf(f.out, "Excerpt length: %d runes\n", len([]rune(summary.Excerpt)))

	if f.verbose {
		fmt.Fprintf(f.out, "\nScoring text:\n%s\n", core.ScoringText(*summary))
	}

	fmt.Fprintf(f.out, "\n=== Analysis ===\n")
	fmt.Fprintf(f.out, "Spam threshold: %.2f\n", f.policy.Threshold())

	startTime := time.Now()
	decision, err := f.policy.Evaluate(ctx, *summary)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}
	duration := time.Since(startTime)

	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Verdict: %s\n", decision.Verdict)
	if decision.Scored {
		fmt.Fprintf(f.out, "Spam probability: %.4f\n", decision.Score)
	} else {
		fmt.Fprintf(f.out, "Spam probability: not scored (trusted sender)\n")
	}
	fmt.Fprintf(f.out, "Action: %s\n", actionFor(decision.Verdict))
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return &decision, nil
}

// actionFor describes what the triage loop would do with the message
func actionFor(verdict core.Verdict) string {
	if verdict == core.VerdictSpam {
		return "move to spam and remove from inbox"
	}
	return "add marker label"
}
