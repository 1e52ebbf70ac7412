package ports

import (
	"context"

	"github.com/mikey/mailbox-triage/internal/core"
)

// EmailFilter evaluates a single message outside of the triage loop
type EmailFilter interface {
	// ProcessEmail decides the verdict for a message summary
	ProcessEmail(ctx context.Context, summary *core.Summary) (*core.Decision, error)
}
