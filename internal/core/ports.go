package core

import (
	"context"
	"iter"
)

// Mailbox defines the operations the triage loop needs from a remote mailbox.
// Implementations do not retry; failures are reported as *MailboxError so
// callers can tell transient from permanent.
type Mailbox interface {
	// DiscoverCandidates lists messages that are unread and do not carry
	// the marker. The sequence is lazy, finite and single-use; calling
	// DiscoverCandidates again re-queries the mailbox.
	DiscoverCandidates(ctx context.Context, marker Marker) iter.Seq2[MessageRef, error]

	// FetchSummary fetches headers and a short excerpt, never the full body
	FetchSummary(ctx context.Context, ref MessageRef) (*Summary, error)

	// ApplyLabels adds and removes labels as a single operation
	ApplyLabels(ctx context.Context, ref MessageRef, add, remove []LabelID) error

	// ResolveOrCreateLabel returns the identifier of the named label,
	// creating it with the given options if it does not exist
	ResolveOrCreateLabel(ctx context.Context, name string, opts LabelOptions) (LabelID, error)
}

// Classifier scores text with a spam probability in [0,1]
type Classifier interface {
	Score(ctx context.Context, text string) (float64, error)
}
