package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ReconcilerOptions configures the triage loop cadence
type ReconcilerOptions struct {
	// PollInterval is the wait between the end of one cycle and the start
	// of the next
	PollInterval time.Duration

	// MaxBackoff caps the wait after consecutive discovery failures.
	// Zero keeps the fixed poll interval.
	MaxBackoff time.Duration

	// OperationTimeout bounds each mailbox and classifier call. During
	// discovery it bounds the wait for each next candidate, so a long paged
	// listing is never cut off as long as every page arrives in time. Zero
	// disables the deadline.
	OperationTimeout time.Duration

	// MaxCandidates caps how many messages one cycle takes from discovery.
	// The rest stay unread and unmarked for later cycles. Zero means no cap.
	MaxCandidates int
}

// Reconciler drives the triage loop: discover unexamined messages, decide a
// verdict for each and apply the matching label change. The mailbox is the
// only persisted state; nothing about seen messages is kept locally.
type Reconciler struct {
	mailbox Mailbox
	policy  *Policy
	marker  Marker
	opts    ReconcilerOptions
	logger  *zap.Logger

	after  func(time.Duration) <-chan time.Time
	state  atomic.Int32
	cycles atomic.Uint64
}

// NewReconciler creates a new triage loop. The marker must already be
// resolved with EnsureMarker.
func NewReconciler(
	mailbox Mailbox,
	policy *Policy,
	marker Marker,
	opts ReconcilerOptions,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		mailbox: mailbox,
		policy:  policy,
		marker:  marker,
		opts:    opts,
		logger:  logger,
		after:   time.After,
	}
}

// State reports whether a cycle is in progress
func (r *Reconciler) State() LoopState {
	return LoopState(r.state.Load())
}

// Run executes cycles until ctx is done. Failures inside a cycle never end
// the loop. Cancellation may abandon an in-flight message; it stays
// unmarked and is picked up again on the next run.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("Starting triage loop",
		zap.String("marker", r.marker.Name),
		zap.Duration("poll_interval", r.opts.PollInterval),
		zap.Float64("threshold", r.policy.Threshold()))

	failures := 0
	for {
		stats := r.RunCycle(ctx)
		if ctx.Err() != nil {
			r.logger.Info("Triage loop stopped", zap.Uint64("cycles", stats.Cycle))
			return nil
		}

		if stats.DiscoveryErr != nil {
			failures++
		} else {
			failures = 0
		}

		wait := r.nextWait(failures)
		r.logger.Debug("Waiting for next cycle", zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			r.logger.Info("Triage loop stopped", zap.Uint64("cycles", stats.Cycle))
			return nil
		case <-r.after(wait):
		}
	}
}

// nextWait returns the poll interval, doubled once per consecutive
// discovery failure when a backoff cap is configured
func (r *Reconciler) nextWait(failures int) time.Duration {
	wait := r.opts.PollInterval
	if r.opts.MaxBackoff <= 0 || failures == 0 {
		return wait
	}
	for i := 0; i < failures && wait < r.opts.MaxBackoff; i++ {
		wait *= 2
	}
	if wait > r.opts.MaxBackoff {
		wait = r.opts.MaxBackoff
	}
	return wait
}

// RunCycle performs one discovery and dispatch pass. Discovery is drained
// completely before any message is mutated.
func (r *Reconciler) RunCycle(ctx context.Context) CycleStats {
	r.state.Store(int32(StateCycling))
	defer r.state.Store(int32(StateIdle))

	stats := CycleStats{
		Cycle:     r.cycles.Add(1),
		StartedAt: time.Now(),
	}
	logger := r.logger.With(zap.Uint64("cycle", stats.Cycle))

	refs, capped, err := r.discover(ctx)
	if err != nil {
		stats.DiscoveryErr = err
		stats.Duration = time.Since(stats.StartedAt)
		logger.Error("Failed to discover candidates", zap.Error(err))
		return stats
	}

	stats.Discovered = len(refs)
	if len(refs) == 0 {
		logger.Info("No new unread messages")
	} else {
		logger.Info("Found new messages to process", zap.Int("count", len(refs)))
	}
	if capped {
		logger.Info("Candidate cap reached, remaining messages wait for the next cycle",
			zap.Int("max_candidates", r.opts.MaxCandidates))
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		verdict, err := r.dispatch(ctx, ref, logger)
		if err != nil {
			stats.Failed++
			logger.Error("Failed to triage message",
				zap.String("message_id", ref.ID),
				zap.Error(err))
			continue
		}

		switch verdict {
		case VerdictTrusted:
			stats.Trusted++
		case VerdictSpam:
			stats.Spam++
		case VerdictLegitimate:
			stats.Legitimate++
		}
	}

	stats.Duration = time.Since(stats.StartedAt)
	if stats.Discovered > 0 {
		logger.Info("Cycle complete",
			zap.Int("discovered", stats.Discovered),
			zap.Int("trusted", stats.Trusted),
			zap.Int("spam", stats.Spam),
			zap.Int("legitimate", stats.Legitimate),
			zap.Int("failed", stats.Failed),
			zap.Duration("duration", stats.Duration))
	}

	return stats
}

// errDiscoveryStalled cancels a discovery that waited longer than the
// operation timeout for its next candidate
var errDiscoveryStalled = errors.New("discovery stalled")

// discover drains the candidate sequence, stopping early at the candidate
// cap. The operation timeout is an idle deadline re-armed after every
// candidate rather than a budget for the whole drain.
func (r *Reconciler) discover(ctx context.Context) ([]MessageRef, bool, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var idle *time.Timer
	if r.opts.OperationTimeout > 0 {
		idle = time.AfterFunc(r.opts.OperationTimeout, func() {
			cancel(errDiscoveryStalled)
		})
		defer idle.Stop()
	}

	var refs []MessageRef
	for ref, err := range r.mailbox.DiscoverCandidates(ctx, r.marker) {
		if err != nil {
			if errors.Is(context.Cause(ctx), errDiscoveryStalled) {
				err = NewTransientError("discover", fmt.Errorf("%w after %s: %w", errDiscoveryStalled, r.opts.OperationTimeout, err))
			}
			return nil, false, err
		}
		refs = append(refs, ref)
		if r.opts.MaxCandidates > 0 && len(refs) >= r.opts.MaxCandidates {
			return refs, true, nil
		}
		if idle != nil {
			idle.Reset(r.opts.OperationTimeout)
		}
	}
	return refs, false, nil
}

// dispatch runs fetch, decide and mutate for one message. Any error leaves
// the message untouched so the next discovery returns it again.
func (r *Reconciler) dispatch(ctx context.Context, ref MessageRef, logger *zap.Logger) (Verdict, error) {
	summary, err := r.fetchSummary(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch summary: %w", err)
	}

	decision, err := r.evaluate(ctx, *summary)
	if err != nil {
		return 0, err
	}

	add, remove := r.mutationFor(decision.Verdict)
	if err := r.applyLabels(ctx, ref, add, remove); err != nil {
		return 0, fmt.Errorf("failed to apply %s labels: %w", decision.Verdict, err)
	}

	fields := []zap.Field{
		zap.String("message_id", ref.ID),
		zap.String("subject", summary.Subject),
		zap.String("sender", summary.Sender),
		zap.Stringer("verdict", decision.Verdict),
	}
	if decision.Scored {
		fields = append(fields, zap.Float64("score", decision.Score))
	}

	if decision.Verdict == VerdictSpam {
		logger.Warn("Moved message to spam", fields...)
	} else {
		logger.Info("Marked message as examined", fields...)
	}

	return decision.Verdict, nil
}

// mutationFor returns the labels to add and remove for a verdict. Spam is
// moved out of the inbox without the marker; leaving the unread inbox is
// what keeps it out of future discovery.
func (r *Reconciler) mutationFor(verdict Verdict) (add, remove []LabelID) {
	if verdict == VerdictSpam {
		return []LabelID{LabelSpam}, []LabelID{LabelInbox}
	}
	return []LabelID{r.marker.ID}, nil
}

func (r *Reconciler) fetchSummary(ctx context.Context, ref MessageRef) (*Summary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.mailbox.FetchSummary(ctx, ref)
}

func (r *Reconciler) evaluate(ctx context.Context, summary Summary) (Decision, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.policy.Evaluate(ctx, summary)
}

func (r *Reconciler) applyLabels(ctx context.Context, ref MessageRef, add, remove []LabelID) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.mailbox.ApplyLabels(ctx, ref, add, remove)
}

func (r *Reconciler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.OperationTimeout)
}
