package core

import (
	"fmt"
	"time"
)

// LabelID is a mailbox-assigned label identifier
type LabelID string

// System labels understood by every mailbox gateway. IMAP gateways map them
// onto folders.
const (
	LabelInbox LabelID = "INBOX"
	LabelSpam  LabelID = "SPAM"
)

// MessageRef is an opaque reference to a remote message
type MessageRef struct {
	ID string
}

// Summary holds the few message fields the policy consumes
type Summary struct {
	Sender  string
	Subject string
	Excerpt string
}

// LabelOptions controls how a label is created when absent
type LabelOptions struct {
	HiddenFromUser bool
}

// Marker is the "examined" label, resolved once per process
type Marker struct {
	Name string
	ID   LabelID
}

// Verdict is the outcome of the decision policy
type Verdict int

const (
	VerdictTrusted Verdict = iota + 1
	VerdictSpam
	VerdictLegitimate
)

func (v Verdict) String() string {
	switch v {
	case VerdictTrusted:
		return "trusted"
	case VerdictSpam:
		return "spam"
	case VerdictLegitimate:
		return "legitimate"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Decision is a verdict plus the score that produced it. Score is only
// meaningful when Scored is true; trusted senders are never scored.
type Decision struct {
	Verdict Verdict
	Score   float64
	Scored  bool
}

// LoopState is the reconciliation loop state
type LoopState int32

const (
	StateIdle LoopState = iota
	StateCycling
)

func (s LoopState) String() string {
	if s == StateCycling {
		return "cycling"
	}
	return "idle"
}

// CycleStats summarizes one discovery and dispatch pass
type CycleStats struct {
	Cycle        uint64
	Discovered   int
	Trusted      int
	Spam         int
	Legitimate   int
	Failed       int
	DiscoveryErr error
	StartedAt    time.Time
	Duration     time.Duration
}
