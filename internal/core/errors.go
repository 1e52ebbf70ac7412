package core

import (
	"errors"
	"fmt"
)

// ErrorKind separates failures worth retrying from those that are not
type ErrorKind int

const (
	Transient ErrorKind = iota + 1
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// MailboxError is returned by Mailbox implementations
type MailboxError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *MailboxError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable mailbox failure
func NewTransientError(op string, err error) error {
	return &MailboxError{Op: op, Kind: Transient, Err: err}
}

// NewPermanentError wraps err as a non-retryable mailbox failure
func NewPermanentError(op string, err error) error {
	return &MailboxError{Op: op, Kind: Permanent, Err: err}
}

// IsTransient reports whether err is a transient mailbox failure.
// Unclassified errors are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var mErr *MailboxError
	if errors.As(err, &mErr) {
		return mErr.Kind == Transient
	}
	return true
}

// IsPermanent reports whether err is a permanent mailbox failure
func IsPermanent(err error) bool {
	var mErr *MailboxError
	return errors.As(err, &mErr) && mErr.Kind == Permanent
}
