package deeplogin

import (
	"errors"
	"fmt"
)

// ErrExchangeInProgress is returned by Exchange.Run when another run owns the UI session.
var ErrExchangeInProgress = errors.New("deeplogin: exchange already in progress")

// VerificationErrorKind classifies a failed verification stage.
type VerificationErrorKind int

const (
	// VerificationMaxRetriesExceeded means no verification state appeared within the round budget.
	// The caller may retry the whole exchange.
	VerificationMaxRetriesExceeded VerificationErrorKind = iota + 1
	// VerificationExchangeFailed means the automation surface itself broke; the exchange must abort.
	VerificationExchangeFailed
)

// VerificationError is returned by Solver.Solve.
type VerificationError struct {
	Kind     VerificationErrorKind
	Attempts int
	Cause    error
}

// Common verification errors, usable as errors.Is targets.
var (
	ErrMaxRetriesExceeded = &VerificationError{Kind: VerificationMaxRetriesExceeded}
	ErrExchangeFailed     = &VerificationError{Kind: VerificationExchangeFailed}
)

func (e *VerificationError) Error() string {
	var msg string
	switch e.Kind {
	case VerificationMaxRetriesExceeded:
		msg = fmt.Sprintf("deeplogin: verification failed after %d attempt(s)", e.Attempts)
	case VerificationExchangeFailed:
		msg = "deeplogin: automation surface failed during verification"
	default:
		msg = "deeplogin: verification error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *VerificationError) Unwrap() error { return e.Cause }

// Is matches any VerificationError of the same kind.
func (e *VerificationError) Is(target error) bool {
	t, ok := target.(*VerificationError)
	return ok && t.Kind == e.Kind
}

// PollErrorKind classifies a failed backend poll.
type PollErrorKind int

const (
	// PollExhausted means every attempt was spent without a completed login.
	// Restart with a fresh challenge; never reuse the stale one.
	PollExhausted PollErrorKind = iota + 1
	// PollTransport marks a single failed request. It only counts against the attempt budget
	// and is reported as the Cause of PollExhausted when it was the last failure seen.
	PollTransport
)

// PollError is returned by Poller.Poll.
type PollError struct {
	Kind       PollErrorKind
	Attempts   int
	StatusCode int
	Cause      error
}

// Common poll errors, usable as errors.Is targets.
var (
	ErrPollExhausted = &PollError{Kind: PollExhausted}
	ErrPollTransport = &PollError{Kind: PollTransport}
)

func (e *PollError) Error() string {
	var msg string
	switch e.Kind {
	case PollExhausted:
		msg = fmt.Sprintf("deeplogin: login not completed after %d poll attempt(s)", e.Attempts)
	case PollTransport:
		if e.StatusCode != 0 {
			msg = fmt.Sprintf("deeplogin: poll request failed with status %d", e.StatusCode)
		} else {
			msg = "deeplogin: poll request failed"
		}
	default:
		msg = "deeplogin: poll error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *PollError) Unwrap() error { return e.Cause }

// Is matches any PollError of the same kind.
func (e *PollError) Is(target error) bool {
	t, ok := target.(*PollError)
	return ok && t.Kind == e.Kind
}

// AuthErrorKind is the terminal failure class of Exchange.Run.
type AuthErrorKind int

const (
	// AuthTimeout means a budget ran out; a new exchange with a fresh challenge may succeed.
	AuthTimeout AuthErrorKind = iota + 1
	// AuthAborted means the exchange could not continue (broken UI surface, cancelled context,
	// unusable random source).
	AuthAborted
)

// AuthError is the only error type Exchange.Run returns besides ErrExchangeInProgress.
type AuthError struct {
	Kind  AuthErrorKind
	Cause error
}

// Common exchange errors, usable as errors.Is targets.
var (
	ErrAuthTimeout = &AuthError{Kind: AuthTimeout}
	ErrAuthAborted = &AuthError{Kind: AuthAborted}
)

func (e *AuthError) Error() string {
	msg := "deeplogin: exchange aborted"
	if e.Kind == AuthTimeout {
		msg = "deeplogin: exchange timed out"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Is matches any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// IsRetryable reports whether err leaves room for a fresh exchange to succeed. The
// outermost AuthError decides; inner stage errors are only consulted without one.
func IsRetryable(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind == AuthTimeout
	}
	return errors.Is(err, ErrMaxRetriesExceeded) || errors.Is(err, ErrPollExhausted)
}
