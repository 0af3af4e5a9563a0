package deeplogin

import (
	"context"
	"math/rand"
	"time"

	"github.com/loginbridge/loginbridge/internal/logging"
	log "github.com/sirupsen/logrus"
)

// DelayRange is an inclusive range a randomized wait is drawn from.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// SolverOptions configures one verification stage.
type SolverOptions struct {
	// Attempts is the round budget. Values below 1 are treated as 1.
	Attempts int
	// ActivateDelay is waited between locating the control and activating it.
	ActivateDelay DelayRange
	// RetryDelay is waited between two rounds.
	RetryDelay DelayRange
	// Settle is waited after an activation before the page is inspected.
	Settle time.Duration
}

// DefaultSolverOptions returns the stock verification budget: two rounds, 1-3s before
// activation, 2s settle time and 1-2s between rounds.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		Attempts:      2,
		ActivateDelay: DelayRange{Min: time.Second, Max: 3 * time.Second},
		RetryDelay:    DelayRange{Min: time.Second, Max: 2 * time.Second},
		Settle:        2 * time.Second,
	}
}

// Solver drives repeated verification rounds through the UI collaborator until the
// detector reports any verification state.
type Solver struct {
	ui       UI
	detector *Detector
	opts     SolverOptions
	clock    Clock
	// jitter returns a value in [0, n); replaced in tests.
	jitter func(n int64) int64
}

// NewSolver creates a solver. A nil clock uses wall-clock time.
func NewSolver(ui UI, detector *Detector, opts SolverOptions, clock Clock) *Solver {
	if clock == nil {
		clock = realClock{}
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Solver{
		ui:       ui,
		detector: detector,
		opts:     opts,
		clock:    clock,
		jitter:   rand.Int63n,
	}
}

// Solve runs up to Attempts rounds. Each round tries to locate and activate the
// verification control, then checks the page with the detector using cursor. Faults
// while locating or activating only cost the round. A fault during the end-of-round
// check means the automation surface is unusable and aborts with
// VerificationExchangeFailed. Running out of rounds returns VerificationMaxRetriesExceeded.
func (s *Solver) Solve(ctx context.Context, cursor *Cursor) (VerificationState, error) {
	if cursor == nil {
		cursor = NewCursor()
	}
	logger := logging.FromContext(ctx)
	logger.Info("checking for verification challenge")

	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		entry := logger.WithField("attempt", attempt)
		entry.Debug("verification round started")

		if state, ok := s.tryActivate(ctx, entry, cursor); ok {
			entry.WithField("state", state).Info("verification passed")
			return state, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, &VerificationError{Kind: VerificationExchangeFailed, Attempts: attempt, Cause: err}
		}

		state, ok, err := s.detector.Detect(ctx, cursor)
		if err != nil {
			entry.WithError(err).Error("verification check failed")
			return 0, &VerificationError{Kind: VerificationExchangeFailed, Attempts: attempt, Cause: err}
		}
		if ok {
			entry.WithField("state", state).Info("verification passed")
			return state, nil
		}

		if attempt < s.opts.Attempts {
			if err = s.clock.Sleep(ctx, s.pick(s.opts.RetryDelay)); err != nil {
				return 0, &VerificationError{Kind: VerificationExchangeFailed, Attempts: attempt, Cause: err}
			}
		}
	}

	logger.Errorf("verification failed after %d attempt(s)", s.opts.Attempts)
	return 0, &VerificationError{Kind: VerificationMaxRetriesExceeded, Attempts: s.opts.Attempts}
}

// tryActivate performs the locate/activate half of a round. Every fault is logged and
// swallowed; the caller still runs the end-of-round check.
func (s *Solver) tryActivate(ctx context.Context, entry *log.Entry, cursor *Cursor) (VerificationState, bool) {
	control, err := s.ui.LocateControl(ctx)
	if err != nil || control == nil {
		entry.WithError(err).Debug("verification control not available")
		return 0, false
	}
	entry.Info("verification control found")

	if err = s.clock.Sleep(ctx, s.pick(s.opts.ActivateDelay)); err != nil {
		return 0, false
	}
	if err = s.ui.Activate(ctx, control); err != nil {
		entry.WithError(err).Debug("verification control activation failed")
		return 0, false
	}
	if err = s.clock.Sleep(ctx, s.opts.Settle); err != nil {
		return 0, false
	}

	state, ok, err := s.detector.Detect(ctx, cursor)
	if err != nil {
		entry.WithError(err).Debug("post-activation check failed")
		return 0, false
	}
	return state, ok
}

// pick draws a wait from r.
func (s *Solver) pick(r DelayRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(s.jitter(int64(r.Max-r.Min)+1))
}
