package deeplogin

import (
	"context"
	"errors"
	"net/http"

	"github.com/loginbridge/loginbridge/internal/logging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Options configures an Exchange.
type Options struct {
	// Email is copied onto the resulting credential.
	Email string
	// Stages is the number of verification stages run before polling. Zero skips
	// verification entirely.
	Stages int
	Solver SolverOptions
	Poll   PollOptions
	// Markers overrides individual state markers; empty entries keep the defaults.
	Markers Markers
}

// DefaultOptions returns one verification stage with the default solver and poll budgets.
func DefaultOptions() Options {
	return Options{
		Stages: 1,
		Solver: DefaultSolverOptions(),
		Poll:   DefaultPollOptions(),
	}
}

// Exchange runs complete deep-login exchanges over one UI session. A value owns its UI
// exclusively, so only one Run may be in flight at a time.
type Exchange struct {
	ui         UI
	httpClient *http.Client
	opts       Options
	sem        *semaphore.Weighted

	clock    Clock
	generate func() (*Challenge, error)
}

// NewExchange creates an exchange over ui. A nil httpClient uses http.DefaultClient.
func NewExchange(ui UI, httpClient *http.Client, opts Options) *Exchange {
	if opts.Stages < 0 {
		opts.Stages = 0
	}
	return &Exchange{
		ui:         ui,
		httpClient: httpClient,
		opts:       opts,
		sem:        semaphore.NewWeighted(1),
		clock:      realClock{},
		generate:   GenerateChallenge,
	}
}

// Run performs one exchange: a fresh challenge, the configured verification stages each
// with its own cursor, then the authorization poll. Failures are reported as *AuthError;
// a call made while another Run is active returns ErrExchangeInProgress.
func (e *Exchange) Run(ctx context.Context) (*Credential, error) {
	if !e.sem.TryAcquire(1) {
		return nil, ErrExchangeInProgress
	}
	defer e.sem.Release(1)

	ctx = logging.WithExchangeID(ctx, logging.GenerateExchangeID())
	logger := logging.FromContext(ctx)

	ch, err := e.generate()
	if err != nil {
		logger.WithError(err).Error("failed to generate challenge")
		return nil, &AuthError{Kind: AuthAborted, Cause: err}
	}
	logger = logger.WithField("session", ch.SessionID)
	logger.Info("deep login exchange started")

	detector := NewDetector(e.ui, DefaultMarkers().WithOverrides(e.opts.Markers))
	solver := NewSolver(e.ui, detector, e.opts.Solver, e.clock)
	for stage := 1; stage <= e.opts.Stages; stage++ {
		state, errSolve := solver.Solve(ctx, NewCursor())
		if errSolve != nil {
			logger.WithField("stage", stage).WithError(errSolve).Warn("verification stage failed")
			return nil, mapExchangeError(ctx, errSolve)
		}
		logger.WithFields(log.Fields{"stage": stage, "state": state}).Debug("verification stage completed")
	}

	poller := NewPoller(e.httpClient, e.ui, detector, e.opts.Poll, e.clock)
	cred, err := poller.Poll(ctx, ch)
	if err != nil {
		return nil, mapExchangeError(ctx, err)
	}
	cred.Email = e.opts.Email
	logger.Info("deep login exchange completed")
	return cred, nil
}

// mapExchangeError folds stage errors into the AuthError taxonomy. Context cancellation
// always aborts, whatever stage observed it.
func mapExchangeError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Kind: AuthAborted, Cause: err}
	}
	switch {
	case errors.Is(err, ErrExchangeFailed):
		return &AuthError{Kind: AuthAborted, Cause: err}
	case errors.Is(err, ErrMaxRetriesExceeded), errors.Is(err, ErrPollExhausted):
		return &AuthError{Kind: AuthTimeout, Cause: err}
	default:
		return &AuthError{Kind: AuthAborted, Cause: err}
	}
}
