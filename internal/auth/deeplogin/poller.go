package deeplogin

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/loginbridge/loginbridge/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// loginPath is the browser page that starts a deep login for a challenge.
	loginPath = "/loginDeepControl"
	// pollPath is the backend endpoint reporting the result of a deep login.
	pollPath = "/auth/poll"
	// loginMode is the fixed mode marker of the login URL.
	loginMode = "login"

	// maxPollBodySize caps how much of a poll response is read.
	maxPollBodySize = 1 << 20
)

// PollOptions configures the authorization poller.
type PollOptions struct {
	// LoginBaseURL is the base of the browser login page.
	LoginBaseURL string
	// APIBaseURL is the base of the poll endpoint.
	APIBaseURL string
	// MaxAttempts is the number of poll requests before giving up.
	MaxAttempts int
	// Interval is the fixed wait between two poll requests.
	Interval time.Duration
	// SettleAttempts bounds the wait for the session marker after navigation.
	SettleAttempts int
	// SettleInterval is the wait between two session marker checks.
	SettleInterval time.Duration
	// ConfirmDelay is waited after the session check, before the confirmation action.
	ConfirmDelay time.Duration
}

// DefaultPollOptions returns the stock budget: 30 polls two seconds apart, up to three
// session checks two seconds apart and a two second pause before confirming. Base URLs
// must be filled in by the caller.
func DefaultPollOptions() PollOptions {
	return PollOptions{
		MaxAttempts:    30,
		Interval:       2 * time.Second,
		SettleAttempts: 3,
		SettleInterval: 2 * time.Second,
		ConfirmDelay:   2 * time.Second,
	}
}

// OutcomeKind classifies a single poll response.
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeComplete
	OutcomeTransientError
	OutcomeExhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeComplete:
		return "complete"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// PollOutcome is the classified result of one poll request.
type PollOutcome struct {
	Kind         OutcomeKind
	StatusCode   int
	AuthID       string
	AccessToken  string
	RefreshToken string
	// Cause is set for OutcomeTransientError.
	Cause error
}

// Poller opens the deep-login page for a challenge and polls the backend until the
// login is linked to the challenge's session id.
type Poller struct {
	httpClient *http.Client
	ui         UI
	detector   *Detector
	opts       PollOptions
	clock      Clock
}

// NewPoller creates a poller. A nil httpClient uses http.DefaultClient and a nil clock
// uses wall-clock time.
func NewPoller(httpClient *http.Client, ui UI, detector *Detector, opts PollOptions, clock Clock) *Poller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clock == nil {
		clock = realClock{}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Poller{
		httpClient: httpClient,
		ui:         ui,
		detector:   detector,
		opts:       opts,
		clock:      clock,
	}
}

// LoginURL builds the deep-login page URL for ch below base.
func LoginURL(base string, ch *Challenge) string {
	return fmt.Sprintf("%s%s?challenge=%s&uuid=%s&mode=%s",
		strings.TrimRight(base, "/"), loginPath,
		url.QueryEscape(ch.Challenge), url.QueryEscape(ch.SessionID), loginMode)
}

// PollURL builds the backend poll URL for ch below base.
func PollURL(base string, ch *Challenge) string {
	return fmt.Sprintf("%s%s?uuid=%s&verifier=%s",
		strings.TrimRight(base, "/"), pollPath,
		url.QueryEscape(ch.SessionID), url.QueryEscape(ch.Verifier))
}

// Poll runs the whole authorization step for ch: navigate to the login page, give the
// page a bounded time to show an active session, trigger the confirmation action, and
// poll the backend. UI failures are logged and never abort the exchange; the backend
// poll decides the result.
func (p *Poller) Poll(ctx context.Context, ch *Challenge) (*Credential, error) {
	if ch == nil {
		return nil, fmt.Errorf("deeplogin: challenge is nil")
	}
	logger := logging.FromContext(ctx).WithField("session", ch.SessionID)

	loginURL := LoginURL(p.opts.LoginBaseURL, ch)
	if err := p.ui.Navigate(ctx, loginURL); err != nil {
		logger.WithError(err).Warn("failed to open login page")
	}

	p.awaitSession(ctx, logger)

	if p.opts.ConfirmDelay > 0 {
		if err := p.clock.Sleep(ctx, p.opts.ConfirmDelay); err != nil {
			return nil, fmt.Errorf("deeplogin: login interrupted before confirmation: %w", err)
		}
	}

	if err := p.ui.Confirm(ctx); err != nil {
		logger.WithError(err).Warn("confirmation action failed, relying on backend poll")
	}

	return p.PollBackend(ctx, ch)
}

// awaitSession waits up to SettleAttempts checks for the session marker. Running out of
// checks is not an error.
func (p *Poller) awaitSession(ctx context.Context, logger *log.Entry) {
	if p.detector == nil {
		return
	}
	for attempt := 1; attempt <= p.opts.SettleAttempts; attempt++ {
		ok, err := p.detector.DetectExpected(ctx, StateSessionActive)
		if err != nil {
			logger.WithError(err).WithField("attempt", attempt).Debug("session check failed")
		}
		if ok {
			return
		}
		if attempt < p.opts.SettleAttempts {
			if err = p.clock.Sleep(ctx, p.opts.SettleInterval); err != nil {
				return
			}
		}
	}
	logger.Debug("session marker not seen, continuing")
}

// PollBackend issues up to MaxAttempts poll requests, Interval apart, and returns the
// credential of the first completed response. Pending and failed requests only consume
// the budget. When the budget is spent it returns a PollError of kind PollExhausted; when
// ctx ends first it returns the context error.
func (p *Poller) PollBackend(ctx context.Context, ch *Challenge) (*Credential, error) {
	pollURL := PollURL(p.opts.APIBaseURL, ch)
	logger := logging.FromContext(ctx).WithField("session", ch.SessionID)

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		outcome := p.pollOnce(ctx, pollURL)
		entry := logger.WithFields(log.Fields{"attempt": attempt, "status": outcome.StatusCode})

		switch outcome.Kind {
		case OutcomeComplete:
			entry.Info("login completed")
			return &Credential{
				AuthID:       outcome.AuthID,
				AccessToken:  outcome.AccessToken,
				RefreshToken: outcome.RefreshToken,
				IssuedAt:     p.clock.Now(),
			}, nil
		case OutcomePending:
			entry.Debug("login not completed yet")
		default:
			lastErr = outcome.Cause
			entry.WithError(outcome.Cause).Warn("poll attempt failed")
		}

		if attempt < p.opts.MaxAttempts {
			if err := p.clock.Sleep(ctx, p.opts.Interval); err != nil {
				return nil, fmt.Errorf("deeplogin: polling interrupted after %d attempt(s): %w", attempt, err)
			}
		}
	}

	logger.Warnf("login polling timed out after %d attempt(s)", p.opts.MaxAttempts)
	return nil, &PollError{Kind: PollExhausted, Attempts: p.opts.MaxAttempts, Cause: lastErr}
}

// pollOnce performs one poll request and classifies the response.
func (p *Poller) pollOnce(ctx context.Context, pollURL string) PollOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return transientOutcome(0, fmt.Errorf("create poll request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return transientOutcome(0, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("deeplogin poll: close body error: %v", errClose)
		}
	}()

	switch resp.StatusCode {
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPollBodySize))
		return PollOutcome{Kind: OutcomePending, StatusCode: resp.StatusCode}
	case http.StatusOK:
	default:
		return transientOutcome(resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := readPollBody(resp)
	if err != nil {
		return transientOutcome(resp.StatusCode, err)
	}
	return classifyCompletedBody(body)
}

// classifyCompletedBody turns a 200 body into OutcomeComplete when authId, accessToken
// and refreshToken are all present, and into OutcomeTransientError otherwise.
func classifyCompletedBody(body []byte) PollOutcome {
	if !gjson.ValidBytes(body) {
		return transientOutcome(http.StatusOK, fmt.Errorf("malformed poll response"))
	}
	fields := gjson.GetManyBytes(body, "authId", "accessToken", "refreshToken")
	for i, name := range []string{"authId", "accessToken", "refreshToken"} {
		if !fields[i].Exists() || fields[i].Type == gjson.Null {
			return transientOutcome(http.StatusOK, fmt.Errorf("poll response missing %s", name))
		}
	}
	return PollOutcome{
		Kind:         OutcomeComplete,
		StatusCode:   http.StatusOK,
		AuthID:       fields[0].String(),
		AccessToken:  fields[1].String(),
		RefreshToken: fields[2].String(),
	}
}

func transientOutcome(status int, cause error) PollOutcome {
	return PollOutcome{
		Kind:       OutcomeTransientError,
		StatusCode: status,
		Cause:      &PollError{Kind: PollTransport, StatusCode: status, Cause: cause},
	}
}

// readPollBody reads the response body, decoding it according to Content-Encoding.
func readPollBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBodySize))
	if err != nil {
		return nil, fmt.Errorf("read poll response: %w", err)
	}
	return decodeBody(resp.Header.Get("Content-Encoding"), raw)
}

// decodeBody decompresses data encoded with gzip, deflate, br or zstd. Unknown or empty
// encodings are returned unchanged.
func decodeBody(encoding string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode gzip poll response: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = fl.Close() }()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(data))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode zstd poll response: %w", err)
		}
		defer zr.Close()
		reader = zr
	default:
		return data, nil
	}
	decoded, err := io.ReadAll(io.LimitReader(reader, maxPollBodySize))
	if err != nil {
		return nil, fmt.Errorf("decode %s poll response: %w", encoding, err)
	}
	return decoded, nil
}
