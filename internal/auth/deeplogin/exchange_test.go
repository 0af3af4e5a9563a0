package deeplogin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

const completedBody = `{"authId":"auth0|user","accessToken":"access-token","refreshToken":"refresh-token"}`

func testOptions(apiBase string) Options {
	opts := DefaultOptions()
	opts.Email = "user@example.com"
	opts.Solver.Attempts = 2
	opts.Poll.LoginBaseURL = "https://login.example.com"
	opts.Poll.APIBaseURL = apiBase
	opts.Poll.MaxAttempts = 5
	opts.Poll.SettleAttempts = 1
	return opts
}

// newTestExchange returns an exchange on a fake clock that records every generated challenge.
func newTestExchange(ui UI, opts Options) (*Exchange, *[]*Challenge) {
	ex := NewExchange(ui, nil, opts)
	ex.clock = newFakeClock()
	var generated []*Challenge
	ex.generate = func() (*Challenge, error) {
		ch, err := GenerateChallenge()
		if err == nil {
			generated = append(generated, ch)
		}
		return ch, err
	}
	return ex, &generated
}

func TestExchangeRunCompletes(t *testing.T) {
	ps := newPollServer(t,
		pollResponse{status: 404},
		pollResponse{status: 200, body: completedBody},
	)
	ui := newFakeUI("code-entry-form", "session-active")
	ex, generated := newTestExchange(ui, testOptions(ps.srv.URL))

	cred, err := ex.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Email != "user@example.com" || cred.AuthID != "auth0|user" {
		t.Fatalf("credential = %+v", cred)
	}
	if cred.AccessToken != "access-token" || cred.RefreshToken != "refresh-token" {
		t.Fatalf("credential tokens = %+v", cred)
	}
	if cred.IssuedAt.IsZero() {
		t.Fatal("IssuedAt not set")
	}

	ch := (*generated)[0]
	if len(ui.navigated) != 1 || ui.navigated[0] != LoginURL("https://login.example.com", ch) {
		t.Fatalf("navigated = %v", ui.navigated)
	}
	for i, q := range ps.queries {
		if q.Get("uuid") != ch.SessionID || q.Get("verifier") != ch.Verifier {
			t.Fatalf("poll %d query = %v, want challenge %s", i, q, ch.SessionID)
		}
	}
	if ui.confirmCalls != 1 {
		t.Fatalf("confirm calls = %d, want 1", ui.confirmCalls)
	}
}

func TestExchangeSkipsVerificationWithoutStages(t *testing.T) {
	ps := newPollServer(t, pollResponse{status: 200, body: completedBody})
	ui := newFakeUI()
	opts := testOptions(ps.srv.URL)
	opts.Stages = 0
	ex, _ := newTestExchange(ui, opts)

	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ui.locateCalls != 0 {
		t.Fatalf("locate calls = %d, want 0", ui.locateCalls)
	}
}

func TestExchangeUsesFreshChallengePerRun(t *testing.T) {
	ps := newPollServer(t, pollResponse{status: 200, body: completedBody})
	opts := testOptions(ps.srv.URL)
	opts.Stages = 0
	ex, generated := newTestExchange(newFakeUI(), opts)

	for i := 0; i < 2; i++ {
		if _, err := ex.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(*generated) != 2 {
		t.Fatalf("generated %d challenges, want 2", len(*generated))
	}
	first, second := (*generated)[0], (*generated)[1]
	if first.SessionID == second.SessionID || first.Verifier == second.Verifier {
		t.Fatal("challenge reused across runs")
	}
	if ps.queries[0].Get("uuid") == ps.queries[1].Get("uuid") {
		t.Fatal("poll reused session id across runs")
	}
}

func TestExchangeCursorIsPerStage(t *testing.T) {
	ps := newPollServer(t, pollResponse{status: 200, body: completedBody})
	ui := newFakeUI()
	opts := testOptions(ps.srv.URL)
	opts.Stages = 2
	ex, _ := newTestExchange(ui, opts)

	// Stage one sees the password form, stage two the sign-up form. The second stage only
	// passes when it starts from a fresh cursor.
	var mu sync.Mutex
	passwordSeen := false
	ui.onHas = func(marker Marker) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		switch marker {
		case "password-form":
			if !passwordSeen {
				passwordSeen = true
				return true, nil
			}
		case "sign-up-form":
			return passwordSeen, nil
		}
		return false, nil
	}

	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// blockingUI parks Navigate until released so a second Run can race the first.
type blockingUI struct {
	*fakeUI
	entered chan struct{}
	release chan struct{}
}

func (b *blockingUI) Navigate(ctx context.Context, url string) error {
	close(b.entered)
	<-b.release
	return b.fakeUI.Navigate(ctx, url)
}

func TestExchangeRejectsConcurrentRun(t *testing.T) {
	ps := newPollServer(t, pollResponse{status: 200, body: completedBody})
	ui := &blockingUI{fakeUI: newFakeUI(), entered: make(chan struct{}), release: make(chan struct{})}
	opts := testOptions(ps.srv.URL)
	opts.Stages = 0
	ex, _ := newTestExchange(ui, opts)

	done := make(chan error, 1)
	go func() {
		_, err := ex.Run(context.Background())
		done <- err
	}()
	<-ui.entered

	if _, err := ex.Run(context.Background()); !errors.Is(err, ErrExchangeInProgress) {
		t.Fatalf("concurrent run err = %v, want ErrExchangeInProgress", err)
	}

	close(ui.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestExchangeErrorMapping(t *testing.T) {
	checkFault := errors.New("page detached")

	tests := []struct {
		name      string
		stages    int
		responses []pollResponse
		setup     func(ui *fakeUI, ex *Exchange)
		cancel    bool
		wantKind  error
		wantCause error
	}{
		{
			name:      "verification budget spent",
			stages:    1,
			responses: []pollResponse{{status: 200, body: completedBody}},
			wantKind:  ErrAuthTimeout,
			wantCause: ErrMaxRetriesExceeded,
		},
		{
			name:      "verification surface broken",
			stages:    1,
			responses: []pollResponse{{status: 200, body: completedBody}},
			setup: func(ui *fakeUI, _ *Exchange) {
				ui.onHas = func(Marker) (bool, error) { return false, checkFault }
			},
			wantKind:  ErrAuthAborted,
			wantCause: ErrExchangeFailed,
		},
		{
			name:      "poll budget spent",
			responses: []pollResponse{{status: 404}},
			wantKind:  ErrAuthTimeout,
			wantCause: ErrPollExhausted,
		},
		{
			name:      "challenge generation failed",
			responses: []pollResponse{{status: 200, body: completedBody}},
			setup: func(_ *fakeUI, ex *Exchange) {
				ex.generate = func() (*Challenge, error) { return nil, fmt.Errorf("entropy unavailable") }
			},
			wantKind: ErrAuthAborted,
		},
		{
			name:      "context cancelled",
			responses: []pollResponse{{status: 404}},
			cancel:    true,
			wantKind:  ErrAuthAborted,
			wantCause: context.Canceled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := newPollServer(t, tt.responses...)
			ui := newFakeUI()
			opts := testOptions(ps.srv.URL)
			opts.Stages = tt.stages
			ex, _ := newTestExchange(ui, opts)
			if tt.setup != nil {
				tt.setup(ui, ex)
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}

			cred, err := ex.Run(ctx)
			if cred != nil {
				t.Fatalf("unexpected credential %+v", cred)
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("err = %T %v, want *AuthError", err, err)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %v", err, tt.wantKind)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Fatalf("err = %v, want cause %v", err, tt.wantCause)
			}
		})
	}
}

func TestExchangeTimeoutIsRetryable(t *testing.T) {
	ps := newPollServer(t, pollResponse{status: 404})
	opts := testOptions(ps.srv.URL)
	opts.Stages = 0
	opts.Poll.MaxAttempts = 2
	ex, _ := newTestExchange(newFakeUI(), opts)

	_, err := ex.Run(context.Background())
	if !IsRetryable(err) {
		t.Fatalf("IsRetryable(%v) = false", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %q", err.Error())
	}
	if ps.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", ps.callCount())
	}
}
