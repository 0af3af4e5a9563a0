package deeplogin

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func testSolverOptions(attempts int) SolverOptions {
	return SolverOptions{
		Attempts:      attempts,
		ActivateDelay: DelayRange{Min: time.Second, Max: 3 * time.Second},
		RetryDelay:    DelayRange{Min: time.Second, Max: 2 * time.Second},
		Settle:        2 * time.Second,
	}
}

func newTestSolver(ui *fakeUI, clock *fakeClock, attempts int) *Solver {
	s := NewSolver(ui, NewDetector(ui, DefaultMarkers()), testSolverOptions(attempts), clock)
	s.jitter = func(n int64) int64 { return n - 1 }
	return s
}

func TestSolveActivatesControlAndPasses(t *testing.T) {
	markers := DefaultMarkers()
	ui := newFakeUI()
	ui.locate = func() (Control, error) { return "checkbox", nil }
	ui.onActivate = func() { ui.show(markers.For(StatePasswordEntry)) }
	clock := newFakeClock()

	state, err := newTestSolver(ui, clock, 2).Solve(context.Background(), NewCursor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StatePasswordEntry {
		t.Fatalf("state = %s, want password_entry", state)
	}
	if ui.activateCalls != 1 {
		t.Fatalf("activate calls = %d, want 1", ui.activateCalls)
	}
	want := []time.Duration{3 * time.Second, 2 * time.Second}
	if got := clock.recorded(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
}

func TestSolvePassesWithoutControl(t *testing.T) {
	markers := DefaultMarkers()
	ui := newFakeUI(markers.For(StateAccountSettings))
	clock := newFakeClock()

	state, err := newTestSolver(ui, clock, 3).Solve(context.Background(), NewCursor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateAccountSettings {
		t.Fatalf("state = %s", state)
	}
	if ui.activateCalls != 0 || ui.locateCalls != 1 {
		t.Fatalf("locate=%d activate=%d, want 1/0", ui.locateCalls, ui.activateCalls)
	}
	if len(clock.recorded()) != 0 {
		t.Fatalf("unexpected sleeps: %v", clock.recorded())
	}
}

func TestSolveMaxRetriesExceeded(t *testing.T) {
	ui := newFakeUI()
	clock := newFakeClock()

	_, err := newTestSolver(ui, clock, 3).Solve(context.Background(), NewCursor())
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("err = %v, want max retries exceeded", err)
	}
	var verr *VerificationError
	if !errors.As(err, &verr) || verr.Attempts != 3 {
		t.Fatalf("err = %#v, want 3 attempts", err)
	}
	if ui.locateCalls != 3 {
		t.Fatalf("locate calls = %d, want 3", ui.locateCalls)
	}
	want := []time.Duration{2 * time.Second, 2 * time.Second}
	if got := clock.recorded(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
}

func TestSolveSwallowsLocateAndActivateFaults(t *testing.T) {
	markers := DefaultMarkers()
	ui := newFakeUI()
	rounds := 0
	ui.locate = func() (Control, error) {
		rounds++
		if rounds == 1 {
			return nil, errors.New("frame detached")
		}
		return "checkbox", nil
	}
	ui.activateErr = errors.New("element not interactable")
	ui.onActivate = func() {
		if rounds == 3 {
			ui.show(markers.For(StateCaptchaPending))
		}
	}
	clock := newFakeClock()

	state, err := newTestSolver(ui, clock, 3).Solve(context.Background(), NewCursor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateCaptchaPending {
		t.Fatalf("state = %s", state)
	}
	if ui.activateCalls != 2 {
		t.Fatalf("activate calls = %d, want 2", ui.activateCalls)
	}
}

func TestSolvePostActivationCheckFaultIsSwallowed(t *testing.T) {
	markers := DefaultMarkers()
	ui := newFakeUI()
	ui.locate = func() (Control, error) { return "checkbox", nil }
	calls := 0
	ui.onHas = func(m Marker) (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("navigation in progress")
		}
		return m == markers.For(StateSessionActive), nil
	}

	state, err := newTestSolver(ui, newFakeClock(), 1).Solve(context.Background(), NewCursor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateSessionActive {
		t.Fatalf("state = %s", state)
	}
}

func TestSolveFinalCheckFaultAborts(t *testing.T) {
	boom := errors.New("browser disconnected")
	ui := newFakeUI()
	ui.onHas = func(Marker) (bool, error) { return false, boom }

	_, err := newTestSolver(ui, newFakeClock(), 5).Solve(context.Background(), NewCursor())
	if !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("err = %v, want exchange failed", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want cause %v", err, boom)
	}
	if ui.locateCalls != 1 {
		t.Fatalf("locate calls = %d, want abort after first round", ui.locateCalls)
	}
}

func TestSolveCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSolver(newFakeUI(), newFakeClock(), 3).Solve(ctx, NewCursor())
	if !errors.Is(err, ErrExchangeFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want exchange failed caused by cancellation", err)
	}
}

func TestSolverPickStaysInRange(t *testing.T) {
	s := NewSolver(newFakeUI(), nil, SolverOptions{}, nil)
	r := DelayRange{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	for i := 0; i < 200; i++ {
		d := s.pick(r)
		if d < r.Min || d > r.Max {
			t.Fatalf("pick() = %v outside %v..%v", d, r.Min, r.Max)
		}
	}
	if d := s.pick(DelayRange{Min: time.Second}); d != time.Second {
		t.Fatalf("pick() of empty range = %v", d)
	}
	if s.opts.Attempts != 1 {
		t.Fatalf("attempts = %d, want clamped to 1", s.opts.Attempts)
	}
}
