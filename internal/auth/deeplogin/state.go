package deeplogin

import (
	"context"
	"fmt"

	"github.com/loginbridge/loginbridge/internal/logging"
)

// VerificationState is the step of the login/verification flow the page currently shows.
// The declaration order is the detection order.
type VerificationState int

const (
	StateSignUp VerificationState = iota
	StatePasswordEntry
	StateCaptchaPending
	StateAccountSettings
	StateSessionActive

	stateCount = int(StateSessionActive) + 1
)

var stateNames = [stateCount]string{
	"sign_up",
	"password_entry",
	"captcha_pending",
	"account_settings",
	"session_active",
}

func (s VerificationState) String() string {
	if s < 0 || int(s) >= stateCount {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// States returns every verification state in detection order.
func States() []VerificationState {
	out := make([]VerificationState, stateCount)
	for i := range out {
		out[i] = VerificationState(i)
	}
	return out
}

// Markers maps each verification state to the page marker that signals it.
type Markers [stateCount]Marker

// DefaultMarkers returns the built-in marker names. UI implementations translate them
// to whatever concrete predicate their page needs.
func DefaultMarkers() Markers {
	return Markers{
		StateSignUp:          "sign-up-form",
		StatePasswordEntry:   "password-form",
		StateCaptchaPending:  "code-entry-form",
		StateAccountSettings: "account-settings",
		StateSessionActive:   "session-active",
	}
}

// For returns the marker of state s.
func (m Markers) For(s VerificationState) Marker {
	if s < 0 || int(s) >= stateCount {
		return ""
	}
	return m[s]
}

// WithOverrides returns a copy of m where every non-empty override replaces the default.
func (m Markers) WithOverrides(overrides Markers) Markers {
	out := m
	for i, marker := range overrides {
		if marker != "" {
			out[i] = marker
		}
	}
	return out
}

// Cursor is the exchange-scoped detection floor: the lowest state index still eligible
// in an ordered scan. It starts at 0 and moves past StateSignUp the first time any later
// state matches. A zero Cursor is ready to use; allocate one per exchange.
type Cursor struct {
	floor int
}

// NewCursor returns a cursor at the start of an exchange.
func NewCursor() *Cursor { return &Cursor{} }

// Floor returns the lowest eligible state index.
func (c *Cursor) Floor() int { return c.floor }

// Reset moves the cursor back to the start of an exchange.
func (c *Cursor) Reset() { c.floor = 0 }

// observe records a match at index idx.
func (c *Cursor) observe(idx int) {
	if idx > 0 && c.floor == 0 {
		c.floor = 1
	}
}

// Detector classifies the current page into a VerificationState by asking the UI
// collaborator about each state's marker.
type Detector struct {
	ui      UI
	markers Markers
}

// NewDetector creates a detector over ui using markers.
func NewDetector(ui UI, markers Markers) *Detector {
	return &Detector{ui: ui, markers: markers}
}

// Detect scans the states in order and returns the first whose marker matches.
// StateSignUp is skipped once cursor has moved past it, so a stale sign-up marker that
// lingers on later pages is reported at most at the start of an exchange. The second
// return value is false when nothing matches. A collaborator error stops the scan.
func (d *Detector) Detect(ctx context.Context, cursor *Cursor) (VerificationState, bool, error) {
	if cursor == nil {
		cursor = NewCursor()
	}
	for idx := cursor.floor; idx < stateCount; idx++ {
		state := VerificationState(idx)
		ok, err := d.has(ctx, state)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		cursor.observe(idx)
		logging.FromContext(ctx).WithField("state", state).Debug("verification state detected")
		return state, true, nil
	}
	return 0, false, nil
}

// DetectExpected checks only the marker of state. It neither reads nor moves any cursor.
func (d *Detector) DetectExpected(ctx context.Context, state VerificationState) (bool, error) {
	ok, err := d.has(ctx, state)
	if err != nil {
		return false, err
	}
	if ok {
		logging.FromContext(ctx).WithField("state", state).Debug("verification state detected")
	}
	return ok, nil
}

func (d *Detector) has(ctx context.Context, state VerificationState) (bool, error) {
	marker := d.markers.For(state)
	if marker == "" {
		return false, nil
	}
	ok, err := d.ui.Has(ctx, marker)
	if err != nil {
		return false, fmt.Errorf("deeplogin: check %s marker: %w", state, err)
	}
	return ok, nil
}
