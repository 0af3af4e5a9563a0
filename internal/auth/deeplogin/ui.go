package deeplogin

import (
	"context"
	"errors"
)

// ErrControlNotFound is returned by UI.LocateControl when no verification control is on screen.
var ErrControlNotFound = errors.New("deeplogin: verification control not found")

// Marker names a page predicate the UI collaborator knows how to evaluate
// (a selector, a text fragment, or anything else the implementation understands).
type Marker string

// Control is an opaque handle to an interactive verification control returned by
// UI.LocateControl and handed back to UI.Activate.
type Control any

// UI is the automation surface an exchange drives. Implementations own one browser
// session; an exchange never shares it with another exchange. Every method may fail
// with an opaque error; callers decide which failures are fatal.
type UI interface {
	// Has reports whether marker currently matches the visible page.
	Has(ctx context.Context, marker Marker) (bool, error)
	// Navigate loads url in the controlled view.
	Navigate(ctx context.Context, url string) error
	// LocateControl finds the interactive verification control, including controls nested
	// in embedded or isolated documents. It returns ErrControlNotFound when there is none.
	LocateControl(ctx context.Context) (Control, error)
	// Activate performs the activation gesture on a control returned by LocateControl.
	Activate(ctx context.Context, control Control) error
	// Confirm performs the one-shot confirmation action that links the login to the session id.
	Confirm(ctx context.Context) error
}
