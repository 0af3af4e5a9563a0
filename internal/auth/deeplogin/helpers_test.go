package deeplogin

import (
	"context"
	"sync"
	"time"
)

// fakeUI is a scriptable UI collaborator. Visible markers can be swapped between calls
// through onHas, which sees every marker query in order.
type fakeUI struct {
	mu sync.Mutex

	visible map[Marker]bool
	onHas   func(marker Marker) (bool, error)

	locate      func() (Control, error)
	activateErr error
	confirmErr  error
	navigateErr error

	onActivate func()

	navigated     []string
	hasCalls      int
	locateCalls   int
	activateCalls int
	confirmCalls  int
}

func newFakeUI(visible ...Marker) *fakeUI {
	ui := &fakeUI{visible: make(map[Marker]bool)}
	for _, m := range visible {
		ui.visible[m] = true
	}
	return ui
}

func (f *fakeUI) show(markers ...Marker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = make(map[Marker]bool)
	for _, m := range markers {
		f.visible[m] = true
	}
}

func (f *fakeUI) Has(_ context.Context, marker Marker) (bool, error) {
	f.mu.Lock()
	f.hasCalls++
	hook := f.onHas
	visible := f.visible[marker]
	f.mu.Unlock()
	if hook != nil {
		return hook(marker)
	}
	return visible, nil
}

func (f *fakeUI) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return f.navigateErr
}

func (f *fakeUI) LocateControl(context.Context) (Control, error) {
	f.mu.Lock()
	f.locateCalls++
	locate := f.locate
	f.mu.Unlock()
	if locate == nil {
		return nil, ErrControlNotFound
	}
	return locate()
}

func (f *fakeUI) Activate(context.Context, Control) error {
	f.mu.Lock()
	f.activateCalls++
	hook := f.onActivate
	err := f.activateErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeUI) Confirm(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	return f.confirmErr
}

// fakeClock records requested sleeps without blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
