package browser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/loginbridge/loginbridge/internal/auth/deeplogin"
	log "github.com/sirupsen/logrus"
)

var errNoControl = errors.New("browser: the system browser exposes no verification controls")

// SystemUI drives a deep-login exchange through the user's own browser. It can open the
// login page and wait for the user to confirm, but it cannot observe the page, so marker
// checks always report absent and no verification control is ever found.
type SystemUI struct {
	// NoBrowser skips opening the browser; the URL is only printed and copied.
	NoBrowser bool
	// Prompt, when set, replaces the interactive confirmation prompt.
	Prompt func(ctx context.Context, message string) error

	out io.Writer
	in  io.Reader

	linesOnce sync.Once
	lines     chan error

	open      func(string) error
	available func() bool
	copyText  func(string) error
}

// NewSystemUI returns a SystemUI reading confirmation from stdin and printing to stdout.
func NewSystemUI(noBrowser bool) *SystemUI {
	return &SystemUI{
		NoBrowser: noBrowser,
		out:       os.Stdout,
		in:        os.Stdin,
		open:      OpenURL,
		available: IsAvailable,
		copyText:  clipboard.WriteAll,
	}
}

var _ deeplogin.UI = (*SystemUI)(nil)

// Has always reports the marker as absent.
func (u *SystemUI) Has(context.Context, deeplogin.Marker) (bool, error) {
	return false, nil
}

// Navigate opens url in the browser. When that is disabled or fails the URL is copied to
// the clipboard and printed for the user to open manually.
func (u *SystemUI) Navigate(_ context.Context, url string) error {
	if !u.NoBrowser {
		if u.available() {
			fmt.Fprintf(u.out, "Opening login page in your browser: %s\n", url)
			err := u.open(url)
			if err == nil {
				return nil
			}
			log.Warnf("failed to open browser automatically: %v", err)
		} else {
			log.Warn("no browser available on this system")
		}
	}

	if err := u.copyText(url); err != nil {
		log.Debugf("clipboard unavailable: %v", err)
		fmt.Fprintf(u.out, "Open this URL to continue the login:\n%s\n", url)
		return nil
	}
	fmt.Fprintf(u.out, "Open this URL to continue the login (copied to clipboard):\n%s\n", url)
	return nil
}

// LocateControl always returns deeplogin.ErrControlNotFound.
func (u *SystemUI) LocateControl(context.Context) (deeplogin.Control, error) {
	return nil, fmt.Errorf("%w: %w", deeplogin.ErrControlNotFound, errNoControl)
}

// Activate is never reached because no control is located.
func (u *SystemUI) Activate(context.Context, deeplogin.Control) error {
	return errNoControl
}

// Confirm waits until the user reports that the login was approved in the browser.
// Input is read by one reader goroutine shared by all calls, so a line typed after a
// cancelled prompt answers the next prompt instead of being lost. The reader lives until
// the input reaches EOF.
func (u *SystemUI) Confirm(ctx context.Context) error {
	const message = "Approve the login in your browser, then press Enter to continue: "
	if u.Prompt != nil {
		return u.Prompt(ctx, message)
	}
	if u.in == nil {
		return nil
	}
	fmt.Fprint(u.out, message)

	u.linesOnce.Do(u.startReader)
	select {
	case err := <-u.lines:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startReader delivers one value per input line. After EOF or a read error the channel
// is closed, so later prompts return immediately.
func (u *SystemUI) startReader() {
	u.lines = make(chan error)
	go func() {
		defer close(u.lines)
		reader := bufio.NewReader(u.in)
		for {
			_, err := reader.ReadString('\n')
			if err != nil {
				if !errors.Is(err, io.EOF) {
					u.lines <- err
				}
				return
			}
			u.lines <- nil
		}
	}()
}
