package browser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/loginbridge/loginbridge/internal/auth/deeplogin"
)

func newTestUI(noBrowser bool) (*SystemUI, *bytes.Buffer, *[]string, *[]string) {
	out := &bytes.Buffer{}
	var opened, copied []string
	ui := &SystemUI{
		NoBrowser: noBrowser,
		out:       out,
		in:        strings.NewReader("\n"),
		open: func(url string) error {
			opened = append(opened, url)
			return nil
		},
		available: func() bool { return true },
		copyText: func(text string) error {
			copied = append(copied, text)
			return nil
		},
	}
	return ui, out, &opened, &copied
}

func TestNavigateOpensBrowser(t *testing.T) {
	ui, _, opened, copied := newTestUI(false)
	if err := ui.Navigate(context.Background(), "https://login.example.com/x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*opened) != 1 || (*opened)[0] != "https://login.example.com/x" {
		t.Fatalf("opened = %v", *opened)
	}
	if len(*copied) != 0 {
		t.Fatalf("copied = %v, want none", *copied)
	}
}

func TestNavigateFallsBackToClipboard(t *testing.T) {
	ui, out, opened, copied := newTestUI(false)
	ui.open = func(string) error { return errors.New("no display") }

	if err := ui.Navigate(context.Background(), "https://login.example.com/x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*opened) != 0 {
		t.Fatalf("opened = %v", *opened)
	}
	if len(*copied) != 1 {
		t.Fatalf("copied = %v, want the URL", *copied)
	}
	if !strings.Contains(out.String(), "copied to clipboard") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestNavigateNoBrowserPrintsURL(t *testing.T) {
	ui, out, opened, _ := newTestUI(true)
	ui.copyText = func(string) error { return errors.New("no clipboard") }

	if err := ui.Navigate(context.Background(), "https://login.example.com/x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*opened) != 0 {
		t.Fatalf("browser opened with NoBrowser set")
	}
	if !strings.Contains(out.String(), "https://login.example.com/x") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestSystemUICannotObservePage(t *testing.T) {
	ui, _, _, _ := newTestUI(false)
	ok, err := ui.Has(context.Background(), "session-active")
	if ok || err != nil {
		t.Fatalf("Has = %v, %v", ok, err)
	}
	if _, err = ui.LocateControl(context.Background()); !errors.Is(err, deeplogin.ErrControlNotFound) {
		t.Fatalf("LocateControl err = %v", err)
	}
}

func TestConfirmReadsLine(t *testing.T) {
	ui, out, _, _ := newTestUI(false)
	if err := ui.Confirm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "press Enter") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestConfirmHonoursContext(t *testing.T) {
	ui, _, _, _ := newTestUI(false)
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	ui.in = pr

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ui.Confirm(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConfirmKeepsInputAfterCancelledPrompt(t *testing.T) {
	ui, _, _, _ := newTestUI(false)
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	ui.in = pr

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ui.Confirm(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("first err = %v, want context.Canceled", err)
	}

	done := make(chan error, 1)
	go func() { done <- ui.Confirm(context.Background()) }()
	if _, err := pw.Write([]byte("\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("second err = %v", err)
	}
}

func TestConfirmSharesOneReader(t *testing.T) {
	ui, _, _, _ := newTestUI(false)
	ui.in = strings.NewReader("\n\n")
	for i := 0; i < 3; i++ {
		if err := ui.Confirm(context.Background()); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}
}

func TestConfirmUsesPrompt(t *testing.T) {
	ui, _, _, _ := newTestUI(false)
	var got string
	ui.Prompt = func(_ context.Context, message string) error {
		got = message
		return nil
	}
	if err := ui.Confirm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatal("prompt not called")
	}
}

func TestPlatformCommand(t *testing.T) {
	found := func(string) (string, error) { return "/usr/bin/x", nil }
	missing := func(string) (string, error) { return "", errors.New("not found") }

	if name, args, err := platformCommand("windows", missing); err != nil || name != "rundll32" || len(args) != 1 {
		t.Fatalf("windows = %q %v %v", name, args, err)
	}
	if name, _, err := platformCommand("linux", found); err != nil || name != "xdg-open" {
		t.Fatalf("linux = %q %v", name, err)
	}
	if _, _, err := platformCommand("linux", missing); err == nil {
		t.Fatal("expected error without browsers")
	}
	if _, _, err := platformCommand("plan9", found); err == nil {
		t.Fatal("expected error for unsupported os")
	}
}
