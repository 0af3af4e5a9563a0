// Package browser opens URLs in the system web browser and exposes the browser as the
// UI collaborator of a deep-login exchange.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// linuxBrowsers lists fallback commands in order of preference.
var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens url in the default web browser. It tries open-golang first and falls back
// to platform-specific commands.
func OpenURL(url string) error {
	err := open.Run(url)
	if err == nil {
		log.Debug("opened URL using open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)
	return openURLPlatformSpecific(url)
}

func openURLPlatformSpecific(url string) error {
	name, args, err := platformCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, append(args, url)...)
	log.Debugf("running command: %s %v", cmd.Path, cmd.Args[1:])
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// platformCommand resolves the command used to open a URL on goos.
func platformCommand(goos string, lookPath func(string) (string, error)) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", nil, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		for _, candidate := range linuxBrowsers {
			if _, err := lookPath(candidate); err == nil {
				return candidate, nil, nil
			}
		}
		return "", nil, fmt.Errorf("no suitable browser found on %s", goos)
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// IsAvailable reports whether a command for opening a browser is present. It does not
// open anything.
func IsAvailable() bool {
	name, _, err := platformCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return false
	}
	_, err = exec.LookPath(name)
	return err == nil
}
