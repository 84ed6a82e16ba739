// Package browser opens URLs in the user's default web browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// launcher starts the platform browser command. Swapped out in tests so no
// browser actually opens.
var launcher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// Open opens the given URL in the default web browser on Linux, macOS or
// Windows. The browser is started in the background; Open does not wait for
// it. Only http and https URLs are accepted, since the URL ultimately comes
// from a server response and is handed to a shell command.
//
// Callers treat a failure as loss of a convenience, not a hard error — the
// user can always open the printed URL by hand.
func Open(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q", parsed.Scheme)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", rawURL)
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", rawURL)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := launcher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
