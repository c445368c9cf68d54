package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LaunchFunc starts and closes a headless browser. An empty executable path
// means "let the driver pick its bundled build".
type LaunchFunc func(executablePath string) error

// ProbeResult describes what Probe saw.
type ProbeResult struct {
	BrowsersPath string
	ChromePath   string
	Present      []string
	Absent       []string
	// LaunchedWith is "default" or the executable path that launched.
	LaunchedWith string
	Errors       []error
}

// OK reports whether some launch attempt succeeded.
func (r *ProbeResult) OK() bool {
	return r != nil && r.LaunchedWith != ""
}

// ProbePaths lists the executables checked by Probe.
func ProbePaths() []string {
	return []string{
		"/ms-playwright/chromium-1169/chrome-linux/chrome",
		"/root/.cache/ms-playwright/chromium-1169/chrome-linux/chrome",
		"/ms-browsers/chromium-1169/chrome-linux/chrome",
	}
}

// Probe checks the well-known executable paths and tries a headless launch,
// first with the driver defaults and then with an explicit executable.
func (s *Shim) Probe(paths []string, launch LaunchFunc) *ProbeResult {
	res := &ProbeResult{
		BrowsersPath: envOr("PLAYWRIGHT_BROWSERS_PATH", "Not set"),
		ChromePath:   envOr("CHROME_PATH", "Not set"),
	}
	s.logger.Infof("PLAYWRIGHT_BROWSERS_PATH: %s", res.BrowsersPath)
	s.logger.Infof("CHROME_PATH: %s", res.ChromePath)

	found := ""
	for _, p := range paths {
		if fileExists(p) {
			s.logger.Infof("Found: %s", p)
			res.Present = append(res.Present, p)
			found = p
		} else {
			s.logger.Infof("Missing: %s", p)
			res.Absent = append(res.Absent, p)
		}
	}
	if found == "" {
		if install, ok := s.Latest(); ok {
			found = install.Executable
		}
	}

	if launch == nil {
		res.Errors = append(res.Errors, errors.New("no launcher configured"))
		return res
	}

	err := launch("")
	if err == nil {
		s.logger.Infof("Browser launch successful with default settings")
		res.LaunchedWith = "default"
		return res
	}
	s.logger.Warnf("Default browser launch failed: %v", err)
	res.Errors = append(res.Errors, fmt.Errorf("default launch: %w", err))

	if found == "" {
		return res
	}
	if err := launch(filepath.Clean(found)); err != nil {
		s.logger.Errorf("Explicit path launch failed: %v", err)
		res.Errors = append(res.Errors, fmt.Errorf("launch %s: %w", found, err))
		return res
	}
	s.logger.Infof("Browser launch successful with explicit path: %s", found)
	res.LaunchedWith = found
	return res
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
