// Package provision makes a Playwright-installed Chromium discoverable under
// the fixed paths the agent runtime expects, and probes that it launches.
//
// It is meant to run once at container start:
//
//	shim := provision.NewShim(logger)
//	report, err := shim.Fix()
//	if errors.Is(err, provision.ErrNoInstall) {
//	    os.Exit(1)
//	}
package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/entrhq/pilot/pkg/logging"
)

// ErrNoInstall is returned when no Chromium installation is found in any root.
var ErrNoInstall = errors.New("no Chrome installations found")

const (
	chromeLinuxDir = "chrome-linux"
	chromeBinary   = "chrome"
)

var chromiumDirGlob = glob.MustCompile("chromium-*")

// DefaultRoots lists where the Playwright installer places browsers.
// PLAYWRIGHT_BROWSERS_PATH is checked first when set.
func DefaultRoots() []string {
	roots := []string{}
	if p := os.Getenv("PLAYWRIGHT_BROWSERS_PATH"); p != "" && p != "0" {
		roots = append(roots, p)
	}
	roots = append(roots, "/root/.cache/ms-playwright", "/ms-playwright")
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".cache", "ms-playwright"))
	}
	return dedupe(roots)
}

// DefaultTargets lists the chrome-linux directories the runtime looks for.
func DefaultTargets() []string {
	return []string{
		"/ms-playwright/chromium-1169/chrome-linux",
		"/ms-browsers/chromium-1169/chrome-linux",
	}
}

// Install is a discovered Chromium build.
type Install struct {
	// Dir is the chromium-<revision> directory.
	Dir string
	// Executable is <Dir>/chrome-linux/chrome.
	Executable string
}

// ChromeLinux returns the directory holding the executable.
func (i Install) ChromeLinux() string {
	return filepath.Dir(i.Executable)
}

// Report summarizes a Fix run.
type Report struct {
	Install  Install
	Found    []Install
	Links    map[string]string
	Verified []string
	Missing  []string
}

// OK reports whether every target resolved after linking.
func (r *Report) OK() bool {
	return r != nil && len(r.Missing) == 0 && len(r.Verified) > 0
}

// Shim links the newest Chromium install into the target locations.
type Shim struct {
	Roots   []string
	Targets []string
	logger  *logging.Logger
}

// NewShim creates a shim over the default roots and targets.
func NewShim(logger *logging.Logger) *Shim {
	return &Shim{
		Roots:   DefaultRoots(),
		Targets: DefaultTargets(),
		logger:  logger,
	}
}

// Discover returns every install found under the roots, ordered by the
// basename of the chromium directory. The last entry is the newest.
func (s *Shim) Discover() []Install {
	var found []Install
	seen := make(map[string]bool)

	for _, root := range s.Roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		s.logger.Infof("Found Playwright path: %s", root)

		for _, entry := range entries {
			if !chromiumDirGlob.Match(entry.Name()) {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			exe := filepath.Join(dir, chromeLinuxDir, chromeBinary)
			if !fileExists(exe) {
				continue
			}
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				if seen[resolved] {
					continue
				}
				seen[resolved] = true
			}
			s.logger.Infof("Found Chrome at: %s", exe)
			found = append(found, Install{Dir: dir, Executable: exe})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return filepath.Base(found[i].Dir) < filepath.Base(found[j].Dir)
	})
	return found
}

// Latest returns the newest install.
func (s *Shim) Latest() (Install, bool) {
	found := s.Discover()
	if len(found) == 0 {
		return Install{}, false
	}
	return found[len(found)-1], true
}

// Fix links every target directory to the newest install's chrome-linux
// directory, replacing whatever is there, then verifies the result.
func (s *Shim) Fix() (*Report, error) {
	found := s.Discover()
	if len(found) == 0 {
		s.logger.Errorf("No Chrome installations found in %v", s.Roots)
		return nil, ErrNoInstall
	}

	report := &Report{
		Install: found[len(found)-1],
		Found:   found,
		Links:   make(map[string]string, len(s.Targets)),
	}
	s.logger.Infof("Using latest Chrome: %s", report.Install.Executable)

	actual := report.Install.ChromeLinux()
	for _, target := range s.Targets {
		if sameFile(target, actual) {
			report.Links[target] = actual
			continue
		}
		if err := replaceWithSymlink(actual, target); err != nil {
			return report, fmt.Errorf("failed to link %s: %w", target, err)
		}
		s.logger.Infof("Created symlink: %s -> %s", target, actual)
		report.Links[target] = actual
	}

	report.Verified, report.Missing = s.Verify()
	for _, m := range report.Missing {
		s.logger.Errorf("Failed to create: %s", m)
	}
	return report, nil
}

// Verify checks that <target>/chrome exists for each target.
func (s *Shim) Verify() (verified, missing []string) {
	for _, target := range s.Targets {
		exe := filepath.Join(target, chromeBinary)
		if fileExists(exe) {
			verified = append(verified, exe)
		} else {
			missing = append(missing, exe)
		}
	}
	return verified, missing
}

func replaceWithSymlink(actual, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
			err = os.Remove(target)
		} else {
			err = os.RemoveAll(target)
		}
		if err != nil {
			return err
		}
	}
	return os.Symlink(actual, target)
}

// sameFile reports whether target already resolves to actual.
func sameFile(target, actual string) bool {
	a, err := os.Stat(target)
	if err != nil {
		return false
	}
	b, err := os.Stat(actual)
	if err != nil {
		return false
	}
	info, err := os.Lstat(target)
	if err != nil {
		return false
	}
	// A real directory that happens to be the install itself is left alone.
	return os.SameFile(a, b) && (info.Mode()&os.ModeSymlink != 0 || filepath.Clean(target) == filepath.Clean(actual))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		clean := filepath.Clean(s)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, s)
	}
	return out
}
