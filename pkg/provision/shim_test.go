package provision

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeInstall(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name, chromeLinuxDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	exe := filepath.Join(dir, chromeBinary)
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755))
	return exe
}

func newTestShim(t *testing.T) (*Shim, string) {
	t.Helper()
	base := t.TempDir()
	return &Shim{
		Roots: []string{filepath.Join(base, "cache"), filepath.Join(base, "ms-playwright")},
		Targets: []string{
			filepath.Join(base, "ms-playwright", "chromium-1169", "chrome-linux"),
			filepath.Join(base, "ms-browsers", "chromium-1169", "chrome-linux"),
		},
	}, base
}

func TestDiscoverOrdersByRevision(t *testing.T) {
	shim, base := newTestShim(t)
	makeInstall(t, filepath.Join(base, "cache"), "chromium-1100")
	newest := makeInstall(t, filepath.Join(base, "cache"), "chromium-1181")
	makeInstall(t, filepath.Join(base, "ms-playwright"), "chromium-1150")
	// Not a chromium install.
	makeInstall(t, filepath.Join(base, "cache"), "firefox-1400")
	// Matching name without an executable.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "cache", "chromium-9999"), 0755))

	found := shim.Discover()
	require.Len(t, found, 3)
	assert.Equal(t, "chromium-1100", filepath.Base(found[0].Dir))
	assert.Equal(t, "chromium-1181", filepath.Base(found[2].Dir))

	latest, ok := shim.Latest()
	require.True(t, ok)
	assert.Equal(t, newest, latest.Executable)
}

func TestFixNoInstall(t *testing.T) {
	shim, _ := newTestShim(t)
	report, err := shim.Fix()
	assert.ErrorIs(t, err, ErrNoInstall)
	assert.Nil(t, report)
}

func TestFixCreatesSymlinks(t *testing.T) {
	shim, base := newTestShim(t)
	exe := makeInstall(t, filepath.Join(base, "cache"), "chromium-1181")

	// A stale directory in the way of the second target.
	stale := shim.Targets[1]
	require.NoError(t, os.MkdirAll(stale, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "old"), []byte("x"), 0600))

	report, err := shim.Fix()
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, exe, report.Install.Executable)
	assert.Len(t, report.Verified, 2)
	assert.Empty(t, report.Missing)

	for _, target := range shim.Targets {
		info, err := os.Lstat(target)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink, target)

		dest, err := os.Readlink(target)
		require.NoError(t, err)
		assert.Equal(t, filepath.Dir(exe), dest)
		assert.FileExists(t, filepath.Join(target, chromeBinary))
	}
	assert.NoFileExists(t, filepath.Join(stale, "old"))
}

func TestFixIsIdempotent(t *testing.T) {
	shim, base := newTestShim(t)
	makeInstall(t, filepath.Join(base, "cache"), "chromium-1181")

	_, err := shim.Fix()
	require.NoError(t, err)
	report, err := shim.Fix()
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestFixLeavesInstallAtTargetAlone(t *testing.T) {
	shim, base := newTestShim(t)
	exe := makeInstall(t, filepath.Join(base, "ms-playwright"), "chromium-1169")

	report, err := shim.Fix()
	require.NoError(t, err)
	assert.True(t, report.OK())

	info, err := os.Lstat(shim.Targets[0])
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.FileExists(t, exe)
}

func TestVerifyReportsMissing(t *testing.T) {
	shim, _ := newTestShim(t)
	verified, missing := shim.Verify()
	assert.Empty(t, verified)
	assert.Len(t, missing, 2)
}

func TestProbe(t *testing.T) {
	shim, base := newTestShim(t)
	exe := makeInstall(t, filepath.Join(base, "cache"), "chromium-1181")
	t.Setenv("PLAYWRIGHT_BROWSERS_PATH", "")
	t.Setenv("CHROME_PATH", "/opt/chrome")

	t.Run("default launch works", func(t *testing.T) {
		var calls []string
		res := shim.Probe([]string{exe}, func(p string) error {
			calls = append(calls, p)
			return nil
		})
		assert.True(t, res.OK())
		assert.Equal(t, "default", res.LaunchedWith)
		assert.Equal(t, []string{""}, calls)
		assert.Equal(t, "Not set", res.BrowsersPath)
		assert.Equal(t, "/opt/chrome", res.ChromePath)
		assert.Equal(t, []string{exe}, res.Present)
	})

	t.Run("falls back to explicit path", func(t *testing.T) {
		var calls []string
		res := shim.Probe([]string{filepath.Join(base, "nope")}, func(p string) error {
			calls = append(calls, p)
			if p == "" {
				return errors.New("executable doesn't exist")
			}
			return nil
		})
		assert.True(t, res.OK())
		assert.Equal(t, exe, res.LaunchedWith)
		assert.Equal(t, []string{"", exe}, calls)
		assert.Len(t, res.Absent, 1)
		assert.Len(t, res.Errors, 1)
	})

	t.Run("everything fails", func(t *testing.T) {
		res := shim.Probe(nil, func(string) error { return errors.New("boom") })
		assert.False(t, res.OK())
		assert.Len(t, res.Errors, 2)
	})
}
