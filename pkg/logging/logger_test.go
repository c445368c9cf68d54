package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points the package at a temporary directory and resets global state.
func setupTestDir(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir, origInitErr := logDir, initErr
	origSessionID := sessionID
	origLevel, origMirror := minLevel, mirror

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	minLevel = LevelDebug
	mirror = nil

	t.Cleanup(func() {
		logDir, initErr = origLogDir, origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
		minLevel, mirror = origLevel, origMirror
	})
	return tempDir
}

func readLog(t *testing.T, l *Logger) string {
	t.Helper()
	content, err := os.ReadFile(l.LogPath())
	require.NoError(t, err)
	return string(content)
}

func TestNewLogger(t *testing.T) {
	dir := setupTestDir(t)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "test-component", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	assert.Equal(t, dir, filepath.Dir(logger.LogPath()))
	assert.FileExists(t, logger.LogPath())
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)
	defer logger.Close()

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	content := readLog(t, logger)
	for _, pattern := range []string{
		"[test] [INFO] Test message 123",
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	} {
		assert.Contains(t, content, pattern)
	}
}

func TestLevelThreshold(t *testing.T) {
	setupTestDir(t)
	SetLevel(LevelWarn)

	logger, err := NewLogger("lvl")
	require.NoError(t, err)
	defer logger.Close()

	logger.Debugf("hidden debug")
	logger.Infof("hidden info")
	logger.Warnf("shown warn")

	content := readLog(t, logger)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "shown warn")
}

func TestMirror(t *testing.T) {
	setupTestDir(t)
	var buf bytes.Buffer
	SetMirror(&buf)

	logger, err := NewLogger("mirror")
	require.NoError(t, err)
	defer logger.Close()

	logger.Infof("hello")
	assert.Contains(t, buf.String(), "[mirror] [INFO] hello")
}

func TestMultipleComponentsShareFile(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("component1")
	require.NoError(t, err)
	defer logger1.Close()

	logger2, err := NewLogger("component2")
	require.NoError(t, err)
	defer logger2.Close()

	assert.Equal(t, logger1.SessionID(), logger2.SessionID())
	assert.Equal(t, logger1.LogPath(), logger2.LogPath())

	logger1.Printf("Message from component1")
	logger2.With("sub").Printf("Message from component2")

	content := readLog(t, logger1)
	assert.Contains(t, content, "[component1]")
	assert.Contains(t, content, "[component2.sub]")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Infof("x")
		l.Errorf("y %d", 1)
		_ = l.With("child")
		_ = l.Close()
		_, _ = l.Writer().Write([]byte("z"))
	})
	assert.Empty(t, l.LogPath())
}

func TestFallbackWhenDirectoryUnusable(t *testing.T) {
	dir := setupTestDir(t)
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	logDir = filepath.Join(blocker, "logs")

	logger, err := NewLogger("fallback")
	assert.Error(t, err)
	require.NotNil(t, logger)
	assert.Empty(t, logger.LogPath())
	assert.Equal(t, os.Stderr, logger.Writer())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"warn":    LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestGetSessionIDStable(t *testing.T) {
	setupTestDir(t)
	id := GetSessionID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, GetSessionID())
}

func TestGetLogDirectory(t *testing.T) {
	dir := setupTestDir(t)
	got, err := GetLogDirectory()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, got)
}
