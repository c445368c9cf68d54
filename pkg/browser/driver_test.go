package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/config"
)

func TestLaunchWithFallback(t *testing.T) {
	t.Run("first channel wins", func(t *testing.T) {
		var tried []string
		got, err := LaunchWithFallback(func(channel string) (string, error) {
			tried = append(tried, channel)
			return "browser:" + channel, nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "browser:chromium", got)
		assert.Equal(t, []string{"chromium"}, tried)
	})

	t.Run("falls through to no channel", func(t *testing.T) {
		var tried []string
		got, err := LaunchWithFallback(func(channel string) (string, error) {
			tried = append(tried, channel)
			if channel != "" {
				return "", errors.New("channel not installed")
			}
			return "default", nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "default", got)
		assert.Equal(t, []string{"chromium", "chrome", ""}, tried)
	})

	t.Run("all fail", func(t *testing.T) {
		_, err := LaunchWithFallback(func(channel string) (string, error) {
			return "", errors.New("nope")
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "channel chromium")
		assert.Contains(t, err.Error(), "channel default")
	})
}

func TestDriverNotStarted(t *testing.T) {
	d := NewDriver(false, nil)
	_, err := d.Launch(Config{})
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, d.ProbeLaunch(""), ErrNotStarted)
	assert.NoError(t, d.Stop())
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		TmpDir:            "/data/tmp",
		PersistentSession: true,
		Browser: config.BrowserConfig{
			Headless:        true,
			DisableSecurity: true,
			ExtraArgs:       []string{"--kiosk"},
			ChromePath:      "/opt/chrome",
			TracePath:       "/data/traces",
			CookiesFile:     "/data/cookies.json",
		},
		Environment: config.Environment{AWS: true},
	}

	b := FromConfig(cfg)
	assert.True(t, b.Headless)
	assert.Equal(t, []string{"--kiosk"}, b.ExtraArgs)
	assert.Equal(t, DefaultWindowWidth, b.WindowWidth)
	assert.Equal(t, DefaultWindowHeight, b.WindowHeight)
	assert.Equal(t, "/data/tmp/downloads", b.DownloadsPath)
	assert.True(t, b.InDocker)
	assert.True(t, b.OnAWS)

	c := ContextFromConfig(cfg)
	assert.False(t, c.ForceNewContext)
	assert.Equal(t, "/data/traces", c.TracePath)
	assert.Equal(t, "/data/cookies.json", c.CookiesFile)
	assert.True(t, c.DisableSecurity)
}

func TestContextOptions(t *testing.T) {
	opts := contextOptions(ContextConfig{
		DisableSecurity: true,
		UserAgent:       "pilot",
		Geolocation:     &Geolocation{Latitude: 1, Longitude: 2},
		HTTPCredentials: &Credentials{Username: "u", Password: "p"},
		RecordVideoDir:  "/videos",
	})
	assert.True(t, *opts.BypassCSP)
	assert.True(t, *opts.IgnoreHttpsErrors)
	assert.Equal(t, "pilot", *opts.UserAgent)
	assert.Equal(t, DefaultWindowWidth, opts.Viewport.Width)
	assert.Equal(t, 2.0, opts.Geolocation.Longitude)
	assert.Nil(t, opts.Geolocation.Accuracy)
	assert.Equal(t, "u", opts.HttpCredentials.Username)
	assert.Equal(t, "/videos", opts.RecordVideo.Dir)
	assert.Nil(t, opts.RecordHarPath)
	assert.Nil(t, opts.Locale)
}

func TestTraceFile(t *testing.T) {
	assert.Equal(t, "/traces/abc.zip", traceFile("/traces", "abc"))
}
