package browser

import (
	"github.com/entrhq/pilot/pkg/config"
)

// Default values for browser and context settings.
const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
	DefaultTimeout      = 30000.0 // milliseconds
)

// Config describes how the browser process is launched or attached.
type Config struct {
	Headless        bool
	DisableSecurity bool
	ExtraArgs       []string
	WindowWidth     int
	WindowHeight    int

	// ChromePath launches a specific executable instead of the bundled build.
	ChromePath string
	// CDPURL attaches to an already running browser over CDP.
	CDPURL string
	// ProxyServer is passed to the launcher when set.
	ProxyServer   string
	DownloadsPath string

	InDocker bool
	OnAWS    bool
}

// Geolocation pins the reported position.
type Geolocation struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Credentials are sent for HTTP basic auth.
type Credentials struct {
	Username string
	Password string
}

// ContextConfig describes an isolated browser context.
type ContextConfig struct {
	// ForceNewContext opens a fresh context even when the browser has one.
	ForceNewContext bool

	UserAgent       string
	Locale          string
	TimezoneID      string
	Geolocation     *Geolocation
	Permissions     []string
	HTTPCredentials *Credentials
	IsMobile        bool
	HasTouch        bool

	RecordVideoDir string
	HARPath        string
	TracePath      string
	CookiesFile    string

	WindowWidth     int
	WindowHeight    int
	DisableSecurity bool
}

// FromConfig maps the service configuration onto a browser Config.
func FromConfig(cfg *config.Config) Config {
	b := cfg.Browser
	return Config{
		Headless:        b.Headless,
		DisableSecurity: b.DisableSecurity,
		ExtraArgs:       append([]string(nil), b.ExtraArgs...),
		WindowWidth:     orDefault(b.WindowWidth, DefaultWindowWidth),
		WindowHeight:    orDefault(b.WindowHeight, DefaultWindowHeight),
		ChromePath:      b.ChromePath,
		CDPURL:          b.CDPURL,
		DownloadsPath:   cfg.DownloadsDir(),
		InDocker:        cfg.Environment.InContainer(),
		OnAWS:           cfg.Environment.AWS,
	}
}

// ContextFromConfig maps the service configuration onto a ContextConfig.
func ContextFromConfig(cfg *config.Config) ContextConfig {
	b := cfg.Browser
	return ContextConfig{
		ForceNewContext: !cfg.PersistentSession,
		RecordVideoDir:  b.RecordingPath,
		TracePath:       b.TracePath,
		CookiesFile:     b.CookiesFile,
		WindowWidth:     orDefault(b.WindowWidth, DefaultWindowWidth),
		WindowHeight:    orDefault(b.WindowHeight, DefaultWindowHeight),
		DisableSecurity: b.DisableSecurity,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
