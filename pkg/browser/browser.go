package browser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pilot/pkg/logging"
)

// Browser is a launched or attached Chromium instance.
type Browser struct {
	pw     playwright.Browser
	cfg    Config
	logger *logging.Logger
}

func newBrowser(pb playwright.Browser, cfg Config, logger *logging.Logger) *Browser {
	return &Browser{pw: pb, cfg: cfg, logger: logger}
}

// Config returns the launch configuration.
func (b *Browser) Config() Config {
	return b.cfg
}

// NewContext returns a browser context configured by cc. Unless
// cc.ForceNewContext is set, an existing context is reused.
func (b *Browser) NewContext(cc ContextConfig) (*Context, error) {
	if !cc.ForceNewContext {
		if existing := b.pw.Contexts(); len(existing) > 0 {
			b.logger.Infof("Reusing existing browser context")
			return newContext(existing[0], uuid.NewString(), cc, false, b.logger), nil
		}
	}

	b.logger.Infof("Creating new browser context")
	pc, err := b.pw.NewContext(contextOptions(cc))
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	c := newContext(pc, uuid.NewString(), cc, true, b.logger)

	if cc.TracePath != "" {
		err := pc.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
			Sources:     playwright.Bool(true),
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		c.tracing = true
	}

	cookies, err := LoadCookies(cc.CookiesFile, b.logger)
	if err == nil && len(cookies) > 0 {
		if err := pc.AddCookies(toPlaywrightCookies(cookies)); err != nil {
			b.logger.Warnf("Failed to add cookies: %v", err)
		}
	}

	if err := pc.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to add init script: %w", err)
	}

	return c, nil
}

// Close closes the browser.
func (b *Browser) Close() error {
	return b.pw.Close()
}

func contextOptions(cc ContextConfig) playwright.BrowserNewContextOptions {
	width := orDefault(cc.WindowWidth, DefaultWindowWidth)
	height := orDefault(cc.WindowHeight, DefaultWindowHeight)

	opts := playwright.BrowserNewContextOptions{
		JavaScriptEnabled: playwright.Bool(true),
		BypassCSP:         playwright.Bool(cc.DisableSecurity),
		IgnoreHttpsErrors: playwright.Bool(cc.DisableSecurity),
		Viewport:          &playwright.Size{Width: width, Height: height},
		IsMobile:          playwright.Bool(cc.IsMobile),
		HasTouch:          playwright.Bool(cc.HasTouch),
		AcceptDownloads:   playwright.Bool(true),
	}
	if cc.UserAgent != "" {
		opts.UserAgent = playwright.String(cc.UserAgent)
	}
	if cc.Locale != "" {
		opts.Locale = playwright.String(cc.Locale)
	}
	if cc.TimezoneID != "" {
		opts.TimezoneId = playwright.String(cc.TimezoneID)
	}
	if cc.Geolocation != nil {
		opts.Geolocation = &playwright.Geolocation{
			Latitude:  cc.Geolocation.Latitude,
			Longitude: cc.Geolocation.Longitude,
		}
		if cc.Geolocation.Accuracy > 0 {
			opts.Geolocation.Accuracy = playwright.Float(cc.Geolocation.Accuracy)
		}
	}
	if len(cc.Permissions) > 0 {
		opts.Permissions = cc.Permissions
	}
	if cc.HTTPCredentials != nil {
		opts.HttpCredentials = &playwright.HttpCredentials{
			Username: cc.HTTPCredentials.Username,
			Password: cc.HTTPCredentials.Password,
		}
	}
	if cc.RecordVideoDir != "" {
		opts.RecordVideo = &playwright.RecordVideo{
			Dir:  cc.RecordVideoDir,
			Size: &playwright.Size{Width: width, Height: height},
		}
	}
	if cc.HARPath != "" {
		opts.RecordHarPath = playwright.String(cc.HARPath)
	}
	return opts
}

// traceFile is where a context's trace is written on close.
func traceFile(dir, contextID string) string {
	return filepath.Join(dir, contextID+".zip")
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
