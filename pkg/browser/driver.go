// Package browser launches and customizes the Chromium instance the agent
// drives: launch arguments, context options, cookies, anti-detection init
// script and tracing.
package browser

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pilot/pkg/logging"
)

// ErrNotStarted is returned when the driver is used before Start.
var ErrNotStarted = errors.New("playwright driver not started")

// Channels are tried in this order when launching. The empty channel lets
// Playwright use its bundled build.
var Channels = []string{"chromium", "chrome", ""}

// Driver owns the Playwright runtime.
type Driver struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	started bool
	install bool
	logger  *logging.Logger
}

// NewDriver creates a driver. When install is true Start downloads the
// driver and browsers if they are missing.
func NewDriver(install bool, logger *logging.Logger) *Driver {
	return &Driver{install: install, logger: logger}
}

// Start installs (optionally) and runs Playwright. It is safe to call twice.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	// Keep driver output off the console.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if d.install {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.pw = pw
	d.started = true
	return nil
}

// Stop shuts Playwright down.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.pw == nil {
		return nil
	}
	d.started = false
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func (d *Driver) chromium() (playwright.BrowserType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil, ErrNotStarted
	}
	return d.pw.Chromium, nil
}

// Launch starts or attaches to a browser according to cfg.
func (d *Driver) Launch(cfg Config) (*Browser, error) {
	chromium, err := d.chromium()
	if err != nil {
		return nil, err
	}

	if cfg.CDPURL != "" {
		d.logger.Infof("Connecting to browser over CDP at %s", cfg.CDPURL)
		pb, err := chromium.ConnectOverCDP(cfg.CDPURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect over CDP: %w", err)
		}
		return newBrowser(pb, cfg, d.logger), nil
	}

	launch := BuildArgs(cfg, nil)
	if launch.DebugPort == 0 {
		d.logger.Infof("Remote debugging disabled")
	} else {
		d.logger.Infof("Using remote debugging port: %d", launch.DebugPort)
	}
	d.logger.Debugf("Chrome args: %v", launch.Args)

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     launch.Args,
	}
	if cfg.DownloadsPath != "" {
		opts.DownloadsPath = playwright.String(cfg.DownloadsPath)
	}
	if cfg.ProxyServer != "" {
		opts.Proxy = &playwright.Proxy{Server: cfg.ProxyServer}
	}

	if cfg.ChromePath != "" {
		opts.ExecutablePath = playwright.String(cfg.ChromePath)
		pb, err := chromium.Launch(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to launch %s: %w", cfg.ChromePath, err)
		}
		return newBrowser(pb, cfg, d.logger), nil
	}

	pb, err := LaunchWithFallback(func(channel string) (playwright.Browser, error) {
		o := opts
		if channel != "" {
			o.Channel = playwright.String(channel)
		}
		return chromium.Launch(o)
	}, d.logger)
	if err != nil {
		return nil, err
	}
	return newBrowser(pb, cfg, d.logger), nil
}

// LaunchWithFallback tries each of Channels in order and returns the first
// browser that starts.
func LaunchWithFallback[B any](launch func(channel string) (B, error), logger *logging.Logger) (B, error) {
	var zero B
	var errs []error
	for _, channel := range Channels {
		b, err := launch(channel)
		if err == nil {
			if channel == "" {
				logger.Infof("Launched browser without channel")
			} else {
				logger.Infof("Launched browser with channel %s", channel)
			}
			return b, nil
		}
		name := channel
		if name == "" {
			name = "default"
		}
		logger.Warnf("Launch with channel %s failed: %v", name, err)
		errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
	}
	return zero, fmt.Errorf("failed to launch browser: %w", errors.Join(errs...))
}

// ProbeLaunch starts a headless browser and closes it right away. An empty
// executable lets Playwright pick the build.
func (d *Driver) ProbeLaunch(executable string) error {
	chromium, err := d.chromium()
	if err != nil {
		return err
	}
	opts := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(true)}
	if executable != "" {
		opts.ExecutablePath = playwright.String(executable)
	}
	b, err := chromium.Launch(opts)
	if err != nil {
		return err
	}
	return b.Close()
}
