package browser

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Chrome flag sets applied at launch. Order is preserved and duplicates are
// dropped when the sets are merged.
var (
	chromeArgs = []string{
		"--disable-field-trial-config",
		"--disable-background-networking",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-back-forward-cache",
		"--disable-breakpad",
		"--disable-client-side-phishing-detection",
		"--disable-component-extensions-with-background-pages",
		"--disable-component-update",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-hang-monitor",
		"--disable-ipc-flooding-protection",
		"--disable-popup-blocking",
		"--disable-prompt-on-repost",
		"--disable-renderer-backgrounding",
		"--metrics-recording-only",
		"--no-first-run",
		"--password-store=basic",
		"--use-mock-keychain",
		"--no-service-autorun",
		"--disable-search-engine-choice-screen",
		"--enable-features=NetworkService,NetworkServiceInProcess",
		"--disable-sync",
		"--allow-pre-commit-input",
		"--disable-blink-features=AutomationControlled",
		"--hide-scrollbars",
		"--log-level=2",
		"--no-pings",
		"--disable-infobars",
		"--hide-crash-restore-bubble",
		"--disable-domain-reliability",
		"--disable-desktop-notifications",
		"--noerrdialogs",
		"--disable-setuid-sandbox",
		"--remote-debugging-port=9222",
	}

	deterministicRenderingArgs = []string{
		"--deterministic-mode",
		"--js-flags=--random-seed=1157259159",
		"--enable-webgl",
		"--font-render-hinting=none",
		"--force-color-profile=srgb",
	}

	dockerArgs = []string{
		"--no-sandbox",
		"--disable-gpu-sandbox",
		"--disable-setuid-sandbox",
		"--disable-dev-shm-usage",
		"--no-xshm",
		"--no-zygote",
	}

	headlessArgs = []string{
		"--headless=new",
	}

	disableSecurityArgs = []string{
		"--disable-web-security",
		"--disable-site-isolation-trials",
		"--disable-features=IsolateOrigins,site-per-process",
		"--allow-running-insecure-content",
		"--ignore-certificate-errors",
		"--ignore-ssl-errors",
		"--ignore-certificate-errors-spki-list",
		"--disable-setuid-sandbox",
	}
)

const (
	// DefaultDebugPort is the remote debugging port used outside AWS.
	DefaultDebugPort = 9222
	// MaxDebugPort bounds the free-port scan on AWS/ECS (exclusive).
	MaxDebugPort = 9300

	unsafeSandboxArg  = "--disable-setuid-sandbox"
	debugPortPrefix   = "--remote-debugging-port="
	debugFlagPrefix   = "--remote-debugging"
	windowSizePrefix  = "--window-size="
	portProbeTimeout  = 200 * time.Millisecond
	portProbeLoopback = "localhost"
)

// PortInUse reports whether something accepts connections on localhost:port.
type PortInUse func(port int) bool

// LocalPortInUse dials localhost to check a port.
func LocalPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(portProbeLoopback, fmt.Sprint(port)), portProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// LaunchArgs is the result of argument assembly.
type LaunchArgs struct {
	Args []string
	// DebugPort is 0 when remote debugging was disabled.
	DebugPort int
}

// BuildArgs assembles the Chromium command line for cfg.
//
// On AWS the debugging port is the first free one in [9222, 9300); when none
// is free every --remote-debugging flag is dropped. Elsewhere the 9222 flag
// is dropped if the port is taken.
func BuildArgs(cfg Config, inUse PortInUse) LaunchArgs {
	if inUse == nil {
		inUse = LocalPortInUse
	}

	set := newArgSet()
	set.add(chromeArgs...)
	set.add(deterministicRenderingArgs...)
	set.add(cfg.ExtraArgs...)
	if cfg.Headless {
		set.add(headlessArgs...)
	}
	if cfg.DisableSecurity {
		set.add(disableSecurityArgs...)
	}
	if cfg.InDocker {
		set.add(dockerArgs...)
	}
	if !cfg.Headless && !set.hasPrefix(windowSizePrefix) && cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		set.add(fmt.Sprintf("%s%d,%d", windowSizePrefix, cfg.WindowWidth, cfg.WindowHeight))
	}
	set.remove(func(a string) bool { return a == unsafeSandboxArg })

	port := DefaultDebugPort
	if cfg.OnAWS {
		port = 0
		for p := DefaultDebugPort; p < MaxDebugPort; p++ {
			if !inUse(p) {
				port = p
				break
			}
		}
		if port == 0 {
			set.remove(func(a string) bool { return strings.HasPrefix(a, debugFlagPrefix) })
		} else {
			set.remove(func(a string) bool { return strings.HasPrefix(a, debugPortPrefix) })
			set.add(fmt.Sprintf("%s%d", debugPortPrefix, port))
		}
	} else if inUse(DefaultDebugPort) {
		port = 0
		set.remove(func(a string) bool { return strings.HasPrefix(a, debugPortPrefix) })
	}

	return LaunchArgs{Args: set.list(), DebugPort: port}
}

type argSet struct {
	order []string
	seen  map[string]bool
}

func newArgSet() *argSet {
	return &argSet{seen: make(map[string]bool)}
}

func (s *argSet) add(args ...string) {
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" || s.seen[a] {
			continue
		}
		s.seen[a] = true
		s.order = append(s.order, a)
	}
}

func (s *argSet) remove(match func(string) bool) {
	kept := s.order[:0]
	for _, a := range s.order {
		if match(a) {
			delete(s.seen, a)
			continue
		}
		kept = append(kept, a)
	}
	s.order = kept
}

func (s *argSet) hasPrefix(prefix string) bool {
	for _, a := range s.order {
		if strings.HasPrefix(a, prefix) {
			return true
		}
	}
	return false
}

func (s *argSet) list() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
