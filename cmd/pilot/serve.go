package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/client"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/registry"
	"github.com/entrhq/pilot/pkg/server"
	"github.com/entrhq/pilot/pkg/tui"
)

const (
	shutdownTimeout = 30 * time.Second
	readyTimeout    = 15 * time.Second
)

type serveFlags struct {
	ip              string
	port            int
	apiPort         int
	apiOnly         bool
	installBrowsers bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task API, and the console unless --api-only is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, flags)
		},
	}
	cmd.Flags().StringVar(&flags.ip, "ip", "", "bind address (default 127.0.0.1, 0.0.0.0 on AWS or in a container)")
	cmd.Flags().IntVar(&flags.port, "port", config.DefaultPort, "API port with --api-only")
	cmd.Flags().IntVar(&flags.apiPort, "api-port", config.DefaultAPIPort, "API port when the console runs alongside")
	cmd.Flags().BoolVar(&flags.apiOnly, "api-only", false, "serve the API without the console")
	cmd.Flags().BoolVar(&flags.installBrowsers, "install-browsers", false, "install the Playwright driver and browsers on start")
	return cmd
}

// applyServeFlags overlays flags the user set. A container environment
// always binds every interface.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) {
	if cmd.Flags().Changed("ip") && !cfg.Environment.InContainer() {
		cfg.Server.IP = flags.ip
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flags.port
	}
	if cmd.Flags().Changed("api-port") {
		cfg.Server.APIPort = flags.apiPort
	}
}

// listenPort is --port with --api-only and --api-port otherwise.
func listenPort(cfg *config.Config, apiOnly bool) int {
	if apiOnly {
		return cfg.Server.Port
	}
	return cfg.Server.APIPort
}

// loopbackURL is the address the in-process console dials.
func loopbackURL(ip string, port int) string {
	if ip == "" || ip == "0.0.0.0" || ip == "::" {
		ip = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(port))
}

func setupLogging(cfg *config.Config, mirror bool) {
	logging.SetLogDirectory(cfg.LogDir())
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if mirror {
		logging.SetMirror(os.Stderr)
	}
}

//nolint:gocyclo
func serve(parent context.Context, cfg *config.Config, flags serveFlags) error {
	// The console owns the terminal, so only mirror logs without it.
	setupLogging(cfg, flags.apiOnly)
	logger := logging.MustLogger("serve")

	reg := registry.New(cfg.SettingsDir(), registry.WithLogger(logging.MustLogger("registry")))
	if err := reg.Init(); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	driver := browser.NewDriver(flags.installBrowsers, logging.MustLogger("browser"))
	factory := orchestrator.NewBrowserFactory(driver, cfg, logging.MustLogger("agent"))
	orch, err := orchestrator.New(reg, factory, orchestrator.Options{
		ArtifactDir:       cfg.TmpDir,
		MaxSteps:          cfg.MaxSteps,
		PollWait:          cfg.PollWait,
		PersistentSession: cfg.PersistentSession,
		Logger:            logging.MustLogger("orchestrator"),
		Metrics:           orchestrator.NewMetrics(promReg),
	})
	if err != nil {
		return err
	}

	srv, err := server.New(orch, server.Options{
		APIKey:             cfg.APIKey,
		AllowedOrigins:     cfg.AllowedOrigins,
		StaticDir:          cfg.TmpDir,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		Gatherer:           promReg,
		Logger:             logging.MustLogger("api"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	port := listenPort(cfg, flags.apiOnly)
	addr := net.JoinHostPort(cfg.Server.IP, strconv.Itoa(port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		return reg.Watch(gctx, registry.DefaultWatchDebounce, func() {
			logger.Infof("Reloaded session mapping from %s", reg.MappingPath())
		})
	})
	if !flags.apiOnly {
		g.Go(func() error {
			// Quitting the console stops the service.
			defer cancel()
			return runConsole(gctx, reg, loopbackURL(cfg.Server.IP, port), cfg.APIKey, logger)
		})
	}

	logger.Infof("pilot %s serving on %s (api-only=%t)", version, addr, flags.apiOnly)
	runErr := g.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Orchestrator shutdown: %v", err)
	}
	if err := driver.Stop(); err != nil {
		logger.Warnf("%v", err)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// runConsole waits for the API to answer, then runs the console against it.
func runConsole(ctx context.Context, reg *registry.Registry, baseURL, apiKey string, logger *logging.Logger) error {
	api, err := client.New(baseURL, apiKey)
	if err != nil {
		return err
	}
	if err := waitHealthy(ctx, api); err != nil {
		return err
	}
	console, err := tui.NewConsole(api, reg, baseURL, logging.MustLogger("console"))
	if err != nil {
		return err
	}
	logger.Infof("Console attached to %s", baseURL)
	return console.Run(ctx)
}

func waitHealthy(ctx context.Context, api *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := api.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("API at %s did not become ready: %w", api.BaseURL(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the console against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			setupLogging(cfg, false)

			reg := registry.New(cfg.SettingsDir(), registry.WithLogger(logging.MustLogger("registry")))
			if err := reg.Init(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			health, cancel := requestContext(cmd)
			err = api.Health(health)
			cancel()
			if err != nil {
				return fmt.Errorf("server at %s is not reachable: %w", api.BaseURL(), err)
			}

			console, err := tui.NewConsole(api, reg, api.BaseURL(), logging.MustLogger("console"))
			if err != nil {
				return err
			}
			return console.Run(ctx)
		},
	}
}
