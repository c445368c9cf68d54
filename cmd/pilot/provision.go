package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/provision"
)

// cliLogger mirrors log lines to stderr for one-shot commands.
func cliLogger(component string) *logging.Logger {
	logging.SetMirror(os.Stderr)
	return logging.MustLogger(component)
}

func newFixPathsCmd() *cobra.Command {
	var roots, targets []string
	cmd := &cobra.Command{
		Use:   "fix-paths",
		Short: "Link the newest Playwright Chromium into the locations the driver expects",
		RunE: func(cmd *cobra.Command, args []string) error {
			shim := provision.NewShim(cliLogger("fix-paths"))
			if len(roots) > 0 {
				shim.Roots = roots
			}
			if len(targets) > 0 {
				shim.Targets = targets
			}

			report, err := shim.Fix()
			if errors.Is(err, provision.ErrNoInstall) {
				return fmt.Errorf("no Chromium installation found under %v", shim.Roots)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Using %s\n", report.Install.Executable)
			links := make([]string, 0, len(report.Links))
			for target := range report.Links {
				links = append(links, target)
			}
			sort.Strings(links)
			for _, target := range links {
				fmt.Fprintf(out, "  %s -> %s\n", target, report.Links[target])
			}
			for _, v := range report.Verified {
				fmt.Fprintf(out, "Verified: %s\n", v)
			}
			if !report.OK() {
				return fmt.Errorf("missing after linking: %v", report.Missing)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roots, "root", nil, "directories to search for chromium-* installs")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "directories to link to the newest install")
	return cmd
}

func newProbeCmd() *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that Playwright can launch Chromium",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cliLogger("probe")
			driver := browser.NewDriver(install, logger)
			if err := driver.Start(); err != nil {
				return err
			}
			defer func() {
				if err := driver.Stop(); err != nil {
					logger.Warnf("%v", err)
				}
			}()

			res := provision.NewShim(logger).Probe(provision.ProbePaths(), driver.ProbeLaunch)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "PLAYWRIGHT_BROWSERS_PATH: %s\n", res.BrowsersPath)
			fmt.Fprintf(out, "CHROME_PATH: %s\n", res.ChromePath)
			for _, p := range res.Present {
				fmt.Fprintf(out, "Found: %s\n", p)
			}
			for _, p := range res.Absent {
				fmt.Fprintf(out, "Missing: %s\n", p)
			}
			if !res.OK() {
				return fmt.Errorf("browser launch failed: %w", errors.Join(res.Errors...))
			}
			fmt.Fprintf(out, "Launch OK (%s)\n", res.LaunchedWith)
			return nil
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "install the Playwright driver and browsers first")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&redacted); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
}
