// Package main is the pilot command: it serves the browser-agent task API
// and offers client commands for driving a running server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/client"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pilot",
		Short:         "Browser agent task service",
		Long:          "pilot runs an LLM-driven browser agent behind an authenticated HTTP API, one task at a time.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("api", envOrDefault("PILOT_API_BASE", client.DefaultBaseURL), "task API base URL")
	cmd.PersistentFlags().String("api-key", os.Getenv("BROWSER_SERVICE_API_KEY"), "task API key")
	cmd.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout for client commands")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newResultCmd())
	cmd.AddCommand(newFixPathsCmd())
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newConsoleCmd())
	return cmd
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// clientFromCmd builds an API client from the persistent flags.
func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Flags().GetString("api")
	if err != nil {
		return nil, err
	}
	key, err := cmd.Flags().GetString("api-key")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("an API key is required: set --api-key or BROWSER_SERVICE_API_KEY")
	}
	return client.New(base, key)
}
