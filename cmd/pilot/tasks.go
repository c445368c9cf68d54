package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/client"
	"github.com/entrhq/pilot/pkg/orchestrator"
)

func encodeAsJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// requestContext bounds one client call by --timeout.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func newSubmitCmd() *cobra.Command {
	var (
		sessionID string
		wait      bool
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <task>",
		Short: "Queue a browser task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			sub, err := api.Submit(ctx, args[0], sessionID)
			cancel()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sub.Message)
			if !wait {
				return nil
			}

			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
				ctx, cancel := requestContext(cmd)
				st, err := api.Status(ctx, sub.SessionID, false, true)
				cancel()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%d steps)\n", sub.SessionID, st.Status, st.Steps)
				switch st.Status {
				case orchestrator.StatusCompleted, orchestrator.StatusStopped:
					ctx, cancel := requestContext(cmd)
					res, err := api.Result(ctx, sub.SessionID)
					cancel()
					if err != nil {
						return err
					}
					return encodeAsJSON(cmd.OutOrStdout(), res)
				case orchestrator.StatusNotFound:
					return fmt.Errorf("session %s disappeared", sub.SessionID)
				}
			}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to use instead of a generated one")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the task finishes and print its result")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval with --wait")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var detailed, minimal bool
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the status of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			st, err := api.Status(ctx, args[0], detailed, minimal)
			if err != nil {
				return err
			}
			return encodeAsJSON(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include per-step results and URLs")
	cmd.Flags().BoolVar(&minimal, "minimal", false, "omit the step list and history document")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return newControlCmd("cancel", "Stop the running task of a session", (*client.Client).Cancel)
}

func newPauseCmd() *cobra.Command {
	return newControlCmd("pause", "Hold the running task of a session before its next step", (*client.Client).Pause)
}

func newResumeCmd() *cobra.Command {
	return newControlCmd("resume", "Continue a paused task", (*client.Client).Resume)
}

func newControlCmd(name, short string, op func(*client.Client, context.Context, string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			msg, err := op(api, ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <session-id>",
		Short: "Print the artifacts of a finished session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := api.Result(ctx, args[0])
			if err != nil {
				return err
			}
			return encodeAsJSON(cmd.OutOrStdout(), res)
		},
	}
}
