// Package tui is the interactive console for the task API: submit a task,
// watch its status while the agent works, then browse the result.
//
// The console is split across files:
// - console.go: Console construction and program lifecycle
// - model.go: model state and messages
// - update.go: Bubble Tea Update and API commands
// - view.go: rendering
// - settings.go: registry-backed settings
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/pilot/pkg/client"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/registry"
	"github.com/entrhq/pilot/pkg/types"
)

// API is the task API surface the console drives. *client.Client
// implements it.
type API interface {
	Submit(ctx context.Context, task, sessionID string) (*client.Submission, error)
	Status(ctx context.Context, sessionID string, detailed, minimal bool) (*orchestrator.Status, error)
	Cancel(ctx context.Context, sessionID string) (string, error)
	Pause(ctx context.Context, sessionID string) (string, error)
	Resume(ctx context.Context, sessionID string) (string, error)
	Result(ctx context.Context, sessionID string) (*orchestrator.ResultBundle, error)
	ChatHistory(ctx context.Context) ([]*types.Message, error)
}

// Console runs the terminal UI against an API.
type Console struct {
	api      API
	registry *registry.Registry
	settings *settings
	logger   *logging.Logger
}

// NewConsole registers the console settings with reg and applies the most
// recently saved settings file, if any.
func NewConsole(api API, reg *registry.Registry, serverURL string, logger *logging.Logger) (*Console, error) {
	s := newSettings(serverURL)
	if err := reg.AddComponents(settingsTab, s.components()); err != nil {
		return nil, fmt.Errorf("failed to register console settings: %w", err)
	}
	path, err := loadLatest(reg)
	switch {
	case err != nil:
		logger.Warnf("Failed to load console settings from %s: %v", path, err)
	case path != "":
		logger.Infof("Loaded console settings from %s", path)
	}
	return &Console{api: api, registry: reg, settings: s, logger: logger}, nil
}

// Run starts the console and blocks until the user quits or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	m := newModel(ctx, c.api, c.registry, c.settings, c.logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run console: %w", err)
	}
	return nil
}
