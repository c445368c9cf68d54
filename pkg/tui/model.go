package tui

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/entrhq/pilot/pkg/client"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/registry"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	defaultPollSeconds = 2.0
	toastDuration      = 4 * time.Second
)

// model is the console state.
type model struct {
	ctx      context.Context
	api      API
	registry *registry.Registry
	settings *settings
	logger   *logging.Logger

	// Bubble Tea components
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	// Current task
	sessionID string
	taskID    string
	task      string
	status    *orchestrator.Status
	result    *orchestrator.ResultBundle
	history   json.RawMessage
	polling   bool

	// Tasks submitted to the server, shown with Ctrl+L
	chat     []*types.Message
	showChat bool

	toast *toastNotification

	width  int
	height int
	ready  bool
}

type toastNotification struct {
	message   string
	isError   bool
	showUntil time.Time
}

// submittedMsg carries the server's answer to a submit.
type submittedMsg struct {
	task string
	sub  *client.Submission
}

// statusMsg carries one poll answer.
type statusMsg struct {
	sessionID string
	status    *orchestrator.Status
}

// pollTickMsg schedules the next poll of a session.
type pollTickMsg struct{ sessionID string }

// resultMsg carries the artifacts of a finished session.
type resultMsg struct {
	sessionID string
	bundle    *orchestrator.ResultBundle
}

// controlMsg confirms a cancel, pause or resume request.
type controlMsg struct{ message string }

// chatMsg carries the server's list of submitted tasks.
type chatMsg struct{ messages []*types.Message }

// errMsg reports a failed API call. A poll failure stops polling.
type errMsg struct {
	op  string
	err error
}

// toastMsg shows a transient notification.
type toastMsg struct {
	message string
	isError bool
}

func newModel(ctx context.Context, api API, reg *registry.Registry, s *settings, logger *logging.Logger) *model {
	ti := textinput.New()
	ti.Placeholder = "Describe a browser task, e.g. open example.com and read the heading"
	ti.Prompt = "› "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = headerStyle

	return &model{
		ctx:      ctx,
		api:      api,
		registry: reg,
		settings: s,
		logger:   logger,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
}

func (m *model) showToast(message string, isError bool) {
	m.toast = &toastNotification{
		message:   message,
		isError:   isError,
		showUntil: time.Now().Add(toastDuration),
	}
}

func (m *model) pollInterval() time.Duration {
	return time.Duration(m.settings.pollSeconds() * float64(time.Second))
}
