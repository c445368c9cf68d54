package tui

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/pilot/pkg/orchestrator"
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// Init starts the cursor blink.
func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles all state updates for the console.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleWindowResize(msg)
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}

	case spinner.TickMsg:
		if !m.polling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case submittedMsg:
		return m, m.handleSubmitted(msg)

	case pollTickMsg:
		if msg.sessionID != m.sessionID || !m.polling {
			return m, nil
		}
		return m, m.pollCmd(msg.sessionID)

	case statusMsg:
		return m, m.handleStatus(msg)

	case resultMsg:
		m.handleResult(msg)
		return m, nil

	case controlMsg:
		m.showToast(msg.message, false)
		return m, nil

	case chatMsg:
		m.chat = msg.messages
		m.showChat = true
		m.refreshViewport()
		m.viewport.GotoTop()
		return m, nil

	case errMsg:
		m.handleErr(msg)
		return m, nil

	case toastMsg:
		m.showToast(msg.message, msg.isError)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleWindowResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.input.Width = max(msg.Width-8, 10)
	m.viewport.Width = max(msg.Width-2, 10)
	m.viewport.Height = max(msg.Height-reservedRows, 3)
	m.refreshViewport()
}

// handleKey processes console shortcuts. Keys it does not claim fall
// through to the text input.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit, true
	case "enter":
		return m, m.submit(), true
	case "ctrl+x":
		return m, m.cancel(), true
	case "ctrl+p":
		return m, m.togglePause(), true
	case "ctrl+l":
		if m.showChat {
			m.showChat = false
			m.refreshViewport()
			return m, nil, true
		}
		return m, m.chatCmd(), true
	case "ctrl+y":
		return m, m.copySessionID(), true
	case "ctrl+s":
		return m, m.saveSettings(), true
	case "ctrl+o":
		return m, m.loadSettings(), true
	case "ctrl+d":
		detailed := !m.settings.detailed.Bool()
		_ = m.settings.detailed.SetValue(detailed)
		m.showToast(fmt.Sprintf("Detailed status %s", onOff(detailed)), false)
		return m, nil, true
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd, true
	}
	return m, nil, false
}

func (m *model) submit() tea.Cmd {
	task := strings.TrimSpace(m.input.Value())
	if task == "" {
		return nil
	}
	if m.polling {
		m.showToast(fmt.Sprintf("Session %s is still running", m.sessionID), true)
		return nil
	}
	sessionID := m.settings.sessionID.String()
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		sub, err := api.Submit(ctx, task, sessionID)
		if err != nil {
			return errMsg{op: "submit", err: err}
		}
		return submittedMsg{task: task, sub: sub}
	}
}

func (m *model) handleSubmitted(msg submittedMsg) tea.Cmd {
	m.input.Reset()
	m.task = msg.task
	m.sessionID = msg.sub.SessionID
	m.taskID = msg.sub.TaskID
	m.status = nil
	m.result = nil
	m.history = nil
	m.polling = true
	m.showChat = false
	m.logger.Infof("Submitted session %s (%s)", m.sessionID, m.taskID)
	m.showToast(msg.sub.Message, false)
	m.refreshViewport()
	return tea.Batch(m.pollCmd(m.sessionID), m.spinner.Tick)
}

// pollCmd fetches the status of sessionID once.
func (m *model) pollCmd(sessionID string) tea.Cmd {
	detailed := m.settings.detailed.Bool()
	minimal := m.settings.minimal.Bool()
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		st, err := api.Status(ctx, sessionID, detailed, minimal)
		if err != nil {
			return errMsg{op: "status", err: err}
		}
		return statusMsg{sessionID: sessionID, status: st}
	}
}

func (m *model) handleStatus(msg statusMsg) tea.Cmd {
	if msg.sessionID != m.sessionID {
		return nil
	}
	m.status = msg.status
	if len(msg.status.HistoryContent) > 0 {
		m.history = msg.status.HistoryContent
	}
	m.refreshViewport()

	switch msg.status.Status {
	case orchestrator.StatusCompleted, orchestrator.StatusStopped:
		m.polling = false
		return m.resultCmd(msg.sessionID)
	case orchestrator.StatusNotFound, orchestrator.StatusError:
		m.polling = false
		m.showToast(fmt.Sprintf("Session %s: %s", msg.sessionID, msg.status.Status), true)
		return nil
	}
	sessionID := msg.sessionID
	return tea.Tick(m.pollInterval(), func(time.Time) tea.Msg {
		return pollTickMsg{sessionID: sessionID}
	})
}

func (m *model) resultCmd(sessionID string) tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		bundle, err := api.Result(ctx, sessionID)
		if err != nil {
			return errMsg{op: "result", err: err}
		}
		return resultMsg{sessionID: sessionID, bundle: bundle}
	}
}

func (m *model) handleResult(msg resultMsg) {
	if msg.sessionID != m.sessionID {
		return
	}
	m.result = msg.bundle
	m.refreshViewport()
	m.viewport.GotoTop()
}

func (m *model) handleErr(msg errMsg) {
	if msg.op == "status" {
		m.polling = false
	}
	m.logger.Warnf("Console %s failed: %v", msg.op, msg.err)
	m.showToast(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
}

func (m *model) cancel() tea.Cmd {
	if m.sessionID == "" {
		m.showToast("No task to cancel", true)
		return nil
	}
	sessionID := m.sessionID
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		msg, err := api.Cancel(ctx, sessionID)
		if err != nil {
			return errMsg{op: "cancel", err: err}
		}
		return controlMsg{message: msg}
	}
}

// togglePause resumes a paused task and pauses any other live one.
func (m *model) togglePause() tea.Cmd {
	if m.sessionID == "" || !m.polling {
		m.showToast("No running task to pause", true)
		return nil
	}
	sessionID := m.sessionID
	api, ctx := m.api, m.ctx
	if m.status != nil && m.status.Status == orchestrator.StatusPaused {
		return func() tea.Msg {
			msg, err := api.Resume(ctx, sessionID)
			if err != nil {
				return errMsg{op: "resume", err: err}
			}
			return controlMsg{message: msg}
		}
	}
	return func() tea.Msg {
		msg, err := api.Pause(ctx, sessionID)
		if err != nil {
			return errMsg{op: "pause", err: err}
		}
		return controlMsg{message: msg}
	}
}

func (m *model) chatCmd() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		messages, err := api.ChatHistory(ctx)
		if err != nil {
			return errMsg{op: "chat history", err: err}
		}
		return chatMsg{messages: messages}
	}
}

func (m *model) copySessionID() tea.Cmd {
	if m.sessionID == "" {
		m.showToast("No session to copy", true)
		return nil
	}
	sessionID := m.sessionID
	return func() tea.Msg {
		if err := writeClipboard(sessionID); err != nil {
			return toastMsg{message: fmt.Sprintf("Copy failed: %v", err), isError: true}
		}
		return toastMsg{message: "Copied session " + sessionID}
	}
}

func (m *model) saveSettings() tea.Cmd {
	reg := m.registry
	return func() tea.Msg {
		path, err := reg.SaveCurrent()
		if err != nil {
			return toastMsg{message: fmt.Sprintf("Save failed: %v", err), isError: true}
		}
		return toastMsg{message: "Saved settings to " + filepath.Base(path)}
	}
}

func (m *model) loadSettings() tea.Cmd {
	reg := m.registry
	return func() tea.Msg {
		path, err := loadLatest(reg)
		switch {
		case err != nil:
			return toastMsg{message: fmt.Sprintf("Load failed: %v", err), isError: true}
		case path == "":
			return toastMsg{message: "No saved settings", isError: true}
		}
		return toastMsg{message: "Loaded settings from " + filepath.Base(path)}
	}
}

// refreshViewport re-renders the task panel into the viewport.
func (m *model) refreshViewport() {
	var b strings.Builder
	m.renderTask(&b)
	m.viewport.SetContent(b.String())
}

func (m *model) renderTask(b *strings.Builder) {
	if m.showChat {
		m.renderChat(b)
		return
	}
	if m.sessionID == "" {
		b.WriteString(tipsStyle.Render("No task yet. Type one below and press Enter."))
		return
	}
	fmt.Fprintf(b, "%s %s\n", labelStyle.Render("Task:"), valueStyle.Render(m.task))
	fmt.Fprintf(b, "%s %s  %s %s\n", labelStyle.Render("Session:"), m.sessionID, labelStyle.Render("Task id:"), m.taskID)

	if m.status != nil {
		fmt.Fprintf(b, "%s %s  %s %d\n",
			labelStyle.Render("Status:"), statusStyle(m.status.Status).Render(m.status.Status),
			labelStyle.Render("Steps:"), m.status.Steps)
		if r := m.status.Result; r != nil && m.result == nil {
			for _, s := range r.Steps {
				line := fmt.Sprintf("  %d. %s [%s]", s.StepNumber, s.Action, s.Status)
				if s.URL != "" {
					line += " " + s.URL
				}
				b.WriteString(tipsStyle.Render(line) + "\n")
			}
			for _, e := range r.Errors {
				b.WriteString(errorStyle.Render("  ! "+e) + "\n")
			}
		}
	}

	if m.result != nil {
		r := m.result.Result
		b.WriteString("\n")
		fmt.Fprintf(b, "%s %s\n", labelStyle.Render("Result:"), valueStyle.Render(r.Text))
		fmt.Fprintf(b, "%s %t  %s %.1fs  %s %d\n",
			labelStyle.Render("Success:"), r.Success,
			labelStyle.Render("Duration:"), r.DurationSeconds,
			labelStyle.Render("Steps completed:"), r.StepsCompleted)
		if gif := m.result.Resources.RecordingGIF; gif != nil {
			fmt.Fprintf(b, "%s %s\n", labelStyle.Render("Recording:"), gif.URL)
		}
		if raw, err := json.Marshal(m.result); err == nil {
			b.WriteString("\n" + highlightJSON(raw) + "\n")
		}
	}

	if len(m.history) > 0 && m.result != nil {
		b.WriteString("\n" + labelStyle.Render("History") + "\n")
		b.WriteString(highlightJSON(m.history) + "\n")
	}
}

func (m *model) renderChat(b *strings.Builder) {
	b.WriteString(labelStyle.Render("Submitted tasks") + "\n")
	if len(m.chat) == 0 {
		b.WriteString(tipsStyle.Render("  none yet") + "\n")
	}
	for i, msg := range m.chat {
		fmt.Fprintf(b, "  %d. %s\n", i+1, valueStyle.Render(msg.Content))
	}
	b.WriteString("\n" + tipsStyle.Render("Ctrl+L to return to the current task"))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
