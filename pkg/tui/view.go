package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// reservedRows is the height taken by everything except the viewport.
const reservedRows = 10

// View renders the console.
func (m *model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	sections := []string{
		m.buildHeader(),
		m.buildTips(),
		m.buildTopStatus(),
		m.viewport.View(),
		m.buildLoadingIndicator(),
		m.buildToast(),
		inputBoxStyle.Width(m.width - 4).Render(m.input.View()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *model) buildHeader() string {
	return headerStyle.Render("  pilot · browser agent console")
}

func (m *model) buildTips() string {
	return tipsStyle.Render("  Enter submit • Ctrl+X cancel • Ctrl+P pause/resume • Ctrl+L task list • Ctrl+Y copy session • Ctrl+D detailed • Ctrl+S save settings • Ctrl+O load settings • PgUp/PgDn scroll • Esc quit")
}

func (m *model) buildTopStatus() string {
	return statusBarStyle.Render(fmt.Sprintf("Server: %s  Detailed: %s  Poll: %.1fs",
		m.settings.serverURL.String(), onOff(m.settings.detailed.Bool()), m.settings.pollSeconds()))
}

func (m *model) buildLoadingIndicator() string {
	if !m.polling {
		return ""
	}
	status := "submitted"
	if m.status != nil {
		status = m.status.Status
	}
	return lipgloss.NewStyle().
		Foreground(salmonPink).
		Padding(0, 2).
		Render(fmt.Sprintf("%s Agent is working (%s)", m.spinner.View(), status))
}

func (m *model) buildToast() string {
	if m.toast == nil || time.Now().After(m.toast.showUntil) {
		return ""
	}
	style := toastStyle
	if m.toast.isError {
		style = style.BorderForeground(salmonPink)
	}
	return style.Render(strings.TrimSpace(m.toast.message))
}
