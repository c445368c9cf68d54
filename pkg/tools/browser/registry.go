package browser

import (
	"github.com/entrhq/pilot/pkg/agent/tools"
)

// ToolRegistry builds the browser tools bound to one session.
type ToolRegistry struct {
	session *Session
	tools   []tools.Tool
}

// NewToolRegistry creates a new browser tool registry.
func NewToolRegistry(session *Session) *ToolRegistry {
	return &ToolRegistry{session: session}
}

// RegisterTools creates and returns all browser tools.
func (r *ToolRegistry) RegisterTools() []tools.Tool {
	if len(r.tools) > 0 {
		return r.tools
	}

	r.tools = append(r.tools,
		NewNavigateTool(r.session),
		NewClickTool(r.session),
		NewInputTextTool(r.session),
		NewPressKeyTool(r.session),
		NewScrollTool(r.session),
		NewGoBackTool(r.session),
		NewWaitTool(r.session),
		NewExtractContentTool(r.session),
		NewSearchTool(r.session),
	)
	return r.tools
}

// Session returns the session the tools act on.
func (r *ToolRegistry) Session() *Session {
	return r.session
}
