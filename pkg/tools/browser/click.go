package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

// ClickTool clicks an element by index or CSS selector.
type ClickTool struct {
	session *Session
}

// NewClickTool creates a new click tool.
func NewClickTool(session *Session) *ClickTool {
	return &ClickTool{session: session}
}

// Name returns the tool name.
func (t *ClickTool) Name() string {
	return "click"
}

// Description returns the tool description.
func (t *ClickTool) Description() string {
	return "Click an element. Address it by its index from the interactive elements list, or by a CSS selector."
}

// Schema returns the tool's JSON schema.
func (t *ClickTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Index of the element in the interactive elements list",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the element (e.g., 'button.submit', '#login-btn'). Overrides index.",
			},
		},
		nil,
	)
}

// Execute clicks an element.
func (t *ClickTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		Index    *int     `xml:"index"`
		Selector string   `xml:"selector"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	selector, err := t.session.Resolve(input.Index, input.Selector)
	if err != nil {
		return "", nil, err
	}

	page := t.session.Page()
	if err := page.Click(selector); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("Clicked %s. Current URL: %s", selector, page.URL()),
		map[string]interface{}{"selector": selector}, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *ClickTool) IsLoopBreaking() bool {
	return false
}
