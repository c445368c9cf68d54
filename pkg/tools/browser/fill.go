package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

// InputTextTool types a value into an input element.
type InputTextTool struct {
	session *Session
}

// NewInputTextTool creates a new input text tool.
func NewInputTextTool(session *Session) *InputTextTool {
	return &InputTextTool{session: session}
}

// Name returns the tool name.
func (t *InputTextTool) Name() string {
	return "input_text"
}

// Description returns the tool description.
func (t *InputTextTool) Description() string {
	return "Fill an input or textarea, replacing its current value. Address it by index or CSS selector."
}

// Schema returns the tool's JSON schema.
func (t *InputTextTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Index of the input in the interactive elements list",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the input. Overrides index.",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to enter",
			},
		},
		[]string{"text"},
	)
}

// Execute fills an input.
func (t *InputTextTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		Index    *int     `xml:"index"`
		Selector string   `xml:"selector"`
		Text     string   `xml:"text"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	selector, err := t.session.Resolve(input.Index, input.Selector)
	if err != nil {
		return "", nil, err
	}

	if err := t.session.Page().Fill(selector, input.Text); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("Entered %d characters into %s", len(input.Text), selector), nil, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *InputTextTool) IsLoopBreaking() bool {
	return false
}

// PressKeyTool sends a key press to the page.
type PressKeyTool struct {
	session *Session
}

// NewPressKeyTool creates a new press key tool.
func NewPressKeyTool(session *Session) *PressKeyTool {
	return &PressKeyTool{session: session}
}

// Name returns the tool name.
func (t *PressKeyTool) Name() string {
	return "press_key"
}

// Description returns the tool description.
func (t *PressKeyTool) Description() string {
	return "Press a key or key combination on the focused element, e.g. Enter, Tab, Escape or Control+A."
}

// Schema returns the tool's JSON schema.
func (t *PressKeyTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Key name as understood by Playwright (Enter, ArrowDown, Control+A, ...)",
			},
		},
		[]string{"key"},
	)
}

// Execute presses a key.
func (t *PressKeyTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Key     string   `xml:"key"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if input.Key == "" {
		return "", nil, fmt.Errorf("key is required")
	}

	page := t.session.Page()
	if err := page.Press(input.Key); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Pressed %s. Current URL: %s", input.Key, page.URL()), nil, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *PressKeyTool) IsLoopBreaking() bool {
	return false
}
