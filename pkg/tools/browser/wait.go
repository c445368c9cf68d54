package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

const (
	defaultScrollPixels = 800.0
	maxWaitTimeoutMs    = 60000.0
)

var validWaitStates = map[string]bool{
	"attached": true,
	"detached": true,
	"visible":  true,
	"hidden":   true,
}

// WaitTool waits for an element to reach a state.
type WaitTool struct {
	session *Session
}

// NewWaitTool creates a new wait tool.
func NewWaitTool(session *Session) *WaitTool {
	return &WaitTool{session: session}
}

// Name returns the tool name.
func (t *WaitTool) Name() string {
	return "wait"
}

// Description returns the tool description.
func (t *WaitTool) Description() string {
	return "Wait for an element to appear, disappear, become visible or hidden. Useful after actions that load content asynchronously."
}

// Schema returns the tool's JSON schema.
func (t *WaitTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector to wait for",
			},
			"state": map[string]interface{}{
				"type":        "string",
				"description": "State to wait for: 'visible' (default), 'attached', 'detached', or 'hidden'",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Timeout in milliseconds (max 60000). Default: 30000",
			},
		},
		[]string{"selector"},
	)
}

// Execute waits for an element.
func (t *WaitTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		Selector string   `xml:"selector"`
		State    string   `xml:"state"`
		Timeout  *float64 `xml:"timeout"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}
	state := input.State
	if state == "" {
		state = "visible"
	}
	if !validWaitStates[state] {
		return "", nil, fmt.Errorf("invalid state: %s (must be 'attached', 'detached', 'visible', or 'hidden')", state)
	}

	var timeout float64
	if input.Timeout != nil {
		if *input.Timeout < 0 || *input.Timeout > maxWaitTimeoutMs {
			return "", nil, fmt.Errorf("timeout must be between 0 and %.0f milliseconds", maxWaitTimeoutMs)
		}
		timeout = *input.Timeout
	}

	if err := t.session.Page().WaitFor(input.Selector, state, timeout); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Element %s is %s", input.Selector, state), nil, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *WaitTool) IsLoopBreaking() bool {
	return false
}

// ScrollTool scrolls the page.
type ScrollTool struct {
	session *Session
}

// NewScrollTool creates a new scroll tool.
func NewScrollTool(session *Session) *ScrollTool {
	return &ScrollTool{session: session}
}

// Name returns the tool name.
func (t *ScrollTool) Name() string {
	return "scroll"
}

// Description returns the tool description.
func (t *ScrollTool) Description() string {
	return "Scroll the page up or down to reveal more content."
}

// Schema returns the tool's JSON schema.
func (t *ScrollTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"direction": map[string]interface{}{
				"type":        "string",
				"description": "'down' (default) or 'up'",
			},
			"amount": map[string]interface{}{
				"type":        "integer",
				"description": "Pixels to scroll. Default: 800",
			},
		},
		nil,
	)
}

// Execute scrolls the page.
func (t *ScrollTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName   xml.Name `xml:"arguments"`
		Direction string   `xml:"direction"`
		Amount    *int     `xml:"amount"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	amount := defaultScrollPixels
	if input.Amount != nil {
		if *input.Amount <= 0 {
			return "", nil, fmt.Errorf("amount must be positive")
		}
		amount = float64(*input.Amount)
	}

	direction := input.Direction
	switch direction {
	case "", "down":
		direction = "down"
	case "up":
		amount = -amount
	default:
		return "", nil, fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", direction)
	}

	if err := t.session.Page().Scroll(amount); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Scrolled %s by %.0f pixels", direction, abs(amount)), nil, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *ScrollTool) IsLoopBreaking() bool {
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
