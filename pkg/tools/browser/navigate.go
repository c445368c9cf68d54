package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

// NavigateTool loads a URL in the agent's page.
type NavigateTool struct {
	session *Session
}

// NewNavigateTool creates a new navigate tool.
func NewNavigateTool(session *Session) *NavigateTool {
	return &NavigateTool{session: session}
}

// Name returns the tool name.
func (t *NavigateTool) Name() string {
	return "navigate"
}

// Description returns the tool description.
func (t *NavigateTool) Description() string {
	return "Open a URL in the browser. The page is loaded and ready for interaction when the tool returns."
}

// Schema returns the tool's JSON schema.
func (t *NavigateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to open. A missing scheme defaults to https.",
			},
		},
		[]string{"url"},
	)
}

// Execute navigates to a URL.
func (t *NavigateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		URL     string   `xml:"url"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	target, err := normalizeURL(input.URL)
	if err != nil {
		return "", nil, err
	}

	page := t.session.Page()
	if err := page.Navigate(target); err != nil {
		return "", nil, err
	}

	title, _ := page.Title()
	return fmt.Sprintf("Navigated to %s (title: %q)", page.URL(), title),
		map[string]interface{}{"url": page.URL()}, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *NavigateTool) IsLoopBreaking() bool {
	return false
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("URL is required")
	}
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "about:") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "about" && u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return u.String(), nil
}

// GoBackTool navigates back in the page history.
type GoBackTool struct {
	session *Session
}

// NewGoBackTool creates a new go back tool.
func NewGoBackTool(session *Session) *GoBackTool {
	return &GoBackTool{session: session}
}

// Name returns the tool name.
func (t *GoBackTool) Name() string {
	return "go_back"
}

// Description returns the tool description.
func (t *GoBackTool) Description() string {
	return "Go back to the previous page."
}

// Schema returns the tool's JSON schema.
func (t *GoBackTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

// Execute goes back.
func (t *GoBackTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	page := t.session.Page()
	if err := page.GoBack(); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Went back to %s", page.URL()), nil, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *GoBackTool) IsLoopBreaking() bool {
	return false
}
