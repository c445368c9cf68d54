package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

// DefaultMaxLength bounds extracted content (characters).
const DefaultMaxLength = 10000

// ExtractContentTool returns the page content as text, markdown or cleaned HTML.
type ExtractContentTool struct {
	session *Session
}

// NewExtractContentTool creates a new extract content tool.
func NewExtractContentTool(session *Session) *ExtractContentTool {
	return &ExtractContentTool{session: session}
}

// Name returns the tool name.
func (t *ExtractContentTool) Name() string {
	return "extract_content"
}

// Description returns the tool description.
func (t *ExtractContentTool) Description() string {
	return "Extract the content of the current page. Formats: 'markdown' (default, title plus visible text), 'text', or 'html' (cleaned HTML with ids, classes and form attributes kept)."
}

// Schema returns the tool's JSON schema.
func (t *ExtractContentTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Output format: 'markdown' (default), 'text', or 'html'",
			},
			"max_length": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum content length in characters. Default: 10000",
			},
		},
		nil,
	)
}

// Execute extracts content from the page.
func (t *ExtractContentTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName   xml.Name `xml:"arguments"`
		Format    string   `xml:"format"`
		MaxLength *int     `xml:"max_length"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	maxLength := DefaultMaxLength
	if input.MaxLength != nil {
		if *input.MaxLength < 100 || *input.MaxLength > 100000 {
			return "", nil, fmt.Errorf("max_length must be between 100 and 100000")
		}
		maxLength = *input.MaxLength
	}

	page := t.session.Page()
	raw, err := page.Content()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read page content: %w", err)
	}

	var out string
	var truncated bool
	switch strings.ToLower(input.Format) {
	case "html":
		cleaned, err := cleanHTML(raw, maxLength)
		if err != nil {
			return "", nil, err
		}
		out, truncated = cleaned.HTML, cleaned.Truncated
	case "text":
		d, err := parseDOM(raw, maxLength)
		if err != nil {
			return "", nil, err
		}
		out, truncated = d.Text, d.Truncated
	case "", "markdown":
		d, err := parseDOM(raw, maxLength)
		if err != nil {
			return "", nil, err
		}
		var b strings.Builder
		if d.Title != "" {
			fmt.Fprintf(&b, "# %s\n\n", d.Title)
		}
		if d.Description != "" {
			fmt.Fprintf(&b, "> %s\n\n", d.Description)
		}
		b.WriteString(d.Text)
		out, truncated = b.String(), d.Truncated
	default:
		return "", nil, fmt.Errorf("unsupported format: %s", input.Format)
	}

	if truncated {
		out += fmt.Sprintf("\n\n[Content truncated at %d characters]", maxLength)
	}
	return out, map[string]interface{}{"url": page.URL(), "truncated": truncated}, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *ExtractContentTool) IsLoopBreaking() bool {
	return false
}
