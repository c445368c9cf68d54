package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

const searchContextChars = 50

// SearchResult is one match of a page search.
type SearchResult struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// SearchTool finds text on the current page.
type SearchTool struct {
	session *Session
}

// NewSearchTool creates a new search tool.
func NewSearchTool(session *Session) *SearchTool {
	return &SearchTool{session: session}
}

// Name returns the tool name.
func (t *SearchTool) Name() string {
	return "search_page"
}

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search the visible text of the current page and return each match with surrounding context."
}

// Schema returns the tool's JSON schema.
func (t *SearchTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Text to search for",
			},
			"case_sensitive": map[string]interface{}{
				"type":        "boolean",
				"description": "Match case. Default: false",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum matches to return (1-100). Default: 10",
			},
		},
		[]string{"pattern"},
	)
}

// Execute searches the page.
func (t *SearchTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName       xml.Name `xml:"arguments"`
		Pattern       string   `xml:"pattern"`
		CaseSensitive *bool    `xml:"case_sensitive"`
		MaxResults    *int     `xml:"max_results"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if input.Pattern == "" {
		return "", nil, fmt.Errorf("search pattern is required")
	}

	maxResults := 10
	if input.MaxResults != nil {
		if *input.MaxResults < 1 || *input.MaxResults > 100 {
			return "", nil, fmt.Errorf("max_results must be between 1 and 100")
		}
		maxResults = *input.MaxResults
	}
	caseSensitive := input.CaseSensitive != nil && *input.CaseSensitive

	raw, err := t.session.Page().Content()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get page text: %w", err)
	}
	d, err := parseDOM(raw, 0)
	if err != nil {
		return "", nil, err
	}

	results := searchText(d.Text, input.Pattern, caseSensitive, maxResults)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d match(es) for %q\n", len(results), input.Pattern)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %q\n   ...%s...\n", i+1, r.Text, r.Context)
	}
	if len(results) == maxResults {
		fmt.Fprintf(&b, "\n[Limited to %d results]", maxResults)
	}
	return b.String(), map[string]interface{}{"matches": len(results)}, nil
}

// IsLoopBreaking returns whether this tool breaks the agent loop.
func (t *SearchTool) IsLoopBreaking() bool {
	return false
}

func searchText(text, pattern string, caseSensitive bool, maxResults int) []SearchResult {
	haystack, needle := text, pattern
	if !caseSensitive {
		haystack, needle = strings.ToLower(text), strings.ToLower(pattern)
	}
	if len(haystack) != len(text) {
		// Case folding changed byte offsets; fall back to exact matching.
		haystack, needle = text, pattern
	}

	var results []SearchResult
	for offset := 0; offset < len(haystack); {
		pos := strings.Index(haystack[offset:], needle)
		if pos < 0 {
			break
		}
		start := offset + pos
		end := start + len(needle)
		results = append(results, SearchResult{
			Text:    text[start:end],
			Context: collapseSpace(text[max(0, start-searchContextChars):min(len(text), end+searchContextChars)]),
		})
		if len(results) >= maxResults {
			break
		}
		offset = end
	}
	return results
}
