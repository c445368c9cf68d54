package tools

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

const (
	defaultServerName = "local"
	maxXMLSize        = 1024 * 1024
	argumentsTagName  = "arguments"
	maxActionArgLen   = 60
)

var toolRegex = regexp.MustCompile(`(?s)<tool>.*?</tool>`)

// ampersandEntityRegex matches ampersands that already start an XML entity.
var ampersandEntityRegex = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

// ParseToolCall extracts the first <tool> element from an LLM response.
// It returns the call and the response text with the call removed.
func ParseToolCall(text string) (*ToolCall, string, error) {
	if len(text) > maxXMLSize {
		return nil, text, fmt.Errorf("tool call XML exceeds maximum size of %d bytes", maxXMLSize)
	}

	loc := toolRegex.FindStringIndex(text)
	if loc == nil {
		return nil, text, fmt.Errorf("no tool call found in text")
	}
	toolXML := strings.TrimSpace(text[loc[0]:loc[1]])

	var toolCall ToolCall
	if err := UnmarshalXMLWithFallback([]byte(toolXML), &toolCall); err != nil {
		snippet := toolXML
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, text, fmt.Errorf("failed to unmarshal tool call XML: %w\nXML snippet: %s", err, snippet)
	}

	toolCall.ToolName = strings.TrimSpace(toolCall.ToolName)
	if toolCall.ToolName == "" {
		return nil, text, fmt.Errorf("tool_name is required in tool call")
	}
	if toolCall.ServerName == "" {
		toolCall.ServerName = defaultServerName
	}

	remaining := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return &toolCall, remaining, nil
}

// ExtractThinkingAndToolCall splits a response into the reasoning before the
// tool call, the call itself and any trailing text. Without a tool call the
// whole text is returned as thinking.
func ExtractThinkingAndToolCall(text string) (thinking string, toolCall *ToolCall, remaining string, err error) {
	loc := toolRegex.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), nil, "", nil
	}

	thinking = strings.TrimSpace(text[:loc[0]])
	remaining = strings.TrimSpace(text[loc[1]:])

	toolCall, _, err = ParseToolCall(text[loc[0]:loc[1]])
	if err != nil {
		return thinking, nil, remaining, err
	}
	return thinking, toolCall, remaining, nil
}

// HasToolCall checks if the text contains a tool call.
func HasToolCall(text string) bool {
	return toolRegex.MatchString(text)
}

// UnmarshalXMLWithFallback unmarshals XML, retrying with bare ampersands
// escaped when the first attempt fails.
func UnmarshalXMLWithFallback(data []byte, v interface{}) error {
	if err := xml.Unmarshal(data, v); err == nil {
		return nil
	}
	return xml.Unmarshal(escapeUnescapedAmpersands(data), v)
}

// escapeUnescapedAmpersands replaces bare & with &amp; and leaves existing
// entities alone.
func escapeUnescapedAmpersands(data []byte) []byte {
	text := string(data)
	entityStarts := make(map[int]bool)
	for _, m := range ampersandEntityRegex.FindAllStringIndex(text, -1) {
		entityStarts[m[0]] = true
	}

	var b strings.Builder
	b.Grow(len(text) + 20)
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && !entityStarts[i] {
			b.WriteString("&amp;")
			continue
		}
		b.WriteByte(text[i])
	}
	return []byte(b.String())
}

// XMLToMap flattens the direct children of <arguments> into a map of their
// trimmed text.
func XMLToMap(data []byte) (map[string]interface{}, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	result := make(map[string]interface{})

	var path []string
	var text strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			text.Reset()

		case xml.EndElement:
			if len(path) == 0 {
				continue
			}
			name := path[len(path)-1]
			path = path[:len(path)-1]

			if len(path) == 1 && path[0] == argumentsTagName {
				if v := strings.TrimSpace(text.String()); v != "" {
					result[name] = v
				}
			}
			text.Reset()

		case xml.CharData:
			text.Write(t)
		}
	}

	return result, nil
}

// DescribeCall renders a call as `name(key=value, ...)` with keys sorted and
// long values shortened. It is the action label recorded in run history.
func DescribeCall(tc *ToolCall) string {
	if tc == nil {
		return ""
	}
	args, err := XMLToMap(tc.GetArgumentsXML())
	if err != nil || len(args) == 0 {
		return tc.ToolName
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(args[k])
		if len(v) > maxActionArgLen {
			v = v[:maxActionArgLen] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return fmt.Sprintf("%s(%s)", tc.ToolName, strings.Join(parts, ", "))
}
