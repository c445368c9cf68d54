package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/pilot/pkg/agent/tools"
)

// FormatToolSchema renders one tool for the system prompt.
func FormatToolSchema(tool tools.Tool) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("## %s\n", tool.Name()))
	b.WriteString(tool.Description())
	b.WriteString("\n")
	if tool.IsLoopBreaking() {
		b.WriteString("(loop-breaking: calling this ends the run)\n")
	}

	schema := tool.Schema()
	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		required := make(map[string]bool)
		if req, ok := schema["required"].([]string); ok {
			for _, r := range req {
				required[r] = true
			}
		}

		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("Parameters:\n")
		for _, name := range names {
			prop, _ := props[name].(map[string]interface{}) //nolint:errcheck
			typ, _ := prop["type"].(string)                 //nolint:errcheck
			desc, _ := prop["description"].(string)         //nolint:errcheck
			req := "optional"
			if required[name] {
				req = "required"
			}
			b.WriteString(fmt.Sprintf("- %s (%s, %s): %s\n", name, typ, req, desc))
		}
	}

	b.WriteString("Example:\n")
	if ex, ok := tool.(XMLExampleProvider); ok {
		b.WriteString(ex.XMLExample())
	} else {
		b.WriteString(GenerateXMLExample(schema, tool.Name()))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatToolSchemas renders all tools, sorted by name.
func FormatToolSchemas(toolsList []tools.Tool) string {
	if len(toolsList) == 0 {
		return "No tools available.\n"
	}

	sorted := make([]tools.Tool, len(toolsList))
	copy(sorted, toolsList)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	var b strings.Builder
	b.WriteString("# AVAILABLE TOOLS\n\n")
	for _, tool := range sorted {
		b.WriteString(FormatToolSchema(tool))
		b.WriteString("\n")
	}
	return b.String()
}

// SchemaToJSON renders a schema as indented JSON.
func SchemaToJSON(schema map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(data), nil
}

// ErrorType classifies a failed step for the recovery message.
type ErrorType int

const (
	ErrorTypeNoToolCall ErrorType = iota
	ErrorTypeInvalidXML
	ErrorTypeUnknownTool
	ErrorTypeToolExecution
)

// ErrorRecoveryContext describes a failed step.
type ErrorRecoveryContext struct {
	Type           ErrorType
	ToolName       string
	Error          error
	AvailableTools []tools.Tool
}

// BuildErrorRecoveryMessage tells the model what went wrong in the previous
// step so it can correct itself.
func BuildErrorRecoveryMessage(ec ErrorRecoveryContext) string {
	var b strings.Builder
	b.WriteString("<error>\n")

	switch ec.Type {
	case ErrorTypeNoToolCall:
		b.WriteString("Your last response did not contain a tool call. Every response must end with exactly one <tool> block.")
	case ErrorTypeInvalidXML:
		b.WriteString("Your last tool call could not be parsed")
		if ec.Error != nil {
			b.WriteString(": ")
			b.WriteString(ec.Error.Error())
		}
		b.WriteString("\nCheck that every tag is closed and that special characters are escaped.")
	case ErrorTypeUnknownTool:
		b.WriteString(fmt.Sprintf("Tool '%s' does not exist.", ec.ToolName))
		if len(ec.AvailableTools) > 0 {
			names := make([]string, 0, len(ec.AvailableTools))
			for _, t := range ec.AvailableTools {
				names = append(names, t.Name())
			}
			sort.Strings(names)
			b.WriteString(" Available tools: ")
			b.WriteString(strings.Join(names, ", "))
		}
	case ErrorTypeToolExecution:
		b.WriteString(fmt.Sprintf("Tool '%s' failed", ec.ToolName))
		if ec.Error != nil {
			b.WriteString(": ")
			b.WriteString(ec.Error.Error())
		}
		b.WriteString("\nLook at the new browser state and try a different action.")
	}

	b.WriteString("\n</error>")
	return b.String()
}
