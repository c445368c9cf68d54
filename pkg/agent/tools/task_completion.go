package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// DoneToolName is the name of the loop-breaking completion tool.
const DoneToolName = "done"

// DoneTool ends the run and carries the final answer. The model reports
// whether it believes the task succeeded.
type DoneTool struct{}

// NewDoneTool creates a new done tool
func NewDoneTool() *DoneTool {
	return &DoneTool{}
}

// Name returns the tool's identifier
func (t *DoneTool) Name() string {
	return DoneToolName
}

// Description returns a description of what this tool does
func (t *DoneTool) Description() string {
	return "Finish the task and report the final result. " +
		"Call this once the task is complete, or when it cannot be completed, with success set accordingly. " +
		"The result should contain everything the user asked for."
}

// Schema returns the JSON schema for the tool's arguments
func (t *DoneTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"result": map[string]interface{}{
				"type":        "string",
				"description": "The final result of the task: the extracted information or a summary of what was done.",
			},
			"success": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the task was fully completed. Default: true",
			},
		},
		[]string{"result"},
	)
}

// Execute returns the result; metadata carries "success".
func (t *DoneTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var args struct {
		XMLName xml.Name `xml:"arguments"`
		Result  string   `xml:"result"`
		Success string   `xml:"success"`
	}

	if err := UnmarshalXMLWithFallback(argsXML, &args); err != nil {
		return "", nil, fmt.Errorf("invalid arguments for %s: %w", DoneToolName, err)
	}

	result := strings.TrimSpace(args.Result)
	if result == "" {
		return "", nil, fmt.Errorf("result cannot be empty")
	}

	success := true
	switch strings.ToLower(strings.TrimSpace(args.Success)) {
	case "", "true", "yes", "1":
	case "false", "no", "0":
		success = false
	default:
		return "", nil, fmt.Errorf("success must be true or false, got %q", args.Success)
	}

	return result, map[string]interface{}{"success": success}, nil
}

// IsLoopBreaking returns true because this tool terminates the agent loop
func (t *DoneTool) IsLoopBreaking() bool {
	return true
}
