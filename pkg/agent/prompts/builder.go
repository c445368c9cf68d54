package prompts

import (
	"fmt"
	"strings"

	"github.com/entrhq/pilot/pkg/agent/tools"
	"github.com/entrhq/pilot/pkg/types"
)

// PromptBuilder constructs the system prompt for the browser agent
type PromptBuilder struct {
	tools              []tools.Tool
	customInstructions string
	maxSteps           int
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		tools: []tools.Tool{},
	}
}

// WithTools sets the available tools for the agent
func (pb *PromptBuilder) WithTools(toolsList []tools.Tool) *PromptBuilder {
	pb.tools = toolsList
	return pb
}

// WithCustomInstructions appends caller-provided instructions to the prompt.
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = instructions
	return pb
}

// WithMaxSteps tells the model its step budget.
func (pb *PromptBuilder) WithMaxSteps(n int) *PromptBuilder {
	pb.maxSteps = n
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	builder.WriteString(SystemCapabilitiesPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(AgentLoopPrompt)
	builder.WriteString("\n\n")

	if pb.maxSteps > 0 {
		builder.WriteString(fmt.Sprintf("<step_budget>You have at most %d steps. Call done before the budget runs out.</step_budget>\n\n", pb.maxSteps))
	}

	builder.WriteString(ChainOfThoughtPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(ToolCallingPrompt)
	builder.WriteString("\n\n")

	if len(pb.tools) > 0 {
		builder.WriteString("<available_tools>\n")
		builder.WriteString(FormatToolSchemas(pb.tools))
		builder.WriteString("</available_tools>\n\n")
	}

	builder.WriteString(BrowserRulesPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(ToolUseRulesPrompt)

	if pb.customInstructions != "" {
		builder.WriteString("\n\n<custom_instructions>\n")
		builder.WriteString(pb.customInstructions)
		builder.WriteString("\n</custom_instructions>")
	}

	return builder.String()
}

// BuildMessages creates the message list for one step: the system prompt,
// the run history, then an ephemeral error note and the current state. The
// error note and state are not stored in history.
func BuildMessages(systemPrompt string, history []*types.Message, stateMessage string, errorContext string) []*types.Message {
	messages := make([]*types.Message, 0, len(history)+3)

	messages = append(messages, types.NewSystemMessage(systemPrompt))

	for _, msg := range history {
		if msg.Role != types.RoleSystem {
			messages = append(messages, msg)
		}
	}

	if errorContext != "" {
		messages = append(messages, types.NewUserMessage(errorContext))
	}

	if stateMessage != "" {
		messages = append(messages, types.NewUserMessage(stateMessage))
	}

	return messages
}

// TaskMessage is the first user turn of a run.
func TaskMessage(task string) string {
	return fmt.Sprintf("<task>\n%s\n</task>", strings.TrimSpace(task))
}

// FollowUpMessage introduces a task added to a running session.
func FollowUpMessage(task string) string {
	return fmt.Sprintf("<follow_up_task>\nThe previous task is finished. Continue in the same browser with this new task:\n%s\n</follow_up_task>", strings.TrimSpace(task))
}

// StateMessage wraps the rendered page state for the current step.
func StateMessage(step, maxSteps int, state string) string {
	return fmt.Sprintf("<browser_state step=\"%d/%d\">\n%s\n</browser_state>", step, maxSteps, state)
}

// ToolResultMessage reports the outcome of the previous action.
func ToolResultMessage(toolName, result string) string {
	return fmt.Sprintf("Tool '%s' result:\n%s", toolName, result)
}
