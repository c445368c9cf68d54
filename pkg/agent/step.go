package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/agent/prompts"
	"github.com/entrhq/pilot/pkg/agent/tools"
	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/types"
)

// stepResult tells the run loop how a step ended.
type stepResult struct {
	done         bool
	failed       bool
	interrupted  bool
	errorContext string
}

// llmResponse is a collected model turn.
type llmResponse struct {
	content  string
	thinking string
	usage    *types.TokenUsage
}

// executeStep runs one observe-decide-act cycle and records it.
func (a *BrowserAgent) executeStep(ctx context.Context, systemPrompt string, n, maxSteps int, errorContext string) stepResult {
	step := Step{StepNumber: n, StartedAt: time.Now()}

	stateText := a.observe(&step)
	messages := prompts.BuildMessages(systemPrompt, a.memory.GetAll(), prompts.StateMessage(n, maxSteps, stateText), errorContext)
	estimated := a.tokenizer.CountMessagesTokens(messages)

	resp, err := a.callLLM(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			a.logger.Infof("Step %d interrupted: %v", n, ctx.Err())
			return stepResult{interrupted: true}
		}
		step.Action = "llm_call"
		step.InputTokens = estimated
		return a.failStep(&step, fmt.Errorf("model call failed: %w", err), "")
	}

	step.InputTokens = estimated
	if resp.usage != nil && resp.usage.PromptTokens > 0 {
		step.InputTokens = resp.usage.PromptTokens
	}

	thinking, toolCall, _, parseErr := tools.ExtractThinkingAndToolCall(resp.content)
	step.Thinking = strings.TrimSpace(strings.Join(nonEmpty(resp.thinking, stripThinkingTags(thinking)), "\n"))
	a.memory.Add(types.NewAssistantMessage(resp.content))

	switch {
	case parseErr != nil:
		return a.failStep(&step, fmt.Errorf("invalid tool call: %w", parseErr),
			prompts.BuildErrorRecoveryMessage(prompts.ErrorRecoveryContext{Type: prompts.ErrorTypeInvalidXML, Error: parseErr}))
	case toolCall == nil:
		return a.failStep(&step, errors.New("response contained no tool call"),
			prompts.BuildErrorRecoveryMessage(prompts.ErrorRecoveryContext{Type: prompts.ErrorTypeNoToolCall}))
	}

	step.Action = tools.DescribeCall(toolCall)
	if params, err := tools.XMLToMap(toolCall.GetArgumentsXML()); err == nil && len(params) > 0 {
		step.Params = params
	}

	tool, ok := a.getTool(toolCall.ToolName)
	if !ok {
		return a.failStep(&step, fmt.Errorf("unknown tool: %s", toolCall.ToolName),
			prompts.BuildErrorRecoveryMessage(prompts.ErrorRecoveryContext{
				Type:           prompts.ErrorTypeUnknownTool,
				ToolName:       toolCall.ToolName,
				AvailableTools: a.getToolsList(),
			}))
	}

	a.logger.Infof("Step %d: %s", n, step.Action)
	result, metadata, toolErr := tool.Execute(ctx, toolCall.GetArgumentsXML())
	if toolErr != nil {
		if ctx.Err() != nil {
			return stepResult{interrupted: true}
		}
		return a.failStep(&step, fmt.Errorf("%s failed: %w", toolCall.ToolName, toolErr),
			prompts.BuildErrorRecoveryMessage(prompts.ErrorRecoveryContext{
				Type:     prompts.ErrorTypeToolExecution,
				ToolName: toolCall.ToolName,
				Error:    toolErr,
			}))
	}

	step.Status = StepCompleted
	step.Result = truncate(result, maxStepResultLength)
	step.DurationSeconds = time.Since(step.StartedAt).Seconds()
	a.recordStep(step)

	if tool.IsLoopBreaking() {
		success, _ := metadata["success"].(bool) //nolint:errcheck
		a.finish(result, success)
		return stepResult{done: true}
	}

	a.memory.Add(types.NewUserMessage(prompts.ToolResultMessage(toolCall.ToolName, result)))
	return stepResult{}
}

// observe reads the page state and captures the step screenshot.
func (a *BrowserAgent) observe(step *Step) string {
	state, err := a.session.State(a.maxStateText)
	if err != nil {
		a.logger.Warnf("Failed to read page state: %v", err)
		step.URL = a.session.Page().URL()
		step.Screenshot = a.saveScreenshot(step.StepNumber)
		return fmt.Sprintf("Current URL: %s\nThe page state could not be read: %v", step.URL, err)
	}
	step.URL = state.URL
	step.Title = state.Title
	step.Screenshot = a.saveScreenshot(step.StepNumber)
	return state.Render()
}

func (a *BrowserAgent) failStep(step *Step, err error, errorContext string) stepResult {
	a.logger.Warnf("Step %d failed: %v", step.StepNumber, err)
	step.Status = StepFailed
	step.Error = err.Error()
	step.DurationSeconds = time.Since(step.StartedAt).Seconds()
	a.recordStep(*step)
	return stepResult{failed: true, errorContext: errorContext}
}

// callLLM streams a completion and collects content, thinking and usage.
func (a *BrowserAgent) callLLM(ctx context.Context, messages []*types.Message) (*llmResponse, error) {
	stream, err := a.provider.StreamCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}

	var content, thinking strings.Builder
	resp := &llmResponse{}
	for chunk := range stream {
		if chunk.IsError() {
			return nil, chunk.Error
		}
		if chunk.Usage != nil {
			resp.usage = chunk.Usage
		}
		if chunk.Type == llm.ContentTypeThinking {
			thinking.WriteString(chunk.Content)
			continue
		}
		content.WriteString(chunk.Content)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	resp.content = content.String()
	resp.thinking = thinking.String()
	return resp, nil
}

func (a *BrowserAgent) buildSystemPrompt(maxSteps int) string {
	builder := prompts.NewPromptBuilder().
		WithTools(a.getToolsList()).
		WithMaxSteps(maxSteps)
	if a.customInstructions != "" {
		builder.WithCustomInstructions(a.customInstructions)
	}
	return builder.Build()
}

// getToolsList returns the registered tools sorted by name.
func (a *BrowserAgent) getToolsList() []tools.Tool {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()

	list := make([]tools.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// getTool retrieves a tool by name (thread-safe)
func (a *BrowserAgent) getTool(name string) (tools.Tool, bool) {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()

	tool, exists := a.tools[name]
	return tool, exists
}

func stripThinkingTags(s string) string {
	s = strings.ReplaceAll(s, "<thinking>", "")
	return strings.TrimSpace(strings.ReplaceAll(s, "</thinking>", ""))
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
