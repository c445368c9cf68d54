package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Step status values.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// History is the record of one task run. It is the document written to
// <task>.json and read back by the orchestrator.
type History struct {
	Task            string    `json:"task"`
	AgentID         string    `json:"agent_id"`
	FinalResult     string    `json:"final_result"`
	Success         bool      `json:"success"`
	IsDone          bool      `json:"is_done"`
	DurationSeconds float64   `json:"duration_seconds"`
	TotalTokens     int       `json:"total_tokens"`
	StartedAt       time.Time `json:"started_at"`
	Steps           []Step    `json:"steps"`
	Errors          []string  `json:"errors"`
}

// Step is one model turn and the action it produced.
type Step struct {
	StepNumber      int                    `json:"step_number"`
	Action          string                 `json:"action"`
	Params          map[string]interface{} `json:"params,omitempty"`
	Thinking        string                 `json:"thinking,omitempty"`
	Result          string                 `json:"result"`
	Status          string                 `json:"status"`
	Error           string                 `json:"error,omitempty"`
	URL             string                 `json:"url"`
	Title           string                 `json:"title,omitempty"`
	Screenshot      string                 `json:"screenshot,omitempty"`
	InputTokens     int                    `json:"input_tokens"`
	StartedAt       time.Time              `json:"started_at"`
	DurationSeconds float64                `json:"duration_seconds"`
}

// NewHistory starts an empty history for task.
func NewHistory(task, agentID string) *History {
	return &History{
		Task:      task,
		AgentID:   agentID,
		StartedAt: time.Now(),
		Steps:     []Step{},
		Errors:    []string{},
	}
}

// AddStep appends s and accounts its tokens and error.
func (h *History) AddStep(s Step) {
	h.Steps = append(h.Steps, s)
	h.TotalTokens += s.InputTokens
	if s.Error != "" {
		h.Errors = append(h.Errors, s.Error)
	}
}

// AddError records a run-level error.
func (h *History) AddError(msg string) {
	h.Errors = append(h.Errors, msg)
}

// Screenshots returns the screenshot file names in step order.
func (h *History) Screenshots() []string {
	var out []string
	for _, s := range h.Steps {
		if s.Screenshot != "" {
			out = append(out, s.Screenshot)
		}
	}
	return out
}

// Clone returns a copy that shares no slices with h.
func (h *History) Clone() *History {
	if h == nil {
		return nil
	}
	c := *h
	c.Steps = make([]Step, len(h.Steps))
	copy(c.Steps, h.Steps)
	c.Errors = make([]string, len(h.Errors))
	copy(c.Errors, h.Errors)
	return &c
}

// Save writes h as indented JSON, creating parent directories.
func (h *History) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize history: %w", err)
	}
	return nil
}
