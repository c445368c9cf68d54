package orchestrator

import (
	"context"
	"errors"

	"github.com/entrhq/pilot/pkg/agent"
)

// ResultSummary is the outcome of a finished task.
type ResultSummary struct {
	Text            string   `json:"text"`
	Success         bool     `json:"success"`
	DurationSeconds float64  `json:"duration_seconds"`
	StepsCompleted  int      `json:"steps_completed"`
	Errors          []string `json:"errors"`
}

// ResultBundle is a finished task's artifacts read from disk.
type ResultBundle struct {
	Success   bool          `json:"success"`
	SessionID string        `json:"session_id"`
	TaskID    string        `json:"task_id"`
	Result    ResultSummary `json:"result"`
	Resources Resources     `json:"resources"`
	Steps     []StepSummary `json:"steps"`
}

// Result reads the artifacts of the task mapped to sessionID. A session
// without a mapping is looked up as a task directory of the same name.
func (o *Orchestrator) Result(_ context.Context, sessionID, baseURL string) (*ResultBundle, error) {
	taskID, ok := o.registry.GetTaskIDForSession(sessionID)
	if !ok {
		taskID = sessionID
	}

	h, _, err := o.cache.load(o.layout.historyPath(taskID))
	if errors.Is(err, errHistoryMissing) {
		return nil, &NoResultsError{SessionID: sessionID}
	}
	if err != nil {
		o.logger.Errorf("Failed to load history for %s: %v", taskID, err)
		return nil, &CorruptHistoryError{SessionID: sessionID, Err: err}
	}

	errs := h.Errors
	if errs == nil {
		errs = []string{}
	}
	bundle := &ResultBundle{
		Success:   true,
		SessionID: sessionID,
		TaskID:    taskID,
		Result: ResultSummary{
			Text:            h.FinalResult,
			Success:         h.Success,
			DurationSeconds: h.DurationSeconds,
			StepsCompleted:  len(h.Steps),
			Errors:          errs,
		},
		Resources: o.layout.resources(baseURL, taskID),
		Steps:     make([]StepSummary, 0, len(h.Steps)),
	}
	for i, s := range h.Steps {
		status := s.Status
		if status == "" {
			status = agent.StepCompleted
		}
		bundle.Steps = append(bundle.Steps, StepSummary{
			StepNumber: i + 1,
			Action:     s.Action,
			Result:     s.Result,
			Status:     status,
		})
	}
	return bundle, nil
}
