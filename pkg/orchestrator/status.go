package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/entrhq/pilot/pkg/agent"
)

// Task statuses reported by Poll.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusStopped   = "stopped"
	StatusFinishing = "finishing"
	StatusCompleted = "completed"
	StatusNotFound  = "not_found"
	StatusError     = "error"
)

// PollOptions shapes a status response.
type PollOptions struct {
	// Detailed adds each step's result and URL to the step list.
	Detailed bool
	// Minimal drops the step list and the embedded history document.
	Minimal bool
	// BaseURL prefixes resource URLs, e.g. "http://host:7788".
	BaseURL string
}

// StepSummary is one entry of a status or result step list.
type StepSummary struct {
	StepNumber int    `json:"step_number"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Result     string `json:"result,omitempty"`
	URL        string `json:"url,omitempty"`
}

// StatusResult summarizes the run so far.
type StatusResult struct {
	Text            string        `json:"text"`
	Success         bool          `json:"success"`
	DurationSeconds float64       `json:"duration_seconds"`
	TotalTokens     int           `json:"total_tokens"`
	Steps           []StepSummary `json:"steps,omitempty"`
	Errors          []string      `json:"errors"`
}

// Status is the answer to a status poll.
type Status struct {
	Success        bool            `json:"success"`
	Status         string          `json:"status"`
	Message        string          `json:"message,omitempty"`
	Steps          int             `json:"steps"`
	SessionID      string          `json:"session_id,omitempty"`
	TaskID         string          `json:"task_id,omitempty"`
	Result         *StatusResult   `json:"result,omitempty"`
	HistoryURL     string          `json:"historyUrl,omitempty"`
	GifURL         string          `json:"gifUrl,omitempty"`
	HistoryContent json.RawMessage `json:"historyContent,omitempty"`
	Resources      *Resources      `json:"resources,omitempty"`
}

// runView is the state Poll reports on, taken either from the live agent
// or from disk.
type runView struct {
	stopped bool
	paused  bool
	done    bool
	nSteps  int
	history *agent.History
}

// Poll reports the status of the task mapped to sessionID. An unmapped
// session falls back to the most recently modified task directory.
func (o *Orchestrator) Poll(ctx context.Context, sessionID string, opts PollOptions) (*Status, error) {
	owner := sessionID
	taskID, ok := o.registry.GetTaskIDForSession(sessionID)
	if !ok {
		taskID, ok = o.layout.latestTaskID()
		if ok {
			owner = o.sessionForTask(taskID)
			o.logger.Warnf("No mapping for session %s, using latest task %s", sessionID, taskID)
		}
	}
	if !ok {
		return &Status{Success: false, Status: StatusNotFound, Message: "No active task found"}, nil
	}

	view, err := o.view(ctx, taskID)
	if err != nil {
		return nil, err
	}

	status := StatusRunning
	switch {
	case view.stopped:
		status = StatusStopped
	case view.paused:
		status = StatusPaused
	case view.done:
		status = StatusFinishing
		if fileExists(o.layout.historyPath(taskID)) && fileExists(o.layout.gifPath(taskID)) {
			status = StatusCompleted
		}
	}

	out := &Status{
		Success:   true,
		Status:    status,
		Steps:     view.nSteps,
		SessionID: owner,
		TaskID:    taskID,
		Result:    summarize(view.history, status, opts),
	}

	res := o.layout.resources(opts.BaseURL, taskID)
	if res.HistoryJSON != nil {
		out.HistoryURL = res.HistoryJSON.URL
		if !opts.Minimal {
			if _, raw, err := o.cache.load(res.HistoryJSON.LocalPath); err == nil {
				out.HistoryContent = raw
			} else {
				o.logger.Warnf("Error parsing history JSON file: %v", err)
			}
		}
	}
	if res.RecordingGIF != nil {
		out.GifURL = res.RecordingGIF.URL
	}
	out.Resources = &res
	return out, nil
}

// view returns the run state for taskID. For the live task it waits, up to
// PollWait, for a logically finished run to write its artifacts.
func (o *Orchestrator) view(ctx context.Context, taskID string) (runView, error) {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()

	if t == nil || t.taskID != taskID {
		return o.diskView(taskID)
	}

	ag := t.getAgent()
	var snap agent.State
	if ag != nil {
		snap = ag.Snapshot()
	}
	v := runView{
		stopped: t.stopped.Load() || snap.Stopped,
		paused:  snap.Paused,
		done:    snap.IsDone() || t.finished(),
		nSteps:  snap.NSteps,
		history: snap.History,
	}
	if ag == nil && t.finished() {
		// The agent never started.
		v.stopped = true
		if err := t.runErr(); err != nil {
			v.history = &agent.History{Task: t.text, AgentID: t.sessionID, Errors: []string{err.Error()}}
		}
	}
	if v.stopped || v.paused || !v.done {
		return v, nil
	}

	if !t.finished() {
		start := time.Now()
		wait, cancel := context.WithTimeout(ctx, o.opts.PollWait)
		select {
		case <-t.done:
		case <-wait.Done():
		}
		cancel()
		o.metrics.pollWait.Observe(time.Since(start).Seconds())
		if t.finished() && ag != nil {
			final := ag.Snapshot()
			v.nSteps = final.NSteps
			v.history = final.History
		}
	}

	if v.history == nil {
		if h, _, err := o.cache.load(o.layout.historyPath(taskID)); err == nil {
			v.history = h
		}
	}
	return v, nil
}

// sessionForTask returns the session mapped to taskID, or "" when the
// mapping is gone.
func (o *Orchestrator) sessionForTask(taskID string) string {
	mappings, err := o.registry.SessionMappings()
	if err != nil {
		return ""
	}
	for session, id := range mappings {
		if id == taskID {
			return session
		}
	}
	return ""
}

// diskView rebuilds the state of a task that is not the live one from its
// history file. No run writes to it any more, so a history without a
// recording is reported as stopped rather than finishing.
func (o *Orchestrator) diskView(taskID string) (runView, error) {
	h, _, err := o.cache.load(o.layout.historyPath(taskID))
	if errors.Is(err, errHistoryMissing) {
		// The run that owned this directory is gone.
		return runView{stopped: true}, nil
	}
	if err != nil {
		return runView{}, err
	}
	stopped := !fileExists(o.layout.gifPath(taskID))
	if !h.IsDone {
		for _, e := range h.Errors {
			if e == agent.ErrStoppedMessage {
				stopped = true
				break
			}
		}
	}
	return runView{
		stopped: stopped,
		done:    !stopped,
		nSteps:  len(h.Steps),
		history: h,
	}, nil
}

func summarize(h *agent.History, status string, opts PollOptions) *StatusResult {
	r := &StatusResult{Errors: []string{}}
	if h == nil {
		r.Success = false
		return r
	}
	r.Text = h.FinalResult
	r.DurationSeconds = h.DurationSeconds
	r.TotalTokens = h.TotalTokens
	if len(h.Errors) > 0 {
		r.Errors = h.Errors
	}
	r.Success = status == StatusCompleted && len(r.Errors) == 0
	if opts.Minimal {
		return r
	}
	for i, s := range h.Steps {
		entry := StepSummary{StepNumber: i + 1, Action: s.Action, Status: agent.StepCompleted}
		if opts.Detailed {
			entry.Status = s.Status
			entry.Result = s.Result
			entry.URL = s.URL
		}
		r.Steps = append(r.Steps, entry)
	}
	return r
}
